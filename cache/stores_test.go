package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucidauth/lucid/domain"
	"github.com/lucidauth/lucid/internal/oidcflow"
)

func TestMemorySessionStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySessionStore()

	session := &domain.Session{
		ID:        "sess-1",
		Subject:   "1",
		ExpiresAt: time.Now().Add(time.Hour),
	}
	require.NoError(t, store.Save(ctx, session))

	got, err := store.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "1", got.Subject)
	assert.Equal(t, 1, store.Count())

	require.NoError(t, store.Delete(ctx, "sess-1"))
	_, err = store.Get(ctx, "sess-1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestMemorySessionStoreExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySessionStore()

	require.NoError(t, store.Save(ctx, &domain.Session{
		ID:        "sess-1",
		Subject:   "1",
		ExpiresAt: time.Now().Add(-time.Second),
	}))

	_, err := store.Get(ctx, "sess-1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestMemoryFlowStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryFlowStore()

	flow := &oidcflow.Flow{
		ID:        "flow-1",
		Status:    oidcflow.StatusNeedsLogin,
		ClientID:  "mvc",
		ExpiresAt: time.Now().Add(time.Minute),
	}
	require.NoError(t, store.StoreFlow(ctx, flow))

	got, err := store.GetFlow(ctx, "flow-1")
	require.NoError(t, err)
	assert.Equal(t, oidcflow.StatusNeedsLogin, got.Status)

	got.Status = oidcflow.StatusNeedsConsent
	require.NoError(t, store.UpdateFlow(ctx, got))
	got, err = store.GetFlow(ctx, "flow-1")
	require.NoError(t, err)
	assert.Equal(t, oidcflow.StatusNeedsConsent, got.Status)

	require.NoError(t, store.DeleteFlow(ctx, "flow-1"))
	_, err = store.GetFlow(ctx, "flow-1")
	assert.ErrorIs(t, err, oidcflow.ErrFlowNotFound)
}

func TestMemoryFlowStoreUpdateMissing(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryFlowStore()

	err := store.UpdateFlow(ctx, &oidcflow.Flow{ID: "ghost", ExpiresAt: time.Now().Add(time.Minute)})
	assert.ErrorIs(t, err, oidcflow.ErrFlowNotFound)
}

func TestMemoryCodeStoreMarkUsed(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryCodeStore()

	require.NoError(t, store.SaveCode(ctx, &domain.AuthCode{
		Code:      "code-1",
		ClientID:  "mvc",
		ExpiresAt: time.Now().Add(time.Minute),
	}))

	got, err := store.GetCode(ctx, "code-1")
	require.NoError(t, err)
	assert.False(t, got.Used)

	require.NoError(t, store.MarkUsed(ctx, "code-1"))
	got, err = store.GetCode(ctx, "code-1")
	require.NoError(t, err)
	assert.True(t, got.Used)

	assert.ErrorIs(t, store.MarkUsed(ctx, "code-1"), domain.ErrAuthCodeUsed)
	assert.ErrorIs(t, store.MarkUsed(ctx, "nope"), domain.ErrAuthCodeNotFound)
}

func TestMemoryCodeStoreMarkUsedIsAtomic(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryCodeStore()

	require.NoError(t, store.SaveCode(ctx, &domain.AuthCode{
		Code:      "code-1",
		ClientID:  "mvc",
		ExpiresAt: time.Now().Add(time.Minute),
	}))

	const workers = 8
	var wg sync.WaitGroup
	var consumed atomic.Int32
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if store.MarkUsed(ctx, "code-1") == nil {
				consumed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), consumed.Load(), "exactly one caller may consume the code")
}

func TestMemoryCodeStoreGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryCodeStore()

	require.NoError(t, store.SaveCode(ctx, &domain.AuthCode{
		Code:      "code-1",
		ClientID:  "mvc",
		ExpiresAt: time.Now().Add(time.Minute),
	}))

	got, err := store.GetCode(ctx, "code-1")
	require.NoError(t, err)
	got.Used = true

	fresh, err := store.GetCode(ctx, "code-1")
	require.NoError(t, err)
	assert.False(t, fresh.Used, "mutating a returned code must not touch the store")
}

func TestMemoryTokenStoreRevocation(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryTokenStore()

	save := func(id, kind, value, subject, clientID string) {
		require.NoError(t, store.StoreToken(ctx, &domain.Token{
			ID:         id,
			Kind:       kind,
			TokenValue: value,
			Subject:    subject,
			ClientID:   clientID,
			ExpiresAt:  time.Now().Add(time.Hour),
		}))
	}
	save("t1", domain.TokenKindRefresh, "refresh-1", "1", "mvc")
	save("t2", domain.TokenKindRefresh, "refresh-2", "1", "mvc")
	save("t3", domain.TokenKindRefresh, "refresh-3", "1", "spa")
	save("t4", domain.TokenKindAccess, "access-1", "1", "mvc")

	require.NoError(t, store.RevokeRefreshChain(ctx, "1", "mvc"))

	for value, wantRevoked := range map[string]bool{
		"refresh-1": true,
		"refresh-2": true,
		"refresh-3": false, // different client
		"access-1":  false, // not a refresh token
	} {
		got, err := store.GetToken(ctx, value)
		require.NoError(t, err)
		assert.Equal(t, wantRevoked, got.IsRevoked, "token %s", value)
	}

	require.NoError(t, store.RevokeToken(ctx, "access-1"))
	got, err := store.GetToken(ctx, "access-1")
	require.NoError(t, err)
	assert.True(t, got.IsRevoked)

	assert.ErrorIs(t, store.RevokeToken(ctx, "nope"), domain.ErrTokenNotFound)
}

func TestMemoryTokenStoreGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryTokenStore()

	require.NoError(t, store.StoreToken(ctx, &domain.Token{
		ID:         "t1",
		Kind:       domain.TokenKindRefresh,
		TokenValue: "refresh-1",
		Subject:    "1",
		ClientID:   "mvc",
		ExpiresAt:  time.Now().Add(time.Hour),
	}))

	got, err := store.GetToken(ctx, "refresh-1")
	require.NoError(t, err)
	got.IsRevoked = true

	fresh, err := store.GetToken(ctx, "refresh-1")
	require.NoError(t, err)
	assert.False(t, fresh.IsRevoked, "mutating a returned token must not touch the store")
}

func TestSessionGrantCache(t *testing.T) {
	c := NewSessionGrantCache(time.Hour)

	c.Put(&domain.ConsentGrant{Subject: "1", ClientID: "mvc", Scopes: []string{"openid"}, SessionID: "sess-1"})
	c.Put(&domain.ConsentGrant{Subject: "1", ClientID: "spa", Scopes: []string{"openid"}, SessionID: "sess-2"})

	_, ok := c.Get("1", "mvc", "sess-1")
	assert.True(t, ok)
	_, ok = c.Get("1", "mvc", "sess-2")
	assert.False(t, ok, "a grant from another session never matches")

	c.DropSession("sess-1")
	_, ok = c.Get("1", "mvc", "sess-1")
	assert.False(t, ok)
	_, ok = c.Get("1", "spa", "sess-2")
	assert.True(t, ok, "other sessions keep their grants")
}

func TestHashTokenIsStable(t *testing.T) {
	a := HashToken("value")
	b := HashToken("value")
	c := HashToken("other")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}
