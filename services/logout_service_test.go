package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucidauth/lucid/domain"
	"github.com/lucidauth/lucid/memory"
)

type logoutFixture struct {
	sessions *SessionService
	consent  *ConsentService
	tokens   *TokenService
	logout   *LogoutService
}

func newLogoutFixture(t *testing.T, channel LogoutChannel, clients ...*domain.Client) *logoutFixture {
	t.Helper()

	idp := newTestIdP(t, defaultPolicy())
	clientSvc := NewClientService(memory.NewClientRepository(clients...))

	f := &logoutFixture{
		sessions: idp.sessions,
		consent:  idp.consent,
		tokens:   idp.tokens,
	}
	f.logout = NewLogoutService(f.sessions, f.consent, clientSvc, f.tokens, channel, time.Second)
	return f
}

func establishWith(t *testing.T, f *logoutFixture, clientIDs ...string) *domain.Session {
	t.Helper()
	ctx := context.Background()
	session, err := f.sessions.Establish(ctx, "1")
	require.NoError(t, err)
	for _, id := range clientIDs {
		require.NoError(t, f.sessions.Touch(ctx, session.ID, id))
	}
	return session
}

func TestLogoutBackChannelFanOut(t *testing.T) {
	ctx := context.Background()

	var aCalls atomic.Int32
	serverA := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.NotEmpty(t, r.Form.Get("sid"))
		aCalls.Add(1)
	}))
	defer serverA.Close()

	f := newLogoutFixture(t, LogoutChannelBack,
		&domain.Client{ID: "a", BackChannelLogoutURI: serverA.URL},
		&domain.Client{ID: "b", BackChannelLogoutURI: "http://127.0.0.1:1/unreachable"},
	)
	session := establishWith(t, f, "a", "b")

	result, err := f.logout.Logout(ctx, session.ID, "", "")
	require.NoError(t, err)

	// One unreachable client never blocks the rest of the fan-out.
	assert.ElementsMatch(t, []string{"a", "b"}, result.NotifiedClients)
	assert.Equal(t, []string{"b"}, result.FailedClients)
	assert.Equal(t, int32(1), aCalls.Load())

	assert.False(t, f.sessions.IsValid(ctx, session.ID), "the session dies regardless of notification failures")
}

func TestLogoutBackChannelErrorStatusCountsAsFailure(t *testing.T) {
	ctx := context.Background()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	f := newLogoutFixture(t, LogoutChannelBack,
		&domain.Client{ID: "a", BackChannelLogoutURI: server.URL},
	)
	session := establishWith(t, f, "a")

	result, err := f.logout.Logout(ctx, session.ID, "", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, result.NotifiedClients)
	assert.Equal(t, []string{"a"}, result.FailedClients)
}

func TestLogoutFrontChannelCollectsURIs(t *testing.T) {
	ctx := context.Background()

	f := newLogoutFixture(t, LogoutChannelFront,
		&domain.Client{ID: "a", FrontChannelLogoutURI: "https://a.example/frontchannel-logout"},
		&domain.Client{ID: "b"}, // participates but registered no logout URI
	)
	session := establishWith(t, f, "a", "b")

	result, err := f.logout.Logout(ctx, session.ID, "", "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, result.NotifiedClients)
	require.Len(t, result.FrontChannelURIs, 1)
	assert.Contains(t, result.FrontChannelURIs[0], "https://a.example/frontchannel-logout")
	assert.Contains(t, result.FrontChannelURIs[0], "sid="+session.ID)
	assert.Empty(t, result.FailedClients)
}

func TestLogoutPostRedirectRequiresRegistration(t *testing.T) {
	ctx := context.Background()

	client := &domain.Client{
		ID:                     "mvc",
		PostLogoutRedirectURIs: []string{"http://localhost:5002/signout-callback-oidc"},
	}
	f := newLogoutFixture(t, LogoutChannelFront, client)
	session := establishWith(t, f, "mvc")

	hint, err := f.tokens.IssueIDToken(ctx, "1", client, nil, "")
	require.NoError(t, err)

	t.Run("registered URI is honored", func(t *testing.T) {
		result, err := f.logout.Logout(ctx, session.ID, hint, "http://localhost:5002/signout-callback-oidc")
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:5002/signout-callback-oidc", result.RedirectURI)
	})

	t.Run("unregistered URI falls back to local confirmation", func(t *testing.T) {
		result, err := f.logout.Logout(ctx, session.ID, hint, "https://evil.example/after-logout")
		require.NoError(t, err)
		assert.Empty(t, result.RedirectURI)
	})

	t.Run("redirect URI without a usable hint is ignored", func(t *testing.T) {
		result, err := f.logout.Logout(ctx, session.ID, "", "http://localhost:5002/signout-callback-oidc")
		require.NoError(t, err)
		assert.Empty(t, result.RedirectURI)
	})
}

func TestLogoutWithoutSession(t *testing.T) {
	ctx := context.Background()
	f := newLogoutFixture(t, LogoutChannelFront)

	result, err := f.logout.Logout(ctx, "never-existed", "", "")
	require.NoError(t, err)
	assert.Empty(t, result.NotifiedClients)
	assert.Empty(t, result.FrontChannelURIs)
}

func TestLogoutDropsSessionScopedConsent(t *testing.T) {
	ctx := context.Background()
	f := newLogoutFixture(t, LogoutChannelFront, &domain.Client{ID: "mvc"})
	session := establishWith(t, f, "mvc")

	require.NoError(t, f.consent.RecordGrant(ctx, "1", "mvc", []string{"openid"}, false, session.ID))
	require.NoError(t, f.consent.RecordGrant(ctx, "1", "spa", []string{"openid"}, true, ""))

	_, err := f.logout.Logout(ctx, session.ID, "", "")
	require.NoError(t, err)

	_, err = f.consent.GetGrant(ctx, "1", "mvc", session.ID)
	assert.ErrorIs(t, err, domain.ErrConsentNotFound)

	// Persistent grants survive logout.
	_, err = f.consent.GetGrant(ctx, "1", "spa", "")
	assert.NoError(t, err)
}
