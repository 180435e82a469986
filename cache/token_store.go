package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/lucidauth/lucid/domain"
)

// MemoryTokenStore implements domain.TokenRepository using ttlcache, keyed by
// token hash. It backs refresh token revocation: access and identity tokens
// validate statelessly, refresh tokens are looked up here.
type MemoryTokenStore struct {
	mu    sync.Mutex
	cache *ttlcache.Cache[string, *domain.Token]
}

// NewMemoryTokenStore creates an in-memory token repository.
func NewMemoryTokenStore() *MemoryTokenStore {
	cache := ttlcache.New(
		ttlcache.WithDisableTouchOnHit[string, *domain.Token](),
	)
	go cache.Start()

	return &MemoryTokenStore{cache: cache}
}

// StoreToken implements domain.TokenRepository.
func (s *MemoryTokenStore) StoreToken(_ context.Context, token *domain.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *token
	s.cache.Set(HashToken(token.TokenValue), &stored, time.Until(token.ExpiresAt))
	return nil
}

// GetToken implements domain.TokenRepository. The returned record is a copy;
// revocation state is only changed through RevokeToken/RevokeRefreshChain.
func (s *MemoryTokenStore) GetToken(_ context.Context, tokenValue string) (*domain.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.cache.Get(HashToken(tokenValue))
	if item == nil {
		return nil, domain.ErrTokenNotFound
	}
	found := *item.Value()
	return &found, nil
}

// RevokeToken implements domain.TokenRepository.
func (s *MemoryTokenStore) RevokeToken(_ context.Context, tokenValue string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.cache.Get(HashToken(tokenValue))
	if item == nil {
		return domain.ErrTokenNotFound
	}
	item.Value().IsRevoked = true
	return nil
}

// RevokeRefreshChain implements domain.TokenRepository.
func (s *MemoryTokenStore) RevokeRefreshChain(_ context.Context, subject, clientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache.Range(func(item *ttlcache.Item[string, *domain.Token]) bool {
		t := item.Value()
		if t.Kind == domain.TokenKindRefresh && t.Subject == subject && t.ClientID == clientID {
			t.IsRevoked = true
		}
		return true
	})
	return nil
}

// Count returns the number of tokens currently tracked.
func (s *MemoryTokenStore) Count() int {
	return s.cache.Len()
}
