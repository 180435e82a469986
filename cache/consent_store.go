package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/lucidauth/lucid/domain"
)

// MemoryConsentStore implements domain.ConsentStore for persistent grants.
type MemoryConsentStore struct {
	mu     sync.RWMutex
	grants map[string]*domain.ConsentGrant
}

// NewMemoryConsentStore creates an in-memory persistent consent store.
func NewMemoryConsentStore() *MemoryConsentStore {
	return &MemoryConsentStore{grants: make(map[string]*domain.ConsentGrant)}
}

func consentKey(subject, clientID string) string {
	return subject + "\x00" + clientID
}

// GetGrant implements domain.ConsentStore.
func (s *MemoryConsentStore) GetGrant(_ context.Context, subject, clientID string) (*domain.ConsentGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	grant, ok := s.grants[consentKey(subject, clientID)]
	if !ok {
		return nil, domain.ErrConsentNotFound
	}
	if !grant.ExpiresAt.IsZero() && time.Now().After(grant.ExpiresAt) {
		return nil, domain.ErrConsentNotFound
	}
	return grant, nil
}

// SaveGrant implements domain.ConsentStore.
func (s *MemoryConsentStore) SaveGrant(_ context.Context, grant *domain.ConsentGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants[consentKey(grant.Subject, grant.ClientID)] = grant
	return nil
}

// DeleteGrant implements domain.ConsentStore.
func (s *MemoryConsentStore) DeleteGrant(_ context.Context, subject, clientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.grants, consentKey(subject, clientID))
	return nil
}

// SessionGrantCache holds non-persistent consent grants. They are keyed by
// (subject, client) like persistent grants but carry the session ID they were
// given in: a grant from an earlier session never satisfies a later one.
type SessionGrantCache struct {
	cache *ttlcache.Cache[string, *domain.ConsentGrant]
}

// NewSessionGrantCache creates the cache. ttl bounds grant lifetime to the
// session lifetime; the session ID check bounds it further.
func NewSessionGrantCache(ttl time.Duration) *SessionGrantCache {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, *domain.ConsentGrant](ttl),
		ttlcache.WithDisableTouchOnHit[string, *domain.ConsentGrant](),
	)
	go cache.Start()

	return &SessionGrantCache{cache: cache}
}

// Get returns the grant for the pair if it was given in the provided session.
func (c *SessionGrantCache) Get(subject, clientID, sessionID string) (*domain.ConsentGrant, bool) {
	item := c.cache.Get(consentKey(subject, clientID))
	if item == nil {
		return nil, false
	}
	grant := item.Value()
	if grant.SessionID != sessionID {
		return nil, false
	}
	return grant, true
}

// Put stores a session-scoped grant.
func (c *SessionGrantCache) Put(grant *domain.ConsentGrant) {
	c.cache.Set(consentKey(grant.Subject, grant.ClientID), grant, ttlcache.DefaultTTL)
}

// DropSession removes every grant bound to the given session.
func (c *SessionGrantCache) DropSession(sessionID string) {
	var keys []string
	c.cache.Range(func(item *ttlcache.Item[string, *domain.ConsentGrant]) bool {
		if item.Value().SessionID == sessionID {
			keys = append(keys, item.Key())
		}
		return true
	})
	for _, k := range keys {
		c.cache.Delete(k)
	}
}
