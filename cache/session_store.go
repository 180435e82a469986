package cache

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/lucidauth/lucid/domain"
)

// MemorySessionStore implements domain.SessionStore using ttlcache. Entries
// expire with the session itself, so abandoned sessions clean up without a
// reaper.
type MemorySessionStore struct {
	cache *ttlcache.Cache[string, *domain.Session]
}

// NewMemorySessionStore creates an in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	cache := ttlcache.New(
		ttlcache.WithDisableTouchOnHit[string, *domain.Session](),
	)
	go cache.Start()

	return &MemorySessionStore{cache: cache}
}

// Save implements domain.SessionStore.
func (s *MemorySessionStore) Save(_ context.Context, session *domain.Session) error {
	s.cache.Set(session.ID, session, time.Until(session.ExpiresAt))
	return nil
}

// Get implements domain.SessionStore. Expired sessions read as not found.
func (s *MemorySessionStore) Get(_ context.Context, sessionID string) (*domain.Session, error) {
	item := s.cache.Get(sessionID)
	if item == nil {
		return nil, domain.ErrSessionNotFound
	}
	session := item.Value()
	if session.Expired(time.Now()) {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// Delete implements domain.SessionStore.
func (s *MemorySessionStore) Delete(_ context.Context, sessionID string) error {
	s.cache.Delete(sessionID)
	return nil
}

// Count returns the number of live sessions.
func (s *MemorySessionStore) Count() int {
	return s.cache.Len()
}
