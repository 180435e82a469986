package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/lucidauth/lucid/domain"
)

// MemoryCodeStore implements domain.AuthCodeStore using ttlcache. Codes are
// short-lived and single-use; expiry eviction doubles as cleanup.
type MemoryCodeStore struct {
	mu    sync.Mutex
	cache *ttlcache.Cache[string, *domain.AuthCode]
}

// NewMemoryCodeStore creates an in-memory authorization code store.
func NewMemoryCodeStore() *MemoryCodeStore {
	cache := ttlcache.New(
		ttlcache.WithDisableTouchOnHit[string, *domain.AuthCode](),
	)
	go cache.Start()

	return &MemoryCodeStore{cache: cache}
}

// SaveCode implements domain.AuthCodeStore.
func (s *MemoryCodeStore) SaveCode(_ context.Context, code *domain.AuthCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *code
	s.cache.Set(HashToken(code.Code), &stored, time.Until(code.ExpiresAt))
	return nil
}

// GetCode implements domain.AuthCodeStore. The returned record is a copy;
// mutating it does not affect the stored code.
func (s *MemoryCodeStore) GetCode(_ context.Context, code string) (*domain.AuthCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.cache.Get(HashToken(code))
	if item == nil {
		return nil, domain.ErrAuthCodeNotFound
	}
	found := *item.Value()
	return &found, nil
}

// MarkUsed implements domain.AuthCodeStore. The test-and-set runs under the
// store lock so exactly one of any concurrent callers observes success;
// the rest get domain.ErrAuthCodeUsed.
func (s *MemoryCodeStore) MarkUsed(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.cache.Get(HashToken(code))
	if item == nil {
		return domain.ErrAuthCodeNotFound
	}
	if item.Value().Used {
		return domain.ErrAuthCodeUsed
	}
	item.Value().Used = true
	return nil
}
