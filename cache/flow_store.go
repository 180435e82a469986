package cache

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/lucidauth/lucid/internal/oidcflow"
)

// MemoryFlowStore implements oidcflow.FlowStore using ttlcache. A flow left
// suspended past its deadline is evicted, which is exactly the abandoned-flow
// policy: no background retry, the next request starts over.
type MemoryFlowStore struct {
	cache *ttlcache.Cache[string, *oidcflow.Flow]
}

// NewMemoryFlowStore creates an in-memory flow store.
func NewMemoryFlowStore() *MemoryFlowStore {
	cache := ttlcache.New(
		ttlcache.WithDisableTouchOnHit[string, *oidcflow.Flow](),
	)
	go cache.Start()

	return &MemoryFlowStore{cache: cache}
}

// StoreFlow implements oidcflow.FlowStore.
func (s *MemoryFlowStore) StoreFlow(_ context.Context, flow *oidcflow.Flow) error {
	s.cache.Set(flow.ID, flow, time.Until(flow.ExpiresAt))
	return nil
}

// GetFlow implements oidcflow.FlowStore.
func (s *MemoryFlowStore) GetFlow(_ context.Context, flowToken string) (*oidcflow.Flow, error) {
	item := s.cache.Get(flowToken)
	if item == nil {
		return nil, oidcflow.ErrFlowNotFound
	}
	flow := item.Value()
	if flow.Expired(time.Now()) {
		return nil, oidcflow.ErrFlowExpired
	}
	return flow, nil
}

// UpdateFlow implements oidcflow.FlowStore.
func (s *MemoryFlowStore) UpdateFlow(_ context.Context, flow *oidcflow.Flow) error {
	if s.cache.Get(flow.ID) == nil {
		return oidcflow.ErrFlowNotFound
	}
	s.cache.Set(flow.ID, flow, time.Until(flow.ExpiresAt))
	return nil
}

// DeleteFlow implements oidcflow.FlowStore.
func (s *MemoryFlowStore) DeleteFlow(_ context.Context, flowToken string) error {
	s.cache.Delete(flowToken)
	return nil
}
