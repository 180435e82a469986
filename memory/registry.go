package memory

import (
	"context"
	"sync"

	"github.com/lucidauth/lucid/domain"
)

// ClientRepository is the in-memory client registry. It is seeded once at
// startup and read-only afterwards, matching the registry contract.
type ClientRepository struct {
	mu      sync.RWMutex
	clients map[string]*domain.Client
}

// NewClientRepository creates a registry holding the given clients.
func NewClientRepository(clients ...*domain.Client) *ClientRepository {
	m := make(map[string]*domain.Client, len(clients))
	for _, c := range clients {
		m[c.ID] = c
	}
	return &ClientRepository{clients: m}
}

// GetClient implements domain.ClientRepository.
func (r *ClientRepository) GetClient(_ context.Context, clientID string) (*domain.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	client, ok := r.clients[clientID]
	if !ok {
		return nil, domain.ErrClientNotFound
	}
	return client, nil
}

// ScopeRepository is the in-memory scope registry.
type ScopeRepository struct {
	mu     sync.RWMutex
	scopes map[string]domain.Scope
	order  []string
}

// NewScopeRepository creates a registry holding the given scopes.
func NewScopeRepository(scopes ...domain.Scope) *ScopeRepository {
	r := &ScopeRepository{scopes: make(map[string]domain.Scope, len(scopes))}
	for _, s := range scopes {
		r.scopes[s.Name] = s
		r.order = append(r.order, s.Name)
	}
	return r
}

// GetScope implements domain.ScopeRepository.
func (r *ScopeRepository) GetScope(_ context.Context, name string) (*domain.Scope, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	scope, ok := r.scopes[name]
	if !ok {
		return nil, domain.ErrUnknownScope
	}
	return &scope, nil
}

// ListScopes implements domain.ScopeRepository.
func (r *ScopeRepository) ListScopes(_ context.Context) ([]domain.Scope, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Scope, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.scopes[name])
	}
	return out, nil
}
