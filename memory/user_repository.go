package memory

import (
	"context"
	"sync"

	"github.com/lucidauth/lucid/domain"
)

// UserRepository is the in-memory user store.
type UserRepository struct {
	mu         sync.RWMutex
	byID       map[string]*domain.User
	byUsername map[string]*domain.User
}

// NewUserRepository creates a user store holding the given users.
func NewUserRepository(users ...*domain.User) *UserRepository {
	r := &UserRepository{
		byID:       make(map[string]*domain.User, len(users)),
		byUsername: make(map[string]*domain.User, len(users)),
	}
	for _, u := range users {
		r.byID[u.ID] = u
		r.byUsername[u.Username] = u
	}
	return r
}

// GetUserByUsername implements domain.UserRepository.
func (r *UserRepository) GetUserByUsername(_ context.Context, username string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.byUsername[username]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return user, nil
}

// GetUserByID implements domain.UserRepository.
func (r *UserRepository) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return user, nil
}
