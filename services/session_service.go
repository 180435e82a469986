package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/lucidauth/lucid/domain"
	"github.com/lucidauth/lucid/internal/metrics"
)

// SessionService manages the central SSO session shared by every client the
// browser signs in to. An expired session is reported the same as a missing
// one: the caller re-triggers login, it is never an error.
type SessionService struct {
	store domain.SessionStore
	ttl   time.Duration

	// mu serializes read-modify-write cycles so each session key has a
	// single writer. The store itself only does whole-document swaps.
	mu sync.Mutex
}

// NewSessionService creates a new SessionService instance.
func NewSessionService(store domain.SessionStore, ttl time.Duration) *SessionService {
	return &SessionService{store: store, ttl: ttl}
}

// Establish creates a new session for the subject after a successful login.
func (s *SessionService) Establish(ctx context.Context, subject string) (*domain.Session, error) {
	now := time.Now()
	session := &domain.Session{
		ID:              uuid.NewString(),
		Subject:         subject,
		AuthenticatedAt: now,
		ExpiresAt:       now.Add(s.ttl),
	}
	if err := s.store.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to establish session: %w", err)
	}
	metrics.ActiveSessionsGauge.Inc()
	return session, nil
}

// Get returns the session if it exists and has not expired, otherwise
// domain.ErrSessionNotFound.
func (s *SessionService) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	if sessionID == "" {
		return nil, domain.ErrSessionNotFound
	}
	return s.store.Get(ctx, sessionID)
}

// IsValid reports whether the session exists and has not expired.
func (s *SessionService) IsValid(ctx context.Context, sessionID string) bool {
	_, err := s.Get(ctx, sessionID)
	return err == nil
}

// clientAppender is an optional SessionStore upgrade. Shared stores implement
// it to record participation with a compare-and-set on the store side, where
// a process-local lock cannot protect against writers in other instances.
type clientAppender interface {
	AppendClient(ctx context.Context, sessionID, clientID string) error
}

// Touch records a client's participation in the session. Touching twice with
// the same client is a no-op; the participating-client set is a set.
func (s *SessionService) Touch(ctx context.Context, sessionID, clientID string) error {
	if appender, ok := s.store.(clientAppender); ok {
		return appender.AppendClient(ctx, sessionID, clientID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.HasClient(clientID) {
		return nil
	}
	session.Clients = append(session.Clients, clientID)
	return s.store.Save(ctx, session)
}

// Terminate destroys the session and returns the clients that participated
// in it, the fan-out list for logout notification.
func (s *SessionService) Terminate(ctx context.Context, sessionID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.store.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			// Already gone; nothing to notify.
			return nil, nil
		}
		return nil, err
	}

	if err := s.store.Delete(ctx, sessionID); err != nil {
		return nil, fmt.Errorf("failed to delete session: %w", err)
	}
	metrics.ActiveSessionsGauge.Dec()
	log.Info().Str("session_id", sessionID).Int("clients", len(session.Clients)).Msg("session terminated")
	return session.Clients, nil
}
