package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lucidauth/lucid/cache"
	"github.com/lucidauth/lucid/domain"
	"github.com/lucidauth/lucid/internal/metrics"
)

// ConsentService records and recalls per-user, per-client grant decisions.
// Persistent grants live in the consent store and survive logout; session
// grants live in an in-memory cache bound to the SSO session.
type ConsentService struct {
	persistent domain.ConsentStore
	session    *cache.SessionGrantCache
	grantTTL   time.Duration
}

// NewConsentService creates a new ConsentService instance. grantTTL bounds
// persistent grants; zero means they never expire on their own.
func NewConsentService(persistent domain.ConsentStore, session *cache.SessionGrantCache, grantTTL time.Duration) *ConsentService {
	return &ConsentService{persistent: persistent, session: session, grantTTL: grantTTL}
}

// GetGrant returns the grant covering the (subject, client) pair, checking
// session-scoped grants for the given session first, then persistent ones.
func (s *ConsentService) GetGrant(ctx context.Context, subject, clientID, sessionID string) (*domain.ConsentGrant, error) {
	if sessionID != "" {
		if grant, ok := s.session.Get(subject, clientID, sessionID); ok {
			return grant, nil
		}
	}

	grant, err := s.persistent.GetGrant(ctx, subject, clientID)
	if err != nil {
		if errors.Is(err, domain.ErrConsentNotFound) {
			return nil, domain.ErrConsentNotFound
		}
		return nil, fmt.Errorf("failed to read consent grant: %w", err)
	}
	return grant, nil
}

// RecordGrant stores the user's decision. A persisted grant is re-checked,
// not re-requested, on future logins until revoked; a session grant dies with
// sessionID.
func (s *ConsentService) RecordGrant(ctx context.Context, subject, clientID string, scopes []string, persist bool, sessionID string) error {
	grant := &domain.ConsentGrant{
		Subject:    subject,
		ClientID:   clientID,
		Scopes:     scopes,
		Persistent: persist,
		GrantedAt:  time.Now(),
	}

	if !persist {
		grant.SessionID = sessionID
		s.session.Put(grant)
		metrics.ConsentGrantedTotal.Inc()
		return nil
	}

	if s.grantTTL > 0 {
		grant.ExpiresAt = grant.GrantedAt.Add(s.grantTTL)
	}
	if err := s.persistent.SaveGrant(ctx, grant); err != nil {
		return fmt.Errorf("failed to save consent grant: %w", err)
	}
	metrics.ConsentGrantedTotal.Inc()
	return nil
}

// RevokeGrant removes the persistent grant for the pair. Session grants
// disappear with their session.
func (s *ConsentService) RevokeGrant(ctx context.Context, subject, clientID string) error {
	if err := s.persistent.DeleteGrant(ctx, subject, clientID); err != nil {
		return fmt.Errorf("failed to revoke consent grant: %w", err)
	}
	log.Info().Str("subject", subject).Str("client_id", clientID).Msg("consent grant revoked")
	return nil
}

// DropSession discards every session-scoped grant bound to sessionID. Called
// on logout.
func (s *ConsentService) DropSession(sessionID string) {
	s.session.DropSession(sessionID)
}
