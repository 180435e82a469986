package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/lucidauth/lucid/domain"
	"github.com/lucidauth/lucid/internal/metrics"
)

// ErrAuthenticationFailed is returned for any failed credential check. The
// reason (unknown user vs. wrong password) is deliberately not distinguished
// to callers.
var ErrAuthenticationFailed = errors.New("authentication failed")

// UserService is the credential-check capability over a user repository.
// Claims sourcing is a separate capability (domain.ProfileService) so the two
// can be backed by different stores.
type UserService struct {
	users   domain.UserRepository
	profile domain.ProfileService
	hasher  PasswordHasher
}

// NewUserService creates a new UserService instance.
func NewUserService(users domain.UserRepository, profile domain.ProfileService, hasher PasswordHasher) *UserService {
	return &UserService{users: users, profile: profile, hasher: hasher}
}

// Authenticate verifies a username/password pair and returns the subject
// identifier. Every failure path returns ErrAuthenticationFailed.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (string, error) {
	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		log.Debug().Str("username", username).Msg("authentication failed: user not found")
		metrics.LoginFailureTotal.Inc()
		return "", ErrAuthenticationFailed
	}

	if err := s.hasher.Verify(user.PasswordHash, password); err != nil {
		log.Debug().Str("username", username).Msg("authentication failed: bad password")
		metrics.LoginFailureTotal.Inc()
		return "", ErrAuthenticationFailed
	}

	metrics.LoginSuccessTotal.Inc()
	return user.ID, nil
}

// GetClaims delegates to the configured profile service.
func (s *UserService) GetClaims(ctx context.Context, subject string, scopes []string) ([]domain.Claim, error) {
	return s.profile.GetClaims(ctx, subject, scopes)
}

// ScopeClaimsProfile is the default domain.ProfileService: it reads the
// user's claims from the user repository and filters them to the claim types
// the requested scopes release. The subject claim is always included.
type ScopeClaimsProfile struct {
	users  domain.UserRepository
	scopes *ScopeService
}

// NewScopeClaimsProfile creates the default profile service.
func NewScopeClaimsProfile(users domain.UserRepository, scopes *ScopeService) *ScopeClaimsProfile {
	return &ScopeClaimsProfile{users: users, scopes: scopes}
}

// GetClaims implements domain.ProfileService.
func (p *ScopeClaimsProfile) GetClaims(ctx context.Context, subject string, scopeNames []string) ([]domain.Claim, error) {
	user, err := p.users.GetUserByID(ctx, subject)
	if err != nil {
		return nil, fmt.Errorf("failed to load user %q: %w", subject, err)
	}

	resolved, err := p.scopes.ResolveScopes(ctx, scopeNames)
	if err != nil {
		return nil, err
	}

	allowed := make(map[string]struct{})
	for _, ct := range p.scopes.ClaimTypes(resolved) {
		allowed[ct] = struct{}{}
	}

	claims := []domain.Claim{{Type: "sub", Value: user.ID}}
	for _, c := range user.Claims {
		if c.Type == "sub" {
			continue
		}
		if _, ok := allowed[c.Type]; ok {
			claims = append(claims, c)
		}
	}
	return claims, nil
}
