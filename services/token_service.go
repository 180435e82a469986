package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/lucidauth/lucid/domain"
	"github.com/lucidauth/lucid/internal/keys"
	"github.com/lucidauth/lucid/internal/metrics"
)

var (
	// ErrTokenExpired is returned when a token is structurally valid but
	// past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrBadSignature is returned when a token's signature does not verify
	// against any published key. Because keys are held in volatile memory,
	// this can be transient after a restart; callers should treat it as
	// retryable by restarting the flow, not as proof of tampering.
	ErrBadSignature = errors.New("token signature invalid")
	// ErrTokenRevoked is returned for tokens that were explicitly revoked.
	ErrTokenRevoked = errors.New("token revoked")
)

// Claim types set by the service itself; profile claims never override them.
var reservedClaims = map[string]struct{}{
	"iss": {}, "sub": {}, "aud": {}, "exp": {}, "iat": {}, "nbf": {}, "jti": {}, "nonce": {},
}

// TokenService mints and validates identity, access and refresh tokens.
// Identity and access tokens are RS256 JWTs and validate statelessly against
// the current key snapshot; refresh tokens are opaque and carry server-side
// revocation state.
type TokenService struct {
	repo    domain.TokenRepository
	rotator *keys.Rotator
	issuer  string

	idTTL      time.Duration
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewTokenService creates a new TokenService instance.
func NewTokenService(
	repo domain.TokenRepository,
	rotator *keys.Rotator,
	issuer string,
	idTTL, accessTTL, refreshTTL time.Duration,
) *TokenService {
	return &TokenService{
		repo:       repo,
		rotator:    rotator,
		issuer:     issuer,
		idTTL:      idTTL,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// IssueIDToken mints an identity token for subject, addressed to the client.
// claims must already be filtered to the identity scopes granted; nonce is
// echoed verbatim when present to bind the token to the request.
func (s *TokenService) IssueIDToken(ctx context.Context, subject string, client *domain.Client, claims []domain.Claim, nonce string) (string, error) {
	now := time.Now()
	tokenID := uuid.NewString()
	expiresAt := now.Add(s.idTTL)

	tokenClaims := jwt.MapClaims{
		"iss": s.issuer,
		"sub": subject,
		"aud": jwt.ClaimStrings{client.ID},
		"exp": jwt.NewNumericDate(expiresAt).Unix(),
		"iat": jwt.NewNumericDate(now).Unix(),
		"nbf": jwt.NewNumericDate(now).Unix(),
		"jti": tokenID,
	}
	if nonce != "" {
		tokenClaims["nonce"] = nonce
	}
	for _, c := range claims {
		if _, reserved := reservedClaims[c.Type]; reserved {
			continue
		}
		tokenClaims[c.Type] = c.Value
	}

	signed, err := s.sign(tokenClaims)
	if err != nil {
		return "", fmt.Errorf("failed to sign identity token: %w", err)
	}

	record := &domain.Token{
		ID:         tokenID,
		Kind:       domain.TokenKindID,
		TokenValue: signed,
		ClientID:   client.ID,
		Subject:    subject,
		IssuedAt:   now,
		ExpiresAt:  expiresAt,
	}
	if err := s.repo.StoreToken(ctx, record); err != nil {
		return "", fmt.Errorf("failed to store identity token: %w", err)
	}

	metrics.TokensIssuedTotal.WithLabelValues(domain.TokenKindID).Inc()
	return signed, nil
}

// IssueAccessToken mints an access token scoped to the given scope names,
// with the API resources behind them as audience. With no resource scopes the
// issuer itself is the audience (userinfo access).
func (s *TokenService) IssueAccessToken(ctx context.Context, subject string, client *domain.Client, scopes []string, audience []string) (string, error) {
	now := time.Now()
	tokenID := uuid.NewString()
	expiresAt := now.Add(s.accessTTL)

	if len(audience) == 0 {
		audience = []string{s.issuer}
	}

	tokenClaims := jwt.MapClaims{
		"iss":       s.issuer,
		"sub":       subject,
		"aud":       jwt.ClaimStrings(audience),
		"client_id": client.ID,
		"scope":     strings.Join(scopes, " "),
		"exp":       jwt.NewNumericDate(expiresAt).Unix(),
		"iat":       jwt.NewNumericDate(now).Unix(),
		"nbf":       jwt.NewNumericDate(now).Unix(),
		"jti":       tokenID,
	}

	signed, err := s.sign(tokenClaims)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}

	record := &domain.Token{
		ID:         tokenID,
		Kind:       domain.TokenKindAccess,
		TokenValue: signed,
		ClientID:   client.ID,
		Subject:    subject,
		Scope:      strings.Join(scopes, " "),
		IssuedAt:   now,
		ExpiresAt:  expiresAt,
	}
	if err := s.repo.StoreToken(ctx, record); err != nil {
		return "", fmt.Errorf("failed to store access token: %w", err)
	}

	metrics.TokensIssuedTotal.WithLabelValues(domain.TokenKindAccess).Inc()
	return signed, nil
}

// IssueRefreshToken mints an opaque refresh token. Any previously issued
// refresh tokens for the (subject, client) pair are revoked first so only one
// chain is ever active.
func (s *TokenService) IssueRefreshToken(ctx context.Context, subject string, client *domain.Client, scopes []string) (string, error) {
	if err := s.repo.RevokeRefreshChain(ctx, subject, client.ID); err != nil {
		return "", fmt.Errorf("failed to revoke previous refresh chain: %w", err)
	}

	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate refresh token: %w", err)
	}
	value := base64.RawURLEncoding.EncodeToString(b)

	now := time.Now()
	record := &domain.Token{
		ID:         uuid.NewString(),
		Kind:       domain.TokenKindRefresh,
		TokenValue: value,
		ClientID:   client.ID,
		Subject:    subject,
		Scope:      strings.Join(scopes, " "),
		IssuedAt:   now,
		ExpiresAt:  now.Add(s.refreshTTL),
	}
	if err := s.repo.StoreToken(ctx, record); err != nil {
		return "", fmt.Errorf("failed to store refresh token: %w", err)
	}

	metrics.TokensIssuedTotal.WithLabelValues(domain.TokenKindRefresh).Inc()
	return value, nil
}

// Validate verifies a signed token against the current key snapshot and the
// revocation store, returning its claims. Validation is a pure function of
// the token and the snapshot, safe to call from any goroutine.
func (s *TokenService) Validate(ctx context.Context, tokenValue string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenValue, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		pub, ok := s.rotator.PublicKey(kid)
		if !ok {
			return nil, fmt.Errorf("unknown signing key %q", kid)
		}
		return pub, nil
	}, jwt.WithValidMethods([]string{"RS256"}), jwt.WithIssuer(s.issuer))
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		default:
			return nil, ErrBadSignature
		}
	}

	// Signature and expiry are fine; the only remaining question is
	// explicit revocation.
	record, err := s.repo.GetToken(ctx, tokenValue)
	if err == nil && record.IsRevoked {
		return nil, ErrTokenRevoked
	}

	return claims, nil
}

// ValidateRefreshToken checks an opaque refresh token for the given client
// and returns its stored record.
func (s *TokenService) ValidateRefreshToken(ctx context.Context, tokenValue, clientID string) (*domain.Token, error) {
	record, err := s.repo.GetToken(ctx, tokenValue)
	if err != nil {
		return nil, err
	}
	if record.Kind != domain.TokenKindRefresh || record.ClientID != clientID {
		return nil, domain.ErrTokenNotFound
	}
	if record.IsRevoked {
		return nil, ErrTokenRevoked
	}
	if record.Expired(time.Now()) {
		return nil, ErrTokenExpired
	}
	return record, nil
}

// RevokeToken marks a token revoked. Unknown tokens are not an error per
// RFC 7009 semantics; the caller decides how to respond.
func (s *TokenService) RevokeToken(ctx context.Context, tokenValue string) error {
	err := s.repo.RevokeToken(ctx, tokenValue)
	if errors.Is(err, domain.ErrTokenNotFound) {
		log.Debug().Msg("revocation requested for unknown token")
		return nil
	}
	return err
}

func (s *TokenService) sign(claims jwt.MapClaims) (string, error) {
	kid, private := s.rotator.Current()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	return token.SignedString(private)
}
