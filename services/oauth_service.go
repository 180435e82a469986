package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lucidauth/lucid/domain"
	serrors "github.com/lucidauth/lucid/errors"
)

// TokenResponse is the token endpoint's success payload.
//
//nolint:tagliatelle
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// OAuthService implements the token endpoint grants: exchanging an
// authorization code, refreshing, and client credentials.
type OAuthService struct {
	clients   *ClientService
	scopes    *ScopeService
	users     *UserService
	tokens    *TokenService
	codes     domain.AuthCodeStore
	accessTTL time.Duration
}

// NewOAuthService creates a new OAuthService instance.
func NewOAuthService(
	clients *ClientService,
	scopes *ScopeService,
	users *UserService,
	tokens *TokenService,
	codes domain.AuthCodeStore,
	accessTTL time.Duration,
) *OAuthService {
	return &OAuthService{
		clients:   clients,
		scopes:    scopes,
		users:     users,
		tokens:    tokens,
		codes:     codes,
		accessTTL: accessTTL,
	}
}

// AuthenticateClient verifies client credentials for endpoints that require
// client authentication outside a grant (revocation).
func (s *OAuthService) AuthenticateClient(ctx context.Context, clientID, clientSecret string) (*domain.Client, error) {
	return s.clients.AuthenticateClient(ctx, clientID, clientSecret)
}

// ExchangeAuthorizationCode implements the authorization_code grant: it
// validates the code against the client and the exact redirect URI it was
// issued for, enforces single use and PKCE, and mints the token set.
func (s *OAuthService) ExchangeAuthorizationCode(ctx context.Context, clientID, clientSecret, code, redirectURI, codeVerifier string) (*TokenResponse, error) {
	client, err := s.clients.AuthenticateClient(ctx, clientID, clientSecret)
	if err != nil {
		return nil, serrors.NewInvalidClient("client authentication failed")
	}

	authCode, err := s.codes.GetCode(ctx, code)
	if err != nil {
		return nil, serrors.NewInvalidGrant("invalid authorization code")
	}
	if authCode.ClientID != client.ID {
		return nil, serrors.NewInvalidGrant("authorization code was issued to another client")
	}
	if time.Now().After(authCode.ExpiresAt) {
		return nil, serrors.NewInvalidGrant("authorization code expired")
	}
	if authCode.RedirectURI != redirectURI {
		return nil, serrors.NewInvalidGrant("redirect_uri does not match the authorization request")
	}
	if authCode.CodeChallenge != "" {
		if codeVerifier == "" {
			return nil, serrors.NewInvalidPKCE("code_verifier is required")
		}
		if !ValidatePKCEChallenge(authCode.CodeChallenge, authCode.CodeChallengeMethod, codeVerifier) {
			return nil, serrors.NewInvalidPKCE("code_verifier does not match")
		}
	}

	// MarkUsed is the atomic test-and-set: of any concurrent exchanges of
	// the same code, exactly one passes this point.
	if err := s.codes.MarkUsed(ctx, code); err != nil {
		if errors.Is(err, domain.ErrAuthCodeUsed) || errors.Is(err, domain.ErrAuthCodeNotFound) {
			return nil, serrors.NewInvalidGrant("authorization code already used")
		}
		return nil, serrors.NewServerError("failed to consume authorization code")
	}

	scopes := strings.Fields(authCode.Scope)
	return s.mintForSubject(ctx, client, authCode.Subject, scopes, authCode.Nonce)
}

// RefreshGrant implements the refresh_token grant. The presented token is
// revoked and a new one issued, so only one chain stays active per
// (subject, client).
func (s *OAuthService) RefreshGrant(ctx context.Context, clientID, clientSecret, refreshToken string) (*TokenResponse, error) {
	client, err := s.clients.AuthenticateClient(ctx, clientID, clientSecret)
	if err != nil {
		return nil, serrors.NewInvalidClient("client authentication failed")
	}
	if !client.AllowsGrant(domain.GrantTypeRefreshToken) {
		return nil, serrors.NewUnauthorizedClient("client is not allowed to refresh tokens")
	}

	record, err := s.tokens.ValidateRefreshToken(ctx, refreshToken, client.ID)
	if err != nil {
		return nil, serrors.NewInvalidGrant("invalid refresh token")
	}

	scopes := strings.Fields(record.Scope)
	return s.mintForSubject(ctx, client, record.Subject, scopes, "")
}

// ClientCredentialsGrant implements the client_credentials grant: a
// machine-to-machine access token with no user subject involved.
func (s *OAuthService) ClientCredentialsGrant(ctx context.Context, clientID, clientSecret, scope string) (*TokenResponse, error) {
	client, err := s.clients.AuthenticateClient(ctx, clientID, clientSecret)
	if err != nil {
		return nil, serrors.NewInvalidClient("client authentication failed")
	}
	if !client.IsConfidential() {
		return nil, serrors.NewUnauthorizedClient("client_credentials requires a confidential client")
	}
	if !client.AllowsGrant(domain.GrantTypeClientCredentials) {
		return nil, serrors.NewUnauthorizedClient("client is not allowed to use client_credentials")
	}

	scopes := strings.Fields(scope)
	if len(scopes) == 0 {
		scopes = client.AllowedScopes
	}
	if err := s.clients.ValidateScopes(client, scopes); err != nil {
		return nil, serrors.NewInvalidScope("requested scope exceeds client registration")
	}
	resolved, err := s.scopes.ResolveScopes(ctx, scopes)
	if err != nil {
		return nil, serrors.NewInvalidScope("unknown scope requested")
	}

	access, err := s.tokens.IssueAccessToken(ctx, client.ID, client, scopes, s.scopes.Resources(resolved))
	if err != nil {
		log.Error().Err(err).Str("client_id", client.ID).Msg("failed to issue client credentials token")
		return nil, serrors.NewServerError("failed to issue access token")
	}

	return &TokenResponse{
		AccessToken: access,
		TokenType:   "Bearer",
		ExpiresIn:   int(s.accessTTL.Seconds()),
		Scope:       strings.Join(scopes, " "),
	}, nil
}

// UserInfo validates an access token and returns the claims its scopes
// release for the subject.
func (s *OAuthService) UserInfo(ctx context.Context, accessToken string) (map[string]any, error) {
	claims, err := s.tokens.Validate(ctx, accessToken)
	if err != nil {
		return nil, serrors.NewInvalidGrant("invalid access token")
	}

	subject, _ := claims["sub"].(string)
	scope, _ := claims["scope"].(string)
	if subject == "" {
		return nil, serrors.NewInvalidGrant("access token carries no subject")
	}

	userClaims, err := s.users.GetClaims(ctx, subject, strings.Fields(scope))
	if err != nil {
		return nil, serrors.NewServerError("failed to load claims")
	}

	info := make(map[string]any, len(userClaims))
	for _, c := range userClaims {
		info[c.Type] = c.Value
	}
	return info, nil
}

func (s *OAuthService) mintForSubject(ctx context.Context, client *domain.Client, subject string, scopes []string, nonce string) (*TokenResponse, error) {
	resolved, err := s.scopes.ResolveScopes(ctx, scopes)
	if err != nil {
		return nil, serrors.NewInvalidScope("unknown scope on grant")
	}

	access, err := s.tokens.IssueAccessToken(ctx, subject, client, scopes, s.scopes.Resources(resolved))
	if err != nil {
		log.Error().Err(err).Str("client_id", client.ID).Msg("failed to issue access token")
		return nil, serrors.NewServerError("failed to issue access token")
	}

	resp := &TokenResponse{
		AccessToken: access,
		TokenType:   "Bearer",
		ExpiresIn:   int(s.accessTTL.Seconds()),
		Scope:       strings.Join(scopes, " "),
	}

	for _, sc := range scopes {
		if sc == "openid" {
			claims, err := s.users.GetClaims(ctx, subject, scopes)
			if err != nil {
				return nil, serrors.NewServerError("failed to load claims")
			}
			idToken, err := s.tokens.IssueIDToken(ctx, subject, client, claims, nonce)
			if err != nil {
				log.Error().Err(err).Str("client_id", client.ID).Msg("failed to issue identity token")
				return nil, serrors.NewServerError("failed to issue identity token")
			}
			resp.IDToken = idToken
			break
		}
	}

	if client.AllowsGrant(domain.GrantTypeRefreshToken) {
		refresh, err := s.tokens.IssueRefreshToken(ctx, subject, client, scopes)
		if err != nil {
			log.Error().Err(err).Str("client_id", client.ID).Msg("failed to issue refresh token")
			return nil, serrors.NewServerError("failed to issue refresh token")
		}
		resp.RefreshToken = refresh
	}

	return resp, nil
}
