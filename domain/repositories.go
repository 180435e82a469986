package domain

import "context"

// ClientRepository provides read access to registered clients. The registry
// is read-only after initialization; there is no mutation interface in the
// engine.
type ClientRepository interface {
	// GetClient returns the client with the given ID, or ErrClientNotFound.
	GetClient(ctx context.Context, clientID string) (*Client, error)
}

// ScopeRepository provides read access to registered scopes.
type ScopeRepository interface {
	// GetScope returns the scope with the given name, or ErrUnknownScope.
	GetScope(ctx context.Context, name string) (*Scope, error)
	// ListScopes returns every registered scope.
	ListScopes(ctx context.Context) ([]Scope, error)
}

// UserRepository provides read access to users for the credential-check
// capability. Claims sourcing is a separate capability, see ProfileService.
type UserRepository interface {
	// GetUserByUsername returns the user with the given username, or
	// ErrUserNotFound.
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	// GetUserByID returns the user with the given subject ID, or
	// ErrUserNotFound.
	GetUserByID(ctx context.Context, id string) (*User, error)
}

// ProfileService is the single interface an external user store must satisfy
// to plug in claims sourcing. It is deliberately decoupled from
// UserRepository so that claims can come from a different backend than the
// one that checks credentials.
type ProfileService interface {
	// GetClaims returns the claims for subject that the given scopes release.
	GetClaims(ctx context.Context, subject string, scopes []string) ([]Claim, error)
}

// SessionStore persists SSO sessions. Implementations must provide
// single-writer-per-key semantics: Save replaces the whole session document
// atomically, and Get of an expired session returns ErrSessionNotFound.
type SessionStore interface {
	Save(ctx context.Context, session *Session) error
	Get(ctx context.Context, sessionID string) (*Session, error)
	Delete(ctx context.Context, sessionID string) error
}

// ConsentStore persists consent grants, keyed by (subject, client).
type ConsentStore interface {
	// GetGrant returns the grant for the pair, or ErrConsentNotFound.
	GetGrant(ctx context.Context, subject, clientID string) (*ConsentGrant, error)
	SaveGrant(ctx context.Context, grant *ConsentGrant) error
	DeleteGrant(ctx context.Context, subject, clientID string) error
}

// TokenRepository stores issued token records for revocation checks.
type TokenRepository interface {
	StoreToken(ctx context.Context, token *Token) error
	// GetToken looks a token record up by its value, or ErrTokenNotFound.
	GetToken(ctx context.Context, tokenValue string) (*Token, error)
	// RevokeToken marks the token with the given value revoked.
	RevokeToken(ctx context.Context, tokenValue string) error
	// RevokeRefreshChain revokes every refresh token issued to the
	// (subject, client) pair. Called on refresh rotation so that only one
	// chain is ever active.
	RevokeRefreshChain(ctx context.Context, subject, clientID string) error
}

// AuthCodeStore stores pending authorization codes.
type AuthCodeStore interface {
	SaveCode(ctx context.Context, code *AuthCode) error
	// GetCode returns the stored code, or ErrAuthCodeNotFound.
	GetCode(ctx context.Context, code string) (*AuthCode, error)
	// MarkUsed consumes the code. It must be an atomic test-and-set:
	// exactly one of any concurrent callers succeeds, the rest get
	// ErrAuthCodeUsed (or ErrAuthCodeNotFound once the code expires).
	MarkUsed(ctx context.Context, code string) error
}
