package domain

import "time"

// Token kinds stored in the token repository. Identity and access tokens are
// self-contained JWTs and only refresh tokens carry server-side state, but the
// repository keeps a record per issued token for revocation and introspection.
const (
	TokenKindID      = "id_token"
	TokenKindAccess  = "access_token"
	TokenKindRefresh = "refresh_token"
)

// Token is the stored record of an issued token.
type Token struct {
	ID         string    `bson:"_id" json:"id"`
	Kind       string    `bson:"token_kind" json:"token_kind"`
	TokenValue string    `bson:"token_value" json:"token_value"`
	ClientID   string    `bson:"client_id" json:"client_id"`
	Subject    string    `bson:"subject,omitempty" json:"subject,omitempty"`
	Scope      string    `bson:"scope,omitempty" json:"scope,omitempty"`
	IssuedAt   time.Time `bson:"issued_at" json:"issued_at"`
	ExpiresAt  time.Time `bson:"expires_at" json:"expires_at"`
	IsRevoked  bool      `bson:"is_revoked,omitempty" json:"is_revoked,omitempty"`
}

// Expired reports whether the token is past its expiry at now.
func (t *Token) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
