package domain

import "time"

// AuthCode is a single-use authorization code issued by the authorization
// endpoint and exchanged at the token endpoint. The code is bound to the
// client, the exact redirect URI it was issued for, and the SSO session.
type AuthCode struct {
	Code                string    `bson:"_id" json:"code"`
	ClientID            string    `bson:"client_id" json:"client_id"`
	Subject             string    `bson:"subject" json:"subject"`
	RedirectURI         string    `bson:"redirect_uri" json:"redirect_uri"`
	Scope               string    `bson:"scope" json:"scope"`
	Nonce               string    `bson:"nonce,omitempty" json:"nonce,omitempty"`
	SessionID           string    `bson:"session_id,omitempty" json:"session_id,omitempty"`
	CodeChallenge       string    `bson:"code_challenge,omitempty" json:"code_challenge,omitempty"`
	CodeChallengeMethod string    `bson:"code_challenge_method,omitempty" json:"code_challenge_method,omitempty"`
	CreatedAt           time.Time `bson:"created_at" json:"created_at"`
	ExpiresAt           time.Time `bson:"expires_at" json:"expires_at"`
	Used                bool      `bson:"used" json:"used"`
}
