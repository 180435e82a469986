package oidcflow

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"
)

// Status is the state of one authorization flow.
type Status string

const (
	StatusReceived     Status = "received"
	StatusValidated    Status = "validated"
	StatusNeedsLogin   Status = "needs_login"
	StatusNeedsConsent Status = "needs_consent"
	StatusReady        Status = "ready"
	StatusCompleted    Status = "completed"
	StatusRejected     Status = "rejected"
)

// Flow holds the validated parameters and progress of one authorization
// request across the login/consent suspensions. It is keyed by an opaque
// flow token so that any process holding the store can resume it; nothing
// about a flow lives in process memory between steps.
type Flow struct {
	ID                  string            `json:"id"`
	Status              Status            `json:"status"`
	ClientID            string            `json:"client_id"`
	RedirectURI         string            `json:"redirect_uri"`
	ResponseType        string            `json:"response_type"`
	Scopes              []string          `json:"scopes"`
	State               string            `json:"state,omitempty"`
	Nonce               string            `json:"nonce,omitempty"`
	CodeChallenge       string            `json:"code_challenge,omitempty"`
	CodeChallengeMethod string            `json:"code_challenge_method,omitempty"`
	Subject             string            `json:"subject,omitempty"`
	SessionID           string            `json:"session_id,omitempty"`
	LoginAttempts       int               `json:"login_attempts,omitempty"`
	CreatedAt           time.Time         `json:"created_at"`
	ExpiresAt           time.Time         `json:"expires_at"`
	Extra               map[string]string `json:"extra,omitempty"`
}

// Expired reports whether the flow has aged out at now. An expired flow is
// treated as abandoned and the request restarts from scratch.
func (f *Flow) Expired(now time.Time) bool {
	return now.After(f.ExpiresAt)
}

// NewFlowToken generates an opaque, unguessable flow token.
func NewFlowToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate flow token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
