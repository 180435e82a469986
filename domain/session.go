package domain

import "time"

// Session is the central single-sign-on session for one browser. It is
// independent of any single client: every client that completes an
// authorization during the session is recorded in Clients so that logout can
// fan out to all of them.
//
// There is exactly one authoritative copy per session ID; all mutation goes
// through the SessionStore, one writer per key.
type Session struct {
	ID              string    `bson:"_id" json:"id"`
	Subject         string    `bson:"subject" json:"subject"`
	AuthenticatedAt time.Time `bson:"authenticated_at" json:"authenticated_at"`
	ExpiresAt       time.Time `bson:"expires_at" json:"expires_at"`
	Clients         []string  `bson:"clients,omitempty" json:"clients,omitempty"`
}

// Expired reports whether the session has passed its idle deadline at now.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// HasClient reports whether clientID already participates in the session.
func (s *Session) HasClient(clientID string) bool {
	for _, c := range s.Clients {
		if c == clientID {
			return true
		}
	}
	return false
}
