package domain

import "time"

// ConsentGrant records a user's decision to let a client receive a set of
// scopes. A non-persistent grant is bound to the SSO session it was given in
// and dies with it; a persistent grant survives logout until revoked.
type ConsentGrant struct {
	Subject    string    `bson:"subject" json:"subject"`
	ClientID   string    `bson:"client_id" json:"client_id"`
	Scopes     []string  `bson:"scopes" json:"scopes"`
	Persistent bool      `bson:"persistent" json:"persistent"`
	SessionID  string    `bson:"session_id,omitempty" json:"session_id,omitempty"`
	GrantedAt  time.Time `bson:"granted_at" json:"granted_at"`
	ExpiresAt  time.Time `bson:"expires_at,omitempty" json:"expires_at,omitempty"`
}

// Covers reports whether the grant includes every requested scope.
func (g *ConsentGrant) Covers(scopes []string) bool {
	for _, want := range scopes {
		found := false
		for _, have := range g.Scopes {
			if have == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
