package domain

import "time"

// Claim is a typed fact about a subject, e.g. {Type: "name", Value: "Alice"}.
type Claim struct {
	Type  string `bson:"type" json:"type"`
	Value string `bson:"value" json:"value"`
}

// User represents an end user known to the user store. The ID is the stable
// subject identifier carried in every token issued for the user.
type User struct {
	ID           string     `bson:"_id" json:"id"`
	Username     string     `bson:"username,unique" json:"username"`
	PasswordHash string     `bson:"password_hash" json:"-"`
	Claims       []Claim    `bson:"claims,omitempty" json:"claims,omitempty"`
	CreatedAt    time.Time  `bson:"created_at" json:"created_at,omitempty"`
	LastLoginAt  *time.Time `bson:"last_login_at,omitempty" json:"last_login_at,omitempty"`
}

// ClaimValue returns the first claim value of the given type, or "".
func (u *User) ClaimValue(claimType string) string {
	for _, c := range u.Claims {
		if c.Type == claimType {
			return c.Value
		}
	}
	return ""
}
