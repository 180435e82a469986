package domain

// Scope is a named bundle of claims (identity scope) or a grant of access to
// an API resource (resource scope). Scopes are immutable configuration.
type Scope struct {
	Name        string   `bson:"_id" json:"name"`
	Description string   `bson:"description,omitempty" json:"description,omitempty"`
	ClaimTypes  []string `bson:"claim_types,omitempty" json:"claim_types,omitempty"`
	Resource    string   `bson:"resource,omitempty" json:"resource,omitempty"`
}

// IsIdentity reports whether the scope releases identity claims rather than
// granting access to an API resource.
func (s Scope) IsIdentity() bool {
	return s.Resource == ""
}

// StandardScopes returns the identity scopes every deployment starts with.
// Deployments extend the set through the scope repository.
func StandardScopes() []Scope {
	return []Scope{
		{Name: "openid", Description: "Your user identifier", ClaimTypes: []string{"sub"}},
		{Name: "profile", Description: "Your user profile", ClaimTypes: []string{"name", "given_name", "family_name", "website"}},
		{Name: "email", Description: "Your email address", ClaimTypes: []string{"email", "email_verified"}},
	}
}
