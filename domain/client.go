package domain

import "time"

// GrantType enumerates the OAuth2/OIDC grant types a client may be allowed to use.
type GrantType string

const (
	GrantTypeAuthorizationCode GrantType = "authorization_code"
	GrantTypeImplicit          GrantType = "implicit"
	GrantTypeHybrid            GrantType = "hybrid"
	GrantTypeClientCredentials GrantType = "client_credentials"
	GrantTypeRefreshToken      GrantType = "refresh_token"
)

// Client represents a registered OAuth2/OIDC client application.
// Clients are immutable for the lifetime of the server once loaded.
//
//nolint:tagliatelle
type Client struct {
	ID                     string      `bson:"client_id" json:"client_id"`
	Secret                 string      `bson:"client_secret,omitempty" json:"client_secret,omitempty"`
	Name                   string      `bson:"client_name" json:"client_name,omitempty"`
	GrantTypes             []GrantType `bson:"allowed_grant_types" json:"allowed_grant_types,omitempty"`
	RedirectURIs           []string    `bson:"redirect_uris" json:"redirect_uris,omitempty"`
	PostLogoutRedirectURIs []string    `bson:"post_logout_redirect_uris,omitempty" json:"post_logout_redirect_uris,omitempty"`
	AllowedScopes          []string    `bson:"allowed_scopes" json:"allowed_scopes,omitempty"`
	RequireConsent         bool        `bson:"require_consent" json:"require_consent,omitempty"`
	RequirePKCE            bool        `bson:"require_pkce" json:"require_pkce,omitempty"`
	FrontChannelLogoutURI  string      `bson:"front_channel_logout_uri,omitempty" json:"front_channel_logout_uri,omitempty"`
	BackChannelLogoutURI   string      `bson:"back_channel_logout_uri,omitempty" json:"back_channel_logout_uri,omitempty"`
	CreatedAt              time.Time   `bson:"created_at" json:"created_at,omitempty"`
}

// IsConfidential reports whether the client can authenticate with a secret.
func (c *Client) IsConfidential() bool {
	return c.Secret != ""
}

// AllowsGrant reports whether the given grant type is registered for the client.
func (c *Client) AllowsGrant(gt GrantType) bool {
	for _, g := range c.GrantTypes {
		if g == gt {
			return true
		}
	}
	return false
}

// HasRedirectURI reports whether uri is registered for the client.
// Matching is exact, byte for byte. No prefix or normalization rules apply:
// a trailing slash, a different port or a different case all fail.
func (c *Client) HasRedirectURI(uri string) bool {
	for _, u := range c.RedirectURIs {
		if u == uri {
			return true
		}
	}
	return false
}

// HasPostLogoutRedirectURI reports whether uri is a registered post-logout
// destination. Exact match only, same as HasRedirectURI.
func (c *Client) HasPostLogoutRedirectURI(uri string) bool {
	for _, u := range c.PostLogoutRedirectURIs {
		if u == uri {
			return true
		}
	}
	return false
}

// AllowsScopes reports whether every name in scopes is in the client's
// allowed scope set.
func (c *Client) AllowsScopes(scopes []string) bool {
	for _, s := range scopes {
		if !c.AllowsScope(s) {
			return false
		}
	}
	return true
}

// AllowsScope reports whether a single scope name is allowed for the client.
func (c *Client) AllowsScope(scope string) bool {
	for _, s := range c.AllowedScopes {
		if s == scope {
			return true
		}
	}
	return false
}
