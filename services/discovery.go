package services

import (
	"context"
)

// DiscoveryDocument is the read-only provider metadata served at
// /.well-known/openid-configuration.
//
//nolint:tagliatelle
type DiscoveryDocument struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	UserInfoEndpoint                  string   `json:"userinfo_endpoint"`
	EndSessionEndpoint                string   `json:"end_session_endpoint"`
	RevocationEndpoint                string   `json:"revocation_endpoint"`
	JWKSUri                           string   `json:"jwks_uri"`
	ScopesSupported                   []string `json:"scopes_supported"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	SubjectTypesSupported             []string `json:"subject_types_supported"`
	IDTokenSigningAlgValuesSupported  []string `json:"id_token_signing_alg_values_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
	ClaimsParameterSupported          bool     `json:"claims_parameter_supported"`
}

// DiscoveryService assembles the provider metadata from the scope registry
// and the issuer configuration.
type DiscoveryService struct {
	issuer string
	scopes *ScopeService
}

// NewDiscoveryService creates a new DiscoveryService instance.
func NewDiscoveryService(issuer string, scopes *ScopeService) *DiscoveryService {
	return &DiscoveryService{issuer: issuer, scopes: scopes}
}

// Document builds the discovery document for the current registry state.
func (s *DiscoveryService) Document(ctx context.Context) (*DiscoveryDocument, error) {
	scopeNames, err := s.scopes.ListScopeNames(ctx)
	if err != nil {
		return nil, err
	}

	return &DiscoveryDocument{
		Issuer:                s.issuer,
		AuthorizationEndpoint: s.issuer + "/oauth2/authorize",
		TokenEndpoint:         s.issuer + "/oauth2/token",
		UserInfoEndpoint:      s.issuer + "/oauth2/userinfo",
		EndSessionEndpoint:    s.issuer + "/oauth2/endsession",
		RevocationEndpoint:    s.issuer + "/oauth2/revoke",
		JWKSUri:               s.issuer + "/.well-known/jwks.json",
		ScopesSupported:       scopeNames,
		ResponseTypesSupported: []string{
			"code", "id_token", "id_token token", "code id_token",
		},
		GrantTypesSupported: []string{
			"authorization_code", "implicit", "hybrid", "client_credentials", "refresh_token",
		},
		SubjectTypesSupported:            []string{"public"},
		IDTokenSigningAlgValuesSupported: []string{"RS256"},
		TokenEndpointAuthMethodsSupported: []string{
			"client_secret_basic", "client_secret_post",
		},
	}, nil
}
