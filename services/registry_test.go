package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucidauth/lucid/domain"
	"github.com/lucidauth/lucid/memory"
)

func TestValidateRedirectURIExactMatch(t *testing.T) {
	svc := NewClientService(memory.NewClientRepository())
	client := &domain.Client{
		ID:           "mvc",
		RedirectURIs: []string{"http://localhost:5002/signin-oidc"},
	}

	assert.NoError(t, svc.ValidateRedirectURI(client, "http://localhost:5002/signin-oidc"))

	for _, uri := range []string{
		"",
		"http://localhost:5002/signin-oidc/",
		"http://localhost:5002/Signin-Oidc",
		"http://localhost:5002",
		"http://localhost:5002/signin-oidc?extra=1",
	} {
		assert.Error(t, svc.ValidateRedirectURI(client, uri), "uri %q must not match", uri)
	}
}

func TestValidateScopesAgainstRegistration(t *testing.T) {
	svc := NewClientService(memory.NewClientRepository())
	client := &domain.Client{ID: "mvc", AllowedScopes: []string{"openid", "profile"}}

	assert.NoError(t, svc.ValidateScopes(client, []string{"openid"}))
	assert.NoError(t, svc.ValidateScopes(client, []string{"openid", "profile"}))
	assert.NoError(t, svc.ValidateScopes(client, nil))
	assert.Error(t, svc.ValidateScopes(client, []string{"openid", "email"}))
}

func TestAuthenticateClient(t *testing.T) {
	ctx := context.Background()
	svc := NewClientService(memory.NewClientRepository(
		&domain.Client{ID: "confidential", Secret: "secret"},
		&domain.Client{ID: "public"},
	))

	t.Run("confidential client needs its secret", func(t *testing.T) {
		client, err := svc.AuthenticateClient(ctx, "confidential", "secret")
		require.NoError(t, err)
		assert.Equal(t, "confidential", client.ID)

		_, err = svc.AuthenticateClient(ctx, "confidential", "wrong")
		assert.Error(t, err)
		_, err = svc.AuthenticateClient(ctx, "confidential", "")
		assert.Error(t, err)
	})

	t.Run("public client authenticates by ID alone", func(t *testing.T) {
		client, err := svc.AuthenticateClient(ctx, "public", "")
		require.NoError(t, err)
		assert.False(t, client.IsConfidential())
	})

	t.Run("unknown client", func(t *testing.T) {
		_, err := svc.AuthenticateClient(ctx, "nope", "secret")
		assert.ErrorIs(t, err, domain.ErrClientNotFound)
	})
}

func TestScopeServiceResolution(t *testing.T) {
	ctx := context.Background()
	svc := NewScopeService(memory.NewScopeRepository(append(domain.StandardScopes(),
		domain.Scope{Name: "api1", Resource: "https://api.test"},
		domain.Scope{Name: "api2", Resource: "https://api.test"},
	)...))

	scopes, err := svc.ResolveScopes(ctx, []string{"openid", "profile", "api1", "api2"})
	require.NoError(t, err)
	require.Len(t, scopes, 4)

	_, err = svc.ResolveScopes(ctx, []string{"openid", "nonsense"})
	assert.ErrorIs(t, err, domain.ErrUnknownScope)

	claimTypes := svc.ClaimTypes(scopes)
	assert.Contains(t, claimTypes, "sub")
	assert.Contains(t, claimTypes, "name")

	// Two scopes behind one API yield one audience entry.
	assert.Equal(t, []string{"https://api.test"}, svc.Resources(scopes))

	names, err := svc.ListScopeNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"openid", "profile", "email", "api1", "api2"}, names)
}
