package services

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucidauth/lucid/domain"
	serrors "github.com/lucidauth/lucid/errors"
)

const mvcRedirect = "http://localhost:5002/signin-oidc"

func seedCode(t *testing.T, idp *testIdP, code *domain.AuthCode) {
	t.Helper()
	now := time.Now()
	if code.CreatedAt.IsZero() {
		code.CreatedAt = now
	}
	if code.ExpiresAt.IsZero() {
		code.ExpiresAt = now.Add(time.Minute)
	}
	require.NoError(t, idp.codes.SaveCode(context.Background(), code))
}

func oauthErrCode(t *testing.T, err error) string {
	t.Helper()
	var oerr *serrors.OAuth2Error
	require.ErrorAs(t, err, &oerr)
	return oerr.Code
}

func TestExchangeAuthorizationCode(t *testing.T) {
	ctx := context.Background()
	idp := newTestIdP(t, defaultPolicy())
	seedCode(t, idp, &domain.AuthCode{
		Code:        "code-1",
		ClientID:    "mvc",
		Subject:     "1",
		RedirectURI: mvcRedirect,
		Scope:       "openid profile",
		Nonce:       "n-1",
	})

	resp, err := idp.oauth.ExchangeAuthorizationCode(ctx, "mvc", "secret", "code-1", mvcRedirect, "")
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, "openid profile", resp.Scope)
	assert.NotEmpty(t, resp.RefreshToken, "mvc holds the refresh_token grant")
	require.NotEmpty(t, resp.IDToken)

	claims, err := idp.tokens.Validate(ctx, resp.IDToken)
	require.NoError(t, err)
	assert.Equal(t, "1", claims["sub"])
	assert.Equal(t, "Alice", claims["name"])
	assert.Equal(t, "n-1", claims["nonce"], "the nonce travels from the authorization request into the id_token")
}

func TestExchangeAuthorizationCodeSingleUse(t *testing.T) {
	ctx := context.Background()
	idp := newTestIdP(t, defaultPolicy())
	seedCode(t, idp, &domain.AuthCode{
		Code: "code-1", ClientID: "mvc", Subject: "1", RedirectURI: mvcRedirect, Scope: "openid",
	})

	_, err := idp.oauth.ExchangeAuthorizationCode(ctx, "mvc", "secret", "code-1", mvcRedirect, "")
	require.NoError(t, err)

	_, err = idp.oauth.ExchangeAuthorizationCode(ctx, "mvc", "secret", "code-1", mvcRedirect, "")
	assert.Equal(t, serrors.InvalidGrant, oauthErrCode(t, err))
}

func TestExchangeAuthorizationCodeConcurrentSingleUse(t *testing.T) {
	ctx := context.Background()
	idp := newTestIdP(t, defaultPolicy())
	seedCode(t, idp, &domain.AuthCode{
		Code: "code-1", ClientID: "mvc", Subject: "1", RedirectURI: mvcRedirect, Scope: "openid",
	})

	const workers = 8
	var wg sync.WaitGroup
	var granted atomic.Int32
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := idp.oauth.ExchangeAuthorizationCode(ctx, "mvc", "secret", "code-1", mvcRedirect, "")
			if err == nil {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), granted.Load(), "a code grants a token set exactly once")
}

func TestExchangeAuthorizationCodeRejections(t *testing.T) {
	ctx := context.Background()
	idp := newTestIdP(t, defaultPolicy())
	seedCode(t, idp, &domain.AuthCode{
		Code: "code-1", ClientID: "mvc", Subject: "1", RedirectURI: mvcRedirect, Scope: "openid",
	})
	seedCode(t, idp, &domain.AuthCode{
		Code: "expired", ClientID: "mvc", Subject: "1", RedirectURI: mvcRedirect, Scope: "openid",
		CreatedAt: time.Now().Add(-2 * time.Minute), ExpiresAt: time.Now().Add(-time.Minute),
	})

	t.Run("bad client secret", func(t *testing.T) {
		_, err := idp.oauth.ExchangeAuthorizationCode(ctx, "mvc", "wrong", "code-1", mvcRedirect, "")
		assert.Equal(t, serrors.InvalidClient, oauthErrCode(t, err))
	})

	t.Run("unknown code", func(t *testing.T) {
		_, err := idp.oauth.ExchangeAuthorizationCode(ctx, "mvc", "secret", "nope", mvcRedirect, "")
		assert.Equal(t, serrors.InvalidGrant, oauthErrCode(t, err))
	})

	t.Run("code issued to another client", func(t *testing.T) {
		_, err := idp.oauth.ExchangeAuthorizationCode(ctx, "codeonly", "codeonly-secret", "code-1", mvcRedirect, "")
		assert.Equal(t, serrors.InvalidGrant, oauthErrCode(t, err))
	})

	t.Run("redirect_uri mismatch", func(t *testing.T) {
		_, err := idp.oauth.ExchangeAuthorizationCode(ctx, "mvc", "secret", "code-1", mvcRedirect+"/", "")
		assert.Equal(t, serrors.InvalidGrant, oauthErrCode(t, err))
	})

	t.Run("expired code", func(t *testing.T) {
		_, err := idp.oauth.ExchangeAuthorizationCode(ctx, "mvc", "secret", "expired", mvcRedirect, "")
		assert.Equal(t, serrors.InvalidGrant, oauthErrCode(t, err))
	})
}

func TestExchangeAuthorizationCodePKCE(t *testing.T) {
	ctx := context.Background()
	idp := newTestIdP(t, defaultPolicy())

	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	sum := sha256.Sum256([]byte(verifier))
	challenge := base64.RawURLEncoding.EncodeToString(sum[:])

	seedCode(t, idp, &domain.AuthCode{
		Code: "code-1", ClientID: "codeonly", Subject: "1",
		RedirectURI: "https://codeonly.example/callback", Scope: "openid",
		CodeChallenge: challenge, CodeChallengeMethod: "S256",
	})

	t.Run("missing verifier", func(t *testing.T) {
		_, err := idp.oauth.ExchangeAuthorizationCode(ctx, "codeonly", "codeonly-secret",
			"code-1", "https://codeonly.example/callback", "")
		assert.Equal(t, serrors.InvalidRequest, oauthErrCode(t, err))
	})

	t.Run("wrong verifier", func(t *testing.T) {
		_, err := idp.oauth.ExchangeAuthorizationCode(ctx, "codeonly", "codeonly-secret",
			"code-1", "https://codeonly.example/callback", "not-the-verifier")
		assert.Equal(t, serrors.InvalidRequest, oauthErrCode(t, err))
	})

	t.Run("correct verifier", func(t *testing.T) {
		resp, err := idp.oauth.ExchangeAuthorizationCode(ctx, "codeonly", "codeonly-secret",
			"code-1", "https://codeonly.example/callback", verifier)
		require.NoError(t, err)
		assert.NotEmpty(t, resp.AccessToken)
	})
}

func TestRefreshGrantRotatesTheChain(t *testing.T) {
	ctx := context.Background()
	idp := newTestIdP(t, defaultPolicy())
	seedCode(t, idp, &domain.AuthCode{
		Code: "code-1", ClientID: "mvc", Subject: "1", RedirectURI: mvcRedirect, Scope: "openid profile",
	})

	first, err := idp.oauth.ExchangeAuthorizationCode(ctx, "mvc", "secret", "code-1", mvcRedirect, "")
	require.NoError(t, err)
	require.NotEmpty(t, first.RefreshToken)

	second, err := idp.oauth.RefreshGrant(ctx, "mvc", "secret", first.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, second.AccessToken)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
	assert.Equal(t, "openid profile", second.Scope, "a refresh never widens the granted scopes")

	// The presented token was rotated out.
	_, err = idp.oauth.RefreshGrant(ctx, "mvc", "secret", first.RefreshToken)
	assert.Equal(t, serrors.InvalidGrant, oauthErrCode(t, err))

	_, err = idp.oauth.RefreshGrant(ctx, "mvc", "secret", second.RefreshToken)
	assert.NoError(t, err)
}

func TestRefreshGrantRequiresTheGrantType(t *testing.T) {
	ctx := context.Background()
	idp := newTestIdP(t, defaultPolicy())

	_, err := idp.oauth.RefreshGrant(ctx, "m2m", "m2m-secret", "whatever")
	assert.Equal(t, serrors.UnauthorizedClient, oauthErrCode(t, err))
}

func TestClientCredentialsGrant(t *testing.T) {
	ctx := context.Background()
	idp := newTestIdP(t, defaultPolicy())

	resp, err := idp.oauth.ClientCredentialsGrant(ctx, "m2m", "m2m-secret", "api1")
	require.NoError(t, err)
	assert.Equal(t, "api1", resp.Scope)
	assert.Empty(t, resp.IDToken, "no user, no identity token")
	assert.Empty(t, resp.RefreshToken)

	claims, err := idp.tokens.Validate(ctx, resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "m2m", claims["sub"], "the client is its own subject")
	aud, ok := claims["aud"].([]any)
	require.True(t, ok)
	assert.Equal(t, []any{"https://api.test"}, aud)
}

func TestClientCredentialsGrantDefaultsToRegisteredScopes(t *testing.T) {
	ctx := context.Background()
	idp := newTestIdP(t, defaultPolicy())

	resp, err := idp.oauth.ClientCredentialsGrant(ctx, "m2m", "m2m-secret", "")
	require.NoError(t, err)
	assert.Equal(t, "api1", resp.Scope)
}

func TestClientCredentialsGrantRejections(t *testing.T) {
	ctx := context.Background()
	idp := newTestIdP(t, defaultPolicy())

	t.Run("grant type not registered", func(t *testing.T) {
		_, err := idp.oauth.ClientCredentialsGrant(ctx, "mvc", "secret", "openid")
		assert.Equal(t, serrors.UnauthorizedClient, oauthErrCode(t, err))
	})

	t.Run("scope exceeds registration", func(t *testing.T) {
		_, err := idp.oauth.ClientCredentialsGrant(ctx, "m2m", "m2m-secret", "api1 openid")
		assert.Equal(t, serrors.InvalidScope, oauthErrCode(t, err))
	})
}

func TestUserInfo(t *testing.T) {
	ctx := context.Background()
	idp := newTestIdP(t, defaultPolicy())

	mvc, err := idp.clients.GetClient(ctx, "mvc")
	require.NoError(t, err)
	access, err := idp.tokens.IssueAccessToken(ctx, "1", mvc, []string{"openid", "profile"}, nil)
	require.NoError(t, err)

	info, err := idp.oauth.UserInfo(ctx, access)
	require.NoError(t, err)
	assert.Equal(t, "1", info["sub"])
	assert.Equal(t, "Alice", info["name"])
	assert.NotContains(t, info, "email")
}

func TestUserInfoRejectsBadToken(t *testing.T) {
	ctx := context.Background()
	idp := newTestIdP(t, defaultPolicy())

	_, err := idp.oauth.UserInfo(ctx, "garbage")
	assert.Equal(t, serrors.InvalidGrant, oauthErrCode(t, err))
}
