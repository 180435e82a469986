//nolint:varnamelen
package echo

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	serrors "github.com/lucidauth/lucid/errors"
	"github.com/lucidauth/lucid/internal/keys"
	"github.com/lucidauth/lucid/internal/oidcflow"
	"github.com/lucidauth/lucid/services"
)

// SessionCookieName is the browser cookie carrying the SSO session ID.
const SessionCookieName = "idp.session"

// IdentityAPI exposes the engine over HTTP. It owns no rendering: login and
// consent screens belong to an external UI collaborator that talks to the
// flow endpoints with the flow token.
type IdentityAPI struct {
	authorize *services.AuthorizeService
	oauth     *services.OAuthService
	tokens    *services.TokenService
	logout    *services.LogoutService
	discovery *services.DiscoveryService
	rotator   *keys.Rotator
}

// NewIdentityAPI initializes the HTTP API.
func NewIdentityAPI(
	authorize *services.AuthorizeService,
	oauth *services.OAuthService,
	tokens *services.TokenService,
	logout *services.LogoutService,
	discovery *services.DiscoveryService,
	rotator *keys.Rotator,
) *IdentityAPI {
	return &IdentityAPI{
		authorize: authorize,
		oauth:     oauth,
		tokens:    tokens,
		logout:    logout,
		discovery: discovery,
		rotator:   rotator,
	}
}

// RegisterRoutes registers the OAuth2/OIDC routes.
func (a *IdentityAPI) RegisterRoutes(e *echo.Echo) {
	e.GET("/oauth2/authorize", a.AuthorizeHandler)
	e.POST("/oauth2/authorize", a.AuthorizeHandler)
	e.POST("/oauth2/login", a.LoginHandler)
	e.POST("/oauth2/consent", a.ConsentHandler)
	e.POST("/oauth2/token", a.TokenHandler)
	e.POST("/oauth2/revoke", a.RevokeHandler)
	e.GET("/oauth2/userinfo", a.UserInfoHandler)
	e.GET("/oauth2/endsession", a.EndSessionHandler)

	e.GET("/.well-known/openid-configuration", a.OpenIDConfigurationHandler)
	e.GET("/.well-known/jwks.json", a.JWKSHandler)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// AuthorizeHandler handles authorization requests. Validation failures that
// precede redirect URI verification render locally; everything later is
// delivered to the validated redirect URI.
func (a *IdentityAPI) AuthorizeHandler(c echo.Context) error {
	req := services.AuthorizationRequest{
		ClientID:            c.QueryParam("client_id"),
		RedirectURI:         c.QueryParam("redirect_uri"),
		ResponseType:        c.QueryParam("response_type"),
		Scope:               c.QueryParam("scope"),
		State:               c.QueryParam("state"),
		Nonce:               c.QueryParam("nonce"),
		CodeChallenge:       c.QueryParam("code_challenge"),
		CodeChallengeMethod: c.QueryParam("code_challenge_method"),
	}
	if c.Request().Method == http.MethodPost {
		req.ClientID = c.FormValue("client_id")
		req.RedirectURI = c.FormValue("redirect_uri")
		req.ResponseType = c.FormValue("response_type")
		req.Scope = c.FormValue("scope")
		req.State = c.FormValue("state")
		req.Nonce = c.FormValue("nonce")
		req.CodeChallenge = c.FormValue("code_challenge")
		req.CodeChallengeMethod = c.FormValue("code_challenge_method")
	}

	result, err := a.authorize.Begin(c.Request().Context(), req, a.sessionID(c))
	if err != nil {
		return a.localError(c, err)
	}
	return a.respondFlow(c, result)
}

type loginRequest struct {
	FlowToken string `json:"flow_token" form:"flow_token"`
	Username  string `json:"username" form:"username"`
	Password  string `json:"password" form:"password"`
}

// LoginHandler resumes a flow waiting for credentials. The response status
// tells the UI whether to continue, retry, or give up.
func (a *IdentityAPI) LoginHandler(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, serrors.NewInvalidRequest("malformed login request"))
	}

	result, err := a.authorize.SubmitCredentials(c.Request().Context(), req.FlowToken, req.Username, req.Password)
	if err != nil {
		return a.flowError(c, err)
	}

	switch result.Status {
	case oidcflow.StatusNeedsLogin:
		return c.JSON(http.StatusUnauthorized, echo.Map{
			"status":        "retry",
			"flow_token":    result.FlowToken,
			"attempts_left": result.AttemptsLeft,
		})
	default:
		a.setSessionCookie(c, result.SessionID)
		return a.respondFlow(c, result)
	}
}

type consentRequest struct {
	FlowToken     string   `json:"flow_token" form:"flow_token"`
	Approved      bool     `json:"approved" form:"approved"`
	GrantedScopes []string `json:"granted_scopes" form:"granted_scopes"`
	Persist       bool     `json:"persist" form:"persist"`
}

// ConsentHandler resumes a flow waiting for the user's consent decision.
func (a *IdentityAPI) ConsentHandler(c echo.Context) error {
	var req consentRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, serrors.NewInvalidRequest("malformed consent request"))
	}

	result, err := a.authorize.SubmitConsent(c.Request().Context(), req.FlowToken, req.Approved, req.GrantedScopes, req.Persist)
	if err != nil {
		return a.flowError(c, err)
	}
	return a.respondFlow(c, result)
}

// TokenHandler implements the token endpoint grants.
func (a *IdentityAPI) TokenHandler(c echo.Context) error {
	clientID, clientSecret := a.clientCredentials(c)
	grantType := c.FormValue("grant_type")
	ctx := c.Request().Context()

	var (
		resp *services.TokenResponse
		err  error
	)
	switch grantType {
	case "authorization_code":
		resp, err = a.oauth.ExchangeAuthorizationCode(ctx, clientID, clientSecret,
			c.FormValue("code"), c.FormValue("redirect_uri"), c.FormValue("code_verifier"))
	case "refresh_token":
		resp, err = a.oauth.RefreshGrant(ctx, clientID, clientSecret, c.FormValue("refresh_token"))
	case "client_credentials":
		resp, err = a.oauth.ClientCredentialsGrant(ctx, clientID, clientSecret, c.FormValue("scope"))
	default:
		return c.JSON(http.StatusBadRequest, serrors.NewUnsupportedGrantType("unsupported grant_type"))
	}
	if err != nil {
		return a.tokenError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// RevokeHandler revokes a token presented by its client.
func (a *IdentityAPI) RevokeHandler(c echo.Context) error {
	clientID, clientSecret := a.clientCredentials(c)
	if _, err := a.oauth.AuthenticateClient(c.Request().Context(), clientID, clientSecret); err != nil {
		return c.JSON(http.StatusUnauthorized, serrors.NewInvalidClient("client authentication failed"))
	}

	if err := a.tokens.RevokeToken(c.Request().Context(), c.FormValue("token")); err != nil {
		log.Error().Err(err).Msg("failed to revoke token")
		return c.JSON(http.StatusInternalServerError, serrors.NewServerError("failed to revoke token"))
	}
	return c.NoContent(http.StatusOK)
}

// UserInfoHandler returns the claims released by the access token's scopes.
func (a *IdentityAPI) UserInfoHandler(c echo.Context) error {
	token := bearerToken(c)
	if token == "" {
		return c.JSON(http.StatusUnauthorized, serrors.NewInvalidRequest("missing bearer token"))
	}

	info, err := a.oauth.UserInfo(c.Request().Context(), token)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, err)
	}
	return c.JSON(http.StatusOK, info)
}

// EndSessionHandler terminates the SSO session and fans out the logout.
func (a *IdentityAPI) EndSessionHandler(c echo.Context) error {
	result, err := a.logout.Logout(c.Request().Context(), a.sessionID(c),
		c.QueryParam("id_token_hint"), c.QueryParam("post_logout_redirect_uri"))
	if err != nil {
		log.Error().Err(err).Msg("logout failed")
		return c.JSON(http.StatusInternalServerError, serrors.NewServerError("logout failed"))
	}

	a.clearSessionCookie(c)

	if result.RedirectURI != "" && len(result.FrontChannelURIs) == 0 {
		return c.Redirect(http.StatusFound, result.RedirectURI)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"status":                    "logged_out",
		"post_logout_redirect_uri":  result.RedirectURI,
		"front_channel_logout_uris": result.FrontChannelURIs,
		"notified_clients":          result.NotifiedClients,
	})
}

// OpenIDConfigurationHandler serves the provider metadata.
func (a *IdentityAPI) OpenIDConfigurationHandler(c echo.Context) error {
	doc, err := a.discovery.Document(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, serrors.NewServerError("failed to build discovery document"))
	}
	return c.JSON(http.StatusOK, doc)
}

// JWKSHandler serves the public portion of the current signing key set.
func (a *IdentityAPI) JWKSHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, a.rotator.JWKS())
}

// respondFlow maps a state machine result onto the wire.
func (a *IdentityAPI) respondFlow(c echo.Context, result *services.AuthorizeResult) error {
	switch result.Status {
	case oidcflow.StatusCompleted:
		// Resumed flows answer the UI with JSON; the initial browser
		// redirect goes straight out.
		if c.Path() == "/oauth2/authorize" {
			return c.Redirect(http.StatusFound, result.RedirectURI)
		}
		return c.JSON(http.StatusOK, echo.Map{
			"status":       "complete",
			"redirect_uri": result.RedirectURI,
		})
	case oidcflow.StatusRejected:
		if c.Path() == "/oauth2/authorize" {
			return c.Redirect(http.StatusFound, result.RedirectURI)
		}
		return c.JSON(http.StatusOK, echo.Map{
			"status":       "denied",
			"redirect_uri": result.RedirectURI,
		})
	case oidcflow.StatusNeedsLogin:
		return c.JSON(http.StatusOK, echo.Map{
			"status":     "login_required",
			"flow_token": result.FlowToken,
		})
	case oidcflow.StatusNeedsConsent:
		return c.JSON(http.StatusOK, echo.Map{
			"status":     "consent_required",
			"flow_token": result.FlowToken,
		})
	default:
		return c.JSON(http.StatusInternalServerError, serrors.NewServerError("unexpected flow state"))
	}
}

// localError renders an error that must not leave the server as a redirect.
func (a *IdentityAPI) localError(c echo.Context, err error) error {
	var oerr *serrors.OAuth2Error
	if errors.As(err, &oerr) {
		return c.JSON(http.StatusBadRequest, oerr)
	}
	log.Error().Err(err).Msg("authorization request failed")
	return c.JSON(http.StatusInternalServerError, serrors.NewServerError("internal error"))
}

// flowError maps flow resumption failures. An expired or unknown flow means
// the authorization request must restart from the beginning.
func (a *IdentityAPI) flowError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, oidcflow.ErrFlowExpired), errors.Is(err, oidcflow.ErrFlowNotFound):
		return c.JSON(http.StatusBadRequest, echo.Map{
			"status": "expired",
			"error":  serrors.InvalidRequest,
			"error_description": "the authorization flow expired, restart the request",
		})
	default:
		return a.localError(c, err)
	}
}

// tokenError renders token endpoint failures with RFC 6749 status codes.
func (a *IdentityAPI) tokenError(c echo.Context, err error) error {
	var oerr *serrors.OAuth2Error
	if errors.As(err, &oerr) {
		status := http.StatusBadRequest
		if oerr.Code == serrors.InvalidClient {
			status = http.StatusUnauthorized
		}
		if oerr.Code == serrors.ServerError {
			status = http.StatusInternalServerError
		}
		return c.JSON(status, oerr)
	}
	log.Error().Err(err).Msg("token request failed")
	return c.JSON(http.StatusInternalServerError, serrors.NewServerError("internal error"))
}

// clientCredentials extracts client authentication from Basic auth or the
// request body.
func (a *IdentityAPI) clientCredentials(c echo.Context) (string, string) {
	if username, password, ok := c.Request().BasicAuth(); ok {
		return username, password
	}
	return c.FormValue("client_id"), c.FormValue("client_secret")
}

func (a *IdentityAPI) sessionID(c echo.Context) string {
	cookie, err := c.Cookie(SessionCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func (a *IdentityAPI) setSessionCookie(c echo.Context, sessionID string) {
	if sessionID == "" {
		return
	}
	c.SetCookie(&http.Cookie{
		Name:     SessionCookieName,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *IdentityAPI) clearSessionCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}

func bearerToken(c echo.Context) string {
	auth := c.Request().Header.Get(echo.HeaderAuthorization)
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return ""
	}
	return strings.TrimSpace(auth[len(prefix):])
}
