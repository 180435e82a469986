package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lucidauth/lucid/domain"
	serrors "github.com/lucidauth/lucid/errors"
	"github.com/lucidauth/lucid/internal/metrics"
	"github.com/lucidauth/lucid/internal/oidcflow"
)

// AuthorizePolicy holds the deployment policy knobs of the authorization
// endpoint. None of these are hardcoded; they come from configuration.
type AuthorizePolicy struct {
	FlowTTL                time.Duration
	AuthCodeTTL            time.Duration
	MaxLoginAttempts       int
	AllowEmptyScopeDefault bool
}

// AuthorizationRequest is the parsed parameter set of one authorization
// request. It lives only for the duration of the flow it starts.
type AuthorizationRequest struct {
	ClientID            string
	RedirectURI         string
	ResponseType        string
	Scope               string
	State               string
	Nonce               string
	CodeChallenge       string
	CodeChallengeMethod string
}

// AuthorizeResult is what the endpoint hands back to its HTTP collaborator.
// Completed and Rejected carry a redirect; NeedsLogin and NeedsConsent carry
// the flow token the UI uses to resume.
type AuthorizeResult struct {
	Status      oidcflow.Status
	FlowToken   string
	SessionID   string
	RedirectURI string
	// AttemptsLeft is set on a failed login while retries remain.
	AttemptsLeft int
}

// AuthorizeService drives a single authorization request end to end:
// validation, login, consent, token issuance, redirect. Suspension around
// login and consent is modeled as durable flow state, never an in-process
// wait: any instance holding the flow store can resume a flow.
type AuthorizeService struct {
	clients  *ClientService
	scopes   *ScopeService
	sessions *SessionService
	consent  *ConsentService
	users    *UserService
	tokens   *TokenService
	codes    domain.AuthCodeStore
	flows    oidcflow.FlowStore
	policy   AuthorizePolicy
}

// NewAuthorizeService creates a new AuthorizeService instance.
func NewAuthorizeService(
	clients *ClientService,
	scopes *ScopeService,
	sessions *SessionService,
	consent *ConsentService,
	users *UserService,
	tokens *TokenService,
	codes domain.AuthCodeStore,
	flows oidcflow.FlowStore,
	policy AuthorizePolicy,
) *AuthorizeService {
	return &AuthorizeService{
		clients:  clients,
		scopes:   scopes,
		sessions: sessions,
		consent:  consent,
		users:    users,
		tokens:   tokens,
		codes:    codes,
		flows:    flows,
		policy:   policy,
	}
}

var supportedResponseTypes = map[string]struct{}{
	"code":           {},
	"id_token":       {},
	"id_token token": {},
	"code id_token":  {},
}

func normalizeResponseType(rt string) string {
	parts := strings.Fields(rt)
	// The two-part forms are matched in canonical order.
	if len(parts) == 2 {
		if parts[0] == "token" && parts[1] == "id_token" {
			return "id_token token"
		}
		if parts[0] == "id_token" && parts[1] == "code" {
			return "code id_token"
		}
	}
	return strings.Join(parts, " ")
}

func wantsCode(rt string) bool {
	return strings.Contains(rt, "code")
}

func wantsIDTokenDirect(rt string) bool {
	return strings.Contains(rt, "id_token")
}

func wantsAccessTokenDirect(rt string) bool {
	for _, p := range strings.Fields(rt) {
		if p == "token" {
			return true
		}
	}
	return false
}

// requiredGrant maps a response type to the grant type the client must hold.
func requiredGrant(rt string) domain.GrantType {
	switch {
	case wantsCode(rt) && wantsIDTokenDirect(rt):
		return domain.GrantTypeHybrid
	case wantsCode(rt):
		return domain.GrantTypeAuthorizationCode
	default:
		return domain.GrantTypeImplicit
	}
}

// Begin runs the validation phase of a new authorization request and either
// completes it immediately (existing session, consent already satisfied) or
// suspends it in the flow store.
//
// A returned *errors.OAuth2Error means the request was rejected before its
// redirect URI could be trusted: the caller must render it locally and must
// not redirect anywhere.
func (s *AuthorizeService) Begin(ctx context.Context, req AuthorizationRequest, sessionID string) (*AuthorizeResult, error) {
	// Client and redirect URI come first: until both check out, no error
	// ever leaves the server as a redirect.
	if req.ClientID == "" {
		return nil, serrors.NewInvalidRequest("client_id is required")
	}
	client, err := s.clients.GetClient(ctx, req.ClientID)
	if err != nil {
		return nil, serrors.NewInvalidClient("unknown client")
	}
	if err := s.clients.ValidateRedirectURI(client, req.RedirectURI); err != nil {
		return nil, serrors.NewInvalidRequest("redirect_uri is not registered for this client")
	}

	// Scope validation is also terminal-local: a scope violation is a
	// client misconfiguration, not something to report to the client app.
	scopes := strings.Fields(req.Scope)
	if len(scopes) == 0 {
		if !s.policy.AllowEmptyScopeDefault {
			return nil, serrors.NewInvalidScope("scope is required")
		}
		scopes = append(scopes, client.AllowedScopes...)
	}
	if _, err := s.scopes.ResolveScopes(ctx, scopes); err != nil {
		return nil, serrors.NewInvalidScope("unknown scope requested")
	}
	if err := s.clients.ValidateScopes(client, scopes); err != nil {
		return nil, serrors.NewInvalidScope("requested scope exceeds client registration")
	}

	// From here on the redirect URI is trusted, so protocol errors go back
	// to the client as standard error redirects.
	responseType := normalizeResponseType(req.ResponseType)
	if _, ok := supportedResponseTypes[responseType]; !ok {
		return s.reject(ctx, nil, req.RedirectURI, req.State, responseType,
			serrors.NewUnsupportedResponseType("unsupported response_type")), nil
	}
	if !client.AllowsGrant(requiredGrant(responseType)) {
		return s.reject(ctx, nil, req.RedirectURI, req.State, responseType,
			serrors.NewUnauthorizedClient("client is not allowed to use this response_type")), nil
	}
	// Tokens issued straight off this endpoint must be bound to the request.
	if wantsIDTokenDirect(responseType) && req.Nonce == "" {
		return s.reject(ctx, nil, req.RedirectURI, req.State, responseType,
			serrors.NewInvalidRequest("nonce is required for this response_type")), nil
	}
	if client.RequirePKCE && wantsCode(responseType) {
		if req.CodeChallenge == "" {
			return s.reject(ctx, nil, req.RedirectURI, req.State, responseType,
				serrors.NewPKCERequired()), nil
		}
		if req.CodeChallengeMethod != "S256" && req.CodeChallengeMethod != "plain" {
			return s.reject(ctx, nil, req.RedirectURI, req.State, responseType,
				serrors.NewInvalidRequest("invalid code_challenge_method")), nil
		}
	}

	flowToken, err := oidcflow.NewFlowToken()
	if err != nil {
		return s.reject(ctx, nil, req.RedirectURI, req.State, responseType,
			serrors.NewServerError("failed to start authorization flow")), nil
	}
	now := time.Now()
	flow := &oidcflow.Flow{
		ID:                  flowToken,
		Status:              oidcflow.StatusValidated,
		ClientID:            client.ID,
		RedirectURI:         req.RedirectURI,
		ResponseType:        responseType,
		Scopes:              scopes,
		State:               req.State,
		Nonce:               req.Nonce,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
		CreatedAt:           now,
		ExpiresAt:           now.Add(s.policy.FlowTTL),
	}

	// An expired session is simply "no session": login again.
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		flow.Status = oidcflow.StatusNeedsLogin
		if err := s.flows.StoreFlow(ctx, flow); err != nil {
			return s.reject(ctx, flow, flow.RedirectURI, flow.State, flow.ResponseType,
				serrors.NewServerError("failed to persist authorization flow")), nil
		}
		return &AuthorizeResult{Status: oidcflow.StatusNeedsLogin, FlowToken: flowToken}, nil
	}

	flow.Subject = session.Subject
	flow.SessionID = session.ID
	return s.afterLogin(ctx, flow, client, true)
}

// SubmitCredentials resumes a flow suspended in NeedsLogin with the user's
// credentials. Repeated failures keep the flow in NeedsLogin until the
// configured attempt limit, then reject the request; a failure is never
// converted into success.
func (s *AuthorizeService) SubmitCredentials(ctx context.Context, flowToken, username, password string) (*AuthorizeResult, error) {
	flow, err := s.flows.GetFlow(ctx, flowToken)
	if err != nil {
		return nil, err
	}
	if flow.Status != oidcflow.StatusNeedsLogin {
		return nil, fmt.Errorf("flow %q is not awaiting login", flowToken)
	}

	client, err := s.clients.GetClient(ctx, flow.ClientID)
	if err != nil {
		return nil, fmt.Errorf("client disappeared mid-flow: %w", err)
	}

	subject, err := s.users.Authenticate(ctx, username, password)
	if err != nil {
		flow.LoginAttempts++
		if s.policy.MaxLoginAttempts > 0 && flow.LoginAttempts >= s.policy.MaxLoginAttempts {
			result := s.reject(ctx, flow, flow.RedirectURI, flow.State, flow.ResponseType,
				serrors.NewAccessDenied("too many failed login attempts"))
			return result, nil
		}
		if err := s.flows.UpdateFlow(ctx, flow); err != nil {
			return nil, err
		}
		result := &AuthorizeResult{
			Status:    oidcflow.StatusNeedsLogin,
			FlowToken: flow.ID,
		}
		if s.policy.MaxLoginAttempts > 0 {
			result.AttemptsLeft = s.policy.MaxLoginAttempts - flow.LoginAttempts
		}
		return result, nil
	}

	session, err := s.sessions.Establish(ctx, subject)
	if err != nil {
		return s.reject(ctx, flow, flow.RedirectURI, flow.State, flow.ResponseType,
			serrors.NewServerError("failed to establish session")), nil
	}
	flow.Subject = subject
	flow.SessionID = session.ID

	return s.afterLogin(ctx, flow, client, false)
}

// SubmitConsent resumes a flow suspended in NeedsConsent with the user's
// decision. grantedScopes must be a subset of the requested scopes; the
// tokens minted carry only what was granted.
func (s *AuthorizeService) SubmitConsent(ctx context.Context, flowToken string, approved bool, grantedScopes []string, persist bool) (*AuthorizeResult, error) {
	flow, err := s.flows.GetFlow(ctx, flowToken)
	if err != nil {
		return nil, err
	}
	if flow.Status != oidcflow.StatusNeedsConsent {
		return nil, fmt.Errorf("flow %q is not awaiting consent", flowToken)
	}

	if !approved {
		metrics.ConsentDeniedTotal.Inc()
		return s.reject(ctx, flow, flow.RedirectURI, flow.State, flow.ResponseType,
			serrors.NewAccessDenied("the user denied the request")), nil
	}

	if len(grantedScopes) == 0 {
		grantedScopes = flow.Scopes
	}
	requested := make(map[string]struct{}, len(flow.Scopes))
	for _, sc := range flow.Scopes {
		requested[sc] = struct{}{}
	}
	for _, sc := range grantedScopes {
		if _, ok := requested[sc]; !ok {
			return nil, serrors.NewInvalidScope("granted scope was never requested")
		}
	}

	if err := s.consent.RecordGrant(ctx, flow.Subject, flow.ClientID, grantedScopes, persist, flow.SessionID); err != nil {
		return s.reject(ctx, flow, flow.RedirectURI, flow.State, flow.ResponseType,
			serrors.NewServerError("failed to record consent")), nil
	}

	flow.Scopes = grantedScopes
	client, err := s.clients.GetClient(ctx, flow.ClientID)
	if err != nil {
		return nil, fmt.Errorf("client disappeared mid-flow: %w", err)
	}
	return s.finish(ctx, flow, client)
}

// afterLogin decides whether the flow still needs consent or can complete.
// fresh is true when the flow rode in on an existing session and has never
// been stored; after an interactive login the flow is already persisted and
// only needs updating.
func (s *AuthorizeService) afterLogin(ctx context.Context, flow *oidcflow.Flow, client *domain.Client, fresh bool) (*AuthorizeResult, error) {
	needConsent := client.RequireConsent
	if needConsent {
		grant, err := s.consent.GetGrant(ctx, flow.Subject, flow.ClientID, flow.SessionID)
		if err == nil && grant.Covers(flow.Scopes) {
			needConsent = false
		}
	}

	if !needConsent {
		return s.finish(ctx, flow, client)
	}

	flow.Status = oidcflow.StatusNeedsConsent
	var err error
	if fresh {
		err = s.flows.StoreFlow(ctx, flow)
	} else {
		err = s.flows.UpdateFlow(ctx, flow)
	}
	if err != nil {
		return s.reject(ctx, flow, flow.RedirectURI, flow.State, flow.ResponseType,
			serrors.NewServerError("failed to persist authorization flow")), nil
	}
	return &AuthorizeResult{
		Status:    oidcflow.StatusNeedsConsent,
		FlowToken: flow.ID,
		SessionID: flow.SessionID,
	}, nil
}

// finish mints the artifacts the response type asks for and builds the final
// redirect. Issuance failures after validation are delivered as server_error
// redirects, still bounded to the validated redirect URI.
func (s *AuthorizeService) finish(ctx context.Context, flow *oidcflow.Flow, client *domain.Client) (*AuthorizeResult, error) {
	values := url.Values{}

	if wantsCode(flow.ResponseType) {
		code, err := s.issueCode(ctx, flow)
		if err != nil {
			log.Error().Err(err).Str("client_id", client.ID).Msg("failed to issue authorization code")
			return s.reject(ctx, flow, flow.RedirectURI, flow.State, flow.ResponseType,
				serrors.NewServerError("failed to issue authorization code")), nil
		}
		values.Set("code", code)
	}

	if wantsAccessTokenDirect(flow.ResponseType) {
		resolved, err := s.scopes.ResolveScopes(ctx, flow.Scopes)
		if err != nil {
			return s.reject(ctx, flow, flow.RedirectURI, flow.State, flow.ResponseType,
				serrors.NewServerError("failed to resolve scopes")), nil
		}
		access, err := s.tokens.IssueAccessToken(ctx, flow.Subject, client, flow.Scopes, s.scopes.Resources(resolved))
		if err != nil {
			log.Error().Err(err).Str("client_id", client.ID).Msg("failed to issue access token")
			return s.reject(ctx, flow, flow.RedirectURI, flow.State, flow.ResponseType,
				serrors.NewServerError("failed to issue access token")), nil
		}
		values.Set("access_token", access)
		values.Set("token_type", "Bearer")
	}

	if wantsIDTokenDirect(flow.ResponseType) {
		claims, err := s.users.GetClaims(ctx, flow.Subject, flow.Scopes)
		if err != nil {
			return s.reject(ctx, flow, flow.RedirectURI, flow.State, flow.ResponseType,
				serrors.NewServerError("failed to load claims")), nil
		}
		idToken, err := s.tokens.IssueIDToken(ctx, flow.Subject, client, claims, flow.Nonce)
		if err != nil {
			log.Error().Err(err).Str("client_id", client.ID).Msg("failed to issue identity token")
			return s.reject(ctx, flow, flow.RedirectURI, flow.State, flow.ResponseType,
				serrors.NewServerError("failed to issue identity token")), nil
		}
		values.Set("id_token", idToken)
	}

	if flow.State != "" {
		values.Set("state", flow.State)
	}

	if err := s.sessions.Touch(ctx, flow.SessionID, client.ID); err != nil {
		log.Warn().Err(err).Str("session_id", flow.SessionID).Msg("failed to record client participation")
	}
	if err := s.flows.DeleteFlow(ctx, flow.ID); err != nil {
		log.Warn().Err(err).Msg("failed to delete completed flow")
	}

	flow.Status = oidcflow.StatusCompleted
	fragment := wantsIDTokenDirect(flow.ResponseType) || wantsAccessTokenDirect(flow.ResponseType)
	return &AuthorizeResult{
		Status:      oidcflow.StatusCompleted,
		SessionID:   flow.SessionID,
		RedirectURI: buildRedirect(flow.RedirectURI, values, fragment),
	}, nil
}

func (s *AuthorizeService) issueCode(ctx context.Context, flow *oidcflow.Flow) (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	code := base64.RawURLEncoding.EncodeToString(b)

	now := time.Now()
	authCode := &domain.AuthCode{
		Code:                code,
		ClientID:            flow.ClientID,
		Subject:             flow.Subject,
		RedirectURI:         flow.RedirectURI,
		Scope:               strings.Join(flow.Scopes, " "),
		Nonce:               flow.Nonce,
		SessionID:           flow.SessionID,
		CodeChallenge:       flow.CodeChallenge,
		CodeChallengeMethod: flow.CodeChallengeMethod,
		CreatedAt:           now,
		ExpiresAt:           now.Add(s.policy.AuthCodeTTL),
	}
	if err := s.codes.SaveCode(ctx, authCode); err != nil {
		return "", fmt.Errorf("failed to save auth code: %w", err)
	}
	return code, nil
}

// reject builds a Rejected result delivering oerr to the already validated
// redirect URI and discards the flow if one exists.
func (s *AuthorizeService) reject(ctx context.Context, flow *oidcflow.Flow, redirectURI, state, responseType string, oerr *serrors.OAuth2Error) *AuthorizeResult {
	if flow != nil {
		if err := s.flows.DeleteFlow(ctx, flow.ID); err != nil {
			log.Warn().Err(err).Msg("failed to delete rejected flow")
		}
		flow.Status = oidcflow.StatusRejected
	}

	values := url.Values{}
	values.Set("error", oerr.Code)
	if oerr.Description != "" {
		values.Set("error_description", oerr.Description)
	}
	if state != "" {
		values.Set("state", state)
	}

	fragment := wantsIDTokenDirect(responseType) || wantsAccessTokenDirect(responseType)
	return &AuthorizeResult{
		Status:      oidcflow.StatusRejected,
		RedirectURI: buildRedirect(redirectURI, values, fragment),
	}
}

func buildRedirect(base string, values url.Values, fragment bool) string {
	if fragment {
		return base + "#" + values.Encode()
	}
	u, err := url.Parse(base)
	if err != nil {
		// The URI was validated against the client registration already.
		return base + "?" + values.Encode()
	}
	q := u.Query()
	for k, vs := range values {
		for _, v := range vs {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}
