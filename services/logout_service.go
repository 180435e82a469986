package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lucidauth/lucid/domain"
	"github.com/lucidauth/lucid/internal/metrics"
)

// LogoutChannel selects how participating clients learn about a logout.
type LogoutChannel string

const (
	// LogoutChannelFront collects each client's front-channel logout URL
	// for the UI to render (iframe/redirect chain).
	LogoutChannelFront LogoutChannel = "front"
	// LogoutChannelBack notifies each client server-to-server.
	LogoutChannelBack LogoutChannel = "back"
)

// LogoutResult describes the outcome of an end-session request.
type LogoutResult struct {
	// RedirectURI is the validated post-logout destination, empty when the
	// request carried none or validation failed (local confirmation page).
	RedirectURI string
	// FrontChannelURIs are rendered by the UI to complete front-channel
	// sign-out at each client.
	FrontChannelURIs []string
	// NotifiedClients lists every participating client the coordinator
	// attempted to notify, reachable or not.
	NotifiedClients []string
	// FailedClients lists the subset whose notification failed.
	FailedClients []string
}

// LogoutService coordinates session termination across every client that
// participated in the session. One unreachable client never blocks the
// others or the local session teardown.
type LogoutService struct {
	sessions *SessionService
	consent  *ConsentService
	clients  *ClientService
	tokens   *TokenService
	channel  LogoutChannel
	http     *http.Client
}

// NewLogoutService creates a new LogoutService instance. timeout bounds each
// back-channel call.
func NewLogoutService(
	sessions *SessionService,
	consent *ConsentService,
	clients *ClientService,
	tokens *TokenService,
	channel LogoutChannel,
	timeout time.Duration,
) *LogoutService {
	return &LogoutService{
		sessions: sessions,
		consent:  consent,
		clients:  clients,
		tokens:   tokens,
		channel:  channel,
		http:     &http.Client{Timeout: timeout},
	}
}

// Logout terminates the session and fans the notification out. The
// post-logout redirect URI is honored only when the id_token_hint resolves to
// a client that has it registered, exact match; otherwise the caller shows a
// local confirmation.
func (s *LogoutService) Logout(ctx context.Context, sessionID, idTokenHint, postLogoutRedirectURI string) (*LogoutResult, error) {
	result := &LogoutResult{}

	if hintClient := s.clientFromHint(ctx, idTokenHint); hintClient != nil && postLogoutRedirectURI != "" {
		if hintClient.HasPostLogoutRedirectURI(postLogoutRedirectURI) {
			result.RedirectURI = postLogoutRedirectURI
		} else {
			log.Warn().Str("client_id", hintClient.ID).Str("uri", postLogoutRedirectURI).
				Msg("post_logout_redirect_uri not registered, showing local confirmation")
		}
	}

	participating, err := s.sessions.Terminate(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	s.consent.DropSession(sessionID)

	for _, clientID := range participating {
		result.NotifiedClients = append(result.NotifiedClients, clientID)

		client, err := s.clients.GetClient(ctx, clientID)
		if err != nil {
			log.Warn().Str("client_id", clientID).Msg("participating client no longer registered")
			result.FailedClients = append(result.FailedClients, clientID)
			metrics.LogoutNotifyFailedTotal.Inc()
			continue
		}

		switch s.channel {
		case LogoutChannelBack:
			if err := s.notifyBackChannel(ctx, client, sessionID); err != nil {
				log.Warn().Err(err).Str("client_id", clientID).Msg("back-channel logout notification failed")
				result.FailedClients = append(result.FailedClients, clientID)
				metrics.LogoutNotifyFailedTotal.Inc()
			}
		default:
			if client.FrontChannelLogoutURI != "" {
				result.FrontChannelURIs = append(result.FrontChannelURIs, frontChannelURL(client.FrontChannelLogoutURI, sessionID))
			}
		}
	}

	log.Info().Str("session_id", sessionID).
		Int("notified", len(result.NotifiedClients)).
		Int("failed", len(result.FailedClients)).
		Msg("logout fan-out complete")
	return result, nil
}

// clientFromHint resolves the client a logout request claims to come from.
// An unusable hint is ignored, not an error: logout proceeds either way.
func (s *LogoutService) clientFromHint(ctx context.Context, idTokenHint string) *domain.Client {
	if idTokenHint == "" {
		return nil
	}
	claims, err := s.tokens.Validate(ctx, idTokenHint)
	if err != nil {
		log.Debug().Err(err).Msg("unusable id_token_hint")
		return nil
	}

	var clientID string
	switch aud := claims["aud"].(type) {
	case string:
		clientID = aud
	case []any:
		if len(aud) > 0 {
			clientID, _ = aud[0].(string)
		}
	}
	if clientID == "" {
		return nil
	}

	client, err := s.clients.GetClient(ctx, clientID)
	if err != nil {
		return nil
	}
	return client
}

func (s *LogoutService) notifyBackChannel(ctx context.Context, client *domain.Client, sessionID string) error {
	if client.BackChannelLogoutURI == "" {
		return nil
	}

	form := url.Values{}
	form.Set("sid", sessionID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, client.BackChannelLogoutURI, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("back-channel logout returned status %d", resp.StatusCode)
	}
	return nil
}

func frontChannelURL(base, sessionID string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	q.Set("sid", sessionID)
	u.RawQuery = q.Encode()
	return u.String()
}
