package services

import (
	"context"
	"crypto/subtle"
	"fmt"

	"github.com/lucidauth/lucid/domain"
)

// ClientService is the read-side of the client registry. All lookups go
// through it so redirect URI and scope checks happen in one place.
type ClientService struct {
	repo domain.ClientRepository
}

// NewClientService creates a new ClientService instance.
func NewClientService(repo domain.ClientRepository) *ClientService {
	return &ClientService{repo: repo}
}

// GetClient resolves a client by ID.
func (s *ClientService) GetClient(ctx context.Context, clientID string) (*domain.Client, error) {
	return s.repo.GetClient(ctx, clientID)
}

// ValidateRedirectURI checks that uri is registered for the client, exact
// match only. A mismatch must never result in a redirect to uri.
func (s *ClientService) ValidateRedirectURI(client *domain.Client, uri string) error {
	if uri == "" {
		return fmt.Errorf("redirect_uri is required")
	}
	if !client.HasRedirectURI(uri) {
		return fmt.Errorf("redirect_uri %q is not registered for client %q", uri, client.ID)
	}
	return nil
}

// ValidateScopes checks that every requested scope is allowed for the client.
func (s *ClientService) ValidateScopes(client *domain.Client, scopes []string) error {
	for _, scope := range scopes {
		if !client.AllowsScope(scope) {
			return fmt.Errorf("scope %q is not allowed for client %q", scope, client.ID)
		}
	}
	return nil
}

// AuthenticateClient verifies a confidential client's secret. Public clients
// (no secret registered) authenticate by ID alone.
func (s *ClientService) AuthenticateClient(ctx context.Context, clientID, secret string) (*domain.Client, error) {
	client, err := s.repo.GetClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if !client.IsConfidential() {
		return client, nil
	}
	if subtle.ConstantTimeCompare([]byte(client.Secret), []byte(secret)) != 1 {
		return nil, fmt.Errorf("invalid client credentials for %q", clientID)
	}
	return client, nil
}

// ScopeService resolves scope names against the registry.
type ScopeService struct {
	repo domain.ScopeRepository
}

// NewScopeService creates a new ScopeService instance.
func NewScopeService(repo domain.ScopeRepository) *ScopeService {
	return &ScopeService{repo: repo}
}

// ResolveScopes resolves every name to a registered scope. Any unknown name
// fails the whole request.
func (s *ScopeService) ResolveScopes(ctx context.Context, names []string) ([]domain.Scope, error) {
	scopes := make([]domain.Scope, 0, len(names))
	for _, name := range names {
		scope, err := s.repo.GetScope(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("resolving scope %q: %w", name, err)
		}
		scopes = append(scopes, *scope)
	}
	return scopes, nil
}

// ClaimTypes returns the union of claim types released by the given scopes.
func (s *ScopeService) ClaimTypes(scopes []domain.Scope) []string {
	seen := make(map[string]struct{})
	var types []string
	for _, scope := range scopes {
		for _, ct := range scope.ClaimTypes {
			if _, ok := seen[ct]; ok {
				continue
			}
			seen[ct] = struct{}{}
			types = append(types, ct)
		}
	}
	return types
}

// Resources returns the distinct API resources behind the given scopes, the
// audience set for access tokens.
func (s *ScopeService) Resources(scopes []domain.Scope) []string {
	seen := make(map[string]struct{})
	var resources []string
	for _, scope := range scopes {
		if scope.Resource == "" {
			continue
		}
		if _, ok := seen[scope.Resource]; ok {
			continue
		}
		seen[scope.Resource] = struct{}{}
		resources = append(resources, scope.Resource)
	}
	return resources
}

// ListScopeNames returns every registered scope name, for discovery.
func (s *ScopeService) ListScopeNames(ctx context.Context) ([]string, error) {
	scopes, err := s.repo.ListScopes(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(scopes))
	for _, scope := range scopes {
		names = append(names, scope.Name)
	}
	return names, nil
}
