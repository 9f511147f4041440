package gitrepo

import (
	"github.com/go-git/go-git/v5/plumbing/transport"
)

// Provider adapts a git hosting service (GitHub, a self-hosted server, ...)
type Provider interface {
	// Name returns the provider name (e.g., "github", "generic")
	Name() string

	// CloneURL converts a normalized repository URL to the URL handed to git
	CloneURL(url string) string

	// Auth returns the authentication method for this provider (nil if no auth)
	Auth() transport.AuthMethod

	// MatchesURL returns true if the URL belongs to this provider
	MatchesURL(url string) bool
}

// Registry holds providers in priority order
type Registry struct {
	providers []Provider
	fallback  Provider
}

// NewRegistry creates a registry that falls back to plain unauthenticated git
func NewRegistry(providers ...Provider) *Registry {
	return &Registry{
		providers: providers,
		fallback:  genericProvider{},
	}
}

// Register adds a provider to the registry
func (r *Registry) Register(p Provider) {
	r.providers = append(r.providers, p)
}

// Detect finds the provider for url, falling back to plain git
func (r *Registry) Detect(url string) Provider {
	for _, p := range r.providers {
		if p.MatchesURL(url) {
			return p
		}
	}
	return r.fallback
}

type genericProvider struct{}

func (genericProvider) Name() string                 { return "generic" }
func (genericProvider) CloneURL(url string) string   { return url }
func (genericProvider) Auth() transport.AuthMethod   { return nil }
func (genericProvider) MatchesURL(url string) bool   { return true }
