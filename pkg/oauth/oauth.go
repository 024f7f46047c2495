// Package oauth implements an OAuth 2.0 authorization-code proxy in
// front of an upstream identity provider. The gateway redirects users
// to the upstream authorize endpoint, exchanges the returned code for
// an upstream access token, stores that token keyed by subject, and
// issues its own HS256 session JWT that clients present on subsequent
// requests.
package oauth

import (
	"fmt"
	"time"
)

// Config holds the OAuth proxy configuration for one upstream provider.
type Config struct {
	// ProviderName is a human-readable provider label used in logs.
	ProviderName string

	// AuthorizeURL is the upstream authorization endpoint.
	AuthorizeURL string

	// TokenURL is the upstream token endpoint for the code exchange.
	TokenURL string

	// UserInfoURL is the upstream OIDC userinfo endpoint used to
	// resolve the subject after a successful exchange.
	UserInfoURL string

	// ClientID and ClientSecret identify the gateway at the upstream
	// provider.
	ClientID     string
	ClientSecret string

	// Scopes is the space-separated scope string requested upstream.
	Scopes string

	// BaseURL is the externally reachable base URL of this gateway,
	// used to build the redirect URI.
	BaseURL string

	// SessionSecret signs session and state JWTs. Required.
	SessionSecret string

	// SessionTTL bounds the lifetime of issued session tokens.
	// Default: 24 hours.
	SessionTTL time.Duration

	// StateTTL bounds how long an authorize redirect remains valid.
	// Default: 10 minutes.
	StateTTL time.Duration
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.SessionTTL == 0 {
		c.SessionTTL = 24 * time.Hour
	}
	if c.StateTTL == 0 {
		c.StateTTL = 10 * time.Minute
	}
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	if c.AuthorizeURL == "" {
		return fmt.Errorf("oauth: authorize URL is required")
	}
	if c.TokenURL == "" {
		return fmt.Errorf("oauth: token URL is required")
	}
	if c.ClientID == "" || c.ClientSecret == "" {
		return fmt.Errorf("oauth: client credentials are required")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("oauth: base URL is required")
	}
	if c.SessionSecret == "" {
		return fmt.Errorf("oauth: session secret is required")
	}
	return nil
}

// RedirectURI returns the callback URL registered at the upstream
// provider.
func (c *Config) RedirectURI() string {
	return c.BaseURL + "/oauth/callback"
}
