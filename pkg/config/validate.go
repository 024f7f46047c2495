package config

import (
	"errors"
	"fmt"
)

// Validate checks the configuration for consistency and required fields.
// It collects all problems instead of stopping at the first one.
func (c *Config) Validate() error {
	var errs []error

	// server.port must be positive.
	if c.Server.Port <= 0 {
		errs = append(errs, fmt.Errorf("server.port must be > 0, got %d", c.Server.Port))
	}

	// server.base_url is required for the OAuth redirect URI.
	if c.Server.BaseURL == "" {
		errs = append(errs, fmt.Errorf("server.base_url is required"))
	}

	// provider credentials are required.
	if c.Provider.ClientID == "" {
		errs = append(errs, fmt.Errorf("provider.client_id or provider.client_id_file is required"))
	}
	if c.Provider.ClientSecret == "" {
		errs = append(errs, fmt.Errorf("provider.client_secret or provider.client_secret_file is required"))
	}

	// session.secret is required to sign session tokens.
	if c.Session.Secret == "" {
		errs = append(errs, fmt.Errorf("session.secret or session.secret_file is required"))
	}

	// storage.tokens.type must be a known value.
	switch c.Storage.Tokens.Type {
	case "memory", "postgres":
		// valid
	default:
		errs = append(errs, fmt.Errorf("storage.tokens.type must be \"memory\" or \"postgres\", got %q", c.Storage.Tokens.Type))
	}

	// If storage.tokens.type is "postgres", DSN or DSNFile must be set.
	if c.Storage.Tokens.Type == "postgres" {
		if c.Storage.Tokens.Postgres.DSN == "" && c.Storage.Tokens.Postgres.DSNFile == "" {
			errs = append(errs, fmt.Errorf("storage.tokens.postgres.dsn or storage.tokens.postgres.dsn_file is required when storage.tokens.type is \"postgres\""))
		}
	}

	// daemon.poll_interval must be positive when the daemon is enabled.
	if c.Daemon.Enabled && c.Daemon.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("daemon.poll_interval must be > 0, got %s", c.Daemon.PollInterval))
	}

	return errors.Join(errs...)
}
