// Package config provides unified configuration for the termin gateway.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (TERMIN_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import "time"

// Config holds all configuration for the termin gateway.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Provider      ProviderConfig      `yaml:"provider"`
	Session       SessionConfig       `yaml:"session"`
	Storage       StorageConfig       `yaml:"storage"`
	Daemon        DaemonConfig        `yaml:"daemon"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`          // default: 8080
	BaseURL      string        `yaml:"base_url"`      // externally reachable URL, required
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"` // default: 120s
}

// ProviderConfig holds the upstream OAuth provider settings.
type ProviderConfig struct {
	Name             string `yaml:"name"`               // default: "LinkedIn"
	AuthorizeURL     string `yaml:"authorize_url"`      // default: LinkedIn authorize endpoint
	TokenURL         string `yaml:"token_url"`          // default: LinkedIn token endpoint
	UserInfoURL      string `yaml:"user_info_url"`      // default: LinkedIn userinfo endpoint
	APIBaseURL       string `yaml:"api_base_url"`       // default: "https://api.linkedin.com"
	ClientID         string `yaml:"client_id"`          // required
	ClientIDFile     string `yaml:"client_id_file"`     // _file variant for client_id
	ClientSecret     string `yaml:"client_secret"`      // required
	ClientSecretFile string `yaml:"client_secret_file"` // _file variant for client_secret
	Scopes           string `yaml:"scopes"`             // default: "openid profile email w_member_social"
}

// SessionConfig holds gateway session token settings.
type SessionConfig struct {
	Secret     string        `yaml:"secret"`      // required
	SecretFile string        `yaml:"secret_file"` // _file variant for secret
	TTL        time.Duration `yaml:"ttl"`         // default: 24h
}

// StorageConfig holds scheduled-post and token storage settings.
type StorageConfig struct {
	// Path is the SQLite database file for scheduled posts.
	// Default: <data_dir>/scheduled_posts.db.
	Path string `yaml:"path"`

	// Tokens selects where upstream credentials are stored.
	Tokens TokensConfig `yaml:"tokens"`
}

// TokensConfig holds the upstream credential store settings.
type TokensConfig struct {
	Type     string         `yaml:"type"` // "memory" or "postgres", default: "memory"
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"`         // _file variant for dsn
	MaxConns       int32  `yaml:"max_conns"`        // default: 25
	MigrateOnStart bool   `yaml:"migrate_on_start"` // default: false
}

// DaemonConfig holds publisher daemon settings.
type DaemonConfig struct {
	Enabled      bool          `yaml:"enabled"`       // default: true
	PollInterval time.Duration `yaml:"poll_interval"` // default: 60s
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 120 * time.Second,
		},
		Provider: ProviderConfig{
			Name:         "LinkedIn",
			AuthorizeURL: "https://www.linkedin.com/oauth/v2/authorization",
			TokenURL:     "https://www.linkedin.com/oauth/v2/accessToken",
			UserInfoURL:  "https://api.linkedin.com/v2/userinfo",
			APIBaseURL:   "https://api.linkedin.com",
			Scopes:       "openid profile email w_member_social",
		},
		Session: SessionConfig{
			TTL: 24 * time.Hour,
		},
		Storage: StorageConfig{
			Tokens: TokensConfig{
				Type: "memory",
				Postgres: PostgresConfig{
					MaxConns: 25,
				},
			},
		},
		Daemon: DaemonConfig{
			Enabled:      true,
			PollInterval: 60 * time.Second,
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}
