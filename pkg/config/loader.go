package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, TERMIN_CONFIG env, ./config.yaml, /etc/termin/config.yaml)
//  3. Environment variable overrides
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	// Start with defaults.
	cfg := Defaults()

	// Discover and load YAML config file.
	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	// Apply environment variable overrides.
	applyEnvOverrides(&cfg)

	// Resolve _file references.
	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	// Validate.
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. TERMIN_CONFIG environment variable
// 3. ./config.yaml in the current directory
// 4. /etc/termin/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	// Explicit path takes priority.
	if configPath != "" {
		return configPath
	}

	// Check TERMIN_CONFIG env var.
	if envPath := os.Getenv("TERMIN_CONFIG"); envPath != "" {
		return envPath
	}

	// Check common locations.
	candidates := []string{
		"config.yaml",
		"/etc/termin/config.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides maps environment variables to config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TERMIN_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("TERMIN_BASE_URL"); v != "" {
		cfg.Server.BaseURL = v
	}
	if v := os.Getenv("TERMIN_OAUTH_CLIENT_ID"); v != "" {
		cfg.Provider.ClientID = v
	}
	if v := os.Getenv("TERMIN_OAUTH_CLIENT_SECRET"); v != "" {
		cfg.Provider.ClientSecret = v
	}
	if v := os.Getenv("TERMIN_SESSION_SECRET"); v != "" {
		cfg.Session.Secret = v
	}
	if v := os.Getenv("TERMIN_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("TERMIN_TOKENS_TYPE"); v != "" {
		cfg.Storage.Tokens.Type = v
	}
	if v := os.Getenv("TERMIN_TOKENS_DSN"); v != "" {
		cfg.Storage.Tokens.Postgres.DSN = v
	}
	if v := os.Getenv("TERMIN_POLL_INTERVAL_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			cfg.Daemon.PollInterval = time.Duration(secs) * time.Second
		}
	}
}

// resolveFileReferences reads _file fields and populates the corresponding value fields.
// For each field ending in _file, if the value field is empty and the file field is set,
// the file is read, whitespace is trimmed, and the value field is populated.
func resolveFileReferences(cfg *Config) error {
	// provider.client_id_file -> provider.client_id
	if cfg.Provider.ClientIDFile != "" && cfg.Provider.ClientID == "" {
		val, err := readSecretFile(cfg.Provider.ClientIDFile)
		if err != nil {
			return fmt.Errorf("provider.client_id_file: %w", err)
		}
		cfg.Provider.ClientID = val
	}

	// provider.client_secret_file -> provider.client_secret
	if cfg.Provider.ClientSecretFile != "" && cfg.Provider.ClientSecret == "" {
		val, err := readSecretFile(cfg.Provider.ClientSecretFile)
		if err != nil {
			return fmt.Errorf("provider.client_secret_file: %w", err)
		}
		cfg.Provider.ClientSecret = val
	}

	// session.secret_file -> session.secret
	if cfg.Session.SecretFile != "" && cfg.Session.Secret == "" {
		val, err := readSecretFile(cfg.Session.SecretFile)
		if err != nil {
			return fmt.Errorf("session.secret_file: %w", err)
		}
		cfg.Session.Secret = val
	}

	// storage.tokens.postgres.dsn_file -> storage.tokens.postgres.dsn
	if cfg.Storage.Tokens.Postgres.DSNFile != "" && cfg.Storage.Tokens.Postgres.DSN == "" {
		val, err := readSecretFile(cfg.Storage.Tokens.Postgres.DSNFile)
		if err != nil {
			return fmt.Errorf("storage.tokens.postgres.dsn_file: %w", err)
		}
		cfg.Storage.Tokens.Postgres.DSN = val
	}

	return nil
}

// readSecretFile reads a file and returns its content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
