// Package postgres provides a PostgreSQL implementation of tokens.Store
// for multi-node deployments where every instance must see the same
// upstream credentials. It uses pgx/v5 for connection pooling.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhuss/termin/pkg/credential"
	"github.com/rhuss/termin/pkg/tokens"
)

// Store is a PostgreSQL-backed credential store.
type Store struct {
	pool *pgxpool.Pool
}

// Ensure Store implements tokens.Store at compile time.
var _ tokens.Store = (*Store)(nil)

// New creates a new PostgreSQL store with the given configuration.
// If MigrateOnStart is true, schema migrations are applied automatically.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Verify connectivity.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return s, nil
}

// Save upserts the credential keyed by its subject.
func (s *Store) Save(ctx context.Context, cred credential.Credential) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO upstream_tokens (subject, access_token, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (subject) DO UPDATE
		SET access_token = EXCLUDED.access_token, updated_at = EXCLUDED.updated_at
	`, cred.Subject, cred.AccessToken, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upserting token: %w", err)
	}
	return nil
}

// Get returns the credential stored for subject.
func (s *Store) Get(ctx context.Context, subject string) (credential.Credential, error) {
	var accessToken string
	err := s.pool.QueryRow(ctx,
		`SELECT access_token FROM upstream_tokens WHERE subject = $1`,
		subject,
	).Scan(&accessToken)
	if errors.Is(err, pgx.ErrNoRows) {
		return credential.Credential{}, tokens.ErrNoCredential
	}
	if err != nil {
		return credential.Credential{}, fmt.Errorf("querying token: %w", err)
	}
	return credential.Credential{AccessToken: accessToken, Subject: subject}, nil
}

// Any returns an arbitrary stored credential.
func (s *Store) Any(ctx context.Context) (credential.Credential, error) {
	var subject, accessToken string
	err := s.pool.QueryRow(ctx,
		`SELECT subject, access_token FROM upstream_tokens LIMIT 1`,
	).Scan(&subject, &accessToken)
	if errors.Is(err, pgx.ErrNoRows) {
		return credential.Credential{}, tokens.ErrNoCredential
	}
	if err != nil {
		return credential.Credential{}, fmt.Errorf("querying token: %w", err)
	}
	return credential.Credential{AccessToken: accessToken, Subject: subject}, nil
}

// Delete removes the credential stored for subject.
func (s *Store) Delete(ctx context.Context, subject string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM upstream_tokens WHERE subject = $1`, subject)
	if err != nil {
		return fmt.Errorf("deleting token: %w", err)
	}
	return nil
}

// HealthCheck verifies database connectivity.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}
