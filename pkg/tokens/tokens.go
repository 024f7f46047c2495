// Package tokens defines the upstream-credential store consumed by the
// OAuth callback (writer), the request middleware (per-subject reads),
// and the publisher daemon (any-credential reads).
package tokens

import (
	"context"
	"errors"

	"github.com/rhuss/termin/pkg/credential"
)

// Store persists one upstream credential per subject.
type Store interface {
	// Save stores cred keyed by its subject, replacing any previous
	// credential for that subject.
	Save(ctx context.Context, cred credential.Credential) error

	// Get returns the credential stored for subject.
	// Returns ErrNoCredential when none is stored.
	Get(ctx context.Context, subject string) (credential.Credential, error)

	// Any returns an arbitrary stored credential. The daemon uses this
	// when no inbound request scopes the choice. Returns ErrNoCredential
	// when the store is empty.
	Any(ctx context.Context) (credential.Credential, error)

	// Delete removes the credential stored for subject. Deleting an
	// absent subject is not an error.
	Delete(ctx context.Context, subject string) error
}

// ErrNoCredential is returned when no stored credential satisfies a
// lookup. For the daemon this is an expected, recoverable condition.
var ErrNoCredential = errors.New("no stored credential")
