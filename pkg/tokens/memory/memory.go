// Package memory provides an in-memory tokens.Store for tests and
// single-node deployments. Credentials are lost on restart.
package memory

import (
	"context"
	"sync"

	"github.com/rhuss/termin/pkg/credential"
	"github.com/rhuss/termin/pkg/tokens"
)

// Store is an in-memory credential store.
type Store struct {
	mu    sync.RWMutex
	creds map[string]credential.Credential
}

// Ensure Store implements tokens.Store at compile time.
var _ tokens.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{creds: make(map[string]credential.Credential)}
}

// Save stores cred keyed by subject.
func (s *Store) Save(_ context.Context, cred credential.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[cred.Subject] = cred
	return nil
}

// Get returns the credential stored for subject.
func (s *Store) Get(_ context.Context, subject string) (credential.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cred, ok := s.creds[subject]
	if !ok {
		return credential.Credential{}, tokens.ErrNoCredential
	}
	return cred, nil
}

// Any returns an arbitrary stored credential (map iteration order).
func (s *Store) Any(_ context.Context) (credential.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, cred := range s.creds {
		return cred, nil
	}
	return credential.Credential{}, tokens.ErrNoCredential
}

// Delete removes the credential stored for subject.
func (s *Store) Delete(_ context.Context, subject string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.creds, subject)
	return nil
}
