// Package ambient holds the two process-wide accessor slots the
// scheduling library resolves its API client and storage handle
// through. The slots are installed exactly once at startup, before any
// tool-dispatch code can run, and replace the single-tenant defaults
// with context-aware lookups: the client accessor reads the
// per-request credential scope, the storage accessor reads the
// per-owner handle cache. An uninstalled slot fails loudly instead of
// returning a default resource with the wrong identity.
package ambient

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/rhuss/termin/pkg/credential"
	"github.com/rhuss/termin/pkg/linkedin"
	"github.com/rhuss/termin/pkg/schedstore"
)

// ClientFunc resolves the API client for the caller identified by ctx.
type ClientFunc func(ctx context.Context) (*linkedin.Client, error)

// StorageFunc resolves the storage handle for the caller identified by ctx.
type StorageFunc func(ctx context.Context) (*schedstore.DB, error)

// ErrAlreadyInstalled is returned when an accessor slot is installed twice.
var ErrAlreadyInstalled = errors.New("accessor already installed")

// Registry holds the two accessor slots. Each slot is written once at
// startup and read concurrently thereafter; no lock is taken after
// installation.
type Registry struct {
	client  atomic.Pointer[ClientFunc]
	storage atomic.Pointer[StorageFunc]
}

// NewRegistry creates a registry with both slots uninstalled.
func NewRegistry() *Registry {
	return &Registry{}
}

// InstallClientAccessor installs fn as the client accessor.
// Fails if a client accessor was already installed.
func (r *Registry) InstallClientAccessor(fn ClientFunc) error {
	if fn == nil {
		return errors.New("nil client accessor")
	}
	if !r.client.CompareAndSwap(nil, &fn) {
		return fmt.Errorf("client accessor: %w", ErrAlreadyInstalled)
	}
	return nil
}

// InstallStorageAccessor installs fn as the storage accessor.
// Fails if a storage accessor was already installed.
func (r *Registry) InstallStorageAccessor(fn StorageFunc) error {
	if fn == nil {
		return errors.New("nil storage accessor")
	}
	if !r.storage.CompareAndSwap(nil, &fn) {
		return fmt.Errorf("storage accessor: %w", ErrAlreadyInstalled)
	}
	return nil
}

// CurrentClient returns the API client for the caller identified by
// ctx. With no accessor installed it fails with ErrUnauthenticated:
// reaching this call outside a configured process means no identity
// can be established, and a silent default would act as the wrong user.
func (r *Registry) CurrentClient(ctx context.Context) (*linkedin.Client, error) {
	fn := r.client.Load()
	if fn == nil {
		return nil, fmt.Errorf("client accessor not installed: %w", credential.ErrUnauthenticated)
	}
	return (*fn)(ctx)
}

// CurrentStorage returns the storage handle for the caller identified
// by ctx. With no accessor installed it fails with ErrNoStorage.
func (r *Registry) CurrentStorage(ctx context.Context) (*schedstore.DB, error) {
	fn := r.storage.Load()
	if fn == nil {
		return nil, fmt.Errorf("storage accessor not installed: %w", schedstore.ErrNoStorage)
	}
	return (*fn)(ctx)
}

// Default is the process-wide registry the scheduling library resolves
// through. cmd/server installs into it at startup.
var Default = NewRegistry()

// InstallClientAccessor installs fn into the default registry.
func InstallClientAccessor(fn ClientFunc) error {
	return Default.InstallClientAccessor(fn)
}

// InstallStorageAccessor installs fn into the default registry.
func InstallStorageAccessor(fn StorageFunc) error {
	return Default.InstallStorageAccessor(fn)
}

// CurrentClient resolves the API client through the default registry.
func CurrentClient(ctx context.Context) (*linkedin.Client, error) {
	return Default.CurrentClient(ctx)
}

// CurrentStorage resolves the storage handle through the default registry.
func CurrentStorage(ctx context.Context) (*schedstore.DB, error) {
	return Default.CurrentStorage(ctx)
}
