package ambient

import (
	"context"
	"fmt"

	"github.com/rhuss/termin/pkg/credential"
	"github.com/rhuss/termin/pkg/linkedin"
	"github.com/rhuss/termin/pkg/schedstore"
)

// ScopedClient returns the context-aware client accessor: it reads the
// credential installed on the calling logical request and builds a
// client bound to it. clientOpts are applied to every built client
// (base URL override, custom HTTP client).
func ScopedClient(clientOpts ...linkedin.Option) ClientFunc {
	return func(ctx context.Context) (*linkedin.Client, error) {
		cred, ok := credential.Get(ctx)
		if !ok {
			return nil, fmt.Errorf("resolving client: %w", credential.ErrUnauthenticated)
		}
		return linkedin.NewClient(cred.AccessToken, "", clientOpts...), nil
	}
}

// CachedStorage returns the owner-aware storage accessor: it reads the
// handle cache and owner identity carried by the calling context and
// resolves the owner's handle for path. The request middleware and the
// daemon each attach their own cache, so their handles never mix.
func CachedStorage(path string) StorageFunc {
	if path == "" {
		path = schedstore.DefaultPath()
	}
	return func(ctx context.Context) (*schedstore.DB, error) {
		cache, owner, ok := schedstore.CacheFromContext(ctx)
		if !ok {
			return nil, fmt.Errorf("resolving storage: %w", schedstore.ErrNoStorage)
		}
		db, err := cache.Get(owner, path)
		if err != nil {
			return nil, fmt.Errorf("resolving storage for %s: %w", owner, err)
		}
		return db, nil
	}
}
