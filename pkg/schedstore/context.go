package schedstore

import "context"

// cacheKey is a private type for the cache-carrier context key.
type cacheKey struct{}

type cacheCarrier struct {
	cache *DBCache
	owner string
}

// WithCache attaches a handle cache and the calling owner's identity
// to the context. The ambient storage accessor resolves handles
// through this carrier, so the request path and the daemon each wire
// their own cache instance and owner without sharing state.
func WithCache(ctx context.Context, cache *DBCache, owner string) context.Context {
	return context.WithValue(ctx, cacheKey{}, cacheCarrier{cache: cache, owner: owner})
}

// CacheFromContext extracts the handle cache and owner attached to the
// context. Returns false when the context carries none.
func CacheFromContext(ctx context.Context) (*DBCache, string, bool) {
	c, ok := ctx.Value(cacheKey{}).(cacheCarrier)
	if !ok {
		return nil, "", false
	}
	return c.cache, c.owner, true
}
