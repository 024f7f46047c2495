package schedstore

import (
	"fmt"
	"io"
	"sync"
)

// HandleCache keeps one open handle per owner, keyed by resource path.
// It is the Go rendition of thread-local storage: instead of implicit
// per-thread slots, an explicit map from owner identity to handle,
// populated lazily and replaced (old handle closed first) when the
// same owner asks for a different path. Handles are never shared or
// passed between owners; the mutex guards only the map, not the
// handles themselves.
type HandleCache[H io.Closer] struct {
	open func(path string) (H, error)

	mu      sync.Mutex
	entries map[string]*cacheEntry[H]
}

type cacheEntry[H io.Closer] struct {
	path   string
	handle H
}

// NewHandleCache creates a cache that opens handles with open.
func NewHandleCache[H io.Closer](open func(path string) (H, error)) *HandleCache[H] {
	return &HandleCache[H]{
		open:    open,
		entries: make(map[string]*cacheEntry[H]),
	}
}

// Get returns owner's cached handle if it was opened for path.
// Otherwise the previously cached handle (if any) is closed first and
// a fresh one is opened. When opening fails, owner's entry is left
// empty rather than poisoned, and the error propagates.
func (c *HandleCache[H]) Get(owner, path string) (H, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero H

	if e, ok := c.entries[owner]; ok {
		if e.path == path {
			return e.handle, nil
		}
		if err := e.handle.Close(); err != nil {
			return zero, fmt.Errorf("closing handle for %s: %w", e.path, err)
		}
		delete(c.entries, owner)
	}

	h, err := c.open(path)
	if err != nil {
		return zero, fmt.Errorf("opening handle for %s: %w", path, err)
	}
	c.entries[owner] = &cacheEntry[H]{path: path, handle: h}
	return h, nil
}

// Release closes and drops owner's handle. No-op when the owner holds
// nothing. Called on request teardown; long-lived owners such as the
// daemon keep their handle for the life of the process.
func (c *HandleCache[H]) Release(owner string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[owner]
	if !ok {
		return nil
	}
	delete(c.entries, owner)
	if err := e.handle.Close(); err != nil {
		return fmt.Errorf("closing handle for %s: %w", e.path, err)
	}
	return nil
}

// Close releases every owner's handle. Used at process shutdown.
func (c *HandleCache[H]) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for owner, e := range c.entries {
		delete(c.entries, owner)
		if err := e.handle.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing handle for %s: %w", e.path, err)
		}
	}
	return firstErr
}

// DBCache is the concrete cache of scheduled-post database handles.
type DBCache = HandleCache[*DB]

// NewDBCache creates a cache that opens scheduled-post databases.
func NewDBCache() *DBCache {
	return NewHandleCache(Open)
}
