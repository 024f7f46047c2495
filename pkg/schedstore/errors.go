package schedstore

import "errors"

// Sentinel errors for store operations.
var (
	// ErrNotFound is returned when a post does not exist, belongs to a
	// different subject, or is no longer in a state the operation accepts.
	ErrNotFound = errors.New("post not found")

	// ErrNoStorage is returned by the ambient storage accessor when the
	// calling context carries no handle cache, meaning the code path was
	// reached outside a configured request or daemon scope.
	ErrNoStorage = errors.New("no storage handle in scope")
)
