package credential

import (
	"context"
	"fmt"
	"sync"
)

// scopeKey is a private type for the scope context key.
type scopeKey struct{}

// Scope is the per-logical-request slot holding the active credential.
// Each inbound request gets its own Scope via NewScope, so two
// concurrent requests never observe each other's credential even
// though both resolve it through the same ambient accessor.
type Scope struct {
	mu      sync.Mutex
	current Credential
	set     bool
}

// Token captures the slot state prior to a Set so it can be restored.
// Tokens are single-use and must be passed back to Reset on every exit
// path of the scope that called Set.
type Token struct {
	scope *Scope
	prev  Credential
	was   bool
}

// NewScope attaches a fresh, empty credential scope to the context.
// Called once at request entry; nested code shares the same scope.
func NewScope(ctx context.Context) context.Context {
	return context.WithValue(ctx, scopeKey{}, &Scope{})
}

// scopeFrom extracts the scope attached to the context, if any.
func scopeFrom(ctx context.Context) (*Scope, bool) {
	s, ok := ctx.Value(scopeKey{}).(*Scope)
	return s, ok
}

// Set installs cred as the current credential for the calling logical
// request and returns a token capturing the previous value. It fails
// if the context carries no scope, which means the caller is outside
// request-scoped execution.
func Set(ctx context.Context, cred Credential) (Token, error) {
	s, ok := scopeFrom(ctx)
	if !ok {
		return Token{}, fmt.Errorf("setting credential: %w", ErrUnauthenticated)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tok := Token{scope: s, prev: s.current, was: s.set}
	s.current = cred
	s.set = true
	return tok, nil
}

// Reset restores the value captured by tok. Safe to call with the zero
// Token (no-op), so a failed Set can still be deferred unconditionally.
func Reset(tok Token) {
	if tok.scope == nil {
		return
	}
	tok.scope.mu.Lock()
	defer tok.scope.mu.Unlock()
	tok.scope.current = tok.prev
	tok.scope.set = tok.was
}

// Get returns the credential installed for the calling logical request.
// The second result is false when no scope is attached or nothing was set.
func Get(ctx context.Context) (Credential, bool) {
	s, ok := scopeFrom(ctx)
	if !ok {
		return Credential{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.set {
		return Credential{}, false
	}
	return s.current, true
}

// WithCredential runs body with cred installed as the current
// credential and guarantees the prior value is restored afterward,
// on normal return, error, or panic. If the context carries no scope
// yet, a fresh one is attached first.
func WithCredential(ctx context.Context, cred Credential, body func(context.Context) error) error {
	if _, ok := scopeFrom(ctx); !ok {
		ctx = NewScope(ctx)
	}
	tok, err := Set(ctx, cred)
	if err != nil {
		return err
	}
	defer Reset(tok)
	return body(ctx)
}
