// Package credential defines the per-caller upstream credential and the
// request-scoped propagation machinery that makes it visible to ambient
// accessors without being passed as a parameter.
package credential

import (
	"errors"
	"log/slog"
)

// Credential is one authenticated caller's right to act against the
// upstream publishing API: an opaque access token plus an optional
// subject identifier. The zero value means "absent". Credentials are
// immutable values; equality is by value.
type Credential struct {
	// AccessToken is the opaque upstream bearer token. Required.
	AccessToken string

	// Subject identifies the caller at the upstream provider
	// (typically the verified email). May be empty.
	Subject string
}

// IsZero reports whether the credential is absent.
func (c Credential) IsZero() bool {
	return c.AccessToken == "" && c.Subject == ""
}

// LogValue redacts the access token so credentials are never logged in full.
func (c Credential) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("subject", c.Subject),
		slog.String("access_token", redact(c.AccessToken)),
	)
}

// redact keeps the last four characters of a token for correlation.
func redact(token string) string {
	if len(token) <= 4 {
		return "****"
	}
	return "****" + token[len(token)-4:]
}

// ErrUnauthenticated is returned when an ambient client accessor is
// invoked with no credential in scope. It signals that a code path was
// reached outside an authenticated request.
var ErrUnauthenticated = errors.New("no credential in scope")
