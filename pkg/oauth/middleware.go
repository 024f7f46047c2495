package oauth

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/rhuss/termin/pkg/credential"
	"github.com/rhuss/termin/pkg/observability"
	"github.com/rhuss/termin/pkg/schedstore"
	"github.com/rhuss/termin/pkg/tokens"
)

// requestSeq numbers requests so each one gets its own cache owner.
var requestSeq atomic.Uint64

// Middleware authenticates requests with a gateway session token and
// binds the caller's upstream credential to the request context. Each
// request also gets its own owner slot in the storage handle cache,
// released when the request completes.
func (p *Provider) Middleware(cache *schedstore.DBCache) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				observability.AuthFailuresTotal.Inc()
				w.Header().Set("WWW-Authenticate", `Bearer realm="termin"`)
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}

			subject, err := p.verifySession(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				observability.AuthFailuresTotal.Inc()
				p.logger.Debug("session verification failed", "error", err)
				http.Error(w, "invalid session token", http.StatusUnauthorized)
				return
			}

			cred, err := p.tokens.Get(r.Context(), subject)
			if err != nil {
				if errors.Is(err, tokens.ErrNoCredential) {
					observability.AuthFailuresTotal.Inc()
					http.Error(w, "no upstream credential, authorize first", http.StatusUnauthorized)
					return
				}
				p.logger.Error("credential lookup failed", "subject", subject, "error", err)
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}

			owner := "req-" + strconv.FormatUint(requestSeq.Add(1), 10)
			ctx := schedstore.WithCache(r.Context(), cache, owner)
			defer cache.Release(owner)

			err = credential.WithCredential(ctx, cred, func(ctx context.Context) error {
				next.ServeHTTP(w, r.WithContext(ctx))
				return nil
			})
			if err != nil {
				p.logger.Error("credential scope failed", "error", err)
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
		})
	}
}
