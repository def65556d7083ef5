// Package auth resolves API keys to stable key IDs. The resolved ID is
// stored in the request context and doubles as the admission-control keying
// input for authenticated clients (see gateway.APIKeyOrIP), so one tenant's
// rate limit follows its key across addresses.
package auth

import (
	"context"
	"net/http"
	"strings"
)

type ctxKey int

const ctxKeyID ctxKey = 0

// Keyring is a static secret-to-ID registry read from a configurable header.
type Keyring struct {
	header   string
	bySecret map[string]string
}

// NewStatic builds a keyring reading secrets from header, defaulting to
// X-API-Key. pairs maps secret to key ID.
func NewStatic(header string, pairs map[string]string) *Keyring {
	if header == "" {
		header = "X-API-Key"
	}
	return &Keyring{header: header, bySecret: pairs}
}

// Header reports the header the keyring reads secrets from.
func (k *Keyring) Header() string { return k.header }

// Lookup resolves a secret to its key ID.
func (k *Keyring) Lookup(secret string) (string, bool) {
	id, ok := k.bySecret[secret]
	return id, ok
}

// WithKeyID injects the key ID into context.
func WithKeyID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyID, id)
}

// KeyIDFrom extracts the key ID from context (if present).
func KeyIDFrom(ctx context.Context) (string, bool) {
	v := ctx.Value(ctxKeyID)
	if v == nil {
		return "", false
	}
	id, ok := v.(string)
	return id, ok
}

// Middleware rejects requests without a recognized API key and stamps the
// resolved key ID into the context for the limiter and handlers downstream.
// Paths in skipPaths pass through unauthenticated; those requests are keyed
// by client IP instead.
func (k *Keyring) Middleware(skipPaths map[string]struct{}) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := skipPaths[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			secret := strings.TrimSpace(r.Header.Get(k.header))
			if secret == "" {
				writeJSON(w, http.StatusUnauthorized, "missing_api_key", "Provide API key in "+k.header)
				return
			}
			id, ok := k.Lookup(secret)
			if !ok {
				writeJSON(w, http.StatusUnauthorized, "invalid_api_key", "API key not recognized")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithKeyID(r.Context(), id)))
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, errCode, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(`{"error":{"code":"` + errCode + `","message":"` + msg + `"}}`))
}
