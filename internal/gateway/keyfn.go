package gateway

import (
	"net"
	"net/http"
	"strings"

	"github.com/nooma-42/rama-x-governor/internal/auth"
)

// RequestKeyFunc extracts the raw keying input a policy partitions on.
type RequestKeyFunc func(r *http.Request) string

// ClientIPKey keys requests by client IP, trusting proxy headers when
// present.
func ClientIPKey(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// APIKeyOrIP keys authenticated requests by their API key ID and everything
// else by client IP.
func APIKeyOrIP(r *http.Request) string {
	if id, ok := auth.KeyIDFrom(r.Context()); ok && id != "" {
		return "key:" + id
	}
	return ClientIPKey(r)
}

// GlobalKey maps every request onto one shared key.
func GlobalKey(*http.Request) string { return "" }
