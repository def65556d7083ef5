package gateway

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/nooma-42/rama-x-governor/internal/governor"
	"github.com/nooma-42/rama-x-governor/internal/routing"
)

// RateLimit enforces admission control in front of next. keyOf extracts each
// request's keying input; nil means every request shares the policy's global
// cell. A matched route carrying its own policy overrides the default one.
// onLimited and onError are per-route hooks for metrics.
func RateLimit(
	policy *governor.Policy,
	keyOf RequestKeyFunc,
	skipPaths map[string]struct{},
	onLimited func(routeID string),
	onError func(routeID string),
) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := skipPaths[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			routeID := "unknown"
			p := policy
			if rt, ok := routing.RouteFrom(r); ok && rt != nil {
				if rt.ID != "" {
					routeID = rt.ID
				}
				if rt.Limit != nil {
					p = rt.Limit
				}
			}

			raw := ""
			if keyOf != nil {
				raw = keyOf(r)
			}

			dec, err := p.Allow(raw, time.Now())
			if err != nil {
				if onError != nil {
					onError(routeID)
				}
				// distinct from throttling: key cardinality blew the cap
				if errors.Is(err, governor.ErrTooManyKeys) {
					writeJSON(w, http.StatusInternalServerError, "limiter_overloaded", "too many tracked clients")
				} else {
					writeJSON(w, http.StatusInternalServerError, "limiter_error", "internal rate limiter error")
				}
				return
			}

			q := p.Quota()
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(q.Burst()))
			w.Header().Set("X-RateLimit-Interval", q.ReplenishInterval().String())

			if !dec.Allowed {
				if onLimited != nil {
					onLimited(routeID)
				}
				w.Header().Set("Retry-After", strconv.FormatInt(retryAfterSeconds(dec.RetryAfter), 10))
				writeJSON(w, http.StatusTooManyRequests, "rate_limited", "Too many requests")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// retryAfterSeconds rounds d up to whole seconds so clients never retry
// early; exact multiples are not inflated.
func retryAfterSeconds(d time.Duration) int64 {
	return int64((d + time.Second - 1) / time.Second)
}
