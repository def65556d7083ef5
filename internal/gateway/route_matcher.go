package gateway

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/nooma-42/rama-x-governor/internal/routing"
)

// RouteMatcher resolves the route for each request and stores it in the
// request context for the limiter, metrics and proxy downstream.
func RouteMatcher(rr *routing.Router, skip map[string]struct{}, log zerolog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := skip[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			rt, ok := rr.Match(r.Method, r.URL.Path)
			if !ok {
				log.Debug().Str("method", r.Method).Str("path", r.URL.Path).Msg("no matching route")
				writeJSON(w, http.StatusNotFound, "no_route", "no matching route")
				return
			}

			next.ServeHTTP(w, routing.WithRoute(r, rt))
		})
	}
}
