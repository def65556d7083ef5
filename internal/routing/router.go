package routing

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nooma-42/rama-x-governor/internal/governor"
)

// Route is one upstream target matched by method and path prefix. Limit,
// when set, is a route-specific admission policy overriding the gateway-wide
// one.
type Route struct {
	ID      string
	Methods map[string]struct{}
	Prefix  string
	UpURL   *url.URL
	Timeout time.Duration
	Limit   *governor.Policy
}

type Router struct {
	routes []*Route
}

func New() *Router {
	return &Router{}
}

func (r *Router) Add(rt *Route) {
	r.routes = append(r.routes, rt)
}

func (r *Router) Routes() []*Route {
	return r.routes
}

// Match returns the first route accepting the method whose prefix covers
// path.
func (r *Router) Match(method, path string) (*Route, bool) {
	m := strings.ToUpper(method)
	for _, rt := range r.routes {
		if _, ok := rt.Methods[m]; !ok {
			continue
		}
		prefix := strings.TrimSuffix(strings.TrimSpace(rt.Prefix), "/")
		// a root prefix is a catch-all
		if prefix == "" {
			return rt, true
		}
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return rt, true
		}
	}
	return nil, false
}

// Close stops the background collectors of all per-route policies.
func (r *Router) Close() {
	for _, rt := range r.routes {
		if rt.Limit != nil {
			rt.Limit.Close()
		}
	}
}

// --- context helpers ---

type ctxKey int

const keyRoute ctxKey = 0

func WithRoute(r *http.Request, rt *Route) *http.Request {
	ctx := context.WithValue(r.Context(), keyRoute, rt)
	return r.WithContext(ctx)
}

func RouteFrom(r *http.Request) (*Route, bool) {
	v := r.Context().Value(keyRoute)
	if v == nil {
		return nil, false
	}
	rt, ok := v.(*Route)
	return rt, ok
}
