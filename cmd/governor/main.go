package main

import (
	"context"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/nooma-42/rama-x-governor/internal/auth"
	"github.com/nooma-42/rama-x-governor/internal/config"
	"github.com/nooma-42/rama-x-governor/internal/gateway"
	"github.com/nooma-42/rama-x-governor/internal/governor"
	"github.com/nooma-42/rama-x-governor/internal/obs"
	"github.com/nooma-42/rama-x-governor/internal/proxy"
	"github.com/nooma-42/rama-x-governor/internal/routing"
)

func main() {
	path := "./config.yaml"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := obs.SetupLogger(cfg.Observability.LogLevel)

	reg := prometheus.NewRegistry()
	metrics := obs.NewMetrics(reg)

	policy, err := buildPolicy(cfg.Limits, cfg.Limits.Default, logger, metrics)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid default limit")
	}
	defer policy.Close()
	obs.RegisterLiveKeys(reg, policy.Keys)

	router, err := buildRouter(cfg, logger, metrics)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid routes")
	}
	defer router.Close()

	var keyOf gateway.RequestKeyFunc
	switch cfg.Limits.KeyBy {
	case "ip":
		keyOf = gateway.ClientIPKey
	case "api_key":
		keyOf = gateway.APIKeyOrIP
	case "global":
		keyOf = nil
	}

	pairs := map[string]string{} // secret -> keyID
	for _, k := range cfg.Auth.Keys {
		if k.Secret != "" && k.ID != "" {
			pairs[k.Secret] = k.ID
		}
	}
	authStore := auth.NewStatic(cfg.Auth.Header, pairs)

	skip := map[string]struct{}{
		"/health":                        {},
		cfg.Observability.PrometheusPath: {},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	mux.Handle(cfg.Observability.PrometheusPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Handle("/", proxy.Handler(proxy.NewHTTPTransport()))

	handler := gateway.Chain(
		mux,
		obs.Logger(logger),
		gateway.BodyLimit(cfg.Server.MaxBody()),
		authStore.Middleware(skip),
		gateway.RouteMatcher(router, skip, logger),
		metrics.Middleware(skip),
		gateway.RateLimit(policy, keyOf, skip,
			func(routeID string) { metrics.RateLimited.WithLabelValues(routeID).Inc() },
			func(routeID string) { metrics.LimiterErrors.WithLabelValues(routeID).Inc() },
		),
	)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout(),
		IdleTimeout:       cfg.Server.IdleTimeout(),
		ReadTimeout:       cfg.Server.ReadTimeout(),
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	logger.Info().Msg("bye")
}

// buildPolicy turns a limit section into an admission policy wired to the
// logger and the GC eviction counter.
func buildPolicy(l config.Limits, lim config.Limit, logger zerolog.Logger, m *obs.Metrics) (*governor.Policy, error) {
	var qb *governor.QuotaBuilder
	switch {
	case lim.RequestsPerSecond > 0:
		qb = governor.NewBuilder().PerSecond(lim.RequestsPerSecond)
	default:
		qb = governor.NewBuilder().PerMinute(lim.RequestsPerMinute)
	}
	if lim.Burst > 0 {
		qb = qb.BurstSize(lim.Burst)
	}
	qb = qb.
		GCInterval(l.GCInterval()).
		Logger(logger).
		OnSweep(func(evicted int) { m.GCEvictions.Add(float64(evicted)) })
	if l.IdleThresholdMS > 0 {
		qb = qb.IdleThreshold(l.IdleThreshold())
	}
	if l.MaxKeys > 0 {
		qb = qb.MaxKeys(l.MaxKeys)
	}

	if l.KeyBy == "global" {
		return qb.Build()
	}
	return qb.BuildWithKeyer(func(raw string) string { return raw })
}

func buildRouter(cfg *config.Root, logger zerolog.Logger, m *obs.Metrics) (*routing.Router, error) {
	router := routing.New()
	for _, rc := range cfg.Routes {
		up, err := url.Parse(rc.Upstream.URL)
		if err != nil {
			return nil, err
		}
		methods := map[string]struct{}{}
		for _, meth := range rc.Match.Methods {
			methods[strings.ToUpper(meth)] = struct{}{}
		}
		rt := &routing.Route{
			ID:      rc.ID,
			Methods: methods,
			Prefix:  rc.Match.PathPrefix,
			UpURL:   up,
			Timeout: time.Duration(rc.Upstream.TimeoutMS) * time.Millisecond,
		}
		if rc.Limit != nil {
			rt.Limit, err = buildPolicy(cfg.Limits, *rc.Limit, logger, m)
			if err != nil {
				return nil, err
			}
		}
		router.Add(rt)
	}
	return router, nil
}
