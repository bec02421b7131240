package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/angeloszaimis/domain-proxy/internal/cache"
	"github.com/angeloszaimis/domain-proxy/internal/handler"
	"github.com/angeloszaimis/domain-proxy/internal/latency"
	"github.com/angeloszaimis/domain-proxy/internal/metrics"
)

// setupProxyRouter serves GET and HEAD on every path. Routing to a service is
// done by the proxy handler on the Host header; chi answers other methods
// with 405.
func setupProxyRouter(proxyHandler *handler.ProxyHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Method(http.MethodGet, "/*", proxyHandler)
	r.Method(http.MethodHead, "/*", proxyHandler)

	return r
}

func setupAdminRouter(
	collector *metrics.Collector,
	recorder *metrics.Recorder,
	tracker *latency.Tracker,
	respCache *cache.ResponseCache,
) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.GetHead)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("ok"))
	})
	r.Get("/stats", collector.Handler(func(s *metrics.Snapshot) {
		stats := tracker.Snapshot()
		s.Latency = &stats
		s.CacheEntries = respCache.Len()
	}))
	r.Method(http.MethodGet, "/metrics", recorder.Handler())

	return r
}
