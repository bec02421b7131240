package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/angeloszaimis/domain-proxy/internal/cache"
	"github.com/angeloszaimis/domain-proxy/internal/latency"
	"github.com/angeloszaimis/domain-proxy/internal/loadbalancer"
	"github.com/angeloszaimis/domain-proxy/internal/metrics"
	"github.com/angeloszaimis/domain-proxy/internal/upstream"
)

const (
	// ContentType is sent on every response; upstream content types are not
	// passed through.
	ContentType = "text/html;charset=utf-8"

	MessageNoService  = "please use one of the domains in the config file"
	MessageProxyError = "error trying to proxy"
)

type ProxyHandler struct {
	logger    *slog.Logger
	balancer  *loadbalancer.LoadBalancer
	cache     *cache.ResponseCache
	cacheTTL  time.Duration
	fetcher   upstream.Fetcher
	tracker   *latency.Tracker
	collector *metrics.Collector
	now       func() time.Time
}

type Option func(*ProxyHandler)

// WithClock replaces time.Now for cache timestamps and latency measurement.
func WithClock(now func() time.Time) Option {
	return func(h *ProxyHandler) {
		h.now = now
	}
}

// WithCollector emits request events to collector.
func WithCollector(collector *metrics.Collector) Option {
	return func(h *ProxyHandler) {
		h.collector = collector
	}
}

// NewProxyHandler wires the request pipeline around caller-owned state.
// A cacheTTL of zero or less disables caching.
func NewProxyHandler(
	logger *slog.Logger,
	balancer *loadbalancer.LoadBalancer,
	respCache *cache.ResponseCache,
	cacheTTL time.Duration,
	fetcher upstream.Fetcher,
	tracker *latency.Tracker,
	opts ...Option,
) *ProxyHandler {
	h := &ProxyHandler{
		logger:   logger,
		balancer: balancer,
		cache:    respCache,
		cacheTTL: cacheTTL,
		fetcher:  fetcher,
		tracker:  tracker,
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// ServeHTTP runs match, select, cache check, fetch, store and respond, in
// that order, stopping at the first response. Bodies are fully buffered
// before the status line is written. Latency is recorded exactly once per
// request on every path.
func (h *ProxyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := h.now()

	var (
		domain string
		status int
	)

	defer func() {
		duration := h.now().Sub(start)
		h.tracker.Record(duration)
		h.collector.Emit(metrics.MetricEvent{
			Type:       metrics.EventResponseCompleted,
			Timestamp:  start,
			Domain:     domain,
			Duration:   duration,
			StatusCode: status,
		})
	}()

	h.logger.Info("Received request",
		slog.String("from", r.RemoteAddr),
		slog.String("method", r.Method),
		slog.String("path", r.URL.RequestURI()),
		slog.String("host", r.Host))

	svc, err := h.balancer.Match(r.Host)
	if err != nil {
		h.collector.Emit(metrics.MetricEvent{Type: metrics.EventRequestReceived, Timestamp: start})
		h.logger.Warn("No service for host", slog.String("host", r.Host))
		status = h.respondNotFound(w, r, MessageNoService)
		return
	}

	domain = svc.Domain()
	h.collector.Emit(metrics.MetricEvent{Type: metrics.EventRequestReceived, Timestamp: start, Domain: domain})

	sel, err := h.balancer.Select(svc)
	if err != nil {
		h.logger.Error("Host selection failed", slog.String("domain", domain), slog.Any("err", err))
		status = h.respondNotFound(w, r, MessageProxyError)
		return
	}

	h.collector.Emit(metrics.MetricEvent{
		Type:      metrics.EventHostSelected,
		Timestamp: start,
		Domain:    domain,
		Host:      sel.Host.String(),
	})

	targetURL := sel.Host.TargetURL(r.URL.RequestURI())
	fingerprint := cache.Fingerprint(r.RemoteAddr)

	if h.cacheTTL > 0 {
		res := h.cache.Lookup(targetURL, fingerprint, h.cacheTTL, start)

		h.collector.Emit(metrics.MetricEvent{
			Type:         metrics.EventCacheLookup,
			Timestamp:    start,
			Domain:       domain,
			CacheOutcome: res.Outcome.String(),
		})
		h.logger.Debug("Cache lookup",
			slog.String("url", targetURL),
			slog.String("outcome", res.Outcome.String()))

		switch res.Outcome {
		case cache.NotModified:
			status = res.Entry.StatusCode
			h.write(w, r, status, nil)
			return
		case cache.CachedHit:
			status = res.Entry.StatusCode
			h.write(w, r, status, res.Entry.Body)
			return
		case cache.Miss:
		}
	}

	h.logger.Info("Proxying request",
		slog.String("url", targetURL),
		slog.String("strategy", svc.Strategy()),
		slog.Int("host_index", sel.Index))

	resp, err := h.fetcher.Fetch(r.Context(), targetURL)
	if err != nil {
		h.logger.Warn("Upstream fetch failed",
			slog.String("url", targetURL),
			slog.Any("err", err))
		status = h.respondNotFound(w, r, MessageProxyError)
		return
	}

	if h.cacheTTL > 0 {
		h.cache.Store(targetURL, resp.Body, resp.StatusCode, fingerprint, h.cacheTTL, start)
	}

	status = resp.StatusCode
	h.write(w, r, status, resp.Body)
}

func (h *ProxyHandler) respondNotFound(w http.ResponseWriter, r *http.Request, message string) int {
	h.write(w, r, http.StatusNotFound, []byte(message+"\n"))
	return http.StatusNotFound
}

// write sends status with an exact Content-Length. HEAD requests get the
// headers only. A nil body produces Content-Length: 0.
func (h *ProxyHandler) write(w http.ResponseWriter, r *http.Request, status int, body []byte) {
	header := w.Header()
	header.Set("Content-Type", ContentType)

	if !bodyAllowedForStatus(status) {
		w.WriteHeader(status)
		return
	}

	header.Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)

	if r.Method == http.MethodHead || len(body) == 0 {
		return
	}

	if _, err := w.Write(body); err != nil {
		h.logger.Debug("Writing response body failed", slog.Any("err", err))
	}
}

func bodyAllowedForStatus(status int) bool {
	switch {
	case status >= 100 && status <= 199:
		return false
	case status == http.StatusNoContent:
		return false
	case status == http.StatusNotModified:
		return false
	}
	return true
}
