package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder publishes proxy activity as Prometheus series. A nil Recorder is
// valid and records nothing.
type Recorder struct {
	gatherer prometheus.Gatherer
	handler  http.Handler

	requests       *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
	cacheLookups   *prometheus.CounterVec
	hostSelections *prometheus.CounterVec
}

// NewRecorder registers the proxy collectors on reg, or on a dedicated
// registry when reg is nil so several recorders can coexist in tests.
func NewRecorder(reg *prometheus.Registry) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	reg.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "domainproxy",
		Subsystem: "proxy",
		Name:      "requests_total",
		Help:      "Total proxied requests by domain and response status.",
	}, []string{"domain", "status_code"})

	requestLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "domainproxy",
		Subsystem: "proxy",
		Name:      "request_duration_seconds",
		Help:      "Time from request entry until the response was written.",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"domain"})

	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "domainproxy",
		Subsystem: "cache",
		Name:      "lookups_total",
		Help:      "Response cache lookups by outcome.",
	}, []string{"domain", "outcome"})

	hostSelections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "domainproxy",
		Subsystem: "balancer",
		Name:      "selections_total",
		Help:      "Upstream host selections per service.",
	}, []string{"domain", "host"})

	reg.MustRegister(requests, requestLatency, cacheLookups, hostSelections)

	return &Recorder{
		gatherer:       reg,
		handler:        promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		requests:       requests,
		requestLatency: requestLatency,
		cacheLookups:   cacheLookups,
		hostSelections: hostSelections,
	}
}

// Handler exposes the Prometheus HTTP handler for the recorder's registry.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "metrics unavailable", http.StatusServiceUnavailable)
		})
	}
	return r.handler
}

// Gatherer returns the underlying gatherer for tests.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.gatherer
}

func (r *Recorder) ObserveResponse(domain string, statusCode int, duration time.Duration) {
	if r == nil {
		return
	}
	statusLabel := strconv.Itoa(statusCode)
	if statusCode <= 0 {
		statusLabel = "unknown"
	}
	domainLabel := normalizeLabel(domain)
	r.requests.WithLabelValues(domainLabel, statusLabel).Inc()
	r.requestLatency.WithLabelValues(domainLabel).Observe(duration.Seconds())
}

func (r *Recorder) ObserveCacheLookup(domain, outcome string) {
	if r == nil {
		return
	}
	r.cacheLookups.WithLabelValues(normalizeLabel(domain), normalizeLabel(outcome)).Inc()
}

func (r *Recorder) ObserveHostSelection(domain, host string) {
	if r == nil {
		return
	}
	r.hostSelections.WithLabelValues(normalizeLabel(domain), normalizeLabel(host)).Inc()
}

func normalizeLabel(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
