// Package metrics collects proxy activity off the request path.
//
// The request orchestrator emits events (request received, host selected,
// cache lookup, response completed) into a buffered channel with
// non-blocking sends. A dedicated goroutine folds them into:
//   - per-domain request counts and status code distribution
//   - per-host selection counts
//   - cache outcome counts (miss, not_modified, hit)
//   - response time averages and percentiles (P50, P95, P99)
//
// The same events feed an optional Prometheus Recorder. Collector.Handler
// serves a JSON snapshot; Recorder.Handler serves the Prometheus exposition.
//
// Example usage:
//
//	recorder := metrics.NewRecorder(nil)
//	collector := metrics.NewCollector(1000, logger, recorder)
//	collector.Start(ctx)
//
//	collector.Emit(metrics.MetricEvent{
//		Type:       metrics.EventResponseCompleted,
//		Domain:     "my-service.my-company.com",
//		Duration:   150 * time.Millisecond,
//		StatusCode: 200,
//	})
//
// On shutdown the collector drains queued events before stopping.
package metrics
