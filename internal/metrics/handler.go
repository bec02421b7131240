package metrics

import (
	"encoding/json"
	"net/http"
)

// Enricher attaches process-wide figures that live outside the collector,
// such as the latency tracker and cache size, to a snapshot.
type Enricher func(*Snapshot)

func (c *Collector) Handler(enrich Enricher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := c.metrics.Snapshot()
		if enrich != nil {
			enrich(&snap)
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(snap); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
}
