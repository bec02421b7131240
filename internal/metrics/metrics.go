package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/angeloszaimis/domain-proxy/internal/latency"
)

type Metrics struct {
	mutex         sync.RWMutex
	requests      map[string]int64
	selections    map[string]map[string]int64
	cacheOutcomes map[string]map[string]int64
	responseTimes map[string][]time.Duration
	statusCodes   map[string]map[int]int64
	startTime     time.Time
}

type Snapshot struct {
	TotalRequests int64                    `json:"total_requests"`
	Uptime        time.Duration            `json:"uptime"`
	Domains       map[string]DomainMetrics `json:"domains"`
	Latency       *latency.Stats           `json:"latency,omitempty"`
	CacheEntries  int                      `json:"cache_entries"`
}

type DomainMetrics struct {
	Requests    int64            `json:"requests"`
	Selections  map[string]int64 `json:"selections"`
	Cache       map[string]int64 `json:"cache"`
	AvgResponse time.Duration    `json:"avg_response"`
	P50Response time.Duration    `json:"p50_response"`
	P95Response time.Duration    `json:"p95_response"`
	P99Response time.Duration    `json:"p99_response"`
	StatusCodes map[int]int64    `json:"status_codes"`
}

func (m *Metrics) IncrementRequests(domain string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.requests[domain]++
}

func (m *Metrics) RecordHostSelection(domain, host string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.selections[domain] == nil {
		m.selections[domain] = make(map[string]int64)
	}
	m.selections[domain][host]++
}

func (m *Metrics) RecordCacheOutcome(domain, outcome string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.cacheOutcomes[domain] == nil {
		m.cacheOutcomes[domain] = make(map[string]int64)
	}
	m.cacheOutcomes[domain][outcome]++
}

func (m *Metrics) RecordResponse(domain string, duration time.Duration, statusCode int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.responseTimes[domain] = append(m.responseTimes[domain], duration)

	if len(m.responseTimes[domain]) > 1000 {
		m.responseTimes[domain] = m.responseTimes[domain][1:]
	}

	if m.statusCodes[domain] == nil {
		m.statusCodes[domain] = make(map[int]int64)
	}
	m.statusCodes[domain][statusCode]++
}

func (m *Metrics) Snapshot() Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		Uptime:  time.Since(m.startTime),
		Domains: make(map[string]DomainMetrics),
	}

	allDomains := make(map[string]bool)
	for domain := range m.requests {
		allDomains[domain] = true
	}
	for domain := range m.selections {
		allDomains[domain] = true
	}
	for domain := range m.cacheOutcomes {
		allDomains[domain] = true
	}
	for domain := range m.responseTimes {
		allDomains[domain] = true
	}

	for domain := range allDomains {
		snap.TotalRequests += m.requests[domain]

		dm := DomainMetrics{
			Requests:    m.requests[domain],
			Selections:  copyCounts(m.selections[domain]),
			Cache:       copyCounts(m.cacheOutcomes[domain]),
			StatusCodes: copyCounts(m.statusCodes[domain]),
		}

		durations := m.responseTimes[domain]
		if len(durations) > 0 {
			sorted := make([]time.Duration, len(durations))
			copy(sorted, durations)
			sort.Slice(sorted, func(i, j int) bool {
				return sorted[i] < sorted[j]
			})

			dm.AvgResponse = average(sorted)
			dm.P50Response = percentile(sorted, 0.50)
			dm.P95Response = percentile(sorted, 0.95)
			dm.P99Response = percentile(sorted, 0.99)
		}

		snap.Domains[domain] = dm
	}

	return snap
}

func NewMetrics() *Metrics {
	return &Metrics{
		requests:      make(map[string]int64),
		selections:    make(map[string]map[string]int64),
		cacheOutcomes: make(map[string]map[string]int64),
		responseTimes: make(map[string][]time.Duration),
		statusCodes:   make(map[string]map[int]int64),
		startTime:     time.Now(),
	}
}

func copyCounts[K comparable](in map[K]int64) map[K]int64 {
	if in == nil {
		return nil
	}
	out := make(map[K]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func average(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return sum / time.Duration(len(durations))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}

	index := int(float64(len(sorted)) * p)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}

	return sorted[index]
}
