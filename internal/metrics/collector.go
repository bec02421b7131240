package metrics

import (
	"context"
	"log/slog"
	"time"
)

type EventType string

const (
	EventRequestReceived   EventType = "request_received"
	EventHostSelected      EventType = "host_selected"
	EventCacheLookup       EventType = "cache_lookup"
	EventResponseCompleted EventType = "response_completed"
)

// UnmatchedDomain labels requests whose Host header matched no service, so
// arbitrary client input never becomes a metrics key.
const UnmatchedDomain = "unmatched"

type MetricEvent struct {
	Type         EventType
	Timestamp    time.Time
	Domain       string
	Host         string
	CacheOutcome string
	Duration     time.Duration
	StatusCode   int
}

type Collector struct {
	eventCh  chan MetricEvent
	metrics  *Metrics
	recorder *Recorder
	logger   *slog.Logger
}

// NewCollector creates a collector with a buffered event channel. recorder
// may be nil when Prometheus exposition is not wanted.
func NewCollector(bufferSize int, logger *slog.Logger, recorder *Recorder) *Collector {
	return &Collector{
		eventCh:  make(chan MetricEvent, bufferSize),
		metrics:  NewMetrics(),
		recorder: recorder,
		logger:   logger,
	}
}

func (c *Collector) EventChannel() chan<- MetricEvent {
	return c.eventCh
}

// Emit queues event without blocking. Events are dropped when the buffer is
// full so the request path never waits on metrics.
func (c *Collector) Emit(event MetricEvent) {
	if c == nil {
		return
	}

	select {
	case c.eventCh <- event:
	default:
	}
}

func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Collector) run(ctx context.Context) {
	c.logger.Info("Metrics collector started")
	defer c.logger.Info("Metrics collector stopped")

	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		case <-ctx.Done():
			// Drain remaining events before shutdown
			c.drain()
			return
		}
	}
}

func (c *Collector) processEvent(event MetricEvent) {
	domain := event.Domain
	if domain == "" {
		domain = UnmatchedDomain
	}

	switch event.Type {
	case EventRequestReceived:
		c.metrics.IncrementRequests(domain)

	case EventHostSelected:
		c.metrics.RecordHostSelection(domain, event.Host)
		c.recorder.ObserveHostSelection(domain, event.Host)

	case EventCacheLookup:
		c.metrics.RecordCacheOutcome(domain, event.CacheOutcome)
		c.recorder.ObserveCacheLookup(domain, event.CacheOutcome)

	case EventResponseCompleted:
		c.metrics.RecordResponse(domain, event.Duration, event.StatusCode)
		c.recorder.ObserveResponse(domain, event.StatusCode, event.Duration)
	}
}

func (c *Collector) drain() {
	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		default:
			return
		}
	}
}

func (c *Collector) Snapshot() Snapshot {
	return c.metrics.Snapshot()
}
