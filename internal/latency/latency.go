// Package latency keeps the process-wide request latency indicator: the
// duration of the last request and a rolling average.
package latency

import (
	"sync"
	"time"
)

// Stats is a point-in-time copy of the tracker. Recorded is false until the
// first request completes, in which case both durations are zero.
type Stats struct {
	LastRequest time.Duration `json:"last_request"`
	Average     time.Duration `json:"average"`
	Recorded    bool          `json:"recorded"`
}

type Tracker struct {
	mutex       sync.Mutex
	lastRequest time.Duration
	average     time.Duration
	recorded    bool
}

func NewTracker() *Tracker {
	return &Tracker{}
}

// Record folds d into the average with weight one half: the first sample
// seeds it, every later one yields (average + d) / 2.
func (t *Tracker) Record(d time.Duration) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.lastRequest = d

	if !t.recorded {
		t.average = d
		t.recorded = true
		return
	}

	t.average = (t.average + d) / 2
}

func (t *Tracker) Snapshot() Stats {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	return Stats{
		LastRequest: t.lastRequest,
		Average:     t.average,
		Recorded:    t.recorded,
	}
}
