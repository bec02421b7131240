package strategy

import (
	"sync/atomic"

	"github.com/angeloszaimis/domain-proxy/internal/backend"
)

// roundRobinStrategy hands out indices 0, 1, ..., n-1, 0, ... The counter is
// atomic so concurrent requests to one service never skip or repeat a slot
// within a cycle.
type roundRobinStrategy struct {
	current atomic.Uint64
}

func (rb *roundRobinStrategy) SelectBackend(hosts []*backend.Host) (*backend.Host, int) {
	if len(hosts) == 0 {
		return nil, -1
	}

	n := rb.current.Add(1)

	index := int((n - 1) % uint64(len(hosts)))

	return hosts[index], index
}

func (rb *roundRobinStrategy) Name() string {
	return NameRoundRobin
}

func NewRoundRobinStrategy() Strategy {
	return &roundRobinStrategy{}
}
