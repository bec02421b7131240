package loadbalancer

import (
	"errors"
	"fmt"

	"github.com/angeloszaimis/domain-proxy/internal/backend"
)

var ErrNoMatchingService = errors.New("no matching service")

// Selection is the outcome of picking a host for one request.
type Selection struct {
	Host  *backend.Host
	Index int
}

type LoadBalancer struct {
	services []*Service
}

func NewLoadBalancer(services []*Service) *LoadBalancer {
	return &LoadBalancer{
		services: services,
	}
}

// Match returns the first service whose domain equals hostHeader exactly.
// There is no case folding and no port stripping.
func (lb *LoadBalancer) Match(hostHeader string) (*Service, error) {
	for _, svc := range lb.services {
		if svc.domain == hostHeader {
			return svc, nil
		}
	}

	return nil, fmt.Errorf("%w: %q", ErrNoMatchingService, hostHeader)
}

// Select picks the upstream host for svc, advancing its rotation state when
// the strategy keeps any.
func (lb *LoadBalancer) Select(svc *Service) (Selection, error) {
	chosen, index := svc.strategy.SelectBackend(svc.hosts)
	if chosen == nil {
		return Selection{}, fmt.Errorf("strategy returned nil host for %s", svc.domain)
	}

	return Selection{Host: chosen, Index: index}, nil
}

func (lb *LoadBalancer) Services() []*Service {
	return lb.services
}
