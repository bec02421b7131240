package loadbalancer

import (
	"errors"
	"fmt"

	"github.com/angeloszaimis/domain-proxy/internal/backend"
	"github.com/angeloszaimis/domain-proxy/internal/strategy"
)

var ErrNoHosts = errors.New("service has no hosts")

// Service maps a domain to its candidate hosts. Each service owns its
// strategy, so round-robin cursors are never shared across domains.
type Service struct {
	domain   string
	hosts    []*backend.Host
	strategy strategy.Strategy
}

// NewService validates the host list and strategy name up front so that a
// bad configuration fails at load time instead of mid-request.
func NewService(domain string, hosts []*backend.Host, strategyName string) (*Service, error) {
	if len(hosts) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoHosts, domain)
	}

	strat, err := strategy.New(strategyName)
	if err != nil {
		return nil, fmt.Errorf("service %s: %w", domain, err)
	}

	return &Service{
		domain:   domain,
		hosts:    hosts,
		strategy: strat,
	}, nil
}

func (s *Service) Domain() string {
	return s.domain
}

func (s *Service) Hosts() []*backend.Host {
	return s.hosts
}

func (s *Service) Strategy() string {
	return s.strategy.Name()
}
