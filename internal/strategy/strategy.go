package strategy

import (
	"errors"
	"fmt"

	"github.com/angeloszaimis/domain-proxy/internal/backend"
)

const (
	NameRandom     = "random"
	NameRoundRobin = "round-robin"
)

var ErrUnknownStrategy = errors.New("unknown load balancing strategy")

// Strategy picks one host out of a service's host list. It returns the chosen
// host and its index, or nil and -1 when the list is empty.
type Strategy interface {
	SelectBackend(hosts []*backend.Host) (*backend.Host, int)
	Name() string
}

// New builds a fresh strategy for name. An empty name selects Random.
func New(name string) (Strategy, error) {
	switch name {
	case "", NameRandom:
		return NewRandomStrategy(), nil
	case NameRoundRobin:
		return NewRoundRobinStrategy(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
}
