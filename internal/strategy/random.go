package strategy

import (
	"math/rand"

	"github.com/angeloszaimis/domain-proxy/internal/backend"
)

type randomStrategy struct{}

func (r *randomStrategy) SelectBackend(hosts []*backend.Host) (*backend.Host, int) {
	if len(hosts) == 0 {
		return nil, -1
	}

	index := rand.Intn(len(hosts))
	return hosts[index], index
}

func (r *randomStrategy) Name() string {
	return NameRandom
}

func NewRandomStrategy() Strategy {
	return &randomStrategy{}
}
