// Package rng provides seeded and unseeded implementations of ports.RNGPort.
package rng

import (
	"hash/fnv"
	"math/rand/v2"

	"abtrust/ports"
)

// Seeded derives one deterministic PCG stream per name from a base seed.
// Asking twice for the same name yields two generators producing the same sequence.
type Seeded struct {
	seed uint64
}

var _ ports.RNGPort = Seeded{}

// NewSeeded creates a deterministic source family for tests and reproducible runs
func NewSeeded(seed int64) Seeded {
	return Seeded{seed: uint64(seed)}
}

// Stream implements ports.RNGPort
func (s Seeded) Stream(name string) rand.Source {
	return rand.NewPCG(s.seed, streamID(name))
}

// Unseeded draws fresh entropy for every stream. Use it in production.
type Unseeded struct{}

var _ ports.RNGPort = Unseeded{}

// NewUnseeded creates a production source family
func NewUnseeded() Unseeded {
	return Unseeded{}
}

// Stream implements ports.RNGPort
func (Unseeded) Stream(name string) rand.Source {
	return rand.NewPCG(rand.Uint64(), rand.Uint64()^streamID(name))
}

// ForSeed returns a seeded family when seed is non-zero and an unseeded one otherwise
func ForSeed(seed int64) ports.RNGPort {
	if seed == 0 {
		return NewUnseeded()
	}
	return NewSeeded(seed)
}

func streamID(name string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return h.Sum64()
}
