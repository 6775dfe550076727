package ports

import (
	"math/rand/v2"
)

// RNGPort hands out random sources for named operations.
// Implementations must return independent streams for distinct names; seeded
// implementations must return identical streams for identical names.
type RNGPort interface {
	Stream(name string) rand.Source
}
