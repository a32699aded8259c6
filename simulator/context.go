package simulator

import (
	"golang.org/x/exp/rand"

	"trafficsim/config"
)

// TickContext is the immutable per-tick input. Collaborating subsystems
// write InfraQuality and Population at the previous tick boundary; the
// random source is the only generator the engine consumes, which is what
// keeps runs reproducible under a fixed seed.
type TickContext struct {
	Tick         int
	DT           float64 // seconds per tick
	InfraQuality float64 // 0..100
	Population   int
	Rand         *rand.Rand
	Cfg          *config.Config
}

// NewRand creates the run's random source from the configured seed. The
// same source instance is threaded through every tick context; no global
// generator is consumed anywhere.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}
