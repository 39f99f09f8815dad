package synthesis

import "math/rand/v2"

// Bounds for generation seeds handed out to callers.
const (
	SeedMin = 1
	SeedMax = 100000000
)

// NewSeed draws a fresh seed in [SeedMin, SeedMax]. Callers pass it back on
// a request to reproduce a generation.
func NewSeed() int64 {
	return SeedMin + rand.Int64N(SeedMax)
}
