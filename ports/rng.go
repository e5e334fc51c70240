package ports

import (
	"math/rand"
)

// RNGPort provides seeded random number generation for deterministic operations.
// Engines never touch the global generator: every computation asks for its own
// stream, so parallel evaluation is reproducible regardless of scheduling.
type RNGPort interface {
	// DeriveSeed mixes a stage name and key into baseSeed, producing an
	// independent sub-seed for that (stage, key) pair
	DeriveSeed(baseSeed int64, stageName, key string) int64

	// Stream creates a deterministic RNG stream for a specific stage/key
	Stream(stageName, key string, baseSeed int64) *rand.Rand
}
