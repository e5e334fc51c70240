package rng

import (
	"math/rand"

	"hoopval/ports"
)

// SeededAdapter implements ports.RNGPort with hash-derived sub-seeds
type SeededAdapter struct{}

var _ ports.RNGPort = SeededAdapter{}

// NewSeededAdapter returns the default RNG port
func NewSeededAdapter() SeededAdapter {
	return SeededAdapter{}
}

// DeriveSeed combines baseSeed with djb2 hashes of stageName and key, then runs
// the result through a splitmix64 finaliser so neighbouring keys land on
// unrelated streams.
func (SeededAdapter) DeriveSeed(baseSeed int64, stageName, key string) int64 {
	x := uint64(baseSeed)
	x = mix(x ^ uint64(hashString(stageName)))
	x = mix(x ^ (uint64(hashString(key)) << 1))
	return int64(x)
}

// Stream creates a deterministic RNG stream for a specific stage/key
func (a SeededAdapter) Stream(stageName, key string, baseSeed int64) *rand.Rand {
	return rand.New(rand.NewSource(a.DeriveSeed(baseSeed, stageName, key)))
}

// hashString creates a simple hash for deterministic seeding
func hashString(s string) uint32 {
	var hash uint32 = 5381
	for _, c := range s {
		hash = ((hash << 5) + hash) + uint32(c) // djb2 algorithm
	}
	return hash
}

// mix is the splitmix64 finaliser
func mix(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}
