// Package montecarlo runs repeated randomised statistics (bootstrap resamples,
// label permutations) in fixed-size chunks. Each chunk draws from its own
// seed-derived stream, so the output sequence depends only on the seed and
// never on worker count or goroutine scheduling.
package montecarlo

import (
	"context"
	"math/rand"
	"runtime"
	"strconv"

	"golang.org/x/sync/errgroup"

	"hoopval/domain/core"
	"hoopval/ports"
)

// ChunkSize is the number of iterations drawn from one sub-stream
const ChunkSize = 256

// Statistic computes one synthetic value from a random stream
type Statistic func(r *rand.Rand) float64

// Factory builds a Statistic for one chunk. Statistics may own scratch
// buffers; a chunk's statistic is never shared between goroutines.
type Factory func() Statistic

// Runner executes Monte-Carlo iterations over seed-derived sub-streams
type Runner struct {
	rng     ports.RNGPort
	workers int
}

// NewRunner creates a runner. workers <= 0 means GOMAXPROCS.
func NewRunner(rng ports.RNGPort, workers int) *Runner {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Runner{rng: rng, workers: workers}
}

// Workers returns the concurrency limit
func (r *Runner) Workers() int { return r.workers }

// RNG returns the underlying RNG port
func (r *Runner) RNG() ports.RNGPort { return r.rng }

// Run returns iterations values; value i is produced by chunk i/ChunkSize
// drawing from Stream(stage, "chunk-<c>", seed).
func (r *Runner) Run(iterations int, seed int64, stage string, factory Factory) ([]float64, error) {
	if iterations < 1 {
		return nil, core.NewConfigurationError("iterations", "must be at least 1, got "+strconv.Itoa(iterations))
	}

	out := make([]float64, iterations)
	chunks := (iterations + ChunkSize - 1) / ChunkSize

	runChunk := func(c int) {
		stream := r.rng.Stream(stage, "chunk-"+strconv.Itoa(c), seed)
		stat := factory()
		end := min((c+1)*ChunkSize, iterations)
		for i := c * ChunkSize; i < end; i++ {
			out[i] = stat(stream)
		}
	}

	if r.workers == 1 || chunks == 1 {
		for c := 0; c < chunks; c++ {
			runChunk(c)
		}
		return out, nil
	}

	g, _ := errgroup.WithContext(context.Background())
	g.SetLimit(r.workers)
	for c := 0; c < chunks; c++ {
		g.Go(func() error {
			runChunk(c)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
