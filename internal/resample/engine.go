// Package resample draws bootstrap resamples (with replacement) from observed
// samples and reduces each one with an aggregator.
package resample

import (
	"fmt"
	"math/rand"

	"hoopval/domain/core"
	"hoopval/internal/montecarlo"
)

const (
	stageResample   = "resample"
	stageDifference = "resample-difference"
)

// Engine produces bootstrap distributions of an aggregate
type Engine struct {
	runner *montecarlo.Runner
}

// NewEngine creates a resampling engine on top of a Monte-Carlo runner
func NewEngine(runner *montecarlo.Runner) *Engine {
	return &Engine{runner: runner}
}

// Resample returns iterations aggregates, each computed on a resample of
// len(sample) values drawn with replacement. The output depends only on
// (sample, aggregator, iterations, seed).
func (e *Engine) Resample(sample []float64, agg Aggregator, iterations int, seed int64) ([]float64, error) {
	if err := checkIterations(iterations); err != nil {
		return nil, err
	}
	if len(sample) == 0 {
		return nil, core.NewInsufficientDataError("bootstrap sample", 0, 1)
	}

	n := len(sample)
	return e.runner.Run(iterations, seed, stageResample, func() montecarlo.Statistic {
		buf := make([]float64, n)
		return func(r *rand.Rand) float64 {
			for i := range buf {
				buf[i] = sample[r.Intn(n)]
			}
			return agg.Apply(buf)
		}
	})
}

// ResampleDifference resamples a and b independently in each iteration and
// returns agg(a*) - agg(b*).
func (e *Engine) ResampleDifference(a, b []float64, agg Aggregator, iterations int, seed int64) ([]float64, error) {
	if err := checkIterations(iterations); err != nil {
		return nil, err
	}
	if len(a) == 0 || len(b) == 0 {
		return nil, core.NewInsufficientDataError("bootstrap group", min(len(a), len(b)), 1)
	}

	na, nb := len(a), len(b)
	return e.runner.Run(iterations, seed, stageDifference, func() montecarlo.Statistic {
		bufA := make([]float64, na)
		bufB := make([]float64, nb)
		return func(r *rand.Rand) float64 {
			for i := range bufA {
				bufA[i] = a[r.Intn(na)]
			}
			for i := range bufB {
				bufB[i] = b[r.Intn(nb)]
			}
			return agg.Apply(bufA) - agg.Apply(bufB)
		}
	})
}

// ResamplePairs draws len(x) index pairs with replacement and applies fn to the
// matched resampled slices. Used for statistics of two aligned series.
func (e *Engine) ResamplePairs(x, y []float64, fn func(x, y []float64) float64, iterations int, seed int64) ([]float64, error) {
	if err := checkIterations(iterations); err != nil {
		return nil, err
	}
	if len(x) != len(y) {
		return nil, core.NewConfigurationError("paired resample",
			fmt.Sprintf("series lengths differ: %d vs %d", len(x), len(y)))
	}
	if len(x) == 0 {
		return nil, core.NewInsufficientDataError("paired bootstrap sample", 0, 1)
	}

	n := len(x)
	return e.runner.Run(iterations, seed, stageResample+"-pairs", func() montecarlo.Statistic {
		bx := make([]float64, n)
		by := make([]float64, n)
		return func(r *rand.Rand) float64 {
			for i := 0; i < n; i++ {
				j := r.Intn(n)
				bx[i] = x[j]
				by[i] = y[j]
			}
			return fn(bx, by)
		}
	})
}

func checkIterations(iterations int) error {
	if iterations < 1 {
		return core.NewConfigurationError("iterations", fmt.Sprintf("must be at least 1, got %d", iterations))
	}
	return nil
}
