package montecarlo

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hoopval/adapters/rng"
	"hoopval/domain/core"
)

func uniform() Factory {
	return func() Statistic {
		return func(r *rand.Rand) float64 { return r.Float64() }
	}
}

func TestRunner_IdenticalAcrossWorkerCounts(t *testing.T) {
	port := rng.NewSeededAdapter()

	serial, err := NewRunner(port, 1).Run(3000, 42, "test", uniform())
	require.NoError(t, err)

	for _, workers := range []int{2, 3, 8, 0} {
		parallel, err := NewRunner(port, workers).Run(3000, 42, "test", uniform())
		require.NoError(t, err)
		assert.Equal(t, serial, parallel, "workers=%d", workers)
	}
}

func TestRunner_SeedAndStageChangeOutput(t *testing.T) {
	port := rng.NewSeededAdapter()
	runner := NewRunner(port, 2)

	a, err := runner.Run(10, 1, "stage", uniform())
	require.NoError(t, err)
	b, err := runner.Run(10, 2, "stage", uniform())
	require.NoError(t, err)
	c, err := runner.Run(10, 1, "other", uniform())
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestRunner_PrefixStableWhenIterationsGrow(t *testing.T) {
	runner := NewRunner(rng.NewSeededAdapter(), 4)

	short, err := runner.Run(ChunkSize*2, 9, "grow", uniform())
	require.NoError(t, err)
	long, err := runner.Run(ChunkSize*5, 9, "grow", uniform())
	require.NoError(t, err)

	assert.Equal(t, short, long[:len(short)])
}

func TestRunner_RejectsNonPositiveIterations(t *testing.T) {
	runner := NewRunner(rng.NewSeededAdapter(), 1)

	_, err := runner.Run(0, 1, "x", uniform())
	require.Error(t, err)
	assert.True(t, core.IsConfigurationError(err))
}
