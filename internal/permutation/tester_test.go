package permutation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"hoopval/adapters/rng"
	"hoopval/domain/core"
	"hoopval/domain/stats"
	"hoopval/internal/montecarlo"
)

func newTestTester(workers int, seed int64) *Tester {
	port := rng.NewSeededAdapter()
	return NewTester(montecarlo.NewRunner(port, workers), port, seed)
}

func sample(group string, values ...float64) stats.Sample {
	return stats.NewSample(core.SeriesKey{Metric: "ppp", Entity: core.EntityID(group)}, values)
}

func TestTest_ClearSeparationIsSignificant(t *testing.T) {
	a := sample("post", 13, 14, 12, 15, 14, 13, 16, 14)
	b := sample("pre", 10, 12, 11, 10, 9, 11, 10, 12)

	result, err := newTestTester(4, 42).Test(a, b, 10000)
	require.NoError(t, err)

	assert.True(t, result.Defined)
	assert.True(t, result.EffectDefined)
	assert.False(t, result.Degenerate)
	assert.Equal(t, stats.DirectionPositive, result.Direction)
	assert.InDelta(t, 3.25, result.ObservedDiff, 1e-12)
	assert.Less(t, result.PValue, 0.01)
	assert.GreaterOrEqual(t, result.PValue, 1.0/10001)
	assert.Greater(t, result.EffectSize, 1.0)
	assert.True(t, result.WelchDefined)
	assert.Less(t, result.WelchPValue, 0.01)
}

func TestTest_IdenticalGroupsGiveUnitPValue(t *testing.T) {
	a := sample("a", 1, 2, 3, 4)
	b := sample("b", 4, 3, 2, 1)

	result, err := newTestTester(2, 7).Test(a, b, 500)
	require.NoError(t, err)

	assert.Equal(t, 1.0, result.PValue)
	assert.Equal(t, stats.DirectionNone, result.Direction)
	assert.Zero(t, result.EffectSize)
}

func TestTest_DeterministicAcrossWorkers(t *testing.T) {
	a := sample("a", 3, 5, 4, 6, 2)
	b := sample("b", 4, 4, 7, 8)

	serial, err := newTestTester(1, 42).Test(a, b, 3000)
	require.NoError(t, err)
	parallel, err := newTestTester(8, 42).Test(a, b, 3000)
	require.NoError(t, err)

	assert.Equal(t, serial, parallel)
}

func TestTest_TooFewObservationsIsUndefined(t *testing.T) {
	result, err := newTestTester(1, 42).Test(sample("a", 1), sample("b", 1, 2, 3), 100)
	require.NoError(t, err)

	assert.False(t, result.Defined)
	assert.False(t, result.EffectDefined)
	assert.Equal(t, stats.DirectionIndeterminate, result.Direction)
	assert.Zero(t, result.PValue)
	assert.NotEmpty(t, result.Reason)
}

func TestTest_ZeroPooledVarianceIsDegenerate(t *testing.T) {
	result, err := newTestTester(2, 42).Test(sample("a", 5, 5, 5), sample("b", 3, 3, 3), 1000)
	require.NoError(t, err)

	assert.True(t, result.Defined)
	assert.True(t, result.Degenerate)
	assert.False(t, result.EffectDefined)
	assert.Equal(t, stats.DirectionIndeterminate, result.Direction)
	assert.Zero(t, result.EffectSize)
	assert.False(t, result.WelchDefined)
	// only the original split and its mirror reach |2|; 2 of 20 labelings
	assert.InDelta(t, 0.1, result.PValue, 0.03)
}

func TestTest_RejectsNonPositiveShuffles(t *testing.T) {
	_, err := newTestTester(1, 42).Test(sample("a", 1, 2), sample("b", 3, 4), 0)
	require.Error(t, err)
	assert.True(t, core.IsConfigurationError(err))
}

func TestTest_PValueBounds(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := rapid.SliceOfN(rapid.Float64Range(-10, 10), 2, 12).Draw(t, "a")
		b := rapid.SliceOfN(rapid.Float64Range(-10, 10), 2, 12).Draw(t, "b")
		shuffles := rapid.IntRange(1, 600).Draw(t, "shuffles")
		seed := rapid.Int64().Draw(t, "seed")

		result, err := newTestTester(3, seed).Test(sample("a", a...), sample("b", b...), shuffles)
		if err != nil {
			t.Fatalf("test: %v", err)
		}
		lower := 1.0 / float64(shuffles+1)
		if result.PValue < lower || result.PValue > 1 {
			t.Fatalf("p-value %v outside [%v, 1]", result.PValue, lower)
		}
	})
}

func TestPValue_AddOneCorrection(t *testing.T) {
	assert.InDelta(t, 1.0/5, PValue(10, []float64{1, -2, 3, 0}), 1e-12)
	assert.InDelta(t, 3.0/5, PValue(2, []float64{2, -2, 1, 0}), 1e-12)
	assert.Equal(t, 1.0, PValue(0, []float64{0, 1, -1}))
}

func TestPooledSD(t *testing.T) {
	// both groups have sample variance 1
	assert.InDelta(t, 1.0, PooledSD([]float64{1, 2, 3}, []float64{4, 5, 6}), 1e-12)
	assert.Zero(t, PooledSD([]float64{2, 2}, []float64{7, 7}))
}
