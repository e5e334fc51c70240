package sanity

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hoopval/adapters/rng"
	"hoopval/domain/core"
	"hoopval/internal/interval"
	"hoopval/internal/montecarlo"
	"hoopval/internal/resample"
)

func newTestAnalyzer() *Analyzer {
	port := rng.NewSeededAdapter()
	est := interval.NewEstimator(resample.NewEngine(montecarlo.NewRunner(port, 2)), port, 1000, 42)
	return NewAnalyzer(est)
}

var key = core.SeriesKey{Metric: "fg_pct", Entity: "p1"}

func TestProfile_MissingnessAndOutliers(t *testing.T) {
	raw := []float64{5, 6, math.NaN(), 5, 7, 4, 6, 5, 30, 6}

	report := newTestAnalyzer().Profile(raw)

	assert.Equal(t, 10, report.Total)
	assert.Equal(t, 1, report.Missing)
	assert.InDelta(t, 0.1, report.MissingRatio, 1e-12)
	assert.True(t, report.Defined)
	assert.Equal(t, []int{8}, report.OutlierIndices)
	assert.Less(t, report.Q1, report.Q3)
	assert.Less(t, report.UpperFence, 30.0)
}

func TestProfile_FencesInterpolateQuartiles(t *testing.T) {
	report := newTestAnalyzer().Profile([]float64{1, 2, 3, 4, 5, 6, 7, 8, 13.6})

	require.True(t, report.Defined)
	assert.InDelta(t, 3.0, report.Q1, 1e-12)
	assert.InDelta(t, 7.0, report.Q3, 1e-12)
	assert.InDelta(t, -3.0, report.LowerFence, 1e-12)
	assert.InDelta(t, 13.0, report.UpperFence, 1e-12)
	assert.Equal(t, []int{8}, report.OutlierIndices)
}

func TestProfile_TooShortHasNoFences(t *testing.T) {
	report := newTestAnalyzer().Profile([]float64{1, math.NaN(), 2})

	assert.False(t, report.Defined)
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 1, report.Missing)
	assert.Empty(t, report.OutlierIndices)

	empty := newTestAnalyzer().Profile(nil)
	assert.Zero(t, empty.MissingRatio)
}

func TestSpearman(t *testing.T) {
	assert.InDelta(t, 1.0, Spearman([]float64{1, 2, 3, 4}, []float64{10, 20, 35, 90}), 1e-12)
	assert.InDelta(t, -1.0, Spearman([]float64{1, 2, 3, 4}, []float64{4, 3, 2, 1}), 1e-12)
	assert.True(t, math.IsNaN(Spearman([]float64{1, 2, 3}, []float64{5, 5, 5})))
}

func TestVolumeCorrelation(t *testing.T) {
	efficiency := []float64{0.40, 0.45, 0.50, math.NaN(), 0.52, 0.38, 0.47, 0.55}
	volume := []float64{10, 12, 15, 9, 16, 8, 13, 18}

	check, err := newTestAnalyzer().VolumeCorrelation(key, efficiency, volume, 0.95)
	require.NoError(t, err)

	assert.True(t, check.Defined)
	assert.Equal(t, 7, check.Pairs)
	assert.InDelta(t, 1.0, check.Rho, 1e-12)
	assert.True(t, check.Interval.Defined)
	assert.LessOrEqual(t, check.Interval.LowerBound, check.Rho)
	assert.InDelta(t, 1.0, check.Interval.UpperBound, 1e-12)
}

func TestVolumeCorrelation_UndefinedCases(t *testing.T) {
	a := newTestAnalyzer()

	check, err := a.VolumeCorrelation(key, []float64{1, 2}, []float64{3, 4}, 0.95)
	require.NoError(t, err)
	assert.False(t, check.Defined)
	assert.False(t, check.Interval.Defined)
	assert.Contains(t, check.Reason, "insufficient")

	check, err = a.VolumeCorrelation(key, []float64{1, 2, 3, 4}, []float64{7, 7, 7, 7}, 0.95)
	require.NoError(t, err)
	assert.False(t, check.Defined)
	assert.Contains(t, check.Reason, "degenerate")

	_, err = a.VolumeCorrelation(key, []float64{1, 2, 3}, []float64{1, 2}, 0.95)
	assert.True(t, core.IsConfigurationError(err))

	_, err = a.VolumeCorrelation(key, []float64{1, 2, 3}, []float64{1, 2, 3}, 1.5)
	assert.True(t, core.IsConfigurationError(err))
}
