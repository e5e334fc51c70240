// Package interval computes percentile-bootstrap confidence intervals.
//
// Bounds are the (1-cl)/2 and 1-(1-cl)/2 quantiles of the sorted bootstrap
// distribution with linear interpolation between order statistics
// (h = (N-1)p). When the percentile interval misses the point estimate, which
// happens for skewed aggregates on tiny samples, the nearer bound is moved to
// the point estimate so lower <= point <= upper always holds.
package interval

import (
	"fmt"
	"math"

	"hoopval/domain/core"
	"hoopval/domain/stats"
	"hoopval/internal/numeric"
	"hoopval/internal/resample"
	"hoopval/ports"
)

const stageInterval = "interval"

// Estimator produces confidence intervals through a resampling engine
type Estimator struct {
	engine     *resample.Engine
	rng        ports.RNGPort
	iterations int
	seed       int64
}

// NewEstimator creates an estimator drawing iterations resamples per interval.
// Each call derives its own seed from baseSeed and the sample key.
func NewEstimator(engine *resample.Engine, rng ports.RNGPort, iterations int, baseSeed int64) *Estimator {
	return &Estimator{engine: engine, rng: rng, iterations: iterations, seed: baseSeed}
}

// WithIterations returns a copy using a different iteration count
func (e *Estimator) WithIterations(iterations int) *Estimator {
	c := *e
	c.iterations = iterations
	return &c
}

// WithSeed returns a copy using a different base seed
func (e *Estimator) WithSeed(seed int64) *Estimator {
	c := *e
	c.seed = seed
	return &c
}

// Iterations returns the number of bootstrap resamples per interval
func (e *Estimator) Iterations() int { return e.iterations }

// Estimate computes agg on the sample and its percentile-bootstrap interval.
// An empty sample yields an undefined interval and no error.
func (e *Estimator) Estimate(sample stats.Sample, agg resample.Aggregator, level float64) (stats.ConfidenceInterval, error) {
	if err := ValidateLevel(level); err != nil {
		return stats.ConfidenceInterval{}, err
	}
	if sample.Empty() {
		return stats.UndefinedInterval(level, fmt.Sprintf("%s has no valid observations", sample.Key)), nil
	}

	point := agg.Apply(sample.Values)
	seed := e.rng.DeriveSeed(e.seed, stageInterval, sample.Key.String()+"#"+agg.Name)
	dist, err := e.engine.Resample(sample.Values, agg, e.iterations, seed)
	if err != nil {
		return stats.ConfidenceInterval{}, err
	}
	return e.fromDistribution(point, dist, level, sample.Len()), nil
}

// EstimatePairedDelta computes the mean of post - pre deltas with its interval
func (e *Estimator) EstimatePairedDelta(paired stats.PairedSample, level float64) (stats.ConfidenceInterval, error) {
	deltas := paired.DeltaSample()
	deltas.Key.Metric += ".delta"
	return e.Estimate(deltas, resample.Mean, level)
}

// EstimateDifference computes mean(a) - mean(b) for two independent samples,
// resampling each group separately.
func (e *Estimator) EstimateDifference(a, b stats.Sample, level float64) (stats.ConfidenceInterval, error) {
	if err := ValidateLevel(level); err != nil {
		return stats.ConfidenceInterval{}, err
	}
	if a.Empty() || b.Empty() {
		return stats.UndefinedInterval(level,
			fmt.Sprintf("difference %s vs %s needs observations in both groups (have %d and %d)",
				a.Key, b.Key, a.Len(), b.Len())), nil
	}

	agg := resample.Mean
	point := agg.Apply(a.Values) - agg.Apply(b.Values)
	seed := e.rng.DeriveSeed(e.seed, stageInterval, a.Key.String()+"|"+b.Key.String())
	dist, err := e.engine.ResampleDifference(a.Values, b.Values, agg, e.iterations, seed)
	if err != nil {
		return stats.ConfidenceInterval{}, err
	}
	return e.fromDistribution(point, dist, level, a.Len()+b.Len()), nil
}

// EstimatePaired computes fn over two aligned series with a pair-resampling
// interval. fn may return a non-finite value for degenerate resamples; those
// draws are skipped, and the interval is undefined if none remain.
func (e *Estimator) EstimatePaired(key core.SeriesKey, x, y []float64, fn func(x, y []float64) float64, level float64) (stats.ConfidenceInterval, error) {
	if err := ValidateLevel(level); err != nil {
		return stats.ConfidenceInterval{}, err
	}
	if len(x) == 0 {
		return stats.UndefinedInterval(level, fmt.Sprintf("%s has no complete pairs", key)), nil
	}

	point := fn(x, y)
	if !stats.IsFinite(point) {
		return stats.UndefinedInterval(level, fmt.Sprintf("%s statistic is undefined on the observed pairs", key)), nil
	}

	seed := e.rng.DeriveSeed(e.seed, stageInterval, key.String()+"#pairs")
	dist, err := e.engine.ResamplePairs(x, y, fn, e.iterations, seed)
	if err != nil {
		return stats.ConfidenceInterval{}, err
	}
	finite, _ := numeric.Finite(dist)
	if len(finite) == 0 {
		return stats.UndefinedInterval(level, fmt.Sprintf("%s statistic is undefined on every resample", key)), nil
	}
	return e.fromDistribution(point, finite, level, len(x)), nil
}

func (e *Estimator) fromDistribution(point float64, dist []float64, level float64, n int) stats.ConfidenceInterval {
	if !stats.IsFinite(point) {
		return stats.UndefinedInterval(level, "point estimate is not finite")
	}

	sorted := numeric.SortedCopy(dist)
	alpha := (1 - level) / 2
	lower := math.Min(numeric.Quantile(sorted, alpha), point)
	upper := math.Max(numeric.Quantile(sorted, 1-alpha), point)

	return stats.ConfidenceInterval{
		PointEstimate:   point,
		LowerBound:      lower,
		UpperBound:      upper,
		ConfidenceLevel: level,
		Iterations:      len(dist),
		SampleSize:      n,
		Defined:         true,
	}
}

// ValidateLevel rejects confidence levels outside the open interval (0, 1)
func ValidateLevel(level float64) error {
	if math.IsNaN(level) || level <= 0 || level >= 1 {
		return core.NewConfigurationError("confidence_level", fmt.Sprintf("must be in (0, 1), got %v", level))
	}
	return nil
}
