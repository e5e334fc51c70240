// Package crossval computes a metric independently on disjoint folds of a
// decision-level sequence and judges whether a ranking between two
// alternatives survives fold-to-fold noise.
package crossval

import (
	"fmt"
	"strconv"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"hoopval/domain/core"
	"hoopval/domain/stats"
	"hoopval/ports"
)

const stageShuffle = "crossval-shuffle"

// MetricFunc computes one fold's value from its observations
type MetricFunc func(fold []stats.Observation) float64

// MeanValue is the mean of Value across the fold (e.g. points per possession
// when each observation is one possession)
func MeanValue(fold []stats.Observation) float64 {
	values := make([]float64, len(fold))
	for i, o := range fold {
		values[i] = o.Value
	}
	return stat.Mean(values, nil)
}

// PooledRate is sum(Value) / sum(Exposure) across the fold
func PooledRate(fold []stats.Observation) float64 {
	var value, exposure float64
	for _, o := range fold {
		value += o.Value
		exposure += o.Exposure
	}
	return value / exposure
}

// MetricByName resolves a configured fold metric
func MetricByName(name string) (MetricFunc, error) {
	switch name {
	case "", "mean":
		return MeanValue, nil
	case "rate":
		return PooledRate, nil
	default:
		return nil, core.NewConfigurationError("fold_metric", fmt.Sprintf("unknown fold metric %q", name))
	}
}

// Config controls fold assignment
type Config struct {
	Strategy stats.FoldStrategy // contiguous (default) or shuffled
	Seed     int64              // used by the shuffled strategy only
}

// Validator partitions observations into folds with a fixed strategy
type Validator struct {
	config Config
	rng    ports.RNGPort
}

// NewValidator creates a validator; an empty strategy means contiguous
func NewValidator(config Config, rng ports.RNGPort) (*Validator, error) {
	if config.Strategy == "" {
		config.Strategy = stats.FoldContiguous
	}
	if config.Strategy != stats.FoldContiguous && config.Strategy != stats.FoldShuffled {
		return nil, core.NewConfigurationError("fold_strategy", fmt.Sprintf("unknown strategy %q", config.Strategy))
	}
	return &Validator{config: config, rng: rng}, nil
}

// Strategy returns the fold assignment strategy
func (v *Validator) Strategy() stats.FoldStrategy { return v.config.Strategy }

// Evaluate computes metric on each of foldCount folds and summarises the fold
// values with mean, sample standard deviation, min and max.
func (v *Validator) Evaluate(observations []stats.Observation, foldCount int, metric MetricFunc) (stats.CrossValidationReport, error) {
	return v.EvaluateSeries("", observations, foldCount, metric)
}

// EvaluateSeries is Evaluate for a named series. Under the shuffled strategy
// the fold permutation is drawn from a stream keyed by series, so distinct
// series of equal length get independent fold assignments.
func (v *Validator) EvaluateSeries(series string, observations []stats.Observation, foldCount int, metric MetricFunc) (stats.CrossValidationReport, error) {
	if err := ValidateFoldCount(foldCount, len(observations)); err != nil {
		return stats.CrossValidationReport{}, err
	}

	ordered := observations
	if v.config.Strategy == stats.FoldShuffled {
		ordered = v.shuffle(series, observations)
	}

	sizes := FoldSizes(len(ordered), foldCount)
	report := stats.CrossValidationReport{
		FoldValues: make([]float64, foldCount),
		FoldSizes:  sizes,
		Strategy:   v.config.Strategy,
	}

	start := 0
	for i, size := range sizes {
		value := metric(ordered[start : start+size])
		if !stats.IsFinite(value) {
			return stats.CrossValidationReport{}, fmt.Errorf("%w: fold %d metric is not finite",
				core.ErrInsufficientData, i+1)
		}
		report.FoldValues[i] = value
		start += size
	}

	report.Mean = stat.Mean(report.FoldValues, nil)
	report.SD = stat.StdDev(report.FoldValues, nil)
	report.Min = floats.Min(report.FoldValues)
	report.Max = floats.Max(report.FoldValues)
	return report, nil
}

// Compare evaluates both alternatives of key with the same fold count and
// judges the stability of their ranking
func (v *Validator) Compare(key core.SeriesKey, labelA string, a []stats.Observation, labelB string, b []stats.Observation, foldCount int, metric MetricFunc) (stats.AlternativeComparison, error) {
	reportA, err := v.EvaluateSeries(key.String()+"#"+labelA, a, foldCount, metric)
	if err != nil {
		return stats.AlternativeComparison{}, fmt.Errorf("alternative %s: %w", labelA, err)
	}
	reportB, err := v.EvaluateSeries(key.String()+"#"+labelB, b, foldCount, metric)
	if err != nil {
		return stats.AlternativeComparison{}, fmt.Errorf("alternative %s: %w", labelB, err)
	}

	return stats.AlternativeComparison{
		LabelA:    labelA,
		LabelB:    labelB,
		ReportA:   reportA,
		ReportB:   reportB,
		Judgment:  CompareStability(labelA, reportA, labelB, reportB),
		FoldCount: foldCount,
	}, nil
}

// CompareStability judges a ranking stable iff the fold-value ranges do not
// overlap: a.min > b.max or b.min > a.max. The leader is the alternative
// with the higher fold mean; equal means have no leader.
func CompareStability(labelA string, a stats.CrossValidationReport, labelB string, b stats.CrossValidationReport) stats.StabilityJudgment {
	judgment := stats.StabilityJudgment{
		Stable: a.Min > b.Max || b.Min > a.Max,
	}

	switch {
	case a.Mean > b.Mean:
		judgment.Leader = labelA
	case b.Mean > a.Mean:
		judgment.Leader = labelB
	}

	folds := min(len(a.FoldValues), len(b.FoldValues))
	for i := 0; i < folds; i++ {
		switch {
		case a.FoldValues[i] > b.FoldValues[i]:
			judgment.FoldWinsA++
		case b.FoldValues[i] > a.FoldValues[i]:
			judgment.FoldWinsB++
		}
	}
	return judgment
}

// FoldSizes splits n items into k contiguous folds; the first n mod k folds
// hold one extra item
func FoldSizes(n, k int) []int {
	sizes := make([]int, k)
	base, extra := n/k, n%k
	for i := range sizes {
		sizes[i] = base
		if i < extra {
			sizes[i]++
		}
	}
	return sizes
}

// ValidateFoldCount rejects fold counts below 2 or above the observation count
func ValidateFoldCount(foldCount, observations int) error {
	if foldCount < 2 {
		return core.NewConfigurationError("fold_count", fmt.Sprintf("must be at least 2, got %d", foldCount))
	}
	if foldCount > observations {
		return core.NewConfigurationError("fold_count",
			fmt.Sprintf("%d folds requested for %d observations", foldCount, observations))
	}
	return nil
}

func (v *Validator) shuffle(series string, observations []stats.Observation) []stats.Observation {
	out := make([]stats.Observation, len(observations))
	copy(out, observations)

	r := v.rng.Stream(stageShuffle, series+"/"+strconv.Itoa(len(out)), v.config.Seed)
	for i := len(out) - 1; i > 0; i-- {
		j := r.Intn(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}
