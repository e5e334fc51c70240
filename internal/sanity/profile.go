// Package sanity runs the data checks that precede any inference:
// completeness, IQR outliers and the volume/efficiency rank correlation.
package sanity

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"hoopval/domain/core"
	domainstats "hoopval/domain/stats"
	"hoopval/internal/interval"
	"hoopval/internal/numeric"
)

const (
	// IQRMultiplier sets the Tukey fences at Q1 - k*IQR and Q3 + k*IQR
	IQRMultiplier = 1.5

	// MinQuartileSize is the smallest sample for which fences are reported
	MinQuartileSize = 4

	// MinCorrelationPairs is the smallest number of complete pairs for a
	// rank correlation
	MinCorrelationPairs = 3
)

// Analyzer profiles raw series and correlates efficiency with volume
type Analyzer struct {
	estimator *interval.Estimator
}

// NewAnalyzer creates an analyzer; the estimator supplies correlation intervals
func NewAnalyzer(estimator *interval.Estimator) *Analyzer {
	return &Analyzer{estimator: estimator}
}

// Profile reports completeness of a raw series (NaN or Inf counts as
// missing) and the indices of values outside the 1.5*IQR fences
func (a *Analyzer) Profile(raw []float64) domainstats.SanityReport {
	report := domainstats.SanityReport{Total: len(raw)}

	valid, missing := numeric.Finite(raw)
	report.Missing = missing
	if len(raw) > 0 {
		report.MissingRatio = float64(missing) / float64(len(raw))
	}
	if len(valid) < MinQuartileSize {
		return report
	}

	// type-7 quartiles, matching the interval quantiles
	sorted := numeric.SortedCopy(valid)
	q1 := numeric.Quantile(sorted, 0.25)
	q3 := numeric.Quantile(sorted, 0.75)

	iqr := q3 - q1
	report.Q1 = q1
	report.Q3 = q3
	report.LowerFence = q1 - IQRMultiplier*iqr
	report.UpperFence = q3 + IQRMultiplier*iqr
	report.Defined = true

	for i, v := range raw {
		if !domainstats.IsFinite(v) {
			continue
		}
		if v < report.LowerFence || v > report.UpperFence {
			report.OutlierIndices = append(report.OutlierIndices, i)
		}
	}
	return report
}

// VolumeCorrelation is Spearman's rho between an efficiency series and a
// volume series (e.g. FG% against FGA per game) with a pair-resampling
// bootstrap interval. Pairs with a missing side are dropped.
func (a *Analyzer) VolumeCorrelation(key core.SeriesKey, efficiency, volume []float64, level float64) (domainstats.CorrelationCheck, error) {
	if err := interval.ValidateLevel(level); err != nil {
		return domainstats.CorrelationCheck{}, err
	}
	if len(efficiency) != len(volume) {
		return domainstats.CorrelationCheck{}, core.NewConfigurationError("volume correlation "+key.String(),
			fmt.Sprintf("efficiency has %d entries, volume has %d", len(efficiency), len(volume)))
	}

	var x, y []float64
	for i := range efficiency {
		if domainstats.IsFinite(efficiency[i]) && domainstats.IsFinite(volume[i]) {
			x = append(x, efficiency[i])
			y = append(y, volume[i])
		}
	}

	check := domainstats.CorrelationCheck{Pairs: len(x)}
	if len(x) < MinCorrelationPairs {
		check.Reason = core.NewInsufficientDataError("volume correlation "+key.String(), len(x), MinCorrelationPairs).Error()
		check.Interval = domainstats.UndefinedInterval(level, check.Reason)
		return check, nil
	}

	rho := Spearman(x, y)
	if math.IsNaN(rho) {
		check.Reason = core.NewDegenerateError("volume correlation " + key.String()).Error()
		check.Interval = domainstats.UndefinedInterval(level, check.Reason)
		return check, nil
	}

	ci, err := a.estimator.EstimatePaired(key, x, y, Spearman, level)
	if err != nil {
		return domainstats.CorrelationCheck{}, err
	}
	check.Rho = rho
	check.Interval = ci
	check.Defined = true
	return check, nil
}

// Spearman is the Pearson correlation of tie-averaged ranks. It is NaN when
// either series is constant.
func Spearman(x, y []float64) float64 {
	rx := numeric.Ranks(x)
	ry := numeric.Ranks(y)
	if constant(rx) || constant(ry) {
		return math.NaN()
	}
	return stat.Correlation(rx, ry, nil)
}

func constant(v []float64) bool {
	for _, x := range v[1:] {
		if x != v[0] {
			return false
		}
	}
	return true
}
