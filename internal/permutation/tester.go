// Package permutation implements a two-sided label-permutation test for the
// difference in means between two groups.
package permutation

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"hoopval/domain/core"
	"hoopval/domain/stats"
	"hoopval/internal/montecarlo"
	"hoopval/ports"
)

const (
	stagePermutation = "permutation"

	// MinGroupSize is the smallest group for which a test is reported
	MinGroupSize = 2

	// tieTolerance absorbs float summation-order noise when a shuffled
	// difference equals the observed one exactly
	tieTolerance = 1e-12
)

// Tester runs permutation tests on a Monte-Carlo runner
type Tester struct {
	runner *montecarlo.Runner
	rng    ports.RNGPort
	seed   int64
}

// NewTester creates a tester; each call derives its seed from baseSeed and
// the two sample keys.
func NewTester(runner *montecarlo.Runner, rng ports.RNGPort, baseSeed int64) *Tester {
	return &Tester{runner: runner, rng: rng, seed: baseSeed}
}

// Test compares mean(a) - mean(b) against its null distribution under
// exchangeable labels. A group with fewer than two observations yields an
// undefined result with no error; shuffles < 1 is a configuration error.
func (t *Tester) Test(a, b stats.Sample, shuffles int) (stats.TestResult, error) {
	if shuffles < 1 {
		return stats.TestResult{}, core.NewConfigurationError("shuffles", fmt.Sprintf("must be at least 1, got %d", shuffles))
	}

	result := stats.TestResult{
		Shuffles:  shuffles,
		SizeA:     a.Len(),
		SizeB:     b.Len(),
		Direction: stats.DirectionIndeterminate,
	}
	if a.Len() < MinGroupSize || b.Len() < MinGroupSize {
		result.Reason = core.NewInsufficientDataError(
			fmt.Sprintf("permutation groups %s/%s", a.Key, b.Key),
			min(a.Len(), b.Len()), MinGroupSize).Error()
		return result, nil
	}

	observed := stat.Mean(a.Values, nil) - stat.Mean(b.Values, nil)
	result.ObservedDiff = observed

	seed := t.rng.DeriveSeed(t.seed, stagePermutation, a.Key.String()+"|"+b.Key.String())
	null, err := t.runner.Run(shuffles, seed, stagePermutation, shuffleFactory(a.Values, b.Values))
	if err != nil {
		return stats.TestResult{}, err
	}

	result.PValue = PValue(observed, null)
	result.Defined = true

	effectSize(&result, a.Values, b.Values)
	welch(&result, a.Values, b.Values)
	return result, nil
}

// PValue is the add-one two-sided permutation p-value (count+1)/(n+1), where
// count is the number of null draws at least as extreme as observed
func PValue(observed float64, null []float64) float64 {
	absObserved := math.Abs(observed)
	threshold := absObserved - tieTolerance*math.Max(absObserved, 1)

	count := 0
	for _, d := range null {
		if math.Abs(d) >= threshold {
			count++
		}
	}
	return float64(count+1) / float64(len(null)+1)
}

// shuffleFactory builds per-chunk statistics that Fisher-Yates shuffle a
// private copy of the pooled values and split it at len(a)
func shuffleFactory(a, b []float64) montecarlo.Factory {
	na := len(a)
	return func() montecarlo.Statistic {
		pooled := make([]float64, 0, len(a)+len(b))
		pooled = append(pooled, a...)
		pooled = append(pooled, b...)

		return func(r *rand.Rand) float64 {
			for i := len(pooled) - 1; i > 0; i-- {
				j := r.Intn(i + 1)
				pooled[i], pooled[j] = pooled[j], pooled[i]
			}
			return stat.Mean(pooled[:na], nil) - stat.Mean(pooled[na:], nil)
		}
	}
}

// effectSize fills Cohen's d with the pooled sample standard deviation. Zero
// pooled spread leaves the effect undefined and the direction indeterminate.
func effectSize(result *stats.TestResult, a, b []float64) {
	pooled := PooledSD(a, b)
	if pooled == 0 || !stats.IsFinite(pooled) {
		result.Degenerate = true
		result.Direction = stats.DirectionIndeterminate
		result.Reason = core.NewDegenerateError("pooled sample").Error()
		return
	}
	result.EffectSize = result.ObservedDiff / pooled
	result.EffectDefined = true
	result.Direction = stats.DirectionOf(result.ObservedDiff)
}

// PooledSD is sqrt(((na-1)va + (nb-1)vb) / (na+nb-2)) with sample variances
func PooledSD(a, b []float64) float64 {
	na, nb := float64(len(a)), float64(len(b))
	if na+nb <= 2 {
		return math.NaN()
	}
	va := stat.Variance(a, nil)
	vb := stat.Variance(b, nil)
	return math.Sqrt(((na-1)*va + (nb-1)*vb) / (na + nb - 2))
}

// welch adds the unequal-variance t statistic and its two-sided p-value
func welch(result *stats.TestResult, a, b []float64) {
	na, nb := float64(len(a)), float64(len(b))
	va := stat.Variance(a, nil) / na
	vb := stat.Variance(b, nil) / nb
	se := math.Sqrt(va + vb)
	if se == 0 || !stats.IsFinite(se) {
		return
	}

	df := (va + vb) * (va + vb) / (va*va/(na-1) + vb*vb/(nb-1))
	tStat := result.ObservedDiff / se
	tDist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}

	result.WelchT = tStat
	result.WelchPValue = math.Min(1, 2*tDist.Survival(math.Abs(tStat)))
	result.WelchDefined = true
}
