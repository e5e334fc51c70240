package robustness

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"hoopval/domain/core"
	"hoopval/domain/stats"
	"hoopval/domain/verdict"
	"hoopval/internal/crossval"
	"hoopval/internal/interval"
	"hoopval/internal/resample"
)

// Check names, in default battery order
const (
	CheckExtremumTrim      = "extremum_trim"
	CheckSubgroupExclusion = "subgroup_exclusion"
	CheckNormalizationSwap = "normalization_swap"
	CheckWindowResize      = "window_resize"
	CheckRankingSwap       = "ranking_swap"
)

// intervalSource attaches a bootstrap interval to a perturbed per-game effect
type intervalSource struct {
	estimator *interval.Estimator
	level     float64
}

func (s *intervalSource) interval(check string, ds Dataset, obs []stats.Observation, spec EffectSpec) *stats.ConfidenceInterval {
	if s == nil || s.estimator == nil || spec.Basis != stats.BasisPerGame {
		return nil
	}

	key := core.SeriesKey{Metric: ds.Key.Metric + core.MetricKey("@"+check), Entity: ds.Key.Entity}
	var (
		ci  stats.ConfidenceInterval
		err error
	)
	if spec.Kind == EffectContrast {
		treatment, control := spec.Split(obs)
		tKey, cKey := key, key
		tKey.Entity += core.EntityID("/" + spec.Treatment)
		cKey.Entity += core.EntityID("/" + spec.Control)
		ci, err = s.estimator.EstimateDifference(
			stats.NewSample(tKey, values(treatment)), stats.NewSample(cKey, values(control)), s.level)
	} else {
		ci, err = s.estimator.Estimate(stats.NewSample(key, values(obs)), resample.Mean, s.level)
	}
	if err != nil {
		return nil
	}
	return &ci
}

func values(obs []stats.Observation) []float64 {
	out := make([]float64, len(obs))
	for i, o := range obs {
		out[i] = o.Value
	}
	return out
}

// ============================================================================
// EXTREMUM TRIM
// ============================================================================

// ExtremumTrim drops each (entity, group) segment's K highest and K lowest
// values and requires direction and magnitude to hold
type ExtremumTrim struct {
	K         int
	Band      verdict.Band
	intervals *intervalSource
}

func (c *ExtremumTrim) Name() string { return CheckExtremumTrim }

func (c *ExtremumTrim) Evaluate(baseline Baseline, ds Dataset) verdict.PerturbationCheck {
	obs := ds.Observations
	keep := make([]bool, len(obs))
	bySegment, order := segments(obs)
	for _, k := range order {
		idx := append([]int(nil), bySegment[k]...)
		sort.SliceStable(idx, func(a, b int) bool { return obs[idx[a]].Value < obs[idx[b]].Value })
		if len(idx) <= 2*c.K {
			continue
		}
		for _, i := range idx[c.K : len(idx)-c.K] {
			keep[i] = true
		}
	}

	trimmed := make([]stats.Observation, 0, len(obs))
	for i, o := range obs {
		if keep[i] {
			trimmed = append(trimmed, o)
		}
	}

	effect, err := ds.Effect.Compute(trimmed)
	if err != nil {
		return failed(c.Name(), baseline.Effect, true, c.Band, err)
	}

	check := judge(c.Name(), baseline.Effect, effect, true, c.Band)
	check.Interval = c.intervals.interval(c.Name(), ds, trimmed, ds.Effect)
	check.Detail = joinDetail(check.Detail,
		fmt.Sprintf("removed %d of %d observations (K=%d per segment)", len(obs)-len(trimmed), len(obs), c.K))
	return check
}

// ============================================================================
// SUBGROUP EXCLUSION
// ============================================================================

// SubgroupExclusion drops observations tagged with any excluded subgroup
// (e.g. games against top-25 or bottom-25 opponents)
type SubgroupExclusion struct {
	Tags      []string
	Magnitude bool
	Band      verdict.Band
	intervals *intervalSource
}

func (c *SubgroupExclusion) Name() string { return CheckSubgroupExclusion }

func (c *SubgroupExclusion) Evaluate(baseline Baseline, ds Dataset) verdict.PerturbationCheck {
	remaining := make([]stats.Observation, 0, len(ds.Observations))
	for _, o := range ds.Observations {
		if !o.HasTag(c.Tags...) {
			remaining = append(remaining, o)
		}
	}
	if len(c.Tags) == 0 || len(remaining) == len(ds.Observations) {
		return notApplicable(c.Name(), baseline.Effect, c.Band,
			fmt.Sprintf("no observation tagged %s", strings.Join(c.Tags, ", ")))
	}

	effect, err := ds.Effect.Compute(remaining)
	if err != nil {
		return failed(c.Name(), baseline.Effect, c.Magnitude, c.Band, err)
	}

	check := judge(c.Name(), baseline.Effect, effect, c.Magnitude, c.Band)
	check.Interval = c.intervals.interval(c.Name(), ds, remaining, ds.Effect)
	check.Detail = joinDetail(check.Detail,
		fmt.Sprintf("excluded %d observations tagged %s", len(ds.Observations)-len(remaining), strings.Join(c.Tags, ", ")))
	return check
}

// ============================================================================
// NORMALIZATION SWAP
// ============================================================================

// NormalizationSwap recomputes the effect on an alternate basis. Magnitudes
// are not comparable across bases, so only direction is judged.
type NormalizationSwap struct {
	Alternate stats.Basis
	Band      verdict.Band
	intervals *intervalSource
}

func (c *NormalizationSwap) Name() string { return CheckNormalizationSwap }

func (c *NormalizationSwap) Evaluate(baseline Baseline, ds Dataset) verdict.PerturbationCheck {
	target := c.Alternate
	if target == ds.Effect.Basis {
		target = stats.BasisPerGame
	}
	if target == ds.Effect.Basis {
		return notApplicable(c.Name(), baseline.Effect, c.Band, "no alternate basis configured")
	}
	if !Supports(ds.Observations, target) {
		return notApplicable(c.Name(), baseline.Effect, c.Band,
			fmt.Sprintf("observations lack the fields needed for the %s basis", target))
	}

	spec := ds.Effect.WithBasis(target)
	effect, err := spec.Compute(ds.Observations)
	if err != nil {
		return failed(c.Name(), baseline.Effect, false, c.Band, err)
	}

	check := judge(c.Name(), baseline.Effect, effect, false, c.Band)
	check.Interval = c.intervals.interval(c.Name(), ds, ds.Observations, spec)
	check.Detail = joinDetail(check.Detail, fmt.Sprintf("%s -> %s", ds.Effect.Basis, target))
	return check
}

// ============================================================================
// WINDOW RESIZE
// ============================================================================

// WindowResize replaces each segment with its trailing rolling means at
// every configured window length. Every window must preserve direction and
// magnitude; the worst window is reported.
type WindowResize struct {
	Windows   []int
	Band      verdict.Band
	intervals *intervalSource
}

func (c *WindowResize) Name() string { return CheckWindowResize }

func (c *WindowResize) Evaluate(baseline Baseline, ds Dataset) verdict.PerturbationCheck {
	if len(c.Windows) == 0 {
		return notApplicable(c.Name(), baseline.Effect, c.Band, "no window lengths configured")
	}

	var (
		worst     verdict.PerturbationCheck
		haveWorst bool
		notes     []string
		excludes  []int
	)
	for _, w := range c.Windows {
		smoothed := rolling(ds.Observations, w)
		name := fmt.Sprintf("%s@%d", c.Name(), w)

		var check verdict.PerturbationCheck
		effect, err := ds.Effect.Compute(smoothed)
		if err != nil {
			check = failed(c.Name(), baseline.Effect, true, c.Band, fmt.Errorf("window %d: %w", w, err))
			notes = append(notes, fmt.Sprintf("window %d: undefined", w))
		} else {
			check = judge(c.Name(), baseline.Effect, effect, true, c.Band)
			check.Interval = c.intervals.interval(name, ds, smoothed, ds.Effect)
			notes = append(notes, fmt.Sprintf("window %d: ratio %.3f", w, check.Ratio))
			if check.Interval != nil && check.Interval.ExcludesZero() {
				excludes = append(excludes, w)
			}
		}

		if !haveWorst || worse(check, worst) {
			worst = check
			haveWorst = true
		}
	}

	summary := strings.Join(notes, "; ")
	if len(excludes) > 0 {
		summary += fmt.Sprintf("; interval excludes zero at window %v", excludes)
	}
	worst.Detail = joinDetail(worst.Detail, summary)
	return worst
}

// worse orders window outcomes: failures first, then distance of the ratio from 1
func worse(a, b verdict.PerturbationCheck) bool {
	if a.Passed != b.Passed {
		return !a.Passed
	}
	return math.Abs(a.Ratio-1) > math.Abs(b.Ratio-1)
}

// rolling returns, for every segment, one observation per full trailing
// window of length w whose value, exposure and minutes are window means.
// Segments shorter than w contribute nothing.
func rolling(obs []stats.Observation, w int) []stats.Observation {
	if w < 1 {
		return nil
	}
	bySegment, order := segments(obs)
	out := make([]stats.Observation, 0, len(obs))
	for _, k := range order {
		idx := bySegment[k]
		for end := w - 1; end < len(idx); end++ {
			smoothed := obs[idx[end]]
			var value, exposure, minutes float64
			for _, i := range idx[end-w+1 : end+1] {
				value += obs[i].Value
				exposure += obs[i].Exposure
				minutes += obs[i].Minutes
			}
			n := float64(w)
			smoothed.Value = value / n
			smoothed.Exposure = exposure / n
			smoothed.Minutes = minutes / n
			out = append(out, smoothed)
		}
	}
	return out
}

// ============================================================================
// RANKING SWAP
// ============================================================================

// RankingSwap re-runs the fold comparison of two alternatives with their
// evaluation order swapped and each sequence reversed. It passes when the
// leader is unchanged and the swapped comparison is still stable.
type RankingSwap struct {
	Validator *crossval.Validator
	Band      verdict.Band
}

func (c *RankingSwap) Name() string { return CheckRankingSwap }

func (c *RankingSwap) Evaluate(baseline Baseline, ds Dataset) verdict.PerturbationCheck {
	alt := ds.Alternatives
	if alt == nil || c.Validator == nil {
		return notApplicable(c.Name(), 0, c.Band, "metric has no paired alternatives")
	}
	metric := alt.Metric
	if metric == nil {
		metric = crossval.MeanValue
	}

	original, err := c.Validator.Compare(ds.Key, alt.LabelA, alt.A, alt.LabelB, alt.B, alt.FoldCount, metric)
	if err != nil {
		return failed(c.Name(), 0, false, c.Band, err)
	}
	swapped, err := c.Validator.Compare(ds.Key, alt.LabelB, reversed(alt.B), alt.LabelA, reversed(alt.A), alt.FoldCount, metric)
	if err != nil {
		return failed(c.Name(), 0, false, c.Band, err)
	}

	before := original.ReportA.Mean - original.ReportB.Mean
	after := swapped.ReportB.Mean - swapped.ReportA.Mean
	leaderKept := original.Judgment.Leader != "" && swapped.Judgment.Leader == original.Judgment.Leader

	check := verdict.PerturbationCheck{
		Name:               c.Name(),
		Applicable:         true,
		Passed:             leaderKept && swapped.Judgment.Stable,
		ObservedEffect:     finiteOrZero(after),
		BaselineEffect:     finiteOrZero(before),
		DirectionPreserved: leaderKept,
		ToleranceBand:      c.Band,
		Detail: fmt.Sprintf("leader %q -> %q, swapped folds stable=%t (fold wins %d/%d)",
			original.Judgment.Leader, swapped.Judgment.Leader, swapped.Judgment.Stable,
			swapped.Judgment.FoldWinsB, swapped.Judgment.FoldWinsA),
	}
	if before != 0 {
		check.Ratio = finiteOrZero(after / before)
	}
	return check
}

func reversed(obs []stats.Observation) []stats.Observation {
	out := make([]stats.Observation, len(obs))
	for i, o := range obs {
		out[len(obs)-1-i] = o
	}
	return out
}

func joinDetail(parts ...string) string {
	var nonEmpty []string
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, "; ")
}
