// Package robustness re-evaluates an effect under controlled data
// perturbations and reduces the battery of checks to a single verdict.
package robustness

import (
	"fmt"
	"sort"

	"hoopval/domain/core"
	"hoopval/domain/stats"
	"hoopval/domain/verdict"
	"hoopval/internal/crossval"
)

// Check is one perturbation in the battery. Evaluate must not modify the
// dataset; a check that does not apply reports Applicable=false.
type Check interface {
	Name() string
	Evaluate(baseline Baseline, ds Dataset) verdict.PerturbationCheck
}

// Baseline is the effect computed on the full dataset
type Baseline struct {
	Effect   float64                   `json:"effect"`
	Interval *stats.ConfidenceInterval `json:"interval,omitempty"`
}

// Alternatives holds two competing strategies evaluated fold by fold
// (e.g. two late-clock set plays, one observation per possession)
type Alternatives struct {
	LabelA    string
	LabelB    string
	A         []stats.Observation
	B         []stats.Observation
	FoldCount int
	Metric    crossval.MetricFunc
}

// Dataset is the observation set a conclusion is drawn from
type Dataset struct {
	Key          core.SeriesKey
	Observations []stats.Observation
	Effect       EffectSpec
	Alternatives *Alternatives
}

// segmentKey identifies one entity within one group
type segmentKey struct {
	entity string
	group  string
}

// segments groups observation indices by (entity, group), each ordered by Seq
func segments(obs []stats.Observation) (map[segmentKey][]int, []segmentKey) {
	bySegment := make(map[segmentKey][]int)
	var order []segmentKey
	for i, o := range obs {
		k := segmentKey{entity: o.Entity, group: o.Group}
		if _, ok := bySegment[k]; !ok {
			order = append(order, k)
		}
		bySegment[k] = append(bySegment[k], i)
	}
	for _, k := range order {
		idx := bySegment[k]
		sort.SliceStable(idx, func(a, b int) bool { return obs[idx[a]].Seq < obs[idx[b]].Seq })
	}
	return bySegment, order
}

// judge compares a perturbed effect to the baseline.
// passed = direction preserved AND (magnitude not required OR ratio in band).
// A zero or non-finite baseline has no direction to preserve and fails.
func judge(name string, baseline, observed float64, magnitude bool, band verdict.Band) verdict.PerturbationCheck {
	check := verdict.PerturbationCheck{
		Name:             name,
		Applicable:       true,
		ObservedEffect:   finiteOrZero(observed),
		BaselineEffect:   finiteOrZero(baseline),
		MagnitudeChecked: magnitude,
		ToleranceBand:    band,
	}

	if baseline == 0 || !stats.IsFinite(baseline) {
		check.Detail = core.NewDegenerateError("baseline effect").Error()
		return check
	}
	if !stats.IsFinite(observed) {
		check.Detail = "perturbed effect is not finite"
		return check
	}

	check.Ratio = observed / baseline
	check.DirectionPreserved = stats.DirectionOf(observed) == stats.DirectionOf(baseline)
	check.Passed = check.DirectionPreserved && (!magnitude || band.Contains(check.Ratio))

	switch {
	case !check.DirectionPreserved:
		check.Detail = fmt.Sprintf("direction flipped: %s -> %s",
			stats.DirectionOf(baseline), stats.DirectionOf(observed))
	case magnitude && !band.Contains(check.Ratio):
		check.Detail = fmt.Sprintf("ratio %.3f outside [%.2f, %.2f]", check.Ratio, band.Lower, band.Upper)
	}
	return check
}

// failed records an applicable check whose perturbed effect could not be
// computed (the perturbation removed everything the effect needs)
func failed(name string, baseline float64, magnitude bool, band verdict.Band, err error) verdict.PerturbationCheck {
	return verdict.PerturbationCheck{
		Name:             name,
		Applicable:       true,
		BaselineEffect:   finiteOrZero(baseline),
		MagnitudeChecked: magnitude,
		ToleranceBand:    band,
		Detail:           err.Error(),
	}
}

// notApplicable records a check that does not apply to the dataset
func notApplicable(name string, baseline float64, band verdict.Band, why string) verdict.PerturbationCheck {
	return verdict.PerturbationCheck{
		Name:           name,
		BaselineEffect: finiteOrZero(baseline),
		ToleranceBand:  band,
		Detail:         why,
	}
}

// finiteOrZero keeps NaN and Inf out of serialised checks
func finiteOrZero(x float64) float64 {
	if !stats.IsFinite(x) {
		return 0
	}
	return x
}
