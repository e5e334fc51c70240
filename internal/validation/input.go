package validation

import (
	"fmt"

	"hoopval/domain/core"
	"hoopval/domain/stats"
	"hoopval/internal/crossval"
	"hoopval/internal/fairness"
	"hoopval/internal/resample"
	"hoopval/internal/robustness"
)

// Phase labels used when observations are derived from pre/post series
const (
	GroupPre    = "pre"
	GroupPost   = "post"
	GroupSeason = "season"
)

// MetricInput is one (metric, entity) to validate. Every series is a raw
// per-game column; NaN (null in JSON) marks a missing game.
type MetricInput struct {
	Metric     core.MetricKey `json:"metric"`
	Entity     core.EntityID  `json:"entity,omitempty"`
	Aggregator string         `json:"aggregator,omitempty"`

	// Values is the season series the level interval is computed on
	Values stats.Series `json:"values,omitempty"`

	// Pre and Post are aligned series before and after a change
	Pre  stats.Series `json:"pre,omitempty"`
	Post stats.Series `json:"post,omitempty"`

	// Volume pairs with Values for the volume/efficiency correlation
	Volume stats.Series `json:"volume,omitempty"`

	// Observations is the robustness dataset; derived from Pre/Post or
	// Values when empty
	Observations []stats.Observation    `json:"observations,omitempty"`
	Effect       *robustness.EffectSpec `json:"effect,omitempty"`

	Alternatives *AlternativesInput `json:"alternatives,omitempty"`

	// Shares splits the metric by player group per game, for the share
	// shift report
	Shares *fairness.Shares `json:"shares,omitempty"`

	// MinimumEffect enables the practical gate on the delta (or difference)
	MinimumEffect   *float64 `json:"minimum_effect,omitempty"`
	DesiredDecrease bool     `json:"desired_decrease,omitempty"`

	SkipRobustness bool `json:"skip_robustness,omitempty"`
}

// AlternativesInput holds two competing strategies, one observation per
// decision (e.g. points scored on each late-clock possession)
type AlternativesInput struct {
	LabelA     string              `json:"label_a"`
	LabelB     string              `json:"label_b"`
	A          []stats.Observation `json:"a"`
	B          []stats.Observation `json:"b"`
	FoldMetric string              `json:"fold_metric,omitempty"`
	FoldCount  int                 `json:"fold_count,omitempty"`
}

// Key returns the (metric, entity) identity of the input
func (in MetricInput) Key() core.SeriesKey {
	return core.SeriesKey{Metric: in.Metric, Entity: in.Entity}
}

// HasPaired reports whether a pre/post comparison was supplied
func (in MetricInput) HasPaired() bool {
	return len(in.Pre) > 0 || len(in.Post) > 0
}

// AggregatorName returns the configured aggregator, defaulting to mean
func (in MetricInput) AggregatorName() string {
	if in.Aggregator == "" {
		return resample.Mean.Name
	}
	return in.Aggregator
}

// validate reports caller errors that must stop the run before any
// computation starts
func (in MetricInput) validate(defaultFolds int) error {
	if in.Metric == "" {
		return core.NewConfigurationError("metric", "name is required")
	}
	if _, err := resample.AggregatorByName(in.AggregatorName()); err != nil {
		return err
	}
	if len(in.Pre) != len(in.Post) {
		return core.NewConfigurationError("pre/post",
			fmt.Sprintf("pre has %d entries, post has %d", len(in.Pre), len(in.Post)))
	}
	if len(in.Volume) > 0 && len(in.Volume) != len(in.Values) {
		return core.NewConfigurationError("volume",
			fmt.Sprintf("volume has %d entries, values has %d", len(in.Volume), len(in.Values)))
	}
	if in.MinimumEffect != nil && (*in.MinimumEffect < 0 || !stats.IsFinite(*in.MinimumEffect)) {
		return core.NewConfigurationError("minimum_effect", "must be a finite non-negative number")
	}
	if in.Effect != nil {
		if err := in.Effect.Validate(); err != nil {
			return err
		}
	}
	if in.Shares != nil {
		if err := in.Shares.Validate(); err != nil {
			return err
		}
	}
	if alt := in.Alternatives; alt != nil {
		if alt.LabelA == "" || alt.LabelB == "" || alt.LabelA == alt.LabelB {
			return core.NewConfigurationError("alternatives", "two distinct labels are required")
		}
		if _, err := crossval.MetricByName(alt.FoldMetric); err != nil {
			return err
		}
		folds := alt.folds(defaultFolds)
		if err := crossval.ValidateFoldCount(folds, len(alt.A)); err != nil {
			return fmt.Errorf("alternative %s: %w", alt.LabelA, err)
		}
		if err := crossval.ValidateFoldCount(folds, len(alt.B)); err != nil {
			return fmt.Errorf("alternative %s: %w", alt.LabelB, err)
		}
	}
	return nil
}

func (a *AlternativesInput) folds(defaultFolds int) int {
	if a.FoldCount > 0 {
		return a.FoldCount
	}
	return defaultFolds
}

// effectSpec returns the configured effect or the default for the input
// shape: post - pre when pre/post groups exist, else the per-game level
func (in MetricInput) effectSpec(obs []stats.Observation) robustness.EffectSpec {
	if in.Effect != nil {
		return *in.Effect
	}
	var pre, post bool
	for _, o := range obs {
		pre = pre || o.Group == GroupPre
		post = post || o.Group == GroupPost
	}
	if pre && post {
		return robustness.EffectSpec{
			Kind:      robustness.EffectContrast,
			Basis:     stats.BasisPerGame,
			Treatment: GroupPost,
			Control:   GroupPre,
		}
	}
	if alt := in.Alternatives; alt != nil && !in.HasPaired() && len(in.Values) == 0 && len(in.Observations) == 0 {
		return robustness.EffectSpec{
			Kind:      robustness.EffectContrast,
			Basis:     stats.BasisPerGame,
			Treatment: alt.LabelA,
			Control:   alt.LabelB,
		}
	}
	return robustness.EffectSpec{Kind: robustness.EffectLevel, Basis: stats.BasisPerGame}
}

// observations returns the robustness dataset, deriving one row per valid
// game from Pre/Post (or Values) when none was supplied. An input that only
// carries alternatives is relabelled into one group per alternative.
func (in MetricInput) observations() []stats.Observation {
	if len(in.Observations) > 0 {
		return in.Observations
	}
	if alt := in.Alternatives; alt != nil && !in.HasPaired() && len(in.Values) == 0 {
		obs := make([]stats.Observation, 0, len(alt.A)+len(alt.B))
		for _, o := range alt.A {
			o.Group = alt.LabelA
			obs = append(obs, o)
		}
		for _, o := range alt.B {
			o.Group = alt.LabelB
			obs = append(obs, o)
		}
		return obs
	}

	entity := string(in.Entity)
	var obs []stats.Observation
	add := func(group string, series []float64) {
		for i, v := range series {
			if stats.IsFinite(v) {
				obs = append(obs, stats.Observation{Entity: entity, Seq: i, Group: group, Value: v})
			}
		}
	}
	if in.HasPaired() {
		add(GroupPre, in.Pre)
		add(GroupPost, in.Post)
	} else {
		add(GroupSeason, in.Values)
	}
	return obs
}

// levelSeries is the series the level interval is computed on: Values, or
// Post when only a pre/post comparison was supplied
func (in MetricInput) levelSeries() []float64 {
	if len(in.Values) == 0 && in.HasPaired() {
		return in.Post
	}
	return in.Values
}

func observationValues(obs []stats.Observation) []float64 {
	out := make([]float64, len(obs))
	for i, o := range obs {
		out[i] = o.Value
	}
	return out
}
