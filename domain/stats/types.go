package stats

import (
	"encoding/json"
	"fmt"
	"math"

	"hoopval/domain/core"
)

// ============================================================================
// SAMPLES (inputs, NaN-free after construction)
// ============================================================================

// Sample is an ordered sequence of valid observations for one (metric, entity).
// INVARIANTS:
// - Values never contains NaN or ±Inf
// - Missing counts the entries stripped at construction
type Sample struct {
	Key     core.SeriesKey `json:"key"`
	Values  []float64      `json:"values"`
	Missing int            `json:"missing"`
}

// NewSample strips non-finite entries (missing games) from raw and keeps the
// remaining order. The input slice is not modified.
func NewSample(key core.SeriesKey, raw []float64) Sample {
	values := make([]float64, 0, len(raw))
	missing := 0
	for _, v := range raw {
		if !IsFinite(v) {
			missing++
			continue
		}
		values = append(values, v)
	}
	return Sample{Key: key, Values: values, Missing: missing}
}

// Len returns the number of valid observations
func (s Sample) Len() int { return len(s.Values) }

// Empty reports whether no valid observation is left
func (s Sample) Empty() bool { return len(s.Values) == 0 }

// PairedSample holds two aligned series (same games, before/after a change)
// reduced to per-pair deltas. A pair is dropped as a whole when either side is
// missing.
type PairedSample struct {
	Key     core.SeriesKey `json:"key"`
	Pre     []float64      `json:"pre"`
	Post    []float64      `json:"post"`
	Deltas  []float64      `json:"deltas"`
	Dropped int            `json:"dropped"`
}

// NewPairedSample aligns pre and post and computes post - pre per pair.
// Unequal lengths mean the caller paired the wrong series, which is a
// configuration error rather than missing data.
func NewPairedSample(key core.SeriesKey, pre, post []float64) (PairedSample, error) {
	if len(pre) != len(post) {
		return PairedSample{}, core.NewConfigurationError(
			"paired sample "+key.String(),
			fmt.Sprintf("pre has %d entries, post has %d", len(pre), len(post)))
	}

	ps := PairedSample{
		Key:    key,
		Pre:    make([]float64, 0, len(pre)),
		Post:   make([]float64, 0, len(post)),
		Deltas: make([]float64, 0, len(pre)),
	}
	for i := range pre {
		if !IsFinite(pre[i]) || !IsFinite(post[i]) {
			ps.Dropped++
			continue
		}
		ps.Pre = append(ps.Pre, pre[i])
		ps.Post = append(ps.Post, post[i])
		ps.Deltas = append(ps.Deltas, post[i]-pre[i])
	}
	return ps, nil
}

// DeltaSample exposes the deltas as a Sample keyed like the pair
func (p PairedSample) DeltaSample() Sample {
	return Sample{Key: p.Key, Values: p.Deltas, Missing: p.Dropped}
}

// Series is a raw per-game column. In JSON a missing game is null, which
// decodes to NaN; non-finite values encode back to null.
type Series []float64

func (s Series) MarshalJSON() ([]byte, error) {
	out := make([]*float64, len(s))
	for i := range s {
		if IsFinite(s[i]) {
			v := s[i]
			out[i] = &v
		}
	}
	return json.Marshal(out)
}

func (s *Series) UnmarshalJSON(data []byte) error {
	var raw []*float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*s = nil
		return nil
	}
	out := make(Series, len(raw))
	for i, v := range raw {
		if v == nil {
			out[i] = math.NaN()
			continue
		}
		out[i] = *v
	}
	*s = out
	return nil
}

// IsFinite reports whether v is neither NaN nor ±Inf
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ============================================================================
// INTERVALS
// ============================================================================

// ConfidenceInterval is a point estimate with a two-sided interval.
// INVARIANTS (when Defined):
// - LowerBound <= PointEstimate <= UpperBound
// - ConfidenceLevel in (0, 1)
// An undefined interval carries zero numeric fields and a Reason; it must not
// be confused with a valid zero-width interval.
type ConfidenceInterval struct {
	PointEstimate   float64 `json:"point_estimate"`
	LowerBound      float64 `json:"lower_bound"`
	UpperBound      float64 `json:"upper_bound"`
	ConfidenceLevel float64 `json:"confidence_level"`
	Iterations      int     `json:"iterations"`
	SampleSize      int     `json:"sample_size"`
	Defined         bool    `json:"defined"`
	Reason          string  `json:"reason,omitempty"`
}

// UndefinedInterval builds the sentinel interval for insufficient data
func UndefinedInterval(level float64, reason string) ConfidenceInterval {
	return ConfidenceInterval{ConfidenceLevel: level, Reason: reason}
}

// Width returns upper - lower, or NaN for undefined intervals
func (ci ConfidenceInterval) Width() float64 {
	if !ci.Defined {
		return math.NaN()
	}
	return ci.UpperBound - ci.LowerBound
}

// ExcludesZero reports whether the interval lies entirely on one side of zero
func (ci ConfidenceInterval) ExcludesZero() bool {
	return ci.Defined && (ci.LowerBound > 0 || ci.UpperBound < 0)
}

// Contains reports whether v lies within the closed interval
func (ci ConfidenceInterval) Contains(v float64) bool {
	return ci.Defined && v >= ci.LowerBound && v <= ci.UpperBound
}

// ============================================================================
// SIGNIFICANCE
// ============================================================================

// Direction is the sign of an effect
type Direction string

const (
	DirectionPositive      Direction = "positive"
	DirectionNegative      Direction = "negative"
	DirectionNone          Direction = "none"
	DirectionIndeterminate Direction = "indeterminate"
)

// DirectionOf classifies the sign of x; non-finite values are indeterminate
func DirectionOf(x float64) Direction {
	switch {
	case !IsFinite(x):
		return DirectionIndeterminate
	case x > 0:
		return DirectionPositive
	case x < 0:
		return DirectionNegative
	default:
		return DirectionNone
	}
}

// TestResult is the outcome of a two-group permutation test.
// INVARIANTS (when Defined):
// - PValue in [1/(Shuffles+1), 1]
// - EffectSize meaningful only when EffectDefined
type TestResult struct {
	PValue        float64   `json:"p_value"`
	EffectSize    float64   `json:"effect_size"`
	Direction     Direction `json:"direction"`
	ObservedDiff  float64   `json:"observed_diff"`
	Shuffles      int       `json:"shuffles"`
	SizeA         int       `json:"size_a"`
	SizeB         int       `json:"size_b"`
	WelchT        float64   `json:"welch_t,omitempty"`
	WelchPValue   float64   `json:"welch_p_value,omitempty"`
	WelchDefined  bool      `json:"welch_defined"`
	Defined       bool      `json:"defined"`
	EffectDefined bool      `json:"effect_defined"`
	Degenerate    bool      `json:"degenerate"`
	Reason        string    `json:"reason,omitempty"`
}

// ============================================================================
// CROSS-VALIDATION
// ============================================================================

// FoldStrategy names how observations are assigned to folds
type FoldStrategy string

const (
	FoldContiguous FoldStrategy = "contiguous"
	FoldShuffled   FoldStrategy = "shuffled"
)

// CrossValidationReport summarises a metric computed independently per fold
type CrossValidationReport struct {
	FoldValues []float64    `json:"fold_values"`
	FoldSizes  []int        `json:"fold_sizes"`
	Mean       float64      `json:"mean"`
	SD         float64      `json:"sd"`
	Min        float64      `json:"min"`
	Max        float64      `json:"max"`
	Strategy   FoldStrategy `json:"strategy"`
}

// StabilityJudgment compares two alternatives' fold reports. Stable means the
// fold-value ranges do not overlap.
type StabilityJudgment struct {
	Stable    bool   `json:"stable"`
	Leader    string `json:"leader"`
	FoldWinsA int    `json:"fold_wins_a"`
	FoldWinsB int    `json:"fold_wins_b"`
}

// AlternativeComparison bundles both fold reports with their judgment
type AlternativeComparison struct {
	LabelA    string                `json:"label_a"`
	LabelB    string                `json:"label_b"`
	ReportA   CrossValidationReport `json:"report_a"`
	ReportB   CrossValidationReport `json:"report_b"`
	Judgment  StabilityJudgment     `json:"judgment"`
	FoldCount int                   `json:"fold_count"`
}

// ============================================================================
// ROBUSTNESS INPUT
// ============================================================================

// Basis is the normalisation used to turn observations into an effect
type Basis string

const (
	BasisPerGame        Basis = "per_game"
	BasisRate           Basis = "rate"
	BasisMinuteWeighted Basis = "minute_weighted"
)

// Observation is one game (or possession) row of the robustness dataset
type Observation struct {
	Entity   string   `json:"entity"`
	Seq      int      `json:"seq"`
	Group    string   `json:"group"`
	Value    float64  `json:"value"`
	Exposure float64  `json:"exposure,omitempty"`
	Minutes  float64  `json:"minutes,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// HasTag reports whether the observation carries any of tags
func (o Observation) HasTag(tags ...string) bool {
	for _, have := range o.Tags {
		for _, want := range tags {
			if have == want {
				return true
			}
		}
	}
	return false
}

// ============================================================================
// SANITY
// ============================================================================

// SanityReport captures completeness and IQR outliers of a raw series
type SanityReport struct {
	Total          int     `json:"total"`
	Missing        int     `json:"missing"`
	MissingRatio   float64 `json:"missing_ratio"`
	Q1             float64 `json:"q1"`
	Q3             float64 `json:"q3"`
	LowerFence     float64 `json:"lower_fence"`
	UpperFence     float64 `json:"upper_fence"`
	OutlierIndices []int   `json:"outlier_indices,omitempty"`
	Defined        bool    `json:"defined"`
}

// CorrelationCheck is a rank correlation with its bootstrap interval
type CorrelationCheck struct {
	Rho      float64            `json:"rho"`
	Interval ConfidenceInterval `json:"interval"`
	Pairs    int                `json:"pairs"`
	Defined  bool               `json:"defined"`
	Reason   string             `json:"reason,omitempty"`
}
