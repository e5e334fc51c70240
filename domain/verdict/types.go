package verdict

import (
	"fmt"

	"hoopval/domain/core"
	"hoopval/domain/stats"
)

// Band is a closed tolerance interval on the perturbed/baseline magnitude ratio
type Band struct {
	Lower float64 `json:"lower" yaml:"lower"`
	Upper float64 `json:"upper" yaml:"upper"`
}

// DefaultBand is the 80-120% band used when none is configured
var DefaultBand = Band{Lower: 0.8, Upper: 1.2}

// Contains reports whether ratio lies inside the band
func (b Band) Contains(ratio float64) bool {
	return ratio >= b.Lower && ratio <= b.Upper
}

// Validate requires 0 <= lower <= 1 <= upper with finite bounds
func (b Band) Validate() error {
	if !stats.IsFinite(b.Lower) || !stats.IsFinite(b.Upper) || b.Lower < 0 || b.Lower > 1 || b.Upper < 1 {
		return core.NewConfigurationError("tolerance_band",
			fmt.Sprintf("need 0 <= lower <= 1 <= upper, got [%v, %v]", b.Lower, b.Upper))
	}
	return nil
}

// PerturbationCheck is the outcome of one robustness check
type PerturbationCheck struct {
	Name               string                    `json:"name"`
	Applicable         bool                      `json:"applicable"`
	Passed             bool                      `json:"passed"`
	ObservedEffect     float64                   `json:"observed_effect"`
	BaselineEffect     float64                   `json:"baseline_effect"`
	Ratio              float64                   `json:"ratio"`
	DirectionPreserved bool                      `json:"direction_preserved"`
	MagnitudeChecked   bool                      `json:"magnitude_checked"`
	ToleranceBand      Band                      `json:"tolerance_band"`
	Interval           *stats.ConfidenceInterval `json:"interval,omitempty"`
	Detail             string                    `json:"detail,omitempty"`
}

// RobustnessVerdict reduces a battery of checks to a single pass/fail.
// Insufficient marks a battery where fewer checks applied than the required
// pass count; such a verdict is always false.
type RobustnessVerdict struct {
	Checks            []PerturbationCheck `json:"checks"`
	PassCount         int                 `json:"pass_count"`
	ApplicableCount   int                 `json:"applicable_count"`
	RequiredPassCount int                 `json:"required_pass_count"`
	Insufficient      bool                `json:"insufficient,omitempty"`
	Verdict           bool                `json:"verdict"`
}

// Failed returns the names of applicable checks that did not pass
func (v RobustnessVerdict) Failed() []string {
	var names []string
	for _, c := range v.Checks {
		if c.Applicable && !c.Passed {
			names = append(names, c.Name)
		}
	}
	return names
}

// GroupShift is one group's share of a team quantity (shots, minutes)
// before and after a change, in percentage points
type GroupShift struct {
	Group         string  `json:"group"`
	PreShare      float64 `json:"pre_share"`
	PostShare     float64 `json:"post_share"`
	DeltaPP       float64 `json:"delta_pp"`
	RecentShare   float64 `json:"recent_share"`
	RecentDeltaPP float64 `json:"recent_delta_pp"`
	Flagged       bool    `json:"flagged"`
}

// FairnessReport tracks how a quantity is distributed across groups. A group
// is flagged when both the full post period and its trailing window moved by
// at least ThresholdPP in the same direction.
type FairnessReport struct {
	ThresholdPP float64      `json:"threshold_pp"`
	Window      int          `json:"window"`
	RecentGames int          `json:"recent_games"`
	Groups      []GroupShift `json:"groups"`
}

// Flagged returns the groups with a sustained shift
func (r FairnessReport) Flagged() []string {
	var names []string
	for _, g := range r.Groups {
		if g.Flagged {
			names = append(names, g.Group)
		}
	}
	return names
}

// DecisionGates keeps statistical and practical significance separately
// inspectable. A nil gate was not evaluated (no delta, or no threshold).
type DecisionGates struct {
	Statistical     *bool   `json:"statistical"`
	Practical       *bool   `json:"practical"`
	MinimumEffect   float64 `json:"minimum_effect,omitempty"`
	DesiredDecrease bool    `json:"desired_decrease,omitempty"`
}

// IssueCode classifies per-stage problems recorded on a record
type IssueCode string

const (
	IssueInsufficientData IssueCode = "DATA_INSUFFICIENT"
	IssueDegenerate       IssueCode = "NUMERIC_DEGENERATE"
	IssueInternal         IssueCode = "INTERNAL_ERROR"
)

// Issue is a non-fatal per-metric failure
type Issue struct {
	Stage   string    `json:"stage"`
	Code    IssueCode `json:"code"`
	Message string    `json:"message"`
}

// ValidationRecord is the immutable result for one (metric, entity)
type ValidationRecord struct {
	RunID       core.RunID                   `json:"run_id"`
	Key         core.SeriesKey               `json:"key"`
	Aggregator  string                       `json:"aggregator"`
	Level       stats.ConfidenceInterval     `json:"level"`
	Delta       *stats.ConfidenceInterval    `json:"delta,omitempty"`
	Difference  *stats.ConfidenceInterval    `json:"difference,omitempty"`
	Test        *stats.TestResult            `json:"test,omitempty"`
	Alternative *stats.AlternativeComparison `json:"alternative,omitempty"`
	Robustness  *RobustnessVerdict           `json:"robustness,omitempty"`
	Gates       DecisionGates                `json:"gates"`
	Sanity      stats.SanityReport           `json:"sanity"`
	Correlation *stats.CorrelationCheck      `json:"correlation,omitempty"`
	Fairness    *FairnessReport              `json:"fairness,omitempty"`
	Issues      []Issue                      `json:"issues,omitempty"`
	ComputedAt  core.Timestamp               `json:"computed_at"`
}

// HasIssues reports whether any stage recorded a problem
func (r ValidationRecord) HasIssues() bool {
	return len(r.Issues) > 0
}

// Run bundles all records produced by one pipeline run
type Run struct {
	ID         core.RunID         `json:"id"`
	Seed       int64              `json:"seed"`
	Records    []ValidationRecord `json:"records"`
	StartedAt  core.Timestamp     `json:"started_at"`
	FinishedAt core.Timestamp     `json:"finished_at"`
}
