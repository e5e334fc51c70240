package robustness

import (
	"fmt"
	"strings"

	"hoopval/domain/core"
	"hoopval/domain/stats"
	"hoopval/domain/verdict"
	"hoopval/internal"
	"hoopval/internal/crossval"
	"hoopval/internal/interval"
)

// Config parameterises the default battery
type Config struct {
	Checks            []string
	TrimK             int
	Band              verdict.Band
	RequiredPasses    int
	Windows           []int
	ExcludedGroups    []string
	SubgroupMagnitude bool
	AlternateBasis    stats.Basis
	ConfidenceLevel   float64
}

// DefaultConfig returns the standard five-check battery settings
func DefaultConfig() Config {
	return Config{
		Checks:          DefaultChecks(),
		TrimK:           2,
		Band:            verdict.DefaultBand,
		RequiredPasses:  4,
		Windows:         []int{3, 5},
		ExcludedGroups:  []string{"opp_top25", "opp_bottom25"},
		AlternateBasis:  stats.BasisRate,
		ConfidenceLevel: 0.95,
	}
}

// DefaultChecks lists the battery in evaluation order
func DefaultChecks() []string {
	return []string{
		CheckExtremumTrim,
		CheckSubgroupExclusion,
		CheckNormalizationSwap,
		CheckWindowResize,
		CheckRankingSwap,
	}
}

// NewCheck builds a named check from the configuration. estimator may be
// nil, in which case perturbed effects carry no interval.
func NewCheck(name string, cfg Config, estimator *interval.Estimator, validator *crossval.Validator) (Check, error) {
	var intervals *intervalSource
	if estimator != nil {
		intervals = &intervalSource{estimator: estimator, level: cfg.ConfidenceLevel}
	}

	switch strings.ToLower(strings.TrimSpace(name)) {
	case CheckExtremumTrim:
		if cfg.TrimK < 1 {
			return nil, core.NewConfigurationError("trim_k", fmt.Sprintf("must be at least 1, got %d", cfg.TrimK))
		}
		return &ExtremumTrim{K: cfg.TrimK, Band: cfg.Band, intervals: intervals}, nil

	case CheckSubgroupExclusion:
		return &SubgroupExclusion{
			Tags:      cfg.ExcludedGroups,
			Magnitude: cfg.SubgroupMagnitude,
			Band:      cfg.Band,
			intervals: intervals,
		}, nil

	case CheckNormalizationSwap:
		switch cfg.AlternateBasis {
		case stats.BasisRate, stats.BasisMinuteWeighted, stats.BasisPerGame:
		default:
			return nil, core.NewConfigurationError("alternate_basis", fmt.Sprintf("unknown basis %q", cfg.AlternateBasis))
		}
		return &NormalizationSwap{Alternate: cfg.AlternateBasis, Band: cfg.Band, intervals: intervals}, nil

	case CheckWindowResize:
		for _, w := range cfg.Windows {
			if w < 1 {
				return nil, core.NewConfigurationError("windows", fmt.Sprintf("window length must be at least 1, got %d", w))
			}
		}
		return &WindowResize{Windows: cfg.Windows, Band: cfg.Band, intervals: intervals}, nil

	case CheckRankingSwap:
		return &RankingSwap{Validator: validator, Band: cfg.Band}, nil

	default:
		return nil, core.NewConfigurationError("checks", fmt.Sprintf("unknown robustness check %q", name))
	}
}

// Suite runs a battery of checks and applies the pass-count rule
type Suite struct {
	checks   []Check
	required int
	logger   *internal.Logger
}

// NewSuite creates a suite requiring at least required passes
func NewSuite(required int, checks ...Check) (*Suite, error) {
	if len(checks) == 0 {
		return nil, core.NewConfigurationError("checks", "battery is empty")
	}
	if required < 1 || required > len(checks) {
		return nil, core.NewConfigurationError("required_passes",
			fmt.Sprintf("must be between 1 and %d, got %d", len(checks), required))
	}
	return &Suite{checks: checks, required: required, logger: internal.DefaultLogger}, nil
}

// NewDefaultSuite builds the configured battery
func NewDefaultSuite(cfg Config, estimator *interval.Estimator, validator *crossval.Validator) (*Suite, error) {
	if err := cfg.Band.Validate(); err != nil {
		return nil, err
	}
	names := cfg.Checks
	if len(names) == 0 {
		names = DefaultChecks()
	}
	checks := make([]Check, 0, len(names))
	for _, name := range names {
		check, err := NewCheck(name, cfg, estimator, validator)
		if err != nil {
			return nil, err
		}
		checks = append(checks, check)
	}
	return NewSuite(cfg.RequiredPasses, checks...)
}

// Checks returns the battery in evaluation order
func (s *Suite) Checks() []Check { return s.checks }

// Evaluate runs every check against the baseline. Inapplicable checks count
// as not passed; when fewer checks apply than the required pass count the
// verdict is marked insufficient.
func (s *Suite) Evaluate(baseline Baseline, ds Dataset) verdict.RobustnessVerdict {
	result := verdict.RobustnessVerdict{
		Checks: make([]verdict.PerturbationCheck, 0, len(s.checks)),
	}

	for _, check := range s.checks {
		outcome := check.Evaluate(baseline, ds)
		if outcome.Name == "" {
			outcome.Name = check.Name()
		}
		if outcome.Applicable {
			result.ApplicableCount++
			if outcome.Passed {
				result.PassCount++
			}
		}
		s.logger.Trace("robustness %s %s: applicable=%t passed=%t ratio=%.3f",
			ds.Key, outcome.Name, outcome.Applicable, outcome.Passed, outcome.Ratio)
		result.Checks = append(result.Checks, outcome)
	}

	result.RequiredPassCount = s.required
	result.Insufficient = result.ApplicableCount < s.required
	result.Verdict = !result.Insufficient && result.PassCount >= s.required
	return result
}
