// Package fairness tracks how a team quantity (shot attempts, minutes) is
// shared between player groups before and after a change, and flags groups
// whose share moved by a sustained number of percentage points.
package fairness

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"hoopval/domain/core"
	"hoopval/domain/stats"
	"hoopval/domain/verdict"
)

const (
	// DefaultThresholdPP is the share shift, in percentage points, that is
	// flagged for review
	DefaultThresholdPP = 5.0

	// DefaultWindow is the number of trailing post games that must confirm
	// a shift
	DefaultWindow = 3
)

// Config sets the flagging rule; zero fields take the defaults
type Config struct {
	ThresholdPP float64
	Window      int
}

// DefaultConfig returns the 5 pp, 3-game rule
func DefaultConfig() Config {
	return Config{ThresholdPP: DefaultThresholdPP, Window: DefaultWindow}
}

// Validate rejects thresholds outside [0, 100] and negative windows; zero
// means the default
func (c Config) Validate() error {
	if !stats.IsFinite(c.ThresholdPP) || c.ThresholdPP < 0 || c.ThresholdPP > 100 {
		return core.NewConfigurationError("fairness.threshold_pp",
			fmt.Sprintf("must be between 0 and 100, got %v", c.ThresholdPP))
	}
	if c.Window < 0 {
		return core.NewConfigurationError("fairness.window", fmt.Sprintf("must not be negative, got %d", c.Window))
	}
	return nil
}

func (c Config) withDefaults(base Config) Config {
	if c.ThresholdPP == 0 {
		c.ThresholdPP = base.ThresholdPP
	}
	if c.Window == 0 {
		c.Window = base.Window
	}
	return c
}

// Shares holds one quantity split by group for every game of each phase.
// All series of a phase are aligned by game; NaN marks a game without data
// for that group. Zero threshold or window fields fall back to the run
// configuration.
type Shares struct {
	Pre         map[string]stats.Series `json:"pre"`
	Post        map[string]stats.Series `json:"post"`
	ThresholdPP float64                 `json:"threshold_pp,omitempty"`
	Window      int                     `json:"window,omitempty"`
}

// Validate checks the shape of the input
func (s Shares) Validate() error {
	if len(s.Pre) == 0 || len(s.Post) == 0 {
		return core.NewConfigurationError("shares", "both phases need at least one group")
	}
	if err := (Config{ThresholdPP: s.ThresholdPP, Window: s.Window}).Validate(); err != nil {
		return err
	}
	for phase, series := range map[string]map[string]stats.Series{"pre": s.Pre, "post": s.Post} {
		games := -1
		for group, values := range series {
			if games >= 0 && len(values) != games {
				return core.NewConfigurationError("shares."+phase,
					fmt.Sprintf("group %q has %d games, expected %d", group, len(values), games))
			}
			games = len(values)
			for _, v := range values {
				if v < 0 {
					return core.NewConfigurationError("shares."+phase,
						fmt.Sprintf("group %q has a negative value %v", group, v))
				}
			}
		}
	}
	return nil
}

// Groups returns every group of either phase in sorted order
func (s Shares) Groups() []string {
	seen := make(map[string]struct{})
	for g := range s.Pre {
		seen[g] = struct{}{}
	}
	for g := range s.Post {
		seen[g] = struct{}{}
	}
	groups := make([]string, 0, len(seen))
	for g := range seen {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	return groups
}

// Analyzer computes share shifts under a run-wide default rule
type Analyzer struct {
	config Config
}

// NewAnalyzer creates an analyzer; zero config fields take the package defaults
func NewAnalyzer(config Config) (*Analyzer, error) {
	config = config.withDefaults(DefaultConfig())
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Analyzer{config: config}, nil
}

// Analyze reports every group's pre, post and trailing-window shares. The
// trailing window holds the last Window post games with any volume. A
// phase without volume is insufficient data.
func (a *Analyzer) Analyze(key core.SeriesKey, s Shares) (verdict.FairnessReport, error) {
	cfg := Config{ThresholdPP: s.ThresholdPP, Window: s.Window}.withDefaults(a.config)
	groups := s.Groups()

	preTotals := totals(s.Pre, groups, allGames(s.Pre))
	if floats.Sum(preTotals) <= 0 {
		return verdict.FairnessReport{}, core.NewInsufficientDataError("fairness "+key.String()+" pre volume", 0, 1)
	}
	postTotals := totals(s.Post, groups, allGames(s.Post))
	if floats.Sum(postTotals) <= 0 {
		return verdict.FairnessReport{}, core.NewInsufficientDataError("fairness "+key.String()+" post volume", 0, 1)
	}

	recent := trailingGames(s.Post, groups, cfg.Window)
	recentTotals := totals(s.Post, groups, recent)

	preShares := normalize(preTotals)
	postShares := normalize(postTotals)
	recentShares := normalize(recentTotals)

	report := verdict.FairnessReport{
		ThresholdPP: cfg.ThresholdPP,
		Window:      cfg.Window,
		RecentGames: len(recent),
		Groups:      make([]verdict.GroupShift, len(groups)),
	}
	for i, group := range groups {
		delta := 100 * (postShares[i] - preShares[i])
		recentDelta := 100 * (recentShares[i] - preShares[i])
		report.Groups[i] = verdict.GroupShift{
			Group:         group,
			PreShare:      preShares[i],
			PostShare:     postShares[i],
			DeltaPP:       delta,
			RecentShare:   recentShares[i],
			RecentDeltaPP: recentDelta,
			Flagged: math.Abs(delta) >= cfg.ThresholdPP && math.Abs(recentDelta) >= cfg.ThresholdPP &&
				math.Signbit(delta) == math.Signbit(recentDelta),
		}
	}
	return report, nil
}

// allGames returns the indices of every game in a phase
func allGames(series map[string]stats.Series) []int {
	n := 0
	for _, values := range series {
		n = max(n, len(values))
	}
	games := make([]int, n)
	for i := range games {
		games[i] = i
	}
	return games
}

// trailingGames returns up to window of the latest games with positive
// volume, oldest first
func trailingGames(series map[string]stats.Series, groups []string, window int) []int {
	var picked []int
	all := allGames(series)
	for i := len(all) - 1; i >= 0 && len(picked) < window; i-- {
		if floats.Sum(totals(series, groups, all[i:i+1])) > 0 {
			picked = append(picked, all[i])
		}
	}
	sort.Ints(picked)
	return picked
}

// totals sums each group's finite values over the given games
func totals(series map[string]stats.Series, groups []string, games []int) []float64 {
	out := make([]float64, len(groups))
	for i, group := range groups {
		values := series[group]
		for _, g := range games {
			if g < len(values) && stats.IsFinite(values[g]) {
				out[i] += values[g]
			}
		}
	}
	return out
}

func normalize(totals []float64) []float64 {
	out := make([]float64, len(totals))
	sum := floats.Sum(totals)
	if sum <= 0 {
		return out
	}
	floats.ScaleTo(out, 1/sum, totals)
	return out
}
