package fairness

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hoopval/domain/core"
	"hoopval/domain/stats"
)

var key = core.SeriesKey{Metric: "fga", Entity: "team"}

func newTestAnalyzer(t *testing.T) *Analyzer {
	t.Helper()
	a, err := NewAnalyzer(Config{})
	require.NoError(t, err)
	return a
}

// shotShift moves wings from 30% to 40% of attempts after the change
func shotShift() Shares {
	return Shares{
		Pre: map[string]stats.Series{
			"guards": {30, 30, 30},
			"wings":  {18, 18, 18},
			"bigs":   {12, 12, 12},
		},
		Post: map[string]stats.Series{
			"guards": {24, 24, 24, 24},
			"wings":  {24, 24, 24, 24},
			"bigs":   {12, 12, 12, 12},
		},
	}
}

func TestAnalyze_FlagsSustainedShift(t *testing.T) {
	report, err := newTestAnalyzer(t).Analyze(key, shotShift())
	require.NoError(t, err)

	assert.Equal(t, DefaultThresholdPP, report.ThresholdPP)
	assert.Equal(t, DefaultWindow, report.Window)
	assert.Equal(t, 3, report.RecentGames)
	require.Len(t, report.Groups, 3)

	bigs, guards, wings := report.Groups[0], report.Groups[1], report.Groups[2]
	assert.Equal(t, "bigs", bigs.Group)
	assert.InDelta(t, 0.2, bigs.PreShare, 1e-12)
	assert.InDelta(t, 0.0, bigs.DeltaPP, 1e-9)
	assert.False(t, bigs.Flagged)

	assert.InDelta(t, -10.0, guards.DeltaPP, 1e-9)
	assert.True(t, guards.Flagged)
	assert.InDelta(t, 10.0, wings.DeltaPP, 1e-9)
	assert.InDelta(t, 10.0, wings.RecentDeltaPP, 1e-9)
	assert.True(t, wings.Flagged)

	assert.Equal(t, []string{"guards", "wings"}, report.Flagged())
}

func TestAnalyze_ShiftThatFadesIsNotFlagged(t *testing.T) {
	s := shotShift()
	// the last three post games return to the pre-change split
	s.Post = map[string]stats.Series{
		"guards": {10, 30, 30, 30},
		"wings":  {40, 18, 18, 18},
		"bigs":   {10, 12, 12, 12},
	}

	report, err := newTestAnalyzer(t).Analyze(key, s)
	require.NoError(t, err)

	wings := report.Groups[2]
	assert.Greater(t, wings.DeltaPP, DefaultThresholdPP)
	assert.InDelta(t, 0.0, wings.RecentDeltaPP, 1e-9)
	assert.False(t, wings.Flagged)
	assert.Empty(t, report.Flagged())
}

func TestAnalyze_ThresholdAndWindowOverrides(t *testing.T) {
	s := shotShift()
	s.ThresholdPP = 12
	s.Window = 1

	report, err := newTestAnalyzer(t).Analyze(key, s)
	require.NoError(t, err)
	assert.Equal(t, 12.0, report.ThresholdPP)
	assert.Equal(t, 1, report.RecentGames)
	assert.Empty(t, report.Flagged())
}

func TestAnalyze_SkipsMissingAndEmptyGames(t *testing.T) {
	s := shotShift()
	s.Post["guards"] = stats.Series{24, 24, 24, math.NaN()}
	s.Post["wings"] = stats.Series{24, 24, 24, 0}
	s.Post["bigs"] = stats.Series{12, 12, 12, 0}

	report, err := newTestAnalyzer(t).Analyze(key, s)
	require.NoError(t, err)
	// the empty last game is skipped, so the window reaches back to game 1
	assert.Equal(t, 3, report.RecentGames)
	assert.InDelta(t, 0.4, report.Groups[2].RecentShare, 1e-12)
}

func TestAnalyze_NoVolumeIsInsufficientData(t *testing.T) {
	s := shotShift()
	s.Post = map[string]stats.Series{"guards": {0, math.NaN()}, "wings": {0, 0}}

	_, err := newTestAnalyzer(t).Analyze(key, s)
	require.Error(t, err)
	assert.True(t, core.IsInsufficientData(err))
}

func TestShares_Validate(t *testing.T) {
	tests := map[string]func(*Shares){
		"empty phase":    func(s *Shares) { s.Pre = nil },
		"ragged series":  func(s *Shares) { s.Post["bigs"] = stats.Series{12} },
		"negative value": func(s *Shares) { s.Pre["wings"] = stats.Series{18, -1, 18} },
		"threshold":      func(s *Shares) { s.ThresholdPP = 150 },
		"window":         func(s *Shares) { s.Window = -1 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			s := shotShift()
			mutate(&s)
			assert.True(t, core.IsConfigurationError(s.Validate()))
		})
	}

	assert.NoError(t, shotShift().Validate())
}

func TestNewAnalyzer_RejectsBadConfig(t *testing.T) {
	_, err := NewAnalyzer(Config{ThresholdPP: -2})
	assert.True(t, core.IsConfigurationError(err))
}
