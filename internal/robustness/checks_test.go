package robustness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hoopval/domain/core"
	"hoopval/domain/stats"
	"hoopval/domain/verdict"
)

func TestExtremumTrim_OutlierDrivenEffectFails(t *testing.T) {
	ds := contrastDataset()
	ds.Observations = prePost(
		[]float64{10, 10, 10, 10, 10, 10},
		[]float64{10, 10, 10, 10, 10, 40},
	)
	baseline := baselineOf(t, ds)
	assert.InDelta(t, 5.0, baseline.Effect, 1e-12)

	check := (&ExtremumTrim{K: 2, Band: verdict.DefaultBand}).Evaluate(baseline, ds)

	assert.True(t, check.Applicable)
	assert.False(t, check.Passed)
	assert.False(t, check.DirectionPreserved)
	assert.Zero(t, check.ObservedEffect)
	assert.Contains(t, check.Detail, "removed 8 of 12")
}

func TestExtremumTrim_MagnitudeOutsideBandFails(t *testing.T) {
	ds := contrastDataset()
	ds.Observations = prePost(
		[]float64{10, 10, 10, 10, 10, 10},
		[]float64{11, 11, 11, 11, 20, 20},
	)
	baseline := baselineOf(t, ds)

	check := (&ExtremumTrim{K: 1, Band: verdict.DefaultBand}).Evaluate(baseline, ds)

	assert.True(t, check.DirectionPreserved)
	assert.True(t, check.MagnitudeChecked)
	// trimmed post is {11, 11, 11, 20}: effect 3.25 vs baseline 4
	assert.InDelta(t, 3.25/4.0, check.Ratio, 1e-12)
	assert.True(t, check.Passed)

	check = (&ExtremumTrim{K: 2, Band: verdict.DefaultBand}).Evaluate(baseline, ds)
	// trimmed post is {11, 11}: ratio 0.25
	assert.InDelta(t, 0.25, check.Ratio, 1e-12)
	assert.False(t, check.Passed)
	assert.Contains(t, check.Detail, "outside")
}

func TestExtremumTrim_EverythingRemovedFails(t *testing.T) {
	ds := contrastDataset()
	ds.Observations = prePost([]float64{1, 2, 3}, []float64{4, 5, 6})

	check := (&ExtremumTrim{K: 2, Band: verdict.DefaultBand}).Evaluate(baselineOf(t, ds), ds)

	assert.True(t, check.Applicable)
	assert.False(t, check.Passed)
	assert.NotEmpty(t, check.Detail)
}

func TestSubgroupExclusion(t *testing.T) {
	ds := contrastDataset()
	baseline := baselineOf(t, ds)
	check := &SubgroupExclusion{Tags: []string{"opp_top25", "opp_bottom25"}, Band: verdict.DefaultBand}

	got := check.Evaluate(baseline, ds)
	assert.True(t, got.Applicable)
	assert.True(t, got.Passed)
	assert.False(t, got.MagnitudeChecked)
	assert.InDelta(t, 3.0, got.ObservedEffect, 1e-12)
	assert.Contains(t, got.Detail, "excluded 2 observations")

	for i := range ds.Observations {
		ds.Observations[i].Tags = nil
	}
	got = check.Evaluate(baseline, ds)
	assert.False(t, got.Applicable)
	assert.False(t, got.Passed)
}

func TestSubgroupExclusion_DirectionFlip(t *testing.T) {
	ds := contrastDataset()
	ds.Observations = prePost([]float64{10, 10, 10, 10}, []float64{30, 9, 9, 9})
	ds.Observations[4].Tags = []string{"opp_bottom25"}

	check := (&SubgroupExclusion{Tags: []string{"opp_bottom25"}, Band: verdict.DefaultBand}).Evaluate(baselineOf(t, ds), ds)

	assert.False(t, check.DirectionPreserved)
	assert.False(t, check.Passed)
	assert.Contains(t, check.Detail, "direction flipped")
}

func TestNormalizationSwap(t *testing.T) {
	ds := contrastDataset()
	baseline := baselineOf(t, ds)

	got := (&NormalizationSwap{Alternate: stats.BasisRate, Band: verdict.DefaultBand}).Evaluate(baseline, ds)
	assert.True(t, got.Applicable)
	assert.True(t, got.Passed)
	assert.InDelta(t, 0.3, got.ObservedEffect, 1e-12)
	assert.False(t, got.MagnitudeChecked)
	assert.Nil(t, got.Interval)

	got = (&NormalizationSwap{Alternate: stats.BasisMinuteWeighted, Band: verdict.DefaultBand}).Evaluate(baseline, ds)
	assert.True(t, got.Passed)
	assert.InDelta(t, 3.0, got.ObservedEffect, 1e-12)

	for i := range ds.Observations {
		ds.Observations[i].Exposure = 0
	}
	got = (&NormalizationSwap{Alternate: stats.BasisRate, Band: verdict.DefaultBand}).Evaluate(baseline, ds)
	assert.False(t, got.Applicable)
}

func TestNormalizationSwap_FallsBackToPerGame(t *testing.T) {
	ds := contrastDataset()
	ds.Effect.Basis = stats.BasisRate
	baseline := baselineOf(t, ds)

	got := (&NormalizationSwap{Alternate: stats.BasisRate, Band: verdict.DefaultBand}).Evaluate(baseline, ds)

	assert.True(t, got.Applicable)
	assert.InDelta(t, 3.0, got.ObservedEffect, 1e-12)
	assert.Contains(t, got.Detail, "rate -> per_game")
}

func TestWindowResize(t *testing.T) {
	ds := contrastDataset()
	baseline := baselineOf(t, ds)

	got := (&WindowResize{Windows: []int{3, 5}, Band: verdict.DefaultBand}).Evaluate(baseline, ds)
	assert.True(t, got.Applicable)
	assert.True(t, got.Passed, got.Detail)
	assert.InDelta(t, 1.0, got.Ratio, 1e-9)
	assert.Contains(t, got.Detail, "window 3")
	assert.Contains(t, got.Detail, "window 5")

	got = (&WindowResize{Windows: []int{3, 10}, Band: verdict.DefaultBand}).Evaluate(baseline, ds)
	assert.False(t, got.Passed)
	assert.Contains(t, got.Detail, "window 10: undefined")
}

func TestRolling_TrailingMeansPerSegment(t *testing.T) {
	obs := prePost([]float64{1, 2, 3, 4}, []float64{10, 20})

	out := rolling(obs, 3)

	require.Len(t, out, 2)
	assert.Equal(t, 2.0, out[0].Value)
	assert.Equal(t, 3.0, out[1].Value)
	assert.Equal(t, "pre", out[1].Group)
	assert.Equal(t, 3, out[1].Seq)
	assert.Equal(t, 10.0, out[1].Exposure)
}

func TestRankingSwap(t *testing.T) {
	check := &RankingSwap{Validator: newTestValidator(t), Band: verdict.DefaultBand}

	ds := contrastDataset()
	got := check.Evaluate(baselineOf(t, ds), ds)
	assert.False(t, got.Applicable)

	spain := make([]stats.Observation, 20)
	hammer := make([]stats.Observation, 20)
	for i := range spain {
		spain[i] = stats.Observation{Seq: i, Value: float64(1 + i%2), Exposure: 1}
		hammer[i] = stats.Observation{Seq: i, Value: float64(i % 2), Exposure: 1}
	}
	ds.Alternatives = &Alternatives{LabelA: "spain", LabelB: "hammer", A: spain, B: hammer, FoldCount: 5}

	got = check.Evaluate(Baseline{}, ds)
	assert.True(t, got.Applicable)
	assert.True(t, got.Passed, got.Detail)
	assert.True(t, got.DirectionPreserved)
	assert.InDelta(t, 1.0, got.BaselineEffect, 1e-12)
	assert.InDelta(t, 1.0, got.Ratio, 1e-12)
}

func TestRankingSwap_OverlappingFoldsFail(t *testing.T) {
	check := &RankingSwap{Validator: newTestValidator(t), Band: verdict.DefaultBand}

	a := make([]stats.Observation, 10)
	b := make([]stats.Observation, 10)
	for i := range a {
		a[i] = stats.Observation{Seq: i, Value: float64(i)}
		b[i] = stats.Observation{Seq: i, Value: float64(9 - i)}
	}
	ds := Dataset{Alternatives: &Alternatives{LabelA: "a", LabelB: "b", A: a, B: b, FoldCount: 5}}

	got := check.Evaluate(Baseline{}, ds)
	assert.True(t, got.Applicable)
	assert.False(t, got.Passed)
}

func TestRankingSwap_FoldErrorFails(t *testing.T) {
	check := &RankingSwap{Validator: newTestValidator(t), Band: verdict.DefaultBand}
	ds := Dataset{Alternatives: &Alternatives{
		LabelA: "a", LabelB: "b",
		A: []stats.Observation{{Value: 1}}, B: []stats.Observation{{Value: 2}},
		FoldCount: 5,
	}}

	got := check.Evaluate(Baseline{}, ds)
	assert.True(t, got.Applicable)
	assert.False(t, got.Passed)
	assert.Contains(t, got.Detail, "fold_count")
}

func TestJudge_ZeroBaselineFails(t *testing.T) {
	got := judge("x", 0, 1.5, false, verdict.DefaultBand)

	assert.True(t, got.Applicable)
	assert.False(t, got.Passed)
	assert.Contains(t, got.Detail, "zero variance")
}

func TestEffectSpec(t *testing.T) {
	obs := prePost([]float64{2, 4}, []float64{6, 8})

	level := EffectSpec{Kind: EffectLevel, Basis: stats.BasisPerGame}
	got, err := level.Compute(obs)
	require.NoError(t, err)
	assert.Equal(t, 5.0, got)

	obs[0].Minutes = 10
	weighted, err := level.WithBasis(stats.BasisMinuteWeighted).Compute(obs)
	require.NoError(t, err)
	assert.InDelta(t, (2*10+4*30+6*30+8*30)/100.0, weighted, 1e-12)

	_, err = EffectSpec{Kind: EffectContrast, Basis: stats.BasisPerGame, Treatment: "post", Control: "missing"}.Compute(obs)
	assert.True(t, core.IsInsufficientData(err))

	assert.Error(t, EffectSpec{Kind: EffectContrast, Basis: stats.BasisPerGame}.Validate())
	assert.Error(t, EffectSpec{Kind: "delta", Basis: stats.BasisPerGame}.Validate())
	assert.Error(t, EffectSpec{Kind: EffectLevel, Basis: "per_minute"}.Validate())
	assert.NoError(t, level.Validate())
}
