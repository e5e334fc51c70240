package stats

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hoopval/domain/core"
)

var testKey = core.SeriesKey{Metric: "pts", Entity: "p1"}

func TestNewSample_StripsNonFinite(t *testing.T) {
	raw := []float64{1, math.NaN(), 2, math.Inf(1)}
	s := NewSample(testKey, raw)

	assert.Equal(t, []float64{1, 2}, s.Values)
	assert.Equal(t, 2, s.Missing)
	assert.Equal(t, 2, s.Len())
	assert.False(t, s.Empty())
	assert.True(t, math.IsNaN(raw[1]), "input must not be modified")

	assert.True(t, NewSample(testKey, []float64{math.NaN()}).Empty())
}

func TestNewPairedSample(t *testing.T) {
	p, err := NewPairedSample(testKey, []float64{10, 12, 11}, []float64{13, 14, 12})
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 2, 1}, p.Deltas)
	assert.Zero(t, p.Dropped)
	assert.Equal(t, p.Deltas, p.DeltaSample().Values)

	_, err = NewPairedSample(testKey, []float64{1, 2}, []float64{1})
	require.Error(t, err)
	assert.True(t, core.IsConfigurationError(err))
}

func TestConfidenceInterval_Helpers(t *testing.T) {
	ci := ConfidenceInterval{PointEstimate: 2, LowerBound: 1, UpperBound: 3, ConfidenceLevel: 0.95, Defined: true}
	assert.Equal(t, 2.0, ci.Width())
	assert.True(t, ci.ExcludesZero())
	assert.True(t, ci.Contains(3))
	assert.False(t, ci.Contains(3.5))

	zero := ConfidenceInterval{PointEstimate: 4, LowerBound: 4, UpperBound: 4, Defined: true}
	assert.Zero(t, zero.Width())

	undefined := UndefinedInterval(0.95, "empty")
	assert.False(t, undefined.Defined)
	assert.True(t, math.IsNaN(undefined.Width()))
	assert.False(t, undefined.Contains(0))
	assert.NotEqual(t, zero.Defined, undefined.Defined)
}

func TestDirectionOf(t *testing.T) {
	assert.Equal(t, DirectionPositive, DirectionOf(0.1))
	assert.Equal(t, DirectionNegative, DirectionOf(-2))
	assert.Equal(t, DirectionNone, DirectionOf(0))
	assert.Equal(t, DirectionIndeterminate, DirectionOf(math.NaN()))
}

func TestSeries_NullIsMissingGame(t *testing.T) {
	var s Series
	require.NoError(t, json.Unmarshal([]byte(`[5, null, 7.5]`), &s))

	require.Len(t, s, 3)
	assert.Equal(t, 5.0, s[0])
	assert.True(t, math.IsNaN(s[1]))
	assert.Equal(t, 7.5, s[2])

	out, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `[5, null, 7.5]`, string(out))
}

func TestObservation_HasTag(t *testing.T) {
	o := Observation{Tags: []string{"opp_top25", "home"}}
	assert.True(t, o.HasTag("opp_bottom25", "opp_top25"))
	assert.False(t, o.HasTag("away"))
	assert.False(t, Observation{}.HasTag("home"))
}
