package resample

import (
	"fmt"
	"math"
	"sort"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"hoopval/domain/core"
)

// Aggregator reduces a sample to one number. Apply must be insensitive to the
// order of values and must not retain or modify the slice it is given.
type Aggregator struct {
	Name  string
	Apply func(values []float64) float64
}

// Mean is the arithmetic mean
var Mean = Aggregator{
	Name: "mean",
	Apply: func(values []float64) float64 {
		return stat.Mean(values, nil)
	},
}

// Sum is the total of all values
var Sum = Aggregator{
	Name:  "sum",
	Apply: floats.Sum,
}

// Median is the middle value (mean of the middle pair for even sizes)
var Median = Aggregator{
	Name: "median",
	Apply: func(values []float64) float64 {
		m, err := stats.Median(values)
		if err != nil {
			return math.NaN()
		}
		return m
	},
}

// TrimFraction is the share of values dropped from each end by TrimmedMean
const TrimFraction = 0.1

// TrimmedMean drops floor(TrimFraction*n) values from each end before
// averaging; samples too small to trim fall back to the plain mean
var TrimmedMean = Aggregator{
	Name: "trimmed_mean",
	Apply: func(values []float64) float64 {
		k := int(math.Floor(TrimFraction * float64(len(values))))
		if k == 0 {
			return stat.Mean(values, nil)
		}
		sorted := make([]float64, len(values))
		copy(sorted, values)
		sort.Float64s(sorted)
		return stat.Mean(sorted[k:len(sorted)-k], nil)
	},
}

// StdDev is the sample standard deviation; a single value has zero spread
var StdDev = Aggregator{
	Name: "sd",
	Apply: func(values []float64) float64 {
		if len(values) < 2 {
			return 0
		}
		return stat.StdDev(values, nil)
	},
}

// Min is the smallest value
var Min = Aggregator{
	Name: "min",
	Apply: func(values []float64) float64 {
		m, err := stats.Min(values)
		if err != nil {
			return math.NaN()
		}
		return m
	},
}

// Max is the largest value
var Max = Aggregator{
	Name: "max",
	Apply: func(values []float64) float64 {
		m, err := stats.Max(values)
		if err != nil {
			return math.NaN()
		}
		return m
	},
}

var registry = map[string]Aggregator{
	Mean.Name:        Mean,
	Sum.Name:         Sum,
	Median.Name:      Median,
	TrimmedMean.Name: TrimmedMean,
	StdDev.Name:      StdDev,
	Min.Name:         Min,
	Max.Name:         Max,
}

// AggregatorByName resolves a configured aggregator name
func AggregatorByName(name string) (Aggregator, error) {
	if agg, ok := registry[name]; ok {
		return agg, nil
	}
	return Aggregator{}, core.NewConfigurationError("aggregator",
		fmt.Sprintf("unknown aggregator %q (known: %v)", name, AggregatorNames()))
}

// AggregatorNames lists the registered aggregators in sorted order
func AggregatorNames() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
