// Package summary aggregates CPU usage statistics over selected samples.
package summary

import (
	"math"
	"sort"

	"firestige.xyz/pcapcpu/internal/core"
)

// Aggregator accumulates usage values. The zero value is ready to use.
type Aggregator struct {
	values    []float64
	sum       float64
	sumSq     float64
	min       float64
	max       float64
	undefined int
}

// Add records s. Samples with an undefined usage are only counted.
func (a *Aggregator) Add(s core.TelemetrySample) {
	pct, ok := s.UsagePercent()
	if !ok {
		a.undefined++
		return
	}
	a.addValue(pct)
}

// AddRow records a table row using its stored usage, as read back from
// an exported table.
func (a *Aggregator) AddRow(r core.Row) {
	if !r.Defined {
		a.undefined++
		return
	}
	a.addValue(r.CPUUsage)
}

func (a *Aggregator) addValue(pct float64) {
	if len(a.values) == 0 || pct < a.min {
		a.min = pct
	}
	if len(a.values) == 0 || pct > a.max {
		a.max = pct
	}
	a.values = append(a.values, pct)
	a.sum += pct
	a.sumSq += pct * pct
}

// Result returns the statistics over everything added so far.
func (a *Aggregator) Result() core.Summary {
	n := len(a.values)
	if n == 0 {
		return core.Summary{Undefined: a.undefined, Empty: true}
	}

	mean := a.sum / float64(n)
	variance := a.sumSq/float64(n) - mean*mean
	if variance < 0 {
		variance = 0
	}

	return core.Summary{
		Count:     n,
		Undefined: a.undefined,
		Min:       a.min,
		Max:       a.max,
		Mean:      mean,
		Median:    median(a.values),
		StdDev:    math.Sqrt(variance),
	}
}

func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// Of aggregates a selection in one call.
func Of(selected []core.SelectedSample) core.Summary {
	var a Aggregator
	for _, s := range selected {
		a.Add(s.Sample)
	}
	return a.Result()
}
