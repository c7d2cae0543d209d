package summary

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"firestige.xyz/pcapcpu/internal/core"
)

func sample(busy, idle int64) core.TelemetrySample {
	return core.TelemetrySample{BusyTime: busy, IdleTime: idle}
}

func TestAggregatorConstantUsage(t *testing.T) {
	var a Aggregator
	for i := 0; i < 5; i++ {
		a.Add(sample(75, 25))
	}
	s := a.Result()

	assert.False(t, s.Empty)
	assert.Equal(t, 5, s.Count)
	assert.InDelta(t, 75, s.Min, 1e-9)
	assert.InDelta(t, 75, s.Max, 1e-9)
	assert.InDelta(t, 75, s.Mean, 1e-9)
	assert.InDelta(t, 75, s.Median, 1e-9)
	assert.InDelta(t, 0, s.StdDev, 1e-6)
}

func TestAggregatorStatistics(t *testing.T) {
	var a Aggregator
	for _, busy := range []int64{10, 40, 20, 30} {
		a.Add(sample(busy, 100-busy))
	}
	s := a.Result()

	assert.Equal(t, 4, s.Count)
	assert.InDelta(t, 10, s.Min, 1e-9)
	assert.InDelta(t, 40, s.Max, 1e-9)
	assert.InDelta(t, 25, s.Mean, 1e-9)
	assert.InDelta(t, 25, s.Median, 1e-9, "even count averages the middle pair")
	assert.InDelta(t, math.Sqrt(125), s.StdDev, 1e-9)
}

func TestAggregatorOddMedian(t *testing.T) {
	s := Of([]core.SelectedSample{
		{Number: 1, Sample: sample(90, 10)},
		{Number: 2, Sample: sample(10, 90)},
		{Number: 3, Sample: sample(50, 50)},
	})
	assert.InDelta(t, 50, s.Median, 1e-9)
	assert.LessOrEqual(t, s.Min, s.Median)
	assert.LessOrEqual(t, s.Median, s.Max)
}

func TestAggregatorUndefined(t *testing.T) {
	var a Aggregator
	a.Add(sample(0, 0))
	a.Add(sample(50, 50))
	a.Add(sample(0, 0))
	s := a.Result()

	assert.Equal(t, 1, s.Count)
	assert.Equal(t, 2, s.Undefined)
	assert.InDelta(t, 50, s.Mean, 1e-9)
}

func TestAggregatorEmpty(t *testing.T) {
	var a Aggregator
	assert.Equal(t, core.Summary{Empty: true}, a.Result())

	a.Add(sample(0, 0))
	s := a.Result()
	assert.True(t, s.Empty)
	assert.Equal(t, 1, s.Undefined)

	assert.True(t, Of(nil).Empty)
}

func TestAggregatorOrderIndependent(t *testing.T) {
	in := []int64{5, 80, 33, 61, 12, 99, 47}
	var fwd, rev Aggregator
	for i := range in {
		fwd.Add(sample(in[i], 100-in[i]))
		rev.Add(sample(in[len(in)-1-i], 100-in[len(in)-1-i]))
	}
	a, b := fwd.Result(), rev.Result()
	assert.Equal(t, a.Median, b.Median)
	assert.Equal(t, a.Min, b.Min)
	assert.Equal(t, a.Max, b.Max)
	assert.InDelta(t, a.Mean, b.Mean, 1e-9)
	assert.InDelta(t, a.StdDev, b.StdDev, 1e-9)
}

func TestAggregatorAddRow(t *testing.T) {
	var a Aggregator
	a.AddRow(core.Row{Number: 1, CPUUsage: 12.5, Defined: true})
	a.AddRow(core.Row{Number: 2})
	a.AddRow(core.Row{Number: 3, CPUUsage: 37.5, Defined: true})
	s := a.Result()

	assert.Equal(t, 2, s.Count)
	assert.Equal(t, 1, s.Undefined)
	assert.InDelta(t, 25, s.Mean, 1e-9)
	assert.InDelta(t, 12.5, s.StdDev, 1e-9)
}
