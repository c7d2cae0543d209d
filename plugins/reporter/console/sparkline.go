package console

import (
	"math"
	"strings"
)

var sparkChars = []rune("▁▂▃▄▅▆▇█")

// Sparkline renders data as at most width block characters. Longer series
// are averaged into width buckets.
func Sparkline(data []float64, width int) string {
	if len(data) == 0 || width <= 0 {
		return ""
	}
	data = downsample(data, width)

	lo, hi := math.MaxFloat64, -math.MaxFloat64
	for _, v := range data {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	span := hi - lo

	var b strings.Builder
	for _, v := range data {
		idx := 0
		if span > 0 {
			idx = int((v - lo) / span * float64(len(sparkChars)-1))
		}
		b.WriteRune(sparkChars[idx])
	}
	return b.String()
}

func downsample(data []float64, width int) []float64 {
	if len(data) <= width {
		return data
	}
	out := make([]float64, width)
	for i := range out {
		start := i * len(data) / width
		end := (i + 1) * len(data) / width
		var sum float64
		for _, v := range data[start:end] {
			sum += v
		}
		out[i] = sum / float64(end-start)
	}
	return out
}
