package console

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/pcapcpu/internal/core"
)

func sample(n uint64, busy, idle int64) *core.SelectedSample {
	return &core.SelectedSample{
		Number: n,
		Sample: core.TelemetrySample{
			PacketIndex: n * 2,
			MatchIndex:  n,
			Offset:      time.Duration(n) * time.Second,
			BusyTime:    busy,
			IdleTime:    idle,
		},
	}
}

func TestConsoleReporter_Init(t *testing.T) {
	tests := []struct {
		name    string
		config  map[string]any
		wantErr bool
		wantFmt string
	}{
		{"nil config defaults to text", nil, false, "text"},
		{"empty config defaults to text", map[string]any{}, false, "text"},
		{"json format", map[string]any{"format": "json"}, false, "json"},
		{"invalid format", map[string]any{"format": "xml"}, true, "xml"},
		{"unknown option", map[string]any{"colour": true}, true, "text"},
		{"negative width", map[string]any{"sparkline_width": -1}, true, "text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newConsoleReporter(&bytes.Buffer{})
			err := r.Init(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantFmt, r.config.Format)
		})
	}
}

func TestConsoleReporter_SamplesOffByDefault(t *testing.T) {
	var buf bytes.Buffer
	r := newConsoleReporter(&buf)
	require.NoError(t, r.Init(nil))

	require.NoError(t, r.Report(context.Background(), sample(1, 75, 25)))
	assert.Empty(t, buf.String())
	assert.Equal(t, uint64(1), r.reportedCount.Load())
}

func TestConsoleReporter_JSON(t *testing.T) {
	var buf bytes.Buffer
	r := newConsoleReporter(&buf)
	require.NoError(t, r.Init(map[string]any{"format": "json", "samples": true}))

	ctx := context.Background()
	require.NoError(t, r.Report(ctx, sample(1, 75, 25)))
	require.NoError(t, r.Report(ctx, sample(2, 0, 0)))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, 1.0, first["number"])
	assert.Equal(t, 75.0, first["cpu_usage_percent"])
	assert.Equal(t, 100.0, first["total"])

	var second map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Nil(t, second["cpu_usage_percent"])

	assert.Error(t, r.Report(ctx, nil))
}

func TestConsoleReporter_Text(t *testing.T) {
	var buf bytes.Buffer
	r := newConsoleReporter(&buf)
	require.NoError(t, r.Init(map[string]any{"samples": true}))

	require.NoError(t, r.Report(context.Background(), sample(3, 30, 70)))
	require.NoError(t, r.Report(context.Background(), sample(4, 0, 0)))

	out := buf.String()
	assert.Contains(t, out, "#3")
	assert.Contains(t, out, "cpu=30.00%")
	assert.Contains(t, out, "busy=30 idle=70 total=100")
	assert.Contains(t, out, "cpu=n/a")
}

func TestConsoleReporter_Summary(t *testing.T) {
	var buf bytes.Buffer
	r := newConsoleReporter(&buf)
	require.NoError(t, r.Init(nil))

	ctx := context.Background()
	for i, busy := range []int64{10, 50, 90} {
		require.NoError(t, r.Report(ctx, sample(uint64(i+1), busy, 100-busy)))
	}
	counts := core.Counts{
		Total: 5, ProtocolValid: 4, Matched: 3, Decoded: 3, Selected: 3,
		Failures: map[core.Reason]uint64{core.ReasonNotUDP: 1},
	}
	sum := core.Summary{Count: 3, Min: 10, Max: 90, Mean: 50, Median: 50, StdDev: 32.66}
	require.NoError(t, r.ReportSummary(ctx, sum, counts))

	out := buf.String()
	assert.Contains(t, out, "CPU usage summary")
	assert.Contains(t, out, "min 10.00%")
	assert.Contains(t, out, "max 90.00%")
	assert.Contains(t, out, "median 50.00%")
	assert.Contains(t, out, "not_udp=1")
	assert.Contains(t, out, "▁")
	assert.Contains(t, out, "█")
}

func TestConsoleReporter_EmptySummary(t *testing.T) {
	var buf bytes.Buffer
	r := newConsoleReporter(&buf)
	require.NoError(t, r.Init(nil))

	require.NoError(t, r.ReportSummary(context.Background(), core.Summary{Empty: true, Undefined: 2}, core.Counts{Total: 4}))
	assert.Contains(t, buf.String(), "no samples with a defined CPU usage (2 undefined)")
}

func TestConsoleReporter_SummaryDisabled(t *testing.T) {
	var buf bytes.Buffer
	r := newConsoleReporter(&buf)
	require.NoError(t, r.Init(map[string]any{"summary": false}))

	require.NoError(t, r.ReportSummary(context.Background(), core.Summary{Empty: true}, core.Counts{}))
	assert.Empty(t, buf.String())
}

func TestConsoleReporter_Lifecycle(t *testing.T) {
	r := NewConsoleReporter()
	assert.Equal(t, "console", r.Name())

	ctx := context.Background()
	assert.NoError(t, r.Start(ctx))
	assert.NoError(t, r.Flush(ctx))
	assert.NoError(t, r.Stop(ctx))
}

func TestSparkline(t *testing.T) {
	assert.Equal(t, "", Sparkline(nil, 10))
	assert.Equal(t, "", Sparkline([]float64{1}, 0))
	assert.Equal(t, "▁▁▁", Sparkline([]float64{5, 5, 5}, 10))
	assert.Equal(t, "▁█", Sparkline([]float64{0, 100}, 10))

	long := make([]float64, 500)
	for i := range long {
		long[i] = float64(i % 100)
	}
	assert.Equal(t, 40, utf8.RuneCountInString(Sparkline(long, 40)))
}
