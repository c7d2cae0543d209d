package csv

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/pcapcpu/internal/core"
)

func selected(n uint64, busy, idle int64) *core.SelectedSample {
	return &core.SelectedSample{Number: n, Sample: core.TelemetrySample{BusyTime: busy, IdleTime: idle}}
}

func writeCSV(t *testing.T, samples ...*core.SelectedSample) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "out.csv")

	r := NewCSVReporter()
	require.NoError(t, r.Init(map[string]any{"path": path}))

	ctx := context.Background()
	require.NoError(t, r.Start(ctx))
	for _, s := range samples {
		require.NoError(t, r.Report(ctx, s))
	}
	require.NoError(t, r.Flush(ctx))
	require.NoError(t, r.Stop(ctx))
	return path
}

func TestCSVReporterOutput(t *testing.T) {
	path := writeCSV(t,
		selected(1, 75, 25),
		selected(2, 1, 2),
		selected(3, 0, 0),
	)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strings.Join([]string{
		"Number,CPU Usage%,Busy Time,Idle Time,Busy Time + Idle Time",
		"1,75.00,75,25,100",
		"2,33.33,1,2,3",
		"3,,0,0,0",
		"",
	}, "\n"), string(data))
}

func TestCSVReporterEmpty(t *testing.T) {
	path := writeCSV(t)

	rows, err := ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestReadRowsRoundTrip(t *testing.T) {
	path := writeCSV(t, selected(1, 30, 70), selected(2, 0, 0), selected(3, -5, 10))

	rows, err := ReadFile(path)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, core.Row{Number: 1, CPUUsage: 30, Defined: true, BusyTime: 30, IdleTime: 70, Total: 100}, rows[0])
	assert.False(t, rows[1].Defined)
	assert.Equal(t, int64(5), rows[2].Total)
	assert.InDelta(t, -100, rows[2].CPUUsage, 1e-9)
}

func TestReadRowsReordered(t *testing.T) {
	in := "Idle Time,Number,Extra,Busy Time,Busy Time + Idle Time,CPU Usage%\n25,7,x,75,100,75.00\n"
	rows, err := ReadRows(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, uint64(7), rows[0].Number)
	assert.Equal(t, int64(75), rows[0].BusyTime)
}

func TestReadRowsErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", "empty csv"},
		{"missing column", "Number,CPU Usage%\n1,2\n", "missing column"},
		{"bad number", strings.Join(Header, ",") + "\nx,1,1,1,2\n", "line 2: number"},
		{"bad usage", strings.Join(Header, ",") + "\n1,abc,1,1,2\n", "cpu usage"},
		{"short row", strings.Join(Header, ",") + "\n1,2\n", "missing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadRows(strings.NewReader(tt.in))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestCSVReporterInit(t *testing.T) {
	r := NewCSVReporter()
	assert.Error(t, r.Init(nil), "path is required")
	assert.Error(t, r.Init(map[string]any{"path": "x.csv", "delimiter": ";"}))
	assert.Equal(t, "csv", r.Name())
}

func TestCSVReporterNotStarted(t *testing.T) {
	r := NewCSVReporter()
	require.NoError(t, r.Init(map[string]any{"path": "unused.csv"}))
	assert.Error(t, r.Report(context.Background(), selected(1, 1, 1)))
	assert.NoError(t, r.Stop(context.Background()))
}

func TestCSVReporterCreateFails(t *testing.T) {
	r := NewCSVReporter()
	require.NoError(t, r.Init(map[string]any{"path": filepath.Join(t.TempDir(), "missing", "out.csv")}))
	assert.Error(t, r.Start(context.Background()))
}

func TestFormatRow(t *testing.T) {
	assert.Equal(t, []string{"4", "12.35", "1", "2", "3"},
		FormatRow(core.Row{Number: 4, CPUUsage: 12.346, Defined: true, BusyTime: 1, IdleTime: 2, Total: 3}))
}
