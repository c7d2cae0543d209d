package chart

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/text"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"firestige.xyz/pcapcpu/internal/core"
	"firestige.xyz/pcapcpu/internal/summary"
)

// Output file names.
const (
	UsageFile    = "cpu_usage_chart.png"
	BusyIdleFile = "busy_idle_chart.png"
	CombinedFile = "combined_charts.png"
)

var (
	usageColor = color.RGBA{R: 0x44, G: 0x72, B: 0xc4, A: 0xff}
	busyColor  = color.RGBA{R: 0xed, G: 0x7d, B: 0x31, A: 0xff}
	idleColor  = color.RGBA{R: 0x70, G: 0xad, B: 0x47, A: 0xff}

	chartWidth  = 14 * vg.Inch
	chartHeight = 8 * vg.Inch
)

// YRange picks the CPU axis bounds for values spanning [lo, hi]: ±2 points
// for a spread under 1%, centre ±7 under 10%, a 20% margin otherwise. The
// result is clamped to [0, 100].
func YRange(lo, hi float64) (min, max float64) {
	spread := hi - lo
	switch {
	case spread < 1:
		min, max = lo-2, hi+2
	case spread < 10:
		centre := (lo + hi) / 2
		min, max = centre-7, centre+7
	default:
		margin := spread * 0.2
		min, max = lo-margin, hi+margin
	}
	if min < 0 {
		min = 0
	}
	if max > 100 {
		max = 100
	}
	return min, max
}

// Render writes the usage and busy/idle charts for rows into dir, plus the
// stacked combination when combined is set. It returns the written paths.
func Render(rows []core.Row, dir string, combined bool) ([]string, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("render charts: %w", core.ErrNoSamples)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create chart dir: %w", err)
	}

	usage, err := usagePlot(rows)
	if err != nil {
		return nil, err
	}
	busyIdle, err := busyIdlePlot(rows)
	if err != nil {
		return nil, err
	}

	var written []string
	save := func(p *plot.Plot, name string) error {
		path := filepath.Join(dir, name)
		if err := p.Save(chartWidth, chartHeight, path); err != nil {
			return fmt.Errorf("save %s: %w", name, err)
		}
		written = append(written, path)
		return nil
	}
	if err := save(usage, UsageFile); err != nil {
		return written, err
	}
	if err := save(busyIdle, BusyIdleFile); err != nil {
		return written, err
	}

	if combined {
		path := filepath.Join(dir, CombinedFile)
		if err := saveStacked(path, usage, busyIdle); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

func usagePlot(rows []core.Row) (*plot.Plot, error) {
	p := newPlot("CPU Usage Over Time", "CPU Usage (%)")

	var agg summary.Aggregator
	pts := make(plotter.XYs, 0, len(rows))
	for _, r := range rows {
		agg.AddRow(r)
		if r.Defined {
			pts = append(pts, plotter.XY{X: float64(r.Number), Y: r.CPUUsage})
		}
	}
	sum := agg.Result()
	if sum.Empty {
		// Nothing defined to draw; keep an empty, labelled chart.
		p.Y.Min, p.Y.Max = 0, 100
		return p, nil
	}

	line, err := plotter.NewLine(pts)
	if err != nil {
		return nil, fmt.Errorf("usage line: %w", err)
	}
	line.LineStyle.Color = usageColor
	line.LineStyle.Width = vg.Points(2.5)
	p.Add(line)

	p.Y.Min, p.Y.Max = YRange(sum.Min, sum.Max)

	stats, err := statsLabel(sum, pts, p.Y.Max)
	if err != nil {
		return nil, err
	}
	p.Add(stats)
	return p, nil
}

func statsLabel(sum core.Summary, pts plotter.XYs, top float64) (*plotter.Labels, error) {
	lastX := pts[len(pts)-1].X
	labels, err := plotter.NewLabels(plotter.XYLabels{
		XYs:    []plotter.XY{{X: lastX, Y: top}},
		Labels: []string{StatsText(sum)},
	})
	if err != nil {
		return nil, fmt.Errorf("stats label: %w", err)
	}
	for i := range labels.TextStyle {
		labels.TextStyle[i].XAlign = text.XRight
		labels.TextStyle[i].YAlign = text.YTop
	}
	return labels, nil
}

// StatsText formats the statistics box drawn on the usage chart.
func StatsText(sum core.Summary) string {
	return fmt.Sprintf("Max: %.2f%%\nMin: %.2f%%\nAvg: %.2f%%\nStd: %.4f%%",
		sum.Max, sum.Min, sum.Mean, sum.StdDev)
}

func busyIdlePlot(rows []core.Row) (*plot.Plot, error) {
	p := newPlot("Busy Time vs Idle Time", "Time (ns)")
	p.Y.Tick.Marker = thousandsTicks{}

	busy := make(plotter.XYs, len(rows))
	idle := make(plotter.XYs, len(rows))
	for i, r := range rows {
		busy[i] = plotter.XY{X: float64(r.Number), Y: float64(r.BusyTime)}
		idle[i] = plotter.XY{X: float64(r.Number), Y: float64(r.IdleTime)}
	}

	for _, s := range []struct {
		name string
		pts  plotter.XYs
		c    color.Color
	}{
		{"Busy Time", busy, busyColor},
		{"Idle Time", idle, idleColor},
	} {
		line, err := plotter.NewLine(s.pts)
		if err != nil {
			return nil, fmt.Errorf("%s line: %w", s.name, err)
		}
		line.LineStyle.Color = s.c
		line.LineStyle.Width = vg.Points(2.5)
		p.Add(line)
		p.Legend.Add(s.name, line)
	}
	p.Legend.Top = true
	return p, nil
}

func newPlot(title, yLabel string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.Title.TextStyle.Font.Size = vg.Points(16)
	p.X.Label.Text = "Sample Number"
	p.Y.Label.Text = yLabel

	grid := plotter.NewGrid()
	grid.Vertical.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
	grid.Horizontal.Dashes = grid.Vertical.Dashes
	p.Add(grid)
	return p
}

func saveStacked(path string, top, bottom *plot.Plot) error {
	img := vgimg.New(chartWidth, 12*vg.Inch)
	dc := draw.New(img)

	tiles := draw.Tiles{Rows: 2, Cols: 1, PadY: vg.Points(20)}
	plots := [][]*plot.Plot{{top}, {bottom}}
	canvases := plot.Align(plots, tiles, dc)
	for j := range plots {
		plots[j][0].Draw(canvases[j][0])
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// thousandsTicks labels the default ticks with grouped digits.
type thousandsTicks struct{}

func (thousandsTicks) Ticks(min, max float64) []plot.Tick {
	ticks := plot.DefaultTicks{}.Ticks(min, max)
	for i := range ticks {
		if ticks[i].Label != "" {
			ticks[i].Label = humanize.Comma(int64(ticks[i].Value))
		}
	}
	return ticks
}
