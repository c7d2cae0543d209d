// Package console implements the console reporter.
// Prints selected samples and a run summary to stdout.
package console

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/charmbracelet/lipgloss"

	"firestige.xyz/pcapcpu/internal/core"
	"firestige.xyz/pcapcpu/pkg/plugin"
)

const defaultSparklineWidth = 60

// ConsoleReporter outputs samples and the run summary to the console.
type ConsoleReporter struct {
	name   string
	out    io.Writer
	config Config
	styles styles

	usage         []float64
	reportedCount atomic.Uint64
}

// Config represents console reporter configuration.
type Config struct {
	Format         string `mapstructure:"format"`          // "json" or "text", default "text"
	Samples        bool   `mapstructure:"samples"`         // print every selected sample
	Summary        bool   `mapstructure:"summary"`         // print the summary block, default true
	SparklineWidth int    `mapstructure:"sparkline_width"` // default 60, 0 disables
}

type styles struct {
	title lipgloss.Style
	label lipgloss.Style
	value lipgloss.Style
	warn  lipgloss.Style
	spark lipgloss.Style
	panel lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		title: r.NewStyle().Bold(true).Foreground(lipgloss.Color("#B4BEFE")),
		label: r.NewStyle().Foreground(lipgloss.Color("#A6ADC8")).Width(12),
		value: r.NewStyle().Bold(true),
		warn:  r.NewStyle().Foreground(lipgloss.Color("#F38BA8")),
		spark: r.NewStyle().Foreground(lipgloss.Color("#89B4FA")),
		panel: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#585B70")).
			Padding(0, 1),
	}
}

// NewConsoleReporter creates a new console reporter writing to stdout.
func NewConsoleReporter() plugin.Reporter {
	return newConsoleReporter(os.Stdout)
}

// NewConsoleReporterTo creates a console reporter writing to out.
func NewConsoleReporterTo(out io.Writer) *ConsoleReporter {
	return newConsoleReporter(out)
}

func newConsoleReporter(out io.Writer) *ConsoleReporter {
	return &ConsoleReporter{
		name: "console",
		out:  out,
		config: Config{
			Format:         "text",
			Summary:        true,
			SparklineWidth: defaultSparklineWidth,
		},
		styles: newStyles(lipgloss.NewRenderer(out)),
	}
}

// Name returns the plugin name.
func (r *ConsoleReporter) Name() string {
	return r.name
}

// Init initializes the reporter with configuration.
func (r *ConsoleReporter) Init(config map[string]any) error {
	if err := plugin.DecodeOptions(config, &r.config); err != nil {
		return err
	}
	if r.config.Format != "json" && r.config.Format != "text" {
		return fmt.Errorf("invalid format %q, must be json or text", r.config.Format)
	}
	if r.config.SparklineWidth < 0 {
		return fmt.Errorf("invalid sparkline_width %d", r.config.SparklineWidth)
	}
	return nil
}

// Start starts the reporter.
func (r *ConsoleReporter) Start(ctx context.Context) error {
	slog.Debug("console reporter started", "format", r.config.Format, "samples", r.config.Samples)
	return nil
}

// Stop stops the reporter.
func (r *ConsoleReporter) Stop(ctx context.Context) error {
	slog.Debug("console reporter stopped", "total_reported", r.reportedCount.Load())
	return nil
}

// Report records a sample for the summary and prints it when enabled.
func (r *ConsoleReporter) Report(ctx context.Context, s *core.SelectedSample) error {
	if s == nil {
		return fmt.Errorf("nil sample")
	}

	r.reportedCount.Add(1)
	if pct, ok := s.Sample.UsagePercent(); ok {
		r.usage = append(r.usage, pct)
	}

	if !r.config.Samples {
		return nil
	}
	if r.config.Format == "json" {
		return r.reportJSON(s)
	}
	return r.reportText(s)
}

// reportJSON outputs one JSON document per line.
func (r *ConsoleReporter) reportJSON(s *core.SelectedSample) error {
	data, err := json.Marshal(plugin.NewSampleRecord(s))
	if err != nil {
		return fmt.Errorf("json marshal failed: %w", err)
	}
	_, err = fmt.Fprintln(r.out, string(data))
	return err
}

// reportText outputs a sample in human-readable text format.
func (r *ConsoleReporter) reportText(s *core.SelectedSample) error {
	usage := "n/a"
	if pct, ok := s.Sample.UsagePercent(); ok {
		usage = fmt.Sprintf("%.2f%%", pct)
	}
	_, err := fmt.Fprintf(r.out, "#%-5d packet=%-6d t=+%.3fs cpu=%-8s busy=%d idle=%d total=%d raw=%g\n",
		s.Number,
		s.Sample.PacketIndex,
		s.Sample.Offset.Seconds(),
		usage,
		s.Sample.BusyTime,
		s.Sample.IdleTime,
		s.Sample.Total(),
		s.Sample.CPUUsageRaw,
	)
	return err
}

// ReportSummary prints the statistics block.
func (r *ConsoleReporter) ReportSummary(ctx context.Context, sum core.Summary, counts core.Counts) error {
	if !r.config.Summary {
		return nil
	}
	_, err := fmt.Fprintln(r.out, r.renderSummary(sum, counts))
	return err
}

func (r *ConsoleReporter) renderSummary(sum core.Summary, counts core.Counts) string {
	st := r.styles
	row := func(label, value string) string {
		return st.label.Render(label) + value
	}

	lines := []string{
		st.title.Render("CPU usage summary"),
		row("Packets", fmt.Sprintf("total %s  valid %s  matched %s  decoded %s  selected %s",
			st.value.Render(fmt.Sprint(counts.Total)),
			st.value.Render(fmt.Sprint(counts.ProtocolValid)),
			st.value.Render(fmt.Sprint(counts.Matched)),
			st.value.Render(fmt.Sprint(counts.Decoded)),
			st.value.Render(fmt.Sprint(counts.Selected)))),
	}
	if counts.BPFRejected > 0 {
		lines = append(lines, row("BPF", fmt.Sprintf("rejected %d", counts.BPFRejected)))
	}
	if f := formatFailures(counts.Failures); f != "" {
		lines = append(lines, row("Skipped", st.warn.Render(f)))
	}

	if sum.Empty {
		msg := "no samples with a defined CPU usage"
		if sum.Undefined > 0 {
			msg = fmt.Sprintf("%s (%d undefined)", msg, sum.Undefined)
		}
		lines = append(lines, row("CPU usage", st.warn.Render(msg)))
		return st.panel.Render(strings.Join(lines, "\n"))
	}

	samples := fmt.Sprint(sum.Count)
	if sum.Undefined > 0 {
		samples += st.warn.Render(fmt.Sprintf(" (+%d undefined)", sum.Undefined))
	}
	lines = append(lines,
		row("Samples", samples),
		row("CPU usage", fmt.Sprintf("min %s  max %s  mean %s  median %s  std %.2f",
			st.value.Render(fmt.Sprintf("%.2f%%", sum.Min)),
			st.value.Render(fmt.Sprintf("%.2f%%", sum.Max)),
			st.value.Render(fmt.Sprintf("%.2f%%", sum.Mean)),
			st.value.Render(fmt.Sprintf("%.2f%%", sum.Median)),
			sum.StdDev)),
	)
	if r.config.SparklineWidth > 0 && len(r.usage) > 1 {
		lines = append(lines, row("Trend", st.spark.Render(Sparkline(r.usage, r.config.SparklineWidth))))
	}
	return st.panel.Render(strings.Join(lines, "\n"))
}

func formatFailures(failures map[core.Reason]uint64) string {
	if len(failures) == 0 {
		return ""
	}
	keys := make([]string, 0, len(failures))
	for reason := range failures {
		keys = append(keys, string(reason))
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, failures[core.Reason(k)]))
	}
	return strings.Join(parts, " ")
}

// Flush is a no-op for console reporter (stdout auto-flushes).
func (r *ConsoleReporter) Flush(ctx context.Context) error {
	return nil
}
