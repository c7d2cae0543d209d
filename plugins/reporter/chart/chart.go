// Package chart implements the PNG chart reporter.
package chart

import (
	"context"
	"fmt"
	"log/slog"

	"firestige.xyz/pcapcpu/internal/core"
	"firestige.xyz/pcapcpu/pkg/plugin"
)

// ChartReporter buffers the selected rows and renders them on Flush.
type ChartReporter struct {
	name   string
	config Config
	rows   []core.Row
}

// Config represents chart reporter configuration.
type Config struct {
	Dir      string `mapstructure:"dir"`      // default "."
	Combined bool   `mapstructure:"combined"` // default true
}

// NewChartReporter creates a new chart reporter.
func NewChartReporter() plugin.Reporter {
	return &ChartReporter{
		name:   "chart",
		config: Config{Dir: ".", Combined: true},
	}
}

// Name returns the plugin name.
func (r *ChartReporter) Name() string {
	return r.name
}

// Init initializes the reporter with configuration.
func (r *ChartReporter) Init(config map[string]any) error {
	if err := plugin.DecodeOptions(config, &r.config); err != nil {
		return err
	}
	if r.config.Dir == "" {
		return fmt.Errorf("%w: chart reporter 'dir' must not be empty", core.ErrConfigInvalid)
	}
	return nil
}

// Start starts the reporter.
func (r *ChartReporter) Start(ctx context.Context) error {
	r.rows = r.rows[:0]
	return nil
}

// Stop stops the reporter.
func (r *ChartReporter) Stop(ctx context.Context) error {
	r.rows = nil
	return nil
}

// Report buffers one row.
func (r *ChartReporter) Report(ctx context.Context, s *core.SelectedSample) error {
	if s == nil {
		return fmt.Errorf("nil sample")
	}
	r.rows = append(r.rows, s.Row())
	return nil
}

// Flush renders the charts. An empty selection produces no files.
func (r *ChartReporter) Flush(ctx context.Context) error {
	if len(r.rows) == 0 {
		slog.Info("no samples, charts skipped", "dir", r.config.Dir)
		return nil
	}
	files, err := Render(r.rows, r.config.Dir, r.config.Combined)
	if err != nil {
		return err
	}
	slog.Info("charts written", "dir", r.config.Dir, "files", len(files))
	return nil
}
