// Package xlsx implements the Excel workbook reporter: a styled data
// sheet with usage and busy/idle line charts, plus a summary sheet.
package xlsx

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/xuri/excelize/v2"

	"firestige.xyz/pcapcpu/internal/core"
	"firestige.xyz/pcapcpu/pkg/plugin"
	csvrep "firestige.xyz/pcapcpu/plugins/reporter/csv"
)

const (
	DataSheet    = "CPU Usage Data"
	SummarySheet = "Summary"
)

var columnWidths = []float64{12, 15, 18, 18, 25}

// XLSXReporter builds the workbook in memory and saves it on Flush.
type XLSXReporter struct {
	name   string
	config Config

	file    *excelize.File
	nextRow int
}

// Config represents xlsx reporter configuration.
type Config struct {
	Path    string `mapstructure:"path"`    // required
	Charts  bool   `mapstructure:"charts"`  // default true
	Summary bool   `mapstructure:"summary"` // add the summary sheet, default true
}

// NewXLSXReporter creates a new xlsx reporter.
func NewXLSXReporter() plugin.Reporter {
	return &XLSXReporter{
		name:   "xlsx",
		config: Config{Charts: true, Summary: true},
	}
}

// Name returns the plugin name.
func (r *XLSXReporter) Name() string {
	return r.name
}

// Init initializes the reporter with configuration.
func (r *XLSXReporter) Init(config map[string]any) error {
	if err := plugin.DecodeOptions(config, &r.config); err != nil {
		return err
	}
	if r.config.Path == "" {
		return fmt.Errorf("%w: xlsx reporter requires 'path'", core.ErrConfigInvalid)
	}
	return nil
}

// Start creates the workbook and the styled header row.
func (r *XLSXReporter) Start(ctx context.Context) error {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", DataSheet); err != nil {
		return err
	}

	header := make([]any, len(csvrep.Header))
	for i, h := range csvrep.Header {
		header[i] = h
	}
	if err := f.SetSheetRow(DataSheet, "A1", &header); err != nil {
		return err
	}

	style, err := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF", Size: 11},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(DataSheet, "A1", "E1", style); err != nil {
		return err
	}

	for i, w := range columnWidths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(DataSheet, col, col, w); err != nil {
			return err
		}
	}

	r.file = f
	r.nextRow = 2
	slog.Debug("xlsx reporter started", "path", r.config.Path)
	return nil
}

// Report appends one data row.
func (r *XLSXReporter) Report(ctx context.Context, s *core.SelectedSample) error {
	if s == nil {
		return fmt.Errorf("nil sample")
	}
	if r.file == nil {
		return fmt.Errorf("xlsx reporter not started")
	}

	row := s.Row()
	var usage any
	if row.Defined {
		usage = math.Round(row.CPUUsage*100) / 100
	}
	values := []any{row.Number, usage, row.BusyTime, row.IdleTime, row.Total}

	cell, _ := excelize.CoordinatesToCellName(1, r.nextRow)
	if err := r.file.SetSheetRow(DataSheet, cell, &values); err != nil {
		return fmt.Errorf("write xlsx row %d: %w", s.Number, err)
	}
	r.nextRow++
	return nil
}

// ReportSummary writes the summary sheet.
func (r *XLSXReporter) ReportSummary(ctx context.Context, sum core.Summary, counts core.Counts) error {
	if r.file == nil || !r.config.Summary {
		return nil
	}
	if _, err := r.file.NewSheet(SummarySheet); err != nil {
		return err
	}

	rows := [][]any{
		{"Metric", "Value"},
		{"Packets total", counts.Total},
		{"Protocol valid", counts.ProtocolValid},
		{"Matched", counts.Matched},
		{"Decoded", counts.Decoded},
		{"Selected", counts.Selected},
		{"Samples with defined usage", sum.Count},
		{"Samples with undefined usage", sum.Undefined},
	}
	if !sum.Empty {
		rows = append(rows,
			[]any{"CPU usage min %", round2(sum.Min)},
			[]any{"CPU usage max %", round2(sum.Max)},
			[]any{"CPU usage mean %", round2(sum.Mean)},
			[]any{"CPU usage median %", round2(sum.Median)},
			[]any{"CPU usage std dev", round2(sum.StdDev)},
		)
	}
	for i := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := r.file.SetSheetRow(SummarySheet, cell, &rows[i]); err != nil {
			return err
		}
	}
	return r.file.SetColWidth(SummarySheet, "A", "A", 30)
}

// Flush adds the charts and saves the workbook.
func (r *XLSXReporter) Flush(ctx context.Context) error {
	if r.file == nil {
		return nil
	}
	last := r.nextRow - 1
	if r.config.Charts && last >= 2 {
		if err := r.addCharts(last); err != nil {
			return fmt.Errorf("add xlsx charts: %w", err)
		}
	}
	if err := r.file.SaveAs(r.config.Path); err != nil {
		return fmt.Errorf("save xlsx: %w", err)
	}
	slog.Info("xlsx written", "path", r.config.Path, "rows", last-1)
	return nil
}

func (r *XLSXReporter) addCharts(last int) error {
	ref := func(col string, from int) string {
		return fmt.Sprintf("'%s'!$%s$%d:$%s$%d", DataSheet, col, from, col, last)
	}
	name := func(col string) string {
		return fmt.Sprintf("'%s'!$%s$1", DataSheet, col)
	}
	categories := ref("A", 2)
	dim := excelize.ChartDimension{Width: 960, Height: 480}
	xAxis := excelize.ChartAxis{Title: []excelize.RichTextRun{{Text: "Data Point Number"}}}

	if err := r.file.AddChart(DataSheet, "G2", &excelize.Chart{
		Type:      excelize.Line,
		Dimension: dim,
		Title:     []excelize.RichTextRun{{Text: "CPU Usage Over Time"}},
		XAxis:     xAxis,
		YAxis:     excelize.ChartAxis{Title: []excelize.RichTextRun{{Text: "CPU Usage (%)"}}},
		Series: []excelize.ChartSeries{{
			Name:       name("B"),
			Categories: categories,
			Values:     ref("B", 2),
			Line:       excelize.ChartLine{Smooth: true},
			Fill:       excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		}},
	}); err != nil {
		return err
	}

	return r.file.AddChart(DataSheet, "G32", &excelize.Chart{
		Type:      excelize.Line,
		Dimension: dim,
		Title:     []excelize.RichTextRun{{Text: "Busy Time vs Idle Time"}},
		XAxis:     xAxis,
		YAxis:     excelize.ChartAxis{Title: []excelize.RichTextRun{{Text: "Time"}}},
		Series: []excelize.ChartSeries{
			{
				Name:       name("C"),
				Categories: categories,
				Values:     ref("C", 2),
				Line:       excelize.ChartLine{Smooth: true},
				Fill:       excelize.Fill{Type: "pattern", Color: []string{"ED7D31"}, Pattern: 1},
			},
			{
				Name:       name("D"),
				Categories: categories,
				Values:     ref("D", 2),
				Line:       excelize.ChartLine{Smooth: true},
				Fill:       excelize.Fill{Type: "pattern", Color: []string{"70AD47"}, Pattern: 1},
			},
		},
	})
}

// Stop releases the workbook.
func (r *XLSXReporter) Stop(ctx context.Context) error {
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
