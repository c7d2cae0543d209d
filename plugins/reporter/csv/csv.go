// Package csv implements the CSV reporter and reader for the
// five-column CPU usage table.
package csv

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"firestige.xyz/pcapcpu/internal/core"
	"firestige.xyz/pcapcpu/pkg/plugin"
)

// Header is the column layout of the table.
var Header = []string{"Number", "CPU Usage%", "Busy Time", "Idle Time", "Busy Time + Idle Time"}

// CSVReporter writes one row per selected sample.
type CSVReporter struct {
	name   string
	config Config

	file   io.WriteCloser
	buf    *bufio.Writer
	writer *csv.Writer
	rows   uint64
}

// Config represents CSV reporter configuration.
type Config struct {
	Path string `mapstructure:"path"` // required, "-" for stdout
}

// NewCSVReporter creates a new CSV reporter.
func NewCSVReporter() plugin.Reporter {
	return &CSVReporter{name: "csv"}
}

// Name returns the plugin name.
func (r *CSVReporter) Name() string {
	return r.name
}

// Init initializes the reporter with configuration.
func (r *CSVReporter) Init(config map[string]any) error {
	if err := plugin.DecodeOptions(config, &r.config); err != nil {
		return err
	}
	if r.config.Path == "" {
		return fmt.Errorf("%w: csv reporter requires 'path'", core.ErrConfigInvalid)
	}
	return nil
}

// Start creates the output file and writes the header.
func (r *CSVReporter) Start(ctx context.Context) error {
	if r.config.Path == "-" {
		r.file = nopCloser{os.Stdout}
	} else {
		f, err := os.Create(r.config.Path)
		if err != nil {
			return fmt.Errorf("failed to create csv file: %w", err)
		}
		r.file = f
	}
	r.buf = bufio.NewWriter(r.file)
	r.writer = csv.NewWriter(r.buf)

	if err := r.writer.Write(Header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	slog.Debug("csv reporter started", "path", r.config.Path)
	return nil
}

// Report writes one row.
func (r *CSVReporter) Report(ctx context.Context, s *core.SelectedSample) error {
	if s == nil {
		return fmt.Errorf("nil sample")
	}
	if r.writer == nil {
		return fmt.Errorf("csv reporter not started")
	}
	if err := r.writer.Write(FormatRow(s.Row())); err != nil {
		return fmt.Errorf("write csv row %d: %w", s.Number, err)
	}
	r.rows++
	return nil
}

// Flush writes buffered rows to the file.
func (r *CSVReporter) Flush(ctx context.Context) error {
	if r.writer == nil {
		return nil
	}
	r.writer.Flush()
	if err := r.writer.Error(); err != nil {
		return err
	}
	return r.buf.Flush()
}

// Stop flushes and closes the file.
func (r *CSVReporter) Stop(ctx context.Context) error {
	if r.file == nil {
		return nil
	}
	flushErr := r.Flush(ctx)
	closeErr := r.file.Close()
	r.file, r.writer = nil, nil
	if flushErr != nil {
		return flushErr
	}
	if closeErr != nil {
		return fmt.Errorf("close csv file: %w", closeErr)
	}
	slog.Info("csv written", "path", r.config.Path, "rows", r.rows)
	return nil
}

// FormatRow renders a row. An undefined usage is an empty cell.
func FormatRow(row core.Row) []string {
	usage := ""
	if row.Defined {
		usage = strconv.FormatFloat(row.CPUUsage, 'f', 2, 64)
	}
	return []string{
		strconv.FormatUint(row.Number, 10),
		usage,
		strconv.FormatInt(row.BusyTime, 10),
		strconv.FormatInt(row.IdleTime, 10),
		strconv.FormatInt(row.Total, 10),
	}
}

// ReadRows parses a table written by the reporter. Columns are matched by
// header name, so extra columns and reordering are tolerated.
func ReadRows(in io.Reader) ([]core.Row, error) {
	cr := csv.NewReader(in)
	cr.FieldsPerRecord = -1

	head, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty csv")
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	col := make(map[string]int, len(head))
	for i, name := range head {
		col[name] = i
	}
	idx := make([]int, len(Header))
	for i, name := range Header {
		c, ok := col[name]
		if !ok {
			return nil, fmt.Errorf("csv header is missing column %q", name)
		}
		idx[i] = c
	}

	var rows []core.Row
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return rows, fmt.Errorf("read csv line %d: %w", line, err)
		}
		row, err := parseRow(rec, idx)
		if err != nil {
			return rows, fmt.Errorf("csv line %d: %w", line, err)
		}
		rows = append(rows, row)
	}
}

func parseRow(rec []string, idx []int) (core.Row, error) {
	field := func(i int) (string, error) {
		if idx[i] >= len(rec) {
			return "", fmt.Errorf("missing %q", Header[i])
		}
		return rec[idx[i]], nil
	}

	var (
		row core.Row
		v   [5]string
	)
	for i := range v {
		s, err := field(i)
		if err != nil {
			return row, err
		}
		v[i] = s
	}

	var err error
	if row.Number, err = strconv.ParseUint(v[0], 10, 64); err != nil {
		return row, fmt.Errorf("number: %w", err)
	}
	if v[1] != "" {
		if row.CPUUsage, err = strconv.ParseFloat(v[1], 64); err != nil {
			return row, fmt.Errorf("cpu usage: %w", err)
		}
		row.Defined = true
	}
	if row.BusyTime, err = strconv.ParseInt(v[2], 10, 64); err != nil {
		return row, fmt.Errorf("busy time: %w", err)
	}
	if row.IdleTime, err = strconv.ParseInt(v[3], 10, 64); err != nil {
		return row, fmt.Errorf("idle time: %w", err)
	}
	if row.Total, err = strconv.ParseInt(v[4], 10, 64); err != nil {
		return row, fmt.Errorf("total: %w", err)
	}
	return row, nil
}

// ReadFile is ReadRows on a file path.
func ReadFile(path string) ([]core.Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadRows(f)
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
