// Package sqlite implements the SQLite reporter. Each run is stored in
// one transaction: a row in runs plus its selected samples in cpu_samples.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math"
	"time"

	_ "modernc.org/sqlite"

	"firestige.xyz/pcapcpu/internal/core"
	"firestige.xyz/pcapcpu/pkg/plugin"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	label TEXT,
	started_at INTEGER NOT NULL,
	packets_total INTEGER,
	decoded INTEGER,
	selected INTEGER,
	undefined INTEGER,
	cpu_min REAL,
	cpu_max REAL,
	cpu_mean REAL,
	cpu_median REAL,
	cpu_stddev REAL
);

CREATE TABLE IF NOT EXISTS cpu_samples (
	run_id INTEGER NOT NULL REFERENCES runs(id),
	number INTEGER NOT NULL,
	match_index INTEGER,
	packet_index INTEGER,
	timestamp INTEGER,
	src_port INTEGER,
	dst_port INTEGER,
	cpu_usage_raw REAL,
	cpu_usage REAL,
	busy_time INTEGER,
	idle_time INTEGER,
	total INTEGER,
	PRIMARY KEY (run_id, number)
);
`

const insertSample = `
INSERT INTO cpu_samples
(run_id, number, match_index, packet_index, timestamp, src_port, dst_port,
 cpu_usage_raw, cpu_usage, busy_time, idle_time, total)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

// SQLiteReporter writes samples to a SQLite database.
type SQLiteReporter struct {
	name   string
	config Config

	db    *sql.DB
	tx    *sql.Tx
	stmt  *sql.Stmt
	runID int64
	rows  int
}

// Config represents sqlite reporter configuration.
type Config struct {
	Path  string `mapstructure:"path"`  // required
	Label string `mapstructure:"label"` // stored with the run, usually the capture path
}

// NewSQLiteReporter creates a new sqlite reporter.
func NewSQLiteReporter() plugin.Reporter {
	return &SQLiteReporter{name: "sqlite"}
}

// Name returns the plugin name.
func (r *SQLiteReporter) Name() string {
	return r.name
}

// Init initializes the reporter with configuration.
func (r *SQLiteReporter) Init(config map[string]any) error {
	if err := plugin.DecodeOptions(config, &r.config); err != nil {
		return err
	}
	if r.config.Path == "" {
		return fmt.Errorf("%w: sqlite reporter requires 'path'", core.ErrConfigInvalid)
	}
	return nil
}

// Start opens the database, creates the schema and begins the run
// transaction.
func (r *SQLiteReporter) Start(ctx context.Context) error {
	db, err := sql.Open("sqlite", r.config.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return fmt.Errorf("failed to create tables: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		db.Close()
		return fmt.Errorf("failed to begin run: %w", err)
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO runs (label, started_at) VALUES (?, ?)`,
		r.config.Label, time.Now().UnixNano())
	if err == nil {
		r.runID, err = res.LastInsertId()
	}
	if err == nil {
		r.stmt, err = tx.PrepareContext(ctx, insertSample)
	}
	if err != nil {
		tx.Rollback()
		db.Close()
		return fmt.Errorf("failed to start run: %w", err)
	}

	r.db, r.tx, r.rows = db, tx, 0
	slog.Debug("sqlite reporter started", "path", r.config.Path, "run", r.runID)
	return nil
}

// RunID returns the id of the current run.
func (r *SQLiteReporter) RunID() int64 {
	return r.runID
}

// Report inserts one sample.
func (r *SQLiteReporter) Report(ctx context.Context, s *core.SelectedSample) error {
	if s == nil {
		return fmt.Errorf("nil sample")
	}
	if r.stmt == nil {
		return fmt.Errorf("sqlite reporter not started")
	}

	row := s.Row()
	var usage sql.NullFloat64
	if row.Defined {
		usage = sql.NullFloat64{Float64: row.CPUUsage, Valid: true}
	}
	_, err := r.stmt.ExecContext(ctx,
		r.runID,
		int64(s.Number),
		int64(s.Sample.MatchIndex),
		int64(s.Sample.PacketIndex),
		s.Sample.Timestamp.UnixNano(),
		s.Sample.SrcPort,
		s.Sample.DstPort,
		finite(s.Sample.CPUUsageRaw),
		usage,
		row.BusyTime,
		row.IdleTime,
		row.Total,
	)
	if err != nil {
		return fmt.Errorf("insert sample %d: %w", s.Number, err)
	}
	r.rows++
	return nil
}

// ReportSummary stores the run statistics.
func (r *SQLiteReporter) ReportSummary(ctx context.Context, sum core.Summary, counts core.Counts) error {
	if r.tx == nil {
		return fmt.Errorf("sqlite reporter not started")
	}
	stat := func(v float64) sql.NullFloat64 {
		return sql.NullFloat64{Float64: v, Valid: !sum.Empty}
	}
	_, err := r.tx.ExecContext(ctx, `
		UPDATE runs SET packets_total = ?, decoded = ?, selected = ?, undefined = ?,
		cpu_min = ?, cpu_max = ?, cpu_mean = ?, cpu_median = ?, cpu_stddev = ?
		WHERE id = ?`,
		int64(counts.Total), int64(counts.Decoded), int64(counts.Selected), sum.Undefined,
		stat(sum.Min), stat(sum.Max), stat(sum.Mean), stat(sum.Median), stat(sum.StdDev),
		r.runID,
	)
	if err != nil {
		return fmt.Errorf("update run %d: %w", r.runID, err)
	}
	return nil
}

// Flush commits the run.
func (r *SQLiteReporter) Flush(ctx context.Context) error {
	if r.tx == nil {
		return nil
	}
	r.stmt.Close()
	err := r.tx.Commit()
	r.tx, r.stmt = nil, nil
	if err != nil {
		return fmt.Errorf("commit run %d: %w", r.runID, err)
	}
	slog.Info("sqlite written", "path", r.config.Path, "run", r.runID, "rows", r.rows)
	return nil
}

// Stop rolls back an uncommitted run and closes the database.
func (r *SQLiteReporter) Stop(ctx context.Context) error {
	if r.tx != nil {
		r.stmt.Close()
		r.tx.Rollback()
		r.tx, r.stmt = nil, nil
	}
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}

func finite(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}
