// Package kafka implements the Kafka reporter.
// Sends one JSON record per selected sample, batched, with compression and retry support.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"

	"firestige.xyz/pcapcpu/internal/core"
	"firestige.xyz/pcapcpu/pkg/plugin"
)

const (
	defaultBatchSize    = 100
	defaultBatchTimeout = 100 * time.Millisecond
	defaultCompression  = "snappy"
	defaultMaxAttempts  = 3

	headerType  = "type"
	headerLabel = "label"
)

// messageWriter is the part of *kafka.Writer the reporter uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaReporter sends samples to Kafka.
type KafkaReporter struct {
	name    string
	writer  messageWriter
	config  Config
	pending []kafka.Message

	// Statistics
	reportedCount atomic.Uint64
	errorCount    atomic.Uint64
}

// Config represents Kafka reporter configuration.
type Config struct {
	Brokers      []string      `mapstructure:"brokers"`       // required
	Topic        string        `mapstructure:"topic"`         // required
	Label        string        `mapstructure:"label"`         // optional, sent as a header
	BatchSize    int           `mapstructure:"batch_size"`    // optional, default 100
	BatchTimeout time.Duration `mapstructure:"batch_timeout"` // optional, default 100ms
	Compression  string        `mapstructure:"compression"`   // optional: none|gzip|snappy|lz4, default snappy
	MaxAttempts  int           `mapstructure:"max_attempts"`  // optional, default 3
}

// SummaryRecord is the JSON body of the end-of-run message.
type SummaryRecord struct {
	Type      string             `json:"type"`
	Packets   uint64             `json:"packets_total"`
	Decoded   uint64             `json:"decoded"`
	Selected  uint64             `json:"selected"`
	Undefined int                `json:"undefined"`
	Failures  map[string]uint64  `json:"failures,omitempty"`
	CPUUsage  map[string]float64 `json:"cpu_usage,omitempty"`
}

// NewKafkaReporter creates a new Kafka reporter.
func NewKafkaReporter() plugin.Reporter {
	return &KafkaReporter{
		name: "kafka",
	}
}

// Name returns the plugin name.
func (r *KafkaReporter) Name() string {
	return r.name
}

// Init initializes the reporter with configuration.
func (r *KafkaReporter) Init(config map[string]any) error {
	if config == nil {
		return fmt.Errorf("%w: kafka reporter requires configuration", core.ErrConfigInvalid)
	}

	cfg := Config{
		BatchSize:    defaultBatchSize,
		BatchTimeout: defaultBatchTimeout,
		Compression:  defaultCompression,
		MaxAttempts:  defaultMaxAttempts,
	}
	if err := plugin.DecodeOptions(config, &cfg); err != nil {
		return err
	}
	if len(cfg.Brokers) == 0 {
		return fmt.Errorf("%w: brokers is required", core.ErrConfigInvalid)
	}
	if cfg.Topic == "" {
		return fmt.Errorf("%w: topic is required", core.ErrConfigInvalid)
	}
	if cfg.BatchSize <= 0 {
		return fmt.Errorf("%w: batch_size must be positive", core.ErrConfigInvalid)
	}

	writerConfig := kafka.WriterConfig{
		Brokers:      cfg.Brokers,
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		MaxAttempts:  cfg.MaxAttempts,
		Async:        false, // Synchronous for error handling
	}

	switch cfg.Compression {
	case "none", "":
		writerConfig.CompressionCodec = nil
	case "gzip":
		writerConfig.CompressionCodec = compress.Gzip.Codec()
	case "snappy":
		writerConfig.CompressionCodec = compress.Snappy.Codec()
	case "lz4":
		writerConfig.CompressionCodec = compress.Lz4.Codec()
	default:
		return fmt.Errorf("%w: invalid compression type: %s", core.ErrConfigInvalid, cfg.Compression)
	}

	r.config = cfg
	r.writer = kafka.NewWriter(writerConfig)
	return nil
}

// Start starts the reporter.
func (r *KafkaReporter) Start(ctx context.Context) error {
	slog.Info("kafka reporter started",
		"brokers", r.config.Brokers,
		"topic", r.config.Topic,
		"batch_size", r.config.BatchSize,
		"batch_timeout", r.config.BatchTimeout,
		"compression", r.config.Compression,
	)
	return nil
}

// Stop closes the writer.
func (r *KafkaReporter) Stop(ctx context.Context) error {
	if r.writer != nil {
		if err := r.writer.Close(); err != nil {
			slog.Error("error closing kafka writer", "error", err)
			return err
		}
	}

	slog.Info("kafka reporter stopped",
		"total_reported", r.reportedCount.Load(),
		"total_errors", r.errorCount.Load(),
	)
	return nil
}

// Report queues one sample and writes a batch once batch_size are pending.
func (r *KafkaReporter) Report(ctx context.Context, s *core.SelectedSample) error {
	if s == nil {
		return fmt.Errorf("nil sample")
	}

	value, err := json.Marshal(plugin.NewSampleRecord(s))
	if err != nil {
		r.errorCount.Add(1)
		return fmt.Errorf("serialize sample failed: %w", err)
	}

	r.pending = append(r.pending, kafka.Message{
		Key:     []byte(strconv.FormatUint(s.Sample.MatchIndex, 10)),
		Value:   value,
		Time:    s.Sample.Timestamp,
		Headers: r.headers("sample"),
	})
	if len(r.pending) >= r.config.BatchSize {
		return r.write(ctx)
	}
	return nil
}

// ReportSummary queues the end-of-run statistics.
func (r *KafkaReporter) ReportSummary(ctx context.Context, sum core.Summary, counts core.Counts) error {
	rec := SummaryRecord{
		Type:      "summary",
		Packets:   counts.Total,
		Decoded:   counts.Decoded,
		Selected:  counts.Selected,
		Undefined: sum.Undefined,
	}
	if len(counts.Failures) > 0 {
		rec.Failures = make(map[string]uint64, len(counts.Failures))
		for reason, n := range counts.Failures {
			rec.Failures[string(reason)] = n
		}
	}
	if !sum.Empty {
		rec.CPUUsage = map[string]float64{
			"min":    sum.Min,
			"max":    sum.Max,
			"mean":   sum.Mean,
			"median": sum.Median,
			"stddev": sum.StdDev,
		}
	}

	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("serialize summary failed: %w", err)
	}
	r.pending = append(r.pending, kafka.Message{
		Key:     []byte("summary"),
		Value:   value,
		Headers: r.headers("summary"),
	})
	return nil
}

// Flush writes all pending messages.
func (r *KafkaReporter) Flush(ctx context.Context) error {
	return r.write(ctx)
}

func (r *KafkaReporter) write(ctx context.Context) error {
	if len(r.pending) == 0 || r.writer == nil {
		return nil
	}
	batch := r.pending
	r.pending = nil

	if err := r.writer.WriteMessages(ctx, batch...); err != nil {
		r.errorCount.Add(uint64(len(batch)))
		return fmt.Errorf("kafka write failed: %w", err)
	}
	r.reportedCount.Add(uint64(len(batch)))
	return nil
}

func (r *KafkaReporter) headers(kind string) []kafka.Header {
	h := []kafka.Header{{Key: headerType, Value: []byte(kind)}}
	if r.config.Label != "" {
		h = append(h, kafka.Header{Key: headerLabel, Value: []byte(r.config.Label)})
	}
	return h
}
