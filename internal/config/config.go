// Package config handles global configuration loading using viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"firestige.xyz/pcapcpu/internal/core"
	"firestige.xyz/pcapcpu/internal/filter"
)

// DefaultPayloadLength is the UDP payload size of a telemetry packet.
const DefaultPayloadLength = 504

// GlobalConfig represents the top-level configuration.
// Maps to the `pcapcpu:` root key in YAML.
type GlobalConfig struct {
	Log       LogConfig        `mapstructure:"log" yaml:"log"`
	Filter    FilterConfig     `mapstructure:"filter" yaml:"filter"`
	Selection SelectionConfig  `mapstructure:"selection" yaml:"selection"`
	Decoder   DecoderConfig    `mapstructure:"decoder" yaml:"decoder"`
	Reporters []ReporterConfig `mapstructure:"reporters" yaml:"reporters"`
	Metrics   MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`
}

// ─── Filter ───

// FilterConfig selects telemetry payloads among the UDP traffic.
type FilterConfig struct {
	PayloadLength int    `mapstructure:"payload_length" yaml:"payload_length"` // 0 = any length
	SrcPort       int    `mapstructure:"src_port" yaml:"src_port"`             // set together with dst_port
	DstPort       int    `mapstructure:"dst_port" yaml:"dst_port"`
	Magic         string `mapstructure:"magic" yaml:"magic"`       // hex prefix, e.g. "cafe01"
	BPFFile       string `mapstructure:"bpf_file" yaml:"bpf_file"` // tcpdump -ddd output
}

// Criteria converts the section to a payload filter.
func (f FilterConfig) Criteria() (filter.Criteria, error) {
	magic, err := filter.ParseMagic(f.Magic)
	if err != nil {
		return filter.Criteria{}, err
	}
	c := filter.Criteria{PayloadLength: f.PayloadLength, Magic: magic}
	if f.SrcPort != 0 || f.DstPort != 0 {
		c.Ports = &filter.PortPair{Src: uint16(f.SrcPort), Dst: uint16(f.DstPort)}
	}
	return c, nil
}

// ─── Selection ───

// Selection modes.
const (
	ModeAll   = "all"
	ModeFirst = "first"
	ModeRange = "range"
)

// SelectionConfig picks which decoded samples are kept.
type SelectionConfig struct {
	Mode  string `mapstructure:"mode" yaml:"mode"` // all | first | range
	Count uint64 `mapstructure:"count" yaml:"count"`
	Start uint64 `mapstructure:"start" yaml:"start"`
	End   uint64 `mapstructure:"end" yaml:"end"`
}

// Policy converts the section to a selection policy.
func (s SelectionConfig) Policy() (core.SelectionPolicy, error) {
	var p core.SelectionPolicy
	switch s.Mode {
	case ModeAll, "":
		p = core.All()
	case ModeFirst:
		p = core.FirstN(s.Count)
	case ModeRange:
		p = core.Range(s.Start, s.End)
	default:
		return p, fmt.Errorf("%w: invalid selection mode %q (must be all/first/range)", core.ErrConfigInvalid, s.Mode)
	}
	return p, p.Validate()
}

// ─── Decoder ───

// DecoderConfig controls the protocol walker.
type DecoderConfig struct {
	FailureLog FailureLogConfig `mapstructure:"failure_log" yaml:"failure_log"`
}

// FailureLogConfig bounds debug logging of skipped packets.
type FailureLogConfig struct {
	MaxPerWindow int    `mapstructure:"max_per_window" yaml:"max_per_window"` // 0 = unlimited
	Window       string `mapstructure:"window" yaml:"window"`                 // capture time, e.g. "10s"
}

// WindowDuration returns the parsed window.
func (f FailureLogConfig) WindowDuration() time.Duration {
	d, _ := time.ParseDuration(f.Window)
	return d
}

// ─── Reporters ───

// ReporterConfig contains reporter plugin configuration.
type ReporterConfig struct {
	Type    string         `mapstructure:"type" yaml:"type"`
	Options map[string]any `mapstructure:"options" yaml:"options,omitempty"`
}

// ─── Metrics ───

// MetricsConfig contains Prometheus Pushgateway settings. Nothing is pushed
// when Pushgateway is empty.
type MetricsConfig struct {
	Pushgateway string `mapstructure:"pushgateway" yaml:"pushgateway"`
	Job         string `mapstructure:"job" yaml:"job"`
	Instance    string `mapstructure:"instance" yaml:"instance"`
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level   string           `mapstructure:"level" yaml:"level"`   // debug / info / warn / error
	Format  string           `mapstructure:"format" yaml:"format"` // json / text
	Outputs LogOutputsConfig `mapstructure:"outputs" yaml:"outputs"`
}

// LogOutputsConfig contains structured log output destinations.
type LogOutputsConfig struct {
	File FileOutputConfig `mapstructure:"file" yaml:"file"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled" yaml:"enabled"`
	Path     string         `mapstructure:"path" yaml:"path"`
	Rotation RotationConfig `mapstructure:"rotation" yaml:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days" yaml:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups" yaml:"max_backups"`
	Compress   bool `mapstructure:"compress" yaml:"compress"`
}

// ─── Loading ───

// configRoot is the top-level wrapper matching the YAML structure `pcapcpu: ...`.
type configRoot struct {
	Pcapcpu GlobalConfig `mapstructure:"pcapcpu"`
}

// Load loads configuration. An empty path loads defaults and environment
// overrides only. Env vars use the PCAPCPU_ prefix (e.g. PCAPCPU_LOG_LEVEL).
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// key "pcapcpu.log.level" maps to env "PCAPCPU_LOG_LEVEL"
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Pcapcpu

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for configuration.
// All keys use "pcapcpu." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	// Log defaults
	v.SetDefault("pcapcpu.log.level", "info")
	v.SetDefault("pcapcpu.log.format", "text")
	v.SetDefault("pcapcpu.log.outputs.file.enabled", false)
	v.SetDefault("pcapcpu.log.outputs.file.path", "pcapcpu.log")
	v.SetDefault("pcapcpu.log.outputs.file.rotation.max_size_mb", 100)
	v.SetDefault("pcapcpu.log.outputs.file.rotation.max_age_days", 30)
	v.SetDefault("pcapcpu.log.outputs.file.rotation.max_backups", 5)
	v.SetDefault("pcapcpu.log.outputs.file.rotation.compress", true)

	// Filter defaults
	v.SetDefault("pcapcpu.filter.payload_length", DefaultPayloadLength)
	v.SetDefault("pcapcpu.filter.src_port", 0)
	v.SetDefault("pcapcpu.filter.dst_port", 0)
	v.SetDefault("pcapcpu.filter.magic", "")
	v.SetDefault("pcapcpu.filter.bpf_file", "")

	// Selection defaults
	v.SetDefault("pcapcpu.selection.mode", ModeAll)
	v.SetDefault("pcapcpu.selection.count", 0)
	v.SetDefault("pcapcpu.selection.start", 0)
	v.SetDefault("pcapcpu.selection.end", 0)

	// Decoder defaults
	v.SetDefault("pcapcpu.decoder.failure_log.max_per_window", 20)
	v.SetDefault("pcapcpu.decoder.failure_log.window", "10s")

	// Metrics defaults
	v.SetDefault("pcapcpu.metrics.pushgateway", "")
	v.SetDefault("pcapcpu.metrics.job", "pcapcpu")
	v.SetDefault("pcapcpu.metrics.instance", "")
}

// ValidateAndApplyDefaults validates configuration and applies runtime defaults.
func (cfg *GlobalConfig) ValidateAndApplyDefaults() error {
	// ── Log validation ──
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("%w: invalid log level: %s (must be debug/info/warn/error)", core.ErrConfigInvalid, cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return fmt.Errorf("%w: invalid log format: %s (must be json/text)", core.ErrConfigInvalid, cfg.Log.Format)
	}

	// ── Filter validation ──
	if cfg.Filter.PayloadLength < 0 || cfg.Filter.PayloadLength > 65507 {
		return fmt.Errorf("%w: filter.payload_length %d out of range", core.ErrConfigInvalid, cfg.Filter.PayloadLength)
	}
	if (cfg.Filter.SrcPort == 0) != (cfg.Filter.DstPort == 0) {
		return fmt.Errorf("%w: filter.src_port and filter.dst_port must be set together", core.ErrConfigInvalid)
	}
	for _, port := range []int{cfg.Filter.SrcPort, cfg.Filter.DstPort} {
		if port < 0 || port > 65535 {
			return fmt.Errorf("%w: filter port %d out of range", core.ErrConfigInvalid, port)
		}
	}
	if _, err := filter.ParseMagic(cfg.Filter.Magic); err != nil {
		return err
	}

	// ── Selection validation ──
	if cfg.Selection.Mode == "" {
		cfg.Selection.Mode = ModeAll
	}
	if _, err := cfg.Selection.Policy(); err != nil {
		return err
	}

	// ── Decoder validation ──
	if cfg.Decoder.FailureLog.Window == "" {
		cfg.Decoder.FailureLog.Window = "10s"
	}
	if d, err := time.ParseDuration(cfg.Decoder.FailureLog.Window); err != nil || d <= 0 {
		return fmt.Errorf("%w: invalid decoder.failure_log.window %q", core.ErrConfigInvalid, cfg.Decoder.FailureLog.Window)
	}

	// ── Reporter validation ──
	for i, r := range cfg.Reporters {
		if r.Type == "" {
			return fmt.Errorf("%w: reporters[%d]: type is required", core.ErrConfigInvalid, i)
		}
	}

	// ── Metrics ──
	if cfg.Metrics.Job == "" {
		cfg.Metrics.Job = "pcapcpu"
	}

	return nil
}
