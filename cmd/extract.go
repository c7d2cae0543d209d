package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/pcapcpu/internal/config"
	"firestige.xyz/pcapcpu/internal/core"
	"firestige.xyz/pcapcpu/internal/filter"
	"firestige.xyz/pcapcpu/internal/log"
	"firestige.xyz/pcapcpu/internal/metrics"
	"firestige.xyz/pcapcpu/internal/pipeline"
	"firestige.xyz/pcapcpu/internal/source/file"
	"firestige.xyz/pcapcpu/pkg/plugin"
	"firestige.xyz/pcapcpu/plugins/reporter/console"
)

var extractCmd = &cobra.Command{
	Use:   "extract <capture> [output]",
	Short: "Extract CPU usage samples from a capture",
	Long: `Extract the CPU usage telemetry carried at the end of UDP payloads.

The table is written to [output], by default <capture base>_analysis.xlsx
in the current directory (.csv with --csv). A summary of the selected
samples is printed unless --quiet is given.

Examples:
  pcapcpu extract cpu_usage.pcap
  pcapcpu extract data.pcap output.csv --csv
  pcapcpu extract data.pcap --count 100 --chart-dir charts
  pcapcpu extract data.pcap --range 50-150 --sqlite cpu.db`,
	Args: cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			exitWithError("failed to load config", err)
		}
		defer log.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := runExtract(ctx, cfg, extractOpts, cmd.Flags().Changed, args, os.Stdout); err != nil {
			stop()
			exitWithError("extract failed", err)
		}
	},
}

// extractOptions holds the extract command flags.
type extractOptions struct {
	count     uint64
	rangeSpec string
	start     uint64
	end       uint64
	all       bool

	payloadLength int
	srcPort       int
	dstPort       int
	magic         string
	bpfFile       string

	csv        bool
	xlsx       bool
	chartDir   string
	sqlitePath string

	format  string
	samples bool
	quiet   bool
}

var extractOpts extractOptions

func init() {
	f := extractCmd.Flags()
	f.Uint64VarP(&extractOpts.count, "count", "n", 0, "keep the first N samples")
	f.StringVar(&extractOpts.rangeSpec, "range", "", "keep samples a-b (1-based, inclusive)")
	f.Uint64Var(&extractOpts.start, "start", 0, "range start (with --end)")
	f.Uint64Var(&extractOpts.end, "end", 0, "range end (with --start)")
	f.BoolVar(&extractOpts.all, "all", false, "keep every sample (default)")

	f.IntVar(&extractOpts.payloadLength, "payload-length", config.DefaultPayloadLength, "telemetry UDP payload length, 0 for any")
	f.IntVar(&extractOpts.srcPort, "src-port", 0, "telemetry source port (with --dst-port)")
	f.IntVar(&extractOpts.dstPort, "dst-port", 0, "telemetry destination port (with --src-port)")
	f.StringVar(&extractOpts.magic, "magic", "", "required payload prefix, hex")
	f.StringVar(&extractOpts.bpfFile, "bpf", "", "BPF program file (tcpdump -ddd output)")

	f.BoolVar(&extractOpts.csv, "csv", false, "write the table as CSV")
	f.BoolVar(&extractOpts.xlsx, "xlsx", false, "write the table as XLSX (default, combine with --csv for both)")
	f.StringVar(&extractOpts.chartDir, "chart-dir", "", "write PNG charts into this directory")
	f.StringVar(&extractOpts.sqlitePath, "sqlite", "", "store the run in this SQLite database")

	f.StringVar(&extractOpts.format, "format", "text", "sample output format: text/json")
	f.BoolVar(&extractOpts.samples, "samples", false, "print every selected sample")
	f.BoolVarP(&extractOpts.quiet, "quiet", "q", false, "do not print the summary")

	extractCmd.MarkFlagsMutuallyExclusive("count", "range", "all")
	extractCmd.MarkFlagsMutuallyExclusive("count", "start")
	extractCmd.MarkFlagsMutuallyExclusive("range", "start")
	extractCmd.MarkFlagsRequiredTogether("start", "end")
}

// apply overrides cfg with the flags that were set on the command line.
func (o extractOptions) apply(cfg *config.GlobalConfig, changed func(string) bool) error {
	switch {
	case o.all:
		cfg.Selection = config.SelectionConfig{Mode: config.ModeAll}
	case changed("count"):
		cfg.Selection = config.SelectionConfig{Mode: config.ModeFirst, Count: o.count}
	case o.rangeSpec != "":
		start, end, err := parseRange(o.rangeSpec)
		if err != nil {
			return err
		}
		cfg.Selection = config.SelectionConfig{Mode: config.ModeRange, Start: start, End: end}
	case changed("start") || changed("end"):
		cfg.Selection = config.SelectionConfig{Mode: config.ModeRange, Start: o.start, End: o.end}
	}

	if changed("payload-length") {
		cfg.Filter.PayloadLength = o.payloadLength
	}
	if changed("src-port") || changed("dst-port") {
		cfg.Filter.SrcPort, cfg.Filter.DstPort = o.srcPort, o.dstPort
	}
	if changed("magic") {
		cfg.Filter.Magic = o.magic
	}
	if changed("bpf") {
		cfg.Filter.BPFFile = o.bpfFile
	}
	return cfg.ValidateAndApplyDefaults()
}

// parseRange parses "a-b".
func parseRange(s string) (start, end uint64, err error) {
	a, b, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return 0, 0, fmt.Errorf("%w: range %q must look like a-b", core.ErrConfigInvalid, s)
	}
	if start, err = strconv.ParseUint(strings.TrimSpace(a), 10, 64); err != nil {
		return 0, 0, fmt.Errorf("%w: range start %q: %v", core.ErrConfigInvalid, a, err)
	}
	if end, err = strconv.ParseUint(strings.TrimSpace(b), 10, 64); err != nil {
		return 0, 0, fmt.Errorf("%w: range end %q: %v", core.ErrConfigInvalid, b, err)
	}
	return start, end, nil
}

// outputPath returns the table path for ext ("csv" or "xlsx"). The default
// is <capture base>_analysis.<ext>; an explicit output keeps its name with
// the extension forced to ext.
func outputPath(capture, output, ext string) string {
	if output == "" {
		base := strings.TrimSuffix(filepath.Base(capture), filepath.Ext(capture))
		if capture == "-" {
			base = "stdin"
		}
		return base + "_analysis." + ext
	}
	if strings.EqualFold(filepath.Ext(output), "."+ext) {
		return output
	}
	return strings.TrimSuffix(output, filepath.Ext(output)) + "." + ext
}

// tableFormats returns the table reporters to run.
func (o extractOptions) tableFormats() []string {
	var formats []string
	if o.xlsx || !o.csv {
		formats = append(formats, "xlsx")
	}
	if o.csv {
		formats = append(formats, "csv")
	}
	return formats
}

func runExtract(ctx context.Context, cfg *config.GlobalConfig, opts extractOptions, changed func(string) bool, args []string, stdout io.Writer) error {
	if err := opts.apply(cfg, changed); err != nil {
		return err
	}
	capture := args[0]
	var output string
	if len(args) > 1 {
		output = args[1]
	}

	criteria, err := cfg.Filter.Criteria()
	if err != nil {
		return err
	}
	policy, err := cfg.Selection.Policy()
	if err != nil {
		return err
	}

	src, err := file.Open(capture)
	if err != nil {
		return err
	}
	defer src.Close()
	slog.Info("reading capture", "path", capture, "format", src.Format(), "link_type", src.LinkType(),
		"filter", criteria.String(), "selection", policy.String())

	builder := pipeline.NewBuilder().
		WithSource(src).
		WithCriteria(criteria).
		WithPolicy(policy).
		WithFailureLog(pipeline.FailureLogConfig{
			MaxPerWindow: cfg.Decoder.FailureLog.MaxPerWindow,
			Window:       cfg.Decoder.FailureLog.WindowDuration(),
		})
	if cfg.Filter.BPFFile != "" {
		bpf, err := filter.LoadBPF(cfg.Filter.BPFFile)
		if err != nil {
			return err
		}
		builder.WithPrefilter(bpf)
	}

	reporters, outputs, err := buildReporters(cfg, opts, capture, output, stdout)
	if err != nil {
		return err
	}
	if err := startReporters(ctx, reporters); err != nil {
		return err
	}
	defer stopReporters(context.Background(), reporters)

	collector := metrics.NewCollector()
	p, err := builder.WithReporters(reporters...).WithObserver(collector).Build()
	if err != nil {
		return err
	}

	began := time.Now()
	res, runErr := p.Run(ctx)
	collector.SetSummary(res.Summary)
	collector.SetRun(time.Since(began), time.Now())
	pushMetrics(ctx, cfg.Metrics, collector)

	if res.Shortfall > 0 {
		slog.Warn("fewer samples than requested",
			"selection", policy.String(), "decoded", res.Counts.Decoded, "missing", res.Shortfall)
	}
	if res.Counts.Decoded > 0 && !opts.quiet {
		for _, path := range outputs {
			fmt.Fprintf(stdout, "✓ written: %s\n", path)
		}
	}

	if runErr != nil {
		var ce *pipeline.CaptureError
		if errors.As(runErr, &ce) {
			slog.Error("capture truncated, partial output written", "records", ce.Processed)
		}
		return runErr
	}
	if res.Counts.Decoded == 0 {
		return fmt.Errorf("%s: %w", capture, core.ErrNoSamples)
	}
	return nil
}

// buildReporters creates and initializes the reporters requested by flags
// and configuration. It also returns the files they will write.
func buildReporters(cfg *config.GlobalConfig, opts extractOptions, capture, output string, stdout io.Writer) ([]plugin.Reporter, []string, error) {
	var (
		reporters []plugin.Reporter
		outputs   []string
	)

	if !opts.quiet || opts.samples {
		c := console.NewConsoleReporterTo(stdout)
		if err := c.Init(map[string]any{
			"format":  opts.format,
			"samples": opts.samples,
			"summary": !opts.quiet,
		}); err != nil {
			return nil, nil, fmt.Errorf("console reporter: %w", err)
		}
		reporters = append(reporters, c)
	}

	add := func(typ string, options map[string]any) error {
		r, err := newReporter(typ, options)
		if err != nil {
			return err
		}
		reporters = append(reporters, r)
		return nil
	}

	for _, ext := range opts.tableFormats() {
		path := outputPath(capture, output, ext)
		if err := add(ext, map[string]any{"path": path}); err != nil {
			return nil, nil, err
		}
		outputs = append(outputs, path)
	}
	if opts.chartDir != "" {
		if err := add("chart", map[string]any{"dir": opts.chartDir}); err != nil {
			return nil, nil, err
		}
		outputs = append(outputs, opts.chartDir)
	}
	if opts.sqlitePath != "" {
		if err := add("sqlite", map[string]any{"path": opts.sqlitePath, "label": capture}); err != nil {
			return nil, nil, err
		}
		outputs = append(outputs, opts.sqlitePath)
	}
	for _, rc := range cfg.Reporters {
		if err := add(rc.Type, rc.Options); err != nil {
			return nil, nil, err
		}
	}
	return reporters, outputs, nil
}

func newReporter(typ string, options map[string]any) (plugin.Reporter, error) {
	factory, err := plugin.GetReporterFactory(typ)
	if err != nil {
		return nil, err
	}
	r := factory()
	if err := r.Init(options); err != nil {
		return nil, fmt.Errorf("%s reporter: %w", typ, err)
	}
	return r, nil
}

func startReporters(ctx context.Context, reporters []plugin.Reporter) error {
	for i, r := range reporters {
		if err := r.Start(ctx); err != nil {
			stopReporters(ctx, reporters[:i])
			return fmt.Errorf("failed to start %s reporter: %w", r.Name(), err)
		}
	}
	return nil
}

func stopReporters(ctx context.Context, reporters []plugin.Reporter) {
	for _, r := range reporters {
		if err := r.Stop(ctx); err != nil {
			slog.Error("failed to stop reporter", "reporter", r.Name(), "error", err)
		}
	}
}

func pushMetrics(ctx context.Context, cfg config.MetricsConfig, c *metrics.Collector) {
	if cfg.Pushgateway == "" {
		return
	}
	if err := metrics.NewPusher(cfg.Pushgateway, cfg.Job).Push(ctx, c, cfg.Instance); err != nil {
		slog.Warn("metrics push failed", "error", err)
	}
}
