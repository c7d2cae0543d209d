// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/pcapcpu/internal/config"
	"firestige.xyz/pcapcpu/internal/log"

	// built-in reporters
	_ "firestige.xyz/pcapcpu/plugins"
)

var (
	// Global flags
	configFile string
	logLevel   string
	logFormat  string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pcapcpu",
	Short: "pcapcpu - CPU usage telemetry extraction from packet captures",
	Long: `pcapcpu reads pcap/pcapng captures, finds the UDP telemetry packets a
device sends with its CPU counters appended to the payload, and exports the
samples as tables, charts and summaries.

Features:
  - Single pass over the capture, one record in memory at a time
  - Selection of all, the first N or a 1-based range of samples
  - Outputs: XLSX with charts, CSV, PNG charts, SQLite, Kafka, console summary
  - Optional BPF prefilter and Prometheus Pushgateway metrics`,
	Version:      "0.1.0",
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path (optional)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"log level: debug/info/warn/error (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "",
		"log format: text/json (overrides config)")

	// Add subcommands
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(chartCmd)
	rootCmd.AddCommand(validateCmd)
}

// loadConfig loads the config file, applies the global flag overrides and
// initializes logging.
func loadConfig() (*config.GlobalConfig, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, err
	}
	if err := log.Init(cfg.Log); err != nil {
		return nil, fmt.Errorf("failed to init logger: %w", err)
	}
	return cfg, nil
}

// exitWithError prints error message and exits with code 1
func exitWithError(msg string, err error) {
	log.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	os.Exit(1)
}
