package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"firestige.xyz/pcapcpu/internal/config"
	"firestige.xyz/pcapcpu/internal/filter"
	"firestige.xyz/pcapcpu/internal/log"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration and print the effective settings",
	Long: `Load the configuration (file, PCAPCPU_* environment, defaults), check it,
and print the effective configuration as YAML.

Reporter entries are checked by creating and initializing each reporter;
the BPF program, when configured, is parsed.

Examples:
  pcapcpu validate -c pcapcpu.yml
  PCAPCPU_FILTER_PAYLOAD_LENGTH=256 pcapcpu validate`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "INVALID: %v\n", err)
			os.Exit(1)
		}
		defer log.Close()

		if err := runValidate(cfg, os.Stdout); err != nil {
			log.Close()
			fmt.Fprintf(os.Stderr, "INVALID: %v\n", err)
			os.Exit(1)
		}
	},
}

// effectiveConfig is the YAML document printed by validate.
type effectiveConfig struct {
	Pcapcpu *config.GlobalConfig `yaml:"pcapcpu"`
}

func runValidate(cfg *config.GlobalConfig, out io.Writer) error {
	if cfg.Filter.BPFFile != "" {
		bpf, err := filter.LoadBPF(cfg.Filter.BPFFile)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "# bpf program: %d instructions\n", bpf.Len())
	}
	for i, rc := range cfg.Reporters {
		r, err := newReporter(rc.Type, rc.Options)
		if err != nil {
			return fmt.Errorf("reporters[%d]: %w", i, err)
		}
		// Init may open clients (kafka); release them.
		_ = r.Stop(context.Background())
	}

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(effectiveConfig{Pcapcpu: cfg}); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return err
	}
	fmt.Fprintf(out, "VALID: %d reporter(s) configured\n", len(cfg.Reporters))
	return nil
}
