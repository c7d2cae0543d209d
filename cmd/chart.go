package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/pcapcpu/internal/log"
	"firestige.xyz/pcapcpu/plugins/reporter/chart"
	csvrep "firestige.xyz/pcapcpu/plugins/reporter/csv"
)

var chartCmd = &cobra.Command{
	Use:   "chart <csv>",
	Short: "Render PNG charts from an exported CSV table",
	Long: `Render the CPU usage and busy/idle charts from a CSV written by
"pcapcpu extract --csv".

Files written into --out:
  cpu_usage_chart.png   CPU usage with max/min/avg/std
  busy_idle_chart.png   busy and idle time
  combined_charts.png   both charts stacked (unless --combined=false)`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if _, err := loadConfig(); err != nil {
			exitWithError("failed to load config", err)
		}
		defer log.Close()

		if err := runChart(args[0], chartOutDir, chartCombined, os.Stdout); err != nil {
			exitWithError("chart failed", err)
		}
	},
}

var (
	chartOutDir   string
	chartCombined bool
)

func init() {
	chartCmd.Flags().StringVarP(&chartOutDir, "out", "o", ".", "output directory")
	chartCmd.Flags().BoolVar(&chartCombined, "combined", true, "also write the stacked chart")
}

func runChart(csvPath, dir string, combined bool, out io.Writer) error {
	rows, err := csvrep.ReadFile(csvPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "read %d data points from %s\n", len(rows), csvPath)

	files, err := chart.Render(rows, dir, combined)
	if err != nil {
		return err
	}
	for _, f := range files {
		fmt.Fprintf(out, "✓ written: %s\n", f)
	}
	return nil
}
