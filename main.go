// Package main is the entry point for the pcapcpu telemetry extractor.
package main

import (
	"fmt"
	"os"

	"firestige.xyz/pcapcpu/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
