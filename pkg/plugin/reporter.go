// Package plugin defines plugin interfaces.
package plugin

import (
	"context"

	"firestige.xyz/pcapcpu/internal/core"
)

// Reporter receives selected samples in capture order.
type Reporter interface {
	Plugin
	Report(ctx context.Context, s *core.SelectedSample) error
	Flush(ctx context.Context) error
}

// SummaryReporter is an optional interface for reporters that also want
// the run statistics. It is called once, after the last Report and before
// Flush.
type SummaryReporter interface {
	Reporter
	ReportSummary(ctx context.Context, sum core.Summary, counts core.Counts) error
}
