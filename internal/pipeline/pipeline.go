// Package pipeline runs a capture through walking, filtering, decoding and
// selection in a single pass.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"firestige.xyz/pcapcpu/internal/core"
	"firestige.xyz/pcapcpu/internal/core/decoder"
	"firestige.xyz/pcapcpu/internal/filter"
	"firestige.xyz/pcapcpu/internal/selector"
	"firestige.xyz/pcapcpu/internal/summary"
	"firestige.xyz/pcapcpu/internal/telemetry"
	"firestige.xyz/pcapcpu/pkg/plugin"
)

// Source yields capture records in file order. Next returns io.EOF at a
// clean end of stream.
type Source interface {
	Next() (core.CaptureRecord, error)
}

// Prefilter accepts or rejects a raw frame before it is walked.
type Prefilter interface {
	Accept(frame []byte) bool
}

// Observer is notified as packets move through the stages.
type Observer interface {
	ObserveStage(stage string)
	ObserveFailure(reason core.Reason)
}

// Stage names passed to Observer.ObserveStage.
const (
	StageRead          = "read"
	StageBPFRejected   = "bpf_rejected"
	StageProtocolValid = "protocol_valid"
	StageMatched       = "matched"
	StageDecoded       = "decoded"
	StageSelected      = "selected"
)

// Config contains pipeline configuration.
type Config struct {
	Source     Source
	Decoder    decoder.Decoder // default StandardDecoder
	Prefilter  Prefilter       // optional
	Criteria   filter.Criteria
	Policy     core.SelectionPolicy
	Reporters  []plugin.Reporter
	Observer   Observer // optional
	FailureLog FailureLogConfig
}

// Result is the outcome of a run. It is valid even when Run also returns
// an error; it then covers the records read before the error.
type Result struct {
	Counts    core.Counts
	Summary   core.Summary
	Samples   []core.SelectedSample
	Shortfall uint64 // samples requested beyond what the capture held
}

// CaptureError reports a container failure after Processed records.
type CaptureError struct {
	Processed uint64
	Err       error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("capture failed after %d records: %v", e.Processed, e.Err)
}

func (e *CaptureError) Unwrap() error {
	return e.Err
}

// Pipeline is a single-threaded processing chain.
type Pipeline struct {
	source    Source
	decoder   decoder.Decoder
	prefilter Prefilter
	criteria  filter.Criteria
	policy    core.SelectionPolicy
	reporters []plugin.Reporter
	observer  Observer
	limiter   *failureLogLimiter
	metrics   *Metrics
}

// New creates a pipeline.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("%w: pipeline needs a source", core.ErrConfigInvalid)
	}
	if err := cfg.Policy.Validate(); err != nil {
		return nil, err
	}
	if cfg.Decoder == nil {
		cfg.Decoder = decoder.NewStandardDecoder()
	}
	return &Pipeline{
		source:    cfg.Source,
		decoder:   cfg.Decoder,
		prefilter: cfg.Prefilter,
		criteria:  cfg.Criteria,
		policy:    cfg.Policy,
		reporters: cfg.Reporters,
		observer:  cfg.Observer,
		limiter:   newFailureLogLimiter(cfg.FailureLog),
		metrics:   NewMetrics(),
	}, nil
}

// Run reads the source to its end. Per-packet failures are counted and
// skipped. A container failure stops reading and is returned as a
// *CaptureError together with the partial result. Reporter failures are
// joined into the returned error without stopping the run.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	sel := selector.New(p.policy)
	var agg summary.Aggregator
	res := &Result{}

	var runErr, reportErr error
	for {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		rec, err := p.source.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			runErr = &CaptureError{Processed: p.metrics.Total.Load(), Err: err}
			slog.Warn("capture ended early", "records", p.metrics.Total.Load(), "error", err)
			break
		}

		sample, ok := p.process(rec)
		if !ok || sel.Done() {
			continue
		}
		picked, ok := sel.Offer(sample)
		if !ok {
			continue
		}
		p.metrics.Selected.Add(1)
		p.observe(StageSelected)
		agg.Add(picked.Sample)
		res.Samples = append(res.Samples, picked)
		reportErr = errors.Join(reportErr, p.report(ctx, &picked))
	}

	res.Counts = p.metrics.Snapshot()
	res.Summary = agg.Result()
	res.Shortfall = sel.Shortfall(res.Counts.Decoded)

	if n := p.limiter.Suppressed(); n > 0 {
		slog.Debug("skipped-packet log lines suppressed", "count", n)
	}
	reportErr = errors.Join(reportErr, p.finish(ctx, res))

	slog.Debug("pipeline finished",
		"total", res.Counts.Total,
		"protocol_valid", res.Counts.ProtocolValid,
		"matched", res.Counts.Matched,
		"decoded", res.Counts.Decoded,
		"selected", res.Counts.Selected)

	return res, errors.Join(runErr, reportErr)
}

// process walks, filters and decodes one record.
func (p *Pipeline) process(rec core.CaptureRecord) (core.TelemetrySample, bool) {
	p.metrics.Total.Add(1)
	p.observe(StageRead)

	if p.prefilter != nil && !p.prefilter.Accept(rec.Data) {
		p.metrics.BPFRejected.Add(1)
		p.observe(StageBPFRejected)
		return core.TelemetrySample{}, false
	}

	payload, err := p.decoder.Decode(rec)
	if err != nil {
		p.fail(rec, err)
		return core.TelemetrySample{}, false
	}
	p.metrics.ProtocolValid.Add(1)
	p.observe(StageProtocolValid)

	if !p.criteria.Match(payload) {
		return core.TelemetrySample{}, false
	}
	p.metrics.Matched.Add(1)
	p.observe(StageMatched)

	sample, err := telemetry.Decode(payload.Data)
	if err != nil {
		p.fail(rec, err)
		return core.TelemetrySample{}, false
	}
	sample.PacketIndex = rec.Index
	sample.MatchIndex = p.metrics.Decoded.Add(1)
	sample.Timestamp = rec.Timestamp
	sample.Offset = rec.Offset
	sample.SrcPort = payload.SrcPort
	sample.DstPort = payload.DstPort
	p.observe(StageDecoded)

	return sample, true
}

func (p *Pipeline) fail(rec core.CaptureRecord, err error) {
	reason, ok := core.FailureReason(err)
	if !ok {
		reason = reasonUnknown
	}
	p.metrics.AddFailure(reason)
	if p.observer != nil {
		p.observer.ObserveFailure(reason)
	}
	if p.limiter.Allow(reason, rec.Timestamp) {
		slog.Debug("packet skipped", "packet", rec.Index, "reason", reason, "error", err)
	}
}

func (p *Pipeline) observe(stage string) {
	if p.observer != nil {
		p.observer.ObserveStage(stage)
	}
}

func (p *Pipeline) report(ctx context.Context, s *core.SelectedSample) error {
	var errs error
	for _, r := range p.reporters {
		if err := r.Report(ctx, s); err != nil {
			p.metrics.ReportErrors.Add(1)
			slog.Error("reporter failed", "reporter", r.Name(), "sample", s.Number, "error", err)
			errs = errors.Join(errs, fmt.Errorf("reporter %s: %w", r.Name(), err))
		}
	}
	return errs
}

// finish hands the summary to reporters that want it and flushes all.
func (p *Pipeline) finish(ctx context.Context, res *Result) error {
	var errs error
	for _, r := range p.reporters {
		if sr, ok := r.(plugin.SummaryReporter); ok {
			if err := sr.ReportSummary(ctx, res.Summary, res.Counts); err != nil {
				errs = errors.Join(errs, fmt.Errorf("reporter %s summary: %w", r.Name(), err))
			}
		}
		if err := r.Flush(ctx); err != nil {
			slog.Error("reporter flush failed", "reporter", r.Name(), "error", err)
			errs = errors.Join(errs, fmt.Errorf("reporter %s flush: %w", r.Name(), err))
		}
	}
	return errs
}

// Stats returns the live stage counters.
func (p *Pipeline) Stats() core.Counts {
	return p.metrics.Snapshot()
}
