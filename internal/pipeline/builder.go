package pipeline

import (
	"firestige.xyz/pcapcpu/internal/core"
	"firestige.xyz/pcapcpu/internal/core/decoder"
	"firestige.xyz/pcapcpu/internal/filter"
	"firestige.xyz/pcapcpu/pkg/plugin"
)

// Builder provides a fluent interface for building pipelines.
// This is an alternative to using Config directly.
type Builder struct {
	config Config
}

// NewBuilder creates a builder that selects every sample.
func NewBuilder() *Builder {
	return &Builder{config: Config{Policy: core.All()}}
}

// WithSource sets the capture source.
func (b *Builder) WithSource(s Source) *Builder {
	b.config.Source = s
	return b
}

// WithDecoder sets the protocol decoder.
func (b *Builder) WithDecoder(d decoder.Decoder) *Builder {
	b.config.Decoder = d
	return b
}

// WithPrefilter sets a raw frame prefilter such as *filter.BPF.
func (b *Builder) WithPrefilter(f Prefilter) *Builder {
	b.config.Prefilter = f
	return b
}

// WithCriteria sets the payload filter.
func (b *Builder) WithCriteria(c filter.Criteria) *Builder {
	b.config.Criteria = c
	return b
}

// WithPolicy sets the selection policy.
func (b *Builder) WithPolicy(p core.SelectionPolicy) *Builder {
	b.config.Policy = p
	return b
}

// WithReporters sets the reporter chain.
func (b *Builder) WithReporters(reporters ...plugin.Reporter) *Builder {
	b.config.Reporters = reporters
	return b
}

// WithObserver sets the stage observer.
func (b *Builder) WithObserver(o Observer) *Builder {
	b.config.Observer = o
	return b
}

// WithFailureLog bounds skipped-packet logging.
func (b *Builder) WithFailureLog(cfg FailureLogConfig) *Builder {
	b.config.FailureLog = cfg
	return b
}

// Build creates the pipeline.
func (b *Builder) Build() (*Pipeline, error) {
	return New(b.config)
}
