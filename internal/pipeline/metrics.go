package pipeline

import (
	"sync/atomic"

	"firestige.xyz/pcapcpu/internal/core"
)

// Metrics holds the per-run stage counters. Counters are atomic so a
// progress reporter may read them while the run is in flight.
type Metrics struct {
	Total         atomic.Uint64
	BPFRejected   atomic.Uint64
	ProtocolValid atomic.Uint64
	Matched       atomic.Uint64
	Decoded       atomic.Uint64
	Selected      atomic.Uint64
	ReportErrors  atomic.Uint64

	failures map[core.Reason]*atomic.Uint64
}

// NewMetrics creates a zeroed metrics instance.
func NewMetrics() *Metrics {
	m := &Metrics{failures: make(map[core.Reason]*atomic.Uint64, len(core.Reasons)+1)}
	for _, r := range core.Reasons {
		m.failures[r] = &atomic.Uint64{}
	}
	m.failures[reasonUnknown] = &atomic.Uint64{}
	return m
}

// reasonUnknown collects errors that carry no decode failure reason.
const reasonUnknown core.Reason = "unknown"

// AddFailure counts one skipped packet.
func (m *Metrics) AddFailure(reason core.Reason) {
	c, ok := m.failures[reason]
	if !ok {
		c = m.failures[reasonUnknown]
	}
	c.Add(1)
}

// Snapshot returns the current counts. Reasons with no failures are omitted.
func (m *Metrics) Snapshot() core.Counts {
	c := core.Counts{
		Total:         m.Total.Load(),
		BPFRejected:   m.BPFRejected.Load(),
		ProtocolValid: m.ProtocolValid.Load(),
		Matched:       m.Matched.Load(),
		Decoded:       m.Decoded.Load(),
		Selected:      m.Selected.Load(),
		Failures:      make(map[core.Reason]uint64),
	}
	for r, v := range m.failures {
		if n := v.Load(); n > 0 {
			c.Failures[r] = n
		}
	}
	return c
}
