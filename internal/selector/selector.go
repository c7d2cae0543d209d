// Package selector applies a SelectionPolicy to the decoded sample stream.
package selector

import "firestige.xyz/pcapcpu/internal/core"

// Selector numbers and filters samples in arrival order. It is not safe for
// concurrent use.
type Selector struct {
	policy   core.SelectionPolicy
	offered  uint64
	selected uint64
}

// New returns a selector for policy. The policy must have been validated.
func New(policy core.SelectionPolicy) *Selector {
	if policy.Mode == core.SelectRange {
		policy.Start = max(policy.Start, 1)
		policy.End = max(policy.End, 1)
	}
	return &Selector{policy: policy}
}

// Offer considers the next decoded sample. The returned sample is numbered
// from 1 within the selection.
func (s *Selector) Offer(sample core.TelemetrySample) (core.SelectedSample, bool) {
	s.offered++
	if !s.wants(s.offered) {
		return core.SelectedSample{}, false
	}
	s.selected++
	return core.SelectedSample{Number: s.selected, Sample: sample}, true
}

func (s *Selector) wants(ordinal uint64) bool {
	switch s.policy.Mode {
	case core.SelectFirstN:
		return ordinal <= s.policy.N
	case core.SelectRange:
		return ordinal >= s.policy.Start && ordinal <= s.policy.End
	default:
		return true
	}
}

// Done reports that no later sample can be selected.
func (s *Selector) Done() bool {
	switch s.policy.Mode {
	case core.SelectFirstN:
		return s.offered >= s.policy.N
	case core.SelectRange:
		return s.offered >= s.policy.End
	default:
		return false
	}
}

// Offered returns how many samples have been offered.
func (s *Selector) Offered() uint64 { return s.offered }

// Selected returns how many samples have been selected.
func (s *Selector) Selected() uint64 { return s.selected }

// Shortfall returns how many more samples the policy asked for than the
// decoded total could supply. It is zero for All.
func (s *Selector) Shortfall(decoded uint64) uint64 {
	var want uint64
	switch s.policy.Mode {
	case core.SelectFirstN:
		want = s.policy.N
	case core.SelectRange:
		want = s.policy.End
	default:
		return 0
	}
	if want <= decoded {
		return 0
	}
	return want - decoded
}

// Select applies policy to an in-memory slice.
func Select(samples []core.TelemetrySample, policy core.SelectionPolicy) []core.SelectedSample {
	sel := New(policy)
	var out []core.SelectedSample
	for _, sample := range samples {
		if sel.Done() {
			break
		}
		if picked, ok := sel.Offer(sample); ok {
			out = append(out, picked)
		}
	}
	return out
}
