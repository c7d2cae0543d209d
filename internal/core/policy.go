package core

import "fmt"

// SelectionMode picks which decoded samples are kept.
type SelectionMode int

const (
	SelectAll SelectionMode = iota
	SelectFirstN
	SelectRange
)

func (m SelectionMode) String() string {
	switch m {
	case SelectAll:
		return "all"
	case SelectFirstN:
		return "first-n"
	case SelectRange:
		return "range"
	default:
		return "unknown"
	}
}

// SelectionPolicy is one of All, FirstN(N) or Range(Start, End).
// Range bounds are 1-based and inclusive over the decoded sequence.
type SelectionPolicy struct {
	Mode  SelectionMode
	N     uint64
	Start uint64
	End   uint64
}

// All selects every sample.
func All() SelectionPolicy { return SelectionPolicy{Mode: SelectAll} }

// FirstN selects the first n samples.
func FirstN(n uint64) SelectionPolicy { return SelectionPolicy{Mode: SelectFirstN, N: n} }

// Range selects samples start..end inclusive.
func Range(start, end uint64) SelectionPolicy {
	return SelectionPolicy{Mode: SelectRange, Start: start, End: end}
}

// Validate rejects ranges whose start lies after their end. Out-of-bound
// values are clamped at selection time and are not an error.
func (p SelectionPolicy) Validate() error {
	switch p.Mode {
	case SelectAll, SelectFirstN:
		return nil
	case SelectRange:
		if p.Start > p.End {
			return fmt.Errorf("%w: range start %d is after end %d", ErrConfigInvalid, p.Start, p.End)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown selection mode %d", ErrConfigInvalid, p.Mode)
	}
}

func (p SelectionPolicy) String() string {
	switch p.Mode {
	case SelectFirstN:
		return fmt.Sprintf("first %d", p.N)
	case SelectRange:
		return fmt.Sprintf("range %d-%d", p.Start, p.End)
	default:
		return p.Mode.String()
	}
}
