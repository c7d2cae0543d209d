// Package core defines sentinel errors.
package core

import (
	"errors"
	"fmt"
)

var (
	// Container errors
	ErrMalformedContainer = errors.New("pcapcpu: malformed capture container")
	ErrTruncatedRecord    = errors.New("pcapcpu: truncated capture record")

	// Configuration errors
	ErrConfigInvalid = errors.New("pcapcpu: invalid configuration")

	// Reporter errors
	ErrReporterNotFound = errors.New("pcapcpu: reporter not found")

	// ErrNoSamples is returned by the CLI when a capture yields nothing to export.
	ErrNoSamples = errors.New("pcapcpu: no telemetry samples found")
)

// Reason tags a per-packet decode failure.
type Reason string

const (
	ReasonNotIPv4              Reason = "not_ipv4"
	ReasonNotUDP               Reason = "not_udp"
	ReasonHeaderLengthMismatch Reason = "header_length_mismatch"
	ReasonFragmented           Reason = "fragmented"
	ReasonPayloadTooShort      Reason = "payload_too_short"
)

// Reasons lists every failure reason in reporting order.
var Reasons = []Reason{
	ReasonNotIPv4,
	ReasonNotUDP,
	ReasonHeaderLengthMismatch,
	ReasonFragmented,
	ReasonPayloadTooShort,
}

// DecodeFailure is a non-fatal, per-packet failure. The packet is skipped.
type DecodeFailure struct {
	Reason Reason
	Detail string
}

// Fail builds a DecodeFailure with a formatted detail.
func Fail(reason Reason, format string, args ...any) *DecodeFailure {
	return &DecodeFailure{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

func (e *DecodeFailure) Error() string {
	if e.Detail == "" {
		return "pcapcpu: decode failure: " + string(e.Reason)
	}
	return "pcapcpu: decode failure: " + string(e.Reason) + ": " + e.Detail
}

// Is matches another *DecodeFailure with the same reason, so callers can
// write errors.Is(err, &core.DecodeFailure{Reason: core.ReasonNotUDP}).
func (e *DecodeFailure) Is(target error) bool {
	t, ok := target.(*DecodeFailure)
	return ok && t.Reason == e.Reason
}

// FailureReason extracts the reason from err, if it is a DecodeFailure.
func FailureReason(err error) (Reason, bool) {
	var df *DecodeFailure
	if errors.As(err, &df) {
		return df.Reason, true
	}
	return "", false
}
