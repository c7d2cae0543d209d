// Package telemetry decodes the CPU counter trailer carried at the end of
// each telemetry payload.
package telemetry

import (
	"encoding/binary"
	"math"

	"firestige.xyz/pcapcpu/internal/core"
)

// TrailerLen is the size of the counter trailer at the end of a payload.
const TrailerLen = 24

// Decode reads the trailer of payload into a sample. Only the sample
// fields carried on the wire are set; ordinals and addressing are left to
// the caller.
//
//	[len-24, len-16)  cpu usage, float64
//	[len-16, len-8)   busy time, int64
//	[len-8,  len)     idle time, int64
//
// All fields are little-endian. Values are not range checked.
func Decode(payload []byte) (core.TelemetrySample, error) {
	if len(payload) < TrailerLen {
		return core.TelemetrySample{}, core.Fail(core.ReasonPayloadTooShort,
			"%d bytes, need %d", len(payload), TrailerLen)
	}
	tail := payload[len(payload)-TrailerLen:]
	return core.TelemetrySample{
		CPUUsageRaw: math.Float64frombits(binary.LittleEndian.Uint64(tail[0:8])),
		BusyTime:    int64(binary.LittleEndian.Uint64(tail[8:16])),
		IdleTime:    int64(binary.LittleEndian.Uint64(tail[16:24])),
	}, nil
}

// Encode returns a trailer for the given counters.
func Encode(cpuRaw float64, busy, idle int64) []byte {
	b := make([]byte, TrailerLen)
	binary.LittleEndian.PutUint64(b[0:8], math.Float64bits(cpuRaw))
	binary.LittleEndian.PutUint64(b[8:16], uint64(busy))
	binary.LittleEndian.PutUint64(b[16:24], uint64(idle))
	return b
}
