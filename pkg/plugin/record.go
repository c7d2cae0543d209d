package plugin

import (
	"math"
	"time"

	"firestige.xyz/pcapcpu/internal/core"
)

// SampleRecord is the JSON form of a selected sample shared by reporters
// that emit one document per sample. Non-finite and undefined values are
// encoded as null.
type SampleRecord struct {
	Number        uint64   `json:"number"`
	MatchIndex    uint64   `json:"match_index"`
	PacketIndex   uint64   `json:"packet_index"`
	Timestamp     string   `json:"timestamp"`
	OffsetSeconds float64  `json:"offset_seconds"`
	SrcPort       uint16   `json:"src_port"`
	DstPort       uint16   `json:"dst_port"`
	CPUUsageRaw   *float64 `json:"cpu_usage_raw"`
	CPUUsage      *float64 `json:"cpu_usage_percent"`
	BusyTime      int64    `json:"busy_time"`
	IdleTime      int64    `json:"idle_time"`
	Total         int64    `json:"total"`
}

// NewSampleRecord builds the record for s.
func NewSampleRecord(s *core.SelectedSample) SampleRecord {
	rec := SampleRecord{
		Number:        s.Number,
		MatchIndex:    s.Sample.MatchIndex,
		PacketIndex:   s.Sample.PacketIndex,
		OffsetSeconds: s.Sample.Offset.Seconds(),
		SrcPort:       s.Sample.SrcPort,
		DstPort:       s.Sample.DstPort,
		CPUUsageRaw:   finite(s.Sample.CPUUsageRaw),
		BusyTime:      s.Sample.BusyTime,
		IdleTime:      s.Sample.IdleTime,
		Total:         s.Sample.Total(),
	}
	if !s.Sample.Timestamp.IsZero() {
		rec.Timestamp = s.Sample.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	if pct, ok := s.Sample.UsagePercent(); ok {
		rec.CPUUsage = finite(pct)
	}
	return rec
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
