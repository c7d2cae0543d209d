package core

import "time"

// TelemetrySample is one CPU-usage record decoded from a payload trailer.
type TelemetrySample struct {
	PacketIndex uint64 // ordinal among all packets in the capture
	MatchIndex  uint64 // ordinal among decoded telemetry packets
	Timestamp   time.Time
	Offset      time.Duration
	SrcPort     uint16
	DstPort     uint16

	CPUUsageRaw float64 // value stored by the sender, kept as-is
	BusyTime    int64
	IdleTime    int64
}

// Total returns BusyTime + IdleTime.
func (s TelemetrySample) Total() int64 {
	return s.BusyTime + s.IdleTime
}

// UsagePercent derives the usage from busy/idle. ok is false when the
// total is zero and the usage is undefined.
func (s TelemetrySample) UsagePercent() (pct float64, ok bool) {
	total := s.Total()
	if total == 0 {
		return 0, false
	}
	return float64(s.BusyTime) / float64(total) * 100, true
}

// SelectedSample is a sample that passed the selection policy.
type SelectedSample struct {
	Number uint64 // 1-based position within the selection
	Sample TelemetrySample
}

// Row is the tabular form handed to reporters.
type Row struct {
	Number   uint64
	CPUUsage float64
	Defined  bool // false when busy+idle == 0
	BusyTime int64
	IdleTime int64
	Total    int64
}

// Row converts the selected sample to its tabular form.
func (s SelectedSample) Row() Row {
	pct, ok := s.Sample.UsagePercent()
	return Row{
		Number:   s.Number,
		CPUUsage: pct,
		Defined:  ok,
		BusyTime: s.Sample.BusyTime,
		IdleTime: s.Sample.IdleTime,
		Total:    s.Sample.Total(),
	}
}

// Summary holds CPU usage statistics over the selected samples.
// Empty is set when no sample had a defined usage.
type Summary struct {
	Count     int // samples with a defined usage
	Undefined int // samples with busy+idle == 0
	Min       float64
	Max       float64
	Mean      float64
	Median    float64
	StdDev    float64 // population standard deviation
	Empty     bool
}

// Counts tracks packets through each pipeline stage.
// Selected <= Decoded <= Matched <= ProtocolValid <= Total always holds.
type Counts struct {
	Total         uint64
	BPFRejected   uint64
	ProtocolValid uint64
	Matched       uint64
	Decoded       uint64
	Selected      uint64
	Failures      map[Reason]uint64
}
