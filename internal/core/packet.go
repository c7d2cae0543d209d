// Package core defines core data structures with zero external dependencies.
package core

import (
	"net/netip"
	"time"
)

// CaptureRecord is one record read from a capture container.
type CaptureRecord struct {
	Index      uint64        // 1-based ordinal over every record in the capture
	Timestamp  time.Time     // Absolute capture timestamp
	Offset     time.Duration // Relative to the first record
	CaptureLen uint32        // Bytes present in Data
	OrigLen    uint32        // Frame length on the wire
	LinkType   LinkType
	Data       []byte
}

// UDPPayload is the result of walking L2-L4 of a record.
type UDPPayload struct {
	SrcIP   netip.Addr
	DstIP   netip.Addr
	SrcPort uint16
	DstPort uint16
	Data    []byte // trimmed to the UDP length field, zero-copy slice of the record
}
