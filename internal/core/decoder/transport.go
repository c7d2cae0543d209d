// Package decoder implements protocol decoding.
package decoder

import (
	"encoding/binary"

	"firestige.xyz/pcapcpu/internal/core"
)

const udpHeaderLen = 8

// decodeUDP decodes a UDP header and returns the payload bounded by the
// UDP length field.
func decodeUDP(data []byte) (core.UDPHeader, []byte, error) {
	if len(data) < udpHeaderLen {
		return core.UDPHeader{}, nil, core.Fail(core.ReasonHeaderLengthMismatch,
			"udp header needs %d bytes, have %d", udpHeaderLen, len(data))
	}

	udp := core.UDPHeader{
		SrcPort: binary.BigEndian.Uint16(data[0:2]),
		DstPort: binary.BigEndian.Uint16(data[2:4]),
		Length:  binary.BigEndian.Uint16(data[4:6]),
	}
	// Checksum (2 bytes at offset 6) is not verified

	if int(udp.Length) < udpHeaderLen || int(udp.Length) > len(data) {
		return udp, nil, core.Fail(core.ReasonHeaderLengthMismatch,
			"udp length %d, ip payload %d", udp.Length, len(data))
	}

	return udp, data[udpHeaderLen:udp.Length], nil
}
