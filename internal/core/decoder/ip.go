// Package decoder implements protocol decoding.
package decoder

import (
	"encoding/binary"
	"net/netip"

	"github.com/google/gopacket/layers"

	"firestige.xyz/pcapcpu/internal/core"
)

const ipv4HeaderMinLen = 20

// decodeIPv4 decodes an IPv4 header and returns the payload trimmed to the
// declared total length, so link-layer padding never reaches UDP.
func decodeIPv4(data []byte) (core.IPHeader, []byte, error) {
	if len(data) < 1 {
		return core.IPHeader{}, nil, core.Fail(core.ReasonHeaderLengthMismatch, "empty network layer")
	}

	version := data[0] >> 4
	if version != 4 {
		return core.IPHeader{}, nil, core.Fail(core.ReasonNotIPv4, "ip version %d", version)
	}

	if len(data) < ipv4HeaderMinLen {
		return core.IPHeader{}, nil, core.Fail(core.ReasonHeaderLengthMismatch,
			"ipv4 header needs %d bytes, have %d", ipv4HeaderMinLen, len(data))
	}

	// IHL is in 32-bit words
	headerLen := int(data[0]&0x0F) * 4
	if headerLen < ipv4HeaderMinLen || headerLen > len(data) {
		return core.IPHeader{}, nil, core.Fail(core.ReasonHeaderLengthMismatch,
			"ihl %d bytes, buffer %d bytes", headerLen, len(data))
	}

	ip := core.IPHeader{
		Version:   4,
		HeaderLen: headerLen,
		TotalLen:  binary.BigEndian.Uint16(data[2:4]),
		TTL:       data[8],
		Protocol:  data[9],
	}

	if int(ip.TotalLen) < headerLen || int(ip.TotalLen) > len(data) {
		return ip, nil, core.Fail(core.ReasonHeaderLengthMismatch,
			"total length %d, ihl %d, buffer %d", ip.TotalLen, headerLen, len(data))
	}

	// Flags and Fragment Offset (2 bytes at offset 6)
	flagsOffset := binary.BigEndian.Uint16(data[6:8])
	ip.MoreFragments = flagsOffset&0x2000 != 0
	ip.FragmentOffset = flagsOffset & 0x1FFF

	ip.SrcIP = netip.AddrFrom4([4]byte(data[12:16]))
	ip.DstIP = netip.AddrFrom4([4]byte(data[16:20]))

	if ip.Protocol != uint8(layers.IPProtocolUDP) {
		return ip, nil, core.Fail(core.ReasonNotUDP, "ip protocol %d", ip.Protocol)
	}

	// Only the first fragment carries the UDP header.
	if ip.FragmentOffset != 0 {
		return ip, nil, core.Fail(core.ReasonFragmented, "fragment offset %d", ip.FragmentOffset*8)
	}

	return ip, data[headerLen:ip.TotalLen], nil
}
