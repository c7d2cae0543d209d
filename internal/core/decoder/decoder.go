// Package decoder walks the L2-L4 protocol stack of a captured frame down
// to its UDP payload.
package decoder

import "firestige.xyz/pcapcpu/internal/core"

// Decoder decodes capture records into UDP payloads.
// Errors are *core.DecodeFailure values; the caller skips the packet.
type Decoder interface {
	Decode(rec core.CaptureRecord) (core.UDPPayload, error)
}

// StandardDecoder handles Ethernet (with VLAN tags), Linux cooked and raw
// IPv4 link types carrying IPv4/UDP.
type StandardDecoder struct{}

// NewStandardDecoder creates a decoder.
func NewStandardDecoder() *StandardDecoder {
	return &StandardDecoder{}
}

// Decode implements Decoder.
func (d *StandardDecoder) Decode(rec core.CaptureRecord) (core.UDPPayload, error) {
	return Walk(rec.LinkType, rec.Data)
}

// Walk validates each layer against both the length it declares and the
// bytes physically present, then returns the UDP payload.
func Walk(linkType core.LinkType, data []byte) (core.UDPPayload, error) {
	l3, err := decodeLink(linkType, data)
	if err != nil {
		return core.UDPPayload{}, err
	}

	ip, l4, err := decodeIPv4(l3)
	if err != nil {
		return core.UDPPayload{}, err
	}

	udp, payload, err := decodeUDP(l4)
	if err != nil {
		return core.UDPPayload{}, err
	}

	return core.UDPPayload{
		SrcIP:   ip.SrcIP,
		DstIP:   ip.DstIP,
		SrcPort: udp.SrcPort,
		DstPort: udp.DstPort,
		Data:    payload,
	}, nil
}
