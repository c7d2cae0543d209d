// Package decoder implements protocol decoding.
package decoder

import (
	"encoding/binary"

	"github.com/google/gopacket/layers"

	"firestige.xyz/pcapcpu/internal/core"
)

const (
	ethernetHeaderLen = 14
	vlanHeaderLen     = 4
	linuxSLLHeaderLen = 16
)

// decodeLink strips the link-layer header and returns the IPv4 packet.
func decodeLink(linkType core.LinkType, data []byte) ([]byte, error) {
	switch linkType {
	case core.LinkTypeEthernet:
		eth, payload, err := decodeEthernet(data)
		if err != nil {
			return nil, err
		}
		if eth.EtherType != uint16(layers.EthernetTypeIPv4) {
			return nil, core.Fail(core.ReasonNotIPv4, "ethertype 0x%04x", eth.EtherType)
		}
		return payload, nil
	case core.LinkTypeLinuxSLL:
		return decodeLinuxSLL(data)
	case core.LinkTypeRaw, core.LinkTypeIPv4:
		return data, nil
	default:
		return nil, core.Fail(core.ReasonNotIPv4, "unsupported link type %d", linkType)
	}
}

// decodeEthernet decodes Ethernet frame header (including VLAN tags).
// Returns EthernetHeader and remaining payload.
func decodeEthernet(data []byte) (core.EthernetHeader, []byte, error) {
	if len(data) < ethernetHeaderLen {
		return core.EthernetHeader{}, nil, core.Fail(core.ReasonHeaderLengthMismatch,
			"ethernet frame %d bytes", len(data))
	}

	eth := core.EthernetHeader{}
	copy(eth.DstMAC[:], data[0:6])
	copy(eth.SrcMAC[:], data[6:12])

	etherType := binary.BigEndian.Uint16(data[12:14])
	offset := ethernetHeaderLen

	// VLAN tags can be nested (QinQ)
	var vlans []uint16
	for etherType == uint16(layers.EthernetTypeDot1Q) || etherType == uint16(layers.EthernetTypeQinQ) {
		if len(data) < offset+vlanHeaderLen {
			return eth, nil, core.Fail(core.ReasonHeaderLengthMismatch,
				"vlan tag at offset %d beyond %d bytes", offset, len(data))
		}

		// 2 bytes TCI + 2 bytes EtherType
		tci := binary.BigEndian.Uint16(data[offset : offset+2])
		vlans = append(vlans, tci&0x0FFF)

		etherType = binary.BigEndian.Uint16(data[offset+2 : offset+4])
		offset += vlanHeaderLen
	}

	eth.EtherType = etherType
	eth.VLANs = vlans

	return eth, data[offset:], nil
}

// decodeLinuxSLL strips a Linux cooked-capture header. The protocol type
// lives in the last two bytes of the 16-byte header.
func decodeLinuxSLL(data []byte) ([]byte, error) {
	if len(data) < linuxSLLHeaderLen {
		return nil, core.Fail(core.ReasonHeaderLengthMismatch, "sll header %d bytes", len(data))
	}
	proto := binary.BigEndian.Uint16(data[14:16])
	if proto != uint16(layers.EthernetTypeIPv4) {
		return nil, core.Fail(core.ReasonNotIPv4, "sll protocol 0x%04x", proto)
	}
	return data[linuxSLLHeaderLen:], nil
}
