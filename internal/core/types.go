// Package core defines core types with zero external dependencies.
package core

import "net/netip"

// LinkType is the capture link-layer header type (pcap LINKTYPE_* value).
type LinkType uint32

const (
	LinkTypeEthernet LinkType = 1
	LinkTypeRaw      LinkType = 101 // raw IP, no link header
	LinkTypeLinuxSLL LinkType = 113 // Linux "cooked" capture (tcpdump -i any)
	LinkTypeIPv4     LinkType = 228
)

// EthernetHeader represents L2 Ethernet frame header.
type EthernetHeader struct {
	SrcMAC    [6]byte
	DstMAC    [6]byte
	EtherType uint16   // 0x0800=IPv4, 0x86DD=IPv6, 0x8100=VLAN
	VLANs     []uint16 // 0~2 VLAN IDs (QinQ scenarios have 2)
}

// IPHeader represents the L3 IPv4 header fields the walker validates.
type IPHeader struct {
	Version        uint8
	HeaderLen      int // IHL in bytes
	SrcIP          netip.Addr
	DstIP          netip.Addr
	Protocol       uint8 // UDP=17
	TTL            uint8
	TotalLen       uint16
	MoreFragments  bool
	FragmentOffset uint16 // in 8-byte units
}

// UDPHeader represents the L4 UDP header.
type UDPHeader struct {
	SrcPort uint16
	DstPort uint16
	Length  uint16 // header + data, as declared on the wire
}
