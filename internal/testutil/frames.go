// Package testutil builds capture fixtures for tests.
package testutil

import (
	"bytes"
	"encoding/binary"
	"math"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// DefaultPayloadLength matches the telemetry sender's UDP payload size.
const DefaultPayloadLength = 504

// BaseTime is the timestamp of the first fixture packet.
var BaseTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// UDPFrame describes an Ethernet/IPv4/UDP frame.
type UDPFrame struct {
	SrcIP   net.IP
	DstIP   net.IP
	SrcPort uint16
	DstPort uint16
	Payload []byte
}

// TelemetryPayload returns a payload of the given length whose last 24
// bytes encode (cpuRaw, busy, idle) little-endian. length must be >= 24.
func TelemetryPayload(length int, cpuRaw float64, busy, idle int64) []byte {
	p := make([]byte, length)
	tail := p[length-24:]
	binary.LittleEndian.PutUint64(tail[0:8], math.Float64bits(cpuRaw))
	binary.LittleEndian.PutUint64(tail[8:16], uint64(busy))
	binary.LittleEndian.PutUint64(tail[16:24], uint64(idle))
	return p
}

// EthernetUDP serializes f with correct lengths and checksums.
func EthernetUDP(f UDPFrame) []byte {
	if f.SrcIP == nil {
		f.SrcIP = net.IPv4(192, 168, 1, 10)
	}
	if f.DstIP == nil {
		f.DstIP = net.IPv4(192, 168, 1, 20)
	}
	if f.SrcPort == 0 {
		f.SrcPort = 5000
	}
	if f.DstPort == 0 {
		f.DstPort = 5001
	}

	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF},
		DstMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    f.SrcIP.To4(),
		DstIP:    f.DstIP.To4(),
	}
	udp := &layers.UDP{
		SrcPort: layers.UDPPort(f.SrcPort),
		DstPort: layers.UDPPort(f.DstPort),
	}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		panic(err)
	}
	return serialize(eth, ip, udp, gopacket.Payload(f.Payload))
}

// TelemetryFrame is EthernetUDP with a default-length telemetry payload.
func TelemetryFrame(busy, idle int64) []byte {
	return EthernetUDP(UDPFrame{Payload: TelemetryPayload(DefaultPayloadLength, 0, busy, idle)})
}

// IPv6Frame returns an Ethernet frame with a non-IPv4 ethertype.
func IPv6Frame() []byte {
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF},
		DstMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		EthernetType: layers.EthernetTypeIPv6,
	}
	return serialize(eth, gopacket.Payload(make([]byte, 64)))
}

// TCPFrame returns an Ethernet/IPv4 frame carrying TCP.
func TCPFrame() []byte {
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF},
		DstMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    net.IPv4(10, 0, 0, 1).To4(),
		DstIP:    net.IPv4(10, 0, 0, 2).To4(),
	}
	tcp := &layers.TCP{SrcPort: 40000, DstPort: 80, SYN: true, Window: 1024}
	if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
		panic(err)
	}
	return serialize(eth, ip, tcp)
}

func serialize(ls ...gopacket.SerializableLayer) []byte {
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, ls...); err != nil {
		panic(err)
	}
	out := make([]byte, len(buf.Bytes()))
	copy(out, buf.Bytes())
	return out
}

// PcapBytes encodes frames as a classic pcap stream, one second apart.
func PcapBytes(tb testing.TB, linkType layers.LinkType, frames ...[]byte) []byte {
	tb.Helper()
	var buf bytes.Buffer
	w := pcapgo.NewWriter(&buf)
	if err := w.WriteFileHeader(65536, linkType); err != nil {
		tb.Fatalf("write pcap header: %v", err)
	}
	for i, frame := range frames {
		ci := gopacket.CaptureInfo{
			Timestamp:     BaseTime.Add(time.Duration(i) * time.Second),
			CaptureLength: len(frame),
			Length:        len(frame),
		}
		if err := w.WritePacket(ci, frame); err != nil {
			tb.Fatalf("write packet %d: %v", i, err)
		}
	}
	return buf.Bytes()
}

// PcapNgBytes encodes frames as a pcapng stream.
func PcapNgBytes(tb testing.TB, linkType layers.LinkType, frames ...[]byte) []byte {
	tb.Helper()
	var buf bytes.Buffer
	w, err := pcapgo.NewNgWriter(&buf, linkType)
	if err != nil {
		tb.Fatalf("create pcapng writer: %v", err)
	}
	for i, frame := range frames {
		ci := gopacket.CaptureInfo{
			Timestamp:     BaseTime.Add(time.Duration(i) * time.Second),
			CaptureLength: len(frame),
			Length:        len(frame),
		}
		if err := w.WritePacket(ci, frame); err != nil {
			tb.Fatalf("write packet %d: %v", i, err)
		}
	}
	if err := w.Flush(); err != nil {
		tb.Fatalf("flush pcapng: %v", err)
	}
	return buf.Bytes()
}

// WriteCapture writes data to a file in a per-test temp dir.
func WriteCapture(tb testing.TB, name string, data []byte) string {
	tb.Helper()
	path := filepath.Join(tb.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		tb.Fatalf("write capture: %v", err)
	}
	return path
}
