package decoder

import (
	"errors"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/pcapcpu/internal/core"
	"firestige.xyz/pcapcpu/internal/testutil"
)

func TestStandardDecoderDecode(t *testing.T) {
	frame := testutil.EthernetUDP(testutil.UDPFrame{
		SrcPort: 9000,
		DstPort: 9001,
		Payload: []byte("hello telemetry"),
	})

	payload, err := NewStandardDecoder().Decode(core.CaptureRecord{
		LinkType: core.LinkTypeEthernet,
		Data:     frame,
	})
	require.NoError(t, err)

	assert.Equal(t, uint16(9000), payload.SrcPort)
	assert.Equal(t, uint16(9001), payload.DstPort)
	assert.Equal(t, netip.MustParseAddr("192.168.1.10"), payload.SrcIP)
	assert.Equal(t, netip.MustParseAddr("192.168.1.20"), payload.DstIP)
	// the serialized frame is padded to 60 bytes; padding must not leak
	assert.Equal(t, []byte("hello telemetry"), payload.Data)
}

func TestWalkTelemetryPayloadLength(t *testing.T) {
	frame := testutil.TelemetryFrame(75, 25)

	payload, err := Walk(core.LinkTypeEthernet, frame)
	require.NoError(t, err)
	assert.Len(t, payload.Data, testutil.DefaultPayloadLength)
}

func TestWalkRawIPv4(t *testing.T) {
	frame := testutil.EthernetUDP(testutil.UDPFrame{Payload: []byte{1, 2, 3}})

	payload, err := Walk(core.LinkTypeRaw, frame[ethernetHeaderLen:])
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, payload.Data)
}

func TestWalkFailures(t *testing.T) {
	tests := []struct {
		name   string
		data   []byte
		reason core.Reason
	}{
		{"ipv6 frame", testutil.IPv6Frame(), core.ReasonNotIPv4},
		{"tcp frame", testutil.TCPFrame(), core.ReasonNotUDP},
		{"truncated frame", testutil.TelemetryFrame(1, 1)[:100], core.ReasonHeaderLengthMismatch},
		{"runt frame", []byte{0x00, 0x11}, core.ReasonHeaderLengthMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Walk(core.LinkTypeEthernet, tt.data)
			require.Error(t, err)
			assert.True(t, errors.Is(err, &core.DecodeFailure{Reason: tt.reason}), "got %v", err)
		})
	}
}

func TestWalkUDPLengthMismatch(t *testing.T) {
	frame := testutil.EthernetUDP(testutil.UDPFrame{Payload: make([]byte, 40)})
	// UDP length field sits at 14 (eth) + 20 (ip) + 4
	frame[38], frame[39] = 0x01, 0x00

	_, err := Walk(core.LinkTypeEthernet, frame)
	assert.True(t, errors.Is(err, &core.DecodeFailure{Reason: core.ReasonHeaderLengthMismatch}), "got %v", err)
}

func BenchmarkWalk(b *testing.B) {
	frame := testutil.TelemetryFrame(75, 25)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Walk(core.LinkTypeEthernet, frame); err != nil {
			b.Fatal(err)
		}
	}
}
