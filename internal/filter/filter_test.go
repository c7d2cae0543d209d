package filter

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/pcapcpu/internal/core"
)

func payload(n int, src, dst uint16) core.UDPPayload {
	return core.UDPPayload{SrcPort: src, DstPort: dst, Data: make([]byte, n)}
}

func TestCriteriaMatch(t *testing.T) {
	magic := payload(504, 5000, 5001)
	copy(magic.Data, []byte{0xCA, 0xFE})

	tests := []struct {
		name     string
		criteria Criteria
		payload  core.UDPPayload
		want     string
	}{
		{"length match", Criteria{PayloadLength: 504}, payload(504, 1, 2), ""},
		{"length shorter", Criteria{PayloadLength: 504}, payload(503, 1, 2), "length"},
		{"length longer", Criteria{PayloadLength: 504}, payload(505, 1, 2), "length"},
		{"length disabled", Criteria{}, payload(7, 1, 2), ""},
		{"ports match", Criteria{PayloadLength: 504, Ports: &PortPair{Src: 5000, Dst: 5001}}, payload(504, 5000, 5001), ""},
		{"ports swapped", Criteria{Ports: &PortPair{Src: 5000, Dst: 5001}}, payload(504, 5001, 5000), "ports"},
		{"length checked before ports", Criteria{PayloadLength: 504, Ports: &PortPair{Src: 1, Dst: 1}}, payload(10, 2, 2), "length"},
		{"magic match", Criteria{PayloadLength: 504, Magic: []byte{0xCA, 0xFE}}, magic, ""},
		{"magic mismatch", Criteria{Magic: []byte{0xCA, 0xFE}}, payload(504, 1, 2), "magic"},
		{"magic longer than payload", Criteria{Magic: []byte{1, 2, 3}}, payload(2, 1, 2), "magic"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.criteria.Explain(tt.payload))
			assert.Equal(t, tt.want == "", tt.criteria.Match(tt.payload))
		})
	}
}

func TestCriteriaString(t *testing.T) {
	assert.Equal(t, "any", Criteria{}.String())
	c := Criteria{PayloadLength: 504, Ports: &PortPair{Src: 5000, Dst: 5001}, Magic: []byte{0xCA, 0xFE}}
	assert.Equal(t, "length=504 ports=5000->5001 magic=cafe", c.String())
}

func TestParseMagic(t *testing.T) {
	b, err := ParseMagic("0xCA 0xFE")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xCA, 0xFE}, b)

	b, err = ParseMagic("de:ad:be:ef")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, b)

	b, err = ParseMagic("")
	require.NoError(t, err)
	assert.Nil(t, b)

	_, err = ParseMagic("xyz")
	assert.True(t, errors.Is(err, core.ErrConfigInvalid))
}
