// Package filter decides which UDP payloads carry telemetry.
package filter

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"

	"firestige.xyz/pcapcpu/internal/core"
)

// PortPair is the expected source and destination port.
type PortPair struct {
	Src uint16
	Dst uint16
}

// Criteria configures the telemetry filter. Zero values disable a check.
type Criteria struct {
	PayloadLength int       // expected UDP payload length, 0 = any
	Ports         *PortPair // nil = any
	Magic         []byte    // expected leading bytes, nil = any
}

// Match reports whether p is a telemetry payload. Checks run in a fixed
// order: length, then ports, then magic.
func (c Criteria) Match(p core.UDPPayload) bool {
	return c.Explain(p) == ""
}

// Explain returns the first failing check ("length", "ports", "magic"),
// or "" when p matches.
func (c Criteria) Explain(p core.UDPPayload) string {
	if c.PayloadLength > 0 && len(p.Data) != c.PayloadLength {
		return "length"
	}
	if c.Ports != nil && (p.SrcPort != c.Ports.Src || p.DstPort != c.Ports.Dst) {
		return "ports"
	}
	if len(c.Magic) > 0 && !bytes.HasPrefix(p.Data, c.Magic) {
		return "magic"
	}
	return ""
}

func (c Criteria) String() string {
	var parts []string
	if c.PayloadLength > 0 {
		parts = append(parts, fmt.Sprintf("length=%d", c.PayloadLength))
	}
	if c.Ports != nil {
		parts = append(parts, fmt.Sprintf("ports=%d->%d", c.Ports.Src, c.Ports.Dst))
	}
	if len(c.Magic) > 0 {
		parts = append(parts, "magic="+hex.EncodeToString(c.Magic))
	}
	if len(parts) == 0 {
		return "any"
	}
	return strings.Join(parts, " ")
}

// ParseMagic decodes a hex marker such as "cafe01" or "0xCA 0xFE".
func ParseMagic(s string) ([]byte, error) {
	clean := strings.NewReplacer("0x", "", "0X", "", " ", "", ":", "").Replace(s)
	if clean == "" {
		return nil, nil
	}
	b, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("%w: magic %q: %v", core.ErrConfigInvalid, s, err)
	}
	return b, nil
}
