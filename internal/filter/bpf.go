package filter

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/net/bpf"

	"firestige.xyz/pcapcpu/internal/core"
)

// BPF runs a classic BPF program against raw frames before they are
// walked. Programs are given in the decimal form printed by
// `tcpdump -ddd`: an instruction count line followed by "op jt jf k" lines.
type BPF struct {
	vm   *bpf.VM
	size int
}

// ParseBPF parses `tcpdump -ddd` output.
func ParseBPF(text string) (*BPF, error) {
	sc := bufio.NewScanner(strings.NewReader(text))

	var (
		raw      []bpf.RawInstruction
		declared = -1
	)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(strings.ReplaceAll(line, ",", " "))
		if declared < 0 && len(fields) == 1 {
			n, err := strconv.Atoi(fields[0])
			if err != nil {
				return nil, fmt.Errorf("%w: bpf instruction count %q", core.ErrConfigInvalid, line)
			}
			declared = n
			continue
		}
		if len(fields) != 4 {
			return nil, fmt.Errorf("%w: bpf instruction %q needs 4 fields", core.ErrConfigInvalid, line)
		}
		var v [4]uint64
		for i, f := range fields {
			n, err := strconv.ParseUint(f, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("%w: bpf instruction %q: %v", core.ErrConfigInvalid, line, err)
			}
			v[i] = n
		}
		raw = append(raw, bpf.RawInstruction{Op: uint16(v[0]), Jt: uint8(v[1]), Jf: uint8(v[2]), K: uint32(v[3])})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty bpf program", core.ErrConfigInvalid)
	}
	if declared >= 0 && declared != len(raw) {
		return nil, fmt.Errorf("%w: bpf program declares %d instructions, has %d", core.ErrConfigInvalid, declared, len(raw))
	}

	insns, ok := bpf.Disassemble(raw)
	if !ok {
		return nil, fmt.Errorf("%w: bpf program contains unknown instructions", core.ErrConfigInvalid)
	}
	vm, err := bpf.NewVM(insns)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrConfigInvalid, err)
	}
	return &BPF{vm: vm, size: len(insns)}, nil
}

// LoadBPF reads a program file written by `tcpdump -ddd`.
func LoadBPF(path string) (*BPF, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read bpf file %s: %w", path, err)
	}
	return ParseBPF(string(data))
}

// Accept runs the program over frame. A program error rejects the frame.
func (b *BPF) Accept(frame []byte) bool {
	n, err := b.vm.Run(frame)
	return err == nil && n > 0
}

// Len returns the number of instructions.
func (b *BPF) Len() int {
	return b.size
}
