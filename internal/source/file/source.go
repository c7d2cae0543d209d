// Package file reads capture records from pcap and pcapng files.
package file

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"firestige.xyz/pcapcpu/internal/core"
)

const (
	pcapHeaderLen = 24

	magicMicros      = 0xa1b2c3d4
	magicNanos       = 0xa1b23c4d
	magicNg          = 0x0a0d0d0a
	ngByteOrderMagic = 0x1a2b3c4d

	pcapVersionMajor = 2
)

// Format identifies the container flavour.
type Format string

const (
	FormatPcap   Format = "pcap"
	FormatPcapNg Format = "pcapng"
)

// packetReader is satisfied by pcapReader and pcapgo.NgReader.
type packetReader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

// Source yields capture records one at a time. Only the current record is
// held in memory.
type Source struct {
	path   string
	closer io.Closer
	reader packetReader
	format Format

	index uint64
	first time.Time
	err   error // sticky terminal error
}

// Open opens a capture file. "-" reads standard input.
func Open(path string) (*Source, error) {
	var (
		f      *os.File
		closer io.Closer
	)
	if path == "-" {
		f = os.Stdin
	} else {
		var err error
		f, err = os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open capture file %s: %w", path, err)
		}
		closer = f
	}

	s, err := NewSource(f)
	if err != nil {
		if closer != nil {
			closer.Close()
		}
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	s.path = path
	s.closer = closer
	return s, nil
}

// NewSource validates the container header of r and prepares to read
// records. An unrecognised magic or version yields core.ErrMalformedContainer.
func NewSource(r io.Reader) (*Source, error) {
	br := bufio.NewReaderSize(r, 64*1024)

	header, err := br.Peek(pcapHeaderLen)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, bufio.ErrBufferFull) {
			return nil, fmt.Errorf("%w: header is %d bytes, need %d", core.ErrMalformedContainer, len(header), pcapHeaderLen)
		}
		return nil, fmt.Errorf("failed to read capture header: %w", err)
	}

	format, err := sniff(header)
	if err != nil {
		return nil, err
	}

	s := &Source{format: format}
	switch format {
	case FormatPcapNg:
		ng, err := pcapgo.NewNgReader(newNgBlockReader(br), pcapgo.DefaultNgReaderOptions)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrMalformedContainer, err)
		}
		s.reader = ng
	default:
		pr, err := newPcapReader(br)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrMalformedContainer, err)
		}
		s.reader = pr
	}
	return s, nil
}

// sniff checks the magic number and, for classic pcap, the major version
// in whichever byte order the magic reveals.
func sniff(header []byte) (Format, error) {
	le := binary.LittleEndian.Uint32(header[0:4])
	be := binary.BigEndian.Uint32(header[0:4])

	var order binary.ByteOrder
	switch {
	case le == magicMicros || le == magicNanos:
		order = binary.LittleEndian
	case be == magicMicros || be == magicNanos:
		order = binary.BigEndian
	case le == magicNg:
		bom := header[8:12]
		if binary.LittleEndian.Uint32(bom) != ngByteOrderMagic && binary.BigEndian.Uint32(bom) != ngByteOrderMagic {
			return "", fmt.Errorf("%w: pcapng byte-order magic %x", core.ErrMalformedContainer, bom)
		}
		return FormatPcapNg, nil
	default:
		return "", fmt.Errorf("%w: unknown magic %08x", core.ErrMalformedContainer, be)
	}

	if major := order.Uint16(header[4:6]); major != pcapVersionMajor {
		return "", fmt.Errorf("%w: unsupported pcap version %d.%d",
			core.ErrMalformedContainer, major, order.Uint16(header[6:8]))
	}
	return FormatPcap, nil
}

// Next returns the next record, io.EOF at a clean end of the capture, or
// an error wrapping core.ErrTruncatedRecord when a record or block declares
// more bytes than remain. Any error ends the stream; records already
// returned stay valid.
func (s *Source) Next() (core.CaptureRecord, error) {
	if s.err != nil {
		return core.CaptureRecord{}, s.err
	}

	data, ci, err := s.reader.ReadPacketData()
	if err != nil {
		switch {
		case errors.Is(err, io.EOF):
			s.err = io.EOF
		case errors.Is(err, core.ErrTruncatedRecord):
			s.err = fmt.Errorf("after record %d: %w", s.index, err)
		default:
			s.err = fmt.Errorf("failed to read record %d: %w", s.index+1, err)
		}
		return core.CaptureRecord{}, s.err
	}

	s.index++
	if s.index == 1 {
		s.first = ci.Timestamp
	}

	return core.CaptureRecord{
		Index:      s.index,
		Timestamp:  ci.Timestamp,
		Offset:     ci.Timestamp.Sub(s.first),
		CaptureLen: uint32(ci.CaptureLength),
		OrigLen:    uint32(ci.Length),
		LinkType:   core.LinkType(s.reader.LinkType()),
		Data:       data,
	}, nil
}

// Format reports the container flavour.
func (s *Source) Format() Format {
	return s.format
}

// LinkType reports the link type of the capture.
func (s *Source) LinkType() core.LinkType {
	return core.LinkType(s.reader.LinkType())
}

// Path returns the opened path, empty for NewSource.
func (s *Source) Path() string {
	return s.path
}

// Close releases the underlying file.
func (s *Source) Close() error {
	if s.closer == nil {
		return nil
	}
	err := s.closer.Close()
	s.closer = nil
	return err
}
