package file

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/pcapcpu/internal/core"
)

const (
	pcapRecordHeaderLen = 16

	ngBlockSectionHeader = 0x0a0d0d0a
	ngBlockMinLen        = 12
)

// readN reads exactly n bytes. The buffer grows with the data actually
// read, so a corrupt length cannot force a large allocation.
func readN(r io.Reader, buf *bytes.Buffer, n uint32) error {
	buf.Grow(int(min(n, 64*1024)))
	got, err := io.CopyN(buf, r, int64(n))
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: declared %d bytes, %d remain", core.ErrTruncatedRecord, n, got)
	}
	return err
}

// pcapReader reads classic pcap records. The snap length in the global
// header is informational only; a record is read in full whatever it
// declares.
type pcapReader struct {
	r        io.Reader
	order    binary.ByteOrder
	nanos    bool
	linkType layers.LinkType
	hdr      [pcapRecordHeaderLen]byte
}

func newPcapReader(r io.Reader) (*pcapReader, error) {
	var header [pcapHeaderLen]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	pr := &pcapReader{r: r, order: binary.LittleEndian}
	magic := binary.LittleEndian.Uint32(header[0:4])
	if magic != magicMicros && magic != magicNanos {
		pr.order = binary.BigEndian
		magic = binary.BigEndian.Uint32(header[0:4])
	}
	pr.nanos = magic == magicNanos
	pr.linkType = layers.LinkType(pr.order.Uint32(header[20:24]))
	return pr, nil
}

func (pr *pcapReader) LinkType() layers.LinkType {
	return pr.linkType
}

func (pr *pcapReader) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	var ci gopacket.CaptureInfo

	n, err := io.ReadFull(pr.r, pr.hdr[:])
	switch {
	case errors.Is(err, io.EOF):
		return nil, ci, io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		return nil, ci, fmt.Errorf("%w: partial record header, %d of %d bytes",
			core.ErrTruncatedRecord, n, pcapRecordHeaderLen)
	case err != nil:
		return nil, ci, err
	}

	sec := int64(pr.order.Uint32(pr.hdr[0:4]))
	frac := int64(pr.order.Uint32(pr.hdr[4:8]))
	if !pr.nanos {
		frac *= 1000
	}
	caplen := pr.order.Uint32(pr.hdr[8:12])

	ci.Timestamp = time.Unix(sec, frac).UTC()
	ci.CaptureLength = int(caplen)
	ci.Length = int(pr.order.Uint32(pr.hdr[12:16]))

	var buf bytes.Buffer
	if err := readN(pr.r, &buf, caplen); err != nil {
		return nil, ci, err
	}
	return buf.Bytes(), ci, nil
}

// ngBlockReader hands pcapng data to pcapgo one complete block at a time.
// A clean end of input falls between blocks; a block cut short surfaces
// as core.ErrTruncatedRecord instead of the io.EOF pcapgo would report.
type ngBlockReader struct {
	r       io.Reader
	order   binary.ByteOrder
	block   bytes.Buffer
	pending []byte
}

func newNgBlockReader(r io.Reader) *ngBlockReader {
	return &ngBlockReader{r: r, order: binary.LittleEndian}
}

func (b *ngBlockReader) Read(p []byte) (int, error) {
	if len(b.pending) == 0 {
		if err := b.nextBlock(); err != nil {
			return 0, err
		}
	}
	n := copy(p, b.pending)
	b.pending = b.pending[n:]
	return n, nil
}

func (b *ngBlockReader) nextBlock() error {
	var hdr [ngBlockMinLen]byte

	n, err := io.ReadFull(b.r, hdr[:8])
	switch {
	case errors.Is(err, io.EOF):
		return io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		return fmt.Errorf("%w: partial block header, %d of 8 bytes", core.ErrTruncatedRecord, n)
	case err != nil:
		return err
	}

	head := hdr[:8]
	// the section header carries the byte order for everything after it
	if binary.LittleEndian.Uint32(hdr[0:4]) == ngBlockSectionHeader {
		if n, err := io.ReadFull(b.r, hdr[8:12]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return fmt.Errorf("%w: partial section header, %d of 12 bytes", core.ErrTruncatedRecord, 8+n)
			}
			return err
		}
		if binary.BigEndian.Uint32(hdr[8:12]) == ngByteOrderMagic {
			b.order = binary.BigEndian
		} else {
			b.order = binary.LittleEndian
		}
		head = hdr[:12]
	}

	length := b.order.Uint32(hdr[4:8])
	if length < ngBlockMinLen {
		return fmt.Errorf("%w: pcapng block length %d", core.ErrMalformedContainer, length)
	}

	b.block.Reset()
	b.block.Write(head)
	if err := readN(b.r, &b.block, length-uint32(len(head))); err != nil {
		return err
	}
	b.pending = b.block.Bytes()
	return nil
}
