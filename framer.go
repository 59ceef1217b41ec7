package binlog

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	pingcaperrors "github.com/pingcap/errors"
)

// magic is the 4-byte sequence every binlog file begins with.
//
// https://dev.mysql.com/doc/internals/en/binlog-file.html
var magic = []byte{0xfe, 0x62, 0x69, 0x6e}

const commonHeaderLength = 19

// framer turns a seekable byte source into a sequence of raw framed events:
// it reads the fixed-width common header, learns the event's declared
// length from it, reads the rest of the body, and hands back a reader
// positioned right after the common header so the caller can dispatch on
// EventHeader.EventType and decode the body.
type framer struct {
	src      io.ReadSeeker
	fde      FormatDescriptionEvent
	tmeCache map[uint64]*TableMapEvent
	pos      uint32
}

// newFramer checks the magic number at the current position of src (which
// must be at offset 0) and returns a framer ready to read the Format
// Description Event first. Binlog version 4 is assumed throughout, per this
// package's target dialect, so the common header is always 19 bytes — even
// for the very first event, before the real FDE body has been parsed.
func newFramer(src io.ReadSeeker) (*framer, error) {
	hdr := make([]byte, 4)
	if _, err := io.ReadFull(src, hdr); err != nil {
		return nil, &IoError{Err: pingcaperrors.Trace(err)}
	}
	if !bytes.Equal(hdr, magic) {
		return nil, &BadMagicError{Got: hdr}
	}
	return &framer{
		src:      src,
		tmeCache: make(map[uint64]*TableMapEvent),
		fde:      FormatDescriptionEvent{BinlogVersion: 4},
		pos:      4,
	}, nil
}

// seek repositions the underlying source, for resuming iteration from a
// previously recorded offset. The Format Description Event must already
// have been read (via next) before seeking past it.
func (f *framer) seek(offset int64) error {
	if _, err := f.src.Seek(offset, io.SeekStart); err != nil {
		return &IoError{Err: pingcaperrors.Trace(err)}
	}
	f.pos = uint32(offset)
	return nil
}

// close releases the underlying source, if it supports closing.
func (f *framer) close() error {
	if c, ok := f.src.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// setFDE installs the just-decoded Format Description Event as the context
// for decoding every subsequent event's header and body.
func (f *framer) setFDE(fde FormatDescriptionEvent) {
	f.fde = fde
}

// decodeFDE decodes a Format Description Event body, rejecting anything but
// binlog version 4 — this package's target dialect.
func decodeFDE(h EventHeader, r *reader) (FormatDescriptionEvent, error) {
	var fde FormatDescriptionEvent
	if err := fde.decode(r, h.EventSize); err != nil {
		return fde, &EventParseError{EventType: h.EventType, Offset: h.NextPos, Err: err}
	}
	if fde.BinlogVersion != 4 {
		return fde, &BadFirstRecordError{
			Reason: fmt.Sprintf("unsupported binlog version %d", fde.BinlogVersion),
		}
	}
	return fde, nil
}

// next reads one framed event: the common header, then exactly
// EventHeader.EventSize-commonHeaderLength more bytes of body (including
// the trailing checksum, if any). The returned reader is positioned right
// after the common header, with its limit already trimmed to the event's
// declared size.
func (f *framer) next() (EventHeader, *reader, error) {
	hdrBuf := make([]byte, commonHeaderLength)
	if _, err := io.ReadFull(f.src, hdrBuf); err != nil {
		if err == io.EOF {
			return EventHeader{}, nil, io.EOF
		}
		return EventHeader{}, nil, &IoError{Err: pingcaperrors.Trace(err)}
	}
	eventSize := binary.LittleEndian.Uint32(hdrBuf[9:13])
	if eventSize < commonHeaderLength {
		return EventHeader{}, nil, &EventParseError{
			Offset: f.pos,
			Err:    fmt.Errorf("event length %d smaller than header length", eventSize),
		}
	}
	buf := make([]byte, eventSize)
	copy(buf, hdrBuf)
	if _, err := io.ReadFull(f.src, buf[commonHeaderLength:]); err != nil {
		return EventHeader{}, nil, &IoError{Err: pingcaperrors.Trace(err)}
	}

	r := newReader(buf)
	r.fde = f.fde
	r.tmeCache = f.tmeCache
	r.binlogPos = f.pos
	// The Format Description Event computes its own checksum length from its
	// body (f.fde is still the bootstrap default while it's being decoded);
	// every event after it carries a fixed-length trailer the FDE already
	// told us about.
	if f.fde.ChecksumLength > 0 {
		r.checksum = f.fde.ChecksumLength
		r.limit -= r.checksum
	}

	var h EventHeader
	if err := h.decode(r); err != nil {
		return EventHeader{}, nil, &EventParseError{EventType: h.EventType, Offset: f.pos, Err: err}
	}
	f.pos += eventSize
	return h, r, nil
}
