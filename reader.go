package binlog

import (
	"bytes"
	"io"
)

// newReader wraps a fully-read event body. Unlike a live wire-protocol
// connection, an on-disk (or gzip-decompressed) binlog event is framed by a
// known event_length up front, so the whole body is read into memory before
// decoding starts; there is no refill loop.
func newReader(buf []byte) *reader {
	return &reader{
		buf:      buf,
		tmeCache: make(map[uint64]*TableMapEvent),
		limit:    len(buf),
	}
}

type reader struct {
	buf      []byte // contents are the bytes buf[off:]
	off      int
	err      error
	limit    int
	checksum int // length in bytes of the trailing checksum, trimmed from limit

	// context threaded through the event decoders
	binlogPos uint32
	fde       FormatDescriptionEvent
	tmeCache  map[uint64]*TableMapEvent
	tme       *TableMapEvent
	re        RowsEvent
}

func (r *reader) buffer() []byte {
	buf := r.buf[r.off:]
	if r.limit >= 0 && len(buf) > r.limit {
		return buf[:r.limit]
	}
	return buf
}

func (r *reader) ensure(n int) error {
	if r.err != nil {
		return r.err
	}
	if r.limit >= 0 && n > r.limit {
		r.err = io.ErrUnexpectedEOF
		return r.err
	}
	if n > len(r.buffer()) {
		r.err = io.ErrUnexpectedEOF
		return r.err
	}
	return nil
}

func (r *reader) skip(n int) error {
	if r.err != nil {
		return r.err
	}
	if err := r.ensure(n); err != nil {
		return err
	}
	r.off += n
	if r.limit >= 0 {
		r.limit -= n
	}
	return nil
}

// drain consumes whatever is left under the current limit. A checksum
// trailer already trimmed from the limit is left unconsumed.
func (r *reader) drain() error {
	if r.err == io.ErrUnexpectedEOF {
		r.err = nil
	}
	return r.skip(len(r.buffer()))
}

func (r *reader) more() bool {
	return r.err == nil && len(r.buffer()) > 0
}

// int ---

func (r *reader) int1() byte {
	if err := r.ensure(1); err != nil {
		return 0
	}
	v := r.buffer()[0]
	r.skip(1)
	return v
}

func (r *reader) int2() uint16 {
	if err := r.ensure(2); err != nil {
		return 0
	}
	buf := r.buffer()
	v := uint16(buf[0]) | uint16(buf[1])<<8
	r.skip(2)
	return v
}

func (r *reader) int3() uint32 {
	if err := r.ensure(3); err != nil {
		return 0
	}
	buf := r.buffer()
	v := uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16
	r.skip(3)
	return v
}

func (r *reader) int4() uint32 {
	if err := r.ensure(4); err != nil {
		return 0
	}
	buf := r.buffer()
	v := uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24
	r.skip(4)
	return v
}

func (r *reader) int6() uint64 {
	if err := r.ensure(6); err != nil {
		return 0
	}
	buf := r.buffer()
	v := uint64(buf[0]) | uint64(buf[1])<<8 | uint64(buf[2])<<16 |
		uint64(buf[3])<<24 | uint64(buf[4])<<32 | uint64(buf[5])<<40
	r.skip(6)
	return v
}

func (r *reader) int8() uint64 {
	if err := r.ensure(8); err != nil {
		return 0
	}
	buf := r.buffer()
	v := uint64(buf[0]) | uint64(buf[1])<<8 | uint64(buf[2])<<16 | uint64(buf[3])<<24 |
		uint64(buf[4])<<32 | uint64(buf[5])<<40 | uint64(buf[6])<<48 | uint64(buf[7])<<56
	r.skip(8)
	return v
}

func (r *reader) intFixed(n int) uint64 {
	if err := r.ensure(n); err != nil {
		return 0
	}
	buf := r.buffer()[:n]
	var v uint64
	for i, b := range buf {
		v |= uint64(b) << (uint(i) * 8)
	}
	r.skip(n)
	return v
}

// intVar reads the spec's signed variable-length integer: first byte b<0xfb
// is a single signed byte; 0xfc/0xfd/0xfe select a 2/3/8-byte little-endian
// signed follow-on. This is the encoding used for table-map column counts,
// table-map metadata lengths, and rows-event column counts — distinct from
// the MySQL client/server wire protocol's unsigned length-encoded integer
// (which this package no longer needs, since it never speaks that protocol).
// It returns the decoded value and the number of bytes consumed, matching
// the call-site pattern used by the extended table-metadata decoders.
func (r *reader) intVar() (int64, int) {
	b := r.int1()
	if r.err != nil {
		return 0, 0
	}
	switch {
	case b < 0xfb:
		return int64(int8(b)), 1
	case b == 0xfc:
		if err := r.ensure(2); err != nil {
			return 0, 0
		}
		buf := r.buffer()[:2]
		v := int64(int16(uint16(buf[0]) | uint16(buf[1])<<8))
		r.skip(2)
		return v, 3
	case b == 0xfd:
		if err := r.ensure(3); err != nil {
			return 0, 0
		}
		buf := r.buffer()[:3]
		u := uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16
		if u&0x800000 != 0 {
			u |= 0xff000000
		}
		r.skip(3)
		return int64(int32(u)), 4
	case b == 0xfe:
		if err := r.ensure(8); err != nil {
			return 0, 0
		}
		buf := r.buffer()[:8]
		u := uint64(buf[0]) | uint64(buf[1])<<8 | uint64(buf[2])<<16 | uint64(buf[3])<<24 |
			uint64(buf[4])<<32 | uint64(buf[5])<<40 | uint64(buf[6])<<48 | uint64(buf[7])<<56
		r.skip(8)
		return int64(u), 9
	default:
		r.err = io.ErrUnexpectedEOF
		return 0, 0
	}
}

// bytes, strings ---

func (r *reader) bytesInternal(len int) []byte {
	if err := r.ensure(len); err != nil {
		return nil
	}
	v := r.buffer()[:len]
	r.skip(len)
	return v
}

func (r *reader) bytes(len int) []byte {
	return append([]byte(nil), r.bytesInternal(len)...)
}

func (r *reader) string(len int) string {
	return string(r.bytesInternal(len))
}

func (r *reader) bytesNullInternal() []byte {
	if r.err != nil {
		return nil
	}
	j := bytes.IndexByte(r.buffer(), 0)
	if j == -1 {
		r.err = io.ErrUnexpectedEOF
		return nil
	}
	v := r.buffer()[:j]
	r.skip(j + 1)
	return v
}

func (r *reader) bytesNull() []byte {
	return append([]byte(nil), r.bytesNullInternal()...)
}

func (r *reader) stringNull() string {
	return string(r.bytesNullInternal())
}

func (r *reader) bytesEOFInternal() []byte {
	if r.err != nil {
		return nil
	}
	v := r.buffer()
	r.skip(len(v))
	return v
}

func (r *reader) bytesEOF() []byte {
	return append([]byte(nil), r.bytesEOFInternal()...)
}

func (r *reader) stringEOF() string {
	return string(r.bytesEOFInternal())
}

func (r *reader) stringN() string {
	l, _ := r.intVar()
	if r.err != nil {
		return ""
	}
	return r.string(int(l))
}
