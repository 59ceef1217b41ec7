package binlog

import (
	"io"
	"testing"
)

func TestReaderInts(t *testing.T) {
	r := newReader([]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08})
	if v := r.int1(); v != 0x01 {
		t.Fatalf("int1() = %#x, want 0x01", v)
	}
	if v := r.int2(); v != 0x0302 {
		t.Fatalf("int2() = %#x, want 0x0302", v)
	}
	if v := r.int3(); v != 0x060504 {
		t.Fatalf("int3() = %#x, want 0x060504", v)
	}
	if v := r.int1(); v != 0x07 {
		t.Fatalf("int1() = %#x, want 0x07", v)
	}
	if r.err != nil {
		t.Fatalf("unexpected err: %v", r.err)
	}
}

func TestReaderInt4Int6Int8(t *testing.T) {
	r := newReader([]byte{0x01, 0x00, 0x00, 0x00})
	if v := r.int4(); v != 1 {
		t.Fatalf("int4() = %d, want 1", v)
	}

	r2 := newReader([]byte{0x2a, 0, 0, 0, 0, 0})
	if v := r2.int6(); v != 42 {
		t.Fatalf("int6() = %d, want 42", v)
	}

	r3 := newReader([]byte{0x2a, 0, 0, 0, 0, 0, 0, 0})
	if v := r3.int8(); v != 42 {
		t.Fatalf("int8() = %d, want 42", v)
	}
}

func TestReaderIntFixed(t *testing.T) {
	r := newReader([]byte{0x01, 0x02, 0x03})
	if v := r.intFixed(3); v != 0x030201 {
		t.Fatalf("intFixed(3) = %#x, want 0x030201", v)
	}
}

func TestReaderEnsureShortRead(t *testing.T) {
	r := newReader([]byte{0x01})
	r.int4()
	if r.err != io.ErrUnexpectedEOF {
		t.Fatalf("err = %v, want io.ErrUnexpectedEOF", r.err)
	}
}

func TestReaderIntVar(t *testing.T) {
	cases := []struct {
		name string
		in   []byte
		want int64
	}{
		{"positive single byte", []byte{0x01}, 1},
		{"negative single byte", []byte{0x80}, -128},
		{"boundary single byte", []byte{0xfa}, -6},
		{"2-byte positive", []byte{0xfc, 0x01, 0x00}, 1},
		{"2-byte negative", []byte{0xfc, 0xff, 0xff}, -1},
		{"3-byte positive", []byte{0xfd, 0x01, 0x00, 0x00}, 1},
		{"3-byte negative", []byte{0xfd, 0xff, 0xff, 0xff}, -1},
		{"8-byte positive", []byte{0xfe, 1, 0, 0, 0, 0, 0, 0, 0}, 1},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			r := newReader(c.in)
			v, n := r.intVar()
			if r.err != nil {
				t.Fatalf("unexpected err: %v", r.err)
			}
			if v != c.want {
				t.Fatalf("intVar() = %d, want %d", v, c.want)
			}
			if n != len(c.in) {
				t.Fatalf("intVar() consumed %d bytes, want %d", n, len(c.in))
			}
		})
	}
}

func TestReaderIntVarShortRead(t *testing.T) {
	r := newReader([]byte{0xfc, 0x01})
	r.intVar()
	if r.err != io.ErrUnexpectedEOF {
		t.Fatalf("err = %v, want io.ErrUnexpectedEOF", r.err)
	}
}

func TestReaderStringNull(t *testing.T) {
	r := newReader([]byte("hello\x00world"))
	if s := r.stringNull(); s != "hello" {
		t.Fatalf("stringNull() = %q, want %q", s, "hello")
	}
	if s := r.stringEOF(); s != "world" {
		t.Fatalf("stringEOF() = %q, want %q", s, "world")
	}
}

func TestReaderStringNullMissingTerminator(t *testing.T) {
	r := newReader([]byte("hello"))
	r.stringNull()
	if r.err != io.ErrUnexpectedEOF {
		t.Fatalf("err = %v, want io.ErrUnexpectedEOF", r.err)
	}
}

func TestReaderBytesEOF(t *testing.T) {
	r := newReader([]byte{0x01, 0x02, 0x03})
	r.int1()
	if b := r.bytesEOF(); string(b) != "\x02\x03" {
		t.Fatalf("bytesEOF() = %v, want [2 3]", b)
	}
	if r.more() {
		t.Fatalf("more() = true after draining to EOF")
	}
}

func TestReaderBytesCopies(t *testing.T) {
	buf := []byte{0x01, 0x02, 0x03}
	r := newReader(buf)
	got := r.bytes(2)
	got[0] = 0xff
	if buf[0] != 0x01 {
		t.Fatalf("bytes() aliased the underlying buffer")
	}
}

func TestReaderStringN(t *testing.T) {
	r := newReader([]byte{0x05, 'h', 'e', 'l', 'l', 'o'})
	if s := r.stringN(); s != "hello" {
		t.Fatalf("stringN() = %q, want %q", s, "hello")
	}
}

func TestReaderDrainAndSkipOnChecksum(t *testing.T) {
	r := newReader([]byte{0x01, 0x02, 0x03, 0x04})
	r.checksum = 2
	r.limit -= r.checksum
	if err := r.drain(); err != nil {
		t.Fatalf("drain() error: %v", err)
	}
	if r.off != 2 {
		t.Fatalf("off = %d, want 2 (checksum trailer left unconsumed)", r.off)
	}
}

func TestBitSet(t *testing.T) {
	b := NewBitSet(10)
	b.Set(0)
	b.Set(9)
	if !b.IsSet(0) || !b.IsSet(9) {
		t.Fatalf("expected bits 0 and 9 set")
	}
	if b.IsSet(1) || b.IsSet(8) {
		t.Fatalf("expected only bits 0 and 9 set")
	}
	if got := b.Count(); got != 2 {
		t.Fatalf("Count() = %d, want 2", got)
	}
	b.Unset(0)
	if b.IsSet(0) {
		t.Fatalf("expected bit 0 cleared")
	}
}

// TestReaderBitSetLSBFirst matches the binlog null-bitmap layout: bit i of
// column i lives at byte i/8, bit i%8, least-significant-bit first.
func TestReaderBitSetLSBFirst(t *testing.T) {
	// columns 0 and 3 are null: bits 0 and 3 set -> byte 0b00001001 = 0x09
	r := newReader([]byte{0x09})
	bs := r.bitSet(5)
	want := map[int]bool{0: true, 1: false, 2: false, 3: true, 4: false}
	for i, w := range want {
		if bs.IsSet(i) != w {
			t.Fatalf("bit %d = %v, want %v", i, bs.IsSet(i), w)
		}
	}
}
