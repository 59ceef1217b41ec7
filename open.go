package binlog

import (
	"bytes"
	"io"
	"io/ioutil"
	"os"

	"github.com/klauspost/compress/gzip"
	pingcaperrors "github.com/pingcap/errors"
)

// Open opens the binlog file at path and returns an Iterator over its events.
// The first event must be a Format Description Event; it is read and checked
// before Open returns.
func Open(path string, opts ...Option) (*Iterator, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &OpenError{Path: path, Err: pingcaperrors.Trace(err)}
	}
	return OpenReader(f, opts...)
}

// OpenAt opens the binlog file at path, reads its Format Description Event
// for header-length and checksum context, then seeks to offset before
// returning the Iterator — for resuming replay from a previously recorded
// position. offset must point at the start of an event, not into its body.
func OpenAt(path string, offset int64, opts ...Option) (*Iterator, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &OpenError{Path: path, Err: pingcaperrors.Trace(err)}
	}
	if offset <= 4 {
		return OpenReader(f, opts...)
	}
	fr, err := newFramer(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	if offset > 4 {
		h, r, err := fr.next()
		if err != nil {
			f.Close()
			return nil, err
		}
		if h.EventType != FORMAT_DESCRIPTION_EVENT {
			f.Close()
			return nil, &BadFirstRecordError{Reason: "first event is not a Format Description Event"}
		}
		fde, err := decodeFDE(h, r)
		if err != nil {
			f.Close()
			return nil, err
		}
		fr.setFDE(fde)
		if err := fr.seek(offset); err != nil {
			f.Close()
			return nil, err
		}
	}
	return newIterator(fr, opts...), nil
}

// OpenReader builds an Iterator directly from a seekable byte source (e.g.
// an *os.File, or a *bytes.Reader already holding a decompressed binlog).
// src must be positioned at offset 0. The Format Description Event at offset
// 4 is read and checked before OpenReader returns.
func OpenReader(src io.ReadSeeker, opts ...Option) (*Iterator, error) {
	fr, err := newFramer(src)
	if err != nil {
		return nil, err
	}
	h, r, err := fr.next()
	if err == io.EOF || (err == nil && h.EventType != FORMAT_DESCRIPTION_EVENT) {
		return nil, &BadFirstRecordError{Reason: "first event is not a Format Description Event"}
	}
	if err != nil {
		return nil, err
	}
	fde, err := decodeFDE(h, r)
	if err != nil {
		return nil, err
	}
	fr.setFDE(fde)
	return newIterator(fr, opts...), nil
}

// OpenGzip opens a gzip-compressed binlog file, fully decompressing it into
// memory before handing it to the same Iterator. OpenReader takes an
// io.ReadSeeker, which a streaming gzip.Reader is not, so this trades memory
// for a single decompression pass — the right trade for a single-pass decoder
// over an archived file.
func OpenGzip(path string, opts ...Option) (*Iterator, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &OpenError{Path: path, Err: pingcaperrors.Trace(err)}
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, &OpenError{Path: path, Err: pingcaperrors.Trace(err)}
	}
	defer gz.Close()

	data, err := ioutil.ReadAll(gz)
	if err != nil {
		return nil, &OpenError{Path: path, Err: pingcaperrors.Trace(err)}
	}
	return OpenReader(bytes.NewReader(data), opts...)
}
