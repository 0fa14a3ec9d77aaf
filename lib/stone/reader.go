// Copyright 2026 AerynOS Developers
// SPDX-License-Identifier: MPL-2.0

package stone

import (
	"bytes"
	"io"

	"golang.org/x/sys/unix"
)

// Reader is a streaming stone archive decoder. It owns the underlying
// byte source and advances through it monotonically: payloads are
// yielded in archive order by [Reader.NextPayload], and moving to the
// next payload invalidates the previous handle after draining and
// checksum-verifying whatever it left unread.
//
// Any decode error is sticky: once a read has failed, every subsequent
// operation on the reader (and its live handles) returns the same
// error without touching the stream. End-of-archive and end-of-records
// are reported as io.EOF and are not sticky.
//
// A Reader is not safe for concurrent use.
type Reader struct {
	src       io.Reader
	version   HeaderVersion
	header    HeaderV1
	remaining int

	// payload is the live payload handle, if any.
	payload *Payload

	// content is the live content reader, which borrows the reader
	// exclusively until closed.
	content *ContentReader

	// err is the sticky failure.
	err error
}

// NewReader consumes and validates the archive header from src and
// returns a reader positioned at the first payload.
func NewReader(src io.Reader) (*Reader, error) {
	header, version, err := readHeader(src)
	if err != nil {
		return nil, err
	}
	return &Reader{
		src:       src,
		version:   version,
		header:    header,
		remaining: int(header.NumPayloads),
	}, nil
}

// NewReaderFromBytes opens an in-memory archive.
func NewReaderFromBytes(buf []byte) (*Reader, error) {
	return NewReader(bytes.NewReader(buf))
}

// NewReaderFromFD opens an archive on an OS file descriptor. The
// descriptor is borrowed, not owned: the caller remains responsible
// for closing it.
func NewReaderFromFD(fd int) (*Reader, error) {
	return NewReader(&fdReader{fd: fd})
}

// Version returns the archive format version.
func (r *Reader) Version() HeaderVersion {
	return r.version
}

// Header returns the v1 file header.
func (r *Reader) Header() HeaderV1 {
	return r.header
}

// NextPayload advances to the next payload. The previous payload
// handle, if any, is finished first: unread stored bytes are drained
// through the checksum accumulator and the checksum is verified.
//
// It returns io.EOF once num_payloads payloads have been yielded, or
// when the stream ends cleanly at a payload header boundary. While a
// content reader is open it returns ErrReaderBusy.
func (r *Reader) NextPayload() (*Payload, error) {
	if r.err != nil {
		return nil, r.err
	}
	if r.content != nil {
		return nil, ErrReaderBusy
	}

	if r.payload != nil {
		previous := r.payload
		r.payload = nil
		if err := previous.finish(); err != nil {
			return nil, r.fail(err)
		}
	}

	if r.remaining == 0 {
		return nil, io.EOF
	}

	var buf [PayloadHeaderSize]byte
	if _, err := io.ReadFull(r.src, buf[:]); err != nil {
		if err == io.EOF {
			// Clean end of stream at a header boundary: treat as end
			// of archive even if the counter disagrees.
			return nil, io.EOF
		}
		return nil, r.fail(err)
	}
	header, err := decodePayloadHeader(bytes.NewReader(buf[:]))
	if err != nil {
		return nil, r.fail(err)
	}
	r.remaining--

	stored := newChecksumReader(io.LimitReader(r.src, int64(header.StoredSize)))
	payload := &Payload{
		reader: r,
		header: header,
		stored: stored,
	}
	// An unrecognized compression discriminant is not fatal here: the
	// payload can still be drained and checksum-verified. Only record
	// or content access trips the error.
	payload.body, payload.closeBody, payload.bodyErr = newDecompressor(header.Compression, stored)

	r.payload = payload
	return payload, nil
}

// fail records the first sticky error and returns it. Sentinel EOFs
// never stick.
func (r *Reader) fail(err error) error {
	if err == nil || err == io.EOF {
		return err
	}
	if r.err == nil {
		r.err = err
	}
	return r.err
}

// fdReader reads from a raw file descriptor, retrying interrupted
// system calls. The descriptor is not closed.
type fdReader struct {
	fd int
}

func (f *fdReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for {
		n, err := unix.Read(f.fd, p)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, err
		}
		if n == 0 {
			return 0, io.EOF
		}
		return n, nil
	}
}
