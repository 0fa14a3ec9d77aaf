// Copyright 2026 AerynOS Developers
// SPDX-License-Identifier: MPL-2.0

package stone

import (
	"fmt"
	"io"

	"golang.org/x/sys/unix"
)

const (
	// contentChunkSize is the transfer buffer size for uncompressed
	// content payloads.
	contentChunkSize = 64 * 1024

	// zstdOutBlockSize matches the zstd maximum block size, the
	// decoder's natural output granularity.
	zstdOutBlockSize = 128 * 1024
)

// ContentReader is the pull-style extractor for a Content payload. It
// borrows the parent reader exclusively: until Close is called,
// NextPayload on the reader returns ErrReaderBusy.
//
// The checksum is verified only once all plain_size bytes have been
// read; [ContentReader.IsChecksumValid] reports false until then, and
// permanently if the reader is closed early.
type ContentReader struct {
	payload   *Payload
	remaining uint64
	finalized bool
	valid     bool
	closed    bool
}

// OpenContent begins pull-mode extraction of a Content payload.
func (p *Payload) OpenContent() (*ContentReader, error) {
	if err := p.contentSetup(); err != nil {
		return nil, err
	}
	reader := &ContentReader{payload: p, remaining: p.header.PlainSize}
	p.reader.content = reader
	return reader, nil
}

// contentSetup runs the shared checks for both extraction modes.
func (p *Payload) contentSetup() error {
	if p.reader.err != nil {
		return p.reader.err
	}
	if p.header.Kind != KindContent {
		return &WrongPayloadKindError{Requested: KindContent, Actual: p.header.Kind}
	}
	if p.reader.content != nil {
		return ErrReaderBusy
	}
	if p.finished {
		return fmt.Errorf("content payload already consumed: %w", ErrInvalidArgument)
	}
	if p.bodyErr != nil {
		return p.reader.fail(p.bodyErr)
	}
	return nil
}

// Read returns up to len(buf) decompressed content bytes, and io.EOF
// after plain_size bytes have been produced. Short reads of the
// underlying stream are retried.
func (cr *ContentReader) Read(buf []byte) (int, error) {
	if cr.closed {
		return 0, fmt.Errorf("read on closed content reader: %w", ErrInvalidArgument)
	}
	p := cr.payload
	if p.reader.err != nil {
		return 0, p.reader.err
	}
	if cr.remaining == 0 {
		cr.finalize()
		if p.reader.err != nil {
			return 0, p.reader.err
		}
		return 0, io.EOF
	}
	if uint64(len(buf)) > cr.remaining {
		buf = buf[:cr.remaining]
	}

	n, err := io.ReadFull(p.body, buf)
	cr.remaining -= uint64(n)

	if err == io.EOF || err == io.ErrUnexpectedEOF {
		// The body ended before producing plain_size bytes.
		err = io.ErrUnexpectedEOF
	}
	if err != nil {
		return n, p.reader.fail(err)
	}
	if cr.remaining == 0 {
		cr.finalize()
	}
	return n, nil
}

// finalize settles the payload checksum after full consumption. A
// mismatch marks the content invalid and makes the reader sticky.
func (cr *ContentReader) finalize() {
	if cr.finalized {
		return
	}
	cr.finalized = true
	if err := cr.payload.finish(); err != nil {
		cr.payload.reader.fail(err)
		return
	}
	cr.valid = true
}

// BufHint returns the suggested read buffer size, derived from the
// decompressor's output block size.
func (cr *ContentReader) BufHint() int {
	if cr.payload.header.Compression == CompressionZstd {
		return zstdOutBlockSize
	}
	return contentChunkSize
}

// IsChecksumValid reports whether the payload was fully consumed and
// its stored bytes matched the header checksum. It is false until the
// final byte has been read.
func (cr *ContentReader) IsChecksumValid() bool {
	return cr.finalized && cr.valid
}

// Close releases the exclusive borrow on the parent reader. Closing
// before full consumption leaves the checksum unverified; the parent
// reader settles it when it advances past the payload. Close is
// idempotent.
func (cr *ContentReader) Close() error {
	if cr.closed {
		return nil
	}
	cr.closed = true
	if cr.payload.reader.content == cr {
		cr.payload.reader.content = nil
	}
	return nil
}

// Unpack streams the entire decompressed Content payload into w in
// bounded chunks and verifies the checksum on completion.
func (p *Payload) Unpack(w io.Writer) error {
	if err := p.contentSetup(); err != nil {
		return err
	}
	buf := make([]byte, contentBufSize(p.header.Compression))
	remaining := p.header.PlainSize
	for remaining > 0 {
		chunk := buf
		if remaining < uint64(len(chunk)) {
			chunk = chunk[:remaining]
		}
		n, err := io.ReadFull(p.body, chunk)
		if n > 0 {
			remaining -= uint64(n)
			if _, werr := w.Write(chunk[:n]); werr != nil {
				return p.reader.fail(werr)
			}
		}
		if err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return p.reader.fail(err)
		}
	}
	if err := p.finish(); err != nil {
		return p.reader.fail(err)
	}
	return nil
}

// UnpackFD streams the entire decompressed Content payload onto an OS
// file descriptor with full partial-write retry, and verifies the
// checksum on completion.
func (p *Payload) UnpackFD(fd int) error {
	return p.Unpack(&fdWriter{fd: fd})
}

func contentBufSize(c Compression) int {
	if c == CompressionZstd {
		return zstdOutBlockSize
	}
	return contentChunkSize
}

// fdWriter writes to a raw file descriptor, draining partial writes
// and retrying interrupted system calls. The descriptor is not closed.
type fdWriter struct {
	fd int
}

func (f *fdWriter) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		n, err := unix.Write(f.fd, p[written:])
		if err == unix.EINTR || err == unix.EAGAIN {
			continue
		}
		if err != nil {
			return written, fmt.Errorf("writing content to fd %d: %w", f.fd, err)
		}
		written += n
	}
	return written, nil
}
