// Copyright 2026 AerynOS Developers
// SPDX-License-Identifier: MPL-2.0

package stone

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

// Compression identifies the codec applied to a payload body. The
// values are wire constants — changing them breaks archive
// compatibility. The raw discriminant is preserved on decode so that
// forward-compatible archives re-encode byte-identically.
type Compression uint8

const (
	// CompressionNone stores the payload body verbatim. The stored and
	// plain sizes are equal.
	CompressionNone Compression = 1

	// CompressionZstd stores the payload body as a single zstd frame.
	CompressionZstd Compression = 2

	// CompressionUnknown is the sentinel for discriminants outside the
	// defined set.
	CompressionUnknown Compression = 255
)

// Known reports whether the discriminant is in the defined set.
func (c Compression) Known() bool {
	return c == CompressionNone || c == CompressionZstd
}

// String returns the human-readable codec name.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "None"
	case CompressionZstd:
		return "Zstd"
	default:
		return "Unknown"
	}
}

// newDecompressor layers the transparent decode view over the stored
// byte stream. For CompressionNone it is a pass-through. The returned
// close func releases decoder resources and is safe to call more than
// once.
func newDecompressor(c Compression, stored io.Reader) (io.Reader, func(), error) {
	switch c {
	case CompressionNone:
		return stored, func() {}, nil

	case CompressionZstd:
		dec, err := zstd.NewReader(stored, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, nil, &CompressionError{Err: err}
		}
		closed := false
		release := func() {
			if !closed {
				closed = true
				dec.Close()
			}
		}
		return &decodeErrReader{r: dec}, release, nil

	default:
		return nil, nil, &CompressionError{Err: fmt.Errorf("unknown compression %d", uint8(c))}
	}
}

// decodeErrReader normalizes decoder failures: a source that ends
// inside a frame surfaces as io.ErrUnexpectedEOF (truncated archive),
// anything else as CompressionError (corrupt frame).
type decodeErrReader struct {
	r io.Reader
}

func (d *decodeErrReader) Read(p []byte) (int, error) {
	n, err := d.r.Read(p)
	switch err {
	case nil, io.EOF, io.ErrUnexpectedEOF:
		return n, err
	default:
		return n, &CompressionError{Err: err}
	}
}
