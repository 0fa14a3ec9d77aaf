// Copyright 2026 AerynOS Developers
// SPDX-License-Identifier: MPL-2.0

package stone

import (
	"errors"
	"fmt"
)

// Sentinel errors. End-of-sequence conditions (no more payloads, no
// more records) are reported as io.EOF, following the archive/tar
// iterator convention — they are distinguished return values, not
// failures, and never make the reader sticky.
var (
	// ErrNotAStone is returned when the archive magic does not match.
	ErrNotAStone = errors.New("stone: not a stone archive")

	// ErrChecksumMismatch is returned when a fully consumed payload's
	// stored bytes do not hash to the checksum in its header.
	ErrChecksumMismatch = errors.New("stone: payload checksum mismatch")

	// ErrReaderBusy is returned when the reader is asked to advance
	// while a content reader borrows it exclusively.
	ErrReaderBusy = errors.New("stone: reader is busy with a live content reader")

	// ErrInvalidArgument is returned for caller mistakes: writing to a
	// non-seekable sink without a declared payload count, closing a
	// writer with a payload-count mismatch, and similar.
	ErrInvalidArgument = errors.New("stone: invalid argument")
)

// UnsupportedVersionError is returned when the archive declares a
// format version this implementation does not understand.
type UnsupportedVersionError struct {
	Version uint32
}

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("stone: unsupported format version %d", e.Version)
}

// WrongPayloadKindError is returned when a typed record accessor is
// called on a payload of a different kind.
type WrongPayloadKindError struct {
	// Requested is the kind the accessor decodes.
	Requested PayloadKind

	// Actual is the kind of the payload it was called on.
	Actual PayloadKind
}

func (e *WrongPayloadKindError) Error() string {
	return fmt.Sprintf("stone: requested %s records from a %s payload", e.Requested, e.Actual)
}

// CompressionError wraps a failure from the transparent decompression
// or compression layer.
type CompressionError struct {
	Err error
}

func (e *CompressionError) Error() string {
	return fmt.Sprintf("stone: compression: %v", e.Err)
}

func (e *CompressionError) Unwrap() error {
	return e.Err
}
