// Copyright 2026 AerynOS Developers
// SPDX-License-Identifier: MPL-2.0

package stone

import (
	"io"
)

// PayloadKind identifies what a payload body contains. Wire constants.
type PayloadKind uint8

const (
	// KindMeta is the package metadata store.
	KindMeta PayloadKind = 1

	// KindContent is the opaque file blob store, addressed by the
	// Index payload.
	KindContent PayloadKind = 2

	// KindLayout maps file blobs to disk locations with basic UNIX
	// permissions and types.
	KindLayout PayloadKind = 3

	// KindIndex indexes the deduplicated content store.
	KindIndex PayloadKind = 4

	// KindAttributes is opaque key/value attribute storage.
	KindAttributes PayloadKind = 5

	// KindUnknown is the sentinel for discriminants outside the
	// defined set.
	KindUnknown PayloadKind = 255
)

// Known reports whether the discriminant is in the defined set.
func (k PayloadKind) Known() bool {
	return k >= KindMeta && k <= KindAttributes
}

// String returns the human-readable payload kind name.
func (k PayloadKind) String() string {
	switch k {
	case KindMeta:
		return "Meta"
	case KindContent:
		return "Content"
	case KindLayout:
		return "Layout"
	case KindIndex:
		return "Index"
	case KindAttributes:
		return "Attributes"
	default:
		return "Unknown"
	}
}

// PayloadHeaderSize is the fixed encoded size of a payload header:
// stored size u64 + plain size u64 + 8 checksum bytes + record count
// u32 + version u16 + kind u8 + compression u8.
const PayloadHeaderSize = 32

// PayloadHeader is the fixed-width header written before each payload
// body.
type PayloadHeader struct {
	// StoredSize is the byte length of the body as stored on disk
	// (after compression, if any).
	StoredSize uint64

	// PlainSize is the byte length of the body after decompression.
	// Equal to StoredSize when Compression is CompressionNone.
	PlainSize uint64

	// Checksum is the big-endian XXH3-64 of the stored body.
	Checksum [8]byte

	// NumRecords is the record count for record-oriented payloads;
	// zero for Content.
	NumRecords int

	// Version is the payload format version.
	Version uint16

	// Kind is the payload kind discriminant.
	Kind PayloadKind

	// Compression is the body codec discriminant.
	Compression Compression
}

func decodePayloadHeader(r io.Reader) (PayloadHeader, error) {
	var h PayloadHeader
	var err error

	if h.StoredSize, err = readU64(r); err != nil {
		return h, err
	}
	if h.PlainSize, err = readU64(r); err != nil {
		return h, err
	}
	if err = readFull(r, h.Checksum[:]); err != nil {
		return h, err
	}
	numRecords, err := readU32(r)
	if err != nil {
		return h, err
	}
	h.NumRecords = int(numRecords)
	if h.Version, err = readU16(r); err != nil {
		return h, err
	}
	kind, err := readU8(r)
	if err != nil {
		return h, err
	}
	h.Kind = PayloadKind(kind)
	compression, err := readU8(r)
	if err != nil {
		return h, err
	}
	h.Compression = Compression(compression)
	return h, nil
}

func (h PayloadHeader) encode(w io.Writer) error {
	if err := writeU64(w, h.StoredSize); err != nil {
		return err
	}
	if err := writeU64(w, h.PlainSize); err != nil {
		return err
	}
	if _, err := w.Write(h.Checksum[:]); err != nil {
		return err
	}
	if err := writeU32(w, uint32(h.NumRecords)); err != nil {
		return err
	}
	if err := writeU16(w, h.Version); err != nil {
		return err
	}
	if err := writeU8(w, uint8(h.Kind)); err != nil {
		return err
	}
	return writeU8(w, uint8(h.Compression))
}

// Payload is a handle to the payload the parent reader is currently
// positioned in. It borrows the reader's stream: it is invalidated by
// the next NextPayload call, and at most one payload handle is live at
// a time.
type Payload struct {
	reader *Reader
	header PayloadHeader

	// stored hashes and counts the bounded stored-byte view of the
	// payload body.
	stored *checksumReader

	// body is the transparent decompressed view over stored. bodyErr
	// is set instead when the compression discriminant is unusable;
	// the payload can still be drained and checksum-verified.
	body      io.Reader
	closeBody func()
	bodyErr   error

	// recordsRead counts records yielded by the typed cursor.
	recordsRead int

	finished bool
}

// Header returns a copy of the payload header.
func (p *Payload) Header() PayloadHeader {
	return p.header
}

// nextRecordSetup runs the shared checks for every typed record
// accessor: sticky reader state, kind dispatch, and cursor exhaustion.
// A nil error means the caller may decode one record from p.body.
func (p *Payload) nextRecordSetup(requested PayloadKind) error {
	if p.reader.err != nil {
		return p.reader.err
	}
	if p.header.Kind != requested {
		return &WrongPayloadKindError{Requested: requested, Actual: p.header.Kind}
	}
	if p.bodyErr != nil {
		return p.reader.fail(p.bodyErr)
	}
	if p.finished {
		return io.EOF
	}
	if p.recordsRead >= p.header.NumRecords {
		// Cursor exhausted: the payload is complete, so settle the
		// checksum before reporting the end sentinel. A mismatch is
		// reported here (and becomes sticky) rather than as EOF.
		if err := p.finish(); err != nil {
			return p.reader.fail(err)
		}
		return io.EOF
	}
	return nil
}

// recordDecoded accounts a successful record decode; recordFailed
// makes the reader sticky with the decode error.
func (p *Payload) recordDecoded() {
	p.recordsRead++
}

func (p *Payload) recordFailed(err error) error {
	return p.reader.fail(err)
}

// finish consumes whatever stored bytes remain (unread records,
// compressor trailers) through the checksum accumulator and verifies
// the payload checksum. Idempotent.
func (p *Payload) finish() error {
	if p.finished {
		return nil
	}
	p.finished = true

	if p.closeBody != nil {
		p.closeBody()
	}

	// Drain the raw stored view, not the decompressed one: the
	// checksum covers stored bytes, and draining must succeed even
	// when the body is abandoned mid-record or the compression is
	// unknown.
	if _, err := io.Copy(io.Discard, p.stored); err != nil {
		return err
	}
	if p.stored.n != p.header.StoredSize {
		return io.ErrUnexpectedEOF
	}
	if p.stored.Sum() != p.header.Checksum {
		return ErrChecksumMismatch
	}
	return nil
}
