// Copyright 2026 AerynOS Developers
// SPDX-License-Identifier: MPL-2.0

package stone

import (
	"bytes"
	"fmt"
	"io"
	"math"

	"github.com/klauspost/compress/zstd"
)

// payloadFormatVersion is the payload header version emitted by this
// writer.
const payloadFormatVersion = 1

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithCompression selects the payload body codec. The default is
// CompressionZstd.
func WithCompression(c Compression) WriterOption {
	return func(w *Writer) { w.compression = c }
}

// WithZstdWorkers sets the zstd encoder worker count. Zero (the
// default) leaves the encoder's own default in place; one forces
// single-threaded encoding.
func WithZstdWorkers(n int) WriterOption {
	return func(w *Writer) { w.workers = n }
}

// WithPayloadCount declares the total payload count up front. Required
// for non-seekable sinks, where the file header cannot be back-filled;
// on seekable sinks it additionally enforces the declared count at
// Close.
func WithPayloadCount(n int) WriterOption {
	return func(w *Writer) { w.declared = n }
}

// Writer builds a stone archive by appending payloads. Record payloads
// are encoded and compressed in memory, so their headers are written
// before their bodies without seeking. Content payloads stream: on a
// seekable sink a header slot is reserved and back-filled, otherwise
// the compressed body is buffered in memory first.
//
// A Writer is not safe for concurrent use. Errors are sticky.
type Writer struct {
	dst    io.Writer
	seeker io.Seeker // nil when dst cannot seek

	fileType    FileType
	compression Compression
	workers     int

	// declared is the payload count promised via WithPayloadCount, or
	// -1. written counts payloads appended so far.
	declared int
	written  int

	// headerOffset is where the file header sits on a seekable sink.
	headerOffset int64

	// encoder is the reusable EncodeAll encoder for record payloads,
	// created on first use.
	encoder *zstd.Encoder

	closed bool
	err    error
}

// NewWriter starts an archive of the given file type on dst,
// immediately writing the 32-byte file header. Seekability is probed
// with a no-op seek, so a pipe wrapped in *os.File is handled as
// non-seekable.
func NewWriter(dst io.Writer, fileType FileType, opts ...WriterOption) (*Writer, error) {
	w := &Writer{
		dst:         dst,
		fileType:    fileType,
		compression: CompressionZstd,
		declared:    -1,
	}
	for _, opt := range opts {
		opt(w)
	}

	if !w.compression.Known() {
		return nil, fmt.Errorf("unsupported writer compression %s: %w", w.compression, ErrInvalidArgument)
	}
	if w.declared > math.MaxUint16 {
		return nil, fmt.Errorf("payload count %d exceeds format limit: %w", w.declared, ErrInvalidArgument)
	}

	if seeker, ok := dst.(io.Seeker); ok {
		if offset, err := seeker.Seek(0, io.SeekCurrent); err == nil {
			w.seeker = seeker
			w.headerOffset = offset
		}
	}
	if w.seeker == nil && w.declared < 0 {
		return nil, fmt.Errorf("non-seekable sink requires WithPayloadCount: %w", ErrInvalidArgument)
	}

	numPayloads := uint16(0)
	if w.declared > 0 {
		numPayloads = uint16(w.declared)
	}
	header := encodeHeader(HeaderV1{NumPayloads: numPayloads, FileType: fileType})
	if _, err := dst.Write(header[:]); err != nil {
		return nil, fmt.Errorf("writing archive header: %w", err)
	}
	return w, nil
}

// AddMetaPayload appends a Meta payload holding the given records.
func (w *Writer) AddMetaPayload(records []MetaRecord) error {
	var body bytes.Buffer
	for _, rec := range records {
		if err := encodeMetaRecord(&body, rec); err != nil {
			return w.fail(fmt.Errorf("encoding meta record: %w", err))
		}
	}
	return w.addRecordPayload(KindMeta, len(records), body.Bytes())
}

// AddLayoutPayload appends a Layout payload holding the given records.
func (w *Writer) AddLayoutPayload(records []LayoutRecord) error {
	var body bytes.Buffer
	for _, rec := range records {
		if err := encodeLayoutRecord(&body, rec); err != nil {
			return w.fail(fmt.Errorf("encoding layout record: %w", err))
		}
	}
	return w.addRecordPayload(KindLayout, len(records), body.Bytes())
}

// AddIndexPayload appends an Index payload holding the given records.
func (w *Writer) AddIndexPayload(records []IndexRecord) error {
	var body bytes.Buffer
	for _, rec := range records {
		if err := encodeIndexRecord(&body, rec); err != nil {
			return w.fail(fmt.Errorf("encoding index record: %w", err))
		}
	}
	return w.addRecordPayload(KindIndex, len(records), body.Bytes())
}

// AddAttributePayload appends an Attributes payload holding the given
// records.
func (w *Writer) AddAttributePayload(records []AttributeRecord) error {
	var body bytes.Buffer
	for _, rec := range records {
		if err := encodeAttributeRecord(&body, rec); err != nil {
			return w.fail(fmt.Errorf("encoding attribute record: %w", err))
		}
	}
	return w.addRecordPayload(KindAttributes, len(records), body.Bytes())
}

func (w *Writer) addRecordPayload(kind PayloadKind, numRecords int, plain []byte) error {
	if err := w.appendSetup(); err != nil {
		return err
	}

	stored := plain
	if w.compression == CompressionZstd {
		stored = w.zstdEncoder().EncodeAll(plain, nil)
	}

	header := PayloadHeader{
		StoredSize:  uint64(len(stored)),
		PlainSize:   uint64(len(plain)),
		Checksum:    checksum64(stored),
		NumRecords:  numRecords,
		Version:     payloadFormatVersion,
		Kind:        kind,
		Compression: w.compression,
	}
	if err := header.encode(w.dst); err != nil {
		return w.fail(fmt.Errorf("writing %s payload header: %w", kind, err))
	}
	if _, err := w.dst.Write(stored); err != nil {
		return w.fail(fmt.Errorf("writing %s payload body: %w", kind, err))
	}
	w.written++
	return nil
}

// AddContent appends the Content payload, streaming all bytes from r.
// On a seekable sink the payload header slot is reserved and
// back-filled once the stored size and checksum are known; otherwise
// the compressed body is buffered in memory.
func (w *Writer) AddContent(r io.Reader) error {
	if err := w.appendSetup(); err != nil {
		return err
	}
	if w.seeker != nil {
		return w.streamContent(r)
	}
	return w.bufferContent(r)
}

func (w *Writer) streamContent(r io.Reader) error {
	headerSlot, err := w.seeker.Seek(0, io.SeekCurrent)
	if err != nil {
		return w.fail(fmt.Errorf("locating content payload header slot: %w", err))
	}
	var placeholder [PayloadHeaderSize]byte
	if _, err := w.dst.Write(placeholder[:]); err != nil {
		return w.fail(fmt.Errorf("reserving content payload header: %w", err))
	}

	stored := newChecksumWriter(w.dst)
	plainSize, err := w.pipeContent(stored, r)
	if err != nil {
		return w.fail(err)
	}

	end, err := w.seeker.Seek(0, io.SeekCurrent)
	if err != nil {
		return w.fail(fmt.Errorf("locating content payload end: %w", err))
	}
	if _, err := w.seeker.Seek(headerSlot, io.SeekStart); err != nil {
		return w.fail(fmt.Errorf("seeking to content payload header slot: %w", err))
	}
	header := w.contentHeader(stored, plainSize)
	if err := header.encode(w.dst); err != nil {
		return w.fail(fmt.Errorf("back-filling content payload header: %w", err))
	}
	if _, err := w.seeker.Seek(end, io.SeekStart); err != nil {
		return w.fail(fmt.Errorf("seeking past content payload: %w", err))
	}
	w.written++
	return nil
}

func (w *Writer) bufferContent(r io.Reader) error {
	var body bytes.Buffer
	stored := newChecksumWriter(&body)
	plainSize, err := w.pipeContent(stored, r)
	if err != nil {
		return w.fail(err)
	}

	header := w.contentHeader(stored, plainSize)
	if err := header.encode(w.dst); err != nil {
		return w.fail(fmt.Errorf("writing content payload header: %w", err))
	}
	if _, err := io.Copy(w.dst, &body); err != nil {
		return w.fail(fmt.Errorf("writing content payload body: %w", err))
	}
	w.written++
	return nil
}

// pipeContent copies r into the checksummed stored-byte sink, through
// the compressor when one is configured, and returns the plain size.
func (w *Writer) pipeContent(stored *checksumWriter, r io.Reader) (uint64, error) {
	if w.compression == CompressionNone {
		n, err := io.Copy(stored, r)
		if err != nil {
			return 0, fmt.Errorf("streaming content: %w", err)
		}
		return uint64(n), nil
	}

	encoder, err := zstd.NewWriter(stored, w.zstdOptions()...)
	if err != nil {
		return 0, &CompressionError{Err: err}
	}
	n, err := io.Copy(encoder, r)
	if err != nil {
		encoder.Close()
		return 0, fmt.Errorf("streaming content: %w", err)
	}
	// Close flushes the frame exactly at the payload boundary.
	if err := encoder.Close(); err != nil {
		return 0, &CompressionError{Err: err}
	}
	return uint64(n), nil
}

func (w *Writer) contentHeader(stored *checksumWriter, plainSize uint64) PayloadHeader {
	return PayloadHeader{
		StoredSize:  stored.n,
		PlainSize:   plainSize,
		Checksum:    stored.Sum(),
		NumRecords:  0,
		Version:     payloadFormatVersion,
		Kind:        KindContent,
		Compression: w.compression,
	}
}

// Close finalizes the archive: the declared payload count is enforced,
// and on a seekable sink the file header's num_payloads is
// back-filled with the actual count.
func (w *Writer) Close() error {
	if w.closed {
		return w.err
	}
	w.closed = true
	if w.encoder != nil {
		w.encoder.Close()
	}
	if w.err != nil {
		return w.err
	}

	if w.declared >= 0 && w.written != w.declared {
		return w.fail(fmt.Errorf("wrote %d payloads, declared %d: %w", w.written, w.declared, ErrInvalidArgument))
	}

	if w.seeker != nil {
		end, err := w.seeker.Seek(0, io.SeekCurrent)
		if err != nil {
			return w.fail(fmt.Errorf("locating archive end: %w", err))
		}
		if _, err := w.seeker.Seek(w.headerOffset, io.SeekStart); err != nil {
			return w.fail(fmt.Errorf("seeking to archive header: %w", err))
		}
		header := encodeHeader(HeaderV1{NumPayloads: uint16(w.written), FileType: w.fileType})
		if _, err := w.dst.Write(header[:]); err != nil {
			return w.fail(fmt.Errorf("back-filling archive header: %w", err))
		}
		if _, err := w.seeker.Seek(end, io.SeekStart); err != nil {
			return w.fail(fmt.Errorf("seeking past archive: %w", err))
		}
	}
	return nil
}

func (w *Writer) appendSetup() error {
	if w.err != nil {
		return w.err
	}
	if w.closed {
		return fmt.Errorf("append to closed writer: %w", ErrInvalidArgument)
	}
	if w.written >= math.MaxUint16 {
		return w.fail(fmt.Errorf("payload count exceeds format limit: %w", ErrInvalidArgument))
	}
	if w.declared >= 0 && w.written >= w.declared {
		return w.fail(fmt.Errorf("writing beyond declared payload count %d: %w", w.declared, ErrInvalidArgument))
	}
	return nil
}

// zstdEncoder returns the reusable EncodeAll encoder for record
// payloads.
func (w *Writer) zstdEncoder() *zstd.Encoder {
	if w.encoder == nil {
		encoder, err := zstd.NewWriter(nil, w.zstdOptions()...)
		if err != nil {
			// Options are fixed at construction; this cannot fail
			// with a valid worker count.
			panic("stone: zstd encoder initialization failed: " + err.Error())
		}
		w.encoder = encoder
	}
	return w.encoder
}

func (w *Writer) zstdOptions() []zstd.EOption {
	opts := []zstd.EOption{zstd.WithEncoderLevel(zstd.SpeedDefault)}
	if w.workers > 0 {
		opts = append(opts, zstd.WithEncoderConcurrency(w.workers))
	}
	return opts
}

func (w *Writer) fail(err error) error {
	if err == nil {
		return nil
	}
	if w.err == nil {
		w.err = err
	}
	return w.err
}
