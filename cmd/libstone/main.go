// Copyright 2026 AerynOS Developers
// SPDX-License-Identifier: MPL-2.0

// Command libstone exports the stone format engine as a C shared
// library. Build with:
//
//	go build -buildmode=c-shared -o libstone.so ./cmd/libstone
//
// The surface mirrors stone.h: opaque StoneReader / StonePayload /
// StonePayloadContentReader handles, record structs filled per call,
// and stable nonzero error codes. Strings handed across the boundary
// are C-heap copies owned by the payload handle; they are invalidated
// by the next record read on that payload, or by destroying it.
package main

/*
#include "libstone.h"
*/
import "C"

import (
	"errors"
	"io"
	"runtime/cgo"
	"unsafe"

	"github.com/aerynos/stone-go/lib/stone"
)

func main() {}

// readerState backs an opaque StoneReader handle. Destroying a reader
// while a content reader is live is deferred: the handle stays alive
// until the content reader is destroyed too.
type readerState struct {
	reader *stone.Reader

	// contentLive is the number of live content reader handles (at
	// most one, enforced by the engine's borrow rule).
	contentLive int

	// destroyPending marks a stone_reader_destroy that arrived while
	// a content reader was live.
	destroyPending bool

	handle cgo.Handle
}

// payloadState backs an opaque StonePayload handle. allocs holds the
// C-heap string copies of the most recent record, freed on the next
// record read or on destroy.
type payloadState struct {
	payload *stone.Payload
	allocs  []unsafe.Pointer
	handle  cgo.Handle
}

// contentState backs an opaque StonePayloadContentReader handle.
type contentState struct {
	content *stone.ContentReader
	owner   *readerState
	handle  cgo.Handle
}

func (p *payloadState) freeAllocs() {
	for _, ptr := range p.allocs {
		C.free(ptr)
	}
	p.allocs = p.allocs[:0]
}

// retain copies b to the C heap, registers the allocation on the
// payload, and returns the pointer and length for a StoneString.
func (p *payloadState) retain(b []byte) (*C.uint8_t, C.size_t) {
	if len(b) == 0 {
		return nil, 0
	}
	ptr := C.CBytes(b)
	p.allocs = append(p.allocs, ptr)
	return (*C.uint8_t)(ptr), C.size_t(len(b))
}

func (p *payloadState) retainString(s string) (*C.uint8_t, C.size_t) {
	return p.retain([]byte(s))
}

// Handle plumbing. The opaque pointers handed to C are cgo.Handle
// values, not real addresses.

func readerPointer(state *readerState) *C.StoneReader {
	return (*C.StoneReader)(unsafe.Pointer(uintptr(state.handle)))
}

func readerValue(pointer *C.StoneReader) (*readerState, bool) {
	if pointer == nil {
		return nil, false
	}
	state, ok := cgo.Handle(uintptr(unsafe.Pointer(pointer))).Value().(*readerState)
	return state, ok
}

func payloadPointer(state *payloadState) *C.StonePayload {
	return (*C.StonePayload)(unsafe.Pointer(uintptr(state.handle)))
}

func payloadValue(pointer *C.StonePayload) (*payloadState, bool) {
	if pointer == nil {
		return nil, false
	}
	state, ok := cgo.Handle(uintptr(unsafe.Pointer(pointer))).Value().(*payloadState)
	return state, ok
}

func contentPointer(state *contentState) *C.StonePayloadContentReader {
	return (*C.StonePayloadContentReader)(unsafe.Pointer(uintptr(state.handle)))
}

func contentValue(pointer *C.StonePayloadContentReader) (*contentState, bool) {
	if pointer == nil {
		return nil, false
	}
	state, ok := cgo.Handle(uintptr(unsafe.Pointer(pointer))).Value().(*contentState)
	return state, ok
}

// errorCode maps an engine error onto the stable C code table. eof is
// the context-dependent code for the io.EOF sentinel (end of records
// vs end of payloads).
func errorCode(err error, eof C.int) C.int {
	switch {
	case err == nil:
		return C.STONE_SUCCESS
	case err == io.EOF:
		return eof
	case errors.Is(err, io.ErrUnexpectedEOF):
		return C.STONE_ERROR_UNEXPECTED_EOF
	case errors.Is(err, stone.ErrNotAStone):
		return C.STONE_ERROR_NOT_A_STONE
	case errors.Is(err, stone.ErrChecksumMismatch):
		return C.STONE_ERROR_CHECKSUM_MISMATCH
	case errors.Is(err, stone.ErrReaderBusy):
		return C.STONE_ERROR_READER_BUSY
	case errors.Is(err, stone.ErrInvalidArgument):
		return C.STONE_ERROR_INVALID_ARGUMENT
	}

	var versionErr *stone.UnsupportedVersionError
	if errors.As(err, &versionErr) {
		return C.STONE_ERROR_UNSUPPORTED_VERSION
	}
	var kindErr *stone.WrongPayloadKindError
	if errors.As(err, &kindErr) {
		return C.STONE_ERROR_WRONG_PAYLOAD_KIND
	}
	var compressionErr *stone.CompressionError
	if errors.As(err, &compressionErr) {
		return C.STONE_ERROR_COMPRESSION
	}
	return C.STONE_ERROR_IO
}

// vtableSource adapts a caller-supplied read/seek pair to io.Reader.
type vtableSource struct {
	data   unsafe.Pointer
	vtable C.StoneReadVTable
}

func (s *vtableSource) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	n := C.stone_vtable_call_read(s.vtable, s.data, (*C.char)(unsafe.Pointer(&p[0])), C.uintptr_t(len(p)))
	if n == 0 {
		return 0, io.EOF
	}
	return int(n), nil
}

func (s *vtableSource) Seek(offset int64, whence int) (int64, error) {
	position := C.stone_vtable_call_seek(s.vtable, s.data, C.int64_t(offset), C.StoneSeekFrom(whence))
	if position < 0 {
		return 0, stone.ErrInvalidArgument
	}
	return int64(position), nil
}

func newReaderHandle(reader *stone.Reader, outReader **C.StoneReader, outVersion *C.StoneHeaderVersion) C.int {
	state := &readerState{reader: reader}
	state.handle = cgo.NewHandle(state)
	*outReader = readerPointer(state)
	if outVersion != nil {
		*outVersion = C.StoneHeaderVersion(reader.Version())
	}
	return C.STONE_SUCCESS
}

//export stone_read
func stone_read(data unsafe.Pointer, vtable C.StoneReadVTable, outReader **C.StoneReader, outVersion *C.StoneHeaderVersion) C.int {
	if outReader == nil || vtable.read == nil {
		return C.STONE_ERROR_INVALID_ARGUMENT
	}
	reader, err := stone.NewReader(&vtableSource{data: data, vtable: vtable})
	if err != nil {
		return errorCode(err, C.STONE_ERROR_UNEXPECTED_EOF)
	}
	return newReaderHandle(reader, outReader, outVersion)
}

//export stone_read_file
func stone_read_file(file C.int, outReader **C.StoneReader, outVersion *C.StoneHeaderVersion) C.int {
	if outReader == nil || file < 0 {
		return C.STONE_ERROR_INVALID_ARGUMENT
	}
	reader, err := stone.NewReaderFromFD(int(file))
	if err != nil {
		return errorCode(err, C.STONE_ERROR_UNEXPECTED_EOF)
	}
	return newReaderHandle(reader, outReader, outVersion)
}

//export stone_read_buf
func stone_read_buf(buf *C.uint8_t, length C.uintptr_t, outReader **C.StoneReader, outVersion *C.StoneHeaderVersion) C.int {
	if outReader == nil || (buf == nil && length > 0) {
		return C.STONE_ERROR_INVALID_ARGUMENT
	}
	data := C.GoBytes(unsafe.Pointer(buf), C.int(length))
	reader, err := stone.NewReaderFromBytes(data)
	if err != nil {
		return errorCode(err, C.STONE_ERROR_UNEXPECTED_EOF)
	}
	return newReaderHandle(reader, outReader, outVersion)
}

//export stone_reader_header_v1
func stone_reader_header_v1(readerPtr *C.StoneReader, outHeader *C.StoneHeaderV1) C.int {
	state, ok := readerValue(readerPtr)
	if !ok || outHeader == nil {
		return C.STONE_ERROR_INVALID_ARGUMENT
	}
	if state.reader.Version() != stone.HeaderVersionV1 {
		return C.STONE_ERROR_UNSUPPORTED_VERSION
	}
	header := state.reader.Header()
	outHeader.num_payloads = C.uint16_t(header.NumPayloads)
	outHeader.file_type = C.StoneHeaderV1FileType(header.FileType)
	return C.STONE_SUCCESS
}

//export stone_reader_next_payload
func stone_reader_next_payload(readerPtr *C.StoneReader, outPayload **C.StonePayload) C.int {
	state, ok := readerValue(readerPtr)
	if !ok || outPayload == nil {
		return C.STONE_ERROR_INVALID_ARGUMENT
	}
	payload, err := state.reader.NextPayload()
	if err != nil {
		return errorCode(err, C.STONE_ERROR_NO_MORE_PAYLOADS)
	}
	newPayload := &payloadState{payload: payload}
	newPayload.handle = cgo.NewHandle(newPayload)
	*outPayload = payloadPointer(newPayload)
	return C.STONE_SUCCESS
}

//export stone_reader_unpack_content_payload
func stone_reader_unpack_content_payload(readerPtr *C.StoneReader, payloadPtr *C.StonePayload, file C.int) C.int {
	if _, ok := readerValue(readerPtr); !ok {
		return C.STONE_ERROR_INVALID_ARGUMENT
	}
	payload, ok := payloadValue(payloadPtr)
	if !ok || file < 0 {
		return C.STONE_ERROR_INVALID_ARGUMENT
	}
	if err := payload.payload.UnpackFD(int(file)); err != nil {
		return errorCode(err, C.STONE_ERROR_UNEXPECTED_EOF)
	}
	return C.STONE_SUCCESS
}

//export stone_reader_read_content_payload
func stone_reader_read_content_payload(readerPtr *C.StoneReader, payloadPtr *C.StonePayload, outContent **C.StonePayloadContentReader) C.int {
	state, ok := readerValue(readerPtr)
	if !ok {
		return C.STONE_ERROR_INVALID_ARGUMENT
	}
	payload, ok := payloadValue(payloadPtr)
	if !ok || outContent == nil {
		return C.STONE_ERROR_INVALID_ARGUMENT
	}
	content, err := payload.payload.OpenContent()
	if err != nil {
		return errorCode(err, C.STONE_ERROR_UNEXPECTED_EOF)
	}
	newContent := &contentState{content: content, owner: state}
	newContent.handle = cgo.NewHandle(newContent)
	state.contentLive++
	*outContent = contentPointer(newContent)
	return C.STONE_SUCCESS
}

//export stone_reader_destroy
func stone_reader_destroy(readerPtr *C.StoneReader) {
	state, ok := readerValue(readerPtr)
	if !ok {
		return
	}
	if state.contentLive > 0 {
		// A live content reader still borrows this reader; defer the
		// teardown until it is destroyed.
		state.destroyPending = true
		return
	}
	state.handle.Delete()
}

//export stone_payload_header
func stone_payload_header(payloadPtr *C.StonePayload, outHeader *C.StonePayloadHeader) C.int {
	payload, ok := payloadValue(payloadPtr)
	if !ok || outHeader == nil {
		return C.STONE_ERROR_INVALID_ARGUMENT
	}
	header := payload.payload.Header()
	outHeader.stored_size = C.uint64_t(header.StoredSize)
	outHeader.plain_size = C.uint64_t(header.PlainSize)
	for i := 0; i < len(header.Checksum); i++ {
		outHeader.checksum[i] = C.uint8_t(header.Checksum[i])
	}
	outHeader.num_records = C.uintptr_t(header.NumRecords)
	outHeader.version = C.uint16_t(header.Version)
	outHeader.kind = C.StonePayloadKind(header.Kind)
	outHeader.compression = C.StonePayloadCompression(header.Compression)
	return C.STONE_SUCCESS
}

//export stone_payload_next_meta_record
func stone_payload_next_meta_record(payloadPtr *C.StonePayload, outRecord *C.StonePayloadMetaRecord) C.int {
	payload, ok := payloadValue(payloadPtr)
	if !ok || outRecord == nil {
		return C.STONE_ERROR_INVALID_ARGUMENT
	}
	record, err := payload.payload.NextMetaRecord()
	if err != nil {
		return errorCode(err, C.STONE_ERROR_END_OF_RECORDS)
	}
	payload.freeAllocs()

	outRecord.tag = C.StonePayloadMetaTag(record.Tag)
	outRecord.primitive_type = C.StonePayloadMetaPrimitiveType(record.Value.PrimitiveType())

	switch value := record.Value.(type) {
	case stone.Int8Value:
		C.stone_meta_store_int8(outRecord, C.int8_t(value))
	case stone.Uint8Value:
		C.stone_meta_store_uint8(outRecord, C.uint8_t(value))
	case stone.Int16Value:
		C.stone_meta_store_int16(outRecord, C.int16_t(value))
	case stone.Uint16Value:
		C.stone_meta_store_uint16(outRecord, C.uint16_t(value))
	case stone.Int32Value:
		C.stone_meta_store_int32(outRecord, C.int32_t(value))
	case stone.Uint32Value:
		C.stone_meta_store_uint32(outRecord, C.uint32_t(value))
	case stone.Int64Value:
		C.stone_meta_store_int64(outRecord, C.int64_t(value))
	case stone.Uint64Value:
		C.stone_meta_store_uint64(outRecord, C.uint64_t(value))
	case stone.StringValue:
		buf, size := payload.retainString(string(value))
		C.stone_meta_store_string(outRecord, buf, size)
	case stone.DependencyValue:
		buf, size := payload.retainString(value.Name)
		C.stone_meta_store_dependency(outRecord, C.uint8_t(value.Kind), buf, size)
	case stone.ProviderValue:
		buf, size := payload.retainString(value.Name)
		C.stone_meta_store_provider(outRecord, C.uint8_t(value.Kind), buf, size)
	case stone.UnknownValue:
		// Discriminant only; the union is left untouched.
	}
	return C.STONE_SUCCESS
}

//export stone_payload_next_layout_record
func stone_payload_next_layout_record(payloadPtr *C.StonePayload, outRecord *C.StonePayloadLayoutRecord) C.int {
	payload, ok := payloadValue(payloadPtr)
	if !ok || outRecord == nil {
		return C.STONE_ERROR_INVALID_ARGUMENT
	}
	record, err := payload.payload.NextLayoutRecord()
	if err != nil {
		return errorCode(err, C.STONE_ERROR_END_OF_RECORDS)
	}
	payload.freeAllocs()

	outRecord.uid = C.uint32_t(record.UID)
	outRecord.gid = C.uint32_t(record.GID)
	outRecord.mode = C.uint32_t(record.Mode)
	outRecord.tag = C.uint32_t(record.Tag)
	outRecord.file_type = C.StonePayloadLayoutFileType(record.FileType)

	switch record.FileType {
	case stone.LayoutFileRegular:
		nameBuf, nameSize := payload.retainString(record.Target)
		hash := record.Digest
		C.stone_layout_store_regular(outRecord, (*C.uint8_t)(unsafe.Pointer(&hash[0])), nameBuf, nameSize)
	case stone.LayoutFileSymlink:
		sourceBuf, sourceSize := payload.retainString(record.Source)
		targetBuf, targetSize := payload.retainString(record.Target)
		C.stone_layout_store_symlink(outRecord, sourceBuf, sourceSize, targetBuf, targetSize)
	case stone.LayoutFileDirectory, stone.LayoutFileCharacterDevice,
		stone.LayoutFileBlockDevice, stone.LayoutFileFifo, stone.LayoutFileSocket:
		buf, size := payload.retainString(record.Target)
		C.stone_layout_store_name(outRecord, buf, size)
	default:
		// Unknown types expose their raw source and target through
		// the symlink-shaped union member.
		sourceBuf, sourceSize := payload.retainString(record.Source)
		targetBuf, targetSize := payload.retainString(record.Target)
		C.stone_layout_store_symlink(outRecord, sourceBuf, sourceSize, targetBuf, targetSize)
	}
	return C.STONE_SUCCESS
}

//export stone_payload_next_index_record
func stone_payload_next_index_record(payloadPtr *C.StonePayload, outRecord *C.StonePayloadIndexRecord) C.int {
	payload, ok := payloadValue(payloadPtr)
	if !ok || outRecord == nil {
		return C.STONE_ERROR_INVALID_ARGUMENT
	}
	record, err := payload.payload.NextIndexRecord()
	if err != nil {
		return errorCode(err, C.STONE_ERROR_END_OF_RECORDS)
	}
	outRecord.start = C.uint64_t(record.Start)
	outRecord.end = C.uint64_t(record.End)
	for i := 0; i < len(record.Digest); i++ {
		outRecord.digest[i] = C.uint8_t(record.Digest[i])
	}
	return C.STONE_SUCCESS
}

//export stone_payload_next_attribute_record
func stone_payload_next_attribute_record(payloadPtr *C.StonePayload, outRecord *C.StonePayloadAttributeRecord) C.int {
	payload, ok := payloadValue(payloadPtr)
	if !ok || outRecord == nil {
		return C.STONE_ERROR_INVALID_ARGUMENT
	}
	record, err := payload.payload.NextAttributeRecord()
	if err != nil {
		return errorCode(err, C.STONE_ERROR_END_OF_RECORDS)
	}
	payload.freeAllocs()

	keyBuf, keySize := payload.retain(record.Key)
	valueBuf, valueSize := payload.retain(record.Value)
	outRecord.key_buf = keyBuf
	outRecord.key_size = C.uintptr_t(keySize)
	outRecord.value_buf = valueBuf
	outRecord.value_size = C.uintptr_t(valueSize)
	return C.STONE_SUCCESS
}

//export stone_payload_destroy
func stone_payload_destroy(payloadPtr *C.StonePayload) {
	payload, ok := payloadValue(payloadPtr)
	if !ok {
		return
	}
	payload.freeAllocs()
	payload.handle.Delete()
}

//export stone_payload_content_reader_read
func stone_payload_content_reader_read(contentPtr *C.StonePayloadContentReader, buf *C.uint8_t, size C.size_t) C.size_t {
	state, ok := contentValue(contentPtr)
	if !ok || buf == nil || size == 0 {
		return 0
	}
	destination := unsafe.Slice((*byte)(unsafe.Pointer(buf)), int(size))
	n, err := state.content.Read(destination)
	if err != nil && err != io.EOF {
		return 0
	}
	return C.size_t(n)
}

//export stone_payload_content_reader_buf_hint
func stone_payload_content_reader_buf_hint(contentPtr *C.StonePayloadContentReader, outHint *C.uintptr_t) C.int {
	state, ok := contentValue(contentPtr)
	if !ok || outHint == nil {
		return C.STONE_ERROR_INVALID_ARGUMENT
	}
	*outHint = C.uintptr_t(state.content.BufHint())
	return C.STONE_SUCCESS
}

//export stone_payload_content_reader_is_checksum_valid
func stone_payload_content_reader_is_checksum_valid(contentPtr *C.StonePayloadContentReader) C.int {
	state, ok := contentValue(contentPtr)
	if !ok {
		return 0
	}
	if state.content.IsChecksumValid() {
		return 1
	}
	return 0
}

//export stone_payload_content_reader_destroy
func stone_payload_content_reader_destroy(contentPtr *C.StonePayloadContentReader) {
	state, ok := contentValue(contentPtr)
	if !ok {
		return
	}
	state.content.Close()
	if state.owner != nil {
		state.owner.contentLive--
		if state.owner.destroyPending && state.owner.contentLive == 0 {
			state.owner.handle.Delete()
		}
	}
	state.handle.Delete()
}

// writeName copies a NUL-terminated enumerator name into the caller's
// buffer.
func writeName(buf *C.uint8_t, name string) {
	destination := unsafe.Slice((*byte)(unsafe.Pointer(buf)), len(name)+1)
	copy(destination, name)
	destination[len(name)] = 0
}

//export stone_format_header_v1_file_type
func stone_format_header_v1_file_type(fileType C.StoneHeaderV1FileType, buf *C.uint8_t) {
	if buf == nil {
		return
	}
	writeName(buf, stone.FileType(fileType).String())
}

//export stone_format_payload_compression
func stone_format_payload_compression(compression C.StonePayloadCompression, buf *C.uint8_t) {
	if buf == nil {
		return
	}
	writeName(buf, stone.Compression(compression).String())
}

//export stone_format_payload_kind
func stone_format_payload_kind(kind C.StonePayloadKind, buf *C.uint8_t) {
	if buf == nil {
		return
	}
	writeName(buf, stone.PayloadKind(kind).String())
}

//export stone_format_payload_layout_file_type
func stone_format_payload_layout_file_type(fileType C.StonePayloadLayoutFileType, buf *C.uint8_t) {
	if buf == nil {
		return
	}
	writeName(buf, stone.LayoutFileType(fileType).String())
}

//export stone_format_payload_meta_tag
func stone_format_payload_meta_tag(tag C.StonePayloadMetaTag, buf *C.uint8_t) {
	if buf == nil {
		return
	}
	writeName(buf, stone.MetaTag(tag).String())
}

//export stone_format_payload_meta_dependency
func stone_format_payload_meta_dependency(dependency C.StonePayloadMetaDependency, buf *C.uint8_t) {
	if buf == nil {
		return
	}
	writeName(buf, stone.Dependency(dependency).String())
}
