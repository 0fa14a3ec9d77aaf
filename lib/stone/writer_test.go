// Copyright 2026 AerynOS Developers
// SPDX-License-Identifier: MPL-2.0

package stone

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestWriterNonSeekableRequiresPayloadCount(t *testing.T) {
	var buffer bytes.Buffer
	if _, err := NewWriter(&buffer, FileTypeBinary); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("NewWriter on non-seekable sink without count = %v, want ErrInvalidArgument", err)
	}
}

func TestWriterEnforcesDeclaredCount(t *testing.T) {
	var buffer bytes.Buffer
	writer, err := NewWriter(&buffer, FileTypeBinary, WithPayloadCount(2))
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	if err := writer.AddIndexPayload(nil); err != nil {
		t.Fatalf("AddIndexPayload failed: %v", err)
	}
	if err := writer.Close(); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("Close with 1 of 2 declared payloads = %v, want ErrInvalidArgument", err)
	}
}

func TestWriterRejectsOverflowOfDeclaredCount(t *testing.T) {
	var buffer bytes.Buffer
	writer, err := NewWriter(&buffer, FileTypeBinary, WithPayloadCount(1))
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	if err := writer.AddIndexPayload(nil); err != nil {
		t.Fatalf("AddIndexPayload failed: %v", err)
	}
	if err := writer.AddIndexPayload(nil); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("appending beyond declared count = %v, want ErrInvalidArgument", err)
	}
}

func TestWriterBackfillsPayloadCount(t *testing.T) {
	// On a seekable sink the payload count need not be known up
	// front; Close back-fills the file header.
	path := filepath.Join(t.TempDir(), "test.stone")
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	defer file.Close()

	writer, err := NewWriter(file, FileTypeBinary)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	if err := writer.AddMetaPayload([]MetaRecord{
		{Tag: MetaTagName, Value: StringValue("pkg")},
	}); err != nil {
		t.Fatalf("AddMetaPayload failed: %v", err)
	}
	if err := writer.AddContent(bytes.NewReader([]byte("blob"))); err != nil {
		t.Fatalf("AddContent failed: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	archive, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	reader, err := NewReaderFromBytes(archive)
	if err != nil {
		t.Fatalf("NewReaderFromBytes failed: %v", err)
	}
	if reader.Header().NumPayloads != 2 {
		t.Fatalf("NumPayloads = %d, want 2", reader.Header().NumPayloads)
	}
	for i := 0; i < 2; i++ {
		if _, err := reader.NextPayload(); err != nil {
			t.Fatalf("NextPayload %d failed: %v", i, err)
		}
	}
	if _, err := reader.NextPayload(); err != io.EOF {
		t.Fatalf("NextPayload past end = %v, want io.EOF", err)
	}
}

func TestWriterStreamedAndBufferedContentAgree(t *testing.T) {
	// The seek-back and in-memory content paths must produce the same
	// bytes: same frame, same checksum, same header.
	data := bytes.Repeat([]byte("stone content "), 4096)

	path := filepath.Join(t.TempDir(), "streamed.stone")
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	defer file.Close()
	streamed, err := NewWriter(file, FileTypeBinary, WithZstdWorkers(1))
	if err != nil {
		t.Fatalf("NewWriter(file) failed: %v", err)
	}
	if err := streamed.AddContent(bytes.NewReader(data)); err != nil {
		t.Fatalf("AddContent(file) failed: %v", err)
	}
	if err := streamed.Close(); err != nil {
		t.Fatalf("Close(file) failed: %v", err)
	}

	var buffer bytes.Buffer
	buffered, err := NewWriter(&buffer, FileTypeBinary, WithPayloadCount(1), WithZstdWorkers(1))
	if err != nil {
		t.Fatalf("NewWriter(buffer) failed: %v", err)
	}
	if err := buffered.AddContent(bytes.NewReader(data)); err != nil {
		t.Fatalf("AddContent(buffer) failed: %v", err)
	}
	if err := buffered.Close(); err != nil {
		t.Fatalf("Close(buffer) failed: %v", err)
	}

	fromFile, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !bytes.Equal(fromFile, buffer.Bytes()) {
		t.Fatalf("streamed (%d bytes) and buffered (%d bytes) archives differ", len(fromFile), buffer.Len())
	}
}

func TestWriterRejectsUnknownCompression(t *testing.T) {
	var buffer bytes.Buffer
	_, err := NewWriter(&buffer, FileTypeBinary, WithPayloadCount(0), WithCompression(Compression(9)))
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("NewWriter with unknown compression = %v, want ErrInvalidArgument", err)
	}
}

func TestArchiveRoundtrip(t *testing.T) {
	// Full structural round-trip across every payload kind, with the
	// default zstd compression.
	metaRecords := []MetaRecord{
		{Tag: MetaTagName, Value: StringValue("nano")},
		{Tag: MetaTagArchitecture, Value: StringValue("x86_64")},
		{Tag: MetaTagRelease, Value: Uint64Value(42)},
		{Tag: MetaTagPackageSize, Value: Int64Value(123456)},
		{Tag: MetaTagDepends, Value: DependencyValue{Kind: DependencySharedLibrary, Name: "libc.so.6(x86_64)"}},
		{Tag: MetaTagProvides, Value: ProviderValue{Kind: DependencyBinary, Name: "nano"}},
	}
	blob := bytes.Repeat([]byte("file contents\n"), 512)
	digest := ComputeDigest(blob)
	layoutRecords := []LayoutRecord{
		{UID: 0, GID: 0, Mode: 0o40755, FileType: LayoutFileDirectory, Target: "usr/bin"},
		{UID: 0, GID: 0, Mode: 0o100755, FileType: LayoutFileRegular, Digest: digest, Target: "usr/bin/nano"},
		{UID: 0, GID: 0, Mode: 0o120777, FileType: LayoutFileSymlink, Source: "nano", Target: "usr/bin/pico"},
	}
	indexRecords := []IndexRecord{
		{Start: 0, End: uint64(len(blob)), Digest: digest},
	}
	attributeRecords := []AttributeRecord{
		{Key: []byte("builder"), Value: []byte("boulder")},
	}

	var buffer bytes.Buffer
	writer, err := NewWriter(&buffer, FileTypeBinary, WithPayloadCount(5), WithZstdWorkers(1))
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	if err := writer.AddMetaPayload(metaRecords); err != nil {
		t.Fatalf("AddMetaPayload failed: %v", err)
	}
	if err := writer.AddLayoutPayload(layoutRecords); err != nil {
		t.Fatalf("AddLayoutPayload failed: %v", err)
	}
	if err := writer.AddIndexPayload(indexRecords); err != nil {
		t.Fatalf("AddIndexPayload failed: %v", err)
	}
	if err := writer.AddContent(bytes.NewReader(blob)); err != nil {
		t.Fatalf("AddContent failed: %v", err)
	}
	if err := writer.AddAttributePayload(attributeRecords); err != nil {
		t.Fatalf("AddAttributePayload failed: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reader, err := NewReaderFromBytes(buffer.Bytes())
	if err != nil {
		t.Fatalf("NewReaderFromBytes failed: %v", err)
	}
	if reader.Header().NumPayloads != 5 {
		t.Fatalf("NumPayloads = %d, want 5", reader.Header().NumPayloads)
	}

	// Meta.
	payload, err := reader.NextPayload()
	if err != nil {
		t.Fatalf("NextPayload(meta) failed: %v", err)
	}
	for i, want := range metaRecords {
		got, err := payload.NextMetaRecord()
		if err != nil {
			t.Fatalf("NextMetaRecord %d failed: %v", i, err)
		}
		if got.Tag != want.Tag || got.Value != want.Value {
			t.Errorf("meta record %d = %+v, want %+v", i, got, want)
		}
	}

	// Layout.
	payload, err = reader.NextPayload()
	if err != nil {
		t.Fatalf("NextPayload(layout) failed: %v", err)
	}
	for i, want := range layoutRecords {
		got, err := payload.NextLayoutRecord()
		if err != nil {
			t.Fatalf("NextLayoutRecord %d failed: %v", i, err)
		}
		if got != want {
			t.Errorf("layout record %d = %+v, want %+v", i, got, want)
		}
	}

	// Index.
	payload, err = reader.NextPayload()
	if err != nil {
		t.Fatalf("NextPayload(index) failed: %v", err)
	}
	got, err := payload.NextIndexRecord()
	if err != nil {
		t.Fatalf("NextIndexRecord failed: %v", err)
	}
	if got != indexRecords[0] {
		t.Errorf("index record = %+v, want %+v", got, indexRecords[0])
	}

	// Content, extracted through the index range.
	payload, err = reader.NextPayload()
	if err != nil {
		t.Fatalf("NextPayload(content) failed: %v", err)
	}
	var content bytes.Buffer
	if err := payload.Unpack(&content); err != nil {
		t.Fatalf("Unpack failed: %v", err)
	}
	extracted := content.Bytes()[indexRecords[0].Start:indexRecords[0].End]
	if !bytes.Equal(extracted, blob) {
		t.Error("content blob does not round-trip")
	}
	if ComputeDigest(extracted) != digest {
		t.Error("extracted blob does not hash to its index digest")
	}

	// Attributes.
	payload, err = reader.NextPayload()
	if err != nil {
		t.Fatalf("NextPayload(attributes) failed: %v", err)
	}
	attribute, err := payload.NextAttributeRecord()
	if err != nil {
		t.Fatalf("NextAttributeRecord failed: %v", err)
	}
	if !bytes.Equal(attribute.Key, attributeRecords[0].Key) ||
		!bytes.Equal(attribute.Value, attributeRecords[0].Value) {
		t.Errorf("attribute record = %+v, want %+v", attribute, attributeRecords[0])
	}

	if _, err := reader.NextPayload(); err != io.EOF {
		t.Fatalf("NextPayload past end = %v, want io.EOF", err)
	}
}
