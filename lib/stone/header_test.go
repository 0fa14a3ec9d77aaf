// Copyright 2026 AerynOS Developers
// SPDX-License-Identifier: MPL-2.0

package stone

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestEmptyArchive(t *testing.T) {
	// An empty archive is exactly the 32-byte header.
	var buffer bytes.Buffer
	writer, err := NewWriter(&buffer, FileTypeBinary, WithPayloadCount(0))
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if buffer.Len() != HeaderSize {
		t.Fatalf("empty archive is %d bytes, want %d", buffer.Len(), HeaderSize)
	}

	reader, err := NewReaderFromBytes(buffer.Bytes())
	if err != nil {
		t.Fatalf("NewReaderFromBytes failed: %v", err)
	}
	if reader.Version() != HeaderVersionV1 {
		t.Errorf("Version = %d, want %d", reader.Version(), HeaderVersionV1)
	}
	header := reader.Header()
	if header.NumPayloads != 0 {
		t.Errorf("NumPayloads = %d, want 0", header.NumPayloads)
	}
	if header.FileType != FileTypeBinary {
		t.Errorf("FileType = %s, want Binary", header.FileType)
	}

	if _, err := reader.NextPayload(); err != io.EOF {
		t.Fatalf("NextPayload on empty archive = %v, want io.EOF", err)
	}
	// The sentinel repeats rather than sticking as a failure.
	if _, err := reader.NextPayload(); err != io.EOF {
		t.Fatalf("second NextPayload = %v, want io.EOF", err)
	}
}

func TestHeaderRejectsBadMagic(t *testing.T) {
	buf := encodeHeader(HeaderV1{NumPayloads: 0, FileType: FileTypeBinary})
	buf[0] = 'X'

	if _, err := NewReaderFromBytes(buf[:]); !errors.Is(err, ErrNotAStone) {
		t.Fatalf("NewReaderFromBytes with bad magic = %v, want ErrNotAStone", err)
	}
}

func TestHeaderRejectsUnknownVersion(t *testing.T) {
	buf := encodeHeader(HeaderV1{NumPayloads: 0, FileType: FileTypeBinary})
	buf[7] = 9 // version 9

	_, err := NewReaderFromBytes(buf[:])
	var versionErr *UnsupportedVersionError
	if !errors.As(err, &versionErr) {
		t.Fatalf("NewReaderFromBytes with version 9 = %v, want UnsupportedVersionError", err)
	}
	if versionErr.Version != 9 {
		t.Errorf("reported version = %d, want 9", versionErr.Version)
	}
}

func TestHeaderRejectsTruncation(t *testing.T) {
	buf := encodeHeader(HeaderV1{NumPayloads: 0, FileType: FileTypeBinary})

	if _, err := NewReaderFromBytes(buf[:20]); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("NewReaderFromBytes with 20 bytes = %v, want io.ErrUnexpectedEOF", err)
	}
}

func TestHeaderToleratesFillerBytes(t *testing.T) {
	// The 21 bytes between num_payloads and file_type carry a fixed
	// pattern, but readers must accept any content there.
	buf := encodeHeader(HeaderV1{NumPayloads: 0, FileType: FileTypeDelta})
	for i := 10; i < 31; i++ {
		buf[i] = 0xEE
	}

	reader, err := NewReaderFromBytes(buf[:])
	if err != nil {
		t.Fatalf("NewReaderFromBytes failed: %v", err)
	}
	if reader.Header().FileType != FileTypeDelta {
		t.Errorf("FileType = %s, want Delta", reader.Header().FileType)
	}
}

func TestHeaderFillerPattern(t *testing.T) {
	// The writer emits the well-known filler pattern bit-exact; other
	// stone tooling expects it.
	want := []byte{0, 0, 1, 0, 0, 2, 0, 0, 3, 0, 0, 4, 0, 0, 5, 0, 0, 6, 0, 0, 7}
	buf := encodeHeader(HeaderV1{NumPayloads: 3, FileType: FileTypeBinary})
	if !bytes.Equal(buf[10:31], want) {
		t.Fatalf("filler bytes = %x, want %x", buf[10:31], want)
	}
	if buf[31] != byte(FileTypeBinary) {
		t.Errorf("file type byte = %d, want %d", buf[31], FileTypeBinary)
	}
}

func TestFileTypeNames(t *testing.T) {
	cases := []struct {
		fileType FileType
		want     string
	}{
		{FileTypeBinary, "Binary"},
		{FileTypeDelta, "Delta"},
		{FileTypeRepository, "Repository"},
		{FileTypeBuildManifest, "BuildManifest"},
		{FileType(200), "Unknown"},
	}
	for _, c := range cases {
		if got := c.fileType.String(); got != c.want {
			t.Errorf("FileType(%d).String() = %q, want %q", uint8(c.fileType), got, c.want)
		}
	}
}
