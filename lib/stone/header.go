// Copyright 2026 AerynOS Developers
// SPDX-License-Identifier: MPL-2.0

package stone

import (
	"encoding/binary"
	"io"
)

// Archive framing constants. These are wire constants shared with
// every other stone implementation and must not change.
const (
	// HeaderSize is the fixed size of the archive file header: 4-byte
	// magic + 4-byte format version + 24 bytes of version-specific
	// data, regardless of version.
	HeaderSize = 32

	// archiveMagic is the 4-byte archive signature, big-endian
	// ("\x00mos").
	archiveMagic uint32 = 0x006d6f73
)

// HeaderVersion is the archive format version. Versions are u32 on the
// wire to allow further mangling in future revisions.
type HeaderVersion uint32

// HeaderVersionV1 is the only format version currently defined.
const HeaderVersionV1 HeaderVersion = 1

// FileType is the well-known role of a v1 archive.
type FileType uint8

const (
	// FileTypeBinary is an installable binary package.
	FileTypeBinary FileType = 1

	// FileTypeDelta is a delta package.
	FileTypeDelta FileType = 2

	// FileTypeRepository is a (legacy) repository index.
	FileTypeRepository FileType = 3

	// FileTypeBuildManifest is a (legacy) build manifest.
	FileTypeBuildManifest FileType = 4

	// FileTypeUnknown is the sentinel for discriminants outside the
	// defined set.
	FileTypeUnknown FileType = 255
)

// Known reports whether the discriminant is in the defined set.
func (t FileType) Known() bool {
	return t >= FileTypeBinary && t <= FileTypeBuildManifest
}

// String returns the human-readable file type name.
func (t FileType) String() string {
	switch t {
	case FileTypeBinary:
		return "Binary"
	case FileTypeDelta:
		return "Delta"
	case FileTypeRepository:
		return "Repository"
	case FileTypeBuildManifest:
		return "BuildManifest"
	default:
		return "Unknown"
	}
}

// HeaderV1 is the version-specific portion of the archive header for
// format version 1.
type HeaderV1 struct {
	// NumPayloads is the number of payloads that follow the header.
	NumPayloads uint16

	// FileType is the archive's well-known role.
	FileType FileType
}

// v1Filler occupies the 21 bytes between num_payloads and file_type in
// the v1 header data. The pattern is a fixed constant written by every
// existing producer; readers tolerate arbitrary bytes in this region.
var v1Filler = [21]byte{0, 0, 1, 0, 0, 2, 0, 0, 3, 0, 0, 4, 0, 0, 5, 0, 0, 6, 0, 0, 7}

// encodeHeader serializes the full 32-byte archive header.
func encodeHeader(h HeaderV1) [HeaderSize]byte {
	var buf [HeaderSize]byte
	binary.BigEndian.PutUint32(buf[0:4], archiveMagic)
	binary.BigEndian.PutUint32(buf[4:8], uint32(HeaderVersionV1))
	binary.BigEndian.PutUint16(buf[8:10], h.NumPayloads)
	copy(buf[10:31], v1Filler[:])
	buf[31] = byte(h.FileType)
	return buf
}

// readHeader consumes and validates the 32-byte archive header from r.
func readHeader(r io.Reader) (HeaderV1, HeaderVersion, error) {
	var buf [HeaderSize]byte
	if err := readFull(r, buf[:]); err != nil {
		return HeaderV1{}, 0, err
	}

	if binary.BigEndian.Uint32(buf[0:4]) != archiveMagic {
		return HeaderV1{}, 0, ErrNotAStone
	}

	version := HeaderVersion(binary.BigEndian.Uint32(buf[4:8]))
	if version != HeaderVersionV1 {
		return HeaderV1{}, 0, &UnsupportedVersionError{Version: uint32(version)}
	}

	// The 21 filler bytes between num_payloads and file_type carry a
	// well-known pattern; its content is ignored on read.
	header := HeaderV1{
		NumPayloads: binary.BigEndian.Uint16(buf[8:10]),
		FileType:    FileType(buf[31]),
	}
	return header, version, nil
}
