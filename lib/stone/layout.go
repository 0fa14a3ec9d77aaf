// Copyright 2026 AerynOS Developers
// SPDX-License-Identifier: MPL-2.0

package stone

import (
	"fmt"
	"io"
)

// LayoutFileType records the target file type of a layout entry so it
// can be rebuilt on the target installation. Wire constants.
type LayoutFileType uint8

const (
	// LayoutFileRegular is a regular file, addressed by content
	// digest.
	LayoutFileRegular LayoutFileType = 1

	// LayoutFileSymlink is a symbolic link (source and target set).
	LayoutFileSymlink LayoutFileType = 2

	// LayoutFileDirectory is a directory node.
	LayoutFileDirectory LayoutFileType = 3

	// LayoutFileCharacterDevice is a character device.
	LayoutFileCharacterDevice LayoutFileType = 4

	// LayoutFileBlockDevice is a block device.
	LayoutFileBlockDevice LayoutFileType = 5

	// LayoutFileFifo is a FIFO node.
	LayoutFileFifo LayoutFileType = 6

	// LayoutFileSocket is a UNIX socket.
	LayoutFileSocket LayoutFileType = 7

	// LayoutFileUnknown is the sentinel for discriminants outside the
	// defined set.
	LayoutFileUnknown LayoutFileType = 255
)

// Known reports whether the discriminant is in the defined set.
func (t LayoutFileType) Known() bool {
	return t >= LayoutFileRegular && t <= LayoutFileSocket
}

// String returns the human-readable layout file type name.
func (t LayoutFileType) String() string {
	switch t {
	case LayoutFileRegular:
		return "Regular"
	case LayoutFileSymlink:
		return "Symlink"
	case LayoutFileDirectory:
		return "Directory"
	case LayoutFileCharacterDevice:
		return "CharacterDevice"
	case LayoutFileBlockDevice:
		return "BlockDevice"
	case LayoutFileFifo:
		return "Fifo"
	case LayoutFileSocket:
		return "Socket"
	default:
		return "Unknown"
	}
}

// layoutPadding is the reserved region after the file type byte in the
// fixed-width record prefix. Written zeroed, ignored on read.
const layoutPadding = 11

// LayoutRecord is a single entry in the Layout payload: one filesystem
// node to materialize, with UNIX ownership and permissions.
//
// The variable portion depends on FileType: Regular entries carry
// Digest (the content hash resolved through the Index payload) and
// Target (the installation path); Symlink entries carry Source (link
// destination) and Target (link path); every other known type carries
// Target alone. Entries with an out-of-set FileType preserve their raw
// source bytes in Source so they re-encode losslessly.
type LayoutRecord struct {
	UID  uint32
	GID  uint32
	Mode uint32
	Tag  uint32

	FileType LayoutFileType

	Digest Digest
	Source string
	Target string
}

func decodeLayoutRecord(r io.Reader, sizeCap uint64) (LayoutRecord, error) {
	var rec LayoutRecord
	var err error

	if rec.UID, err = readU32(r); err != nil {
		return rec, err
	}
	if rec.GID, err = readU32(r); err != nil {
		return rec, err
	}
	if rec.Mode, err = readU32(r); err != nil {
		return rec, err
	}
	if rec.Tag, err = readU32(r); err != nil {
		return rec, err
	}

	sourceLen, err := readU16(r)
	if err != nil {
		return rec, err
	}
	targetLen, err := readU16(r)
	if err != nil {
		return rec, err
	}
	fileType, err := readU8(r)
	if err != nil {
		return rec, err
	}
	rec.FileType = LayoutFileType(fileType)

	var padding [layoutPadding]byte
	if err := readFull(r, padding[:]); err != nil {
		return rec, err
	}

	source, err := readBytes(r, uint64(sourceLen), sizeCap)
	if err != nil {
		return rec, err
	}
	target, err := readBytes(r, uint64(targetLen), sizeCap)
	if err != nil {
		return rec, err
	}

	switch rec.FileType {
	case LayoutFileRegular:
		if len(source) != len(rec.Digest) {
			return rec, fmt.Errorf("regular layout record has %d-byte digest, want %d", len(source), len(rec.Digest))
		}
		copy(rec.Digest[:], source)
		rec.Target = sanitizeString(target)
	case LayoutFileSymlink:
		rec.Source = sanitizeString(source)
		rec.Target = sanitizeString(target)
	case LayoutFileDirectory, LayoutFileCharacterDevice, LayoutFileBlockDevice,
		LayoutFileFifo, LayoutFileSocket:
		rec.Target = sanitizeString(target)
	default:
		// Unknown types keep their raw source bytes so the record
		// survives a re-encode.
		rec.Source = string(source)
		rec.Target = sanitizeString(target)
	}

	return rec, nil
}

// source returns the wire bytes of the type-dependent source field.
func (rec LayoutRecord) source() []byte {
	switch rec.FileType {
	case LayoutFileRegular:
		return rec.Digest[:]
	case LayoutFileSymlink:
		return []byte(rec.Source)
	case LayoutFileDirectory, LayoutFileCharacterDevice, LayoutFileBlockDevice,
		LayoutFileFifo, LayoutFileSocket:
		return nil
	default:
		return []byte(rec.Source)
	}
}

func encodeLayoutRecord(w io.Writer, rec LayoutRecord) error {
	if err := writeU32(w, rec.UID); err != nil {
		return err
	}
	if err := writeU32(w, rec.GID); err != nil {
		return err
	}
	if err := writeU32(w, rec.Mode); err != nil {
		return err
	}
	if err := writeU32(w, rec.Tag); err != nil {
		return err
	}

	source := rec.source()
	if err := writeU16(w, uint16(len(source))); err != nil {
		return err
	}
	if err := writeU16(w, uint16(len(rec.Target))); err != nil {
		return err
	}
	if err := writeU8(w, uint8(rec.FileType)); err != nil {
		return err
	}
	var padding [layoutPadding]byte
	if _, err := w.Write(padding[:]); err != nil {
		return err
	}
	if _, err := w.Write(source); err != nil {
		return err
	}
	_, err := io.WriteString(w, rec.Target)
	return err
}

// NextLayoutRecord yields the next record of a Layout payload. It
// returns io.EOF once all records have been produced, and
// *WrongPayloadKindError when called on a payload of another kind.
func (p *Payload) NextLayoutRecord() (LayoutRecord, error) {
	if err := p.nextRecordSetup(KindLayout); err != nil {
		return LayoutRecord{}, err
	}
	rec, err := decodeLayoutRecord(p.body, p.header.PlainSize)
	if err != nil {
		return LayoutRecord{}, p.recordFailed(err)
	}
	p.recordDecoded()
	return rec, nil
}
