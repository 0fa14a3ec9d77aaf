// Copyright 2026 AerynOS Developers
// SPDX-License-Identifier: MPL-2.0

package stone

import (
	"io"
)

// AttributeRecord is one opaque key/value pair from the Attributes
// payload. Keys and values are arbitrary bytes; the engine assigns
// them no meaning.
type AttributeRecord struct {
	Key   []byte
	Value []byte
}

func decodeAttributeRecord(r io.Reader, sizeCap uint64) (AttributeRecord, error) {
	var rec AttributeRecord

	keyLen, err := readU64(r)
	if err != nil {
		return rec, err
	}
	if rec.Key, err = readBytes(r, keyLen, sizeCap); err != nil {
		return rec, err
	}

	valueLen, err := readU64(r)
	if err != nil {
		return rec, err
	}
	if rec.Value, err = readBytes(r, valueLen, sizeCap); err != nil {
		return rec, err
	}

	return rec, nil
}

func encodeAttributeRecord(w io.Writer, rec AttributeRecord) error {
	if err := writeU64(w, uint64(len(rec.Key))); err != nil {
		return err
	}
	if _, err := w.Write(rec.Key); err != nil {
		return err
	}
	if err := writeU64(w, uint64(len(rec.Value))); err != nil {
		return err
	}
	_, err := w.Write(rec.Value)
	return err
}

// NextAttributeRecord yields the next record of an Attributes payload.
// It returns io.EOF once all records have been produced, and
// *WrongPayloadKindError when called on a payload of another kind.
func (p *Payload) NextAttributeRecord() (AttributeRecord, error) {
	if err := p.nextRecordSetup(KindAttributes); err != nil {
		return AttributeRecord{}, err
	}
	rec, err := decodeAttributeRecord(p.body, p.header.PlainSize)
	if err != nil {
		return AttributeRecord{}, p.recordFailed(err)
	}
	p.recordDecoded()
	return rec, nil
}
