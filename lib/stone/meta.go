// Copyright 2026 AerynOS Developers
// SPDX-License-Identifier: MPL-2.0

package stone

import (
	"fmt"
	"io"
	"math"
	"strings"
)

// MetaTag names what a Meta record describes. Wire constants; the raw
// discriminant is preserved for out-of-set values.
type MetaTag uint16

const (
	MetaTagName         MetaTag = 1
	MetaTagArchitecture MetaTag = 2
	MetaTagVersion      MetaTag = 3
	MetaTagSummary      MetaTag = 4
	MetaTagDescription  MetaTag = 5
	MetaTagHomepage     MetaTag = 6
	MetaTagSourceID     MetaTag = 7
	MetaTagDepends      MetaTag = 8
	MetaTagProvides     MetaTag = 9
	MetaTagConflicts    MetaTag = 10
	MetaTagRelease      MetaTag = 11
	MetaTagLicense      MetaTag = 12
	MetaTagBuildRelease MetaTag = 13
	MetaTagPackageURI   MetaTag = 14
	MetaTagPackageHash  MetaTag = 15
	MetaTagPackageSize  MetaTag = 16
	MetaTagBuildDepends MetaTag = 17
	MetaTagSourceURI    MetaTag = 18
	MetaTagSourcePath   MetaTag = 19
	MetaTagSourceRef    MetaTag = 20

	// MetaTagUnknown is the sentinel for discriminants outside the
	// defined set.
	MetaTagUnknown MetaTag = math.MaxUint16
)

// Known reports whether the discriminant is in the defined set.
func (t MetaTag) Known() bool {
	return t >= MetaTagName && t <= MetaTagSourceRef
}

// String returns the human-readable tag name.
func (t MetaTag) String() string {
	switch t {
	case MetaTagName:
		return "Name"
	case MetaTagArchitecture:
		return "Architecture"
	case MetaTagVersion:
		return "Version"
	case MetaTagSummary:
		return "Summary"
	case MetaTagDescription:
		return "Description"
	case MetaTagHomepage:
		return "Homepage"
	case MetaTagSourceID:
		return "SourceID"
	case MetaTagDepends:
		return "Depends"
	case MetaTagProvides:
		return "Provides"
	case MetaTagConflicts:
		return "Conflicts"
	case MetaTagRelease:
		return "Release"
	case MetaTagLicense:
		return "License"
	case MetaTagBuildRelease:
		return "BuildRelease"
	case MetaTagPackageURI:
		return "PackageURI"
	case MetaTagPackageHash:
		return "PackageHash"
	case MetaTagPackageSize:
		return "PackageSize"
	case MetaTagBuildDepends:
		return "BuildDepends"
	case MetaTagSourceURI:
		return "SourceURI"
	case MetaTagSourcePath:
		return "SourcePath"
	case MetaTagSourceRef:
		return "SourceRef"
	default:
		return "Unknown"
	}
}

// MetaKind is the primitive type discriminant of a Meta record value.
type MetaKind uint8

const (
	MetaKindInt8       MetaKind = 1
	MetaKindUint8      MetaKind = 2
	MetaKindInt16      MetaKind = 3
	MetaKindUint16     MetaKind = 4
	MetaKindInt32      MetaKind = 5
	MetaKindUint32     MetaKind = 6
	MetaKindInt64      MetaKind = 7
	MetaKindUint64     MetaKind = 8
	MetaKindString     MetaKind = 9
	MetaKindDependency MetaKind = 10
	MetaKindProvider   MetaKind = 11

	// MetaKindUnknown is the sentinel for discriminants outside the
	// defined set.
	MetaKindUnknown MetaKind = 255
)

// Known reports whether the discriminant is in the defined set.
func (k MetaKind) Known() bool {
	return k >= MetaKindInt8 && k <= MetaKindProvider
}

// String returns the human-readable primitive type name.
func (k MetaKind) String() string {
	switch k {
	case MetaKindInt8:
		return "Int8"
	case MetaKindUint8:
		return "Uint8"
	case MetaKindInt16:
		return "Int16"
	case MetaKindUint16:
		return "Uint16"
	case MetaKindInt32:
		return "Int32"
	case MetaKindUint32:
		return "Uint32"
	case MetaKindInt64:
		return "Int64"
	case MetaKindUint64:
		return "Uint64"
	case MetaKindString:
		return "String"
	case MetaKindDependency:
		return "Dependency"
	case MetaKindProvider:
		return "Provider"
	default:
		return "Unknown"
	}
}

// Dependency is the sub-kind of a Dependency or Provider value: the
// namespace the dependency name lives in.
type Dependency uint8

const (
	// DependencyPackageName is a plain package name.
	DependencyPackageName Dependency = 0

	// DependencySharedLibrary is a soname-based dependency.
	DependencySharedLibrary Dependency = 1

	// DependencyPkgConfig is a pkgconfig `.pc` dependency.
	DependencyPkgConfig Dependency = 2

	// DependencyInterpreter is a PT_INTERP-style interpreter.
	DependencyInterpreter Dependency = 3

	// DependencyCMake is a CMake module.
	DependencyCMake Dependency = 4

	// DependencyPython is a Python module.
	DependencyPython Dependency = 5

	// DependencyBinary is a binary in /usr/bin.
	DependencyBinary Dependency = 6

	// DependencySystemBinary is a binary in /usr/sbin.
	DependencySystemBinary Dependency = 7

	// DependencyPkgConfig32 is an emul32-compatible pkgconfig
	// dependency (lib32*.pc).
	DependencyPkgConfig32 Dependency = 8

	// DependencyUnknown is the sentinel for discriminants outside the
	// defined set.
	DependencyUnknown Dependency = 255
)

// Known reports whether the discriminant is in the defined set.
func (d Dependency) Known() bool {
	return d <= DependencyPkgConfig32
}

// String returns the human-readable dependency kind name.
func (d Dependency) String() string {
	switch d {
	case DependencyPackageName:
		return "PackageName"
	case DependencySharedLibrary:
		return "SharedLibrary"
	case DependencyPkgConfig:
		return "PkgConfig"
	case DependencyInterpreter:
		return "Interpreter"
	case DependencyCMake:
		return "CMake"
	case DependencyPython:
		return "Python"
	case DependencyBinary:
		return "Binary"
	case DependencySystemBinary:
		return "SystemBinary"
	case DependencyPkgConfig32:
		return "PkgConfig32"
	default:
		return "Unknown"
	}
}

// MetaValue is one typed Meta record value. The concrete types are
// Int8Value through Uint64Value, StringValue, DependencyValue,
// ProviderValue, and UnknownValue.
type MetaValue interface {
	// PrimitiveType returns the wire discriminant for this value.
	PrimitiveType() MetaKind
}

type (
	Int8Value   int8
	Uint8Value  uint8
	Int16Value  int16
	Uint16Value uint16
	Int32Value  int32
	Uint32Value uint32
	Int64Value  int64
	Uint64Value uint64

	// StringValue is a UTF-8 string value (u32 length prefix on the
	// wire, unlike the u16-prefixed short strings elsewhere).
	StringValue string

	// DependencyValue is a namespaced dependency name.
	DependencyValue struct {
		Kind Dependency
		Name string
	}

	// ProviderValue is a namespaced provider name.
	ProviderValue struct {
		Kind Dependency
		Name string
	}

	// UnknownValue carries the raw discriminant of a primitive type
	// outside the defined set. Such a value has no length prefix on
	// the wire, so its body cannot be decoded; the payload can only
	// be abandoned (its checksum still verifies over stored bytes).
	UnknownValue struct {
		Raw MetaKind
	}
)

func (v Int8Value) PrimitiveType() MetaKind { return MetaKindInt8 }
func (v Uint8Value) PrimitiveType() MetaKind { return MetaKindUint8 }
func (v Int16Value) PrimitiveType() MetaKind { return MetaKindInt16 }
func (v Uint16Value) PrimitiveType() MetaKind { return MetaKindUint16 }
func (v Int32Value) PrimitiveType() MetaKind { return MetaKindInt32 }
func (v Uint32Value) PrimitiveType() MetaKind { return MetaKindUint32 }
func (v Int64Value) PrimitiveType() MetaKind { return MetaKindInt64 }
func (v Uint64Value) PrimitiveType() MetaKind { return MetaKindUint64 }
func (v StringValue) PrimitiveType() MetaKind { return MetaKindString }
func (v DependencyValue) PrimitiveType() MetaKind { return MetaKindDependency }
func (v ProviderValue) PrimitiveType() MetaKind { return MetaKindProvider }
func (v UnknownValue) PrimitiveType() MetaKind { return v.Raw }

// MetaRecord is a single entry in the Meta payload.
type MetaRecord struct {
	Tag   MetaTag
	Value MetaValue
}

// sanitizeString trims trailing NUL bytes, which some producers pad
// strings with.
func sanitizeString(b []byte) string {
	return strings.TrimRight(string(b), "\x00")
}

func decodeMetaRecord(r io.Reader, sizeCap uint64) (MetaRecord, error) {
	var rec MetaRecord

	tag, err := readU16(r)
	if err != nil {
		return rec, err
	}
	rec.Tag = MetaTag(tag)

	kind, err := readU8(r)
	if err != nil {
		return rec, err
	}

	switch MetaKind(kind) {
	case MetaKindInt8:
		v, err := readU8(r)
		if err != nil {
			return rec, err
		}
		rec.Value = Int8Value(v)
	case MetaKindUint8:
		v, err := readU8(r)
		if err != nil {
			return rec, err
		}
		rec.Value = Uint8Value(v)
	case MetaKindInt16:
		v, err := readU16(r)
		if err != nil {
			return rec, err
		}
		rec.Value = Int16Value(v)
	case MetaKindUint16:
		v, err := readU16(r)
		if err != nil {
			return rec, err
		}
		rec.Value = Uint16Value(v)
	case MetaKindInt32:
		v, err := readU32(r)
		if err != nil {
			return rec, err
		}
		rec.Value = Int32Value(v)
	case MetaKindUint32:
		v, err := readU32(r)
		if err != nil {
			return rec, err
		}
		rec.Value = Uint32Value(v)
	case MetaKindInt64:
		v, err := readU64(r)
		if err != nil {
			return rec, err
		}
		rec.Value = Int64Value(v)
	case MetaKindUint64:
		v, err := readU64(r)
		if err != nil {
			return rec, err
		}
		rec.Value = Uint64Value(v)
	case MetaKindString:
		s, err := readMetaString(r, sizeCap)
		if err != nil {
			return rec, err
		}
		rec.Value = StringValue(s)
	case MetaKindDependency:
		d, name, err := readMetaDependency(r, sizeCap)
		if err != nil {
			return rec, err
		}
		rec.Value = DependencyValue{Kind: d, Name: name}
	case MetaKindProvider:
		d, name, err := readMetaDependency(r, sizeCap)
		if err != nil {
			return rec, err
		}
		rec.Value = ProviderValue{Kind: d, Name: name}
	default:
		rec.Value = UnknownValue{Raw: MetaKind(kind)}
	}

	return rec, nil
}

// readMetaString reads a u32-length-prefixed string.
func readMetaString(r io.Reader, sizeCap uint64) (string, error) {
	length, err := readU32(r)
	if err != nil {
		return "", err
	}
	buf, err := readBytes(r, uint64(length), sizeCap)
	if err != nil {
		return "", err
	}
	return sanitizeString(buf), nil
}

// readMetaDependency reads the sub-kind byte and the u32-length name
// shared by Dependency and Provider values.
func readMetaDependency(r io.Reader, sizeCap uint64) (Dependency, string, error) {
	kind, err := readU8(r)
	if err != nil {
		return 0, "", err
	}
	name, err := readMetaString(r, sizeCap)
	if err != nil {
		return 0, "", err
	}
	return Dependency(kind), name, nil
}

func encodeMetaRecord(w io.Writer, rec MetaRecord) error {
	if rec.Value == nil {
		return fmt.Errorf("meta record %s has no value: %w", rec.Tag, ErrInvalidArgument)
	}
	if err := writeU16(w, uint16(rec.Tag)); err != nil {
		return err
	}
	if err := writeU8(w, uint8(rec.Value.PrimitiveType())); err != nil {
		return err
	}

	switch v := rec.Value.(type) {
	case Int8Value:
		return writeU8(w, uint8(v))
	case Uint8Value:
		return writeU8(w, uint8(v))
	case Int16Value:
		return writeU16(w, uint16(v))
	case Uint16Value:
		return writeU16(w, uint16(v))
	case Int32Value:
		return writeU32(w, uint32(v))
	case Uint32Value:
		return writeU32(w, uint32(v))
	case Int64Value:
		return writeU64(w, uint64(v))
	case Uint64Value:
		return writeU64(w, uint64(v))
	case StringValue:
		return writeMetaString(w, string(v))
	case DependencyValue:
		if err := writeU8(w, uint8(v.Kind)); err != nil {
			return err
		}
		return writeMetaString(w, v.Name)
	case ProviderValue:
		if err := writeU8(w, uint8(v.Kind)); err != nil {
			return err
		}
		return writeMetaString(w, v.Name)
	case UnknownValue:
		// Nothing beyond the discriminant is known.
		return nil
	default:
		return fmt.Errorf("meta record %s has unsupported value type %T: %w", rec.Tag, rec.Value, ErrInvalidArgument)
	}
}

func writeMetaString(w io.Writer, s string) error {
	if err := writeU32(w, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

// NextMetaRecord yields the next record of a Meta payload. It returns
// io.EOF once all records have been produced, and
// *WrongPayloadKindError when called on a payload of another kind.
func (p *Payload) NextMetaRecord() (MetaRecord, error) {
	if err := p.nextRecordSetup(KindMeta); err != nil {
		return MetaRecord{}, err
	}
	rec, err := decodeMetaRecord(p.body, p.header.PlainSize)
	if err != nil {
		return MetaRecord{}, p.recordFailed(err)
	}
	p.recordDecoded()
	return rec, nil
}
