// Copyright 2026 AerynOS Developers
// SPDX-License-Identifier: MPL-2.0

package stone

import (
	"bytes"
	"testing"
)

func TestMetaValueRoundtrip(t *testing.T) {
	cases := []struct {
		name  string
		value MetaValue
	}{
		{"int8", Int8Value(-5)},
		{"uint8", Uint8Value(200)},
		{"int16", Int16Value(-1234)},
		{"uint16", Uint16Value(54321)},
		{"int32", Int32Value(-123456)},
		{"uint32", Uint32Value(3000000000)},
		{"int64", Int64Value(-1)},
		{"uint64", Uint64Value(1 << 62)},
		{"string", StringValue("hello world")},
		{"empty string", StringValue("")},
		{"dependency", DependencyValue{Kind: DependencyPkgConfig, Name: "zlib"}},
		{"provider", ProviderValue{Kind: DependencyPackageName, Name: "nano"}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			var buffer bytes.Buffer
			record := MetaRecord{Tag: MetaTagName, Value: c.value}
			if err := encodeMetaRecord(&buffer, record); err != nil {
				t.Fatalf("encode failed: %v", err)
			}
			decoded, err := decodeMetaRecord(&buffer, uint64(buffer.Len()))
			if err != nil {
				t.Fatalf("decode failed: %v", err)
			}
			if decoded.Value != c.value {
				t.Errorf("decoded value = %#v, want %#v", decoded.Value, c.value)
			}
		})
	}
}

func TestMetaUnknownTagIsPreserved(t *testing.T) {
	// A tag outside the defined set decodes as an Unknown sentinel
	// but keeps its wire value, so re-encoding reproduces the
	// original bytes.
	archive := buildArchive(t, func(w *Writer) error {
		return w.AddMetaPayload([]MetaRecord{
			{Tag: MetaTag(0xABCD), Value: Uint32Value(42)},
		})
	}, WithCompression(CompressionNone))

	reader, err := NewReaderFromBytes(archive)
	if err != nil {
		t.Fatalf("NewReaderFromBytes failed: %v", err)
	}
	payload, err := reader.NextPayload()
	if err != nil {
		t.Fatalf("NextPayload failed: %v", err)
	}
	record, err := payload.NextMetaRecord()
	if err != nil {
		t.Fatalf("NextMetaRecord failed: %v", err)
	}

	if record.Tag.Known() {
		t.Errorf("MetaTag(%#x).Known() = true", uint16(record.Tag))
	}
	if record.Tag.String() != "Unknown" {
		t.Errorf("tag name = %q, want Unknown", record.Tag.String())
	}
	if record.Tag != MetaTag(0xABCD) {
		t.Errorf("raw tag = %#x, want 0xabcd", uint16(record.Tag))
	}
	if value, ok := record.Value.(Uint32Value); !ok || value != 42 {
		t.Errorf("value = %#v, want Uint32Value(42)", record.Value)
	}

	// Re-encode the decoded record: byte-identical archive.
	rewritten := buildArchive(t, func(w *Writer) error {
		return w.AddMetaPayload([]MetaRecord{record})
	}, WithCompression(CompressionNone))
	if !bytes.Equal(rewritten, archive) {
		t.Fatal("re-encoded archive differs from original")
	}
}

func TestMetaStringSanitation(t *testing.T) {
	// Some producers NUL-pad strings; trailing NULs are trimmed.
	var buffer bytes.Buffer
	if err := writeU16(&buffer, uint16(MetaTagName)); err != nil {
		t.Fatal(err)
	}
	if err := writeU8(&buffer, uint8(MetaKindString)); err != nil {
		t.Fatal(err)
	}
	if err := writeU32(&buffer, 7); err != nil {
		t.Fatal(err)
	}
	buffer.WriteString("abc\x00\x00\x00\x00")

	record, err := decodeMetaRecord(&buffer, uint64(buffer.Len()))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if value, ok := record.Value.(StringValue); !ok || string(value) != "abc" {
		t.Errorf("value = %#v, want StringValue(\"abc\")", record.Value)
	}
}

func TestMetaUnknownPrimitiveType(t *testing.T) {
	// An out-of-set primitive type has no decodable body; the record
	// carries the raw discriminant and nothing else.
	var buffer bytes.Buffer
	if err := writeU16(&buffer, uint16(MetaTagName)); err != nil {
		t.Fatal(err)
	}
	if err := writeU8(&buffer, 99); err != nil {
		t.Fatal(err)
	}

	record, err := decodeMetaRecord(&buffer, 16)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	unknown, ok := record.Value.(UnknownValue)
	if !ok {
		t.Fatalf("value = %#v, want UnknownValue", record.Value)
	}
	if unknown.Raw != MetaKind(99) {
		t.Errorf("raw primitive type = %d, want 99", unknown.Raw)
	}
	if unknown.PrimitiveType().Known() {
		t.Error("unknown primitive type reports Known")
	}
}

func TestMetaLengthBeyondPayloadIsRejected(t *testing.T) {
	// A string length prefix larger than the payload's plain size
	// must not drive the allocator.
	var buffer bytes.Buffer
	if err := writeU16(&buffer, uint16(MetaTagName)); err != nil {
		t.Fatal(err)
	}
	if err := writeU8(&buffer, uint8(MetaKindString)); err != nil {
		t.Fatal(err)
	}
	if err := writeU32(&buffer, 0xFFFFFFFF); err != nil {
		t.Fatal(err)
	}

	if _, err := decodeMetaRecord(&buffer, 64); err == nil {
		t.Fatal("decode with absurd length succeeded")
	}
}

func TestDependencyNames(t *testing.T) {
	cases := []struct {
		dependency Dependency
		want       string
	}{
		{DependencyPackageName, "PackageName"},
		{DependencySharedLibrary, "SharedLibrary"},
		{DependencyPkgConfig, "PkgConfig"},
		{DependencyInterpreter, "Interpreter"},
		{DependencyCMake, "CMake"},
		{DependencyPython, "Python"},
		{DependencyBinary, "Binary"},
		{DependencySystemBinary, "SystemBinary"},
		{DependencyPkgConfig32, "PkgConfig32"},
		{Dependency(99), "Unknown"},
	}
	for _, c := range cases {
		if got := c.dependency.String(); got != c.want {
			t.Errorf("Dependency(%d).String() = %q, want %q", uint8(c.dependency), got, c.want)
		}
	}
}
