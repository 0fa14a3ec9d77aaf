// Copyright 2026 AerynOS Developers
// SPDX-License-Identifier: MPL-2.0

package stone

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/klauspost/compress/zstd"
)

func TestDecompressorPassThrough(t *testing.T) {
	data := []byte("stored verbatim")
	reader, release, err := newDecompressor(CompressionNone, bytes.NewReader(data))
	if err != nil {
		t.Fatalf("newDecompressor(None) failed: %v", err)
	}
	defer release()

	out, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if !bytes.Equal(out, data) {
		t.Fatal("pass-through altered the bytes")
	}
}

func TestDecompressorZstd(t *testing.T) {
	plain := bytes.Repeat([]byte("compressible payload data "), 1024)

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		t.Fatalf("zstd.NewWriter failed: %v", err)
	}
	stored := encoder.EncodeAll(plain, nil)
	encoder.Close()

	reader, release, err := newDecompressor(CompressionZstd, bytes.NewReader(stored))
	if err != nil {
		t.Fatalf("newDecompressor(Zstd) failed: %v", err)
	}
	defer release()

	out, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if !bytes.Equal(out, plain) {
		t.Fatalf("decoded %d bytes do not match %d-byte input", len(out), len(plain))
	}
}

func TestDecompressorCorruptFrame(t *testing.T) {
	reader, release, err := newDecompressor(CompressionZstd, bytes.NewReader([]byte("not a zstd frame")))
	if err != nil {
		t.Fatalf("newDecompressor failed: %v", err)
	}
	defer release()

	_, err = io.ReadAll(reader)
	var compressionErr *CompressionError
	if !errors.As(err, &compressionErr) {
		t.Fatalf("reading corrupt frame = %v, want CompressionError", err)
	}
}

func TestDecompressorUnknownTag(t *testing.T) {
	_, _, err := newDecompressor(Compression(9), bytes.NewReader(nil))
	var compressionErr *CompressionError
	if !errors.As(err, &compressionErr) {
		t.Fatalf("newDecompressor(9) = %v, want CompressionError", err)
	}
}

func TestCompressionNames(t *testing.T) {
	cases := []struct {
		compression Compression
		want        string
	}{
		{CompressionNone, "None"},
		{CompressionZstd, "Zstd"},
		{Compression(9), "Unknown"},
	}
	for _, c := range cases {
		if got := c.compression.String(); got != c.want {
			t.Errorf("Compression(%d).String() = %q, want %q", uint8(c.compression), got, c.want)
		}
	}
}
