// Copyright 2026 AerynOS Developers
// SPDX-License-Identifier: MPL-2.0

package stone

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/zeebo/xxh3"
)

// Digest is the 16-byte XXH3-128 content hash identifying a regular
// file blob inside the Content payload. The same digest appears in
// Regular layout records and in Index records. Digests are stored
// big-endian (the canonical XXH3 byte order).
type Digest [16]byte

// ComputeDigest returns the content digest of data.
func ComputeDigest(data []byte) Digest {
	return xxh3.Hash128(data).Bytes()
}

// String returns the hex-encoded form of a digest, as printed by
// inspection tooling.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// ParseDigest parses a 32-character hex string into a Digest.
func ParseDigest(hexString string) (Digest, error) {
	var d Digest
	decoded, err := hex.DecodeString(hexString)
	if err != nil {
		return d, fmt.Errorf("parsing content digest: %w", err)
	}
	if len(decoded) != len(d) {
		return d, fmt.Errorf("content digest is %d bytes, want %d", len(decoded), len(d))
	}
	copy(d[:], decoded)
	return d, nil
}

// DigestHasher computes a content digest over streamed writes. Used by
// producers that hash file blobs while copying them into the Content
// payload.
type DigestHasher struct {
	h *xxh3.Hasher
}

// NewDigestHasher returns a ready DigestHasher.
func NewDigestHasher() *DigestHasher {
	return &DigestHasher{h: xxh3.New()}
}

// Write feeds data into the digest. It never fails.
func (d *DigestHasher) Write(p []byte) (int, error) {
	return d.h.Write(p)
}

// Sum returns the digest of everything written so far.
func (d *DigestHasher) Sum() Digest {
	return d.h.Sum128().Bytes()
}

// Reset returns the hasher to its initial state.
func (d *DigestHasher) Reset() {
	d.h.Reset()
}

// checksum64 is the one-shot form of the payload framing checksum: the
// big-endian XXH3-64 of the stored payload body.
func checksum64(stored []byte) [8]byte {
	var sum [8]byte
	binary.BigEndian.PutUint64(sum[:], xxh3.Hash(stored))
	return sum
}

// checksumReader accumulates the framing checksum over every stored
// byte that passes through it, and counts them. It sits between the
// bounded raw stream and the decompressor, so the decompressor's
// internal buffering is transparent to checksum accounting.
type checksumReader struct {
	r    io.Reader
	hash *xxh3.Hasher
	n    uint64
}

func newChecksumReader(r io.Reader) *checksumReader {
	return &checksumReader{r: r, hash: xxh3.New()}
}

func (c *checksumReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.hash.Write(p[:n])
		c.n += uint64(n)
	}
	return n, err
}

// Sum returns the big-endian checksum of the bytes read so far.
func (c *checksumReader) Sum() [8]byte {
	var sum [8]byte
	binary.BigEndian.PutUint64(sum[:], c.hash.Sum64())
	return sum
}

// checksumWriter is the encode-side mirror: it hashes and counts
// stored bytes as the writer emits them.
type checksumWriter struct {
	w    io.Writer
	hash *xxh3.Hasher
	n    uint64
}

func newChecksumWriter(w io.Writer) *checksumWriter {
	return &checksumWriter{w: w, hash: xxh3.New()}
}

func (c *checksumWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	if n > 0 {
		c.hash.Write(p[:n])
		c.n += uint64(n)
	}
	return n, err
}

func (c *checksumWriter) Sum() [8]byte {
	var sum [8]byte
	binary.BigEndian.PutUint64(sum[:], c.hash.Sum64())
	return sum
}
