// Copyright 2026 AerynOS Developers
// SPDX-License-Identifier: MPL-2.0

// Package stone reads and writes the stone binary container format used
// by the AerynOS package toolchain (the boulder builder produces stone
// archives, the moss package manager consumes them).
//
// A stone archive is a 32-byte file header followed by a sequence of
// typed payloads. Each payload carries a fixed-width header (sizes,
// record count, kind, compression) and a body that is optionally
// zstd-compressed and always covered by an XXH3-64 checksum over the
// stored (possibly compressed) bytes. Payload kinds:
//
//   - Meta: tagged key/value package metadata (name, version,
//     dependencies, providers, ...).
//   - Layout: filesystem entries to materialize on installation, each
//     with UNIX ownership and mode bits. Regular files reference their
//     content by XXH3-128 digest.
//   - Index: byte ranges addressing file blobs inside the decompressed
//     Content payload, keyed by the same digests.
//   - Content: a single opaque stream of concatenated file blobs.
//   - Attributes: opaque length-prefixed key/value pairs.
//
// The package is organized in layers, each usable independently:
//
//   - Integrity: streaming XXH3-64 checksum accumulation over stored
//     payload bytes, and XXH3-128 content digests.
//
//   - Compression: transparent streaming zstd decode/encode behind the
//     payload compression tag, pass-through for uncompressed payloads.
//
//   - Reader: a pull-style streaming decoder. [Reader.NextPayload]
//     advances through payloads in archive order; each [Payload] yields
//     typed records one at a time, or extracts the Content payload onto
//     a file descriptor or through a bounded pull reader. Checksums are
//     verified when a payload has been fully consumed. Any decode error
//     is sticky: all subsequent calls on the reader return it.
//
//   - Writer: builds archives payload by payload, computing sizes,
//     checksums, and compression on the fly. Seekable sinks get their
//     file header back-filled on Close; non-seekable sinks must declare
//     the payload count up front.
//
// The C ABI for non-Go consumers lives in cmd/libstone.
//
// All multi-byte integers are big-endian on the wire. Unknown enum
// discriminants decode to Unknown sentinels rather than errors, so
// forward-compatible archives remain traversable; the raw wire value is
// preserved and re-encodes byte-identically.
package stone
