// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package format implements the per-wire-format contract. A Format is a
// stateless value carrying the constants and pure functions the parallel
// pipeline needs to drive any supported wire format without knowing its
// framing rules: gzip, zlib, raw deflate, BGZF and MGZIP (block-framed),
// and Snappy.
package format

import (
	"fmt"

	"github.com/cosnicolaou/gzp/checksum"
)

// Kind names a supported wire format.
type Kind int

const (
	GZIP Kind = iota
	Zlib
	Deflate
	BGZF
	MGZIP
	Snappy
)

func (k Kind) String() string {
	switch k {
	case GZIP:
		return "gzip"
	case Zlib:
		return "zlib"
	case Deflate:
		return "deflate"
	case BGZF:
		return "bgzf"
	case MGZIP:
		return "mgzip"
	case Snappy:
		return "snappy"
	default:
		return fmt.Sprintf("format.Kind(%d)", int(k))
	}
}

// Compressor is the per-worker, per-block encode primitive.
// Implementations are never shared between workers: each worker owns
// exactly one Compressor for the lifetime of the stream and reuses it,
// block after block, via its reset-between-blocks contract.
type Compressor interface {
	// EncodeBlock compresses input, optionally primed with dict (the
	// trailing DictionarySize bytes of the previous block, or nil), and
	// returns the bytes to write to the sink for this block. last
	// indicates the final block of the stream, which for streaming
	// formats selects a Finish flush instead of a Sync flush.
	EncodeBlock(input, dict []byte, last bool) ([]byte, error)
}

// BlockDecompressor is the per-worker decode primitive for block-framed
// formats.
type BlockDecompressor interface {
	// DecodeBlock decompresses the DEFLATE payload found between a
	// block's header and its 8-byte trailer (CRC32 + original size,
	// both little-endian), verifying the CRC32 against the trailer.
	DecodeBlock(payload []byte, wantCRC uint32, originalSize int) ([]byte, error)
}

// Format is the complete per-format contract. Streaming formats (gzip,
// zlib, raw deflate) only use the first group of methods; block-framed
// formats (BGZF, MGZIP) additionally implement the header-scanning group.
// Snappy is a streaming format with an empty header/footer.
type Format interface {
	Kind() Kind

	// NeedsDictionary reports whether consecutive blocks should be primed
	// with a 32 KiB dictionary carried over from the previous block, to
	// preserve compression ratio across the block boundary. True for
	// gzip/zlib/raw-deflate; false for BGZF/MGZIP/Snappy, whose blocks
	// are independently framed and decodable on their own.
	NeedsDictionary() bool

	// BlockFramed reports whether every block this format emits is
	// self-contained (its own header, payload and trailer), making the
	// parallel block decompressor applicable. True only
	// for BGZF and MGZIP.
	BlockFramed() bool

	// DefaultBlockSize is the block size used when the caller does not
	// override it.
	DefaultBlockSize() int

	// MaxBlockSize is the largest permitted uncompressed block size, or 0
	// if the format imposes no cap beyond the caller's configuration.
	MaxBlockSize() int

	// RunningChecksumKind is the checksum combined, in block order, into
	// the whole-stream trailer. CRC32 for gzip, Adler32 for zlib, None
	// for raw deflate, Snappy, and BGZF/MGZIP (whose per-block CRC32 is
	// carried in each block's own trailer instead, see BlockChecksumKind).
	RunningChecksumKind() checksum.Kind

	// BlockChecksumKind is the checksum computed over each block's
	// uncompressed bytes and folded into RunningChecksumKind via
	// Checksum.Combine. For BGZF/MGZIP this is also the per-block CRC32
	// written into that block's own trailer.
	BlockChecksumKind() checksum.Kind

	// Header returns the bytes written once, before any block payload.
	// Empty for BGZF/MGZIP, whose framing lives entirely in each block.
	Header(level int) []byte

	// Footer returns the bytes written once, after every block payload,
	// given the RunningChecksumKind checksum folded in order across all
	// blocks. For BGZF, Footer additionally appends the canonical EOF
	// sentinel block.
	Footer(running checksum.Checksum) []byte

	// NewCompressor creates a per-worker Compressor for the given level.
	NewCompressor(level int) Compressor
}

// BlockFramedFormat is implemented by formats where BlockFramed() is true
// (BGZF, MGZIP), adding the header-scanning primitives the parallel
// decompressor needs.
type BlockFramedFormat interface {
	Format

	// HeaderSize is the fixed size, in bytes, of a block's header.
	HeaderSize() int

	// CheckHeader validates a block's header (magic bytes, extra-field
	// flag, subfield identifier) and returns a descriptive error if it is
	// not recognized.
	CheckHeader(header []byte) error

	// BlockSize returns the total size, in bytes, of the block whose
	// header has already been validated by CheckHeader — header, payload
	// and trailer included.
	BlockSize(header []byte) (int, error)

	// NewBlockDecompressor creates a per-worker BlockDecompressor.
	NewBlockDecompressor() BlockDecompressor
}

// New returns the Format implementation for kind.
func New(kind Kind) (Format, error) {
	switch kind {
	case GZIP:
		return newGzip(), nil
	case Zlib:
		return newZlib(), nil
	case Deflate:
		return newDeflate(), nil
	case BGZF:
		return newBGZF(), nil
	case MGZIP:
		return newMGZIP(), nil
	case Snappy:
		return newSnappy(), nil
	default:
		return nil, fmt.Errorf("format: unknown format %v", kind)
	}
}
