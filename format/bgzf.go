// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package format

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/klauspost/compress/flate"

	"github.com/cosnicolaou/gzp/checksum"
)

// ErrInvalidHeader is returned by CheckHeader when a block-framed format's
// magic bytes, extra-field flag, or subfield identifier do not match.
var ErrInvalidHeader = errors.New("format: invalid block header")

// ErrBlockTooLarge is returned by EncodeBlock when a BGZF block's total
// framed size would exceed the format's 64 KiB cap.
var ErrBlockTooLarge = errors.New("format: block exceeds format maximum size")

const (
	bgzfHeaderSize = 18
	bgzfMaxInput   = 65280 // uncompressed block input cap
	bgzfMaxTotal   = 65536 // framed output cap including header+trailer

	bgzfTrailerSize = 8
)

// bgzfEOF is the canonical 28-byte empty BGZF block appended to mark end
// of stream, reproduced
// bit-exact from the original Rust implementation (src/bgzf.rs).
var bgzfEOF = []byte{
	0x1f, 0x8b, 0x08, 0x04,
	0x00, 0x00, 0x00, 0x00,
	0x00, 0xff, 0x06, 0x00,
	0x42, 0x43, 0x02, 0x00,
	0x1b, 0x00, 0x03, 0x00,
	0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00,
}

type bgzfFormat struct{}

func newBGZF() Format { return bgzfFormat{} }

func (bgzfFormat) Kind() Kind                         { return BGZF }
func (bgzfFormat) NeedsDictionary() bool              { return false }
func (bgzfFormat) BlockFramed() bool                  { return true }
func (bgzfFormat) DefaultBlockSize() int              { return bgzfMaxInput }
func (bgzfFormat) MaxBlockSize() int                  { return bgzfMaxInput }
func (bgzfFormat) RunningChecksumKind() checksum.Kind { return checksum.None }
func (bgzfFormat) BlockChecksumKind() checksum.Kind   { return checksum.CRC32 }

// Header is empty: every BGZF block carries its own complete header, there
// is no separate stream-level header.
func (bgzfFormat) Header(level int) []byte { return nil }

// Footer appends the canonical empty BGZF EOF block; the running checksum
// is unused (BlockFramed formats track no stream-level checksum).
func (bgzfFormat) Footer(checksum.Checksum) []byte {
	out := make([]byte, len(bgzfEOF))
	copy(out, bgzfEOF)
	return out
}

func (bgzfFormat) NewCompressor(level int) Compressor {
	return &blockFramedCompressor{level: level, bgzf: true}
}

func (bgzfFormat) HeaderSize() int { return bgzfHeaderSize }

// CheckHeader validates the fixed gzip prefix, the FEXTRA flag, XLEN=6 and
// the "BC" subfield identifier at bytes 12-13 (not 13-14).
func (bgzfFormat) CheckHeader(header []byte) error {
	return checkBlockHeader(header, bgzfHeaderSize, 6, 'B', 'C')
}

// BlockSize returns BSIZE+1, where BSIZE is the little-endian uint16 at
// header bytes 16-17.
func (bgzfFormat) BlockSize(header []byte) (int, error) {
	if len(header) < bgzfHeaderSize {
		return 0, fmt.Errorf("%w: short header", ErrInvalidHeader)
	}
	bsize := binary.LittleEndian.Uint16(header[16:18])
	return int(bsize) + 1, nil
}

func (bgzfFormat) NewBlockDecompressor() BlockDecompressor {
	return &blockFramedDecompressor{}
}

// blockFramedCompressor implements Compressor for BGZF and MGZIP: both
// frame every block independently with a deflate-Finish payload, a CRC32
// of the uncompressed bytes, and the uncompressed length, differing only
// in header layout and whether there is a 64 KiB cap.
type blockFramedCompressor struct {
	level int
	bgzf  bool // true for BGZF (18-byte header, 64KiB cap), false for MGZIP
}

func (c *blockFramedCompressor) EncodeBlock(input, _ []byte, last bool) ([]byte, error) {
	if c.bgzf && len(input) > bgzfMaxInput {
		return nil, fmt.Errorf("%w: %d bytes exceeds bgzf input cap of %d", ErrBlockTooLarge, len(input), bgzfMaxInput)
	}

	var payload bytes.Buffer
	w, err := flate.NewWriter(&payload, c.level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(input); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	crc := crc32.ChecksumIEEE(input)
	headerSize := bgzfHeaderSize
	if !c.bgzf {
		headerSize = mgzipHeaderSize
	}
	total := headerSize + payload.Len() + bgzfTrailerSize
	if c.bgzf && total > bgzfMaxTotal {
		return nil, fmt.Errorf("%w: framed size %d exceeds bgzf cap of %d", ErrBlockTooLarge, total, bgzfMaxTotal)
	}

	out := make([]byte, 0, total)
	if c.bgzf {
		out = appendBGZFHeader(out, c.level, total)
	} else {
		out = appendMGZIPHeader(out, c.level, total)
	}
	out = append(out, payload.Bytes()...)
	var trailer [bgzfTrailerSize]byte
	binary.LittleEndian.PutUint32(trailer[0:4], crc)
	binary.LittleEndian.PutUint32(trailer[4:8], uint32(len(input)))
	out = append(out, trailer[:]...)
	return out, nil
}

func appendBGZFHeader(dst []byte, level, total int) []byte {
	var h [bgzfHeaderSize]byte
	h[0], h[1], h[2], h[3] = 0x1f, 0x8b, 0x08, 0x04
	h[8] = xflForLevel(level)
	h[9] = 0xff
	binary.LittleEndian.PutUint16(h[10:12], 6) // XLEN
	h[12], h[13] = 'B', 'C'
	binary.LittleEndian.PutUint16(h[14:16], 2) // SLEN
	binary.LittleEndian.PutUint16(h[16:18], uint16(total-1))
	return append(dst, h[:]...)
}

// checkBlockHeader validates the shared BGZF/MGZIP prefix: gzip magic,
// deflate compression method, the FEXTRA flag (bit 2 of FLG), XLEN, and
// the two-byte subfield identifier at bytes 12-13.
func checkBlockHeader(header []byte, size int, xlen int, si1, si2 byte) error {
	if len(header) < size {
		return fmt.Errorf("%w: short header (%d bytes)", ErrInvalidHeader, len(header))
	}
	if header[0] != 0x1f || header[1] != 0x8b {
		return fmt.Errorf("%w: bad magic %x %x", ErrInvalidHeader, header[0], header[1])
	}
	if header[2] != 0x08 {
		return fmt.Errorf("%w: bad compression method %x", ErrInvalidHeader, header[2])
	}
	if header[3]&0x04 == 0 {
		return fmt.Errorf("%w: FEXTRA flag not set", ErrInvalidHeader)
	}
	if int(binary.LittleEndian.Uint16(header[10:12])) != xlen {
		return fmt.Errorf("%w: unexpected XLEN", ErrInvalidHeader)
	}
	if header[12] != si1 || header[13] != si2 {
		return fmt.Errorf("%w: unexpected subfield id %c%c", ErrInvalidHeader, header[12], header[13])
	}
	return nil
}

// blockFramedDecompressor implements BlockDecompressor for both BGZF and
// MGZIP: the payload is always a complete DEFLATE stream (Finish-flushed)
// followed by an 8-byte CRC32+size trailer that the caller has already
// split off before calling DecodeBlock.
type blockFramedDecompressor struct{}

func (d *blockFramedDecompressor) DecodeBlock(payload []byte, wantCRC uint32, originalSize int) ([]byte, error) {
	if originalSize == 0 {
		return nil, nil
	}
	r := flate.NewReader(bytes.NewReader(payload))
	defer r.Close()
	out := make([]byte, originalSize)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("format: decompressing block: %w", err)
	}
	if crc := crc32.ChecksumIEEE(out); crc != wantCRC {
		return nil, &ChecksumMismatchError{Expected: wantCRC, Found: crc}
	}
	return out, nil
}

// ChecksumMismatchError reports a block whose decompressed CRC32 does not
// match the trailer's declared value.
type ChecksumMismatchError struct {
	Expected, Found uint32
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("format: checksum mismatch: expected %#08x, found %#08x", e.Expected, e.Found)
}
