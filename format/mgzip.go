// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package format

import (
	"encoding/binary"
	"fmt"

	"github.com/cosnicolaou/gzp/checksum"
)

const mgzipHeaderSize = 20

type mgzipFormat struct{}

func newMGZIP() Format { return mgzipFormat{} }

func (mgzipFormat) Kind() Kind                         { return MGZIP }
func (mgzipFormat) NeedsDictionary() bool              { return false }
func (mgzipFormat) BlockFramed() bool                  { return true }
func (mgzipFormat) DefaultBlockSize() int              { return defaultBlockSize }
func (mgzipFormat) MaxBlockSize() int                  { return 0 }
func (mgzipFormat) RunningChecksumKind() checksum.Kind { return checksum.None }
func (mgzipFormat) BlockChecksumKind() checksum.Kind   { return checksum.CRC32 }

// Header is empty: every MGZIP block carries its own complete header.
func (mgzipFormat) Header(level int) []byte { return nil }

// Footer is empty: MGZIP has no stream-level trailer, unlike BGZF's EOF
// sentinel block.
func (mgzipFormat) Footer(checksum.Checksum) []byte { return nil }

func (mgzipFormat) NewCompressor(level int) Compressor {
	return &blockFramedCompressor{level: level, bgzf: false}
}

func (mgzipFormat) HeaderSize() int { return mgzipHeaderSize }

// CheckHeader validates the fixed gzip prefix, the FEXTRA flag, XLEN=8 and
// the "IG" subfield identifier at bytes 12-13.
func (mgzipFormat) CheckHeader(header []byte) error {
	return checkBlockHeader(header, mgzipHeaderSize, 8, 'I', 'G')
}

// BlockSize returns the little-endian uint32 total block size at header
// bytes 16-19.
func (mgzipFormat) BlockSize(header []byte) (int, error) {
	if len(header) < mgzipHeaderSize {
		return 0, fmt.Errorf("%w: short header", ErrInvalidHeader)
	}
	return int(binary.LittleEndian.Uint32(header[16:20])), nil
}

func (mgzipFormat) NewBlockDecompressor() BlockDecompressor {
	return &blockFramedDecompressor{}
}

func appendMGZIPHeader(dst []byte, level, total int) []byte {
	var h [mgzipHeaderSize]byte
	h[0], h[1], h[2], h[3] = 0x1f, 0x8b, 0x08, 0x04
	h[8] = xflForLevel(level)
	h[9] = 0xff
	binary.LittleEndian.PutUint16(h[10:12], 8) // XLEN
	h[12], h[13] = 'I', 'G'
	binary.LittleEndian.PutUint16(h[14:16], 4) // SLEN
	binary.LittleEndian.PutUint32(h[16:20], uint32(total))
	return append(dst, h[:]...)
}
