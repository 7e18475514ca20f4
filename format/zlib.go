// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package format

import (
	"encoding/binary"

	"github.com/cosnicolaou/gzp/checksum"
)

type zlibFormat struct{}

func newZlib() Format { return zlibFormat{} }

func (zlibFormat) Kind() Kind                         { return Zlib }
func (zlibFormat) NeedsDictionary() bool              { return true }
func (zlibFormat) BlockFramed() bool                  { return false }
func (zlibFormat) DefaultBlockSize() int              { return defaultBlockSize }
func (zlibFormat) MaxBlockSize() int                  { return 0 }
func (zlibFormat) RunningChecksumKind() checksum.Kind { return checksum.Adler32 }
func (zlibFormat) BlockChecksumKind() checksum.Kind   { return checksum.Adler32 }

// Header returns the 2-byte big-endian zlib header: 0x78 (CMF, 32 KiB
// window, DEFLATE) combined with an FLEVEL hint derived from level and an
// FCHECK adjustment that makes the 16-bit value a multiple of 31, per
// RFC 1950.
func (zlibFormat) Header(level int) []byte {
	var flevel uint16
	switch {
	case level < 0:
		flevel = 2 // default compression hint
	case level < 2:
		flevel = 0
	case level < 6:
		flevel = 1
	case level == 6:
		flevel = 2
	default:
		flevel = 3
	}
	header := uint16(0x7800) | (flevel << 6)
	header += 31 - (header % 31)
	var out [2]byte
	binary.BigEndian.PutUint16(out[:], header)
	return out[:]
}

// Footer returns the 4-byte big-endian Adler-32 of the original bytes.
func (zlibFormat) Footer(running checksum.Checksum) []byte {
	var out [4]byte
	binary.BigEndian.PutUint32(out[:], running.Sum())
	return out[:]
}

func (zlibFormat) NewCompressor(level int) Compressor { return newDeflateCompressor(level) }
