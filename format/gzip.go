// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package format

import (
	"encoding/binary"

	"github.com/cosnicolaou/gzp/checksum"
)

// gzip extra-flags byte, set on the fixed 10-byte header to record the
// compression level used.
const (
	xflBest    = 2
	xflFastest = 4
	xflDefault = 0
)

func xflForLevel(level int) byte {
	switch {
	case level >= 9:
		return xflBest
	case level >= 0 && level <= 1:
		return xflFastest
	default:
		return xflDefault
	}
}

type gzipFormat struct{}

func newGzip() Format { return gzipFormat{} }

func (gzipFormat) Kind() Kind                         { return GZIP }
func (gzipFormat) NeedsDictionary() bool              { return true }
func (gzipFormat) BlockFramed() bool                  { return false }
func (gzipFormat) DefaultBlockSize() int              { return defaultBlockSize }
func (gzipFormat) MaxBlockSize() int                  { return 0 }
func (gzipFormat) RunningChecksumKind() checksum.Kind { return checksum.CRC32 }
func (gzipFormat) BlockChecksumKind() checksum.Kind   { return checksum.CRC32 }

// Header returns the fixed 10-byte gzip header:
// 1f 8b 08 00 00 00 00 00 XF FF
func (gzipFormat) Header(level int) []byte {
	return []byte{0x1f, 0x8b, 0x08, 0x00, 0x00, 0x00, 0x00, 0x00, xflForLevel(level), 0xff}
}

// Footer returns the 8-byte gzip trailer: CRC32 of the original bytes
// followed by the original length modulo 2^32, both little-endian.
func (gzipFormat) Footer(running checksum.Checksum) []byte {
	var out [8]byte
	binary.LittleEndian.PutUint32(out[0:4], running.Sum())
	binary.LittleEndian.PutUint32(out[4:8], running.Amount())
	return out[:]
}

func (gzipFormat) NewCompressor(level int) Compressor { return newDeflateCompressor(level) }
