// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package format

import (
	"bytes"

	"github.com/klauspost/compress/flate"

	"github.com/cosnicolaou/gzp/checksum"
)

const defaultBlockSize = 128 * 1024

type deflateFormat struct{}

func newDeflate() Format { return deflateFormat{} }

func (deflateFormat) Kind() Kind                               { return Deflate }
func (deflateFormat) NeedsDictionary() bool                    { return true }
func (deflateFormat) BlockFramed() bool                        { return false }
func (deflateFormat) DefaultBlockSize() int                    { return defaultBlockSize }
func (deflateFormat) MaxBlockSize() int                        { return 0 }
func (deflateFormat) RunningChecksumKind() checksum.Kind       { return checksum.None }
func (deflateFormat) BlockChecksumKind() checksum.Kind         { return checksum.None }
func (deflateFormat) Header(level int) []byte                 { return nil }
func (deflateFormat) Footer(running checksum.Checksum) []byte { return nil }
func (deflateFormat) NewCompressor(level int) Compressor       { return newDeflateCompressor(level) }

// deflateCompressor wraps a single *flate.Writer and reuses it across
// blocks via ResetDict, matching the reset-between-blocks contract of
// the pool pattern used by klauspost/pgzip's
// compressBlock (ResetDict(dest, prevTail); Write; Flush or Close).
type deflateCompressor struct {
	level int
	w     *flate.Writer
}

func newDeflateCompressor(level int) *deflateCompressor {
	w, _ := flate.NewWriter(new(bytes.Buffer), level)
	return &deflateCompressor{level: level, w: w}
}

func (c *deflateCompressor) EncodeBlock(input, dict []byte, last bool) ([]byte, error) {
	var buf bytes.Buffer
	c.w.ResetDict(&buf, dict)
	if _, err := c.w.Write(input); err != nil {
		return nil, err
	}
	var err error
	if last {
		err = c.w.Close()
	} else {
		err = c.w.Flush()
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
