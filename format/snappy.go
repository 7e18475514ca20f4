// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package format

import (
	"bytes"

	"github.com/golang/snappy"

	"github.com/cosnicolaou/gzp/checksum"
)

type snappyFormat struct{}

func newSnappy() Format { return snappyFormat{} }

func (snappyFormat) Kind() Kind                         { return Snappy }
func (snappyFormat) NeedsDictionary() bool              { return false }
func (snappyFormat) BlockFramed() bool                  { return false }
func (snappyFormat) DefaultBlockSize() int              { return defaultBlockSize }
func (snappyFormat) MaxBlockSize() int                  { return 0 }
func (snappyFormat) RunningChecksumKind() checksum.Kind { return checksum.None }
func (snappyFormat) BlockChecksumKind() checksum.Kind   { return checksum.None }

// Header is empty: the Snappy frame encoder writes its own stream
// identifier chunk as part of each block's frame.
func (snappyFormat) Header(level int) []byte { return nil }

// Footer is empty: the Snappy frame format has no trailer. Finish still
// dispatches a final, possibly empty, block so the pipeline drains
// uniformly across formats.
func (snappyFormat) Footer(checksum.Checksum) []byte { return nil }

func (snappyFormat) NewCompressor(int) Compressor { return &snappyCompressor{} }

// snappyCompressor emits one complete, independent Snappy frame stream per
// block (golang/snappy's Writer.Reset rewrites the stream identifier chunk
// each time), producing one frame per block. A standard
// snappy.Reader decodes a concatenation of such frames transparently: the
// frame format permits a stream identifier chunk to reappear anywhere in
// the stream, not only at offset zero.
type snappyCompressor struct {
	w *snappy.Writer
}

func (c *snappyCompressor) EncodeBlock(input, _ []byte, _ bool) ([]byte, error) {
	var buf bytes.Buffer
	if c.w == nil {
		c.w = snappy.NewBufferedWriter(&buf)
	} else {
		c.w.Reset(&buf)
	}
	if _, err := c.w.Write(input); err != nil {
		return nil, err
	}
	if err := c.w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
