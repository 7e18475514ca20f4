// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package gzp_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cosnicolaou/gzp"
	"github.com/cosnicolaou/gzp/format"
)

// TestBlockFramedIndependence covers the independent-block invariant for
// BGZF/MGZIP: concatenating only the first and third of three blocks
// (skipping the middle one) still decodes each surviving block correctly,
// since no block depends on another's dictionary state.
func TestBlockFramedIndependence(t *testing.T) {
	f, err := format.New(format.MGZIP)
	require.NoError(t, err)
	bf := f.(format.BlockFramedFormat)
	c := f.NewCompressor(6)

	blocks := make([][]byte, 3)
	inputs := [][]byte{
		bytes.Repeat([]byte("first block "), 200),
		bytes.Repeat([]byte("second block "), 200),
		bytes.Repeat([]byte("third block "), 200),
	}
	for i, in := range inputs {
		b, err := c.EncodeBlock(in, nil, false)
		require.NoError(t, err)
		blocks[i] = b
	}

	var spliced bytes.Buffer
	spliced.Write(blocks[0])
	spliced.Write(blocks[2])

	r, err := gzp.NewReader(context.Background(), &spliced, format.MGZIP, gzp.NumThreads(2))
	require.NoError(t, err)
	var decoded bytes.Buffer
	_, err = decoded.ReadFrom(r)
	require.NoError(t, err)
	require.NoError(t, r.Finish())

	var want bytes.Buffer
	want.Write(inputs[0])
	want.Write(inputs[2])
	require.Equal(t, want.Bytes(), decoded.Bytes())
}

// TestBlockFramedChecksumMismatch covers a corrupted block's CRC32 being
// caught and surfaced as a ChecksumError rather than silently accepted.
func TestBlockFramedChecksumMismatch(t *testing.T) {
	f, err := format.New(format.MGZIP)
	require.NoError(t, err)
	c := f.NewCompressor(6)

	input := bytes.Repeat([]byte("corrupt me "), 200)
	block, err := c.EncodeBlock(input, nil, false)
	require.NoError(t, err)

	// Flip a byte inside the trailer's CRC32 field (last 8 bytes are the
	// trailer; first 4 of those are the CRC32).
	corrupt := append([]byte(nil), block...)
	corrupt[len(corrupt)-8] ^= 0xff

	r, err := gzp.NewReader(context.Background(), bytes.NewReader(corrupt), format.MGZIP, gzp.NumThreads(1))
	require.NoError(t, err)
	var decoded bytes.Buffer
	_, err = decoded.ReadFrom(r)
	require.Error(t, err)
	var checkErr *gzp.ChecksumError
	require.ErrorAs(t, err, &checkErr)
}

// TestBGZFEOFStopsReader covers the BGZF-specific EOF sentinel: a reader
// must stop cleanly at the empty final block rather than erroring on a
// zero-length payload.
func TestBGZFEOFStopsReader(t *testing.T) {
	f, err := format.New(format.BGZF)
	require.NoError(t, err)

	var out bytes.Buffer
	w, err := gzp.NewWriter(context.Background(), &out, format.BGZF, gzp.NumThreads(1))
	require.NoError(t, err)
	_, err = w.Write(bytes.Repeat([]byte("bgzf eof test "), 500))
	require.NoError(t, err)
	require.NoError(t, w.Finish())

	eofSentinel := f.Footer(nil)
	require.True(t, bytes.HasSuffix(out.Bytes(), eofSentinel))

	r, err := gzp.NewReader(context.Background(), &out, format.BGZF, gzp.NumThreads(2))
	require.NoError(t, err)
	var decoded bytes.Buffer
	_, err = decoded.ReadFrom(r)
	require.NoError(t, err)
	require.NoError(t, r.Finish())
}

// TestConcatenatedStreamsDecode covers reading multiple independently
// finished block-framed streams written back to back into one source,
// including an empty stream in the middle: each stream's own EOF sentinel
// (BGZF) or trailing block (MGZIP) must not stop the scan early, only the
// underlying source's real io.EOF should.
func TestConcatenatedStreamsDecode(t *testing.T) {
	for _, kind := range []format.Kind{format.BGZF, format.MGZIP} {
		kind := kind
		t.Run(kind.String(), func(t *testing.T) {
			streams := [][]byte{
				bytes.Repeat([]byte("first stream "), 300),
				{},
				bytes.Repeat([]byte("third stream "), 300),
			}

			var concatenated bytes.Buffer
			for _, in := range streams {
				w, err := gzp.NewWriter(context.Background(), &concatenated, kind, gzp.NumThreads(2))
				require.NoError(t, err)
				_, err = w.Write(in)
				require.NoError(t, err)
				require.NoError(t, w.Finish())
			}

			r, err := gzp.NewReader(context.Background(), &concatenated, kind, gzp.NumThreads(2))
			require.NoError(t, err)
			var decoded bytes.Buffer
			_, err = decoded.ReadFrom(r)
			require.NoError(t, err)
			require.NoError(t, r.Finish())

			var want bytes.Buffer
			for _, in := range streams {
				want.Write(in)
			}
			require.Equal(t, want.Bytes(), decoded.Bytes())
		})
	}
}
