// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package format_test

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"testing"

	gosnappy "github.com/golang/snappy"
	"github.com/stretchr/testify/require"

	"github.com/cosnicolaou/gzp/checksum"
	"github.com/cosnicolaou/gzp/format"
)

// TestGzipHeaderBytes covers the fixed 10-byte gzip header at default
// level.
func TestGzipHeaderBytes(t *testing.T) {
	f, err := format.New(format.GZIP)
	require.NoError(t, err)
	got := f.Header(3)
	want := []byte{0x1f, 0x8b, 0x08, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xff}
	require.Equal(t, want, got)
}

func TestGzipHeaderLevelFlags(t *testing.T) {
	f, err := format.New(format.GZIP)
	require.NoError(t, err)
	require.Equal(t, byte(2), f.Header(9)[8])
	require.Equal(t, byte(4), f.Header(0)[8])
	require.Equal(t, byte(0), f.Header(5)[8])
}

// TestGzipRoundTrip compresses with the format layer's per-block framing
// directly (without the parallel writer, to isolate the format layer) and
// decodes with the standard library's compress/gzip.
func TestGzipRoundTrip(t *testing.T) {
	f, err := format.New(format.GZIP)
	require.NoError(t, err)

	input := []byte("This is a first test line\nThis is a second test line\n")
	c := f.NewCompressor(3)

	var out bytes.Buffer
	out.Write(f.Header(3))
	payload, err := c.EncodeBlock(input, nil, true)
	require.NoError(t, err)
	out.Write(payload)

	check := checksum.New(checksum.CRC32)
	check.Update(input)
	out.Write(f.Footer(check))

	r, err := gzip.NewReader(&out)
	require.NoError(t, err)
	var decoded bytes.Buffer
	_, err = decoded.ReadFrom(r)
	require.NoError(t, err)
	require.Equal(t, input, decoded.Bytes())
}

// TestGzipRegressionTinyLevel3 is a small fixed-seed regression case.
func TestGzipRegressionTinyLevel3(t *testing.T) {
	input := make([]byte, 206)
	seed := []byte{132, 19, 107, 159}
	for i := range input {
		input[i] = seed[i%len(seed)]
	}
	input[len(input)-2] = 81
	input[len(input)-1] = 211

	f, err := format.New(format.GZIP)
	require.NoError(t, err)
	c := f.NewCompressor(3)

	var out bytes.Buffer
	out.Write(f.Header(3))
	payload, err := c.EncodeBlock(input, nil, true)
	require.NoError(t, err)
	out.Write(payload)
	check := checksum.New(checksum.CRC32)
	check.Update(input)
	out.Write(f.Footer(check))

	gotBytes := out.Bytes()
	isize := binary.LittleEndian.Uint32(gotBytes[len(gotBytes)-4:])
	require.Equal(t, uint32(206), isize)

	wantCRC := checksum.New(checksum.CRC32)
	wantCRC.Update(input)
	gotCRC := binary.LittleEndian.Uint32(gotBytes[len(gotBytes)-8 : len(gotBytes)-4])
	require.Equal(t, wantCRC.Sum(), gotCRC)

	r, err := gzip.NewReader(&out)
	require.NoError(t, err)
	var decoded bytes.Buffer
	_, err = decoded.ReadFrom(r)
	require.NoError(t, err)
	require.Equal(t, input, decoded.Bytes())
}

// TestZlibHeaderMultipleOf31 checks the zlib header's multiple-of-31 invariant.
func TestZlibHeaderMultipleOf31(t *testing.T) {
	f, err := format.New(format.Zlib)
	require.NoError(t, err)
	for level := 0; level <= 9; level++ {
		h := f.Header(level)
		require.Len(t, h, 2)
		v := binary.BigEndian.Uint16(h)
		require.Zero(t, v%31, "level %d", level)
		require.Equal(t, byte(0x78), h[0])
	}
}

// TestBGZFEOFSentinel checks the canonical 28-byte EOF marker.
func TestBGZFEOFSentinel(t *testing.T) {
	f, err := format.New(format.BGZF)
	require.NoError(t, err)
	footer := f.Footer(checksum.New(checksum.None))
	require.Len(t, footer, 28)
	require.Equal(t, byte(0x1f), footer[0])
	require.Equal(t, byte(0x8b), footer[1])
}

// TestBGZFBlockSizeField covers the BSIZE round trip: CheckHeader +
// BlockSize must agree with what EncodeBlock produced.
func TestBGZFBlockSizeField(t *testing.T) {
	bf, err := format.New(format.BGZF)
	require.NoError(t, err)
	blockFramed := bf.(format.BlockFramedFormat)

	c := bf.NewCompressor(6)
	input := bytes.Repeat([]byte("hello bgzf world "), 100)
	block, err := c.EncodeBlock(input, nil, false)
	require.NoError(t, err)

	require.NoError(t, blockFramed.CheckHeader(block[:blockFramed.HeaderSize()]))
	sz, err := blockFramed.BlockSize(block[:blockFramed.HeaderSize()])
	require.NoError(t, err)
	require.Equal(t, len(block), sz)
}

// TestInvalidHeaderRejection checks that a 20-byte
// buffer whose byte 3 has the extra-field flag clear is rejected.
func TestInvalidHeaderRejection(t *testing.T) {
	mf, err := format.New(format.MGZIP)
	require.NoError(t, err)
	blockFramed := mf.(format.BlockFramedFormat)

	header := make([]byte, 20)
	header[0], header[1], header[2], header[3] = 0x1f, 0x8b, 0x08, 0x00 // FEXTRA clear
	err = blockFramed.CheckHeader(header)
	require.ErrorIs(t, err, format.ErrInvalidHeader)
}

func TestMGZIPHeaderSubfield(t *testing.T) {
	mf, err := format.New(format.MGZIP)
	require.NoError(t, err)
	blockFramed := mf.(format.BlockFramedFormat)
	c := mf.NewCompressor(3)
	block, err := c.EncodeBlock([]byte("abc"), nil, false)
	require.NoError(t, err)
	require.Equal(t, byte('I'), block[12])
	require.Equal(t, byte('G'), block[13])
	require.NoError(t, blockFramed.CheckHeader(block[:blockFramed.HeaderSize()]))
}

// TestSnappyRoundTrip round-trips a block through the standard snappy reader.
func TestSnappyRoundTrip(t *testing.T) {
	f, err := format.New(format.Snappy)
	require.NoError(t, err)
	c := f.NewCompressor(0)
	input := []byte("This is a first test line\nThis is a second test line\n")
	compressed, err := c.EncodeBlock(input, nil, true)
	require.NoError(t, err)

	r := gosnappy.NewReader(bytes.NewReader(compressed))
	var decoded bytes.Buffer
	_, err = decoded.ReadFrom(r)
	require.NoError(t, err)
	require.Equal(t, input, decoded.Bytes())
}

func TestBlockFramedDecompressRoundTrip(t *testing.T) {
	for _, kind := range []format.Kind{format.BGZF, format.MGZIP} {
		kind := kind
		t.Run(kind.String(), func(t *testing.T) {
			f, err := format.New(kind)
			require.NoError(t, err)
			bf := f.(format.BlockFramedFormat)

			input := bytes.Repeat([]byte("block-framed round trip payload "), 50)
			c := f.NewCompressor(6)
			block, err := c.EncodeBlock(input, nil, false)
			require.NoError(t, err)

			hsz := bf.HeaderSize()
			require.NoError(t, bf.CheckHeader(block[:hsz]))
			total, err := bf.BlockSize(block[:hsz])
			require.NoError(t, err)
			require.Equal(t, len(block), total)

			trailer := block[len(block)-8:]
			wantCRC := binary.LittleEndian.Uint32(trailer[0:4])
			origSize := int(binary.LittleEndian.Uint32(trailer[4:8]))
			payload := block[hsz : len(block)-8]

			dec := bf.NewBlockDecompressor()
			out, err := dec.DecodeBlock(payload, wantCRC, origSize)
			require.NoError(t, err)
			require.Equal(t, input, out)
		})
	}
}
