// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package checksum provides a uniform interface over the running checksums
// used by the gzp wire formats: CRC-32 (gzip, and per-block for BGZF/MGZIP),
// Adler-32 (zlib), and a no-op checksum for formats that track no running
// check at the stream level (raw deflate, Snappy, BGZF/MGZIP's own stream
// trailer).
//
// The defining property, exercised by every implementation here, is that
// Combine produces the same result as a single Update call over the
// concatenation of the two byte ranges:
//
//	a := New(CRC32); a.Update(x)
//	b := New(CRC32); b.Update(y)
//	c := New(CRC32); c.Update(append(x, y...))
//	a.Combine(b).Sum() == c.Sum()
package checksum

import (
	"hash/adler32"
	"hash/crc32"
)

// Kind identifies which checksum algorithm a Checksum value implements.
type Kind int

const (
	// None is the no-op checksum: Update and Combine are no-ops, Sum is
	// always 0.
	None Kind = iota
	// CRC32 is the gzip-polynomial (IEEE) CRC-32 checksum.
	CRC32
	// Adler32 is the zlib Adler-32 checksum.
	Adler32
)

func (k Kind) String() string {
	switch k {
	case CRC32:
		return "crc32"
	case Adler32:
		return "adler32"
	default:
		return "none"
	}
}

// Checksum is a running checksum plus the count of bytes that produced it.
//
// Implementations are not safe for concurrent use; callers that compute
// per-block checksums concurrently must create one Checksum per block and
// Combine the results in order.
type Checksum interface {
	// Update folds p into the running checksum.
	Update(p []byte)
	// Sum returns the current checksum value.
	Sum() uint32
	// Amount returns the number of bytes folded in so far.
	Amount() uint32
	// Combine returns the checksum of the concatenation of the byte range
	// that produced c and the byte range that produced other, where other
	// is assumed to immediately follow c's range. Combine must be
	// associative: combining left-to-right or via any binary grouping of
	// an ordered partition must produce the same result.
	Combine(other Checksum) Checksum
}

// New creates a fresh, zero-valued Checksum of the given kind.
func New(kind Kind) Checksum {
	switch kind {
	case CRC32:
		return &crc32Checksum{}
	case Adler32:
		return &adler32Checksum{sum: 1} // adler32 of the empty string is 1
	default:
		return noopChecksum{}
	}
}

type crc32Checksum struct {
	sum    uint32
	amount uint32
}

func (c *crc32Checksum) Update(p []byte) {
	c.sum = crc32.Update(c.sum, crc32.IEEETable, p)
	c.amount += uint32(len(p))
}

func (c *crc32Checksum) Sum() uint32    { return c.sum }
func (c *crc32Checksum) Amount() uint32 { return c.amount }

func (c *crc32Checksum) Combine(other Checksum) Checksum {
	o, ok := other.(*crc32Checksum)
	if !ok {
		panic("checksum: Combine requires two CRC32 checksums")
	}
	return &crc32Checksum{
		sum:    crc32Combine(c.sum, o.sum, int64(o.amount)),
		amount: c.amount + o.amount,
	}
}

type adler32Checksum struct {
	sum    uint32
	amount uint32
}

func (a *adler32Checksum) Update(p []byte) {
	if a.amount == 0 && a.sum == 0 {
		a.sum = 1
	}
	a.sum = adler32Combine(a.sum, adler32.Checksum(p), int64(len(p)))
	a.amount += uint32(len(p))
}

func (a *adler32Checksum) Sum() uint32    { return a.sum }
func (a *adler32Checksum) Amount() uint32 { return a.amount }

func (a *adler32Checksum) Combine(other Checksum) Checksum {
	o, ok := other.(*adler32Checksum)
	if !ok {
		panic("checksum: Combine requires two Adler32 checksums")
	}
	return &adler32Checksum{
		sum:    adler32Combine(a.sum, o.sum, int64(o.amount)),
		amount: a.amount + o.amount,
	}
}

type noopChecksum struct{}

func (noopChecksum) Update([]byte)             {}
func (noopChecksum) Sum() uint32               { return 0 }
func (noopChecksum) Amount() uint32            { return 0 }
func (noopChecksum) Combine(Checksum) Checksum { return noopChecksum{} }

// crc32Combine implements the classic zlib crc32_combine algorithm: given
// the CRC of two adjacent byte ranges and the length of the second range,
// it produces the CRC of the concatenation without re-reading either range.
// It is not exposed by any checksum library in the retrieval pack (neither
// klauspost/compress nor the standard library's hash/crc32 expose Combine
// for arbitrary lengths in a way this package can depend on), so it is
// reproduced here from the well-known GF(2) matrix-exponentiation
// construction used by zlib and flate2::Crc::combine in the original Rust
// implementation (src/check.rs).
func crc32Combine(crc1, crc2 uint32, len2 int64) uint32 {
	if len2 <= 0 {
		return crc1
	}
	const poly = 0xedb88320

	var even, odd [32]uint32
	odd[0] = poly
	row := uint32(1)
	for n := 1; n < 32; n++ {
		odd[n] = row
		row <<= 1
	}
	gf2MatrixSquare(even[:], odd[:])
	gf2MatrixSquare(odd[:], even[:])

	for {
		gf2MatrixSquare(even[:], odd[:])
		if len2&1 != 0 {
			crc1 = gf2MatrixTimes(even[:], crc1)
		}
		len2 >>= 1
		if len2 == 0 {
			break
		}
		gf2MatrixSquare(odd[:], even[:])
		if len2&1 != 0 {
			crc1 = gf2MatrixTimes(odd[:], crc1)
		}
		len2 >>= 1
		if len2 == 0 {
			break
		}
	}
	return crc1 ^ crc2
}

func gf2MatrixTimes(mat []uint32, vec uint32) uint32 {
	var sum uint32
	for i := 0; vec != 0; i++ {
		if vec&1 != 0 {
			sum ^= mat[i]
		}
		vec >>= 1
	}
	return sum
}

func gf2MatrixSquare(square, mat []uint32) {
	for n := range mat {
		square[n] = gf2MatrixTimes(mat, mat[n])
	}
}

// adler32Combine implements zlib's adler32_combine: the Adler-32 of the
// concatenation of two byte ranges given their individual Adler-32 values
// and the length of the second range.
func adler32Combine(adler1, adler2 uint32, len2 int64) uint32 {
	const base = 65521

	if len2 < 0 {
		return 0xffffffff
	}
	rem := uint32(len2 % base)
	sum1 := adler1 & 0xffff
	sum2 := (rem * sum1) % base
	sum1 += (adler2 & 0xffff) + base - 1
	sum2 += ((adler1 >> 16) & 0xffff) + ((adler2 >> 16) & 0xffff) + base - rem
	if sum1 >= base {
		sum1 -= base
	}
	if sum1 >= base {
		sum1 -= base
	}
	if sum2 >= (base << 1) {
		sum2 -= base << 1
	}
	if sum2 >= base {
		sum2 -= base
	}
	return sum1 | (sum2 << 16)
}
