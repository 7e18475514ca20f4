// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package gzp

// ingestBuffer is the growable byte buffer inside the public writer that
// accumulates bytes between Write calls until a full block is available.
// Its invariant: between public calls, len(buf) < blockSize.
type ingestBuffer struct {
	buf       []byte
	blockSize int
}

func (b *ingestBuffer) append(p []byte) {
	b.buf = append(b.buf, p...)
}

func (b *ingestBuffer) full() bool {
	return len(b.buf) >= b.blockSize
}

// takeBlock removes and returns exactly blockSize bytes from the front of
// the buffer. Callers must only call this when full() is true.
func (b *ingestBuffer) takeBlock() []byte {
	block := make([]byte, b.blockSize)
	copy(block, b.buf[:b.blockSize])
	rest := make([]byte, len(b.buf)-b.blockSize)
	copy(rest, b.buf[b.blockSize:])
	b.buf = rest
	return block
}

// takeAll removes and returns every remaining byte in the buffer, however
// few, leaving it empty.
func (b *ingestBuffer) takeAll() []byte {
	out := b.buf
	b.buf = nil
	return out
}
