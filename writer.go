// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package gzp

import (
	"context"
	"io"
	"runtime"

	"github.com/cosnicolaou/gzp/format"
	"github.com/cosnicolaou/gzp/internal/block"
)

// Writer is the public surface of a compressing stream. Write accumulates uncompressed bytes; Flush forces
// out the partial block still accumulated without ending the stream; Finish drains the
// remainder as the final block, writes the format's footer and must be
// called exactly once before the underlying sink is considered complete.
type Writer interface {
	io.Writer

	// Flush dispatches any accumulated bytes as a non-final block without
	// ending the stream. Callers that never need mid-stream flush points
	// can ignore it.
	Flush() error

	// Finish dispatches the remaining accumulated bytes as the final
	// block, writes the format footer, and waits for every worker
	// goroutine to exit. Finish is idempotent: subsequent calls return the
	// same result without re-dispatching.
	Finish() error
}

// Reader is the public surface of a parallel decompressing stream
// for the block-framed formats only.
type Reader interface {
	io.Reader

	// Finish waits for every worker goroutine to exit and returns the
	// first error encountered, if any. Read already returns that error
	// once the stream is exhausted; Finish is useful for callers that want
	// to join the pipeline explicitly (e.g. before reusing a sync.Pool
	// buffer the goroutines wrote into).
	Finish() error
}

type options struct {
	level     int
	blockSize int
	workers   int
	pinStart  int
	verbose   bool
}

// defaultOptions mirrors the original Rust builder's defaults: compression
// level 3 and a worker count of one goroutine per logical CPU, so the
// parallel pipeline is active out of the box rather than only on request.
func defaultOptions(f format.Format) options {
	return options{
		level:     3,
		blockSize: f.DefaultBlockSize(),
		workers:   runtime.NumCPU(),
		pinStart:  -1,
	}
}

// Option configures a Writer or Reader created by NewWriter/NewReader.
type Option func(*options)

// CompressionLevel sets the codec's compression level; the valid range is
// format-specific (0-9 for the DEFLATE family, ignored by Snappy).
func CompressionLevel(level int) Option {
	return func(o *options) { o.level = level }
}

// BlockSize overrides the format's default uncompressed block size.
// NewWriter rejects a size above the format's MaxBlockSize, which for BGZF
// is its 64 KiB-derived input cap of 65,280 bytes.
func BlockSize(n int) Option {
	return func(o *options) { o.blockSize = n }
}

// NumThreads sets the number of worker goroutines used to compress or
// decompress blocks concurrently. For NewWriter, 0 or 1 select the
// single-goroutine synchronous fallback; values above 1 select the parallel
// pipeline. NewReader raises a value below 1 to 1 and always runs its
// parallel pipeline.
func NumThreads(n int) Option {
	return func(o *options) { o.workers = n }
}

// PinThreads enables a best-effort attempt to bind each worker goroutine
// to its own OS thread via runtime.LockOSThread, starting at logical CPU
// start. Go exposes no portable CPU-affinity syscall, so this only pins
// the goroutine to a thread; it does not pin that thread to a particular
// core.
func PinThreads(start int) Option {
	return func(o *options) { o.pinStart = start }
}

// Verbose enables per-block trace logging via the standard log package.
func Verbose(v bool) Option {
	return func(o *options) { o.verbose = v }
}

// NewWriter returns a Writer that compresses to sink using the given wire
// format. Whether it runs the parallel pipeline or the synchronous
// fallback is controlled entirely by NumThreads.
func NewWriter(ctx context.Context, sink io.Writer, kind format.Kind, opts ...Option) (Writer, error) {
	f, err := format.New(kind)
	if err != nil {
		return nil, newError(ErrKindConfig, err)
	}
	o := defaultOptions(f)
	for _, fn := range opts {
		fn(&o)
	}
	if o.blockSize <= 0 {
		return nil, newError(ErrKindConfig, errInvalidBlockSize)
	}
	if o.blockSize < block.DictionarySize {
		return nil, newError(ErrKindConfig, errBlockSizeTooSmall)
	}
	if max := f.MaxBlockSize(); max > 0 && o.blockSize > max {
		return nil, newError(ErrKindConfig, errBlockSizeTooLarge)
	}
	if o.workers <= 1 {
		return newSyncWriter(sink, f, o.level, o.blockSize), nil
	}
	return newParallelWriter(ctx, sink, f, o.level, o.blockSize, o.workers, o.pinStart, o.verbose), nil
}

// NewReader returns a Reader that parallel-decompresses src, which must
// contain a stream of the given block-framed format (BGZF or MGZIP).
// Other formats return a configuration error: their streaming checksum
// and dictionary window make per-block parallel decoding impossible (see
// doc.go).
func NewReader(ctx context.Context, src io.Reader, kind format.Kind, opts ...Option) (Reader, error) {
	f, err := format.New(kind)
	if err != nil {
		return nil, newError(ErrKindConfig, err)
	}
	bf, ok := f.(format.BlockFramedFormat)
	if !ok {
		return nil, newError(ErrKindConfig, errNotBlockFramed)
	}
	o := defaultOptions(f)
	for _, fn := range opts {
		fn(&o)
	}
	if o.workers < 1 {
		o.workers = 1
	}
	return newParallelReader(ctx, src, bf, o.workers, o.pinStart, o.verbose), nil
}
