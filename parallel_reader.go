// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package gzp

import (
	"context"
	"encoding/binary"
	"io"
	"log"
	"runtime"
	"sync"

	"github.com/cosnicolaou/gzp/format"
)

// decodeJob is one block-framed block handed to a decompression worker:
// the raw payload between a block's header and its trailer, plus the
// trailer's declared CRC32 and original size.
type decodeJob struct {
	payload  []byte
	wantCRC  uint32
	origSize int
	reply    chan decodeResult
}

type decodeResult struct {
	data []byte
	err  error
}

// parallelReader implements a parallel block decompressor for
// the block-framed formats (BGZF, MGZIP): every block is independently
// self-contained, so blocks can be scanned from the source sequentially,
// handed to a worker pool for concurrent decoding, and reassembled, in
// order, into the output stream via an io.Pipe.
//
// Reassembly uses the same oneshot-reply-channel technique as
// parallelWriter rather than a container/heap-based reordering buffer:
// since readLoop already discovers blocks in stream order, the simpler
// ordered-channel pattern gives the same in-order guarantee without a
// heap's bookkeeping.
type parallelReader struct {
	ctx    context.Context
	cancel context.CancelFunc

	src     io.Reader
	f       format.BlockFramedFormat
	verbose bool

	workCh  chan *decodeJob
	orderCh chan chan decodeResult

	prd *io.PipeReader
	pwr *io.PipeWriter

	workersWG sync.WaitGroup
	readerWG  sync.WaitGroup
	fillWG    sync.WaitGroup

	mu  sync.Mutex
	err error
}

func newParallelReader(ctx context.Context, src io.Reader, f format.BlockFramedFormat, workers, pinStart int, verbose bool) *parallelReader {
	ctx, cancel := context.WithCancel(ctx)
	pr, pw := io.Pipe()
	r := &parallelReader{
		ctx:     ctx,
		cancel:  cancel,
		src:     src,
		f:       f,
		verbose: verbose,
		workCh:  make(chan *decodeJob, 2*workers),
		orderCh: make(chan chan decodeResult, 2*workers),
		prd:     pr,
		pwr:     pw,
	}
	r.workersWG.Add(workers)
	for i := 0; i < workers; i++ {
		pin := -1
		if pinStart >= 0 {
			pin = pinStart + i
		}
		go r.workerLoop(pin)
	}
	r.fillWG.Add(1)
	go r.fillLoop()
	r.readerWG.Add(1)
	go r.readLoop()
	return r
}

func (r *parallelReader) trace(format string, args ...interface{}) {
	if r.verbose {
		log.Printf(format, args...)
	}
}

func (r *parallelReader) setErr(err error) {
	r.mu.Lock()
	if r.err == nil {
		r.err = err
		r.cancel()
	}
	r.mu.Unlock()
}

func (r *parallelReader) getErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// readLoop scans the source for consecutive self-framed blocks, dispatches
// each to the worker pool in order, and stops cleanly at EOF.
func (r *parallelReader) readLoop() {
	defer r.readerWG.Done()
	defer close(r.workCh)
	defer close(r.orderCh)

	hsz := r.f.HeaderSize()
	for {
		header := make([]byte, hsz)
		if _, err := io.ReadFull(r.src, header); err != nil {
			if err == io.EOF {
				return
			}
			r.setErr(newError(ErrKindIO, err))
			return
		}
		if err := r.f.CheckHeader(header); err != nil {
			r.setErr(newError(ErrKindHeader, err))
			return
		}
		total, err := r.f.BlockSize(header)
		if err != nil {
			r.setErr(newError(ErrKindHeader, err))
			return
		}
		rest := make([]byte, total-hsz)
		if _, err := io.ReadFull(r.src, rest); err != nil {
			r.setErr(newError(ErrKindIO, err))
			return
		}
		if len(rest) < 8 {
			r.setErr(newError(ErrKindHeader, errShortTrailer))
			return
		}
		trailer := rest[len(rest)-8:]
		payload := rest[:len(rest)-8]
		wantCRC := binary.LittleEndian.Uint32(trailer[0:4])
		origSize := int(binary.LittleEndian.Uint32(trailer[4:8]))

		r.trace("scanned block: payload=%d bytes, origSize=%d", len(payload), origSize)

		reply := make(chan decodeResult, 1)
		j := &decodeJob{payload: payload, wantCRC: wantCRC, origSize: origSize, reply: reply}

		select {
		case r.orderCh <- reply:
		case <-r.ctx.Done():
			return
		}
		select {
		case r.workCh <- j:
		case <-r.ctx.Done():
			return
		}

		// A zero origSize is BGZF's EOF sentinel, but only BGZF defines
		// that convention; MGZIP has no end-of-stream block. Either way
		// the loop keeps scanning: a concatenated stream may still have
		// blocks following a sentinel, and a true end of input surfaces
		// as io.EOF on the next header read above.
	}
}

func (r *parallelReader) workerLoop(pin int) {
	defer r.workersWG.Done()
	if pin >= 0 {
		runtime.LockOSThread()
	}
	dec := r.f.NewBlockDecompressor()
	for {
		select {
		case j, ok := <-r.workCh:
			if !ok {
				return
			}
			out, err := dec.DecodeBlock(j.payload, j.wantCRC, j.origSize)
			if err != nil {
				if mm, ok := err.(*format.ChecksumMismatchError); ok {
					err = &ChecksumError{Expected: mm.Expected, Found: mm.Found}
				}
			}
			j.reply <- decodeResult{data: out, err: err}
		case <-r.ctx.Done():
			return
		}
	}
}

// fillLoop drains orderCh strictly in order and writes each block's
// decoded bytes to the pipe, so Read callers see them in original stream
// order regardless of which worker finished first.
func (r *parallelReader) fillLoop() {
	defer r.fillWG.Done()
	for {
		var reply chan decodeResult
		var ok bool
		select {
		case reply, ok = <-r.orderCh:
			if !ok {
				if err := r.getErr(); err != nil {
					r.pwr.CloseWithError(err)
				} else {
					r.pwr.Close()
				}
				return
			}
		case <-r.ctx.Done():
			r.pwr.CloseWithError(r.getErr())
			return
		}

		var res decodeResult
		select {
		case res = <-reply:
		case <-r.ctx.Done():
			r.pwr.CloseWithError(r.getErr())
			return
		}
		if res.err != nil {
			kind := ErrKindDecompress
			if _, ok := res.err.(*ChecksumError); ok {
				kind = ErrKindChecksum
			}
			r.setErr(newError(kind, res.err))
			r.pwr.CloseWithError(r.getErr())
			return
		}
		if len(res.data) == 0 {
			continue
		}
		if _, err := r.pwr.Write(res.data); err != nil {
			r.setErr(newError(ErrKindIO, err))
			return
		}
	}
}

func (r *parallelReader) Read(p []byte) (int, error) {
	return r.prd.Read(p)
}

// Finish waits for every goroutine to exit and returns the stored
// coordinator error, if any.
func (r *parallelReader) Finish() error {
	r.readerWG.Wait()
	r.workersWG.Wait()
	r.fillWG.Wait()
	return r.getErr()
}
