// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package gzp

import (
	"context"
	"log"
	"runtime"
	"sync"

	"github.com/cosnicolaou/gzp/checksum"
	"github.com/cosnicolaou/gzp/format"
	"github.com/cosnicolaou/gzp/internal/block"
	"io"
)

// job is the unit of work sent to a compression worker: an immutable
// block plus the oneshot reply channel the writer goroutine will await in
// order.
type job struct {
	data  []byte
	dict  []byte
	last  bool
	reply chan jobResult
}

type jobResult struct {
	data       []byte
	blockCheck checksum.Checksum
	err        error
}

// parallelWriter is the core pipeline: an ingest
// accumulator on the caller's goroutine feeds an ordered job queue to a
// worker pool, whose replies are collected, in order, by a single writer
// goroutine that owns the sink.
//
// Ordering is enforced with a oneshot reply channel per block: the reply
// channel for block i is sent on the ordered channel (writerCh here)
// before the job itself is sent to the worker pool (jobCh here), so the
// writer goroutine always awaits replies in the same order blocks were
// produced, regardless of which worker finishes first.
type parallelWriter struct {
	ctx    context.Context
	cancel context.CancelFunc

	sink    io.Writer
	f       format.Format
	level   int
	verbose bool

	ing  ingestBuffer
	dict []byte

	jobCh    chan *job
	writerCh chan chan jobResult

	workersWG sync.WaitGroup
	writerWG  sync.WaitGroup

	mu       sync.Mutex
	err      error
	finished bool
}

func newParallelWriter(ctx context.Context, sink io.Writer, f format.Format, level, blockSize, workers, pinStart int, verbose bool) *parallelWriter {
	ctx, cancel := context.WithCancel(ctx)
	w := &parallelWriter{
		ctx:      ctx,
		cancel:   cancel,
		sink:     sink,
		f:        f,
		level:    level,
		verbose:  verbose,
		ing:      ingestBuffer{blockSize: blockSize},
		jobCh:    make(chan *job, 2*workers),
		writerCh: make(chan chan jobResult, 2*workers),
	}
	w.workersWG.Add(workers)
	for i := 0; i < workers; i++ {
		pin := -1
		if pinStart >= 0 {
			pin = pinStart + i
		}
		go w.workerLoop(pin)
	}
	w.writerWG.Add(1)
	go w.writerLoop()
	return w
}

func (w *parallelWriter) trace(format string, args ...interface{}) {
	if w.verbose {
		log.Printf(format, args...)
	}
}

func (w *parallelWriter) setErr(err error) {
	w.mu.Lock()
	if w.err == nil {
		w.err = err
		w.cancel()
	}
	w.mu.Unlock()
}

func (w *parallelWriter) getErr() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// workerLoop is one of N worker goroutines. Each owns a single compressor
// handle for the lifetime of the stream. pin is a best-effort OS-thread affinity
// hint: Go exposes no portable CPU-affinity syscall, so LockOSThread is
// the closest available approximation.
func (w *parallelWriter) workerLoop(pin int) {
	defer w.workersWG.Done()
	if pin >= 0 {
		runtime.LockOSThread()
	}
	compressor := w.f.NewCompressor(w.level)
	for {
		select {
		case j, ok := <-w.jobCh:
			if !ok {
				return
			}
			w.trace("compressing block of %d bytes, last=%v", len(j.data), j.last)
			out, err := compressor.EncodeBlock(j.data, j.dict, j.last)
			res := jobResult{err: err}
			if err == nil {
				res.data = out
				if bk := w.f.BlockChecksumKind(); bk != checksum.None {
					bc := checksum.New(bk)
					bc.Update(j.data)
					res.blockCheck = bc
				}
			}
			j.reply <- res
		case <-w.ctx.Done():
			return
		}
	}
}

// writerLoop is the single goroutine that owns the sink: it writes the
// stream header, then pulls oneshot receivers from writerCh in order,
// combining each block's checksum into the running stream checksum and
// writing the compressed bytes, and finally writes the stream footer.
func (w *parallelWriter) writerLoop() {
	defer w.writerWG.Done()
	if _, err := w.sink.Write(w.f.Header(w.level)); err != nil {
		w.setErr(newError(ErrKindIO, err))
	}
	running := checksum.New(w.f.RunningChecksumKind())
	for {
		var reply chan jobResult
		var ok bool
		select {
		case reply, ok = <-w.writerCh:
			if !ok {
				if err := w.getErr(); err == nil {
					if _, err := w.sink.Write(w.f.Footer(running)); err != nil {
						w.setErr(newError(ErrKindIO, err))
					}
				}
				return
			}
		case <-w.ctx.Done():
			return
		}

		var res jobResult
		select {
		case res = <-reply:
		case <-w.ctx.Done():
			return
		}
		if res.err != nil {
			w.setErr(newError(ErrKindCompress, res.err))
			continue
		}
		if w.getErr() != nil {
			continue
		}
		if res.blockCheck != nil {
			running = running.Combine(res.blockCheck)
		}
		if len(res.data) > 0 {
			if _, err := w.sink.Write(res.data); err != nil {
				w.setErr(newError(ErrKindIO, err))
			}
		}
	}
}

// dispatch implements the per-block dispatch algorithm: the
// reply receiver is sent on writerCh before the job is sent on jobCh, so
// output order is fixed at dispatch time regardless of worker completion
// order.
func (w *parallelWriter) dispatch(data []byte, last bool) error {
	if err := w.getErr(); err != nil {
		return err
	}
	var dict []byte
	if w.f.NeedsDictionary() {
		dict = w.dict
	}
	reply := make(chan jobResult, 1)
	j := &job{data: data, dict: dict, last: last, reply: reply}

	select {
	case w.writerCh <- reply:
	case <-w.ctx.Done():
		return w.getErr()
	}
	select {
	case w.jobCh <- j:
	case <-w.ctx.Done():
		return w.getErr()
	}
	if w.f.NeedsDictionary() {
		w.dict = block.NextDictionary(data, last)
	}
	return nil
}

func (w *parallelWriter) Write(p []byte) (int, error) {
	if w.finished {
		return 0, errFinished
	}
	if err := w.getErr(); err != nil {
		return 0, err
	}
	w.ing.append(p)
	for w.ing.full() {
		if err := w.dispatch(w.ing.takeBlock(), false); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

func (w *parallelWriter) Flush() error {
	if w.finished {
		return errFinished
	}
	if err := w.getErr(); err != nil {
		return err
	}
	rest := w.ing.takeAll()
	if len(rest) == 0 {
		return nil
	}
	return w.dispatch(rest, false)
}

// Finish drains any remaining accumulated bytes as the final, is_last
// block, closes the job and writer channels, and joins every goroutine.
// It is idempotent: once finished, it simply returns the stored result.
func (w *parallelWriter) Finish() error {
	if w.finished {
		return w.err
	}
	dispatchErr := w.dispatch(w.ing.takeAll(), true)
	close(w.jobCh)
	w.workersWG.Wait()
	close(w.writerCh)
	w.writerWG.Wait()
	w.finished = true
	if dispatchErr != nil {
		w.err = dispatchErr
	}
	return w.err
}
