// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package gzp

import (
	"io"

	"github.com/cosnicolaou/gzp/checksum"
	"github.com/cosnicolaou/gzp/format"
	"github.com/cosnicolaou/gzp/internal/block"
)

// syncWriter is the thin, single-goroutine fallback used when the
// configured worker count is 0 or 1. It hosts the same per-block encode
// primitive the parallel writer's workers use, but runs it inline on the
// caller's goroutine, with an identical Write/Flush/Finish contract, so
// callers are agnostic to which backend a given NumThreads value
// selected.
type syncWriter struct {
	sink       io.Writer
	f          format.Format
	level      int
	compressor format.Compressor
	ing        ingestBuffer

	dict    []byte
	running checksum.Checksum

	wroteHeader bool
	finished    bool
	err         error
}

func newSyncWriter(sink io.Writer, f format.Format, level, blockSize int) *syncWriter {
	return &syncWriter{
		sink:       sink,
		f:          f,
		level:      level,
		compressor: f.NewCompressor(level),
		ing:        ingestBuffer{blockSize: blockSize},
		running:    checksum.New(f.RunningChecksumKind()),
	}
}

func (w *syncWriter) fail(err error) error {
	if w.err == nil {
		w.err = err
	}
	return w.err
}

func (w *syncWriter) ensureHeader() error {
	if w.wroteHeader {
		return nil
	}
	w.wroteHeader = true
	if _, err := w.sink.Write(w.f.Header(w.level)); err != nil {
		return w.fail(newError(ErrKindIO, err))
	}
	return nil
}

func (w *syncWriter) Write(p []byte) (int, error) {
	if w.finished {
		return 0, errFinished
	}
	if w.err != nil {
		return 0, w.err
	}
	if err := w.ensureHeader(); err != nil {
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

func (w *syncWriter) Flush() error {
	if w.finished {
		return errFinished
	}
	if w.err != nil {
		return w.err
	}
	if err := w.ensureHeader(); err != nil {
		return err
	}
	rest := w.ing.takeAll()
	if len(rest) == 0 {
		return nil
	}
	return w.dispatch(rest, false)
}

func (w *syncWriter) Finish() error {
	if w.finished {
		return w.err
	}
	defer func() { w.finished = true }()
	if err := w.ensureHeader(); err != nil {
		return err
	}
	if err := w.dispatch(w.ing.takeAll(), true); err != nil {
		return err
	}
	if _, err := w.sink.Write(w.f.Footer(w.running)); err != nil {
		return w.fail(newError(ErrKindIO, err))
	}
	return nil
}

func (w *syncWriter) dispatch(data []byte, last bool) error {
	var dict []byte
	if w.f.NeedsDictionary() {
		dict = w.dict
	}
	out, err := w.compressor.EncodeBlock(data, dict, last)
	if err != nil {
		return w.fail(newError(ErrKindCompress, err))
	}
	if w.f.NeedsDictionary() {
		w.dict = block.NextDictionary(data, last)
	}
	if bk := w.f.BlockChecksumKind(); bk != checksum.None {
		bc := checksum.New(bk)
		bc.Update(data)
		w.running = w.running.Combine(bc)
	}
	if _, err := w.sink.Write(out); err != nil {
		return w.fail(newError(ErrKindIO, err))
	}
	return nil
}
