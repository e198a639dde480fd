// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ring

import (
	"errors"
	"io"
)

// FallbackReader serves a tail reader's stream end to end, however far
// the reader falls behind. Bytes come from the live buffer while they
// are still there; once the reader is overrun, the evicted range is
// read from durable storage at the reader's offset, the tail reader is
// skipped past it, and the next Read is served live again.
//
// Evicted bytes are always behind the drain cursor, so storage holds
// them by the time they are requested.
type FallbackReader struct {
	tail    *TailReader
	storage io.ReaderAt

	fallbackReads int
	fallbackBytes uint64
}

// NewFallbackReader composes a tail reader with random access to the
// file the drain consumer is writing.
func NewFallbackReader(tail *TailReader, storage io.ReaderAt) *FallbackReader {
	return &FallbackReader{tail: tail, storage: storage}
}

// Read implements io.Reader. It returns io.EOF or the stream's error at
// the end, a *FallbackReadError if recovery from storage fails, and
// never an overrun.
func (reader *FallbackReader) Read(p []byte) (int, error) {
	n, err := reader.tail.Read(p)
	var overrun *OverrunError
	if !errors.As(err, &overrun) {
		return n, err
	}

	// Only the evicted prefix is requested: everything after it is
	// still live and cheaper to serve from memory.
	want := uint64(len(p))
	if overrun.Evicted < want {
		want = overrun.Evicted
	}
	recovered, readErr := reader.storage.ReadAt(p[:want], int64(overrun.Offset))
	if recovered > 0 {
		reader.tail.Skip(uint64(recovered))
		reader.fallbackReads++
		reader.fallbackBytes += uint64(recovered)
		return recovered, nil
	}
	if readErr == nil || readErr == io.EOF {
		readErr = io.ErrUnexpectedEOF
	}
	return 0, &FallbackReadError{Offset: overrun.Offset, Err: readErr}
}

// Offset returns the logical offset of the next byte Read will return.
func (reader *FallbackReader) Offset() uint64 {
	return reader.tail.Offset()
}

// FallbackReads returns how many reads were served from storage.
func (reader *FallbackReader) FallbackReads() int {
	return reader.fallbackReads
}

// FallbackBytes returns how many bytes were served from storage.
func (reader *FallbackReader) FallbackBytes() uint64 {
	return reader.fallbackBytes
}
