// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ring

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/ingestd/lib/mirror"
)

var (
	// ErrOverrun matches (via errors.Is) the *OverrunError returned by
	// TailReader.Read once the reader's unread bytes were evicted.
	ErrOverrun = errors.New("ring: tail reader overrun")

	// ErrTerminated is returned by Ring.Attach after the ring reached
	// its Terminated phase. The upload is finished; read the file from
	// durable storage instead.
	ErrTerminated = errors.New("ring: terminated")

	// ErrDrainClosed is returned to the producer once the drain side
	// has been abandoned. Nothing more will be persisted.
	ErrDrainClosed = errors.New("ring: drain side closed")

	// ErrQueueClosed is returned to the producer after the producer
	// side has already been closed.
	ErrQueueClosed = errors.New("ring: queue closed")

	// ErrReaderClosed is returned by TailReader.Read after Close.
	ErrReaderClosed = errors.New("ring: tail reader closed")

	// ErrAlreadyRunning is returned by a second call to Ring.Run.
	ErrAlreadyRunning = errors.New("ring: already running")
)

// OverrunError reports that the bytes starting at Offset have been
// overwritten by newer data. Evicted is the number of bytes from Offset
// up to the oldest byte still held in the buffer.
type OverrunError struct {
	Offset  uint64
	Evicted uint64
}

func (e *OverrunError) Error() string {
	return fmt.Sprintf("ring: tail reader overrun at offset %d (%d bytes evicted)", e.Offset, e.Evicted)
}

// Is makes errors.Is(err, ErrOverrun) true for any *OverrunError.
func (e *OverrunError) Is(target error) bool {
	return target == ErrOverrun
}

// SourceError wraps a failure of the upload source. The queue is
// closed with it, so the drain consumer and every tail reader observe
// the same error once they have read all committed bytes.
type SourceError struct {
	Err error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("ring: upload source: %v", e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// FallbackReadError reports that recovering overrun bytes from durable
// storage failed. It is fatal to the one reader that hit it.
type FallbackReadError struct {
	Offset uint64
	Err    error
}

func (e *FallbackReadError) Error() string {
	return fmt.Sprintf("ring: fallback read at offset %d: %v", e.Offset, e.Err)
}

func (e *FallbackReadError) Unwrap() error { return e.Err }

// IsAllocationError reports whether err came from failing to build the
// double-mapped buffer.
func IsAllocationError(err error) bool {
	var allocationError *mirror.AllocationError
	return errors.As(err, &allocationError)
}
