// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ring

import (
	"context"
	"io"
	"sync"
)

// TailReader replays a queue's committed bytes from offset zero without
// consuming them. Its cursor is independent of the drain and of every
// other reader, so a slow reader never holds back the producer: it is
// overrun instead, and Read reports an *OverrunError until the caller
// recovers the evicted bytes elsewhere and calls Skip.
//
// A TailReader belongs to one goroutine. Close may be called from any
// goroutine. Readers obtained from Ring.Attach must be closed, or the
// ring never terminates.
type TailReader struct {
	queue *Queue
	ctx   context.Context
	id    uint64
	wake  chan struct{}

	cursor uint64

	// detached is guarded by queue.mutex.
	detached  bool
	onClose   func()
	closeOnce sync.Once
}

// ID returns the attachment identifier, unique within one queue.
func (reader *TailReader) ID() uint64 {
	return reader.id
}

// Offset returns the logical offset of the next byte Read will return.
func (reader *TailReader) Offset() uint64 {
	return reader.cursor
}

// Read copies committed bytes at the reader's cursor into p and
// advances it. It returns as soon as any bytes are available and blocks
// only when the reader has caught up with the producer. At the end of
// the stream it returns io.EOF, or the error the stream was closed
// with. If the bytes at the cursor have been evicted it returns an
// *OverrunError (errors.Is(err, ErrOverrun)) and keeps doing so until
// Skip moves the cursor forward. Cancelling the context passed to
// Attach unblocks a waiting Read with the context's error.
func (reader *TailReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	queue := reader.queue
	for {
		queue.mutex.Lock()
		if reader.detached {
			queue.mutex.Unlock()
			return 0, ErrReaderClosed
		}
		if evicted := queue.evictedBefore(reader.cursor); evicted > 0 {
			queue.mutex.Unlock()
			return 0, &OverrunError{Offset: reader.cursor, Evicted: evicted}
		}
		if queue.writeCursor > reader.cursor {
			length := min(queue.writeCursor-reader.cursor, uint64(len(p)))
			// The copy happens under the lock so that the producer
			// cannot acquire the space these bytes occupy mid-copy.
			n := copy(p, queue.region.Slice(int(reader.cursor%queue.capacity), int(length)))
			reader.cursor += uint64(n)
			queue.mutex.Unlock()
			return n, nil
		}
		if queue.closed {
			err := queue.closeError
			queue.mutex.Unlock()
			if err == nil {
				return 0, io.EOF
			}
			return 0, err
		}
		queue.mutex.Unlock()

		select {
		case <-reader.wake:
		case <-reader.ctx.Done():
			return 0, reader.ctx.Err()
		}
	}
}

// Skip advances the cursor by n bytes without reading them. Used after
// the bytes were supplied out of band, from durable storage.
func (reader *TailReader) Skip(n uint64) {
	reader.cursor += n
}

// Close detaches the reader from its queue. Idempotent.
func (reader *TailReader) Close() error {
	reader.closeOnce.Do(func() {
		if reader.queue.detach(reader) && reader.onClose != nil {
			reader.onClose()
		}
	})
	return nil
}
