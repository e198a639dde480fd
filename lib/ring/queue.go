// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ring

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/bureau-foundation/ingestd/lib/mirror"
)

// Queue is single-producer, single-consumer flow control over a
// double-mapped region, plus the bookkeeping tail readers need to peek
// at committed bytes. The producer role is reached through
// [Queue.Producer] and the drain role through [Queue.Drain]; each has
// exactly one user by construction.
//
// All cursor and registry state is guarded by one mutex. Blocking
// waits happen outside the lock on capacity-1 signal channels, which
// are poked after every state change so no wakeup is lost.
type Queue struct {
	mutex    sync.Mutex
	region   *mirror.Region
	capacity uint64

	// writeCursor is the total number of bytes committed.
	writeCursor uint64
	// drainCursor is the total number of bytes consumed by the drain.
	drainCursor uint64
	// reserved is the end of the window most recently handed to the
	// producer. Between AcquireWriteSpace and Commit the producer may
	// be writing anywhere in [writeCursor, reserved), which physically
	// overlaps the oldest retained bytes. Equal to writeCursor when no
	// producer write is outstanding.
	reserved uint64

	// closed is set exactly once by the producer side. closeError is
	// nil for a clean end of stream.
	closed     bool
	closeError error

	// drainAbandoned is set when the drain side stops consuming.
	drainAbandoned bool

	spaceReady chan struct{}
	dataReady  chan struct{}

	watchers    map[uint64]*TailReader
	nextWatcher uint64

	producer Producer
	drain    Drain
}

// QueueStats is a point-in-time snapshot of a queue's cursors.
type QueueStats struct {
	Capacity    uint64
	WriteCursor uint64
	DrainCursor uint64
	Closed      bool
	Watchers    int
}

// NewQueue allocates a queue holding up to capacity bytes. The error is
// an *mirror.AllocationError when the region cannot be built.
func NewQueue(capacity int) (*Queue, error) {
	region, err := mirror.Allocate(capacity)
	if err != nil {
		return nil, err
	}
	queue := &Queue{
		region:     region,
		capacity:   uint64(capacity),
		spaceReady: make(chan struct{}, 1),
		dataReady:  make(chan struct{}, 1),
		watchers:   make(map[uint64]*TailReader),
	}
	queue.producer.queue = queue
	queue.drain.queue = queue
	return queue, nil
}

// Capacity returns the buffer size in bytes.
func (queue *Queue) Capacity() int {
	return int(queue.capacity)
}

// Producer returns the producer side of the queue.
func (queue *Queue) Producer() *Producer {
	return &queue.producer
}

// Drain returns the drain side of the queue.
func (queue *Queue) Drain() *Drain {
	return &queue.drain
}

// Stats returns a snapshot of the queue's cursors.
func (queue *Queue) Stats() QueueStats {
	queue.mutex.Lock()
	defer queue.mutex.Unlock()
	return QueueStats{
		Capacity:    queue.capacity,
		WriteCursor: queue.writeCursor,
		DrainCursor: queue.drainCursor,
		Closed:      queue.closed,
		Watchers:    len(queue.watchers),
	}
}

// Release unmaps the region. Every tail reader must have been closed
// and neither side may touch the queue afterwards.
func (queue *Queue) Release() error {
	queue.mutex.Lock()
	defer queue.mutex.Unlock()
	if len(queue.watchers) != 0 {
		panic(fmt.Sprintf("ring: releasing queue with %d attached readers", len(queue.watchers)))
	}
	return queue.region.Close()
}

// evictedBefore returns how many bytes starting at cursor are no longer
// intact. A byte at logical offset x survives until the producer writes
// x+capacity, and the producer may already be writing up to reserved.
// Caller must hold the mutex.
func (queue *Queue) evictedBefore(cursor uint64) uint64 {
	horizon := max(queue.writeCursor, queue.reserved)
	if horizon <= cursor+queue.capacity {
		return 0
	}
	return horizon - queue.capacity - cursor
}

// wakeWatchers pokes every attached tail reader. Caller must hold the
// mutex.
func (queue *Queue) wakeWatchers() {
	for _, watcher := range queue.watchers {
		signal(watcher.wake)
	}
}

// attach registers a new tail reader starting at offset zero.
func (queue *Queue) attach(ctx context.Context, onClose func()) *TailReader {
	queue.mutex.Lock()
	defer queue.mutex.Unlock()
	reader := &TailReader{
		queue:   queue,
		ctx:     ctx,
		id:      queue.nextWatcher,
		wake:    make(chan struct{}, 1),
		onClose: onClose,
	}
	queue.nextWatcher++
	queue.watchers[reader.id] = reader
	return reader
}

// detach removes a tail reader from the wake registry. Returns false if
// it was already detached.
func (queue *Queue) detach(reader *TailReader) bool {
	queue.mutex.Lock()
	defer queue.mutex.Unlock()
	if reader.detached {
		return false
	}
	reader.detached = true
	delete(queue.watchers, reader.id)
	return true
}

// signal performs a non-blocking send on a capacity-1 channel. A
// pending signal already covers this one.
func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// Producer is the filling side of a Queue.
type Producer struct {
	queue *Queue
}

// AcquireWriteSpace returns a writable window at the write cursor of up
// to drain+capacity-write bytes, capped at limit when limit > 0. It
// blocks while the buffer is full. The window stays reserved until the
// next Commit, which must follow every successful acquire.
//
// Returns ErrDrainClosed once the drain side is abandoned,
// ErrQueueClosed once the producer side is closed, or the context's
// error.
func (producer *Producer) AcquireWriteSpace(ctx context.Context, limit int) ([]byte, error) {
	queue := producer.queue
	for {
		queue.mutex.Lock()
		if queue.drainAbandoned {
			queue.mutex.Unlock()
			return nil, ErrDrainClosed
		}
		if queue.closed {
			queue.mutex.Unlock()
			return nil, ErrQueueClosed
		}
		free := queue.drainCursor + queue.capacity - queue.writeCursor
		if free > 0 {
			if limit > 0 && free > uint64(limit) {
				free = uint64(limit)
			}
			queue.reserved = queue.writeCursor + free
			window := queue.region.Slice(int(queue.writeCursor%queue.capacity), int(free))
			queue.mutex.Unlock()
			return window, nil
		}
		queue.mutex.Unlock()

		select {
		case <-queue.spaceReady:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Commit publishes the first n bytes of the acquired window and wakes
// the drain side and every tail reader. Commit(0) just releases the
// reservation. On an abandoned or closed queue nothing is published and
// the corresponding error is returned.
//
// Panics if n exceeds the acquired window.
func (producer *Producer) Commit(n int) error {
	queue := producer.queue
	queue.mutex.Lock()
	defer queue.mutex.Unlock()

	if n < 0 || queue.writeCursor+uint64(n) > queue.reserved {
		panic(fmt.Sprintf("ring: commit of %d bytes exceeds the %d-byte acquired window",
			n, queue.reserved-queue.writeCursor))
	}
	if queue.drainAbandoned {
		queue.reserved = queue.writeCursor
		return ErrDrainClosed
	}
	if queue.closed {
		queue.reserved = queue.writeCursor
		return ErrQueueClosed
	}

	queue.writeCursor += uint64(n)
	queue.reserved = queue.writeCursor
	if n > 0 {
		signal(queue.dataReady)
		queue.wakeWatchers()
	}
	return nil
}

// Close ends the stream. A nil err is a clean end of stream: the drain
// and tail readers see io.EOF after the committed bytes. A non-nil err
// is delivered to them instead. Only the first call has any effect;
// Close reports whether it was that call.
func (producer *Producer) Close(err error) bool {
	queue := producer.queue
	queue.mutex.Lock()
	defer queue.mutex.Unlock()
	if queue.closed {
		return false
	}
	queue.closed = true
	queue.closeError = err
	signal(queue.dataReady)
	signal(queue.spaceReady)
	queue.wakeWatchers()
	return true
}

// Drain is the consuming side of a Queue.
type Drain struct {
	queue *Queue
}

// FillReadable returns every committed byte the drain has not yet
// consumed, as one contiguous window, blocking while there are none. At
// the end of a cleanly closed stream it returns io.EOF; after a failed
// stream it returns the producer's error. The window is valid until the
// matching Consume.
func (drain *Drain) FillReadable(ctx context.Context) ([]byte, error) {
	queue := drain.queue
	for {
		queue.mutex.Lock()
		if queue.writeCursor > queue.drainCursor {
			window := queue.region.Slice(int(queue.drainCursor%queue.capacity),
				int(queue.writeCursor-queue.drainCursor))
			queue.mutex.Unlock()
			return window, nil
		}
		if queue.closed {
			err := queue.closeError
			queue.mutex.Unlock()
			if err == nil {
				return nil, io.EOF
			}
			return nil, err
		}
		if queue.drainAbandoned {
			queue.mutex.Unlock()
			return nil, ErrDrainClosed
		}
		queue.mutex.Unlock()

		select {
		case <-queue.dataReady:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Consume frees the first n bytes of the readable window and wakes the
// producer. Panics if n exceeds what FillReadable returned.
func (drain *Drain) Consume(n int) {
	queue := drain.queue
	queue.mutex.Lock()
	defer queue.mutex.Unlock()
	if n < 0 || queue.drainCursor+uint64(n) > queue.writeCursor {
		panic(fmt.Sprintf("ring: consume of %d bytes exceeds the %d readable bytes",
			n, queue.writeCursor-queue.drainCursor))
	}
	queue.drainCursor += uint64(n)
	if n > 0 {
		signal(queue.spaceReady)
	}
}

// Read implements io.Reader by copying out of the readable window and
// consuming what was copied.
func (drain *Drain) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	window, err := drain.FillReadable(context.Background())
	if err != nil {
		return 0, err
	}
	n := copy(p, window)
	drain.Consume(n)
	return n, nil
}

// Close abandons the drain side. The producer's next acquire or commit
// fails with ErrDrainClosed. Idempotent.
func (drain *Drain) Close() {
	queue := drain.queue
	queue.mutex.Lock()
	defer queue.mutex.Unlock()
	queue.drainAbandoned = true
	signal(queue.spaceReady)
	signal(queue.dataReady)
}
