// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ring

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// DefaultCapacity is the buffer size shared by every upload unless
// configured otherwise (512 KiB).
const DefaultCapacity = 512 * 1024

// DefaultReadChunkSize caps each read from the upload source. The
// window handed to a read in flight cannot be served to tail readers,
// so the cap bounds how much of the buffer a slow reader loses to it.
const DefaultReadChunkSize = 64 * 1024

// Phase is a Ring's lifecycle state.
type Phase int

const (
	// PhaseRunning: the consumer has not returned yet.
	PhaseRunning Phase = iota
	// PhaseConsumerSettled: the consumer returned and its result is
	// held until the attached readers finish.
	PhaseConsumerSettled
	// PhaseTerminated: no readers remain and the result is final.
	PhaseTerminated
)

func (phase Phase) String() string {
	switch phase {
	case PhaseRunning:
		return "running"
	case PhaseConsumerSettled:
		return "consumer-settled"
	case PhaseTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("phase(%d)", int(phase))
	}
}

// ConsumerFunc drains the queue to durable storage. It reads with
// FillReadable/Consume until io.EOF (return nil) or an error.
type ConsumerFunc func(ctx context.Context, drain *Drain) error

// Config configures a Ring.
type Config struct {
	// Capacity is the buffer size in bytes, a multiple of the page
	// size. Defaults to DefaultCapacity.
	Capacity int

	// ReadChunkSize caps each Source read. Defaults to
	// DefaultReadChunkSize. Zero or negative values use the default;
	// values above Capacity are clamped.
	ReadChunkSize int

	// Source is the upload body. Required.
	Source io.Reader

	// Consumer persists drained bytes. Required.
	Consumer ConsumerFunc

	// Interrupt, if set, is called when the ring stops producing
	// before the source reached its end (the consumer returned early
	// or the context was cancelled). It must make a blocked
	// Source.Read return, for example by setting a read deadline on
	// the underlying connection. Run waits for that read to return
	// before releasing the buffer.
	Interrupt func()

	// Logger receives lifecycle events. Defaults to discarding.
	Logger *slog.Logger
}

// Ring orchestrates one upload: the producer loop pulling from the
// source, the drain consumer, and the attached tail readers.
type Ring struct {
	queue     *Queue
	source    io.Reader
	consumer  ConsumerFunc
	interrupt func()
	readChunk int
	logger    *slog.Logger

	interruptOnce sync.Once

	mutex    sync.Mutex
	idle     *sync.Cond
	phase    Phase
	attached int
	started  bool
	result   error
}

// New allocates the buffer and returns a ring ready to Run. The error
// satisfies IsAllocationError when the buffer cannot be created.
func New(config Config) (*Ring, error) {
	if config.Source == nil {
		return nil, errors.New("ring: Source is required")
	}
	if config.Consumer == nil {
		return nil, errors.New("ring: Consumer is required")
	}
	capacity := config.Capacity
	if capacity == 0 {
		capacity = DefaultCapacity
	}
	readChunk := config.ReadChunkSize
	if readChunk <= 0 {
		readChunk = DefaultReadChunkSize
	}
	readChunk = min(readChunk, capacity)
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	queue, err := NewQueue(capacity)
	if err != nil {
		return nil, fmt.Errorf("creating ring buffer: %w", err)
	}

	ring := &Ring{
		queue:     queue,
		source:    config.Source,
		consumer:  config.Consumer,
		interrupt: config.Interrupt,
		readChunk: readChunk,
		logger:    logger,
	}
	ring.idle = sync.NewCond(&ring.mutex)
	return ring, nil
}

// Phase returns the current lifecycle phase.
func (ring *Ring) Phase() Phase {
	ring.mutex.Lock()
	defer ring.mutex.Unlock()
	return ring.phase
}

// Attached returns the number of tail readers currently attached.
func (ring *Ring) Attached() int {
	ring.mutex.Lock()
	defer ring.mutex.Unlock()
	return ring.attached
}

// Stats returns a snapshot of the buffer's cursors.
func (ring *Ring) Stats() QueueStats {
	return ring.queue.Stats()
}

// Attach creates a tail reader starting at offset zero. The context
// bounds the reader's blocking reads. The caller must Close the reader
// when done; Run does not return while readers are attached. Returns
// ErrTerminated once the ring has terminated.
func (ring *Ring) Attach(ctx context.Context) (*TailReader, error) {
	ring.mutex.Lock()
	defer ring.mutex.Unlock()
	if ring.phase == PhaseTerminated {
		return nil, ErrTerminated
	}
	ring.attached++
	reader := ring.queue.attach(ctx, ring.detach)
	ring.logger.Debug("tail reader attached", "reader", reader.ID(), "attached", ring.attached)
	return reader, nil
}

func (ring *Ring) detach() {
	ring.mutex.Lock()
	defer ring.mutex.Unlock()
	ring.attached--
	if ring.attached == 0 {
		ring.idle.Broadcast()
	}
}

// Run drives the upload to completion and returns the consumer's
// result. It returns only after the consumer returned, the producer
// loop exited, and every attached reader was closed; the buffer is
// released on return. Tail reader failures never affect the result.
//
// If the consumer returns before the source ends, the stream is closed
// cleanly for tail readers (they serve what was committed, then see
// io.EOF) and the source is interrupted. Cancelling ctx interrupts the
// source and closes the stream with a *SourceError wrapping both the
// read's error and the context's. The consumer's own context is not
// cancelled with ctx: it learns of the cancellation through that
// error, after persisting everything committed before it.
func (ring *Ring) Run(ctx context.Context) error {
	ring.mutex.Lock()
	if ring.started {
		ring.mutex.Unlock()
		return ErrAlreadyRunning
	}
	ring.started = true
	ring.mutex.Unlock()

	runContext, cancel := context.WithCancel(ctx)
	defer cancel()

	producerDone := make(chan struct{})
	go func() {
		defer close(producerDone)
		ring.produce(runContext)
	}()
	go func() {
		select {
		case <-ctx.Done():
			ring.stopSource()
		case <-producerDone:
		}
	}()

	// Every producer exit closes the queue or follows a closed drain,
	// so the consumer always reaches the end of the stream.
	consumerContext, cancelConsumer := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelConsumer()

	consumerDone := make(chan error, 1)
	go func() {
		drain := ring.queue.Drain()
		err := ring.consumer(consumerContext, drain)
		drain.Close()
		consumerDone <- err
	}()

	result := <-consumerDone
	ring.settle(result)

	// Whatever the producer had not committed is discarded; readers
	// see the end of the stream at the current write cursor.
	if ring.queue.Producer().Close(nil) {
		ring.logger.Debug("consumer finished before the source; stopping producer")
	}
	select {
	case <-producerDone:
	default:
		ring.stopSource()
		<-producerDone
	}

	ring.awaitReaders()

	if err := ring.queue.Release(); err != nil {
		ring.logger.Error("releasing ring buffer", "error", err)
	}
	return result
}

// settle records the consumer's result and leaves PhaseRunning. With no
// readers attached the ring terminates directly.
func (ring *Ring) settle(result error) {
	ring.mutex.Lock()
	defer ring.mutex.Unlock()
	ring.result = result
	if ring.attached == 0 {
		ring.phase = PhaseTerminated
	} else {
		ring.phase = PhaseConsumerSettled
	}
	ring.logger.Debug("consumer settled", "phase", ring.phase.String(), "attached", ring.attached, "error", result)
}

// awaitReaders blocks until no reader is attached, then terminates.
func (ring *Ring) awaitReaders() {
	ring.mutex.Lock()
	defer ring.mutex.Unlock()
	for ring.attached > 0 {
		ring.idle.Wait()
	}
	ring.phase = PhaseTerminated
}

func (ring *Ring) stopSource() {
	if ring.interrupt == nil {
		return
	}
	ring.interruptOnce.Do(ring.interrupt)
}

// produce pulls from the source into the queue until the source ends,
// fails, or the queue stops accepting data.
func (ring *Ring) produce(ctx context.Context) {
	producer := ring.queue.Producer()
	for {
		window, err := producer.AcquireWriteSpace(ctx, ring.readChunk)
		if err != nil {
			if errors.Is(err, ErrDrainClosed) || errors.Is(err, ErrQueueClosed) {
				return
			}
			producer.Close(&SourceError{Err: err})
			return
		}

		n, readErr := ring.source.Read(window)
		if commitErr := producer.Commit(n); commitErr != nil {
			return
		}
		if readErr == nil {
			continue
		}
		if readErr == io.EOF {
			producer.Close(nil)
			return
		}
		if ctx.Err() != nil {
			// Keep the read's own cause: a source may fail on its own
			// (an expired deadline) just before the context ends.
			readErr = errors.Join(readErr, ctx.Err())
		}
		producer.Close(&SourceError{Err: readErr})
		return
	}
}
