// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"errors"
	"io"
	"sync"
)

// Pattern returns length bytes whose content depends on position, so a
// gap, duplicate, or reordering anywhere in a copy shows up as a
// mismatch. The sequence has a period of 251 (a prime), which never
// lines up with power-of-two buffer sizes.
func Pattern(length int) []byte {
	data := make([]byte, length)
	for index := range data {
		data[index] = byte(index % 251)
	}
	return data
}

// ChunkedReader is an io.Reader over a queue of chunks that the test
// feeds with Send. Each Read returns at most one chunk (split if p is
// short) and blocks while the queue is empty. Finish makes Read return
// io.EOF, or the given error, after the queued chunks drain.
//
// Reads can also be interrupted with Interrupt, mirroring a read
// deadline on a network connection.
type ChunkedReader struct {
	mutex       sync.Mutex
	chunks      [][]byte
	finished    bool
	finishError error
	interrupted bool
	changed     chan struct{}

	// reads receives a value every time Read is entered, which lets a
	// test wait until the producer is blocked on the source.
	reads chan struct{}
}

// ErrInterrupted is returned by ChunkedReader.Read after Interrupt.
var ErrInterrupted = errors.New("testutil: read interrupted")

// NewChunkedReader returns an empty ChunkedReader.
func NewChunkedReader() *ChunkedReader {
	return &ChunkedReader{
		changed: make(chan struct{}, 1),
		reads:   make(chan struct{}, 1024),
	}
}

// Send queues a chunk for a future Read.
func (reader *ChunkedReader) Send(chunk []byte) {
	reader.mutex.Lock()
	reader.chunks = append(reader.chunks, append([]byte(nil), chunk...))
	reader.mutex.Unlock()
	reader.poke()
}

// Finish ends the stream after the queued chunks. A nil err means a
// clean io.EOF.
func (reader *ChunkedReader) Finish(err error) {
	reader.mutex.Lock()
	reader.finished = true
	reader.finishError = err
	reader.mutex.Unlock()
	reader.poke()
}

// Interrupt makes every pending and future Read fail with
// ErrInterrupted.
func (reader *ChunkedReader) Interrupt() {
	reader.mutex.Lock()
	reader.interrupted = true
	reader.mutex.Unlock()
	reader.poke()
}

// Reads returns a channel that receives a value each time Read starts.
func (reader *ChunkedReader) Reads() <-chan struct{} {
	return reader.reads
}

// Read implements io.Reader.
func (reader *ChunkedReader) Read(p []byte) (int, error) {
	select {
	case reader.reads <- struct{}{}:
	default:
	}
	for {
		reader.mutex.Lock()
		if reader.interrupted {
			reader.mutex.Unlock()
			return 0, ErrInterrupted
		}
		if len(reader.chunks) > 0 {
			n := copy(p, reader.chunks[0])
			if n == len(reader.chunks[0]) {
				reader.chunks = reader.chunks[1:]
			} else {
				reader.chunks[0] = reader.chunks[0][n:]
			}
			reader.mutex.Unlock()
			return n, nil
		}
		if reader.finished {
			err := reader.finishError
			reader.mutex.Unlock()
			if err == nil {
				return 0, io.EOF
			}
			return 0, err
		}
		reader.mutex.Unlock()
		<-reader.changed
	}
}

func (reader *ChunkedReader) poke() {
	select {
	case reader.changed <- struct{}{}:
	default:
	}
}
