// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package filestore

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/ingestd/lib/ring"
)

// DefaultWriteChunkSize is the largest single positional write issued
// to the file.
const DefaultWriteChunkSize = 4096

// WriteOptions tunes WriteFromDrain.
type WriteOptions struct {
	// ChunkSize caps each WriteAt. Zero or negative values use
	// DefaultWriteChunkSize.
	ChunkSize int
}

// WriteResult describes what WriteFromDrain persisted.
type WriteResult struct {
	// Bytes is the number of bytes written, which is also the final
	// file length.
	Bytes int64

	// Digest is the 32-byte BLAKE3 hash of the written bytes. Only set
	// when the stream ended cleanly.
	Digest []byte
}

// DigestHex returns the digest in lowercase hex, or "" if there is
// none.
func (result WriteResult) DigestHex() string {
	if result.Digest == nil {
		return ""
	}
	return hex.EncodeToString(result.Digest)
}

// WriteFromDrain persists the drain side of a ring to file, starting at
// offset zero. Bytes are hashed and written in order and consumed only
// after the write covering them returned, which is what makes every
// byte a tail reader can lose already readable from file.
//
// It returns when the stream ends cleanly (nil error, complete digest),
// when the stream fails (the drain's error verbatim, typically a
// *ring.SourceError), or when a write fails.
func WriteFromDrain(ctx context.Context, file io.WriterAt, drain *ring.Drain, options WriteOptions) (WriteResult, error) {
	chunkSize := options.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultWriteChunkSize
	}
	hasher := blake3.New()
	var offset int64

	for {
		window, err := drain.FillReadable(ctx)
		if err == io.EOF {
			return WriteResult{Bytes: offset, Digest: hasher.Sum(nil)}, nil
		}
		if err != nil {
			return WriteResult{Bytes: offset}, err
		}

		for len(window) > 0 {
			length := min(len(window), chunkSize)
			written, err := file.WriteAt(window[:length], offset)
			if written > 0 {
				// Hash before consuming: once consumed, the producer
				// may overwrite these bytes.
				hasher.Write(window[:written])
				offset += int64(written)
				drain.Consume(written)
				window = window[written:]
			}
			if err == nil && written == 0 {
				err = io.ErrShortWrite
			}
			if err != nil {
				return WriteResult{Bytes: offset}, fmt.Errorf("writing upload at offset %d: %w", offset, err)
			}
		}
	}
}
