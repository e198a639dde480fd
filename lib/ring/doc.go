// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ring implements the live-tailing buffer that sits between an
// upload in progress and everyone who wants to read it.
//
// One [Ring] exists per upload. It owns a [Queue] built on a
// double-mapped [mirror.Region] with three kinds of participant:
//
//   - the producer, which reads the upload body directly into free
//     space in the region and commits it;
//   - the drain consumer, which sequentially persists committed bytes
//     (see lib/filestore) and frees the space they occupied;
//   - any number of [TailReader] attachments, which replay committed
//     bytes from offset zero without consuming them.
//
// Cursors are absolute byte offsets since the start of the stream.
// The queue keeps drain <= write <= drain+capacity, so the producer
// waits while the drain lags by a full buffer. Tail readers never hold
// anything back: a reader that falls more than a buffer behind the
// producer is overrun, and [FallbackReader] recovers the evicted bytes
// from durable storage before rejoining the live tail. The drain
// consumer is always at least as far along as the eviction horizon, so
// every evicted byte is already durable.
//
// A Ring moves through three phases: Running while the consumer is
// active, ConsumerSettled once the consumer returned but readers are
// still attached, and Terminated after the last reader detached. [Ring.Run]
// returns the consumer's result only on reaching Terminated, and only
// then releases the region. Readers can attach in either of the first
// two phases.
package ring
