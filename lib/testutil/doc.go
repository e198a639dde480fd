// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for ingestd packages.
//
// [RequireReceive], [RequireClosed] and [RequireBlocked] wrap the
// timeout safety valve pattern (select with a time.After fallback) so
// that tests exercising goroutines never hang and never sleep to
// synchronize. They are the only place in the test suite that reads
// the wall clock.
//
// [SocketDir] returns a short temporary directory for Unix domain
// sockets, whose paths are limited to 108 bytes. [TempWebRoot] builds
// a throwaway web root populated with files.
//
// [Pattern] produces deterministic, non-repeating test payloads, and
// [ChunkedReader] replays a payload through an io.Reader that hands
// out bytes only when the test releases them, which lets tests place
// the producer of a live stream exactly where they need it.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
package testutil
