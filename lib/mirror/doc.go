// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package mirror provides a fixed-capacity byte region that is mapped
// twice, back to back, in virtual memory.
//
// A [Region] of capacity C reserves 2*C bytes of address space and maps
// one shared memory object of C bytes at both the base address and
// base+C. Virtual offsets o and o+C therefore alias the same physical
// byte, and any window of up to C bytes starting anywhere in [0, C) is
// a single contiguous slice even when it logically wraps past the end
// of the buffer. Ring buffers built on a Region never need to split a
// read or write at the wrap boundary.
//
// The mapping calls are confined to [Allocate] and [Region.Close]. All
// other access goes through [Region.Slice], which returns ordinary Go
// slices over the mapped memory. The memory lives outside the Go heap:
// slices obtained from a Region must not be used after Close.
//
// Region does no synchronization of its own. Callers that share a
// Region between goroutines (see lib/ring) provide their own locking.
//
// The double mapping relies on memfd_create, so Allocate only succeeds
// on Linux. Capacity must be a positive multiple of the OS page size.
package mirror
