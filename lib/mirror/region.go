// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mirror

import (
	"errors"
	"fmt"
	"unsafe"
)

// ErrUnsupported is wrapped in the AllocationError returned by
// Allocate on platforms without memfd_create.
var ErrUnsupported = errors.New("mirror: double-mapped regions are not supported on this platform")

// AllocationError reports a failed step while building a Region. Op
// names the step ("size", "memfd_create", "ftruncate", "reserve",
// "mmap"). Any mappings created before the failure have already been
// released when this error is returned.
type AllocationError struct {
	Op       string
	Capacity int
	Err      error
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("mirror: allocating %d-byte region: %s: %v", e.Capacity, e.Op, e.Err)
}

func (e *AllocationError) Unwrap() error { return e.Err }

// Region is a double-mapped byte region. See the package documentation.
type Region struct {
	// base is the start of the 2*capacity reservation. Both halves
	// alias the same memfd pages.
	base     unsafe.Pointer
	data     []byte
	capacity int
}

// Capacity returns the number of distinct bytes the region holds.
func (region *Region) Capacity() int {
	return region.capacity
}

// Slice returns a contiguous view of length bytes starting at virtual
// index offset mod Capacity. Writes through the view are visible
// through every other view that covers the same logical bytes.
//
// Panics if length is negative or exceeds Capacity, or if the region
// has been closed.
func (region *Region) Slice(offset, length int) []byte {
	if region.data == nil {
		panic("mirror: slice of closed region")
	}
	if length < 0 || length > region.capacity {
		panic(fmt.Sprintf("mirror: slice length %d outside [0, %d]", length, region.capacity))
	}
	start := offset % region.capacity
	if start < 0 {
		start += region.capacity
	}
	return region.data[start : start+length : start+length]
}

// Closed reports whether Close has been called.
func (region *Region) Closed() bool {
	return region.data == nil
}
