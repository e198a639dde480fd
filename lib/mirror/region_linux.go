// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package mirror

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Allocate creates a Region holding capacity bytes. The capacity must
// be a positive multiple of the page size. On failure the returned
// error is an *AllocationError and no mappings remain.
func Allocate(capacity int) (*Region, error) {
	pageSize := os.Getpagesize()
	if capacity <= 0 || capacity%pageSize != 0 {
		return nil, &AllocationError{
			Op:       "size",
			Capacity: capacity,
			Err:      fmt.Errorf("capacity must be a positive multiple of the page size (%d)", pageSize),
		}
	}

	fd, err := unix.MemfdCreate("ingestd-ring", unix.MFD_CLOEXEC)
	if err != nil {
		return nil, &AllocationError{Op: "memfd_create", Capacity: capacity, Err: err}
	}
	// The mappings hold their own reference to the memory object, so
	// the descriptor is not needed once both halves are mapped.
	defer unix.Close(fd)

	if err := unix.Ftruncate(fd, int64(capacity)); err != nil {
		return nil, &AllocationError{Op: "ftruncate", Capacity: capacity, Err: err}
	}

	// Reserve 2*capacity of contiguous address space first so that the
	// two shared mappings can be placed at fixed, adjacent addresses
	// without colliding with anything else in the process.
	length := uintptr(2 * capacity)
	base, err := unix.MmapPtr(-1, 0, nil, length, unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, &AllocationError{Op: "reserve", Capacity: capacity, Err: err}
	}

	for _, half := range [2]int{0, capacity} {
		address := unsafe.Add(base, half)
		if _, err := unix.MmapPtr(fd, 0, address, uintptr(capacity),
			unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_FIXED); err != nil {
			unix.MunmapPtr(base, length)
			return nil, &AllocationError{Op: "mmap", Capacity: capacity, Err: err}
		}
	}

	return &Region{
		base:     base,
		data:     unsafe.Slice((*byte)(base), 2*capacity),
		capacity: capacity,
	}, nil
}

// Close unmaps both halves of the region. Slices previously returned
// by Slice must not be touched afterwards. Close is idempotent.
func (region *Region) Close() error {
	if region.data == nil {
		return nil
	}
	region.data = nil
	if err := unix.MunmapPtr(region.base, uintptr(2*region.capacity)); err != nil {
		return fmt.Errorf("mirror: munmap failed: %w", err)
	}
	region.base = nil
	return nil
}
