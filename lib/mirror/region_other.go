// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package mirror

// Allocate always fails on this platform: the double mapping needs an
// anonymous shared memory object (memfd_create).
func Allocate(capacity int) (*Region, error) {
	return nil, &AllocationError{Op: "memfd_create", Capacity: capacity, Err: ErrUnsupported}
}

// Close is a no-op; no Region can be allocated on this platform.
func (region *Region) Close() error {
	region.data = nil
	return nil
}
