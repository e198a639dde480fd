// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source for testability.
//
// Code that stamps or measures time accepts a Clock instead of calling
// time.Now directly. In production, Real() reads the system clock. In
// tests, Fake() provides a clock that moves only when told to, so
// timestamps, durations and read deadlines derived from it are exact.
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	server := ingest.NewServer(ingest.ServerConfig{Clock: c, ...})
//	c.Advance(5 * time.Second)
package clock
