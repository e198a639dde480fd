// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package service provides the process scaffolding ingestd runs on.
//
//   - HTTP serving: [HTTPServer] binds a TCP address, a Unix socket, or
//     a listener inherited from the service manager, serves until its
//     context is cancelled, and shuts down gracefully.
//   - Logging: [NewLogger] builds the process-wide JSON slog logger.
//   - Request scoping: [WithRequestID] tags every request with a UUID
//     that handlers attach to their log lines, and [LogRequests]
//     records one line per completed request.
//
// The daemon composes these in main(); the package provides building
// blocks, not a runtime.
package service
