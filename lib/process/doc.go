// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds entrypoint helpers for the ingestd binary:
// reporting an error from run() to stderr before the structured logger
// exists, and exiting.
package process
