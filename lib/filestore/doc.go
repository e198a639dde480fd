// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package filestore is the durable side of an upload: it maps request
// paths onto files under the web root and persists a ring's drain to
// the upload's file.
//
// [Root.Resolve] turns the escaped path of a request URL into a
// filesystem path, refusing anything that would escape the root.
// [Create] opens the file an upload writes (parents created, contents
// truncated, opened read-write so live readers can fall back to it).
//
// [WriteFromDrain] is the drain consumer: it writes committed bytes at
// increasing offsets with positional writes, consumes each chunk only
// once it is in the file, and computes a BLAKE3 digest of everything it
// persisted. Because the ring never evicts bytes the drain has not
// consumed, a tail reader that was overrun can always read the evicted
// range back from the same file with ReadAt.
package filestore
