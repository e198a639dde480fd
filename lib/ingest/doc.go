// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ingest is the HTTP surface of the ingest daemon.
//
// A [Server] exposes two handlers. The private handler accepts uploads
// (PUT), removals (DELETE) and a status report (GET /_status). Each
// upload body runs through its own [ring.Ring] and is written to the
// file under the web root as it arrives. The public handler serves
// files (GET, HEAD). A GET for a path whose upload is still running
// attaches a tail reader to that upload's ring and streams the file
// live, recovering from storage whatever the reader falls behind on;
// any other GET is served from the file at rest.
//
// In-flight uploads are tracked by a [Registry] keyed by resolved
// filesystem path, which also enforces one upload per path.
package ingest
