// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ingest

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/bureau-foundation/ingestd/lib/ring"
)

// ErrUploadInProgress is returned by Registry.Begin when the path
// already has an upload in flight.
var ErrUploadInProgress = errors.New("ingest: upload already in progress")

// Upload is one in-flight upload. The ring is attached by Start once
// the buffer exists. Until then the path is reserved and Lookup waits:
// the file may already be truncated, so it is not served at rest.
type Upload struct {
	path      string
	name      string
	requestID string
	started   time.Time

	mutex     sync.Mutex
	ring      *ring.Ring
	ready     chan struct{}
	readyOnce sync.Once
}

// Path returns the resolved filesystem path.
func (upload *Upload) Path() string {
	return upload.path
}

// Start publishes the upload's ring, making it visible to Lookup. Only
// the first Start, or the Finish of an upload that never started, has
// any effect.
func (upload *Upload) Start(r *ring.Ring) {
	upload.readyOnce.Do(func() {
		upload.mutex.Lock()
		upload.ring = r
		upload.mutex.Unlock()
		close(upload.ready)
	})
}

// Ring returns the upload's ring, or nil before Start.
func (upload *Upload) Ring() *ring.Ring {
	upload.mutex.Lock()
	defer upload.mutex.Unlock()
	return upload.ring
}

// UploadStatus is a snapshot of one in-flight upload, as reported by
// the status endpoint.
type UploadStatus struct {
	// Path is the request path relative to the web root.
	Path      string    `json:"path"`
	RequestID string    `json:"request_id,omitempty"`
	Started   time.Time `json:"started"`

	// Phase is "starting" until the ring exists, then the ring's
	// phase.
	Phase    string `json:"phase"`
	Readers  int    `json:"readers"`
	Capacity uint64 `json:"capacity,omitempty"`

	// Received is the number of bytes committed from the upload body,
	// Persisted the number written to the file.
	Received  uint64 `json:"received"`
	Persisted uint64 `json:"persisted"`
}

// Registry maps resolved filesystem paths to their in-flight uploads.
// It is safe for concurrent use.
type Registry struct {
	mutex   sync.Mutex
	uploads map[string]*Upload
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{uploads: make(map[string]*Upload)}
}

// Begin reserves path for a new upload. name is the path as the client
// wrote it, relative to the web root. Returns ErrUploadInProgress if
// the path is taken. The caller must Finish the upload.
func (registry *Registry) Begin(path, name, requestID string, started time.Time) (*Upload, error) {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	if _, exists := registry.uploads[path]; exists {
		return nil, ErrUploadInProgress
	}
	upload := &Upload{
		path:      path,
		name:      name,
		requestID: requestID,
		started:   started,
		ready:     make(chan struct{}),
	}
	registry.uploads[path] = upload
	return upload, nil
}

// Finish releases the upload's path and wakes any Lookup still
// waiting for a ring that will now never exist. A later upload to the
// same path is unaffected by a stale Finish.
func (registry *Registry) Finish(upload *Upload) {
	upload.Start(nil)
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	if registry.uploads[upload.path] == upload {
		delete(registry.uploads, upload.path)
	}
}

// Lookup returns the ring of the upload running at path, or nil if
// there is none. For a path reserved by Begin it waits until the
// upload starts or is abandoned, or until ctx is done.
func (registry *Registry) Lookup(ctx context.Context, path string) *ring.Ring {
	registry.mutex.Lock()
	upload := registry.uploads[path]
	registry.mutex.Unlock()
	if upload == nil {
		return nil
	}
	select {
	case <-upload.ready:
		return upload.Ring()
	case <-ctx.Done():
		return nil
	}
}

// Len returns the number of in-flight uploads.
func (registry *Registry) Len() int {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	return len(registry.uploads)
}

// Snapshot reports every in-flight upload, ordered by path.
func (registry *Registry) Snapshot() []UploadStatus {
	registry.mutex.Lock()
	uploads := make([]*Upload, 0, len(registry.uploads))
	for _, upload := range registry.uploads {
		uploads = append(uploads, upload)
	}
	registry.mutex.Unlock()

	statuses := make([]UploadStatus, 0, len(uploads))
	for _, upload := range uploads {
		status := UploadStatus{
			Path:      upload.name,
			RequestID: upload.requestID,
			Started:   upload.started,
			Phase:     "starting",
		}
		if r := upload.Ring(); r != nil {
			stats := r.Stats()
			status.Phase = r.Phase().String()
			status.Readers = r.Attached()
			status.Capacity = stats.Capacity
			status.Received = stats.WriteCursor
			status.Persisted = stats.DrainCursor
		}
		statuses = append(statuses, status)
	}
	slices.SortFunc(statuses, func(a, b UploadStatus) int {
		return strings.Compare(a.Path, b.Path)
	})
	return statuses
}
