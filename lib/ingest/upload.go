// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ingest

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/bureau-foundation/ingestd/lib/filestore"
	"github.com/bureau-foundation/ingestd/lib/netutil"
	"github.com/bureau-foundation/ingestd/lib/ring"
	"github.com/bureau-foundation/ingestd/lib/service"
)

// Headers on a successful upload response.
const (
	// DigestHeader carries the lowercase hex BLAKE3-256 digest of the
	// stored file.
	DigestHeader = "X-Content-Blake3"

	// StoredBytesHeader carries the stored file's length.
	StoredBytesHeader = "X-Stored-Bytes"
)

// errUploadInterrupted is returned by the body reader after the ring
// stopped the upload.
var errUploadInterrupted = errors.New("ingest: upload interrupted")

// handlePut stores the request body at the request path while letting
// GET requests for that path follow along.
func (s *Server) handlePut(writer http.ResponseWriter, request *http.Request) {
	requestID := service.RequestID(request.Context())
	filesystemPath, ok := s.resolve(writer, request)
	if !ok {
		return
	}
	name := s.root.Relative(filesystemPath)
	logger := s.logger.With("path", name, "request_id", requestID)

	started := s.clock.Now()
	upload, err := s.uploads.Begin(filesystemPath, name, requestID, started)
	if errors.Is(err, ErrUploadInProgress) {
		logger.Info("rejecting concurrent upload")
		s.sendText(writer, http.StatusConflict, messageConflict)
		return
	}
	defer s.uploads.Finish(upload)

	file, err := filestore.Create(filesystemPath)
	if err != nil {
		logger.Error("opening upload file", "error", err)
		s.sendText(writer, http.StatusInternalServerError, messageInternal)
		return
	}
	defer file.Close()

	body := newDeadlineReader(request.Body, http.NewResponseController(writer), s.idleTimeout)
	var result filestore.WriteResult
	live, err := ring.New(ring.Config{
		Capacity:      s.ringCapacity,
		ReadChunkSize: s.ringReadChunk,
		Source:        body,
		Consumer: func(ctx context.Context, drain *ring.Drain) error {
			var writeErr error
			result, writeErr = filestore.WriteFromDrain(ctx, file, drain, filestore.WriteOptions{
				ChunkSize: s.writeChunk,
			})
			return writeErr
		},
		Interrupt: body.Interrupt,
		Logger:    logger,
	})
	if err != nil {
		logger.Error("allocating upload buffer", "error", err, "allocation", ring.IsAllocationError(err))
		s.sendText(writer, http.StatusInternalServerError, messageInternal)
		return
	}
	upload.Start(live)
	logger.Debug("upload started")

	runErr := live.Run(request.Context())
	s.uploads.Finish(upload)
	elapsed := service.Elapsed(s.clock, started)

	var sourceErr *ring.SourceError
	switch {
	case runErr == nil:
		logger.Info("upload complete",
			"bytes", result.Bytes,
			"size", humanize.IBytes(uint64(result.Bytes)),
			"blake3", result.DigestHex(),
			"duration", elapsed,
		)
		writer.Header().Set(DigestHeader, result.DigestHex())
		writer.Header().Set(StoredBytesHeader, strconv.FormatInt(result.Bytes, 10))
		writer.WriteHeader(http.StatusCreated)

	case errors.As(runErr, &sourceErr) && netutil.IsTimeout(sourceErr.Err):
		logger.Warn("upload timed out",
			"bytes", result.Bytes,
			"idle_timeout", s.idleTimeout,
			"duration", elapsed,
		)
		s.sendText(writer, http.StatusRequestTimeout, messageUploadTimeout)

	case request.Context().Err() != nil:
		// The uploader is gone; the response is a formality.
		logger.Info("upload cancelled",
			"bytes", result.Bytes,
			"error", runErr,
			"duration", elapsed,
		)
		s.sendText(writer, http.StatusBadRequest, messageUploadAborted)

	case errors.As(runErr, &sourceErr):
		logger.Warn("upload body failed",
			"bytes", result.Bytes,
			"error", sourceErr.Err,
			"duration", elapsed,
		)
		s.sendText(writer, http.StatusBadRequest, messageUploadAborted)

	default:
		logger.Error("storing upload",
			"bytes", result.Bytes,
			"error", runErr,
			"duration", elapsed,
		)
		s.sendText(writer, http.StatusInternalServerError, messageInternal)
	}
}

// deadlineReader reads an upload body with a read deadline that is
// pushed forward before every read, so an idle connection times out.
// Interrupt makes a blocked read return by setting a deadline in the
// past; that read then fails with errUploadInterrupted unless the idle
// deadline had expired as well.
type deadlineReader struct {
	body       io.Reader
	controller *http.ResponseController
	idle       time.Duration

	mutex        sync.Mutex
	interrupted  bool
	idleDeadline time.Time
}

func newDeadlineReader(body io.Reader, controller *http.ResponseController, idle time.Duration) *deadlineReader {
	return &deadlineReader{body: body, controller: controller, idle: idle}
}

func (reader *deadlineReader) Read(p []byte) (int, error) {
	reader.mutex.Lock()
	if reader.interrupted {
		reader.mutex.Unlock()
		return 0, errUploadInterrupted
	}
	if reader.idle > 0 {
		// Connection deadlines are wall-clock instants.
		reader.idleDeadline = time.Now().Add(reader.idle)
		_ = reader.controller.SetReadDeadline(reader.idleDeadline)
	}
	reader.mutex.Unlock()

	n, err := reader.body.Read(p)
	if err == nil || err == io.EOF {
		return n, err
	}
	reader.mutex.Lock()
	defer reader.mutex.Unlock()
	if reader.interrupted && !reader.idleExpired() {
		return n, errUploadInterrupted
	}
	return n, err
}

func (reader *deadlineReader) idleExpired() bool {
	return reader.idle > 0 && !time.Now().Before(reader.idleDeadline)
}

// Interrupt fails the pending read, if any, and every later one. On a
// writer without deadline support only later reads fail.
func (reader *deadlineReader) Interrupt() {
	reader.mutex.Lock()
	defer reader.mutex.Unlock()
	reader.interrupted = true
	_ = reader.controller.SetReadDeadline(time.Now())
}
