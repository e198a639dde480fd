// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/bureau-foundation/ingestd/lib/filestore"
	"github.com/bureau-foundation/ingestd/lib/netutil"
	"github.com/bureau-foundation/ingestd/lib/ring"
	"github.com/bureau-foundation/ingestd/lib/service"
)

// handleGet serves GET and HEAD. A file whose upload is running is
// streamed live from that upload's ring; anything else is served from
// the file at rest, with ranges and conditional requests.
func (s *Server) handleGet(writer http.ResponseWriter, request *http.Request) {
	filesystemPath, ok := s.resolve(writer, request)
	if !ok {
		return
	}
	writer.Header().Set("Content-Type", contentType(filesystemPath))

	if live := s.uploads.Lookup(request.Context(), filesystemPath); live != nil {
		if s.serveLive(writer, request, live, filesystemPath) {
			return
		}
	}
	s.serveAtRest(writer, request, filesystemPath)
}

// serveLive streams an in-flight upload from offset zero to the end of
// the upload. It reports false, having written nothing, when the upload
// finished before a reader could attach. HEAD is answered without
// attaching.
//
// The stream has no Content-Length. If the upload fails mid-stream the
// response is aborted, so the client sees a truncated transfer rather
// than a short file.
func (s *Server) serveLive(writer http.ResponseWriter, request *http.Request, live *ring.Ring, filesystemPath string) bool {
	if request.Method == http.MethodHead {
		if live.Phase() == ring.PhaseTerminated {
			return false
		}
		writer.WriteHeader(http.StatusOK)
		return true
	}

	logger := s.logger.With(
		"path", s.root.Relative(filesystemPath),
		"request_id", service.RequestID(request.Context()),
	)

	// The file is opened before attaching: every byte the reader can
	// lose to eviction has been written to it by then.
	file, _, err := filestore.Open(filesystemPath)
	if err != nil {
		logger.Debug("live file not openable, serving at rest", "error", err)
		return false
	}
	defer file.Close()

	tail, err := live.Attach(request.Context())
	if errors.Is(err, ring.ErrTerminated) {
		return false
	}
	if err != nil {
		logger.Error("attaching to upload", "error", err)
		s.sendText(writer, http.StatusInternalServerError, messageInternal)
		return true
	}
	defer tail.Close()

	writer.WriteHeader(http.StatusOK)

	reader := ring.NewFallbackReader(tail, file)
	controller := http.NewResponseController(writer)
	buffer := make([]byte, s.readChunk)
	for {
		n, readErr := reader.Read(buffer)
		if n > 0 {
			if _, err := writer.Write(buffer[:n]); err != nil {
				logStreamEnd(request.Context(), logger, reader, err)
				return true
			}
			if err := controller.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
				logStreamEnd(request.Context(), logger, reader, err)
				return true
			}
		}
		if readErr == io.EOF {
			logger.Debug("live stream complete",
				"bytes", reader.Offset(),
				"fallback_reads", reader.FallbackReads(),
				"fallback_bytes", reader.FallbackBytes(),
			)
			return true
		}
		if readErr != nil {
			if request.Context().Err() != nil {
				logStreamEnd(request.Context(), logger, reader, request.Context().Err())
				return true
			}
			logger.Warn("live stream failed",
				"bytes", reader.Offset(),
				"error", readErr,
			)
			panic(http.ErrAbortHandler)
		}
	}
}

// logStreamEnd records a live stream the client abandoned.
func logStreamEnd(ctx context.Context, logger *slog.Logger, reader *ring.FallbackReader, err error) {
	level := slog.LevelWarn
	if netutil.IsExpectedCloseError(err) || errors.Is(err, context.Canceled) {
		level = slog.LevelDebug
	}
	logger.Log(ctx, level, "live stream ended by client", "bytes", reader.Offset(), "error", err)
}

// serveAtRest serves a stored file. http.ServeContent sets
// Content-Length and answers HEAD, Range and If-Modified-Since.
func (s *Server) serveAtRest(writer http.ResponseWriter, request *http.Request, filesystemPath string) {
	file, info, err := filestore.Open(filesystemPath)
	if err != nil {
		if filestore.IsNotFound(err) {
			s.sendText(writer, http.StatusNotFound, messageNotFound)
			return
		}
		s.logger.Error("opening file",
			"path", s.root.Relative(filesystemPath),
			"error", err,
			"request_id", service.RequestID(request.Context()),
		)
		s.sendText(writer, http.StatusInternalServerError, messageInternal)
		return
	}
	defer file.Close()
	http.ServeContent(writer, request, "", info.ModTime(), file)
}
