// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ingest

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/klauspost/compress/gzhttp"

	"github.com/bureau-foundation/ingestd/lib/clock"
	"github.com/bureau-foundation/ingestd/lib/filestore"
	"github.com/bureau-foundation/ingestd/lib/ring"
	"github.com/bureau-foundation/ingestd/lib/service"
)

// Response bodies for the error statuses clients act on.
const (
	messageNotFound      = "File not found."
	messageConflict      = "This file is already being uploaded."
	messageInvalidPath   = "Invalid path."
	messageInternal      = "An internal server error occurred."
	messageUploadTimeout = "Upload timed out."
	messageUploadAborted = "Upload interrupted."
)

// defaultDownloadBuffer is the live streaming buffer when ReadChunk is
// unset.
const defaultDownloadBuffer = 64 * 1024

// statusPath is the private listener's status endpoint. It shadows a
// file of the same name, which stays reachable on the public listener.
const statusPath = "/_status"

// ServerConfig configures a Server.
type ServerConfig struct {
	// Root is the web root request paths resolve under. Required.
	Root *filestore.Root

	// RingCapacity is the live buffer size per upload, a multiple of
	// the page size. Defaults to ring.DefaultCapacity.
	RingCapacity int

	// RingReadChunk caps each read from an upload body. Defaults to
	// ring.DefaultReadChunkSize.
	RingReadChunk int

	// WriteChunk caps each positional write to the upload file.
	// Defaults to filestore.DefaultWriteChunkSize.
	WriteChunk int

	// ReadChunk is the buffer size for streaming a live file to a
	// reader. Defaults to 64 KiB.
	ReadChunk int

	// UploadIdleTimeout aborts an upload whose body delivers nothing
	// for this long. Zero disables it.
	UploadIdleTimeout time.Duration

	// Clock stamps uploads and times requests. Defaults to the real
	// clock.
	Clock clock.Clock

	// Logger is the structured logger. Required.
	Logger *slog.Logger
}

// Server holds the state shared by the public and private handlers.
type Server struct {
	root          *filestore.Root
	uploads       *Registry
	ringCapacity  int
	ringReadChunk int
	writeChunk    int
	readChunk     int
	idleTimeout   time.Duration
	clock         clock.Clock
	logger        *slog.Logger

	compress func(http.Handler) http.HandlerFunc
}

// NewServer validates config and returns a server with no uploads in
// flight.
func NewServer(config ServerConfig) (*Server, error) {
	if config.Root == nil {
		return nil, errors.New("ingest: Root is required")
	}
	if config.Logger == nil {
		return nil, errors.New("ingest: Logger is required")
	}
	if config.UploadIdleTimeout < 0 {
		return nil, fmt.Errorf("ingest: negative upload idle timeout %s", config.UploadIdleTimeout)
	}

	compress, err := gzhttp.NewWrapper(
		gzhttp.MinSize(gzhttp.DefaultMinSize),
		gzhttp.ContentTypes(compressibleTypes),
	)
	if err != nil {
		return nil, fmt.Errorf("ingest: configuring compression: %w", err)
	}

	server := &Server{
		root:          config.Root,
		uploads:       NewRegistry(),
		ringCapacity:  config.RingCapacity,
		ringReadChunk: config.RingReadChunk,
		writeChunk:    config.WriteChunk,
		readChunk:     config.ReadChunk,
		idleTimeout:   config.UploadIdleTimeout,
		clock:         config.Clock,
		logger:        config.Logger,
		compress:      compress,
	}
	if server.ringCapacity == 0 {
		server.ringCapacity = ring.DefaultCapacity
	}
	if server.writeChunk <= 0 {
		server.writeChunk = filestore.DefaultWriteChunkSize
	}
	if server.readChunk <= 0 {
		server.readChunk = defaultDownloadBuffer
	}
	if server.clock == nil {
		server.clock = clock.Real()
	}
	return server, nil
}

// Uploads returns the registry of in-flight uploads.
func (s *Server) Uploads() *Registry {
	return s.uploads
}

// PublicHandler serves GET and HEAD for files under the web root. Text
// formats are gzip-compressed when the client accepts it, and every
// response allows any origin.
func (s *Server) PublicHandler() http.Handler {
	mux := http.NewServeMux()
	// GET patterns match HEAD as well.
	mux.HandleFunc("GET /", s.handleGet)
	return service.WithRequestID(service.LogRequests(s.logger, s.clock, allowAnyOrigin(s.compress(mux))))
}

// PrivateHandler accepts uploads and removals, and reports status.
func (s *Server) PrivateHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("PUT /", s.handlePut)
	mux.HandleFunc("DELETE /", s.handleDelete)
	mux.HandleFunc("GET "+statusPath, s.handleStatus)
	return service.WithRequestID(service.LogRequests(s.logger, s.clock, mux))
}

func allowAnyOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.Header().Set("Access-Control-Allow-Origin", "*")
		next.ServeHTTP(writer, request)
	})
}

// sendText writes a short plain-text response.
func (s *Server) sendText(writer http.ResponseWriter, status int, message string) {
	header := writer.Header()
	header.Set("Content-Type", "text/plain; charset=utf-8")
	header.Set("X-Content-Type-Options", "nosniff")
	writer.WriteHeader(status)
	if _, err := io.WriteString(writer, message); err != nil {
		s.logger.Debug("writing response body", "status", status, "error", err)
	}
}

// resolve maps the request path into the web root, answering 400 for
// paths that escape it. ok is false when a response was sent.
func (s *Server) resolve(writer http.ResponseWriter, request *http.Request) (filesystemPath string, ok bool) {
	filesystemPath, err := s.root.Resolve(request.URL.EscapedPath())
	if err != nil {
		s.logger.Debug("rejecting request path",
			"path", request.URL.Path,
			"error", err,
			"request_id", service.RequestID(request.Context()),
		)
		s.sendText(writer, http.StatusBadRequest, messageInvalidPath)
		return "", false
	}
	return filesystemPath, true
}
