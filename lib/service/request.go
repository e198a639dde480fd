// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/ingestd/lib/clock"
)

// RequestIDHeader carries the request ID on requests and responses.
const RequestIDHeader = "X-Request-Id"

type requestIDKey struct{}

// WithRequestID assigns every request an ID, stored in the request
// context and echoed in the X-Request-Id response header. A valid UUID
// supplied by the client in the same header is kept, so IDs can be
// correlated across the upload pipeline.
func WithRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		id := request.Header.Get(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		writer.Header().Set(RequestIDHeader, id)
		ctx := context.WithValue(request.Context(), requestIDKey{}, id)
		next.ServeHTTP(writer, request.WithContext(ctx))
	})
}

// RequestID returns the ID WithRequestID assigned, or "" outside such a
// request.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// LogRequests logs one line per completed request: method, path,
// status, response bytes, duration, and request ID.
func LogRequests(logger *slog.Logger, clk clock.Clock, next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		started := clk.Now()
		recorder := &statusRecorder{ResponseWriter: writer}
		defer func() {
			// A handler aborting a stream with http.ErrAbortHandler
			// still gets its line; the panic continues afterwards.
			logger.Info("request",
				"method", request.Method,
				"path", request.URL.Path,
				"status", recorder.statusCode(),
				"bytes", recorder.written,
				"duration", Elapsed(clk, started),
				"request_id", RequestID(request.Context()),
			)
		}()
		next.ServeHTTP(recorder, request)
	})
}

// statusRecorder captures the status code and body size. It forwards
// Flush and exposes the underlying writer through Unwrap so that
// http.ResponseController keeps working behind it.
type statusRecorder struct {
	http.ResponseWriter
	status  int
	written int64
}

func (recorder *statusRecorder) WriteHeader(status int) {
	if recorder.status == 0 {
		recorder.status = status
	}
	recorder.ResponseWriter.WriteHeader(status)
}

func (recorder *statusRecorder) Write(data []byte) (int, error) {
	if recorder.status == 0 {
		recorder.status = http.StatusOK
	}
	n, err := recorder.ResponseWriter.Write(data)
	recorder.written += int64(n)
	return n, err
}

func (recorder *statusRecorder) Flush() {
	if flusher, ok := recorder.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (recorder *statusRecorder) Unwrap() http.ResponseWriter {
	return recorder.ResponseWriter
}

func (recorder *statusRecorder) statusCode() int {
	if recorder.status == 0 {
		return http.StatusOK
	}
	return recorder.status
}

// Elapsed is a convenience for log lines: the time since start on clk,
// rounded to milliseconds.
func Elapsed(clk clock.Clock, start time.Time) time.Duration {
	return clk.Now().Sub(start).Round(time.Millisecond)
}
