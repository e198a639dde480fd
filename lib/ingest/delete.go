// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ingest

import (
	"net/http"

	"github.com/bureau-foundation/ingestd/lib/filestore"
	"github.com/bureau-foundation/ingestd/lib/service"
)

// handleDelete removes the file at the request path. An upload still
// running for the path keeps writing to the unlinked file and its live
// readers are unaffected.
func (s *Server) handleDelete(writer http.ResponseWriter, request *http.Request) {
	filesystemPath, ok := s.resolve(writer, request)
	if !ok {
		return
	}
	name := s.root.Relative(filesystemPath)

	if err := filestore.Remove(filesystemPath); err != nil {
		if filestore.IsNotFound(err) {
			s.sendText(writer, http.StatusNotFound, messageNotFound)
			return
		}
		s.logger.Error("removing file",
			"path", name,
			"error", err,
			"request_id", service.RequestID(request.Context()),
		)
		s.sendText(writer, http.StatusInternalServerError, messageInternal)
		return
	}
	s.logger.Info("file removed", "path", name, "request_id", service.RequestID(request.Context()))
	// Packagers expect 201 for a successful delete.
	writer.WriteHeader(http.StatusCreated)
}
