// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ingest

import (
	"encoding/json"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/bureau-foundation/ingestd/lib/codec"
	"github.com/bureau-foundation/ingestd/lib/version"
)

// CBORContentType is the media type the status endpoint answers with
// when the client asks for CBOR.
const CBORContentType = "application/cbor"

// Status is the body of GET /_status.
type Status struct {
	Version version.BuildInfo `json:"version"`
	Now     time.Time         `json:"now"`
	Uploads []UploadStatus    `json:"uploads"`
}

// Status reports the server's in-flight uploads.
func (s *Server) Status() Status {
	return Status{
		Version: version.Current(),
		Now:     s.clock.Now().UTC(),
		Uploads: s.uploads.Snapshot(),
	}
}

// handleStatus serves the status report as JSON, or as CBOR when the
// Accept header names application/cbor.
func (s *Server) handleStatus(writer http.ResponseWriter, request *http.Request) {
	status := s.Status()

	if acceptsCBOR(request.Header.Values("Accept")) {
		writer.Header().Set("Content-Type", CBORContentType)
		if err := codec.NewEncoder(writer).Encode(status); err != nil {
			s.logger.Debug("writing status response", "error", err)
		}
		return
	}

	writer.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(writer).Encode(status); err != nil {
		s.logger.Debug("writing status response", "error", err)
	}
}

func acceptsCBOR(accept []string) bool {
	for _, value := range accept {
		for _, part := range strings.Split(value, ",") {
			mediaType, _, err := mime.ParseMediaType(strings.TrimSpace(part))
			if err == nil && mediaType == CBORContentType {
				return true
			}
		}
	}
	return false
}
