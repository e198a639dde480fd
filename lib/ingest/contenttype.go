// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ingest

import (
	"mime"
	"path"
	"strings"
)

// streamingTypes covers the formats a live packager writes. They take
// precedence over the system MIME table, which is often missing them
// or maps .m4s to nothing.
var streamingTypes = map[string]string{
	".mpd":  "application/dash+xml",
	".mp4":  "video/mp4",
	".m4s":  "video/iso.segment",
	".m4a":  "audio/mp4",
	".m3u8": "application/vnd.apple.mpegurl",
	".ts":   "video/mp2t",
	".vtt":  "text/vtt",
	".html": "text/html; charset=utf-8",
	".json": "application/json",
}

// compressibleTypes are the public content types worth gzip. Media
// segments are already compressed.
var compressibleTypes = []string{
	"application/dash+xml",
	"application/vnd.apple.mpegurl",
	"application/json",
	"text/html",
	"text/vtt",
	"text/plain",
}

// contentType picks the Content-Type for a request path by extension,
// falling back to application/octet-stream.
func contentType(requestPath string) string {
	extension := strings.ToLower(path.Ext(requestPath))
	if known, ok := streamingTypes[extension]; ok {
		return known
	}
	if extension != "" {
		if guessed := mime.TypeByExtension(extension); guessed != "" {
			return guessed
		}
	}
	return "application/octet-stream"
}
