// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package filestore

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ErrInvalidPath is returned by Resolve for request paths that cannot
// name a file under the root.
var ErrInvalidPath = errors.New("filestore: invalid path")

// Root is the directory every request path resolves under.
type Root struct {
	directory string
}

// NewRoot returns a Root for directory, which must exist and be a
// directory. Relative paths are made absolute.
func NewRoot(directory string) (*Root, error) {
	if directory == "" {
		return nil, errors.New("filestore: web root is required")
	}
	absolute, err := filepath.Abs(directory)
	if err != nil {
		return nil, fmt.Errorf("resolving web root %q: %w", directory, err)
	}
	info, err := os.Stat(absolute)
	if err != nil {
		return nil, fmt.Errorf("web root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("web root %s is not a directory", absolute)
	}
	return &Root{directory: absolute}, nil
}

// Directory returns the absolute root directory.
func (root *Root) Directory() string {
	return root.directory
}

// Resolve maps the escaped path of a request URL (as in
// url.URL.EscapedPath) to a filesystem path under the root. The path is
// percent-decoded, stripped of leading slashes and cleaned; a result
// that climbs above the root or names the root itself is rejected with
// ErrInvalidPath.
func (root *Root) Resolve(escapedPath string) (string, error) {
	decoded, err := url.PathUnescape(escapedPath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	if strings.IndexByte(decoded, 0) >= 0 {
		return "", fmt.Errorf("%w: NUL byte in %q", ErrInvalidPath, escapedPath)
	}
	cleaned := path.Clean(strings.TrimLeft(decoded, "/"))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, escapedPath)
	}
	return filepath.Join(root.directory, filepath.FromSlash(cleaned)), nil
}

// Relative returns filesystemPath relative to the root, in slash form,
// for logs and status output.
func (root *Root) Relative(filesystemPath string) string {
	relative, err := filepath.Rel(root.directory, filesystemPath)
	if err != nil {
		return filesystemPath
	}
	return filepath.ToSlash(relative)
}
