// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package filestore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Create opens the file an upload writes to, creating missing parent
// directories. An existing file is truncated. The handle is write-only;
// readers open the path themselves with Open.
func Create(filesystemPath string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(filesystemPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating parent directory: %w", err)
	}
	file, err := os.OpenFile(filesystemPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("creating upload file: %w", err)
	}
	return file, nil
}

// Remove deletes a stored file. The error satisfies IsNotFound when
// there was nothing to delete. Directories are never removed.
func Remove(filesystemPath string) error {
	info, err := os.Lstat(filesystemPath)
	if err != nil {
		return fmt.Errorf("removing %s: %w", filesystemPath, err)
	}
	if info.IsDir() {
		return fmt.Errorf("removing %s: %w", filesystemPath, &fs.PathError{Op: "remove", Path: filesystemPath, Err: fs.ErrNotExist})
	}
	if err := os.Remove(filesystemPath); err != nil {
		return fmt.Errorf("removing %s: %w", filesystemPath, err)
	}
	return nil
}

// Open opens a stored file at rest for reading. Directories are
// reported as not found: only regular files are served.
func Open(filesystemPath string) (*os.File, fs.FileInfo, error) {
	file, err := os.Open(filesystemPath)
	if err != nil {
		return nil, nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, nil, err
	}
	if !info.Mode().IsRegular() {
		file.Close()
		return nil, nil, &fs.PathError{Op: "open", Path: filesystemPath, Err: fs.ErrNotExist}
	}
	return file, info, nil
}

// IsNotFound reports whether err means the file cannot be served: it
// does not exist or the daemon may not read it. Both are answered with
// 404 so that permissions do not leak through the public listener.
func IsNotFound(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission)
}
