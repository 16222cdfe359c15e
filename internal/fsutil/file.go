// Package fsutil provides the small file capability owned by a task for
// each of its on-disk artifacts.
package fsutil

import (
	"os"
	"path/filepath"
)

// File is a handle on one artifact path. It carries no open descriptor;
// every operation goes back to the filesystem, which is the authoritative
// ground truth for job state.
type File struct {
	path string
}

// NewFile returns a File for path. The file does not have to exist.
func NewFile(path string) File {
	return File{path: path}
}

// Path returns the artifact path.
func (f File) Path() string {
	return f.path
}

// Base returns the last element of the artifact path.
func (f File) Base() string {
	return filepath.Base(f.path)
}

// Exists reports whether the artifact is present on disk.
func (f File) Exists() bool {
	_, err := os.Stat(f.path)
	return err == nil
}

// Read returns the full contents of the artifact.
func (f File) Read() (string, error) {
	b, err := os.ReadFile(f.path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Write replaces the artifact contents, creating it if needed.
func (f File) Write(s string) error {
	return os.WriteFile(f.path, []byte(s), 0644)
}

// Remove deletes the artifact. Removing a missing artifact is not an error.
func (f File) Remove() error {
	err := os.Remove(f.path)
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

// IsEmpty reports whether the artifact is missing or has zero size.
func (f File) IsEmpty() bool {
	info, err := os.Stat(f.path)
	if err != nil {
		return true
	}
	return info.Size() == 0
}
