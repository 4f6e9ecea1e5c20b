// Package adapter contains infrastructure adapters for the refract CLI.
package adapter

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"

	m "refract.dev/pkg/refract/internal/model"
)

// FixtureFSAdapter abstracts filesystem operations the domain layer relies on
// when scanning fixture trees and writing run artifacts. It hides direct `os`
// access so discovery and orchestration logic can be tested without a disk.
type FixtureFSAdapter interface {
	// Walk traverses the provided root path. When recursive is false the
	// implementation should limit itself to the root directory (no sub-dirs).
	Walk(root m.Path, recursive bool, fn FilepathWalkFunc) error

	// ReadFile loads a file from disk and returns its contents.
	ReadFile(path m.Path) ([]byte, error)

	// WriteFile writes content to a file with the given permissions.
	WriteFile(path m.Path, content []byte, perm os.FileMode) error

	// HashFile returns a stable fingerprint (SHA-256) for the file at path.
	HashFile(path m.Path) (string, error)

	// FileInfo returns metadata for a path so the domain can check existence
	// or distinguish between files and directories.
	FileInfo(path m.Path) (os.FileInfo, error)

	// MkdirAll creates the directory and any missing parents.
	MkdirAll(path m.Path, perm os.FileMode) error

	// RemoveAll removes a directory and all its contents.
	RemoveAll(path m.Path) error

	// RelPath returns the relative path from base to target.
	RelPath(base, target m.Path) (m.Path, error)

	// JoinPath joins path elements into a single path.
	JoinPath(elem ...string) m.Path

	// AbsPath resolves path to an absolute path.
	AbsPath(path m.Path) (m.Path, error)
}

// FilepathWalkFunc mirrors the callback shape used by filepath.Walk. It is
// defined here to avoid leaking the standard-library type into the domain layer.
type FilepathWalkFunc func(path string, info os.FileInfo, err error) error

// LocalFixtureFSAdapter is the concrete implementation backed by the local
// filesystem.
type LocalFixtureFSAdapter struct{}

// NewLocalFixtureFSAdapter constructs a LocalFixtureFSAdapter ready to be
// wired into the workflow.
func NewLocalFixtureFSAdapter() *LocalFixtureFSAdapter {
	return &LocalFixtureFSAdapter{}
}

// Walk iterates over files under root, optionally descending into subdirectories.
func (a *LocalFixtureFSAdapter) Walk(root m.Path, recursive bool, fn FilepathWalkFunc) error {
	rootStr := string(root)

	return filepath.Walk(rootStr, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return fn(path, info, err)
		}

		if info.IsDir() && !recursive && path != rootStr {
			return filepath.SkipDir
		}

		return fn(path, info, nil)
	})
}

// ReadFile loads file contents from disk.
func (a *LocalFixtureFSAdapter) ReadFile(path m.Path) ([]byte, error) {
	return os.ReadFile(string(path))
}

// WriteFile writes content to a file with the given permissions.
func (a *LocalFixtureFSAdapter) WriteFile(path m.Path, content []byte, perm os.FileMode) error {
	return os.WriteFile(string(path), content, perm)
}

// HashFile returns the SHA-256 hash of the file at the provided path.
func (a *LocalFixtureFSAdapter) HashFile(path m.Path) (string, error) {
	f, err := os.Open(string(path))
	if err != nil {
		return "", err
	}

	defer func() {
		_ = f.Close()
	}()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// FileInfo returns os.FileInfo metadata for the given path.
func (a *LocalFixtureFSAdapter) FileInfo(path m.Path) (os.FileInfo, error) {
	return os.Stat(string(path))
}

// MkdirAll creates the directory and any missing parents.
func (a *LocalFixtureFSAdapter) MkdirAll(path m.Path, perm os.FileMode) error {
	return os.MkdirAll(string(path), perm)
}

// RemoveAll removes a directory and all its contents.
func (a *LocalFixtureFSAdapter) RemoveAll(path m.Path) error {
	return os.RemoveAll(string(path))
}

// RelPath returns the relative path from base to target.
func (a *LocalFixtureFSAdapter) RelPath(base, target m.Path) (m.Path, error) {
	rel, err := filepath.Rel(string(base), string(target))
	if err != nil {
		return "", err
	}

	return m.Path(rel), nil
}

// JoinPath joins path elements into a single path.
func (a *LocalFixtureFSAdapter) JoinPath(elem ...string) m.Path {
	return m.Path(filepath.Join(elem...))
}

// AbsPath resolves path to an absolute path.
func (a *LocalFixtureFSAdapter) AbsPath(path m.Path) (m.Path, error) {
	abs, err := filepath.Abs(string(path))
	if err != nil {
		return "", err
	}

	return m.Path(abs), nil
}
