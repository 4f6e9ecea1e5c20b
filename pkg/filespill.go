// Package pkg provides utilities for refract.
package pkg

import (
	"encoding/gob"
	"fmt"
	"log/slog"
	"os"
	"sync"
)

// FileSpill is a generic append-only sequence of T backed by a temporary gob
// file, used to keep large result sets (outcomes of big fixture suites) out
// of memory while workers produce them. Close removes the backing file, so
// callers must drain with Range first.
type FileSpill[T any] interface {
	Len() uint64
	Path() string
	Append(item T) error
	Range(f func(index uint64, item T) error) error
	Close() error
}

type fileSpillImpl[T any] struct {
	path    string
	file    *os.File
	encoder *gob.Encoder
	mu      sync.Mutex
	length  uint64
}

// NewFileSpill creates a new FileSpill for items of type T.
func NewFileSpill[T any]() (FileSpill[T], error) {
	file, err := os.CreateTemp("", "refract-spill-*.gob")
	if err != nil {
		return nil, fmt.Errorf("create spill file: %w", err)
	}

	slog.Debug("created filespill", "path", file.Name())

	return &fileSpillImpl[T]{
		path:    file.Name(),
		file:    file,
		encoder: gob.NewEncoder(file),
	}, nil
}

// Append encodes one item at the end of the sequence.
func (f *fileSpillImpl[T]) Append(item T) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.encoder.Encode(item); err != nil {
		slog.Error("failed to encode spill item", "path", f.path, "index", f.length, "error", err)
		return fmt.Errorf("encode spill item: %w", err)
	}

	f.length++

	return nil
}

// Len returns the number of appended items.
func (f *fileSpillImpl[T]) Len() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.length
}

// Path returns the backing file path.
func (f *fileSpillImpl[T]) Path() string {
	return f.path
}

// Range decodes every item in append order and passes it to fn.
func (f *fileSpillImpl[T]) Range(fn func(index uint64, item T) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	file, err := os.Open(f.path)
	if err != nil {
		slog.Error("failed to open spill for range", "path", f.path, "error", err)
		return fmt.Errorf("open spill file: %w", err)
	}

	defer func() {
		if err := file.Close(); err != nil {
			slog.Error("failed to close spill file", "path", f.path, "error", err)
		}
	}()

	decoder := gob.NewDecoder(file)

	for i := range f.length {
		var item T

		if err := decoder.Decode(&item); err != nil {
			slog.Error("failed to decode spill item", "path", f.path, "index", i, "error", err)
			return fmt.Errorf("decode spill item %d: %w", i, err)
		}

		if err := fn(i, item); err != nil {
			return err
		}
	}

	return nil
}

// Close closes and removes the backing file.
func (f *fileSpillImpl[T]) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.file == nil {
		return nil
	}

	if err := f.file.Close(); err != nil {
		slog.Error("failed to close spill file", "path", f.path, "error", err)
		return err
	}

	f.file = nil

	if err := os.Remove(f.path); err != nil {
		slog.Error("failed to remove spill file", "path", f.path, "error", err)
		return err
	}

	return nil
}
