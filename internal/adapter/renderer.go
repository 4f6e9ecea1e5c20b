package adapter

import (
	"context"
	"fmt"

	m "refract.dev/pkg/refract/internal/model"
)

// Renderer abstracts the external rendering engine that rasterizes a document
// to a pixel buffer at a fixed viewport size. The core treats it as a black
// box: no retries here, any retry policy belongs to the implementation.
type Renderer interface {
	Render(ctx context.Context, path m.Path, viewport m.Viewport) (*m.RenderResult, error)
}

// RenderError wraps a failure reported by the rendering engine for one
// document (load, parse, or timeout).
type RenderError struct {
	Path  m.Path
	Cause error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s: %v", e.Path, e.Cause)
}

func (e *RenderError) Unwrap() error {
	return e.Cause
}

// NewRenderError wraps cause as a RenderError for the given document.
func NewRenderError(path m.Path, cause error) *RenderError {
	return &RenderError{Path: path, Cause: cause}
}
