package model

import "fmt"

// Channels is the number of samples per pixel (RGBA).
const Channels = 4

// Viewport is the fixed pixel size used to rasterize a document.
type Viewport struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// String renders the viewport in WIDTHxHEIGHT form, the same shape the
// --viewport flag accepts.
func (v Viewport) String() string {
	return fmt.Sprintf("%dx%d", v.Width, v.Height)
}

// Valid reports whether both dimensions are positive.
func (v Viewport) Valid() bool {
	return v.Width > 0 && v.Height > 0
}

// ParseViewport parses a WIDTHxHEIGHT string.
func ParseViewport(s string) (Viewport, error) {
	var v Viewport

	if _, err := fmt.Sscanf(s, "%dx%d", &v.Width, &v.Height); err != nil {
		return Viewport{}, fmt.Errorf("invalid viewport %q (want WIDTHxHEIGHT): %w", s, err)
	}

	if !v.Valid() {
		return Viewport{}, fmt.Errorf("invalid viewport %q: dimensions must be positive", s)
	}

	return v, nil
}

// RenderResult is one rasterized document: a tightly packed RGBA buffer.
// Produced by the render adapter and discarded after scoring.
type RenderResult struct {
	Pixels []uint8
	Width  int
	Height int
}

// NewRenderResult allocates a zeroed buffer for the given dimensions.
func NewRenderResult(width, height int) *RenderResult {
	return &RenderResult{
		Pixels: make([]uint8, width*height*Channels),
		Width:  width,
		Height: height,
	}
}

// Offset returns the index of the first channel of pixel (x, y).
func (r *RenderResult) Offset(x, y int) int {
	return (y*r.Width + x) * Channels
}

// At returns the RGBA samples of pixel (x, y).
func (r *RenderResult) At(x, y int) (red, green, blue, alpha uint8) {
	i := r.Offset(x, y)
	return r.Pixels[i], r.Pixels[i+1], r.Pixels[i+2], r.Pixels[i+3]
}

// Set writes the RGBA samples of pixel (x, y).
func (r *RenderResult) Set(x, y int, red, green, blue, alpha uint8) {
	i := r.Offset(x, y)
	r.Pixels[i] = red
	r.Pixels[i+1] = green
	r.Pixels[i+2] = blue
	r.Pixels[i+3] = alpha
}

// Fill paints every pixel with the given color.
func (r *RenderResult) Fill(red, green, blue, alpha uint8) {
	for i := 0; i < len(r.Pixels); i += Channels {
		r.Pixels[i] = red
		r.Pixels[i+1] = green
		r.Pixels[i+2] = blue
		r.Pixels[i+3] = alpha
	}
}

// SameSize reports whether the other buffer has identical dimensions.
func (r *RenderResult) SameSize(other *RenderResult) bool {
	return other != nil && r.Width == other.Width && r.Height == other.Height
}
