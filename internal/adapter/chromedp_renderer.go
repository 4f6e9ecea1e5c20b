package adapter

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"log/slog"
	"net/url"
	"path/filepath"

	"github.com/chromedp/chromedp"

	m "refract.dev/pkg/refract/internal/model"
)

// ChromeRenderer rasterizes documents with a headless Chrome instance driven
// over the DevTools protocol. One browser process is shared across renders;
// each Render call opens a fresh tab so document state never leaks between
// test cases.
type ChromeRenderer struct {
	fs          FixtureFSAdapter
	allocCtx    context.Context
	allocCancel context.CancelFunc
}

// NewChromeRenderer starts a headless browser allocator. Close must be called
// to release the browser process.
func NewChromeRenderer(ctx context.Context, fs FixtureFSAdapter) *ChromeRenderer {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("force-device-scale-factor", "1"),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)

	return &ChromeRenderer{
		fs:          fs,
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
	}
}

// Render navigates a fresh tab to the document and captures the viewport as
// an RGBA buffer. Cancellation of ctx aborts the navigation.
func (r *ChromeRenderer) Render(ctx context.Context, path m.Path, viewport m.Viewport) (*m.RenderResult, error) {
	target, err := DocumentURL(r.fs, path)
	if err != nil {
		return nil, NewRenderError(path, err)
	}

	tabCtx, tabCancel := chromedp.NewContext(r.allocCtx)
	defer tabCancel()

	// Tie tab lifetime to the caller's deadline.
	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			tabCancel()
		case <-done:
		}
	}()

	var shot []byte

	err = chromedp.Run(tabCtx,
		chromedp.EmulateViewport(int64(viewport.Width), int64(viewport.Height)),
		chromedp.Navigate(target),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.CaptureScreenshot(&shot),
	)
	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}

		slog.Error("Render failed", "path", path, "error", err)

		return nil, NewRenderError(path, err)
	}

	result, err := DecodePNG(shot)
	if err != nil {
		return nil, NewRenderError(path, err)
	}

	slog.Debug("Rendered document", "path", path, "width", result.Width, "height", result.Height)

	return result, nil
}

// Close shuts the shared browser process down.
func (r *ChromeRenderer) Close() {
	r.allocCancel()
}

// DocumentURL converts a fixture path into the file:// URL the browser loads.
func DocumentURL(fs FixtureFSAdapter, path m.Path) (string, error) {
	abs, err := fs.AbsPath(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}

	u := url.URL{Scheme: "file", Path: filepath.ToSlash(string(abs))}

	return u.String(), nil
}

// DecodePNG converts an encoded screenshot into a tightly packed RGBA buffer.
func DecodePNG(data []byte) (*m.RenderResult, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode screenshot: %w", err)
	}

	bounds := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)

	return &m.RenderResult{
		Pixels: rgba.Pix,
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}, nil
}

// EncodePNG serializes an RGBA buffer, used for diff artifacts.
func EncodePNG(result *m.RenderResult) ([]byte, error) {
	img := &image.RGBA{
		Pix:    result.Pixels,
		Stride: result.Width * m.Channels,
		Rect:   image.Rect(0, 0, result.Width, result.Height),
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode diff image: %w", err)
	}

	return buf.Bytes(), nil
}
