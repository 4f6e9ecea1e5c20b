package adapter

import (
	"errors"
	"strings"
	"testing"

	m "refract.dev/pkg/refract/internal/model"
)

func TestDocumentURL(t *testing.T) {
	url, err := DocumentURL(NewLocalFixtureFSAdapter(), "fixtures/case.html")
	if err != nil {
		t.Fatalf("DocumentURL() error = %v", err)
	}

	if !strings.HasPrefix(url, "file:///") {
		t.Errorf("DocumentURL() = %q, want file:/// scheme", url)
	}
	if !strings.HasSuffix(url, "/fixtures/case.html") {
		t.Errorf("DocumentURL() = %q, want path suffix preserved", url)
	}
}

func TestPNGRoundTrip(t *testing.T) {
	src := m.NewRenderResult(3, 2)
	src.Fill(0, 0, 255, 255)
	src.Set(1, 1, 255, 255, 0, 255)

	data, err := EncodePNG(src)
	if err != nil {
		t.Fatalf("EncodePNG() error = %v", err)
	}

	decoded, err := DecodePNG(data)
	if err != nil {
		t.Fatalf("DecodePNG() error = %v", err)
	}

	if decoded.Width != 3 || decoded.Height != 2 {
		t.Fatalf("decoded dimensions = %dx%d, want 3x2", decoded.Width, decoded.Height)
	}

	red, green, blue, alpha := decoded.At(1, 1)
	if red != 255 || green != 255 || blue != 0 || alpha != 255 {
		t.Errorf("decoded pixel (1,1) = rgba(%d,%d,%d,%d), want yellow", red, green, blue, alpha)
	}

	red, _, blue, _ = decoded.At(0, 0)
	if red != 0 || blue != 255 {
		t.Errorf("decoded pixel (0,0) changed: rgb red=%d blue=%d", red, blue)
	}
}

func TestDecodePNG_Garbage(t *testing.T) {
	if _, err := DecodePNG([]byte("not a png")); err == nil {
		t.Fatalf("expected error for invalid PNG data")
	}
}

func TestRenderError_Unwrap(t *testing.T) {
	cause := errors.New("navigation failed")
	err := NewRenderError("case.html", cause)

	if !errors.Is(err, cause) {
		t.Errorf("RenderError does not unwrap to its cause")
	}
	if !strings.Contains(err.Error(), "case.html") {
		t.Errorf("RenderError message %q misses the document path", err.Error())
	}
}
