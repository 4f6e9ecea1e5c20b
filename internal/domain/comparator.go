package domain

import (
	"fmt"

	m "refract.dev/pkg/refract/internal/model"
)

// DefaultThreshold is the per-channel noise threshold (out of 255) below
// which a pixel difference is attributed to anti-aliasing jitter.
const DefaultThreshold uint8 = 2

// DefaultTolerance is the mismatch-ratio ceiling for a passing comparison.
// Synthetic fixtures (solid-color swatches) are expected to match exactly.
const DefaultTolerance = 0.0

// DimensionMismatchError reports two buffers that cannot be compared because
// their dimensions differ. The comparator never crops or scales: a silent
// scale would hide real layout bugs.
type DimensionMismatchError struct {
	AWidth, AHeight int
	BWidth, BHeight int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: %dx%d vs %dx%d",
		e.AWidth, e.AHeight, e.BWidth, e.BHeight)
}

// Comparison is the raw scoring of two equally sized buffers. The verdict is
// derived by the orchestrator, which knows the case's tolerance and relation.
type Comparison struct {
	// MismatchRatio is mismatched pixels over total pixels, in [0, 1].
	MismatchRatio float64
	Mismatched    int
	Total         int

	// Diff highlights mismatched pixels in red over a desaturated copy of the
	// first buffer. Nil when the buffers matched everywhere.
	Diff *m.RenderResult
}

// Comparator scores two pixel buffers for perceptual equality.
type Comparator struct {
	// Threshold is the per-channel absolute difference a pixel must exceed on
	// any channel to count as mismatched.
	Threshold uint8
}

// NewComparator constructs a Comparator with the given noise threshold.
func NewComparator(threshold uint8) *Comparator {
	return &Comparator{Threshold: threshold}
}

// Compare scores a against b. The result is symmetric in MismatchRatio; the
// diff image is always oriented on a.
func (c *Comparator) Compare(a, b *m.RenderResult) (Comparison, error) {
	if !a.SameSize(b) {
		return Comparison{}, &DimensionMismatchError{
			AWidth: a.Width, AHeight: a.Height,
			BWidth: b.Width, BHeight: b.Height,
		}
	}

	total := a.Width * a.Height
	if total == 0 {
		return Comparison{Total: 0, MismatchRatio: 0}, nil
	}

	mismatched := 0

	var diff *m.RenderResult

	for y := 0; y < a.Height; y++ {
		for x := 0; x < a.Width; x++ {
			if !c.pixelMismatch(a, b, x, y) {
				continue
			}

			if diff == nil {
				diff = buildDiffBase(a)
			}

			diff.Set(x, y, 255, 0, 0, 255)
			mismatched++
		}
	}

	return Comparison{
		MismatchRatio: float64(mismatched) / float64(total),
		Mismatched:    mismatched,
		Total:         total,
		Diff:          diff,
	}, nil
}

// pixelMismatch reports whether any channel of pixel (x, y) differs by more
// than the threshold.
func (c *Comparator) pixelMismatch(a, b *m.RenderResult, x, y int) bool {
	i := a.Offset(x, y)

	for ch := 0; ch < m.Channels; ch++ {
		if absDelta(a.Pixels[i+ch], b.Pixels[i+ch]) > c.Threshold {
			return true
		}
	}

	return false
}

// buildDiffBase copies a into a desaturated, lightened buffer so the red
// mismatch markers stand out.
func buildDiffBase(a *m.RenderResult) *m.RenderResult {
	diff := m.NewRenderResult(a.Width, a.Height)

	for i := 0; i < len(a.Pixels); i += m.Channels {
		// Integer luma approximation, then pushed toward white.
		luma := (299*int(a.Pixels[i]) + 587*int(a.Pixels[i+1]) + 114*int(a.Pixels[i+2])) / 1000
		faded := uint8(128 + luma/2)

		diff.Pixels[i] = faded
		diff.Pixels[i+1] = faded
		diff.Pixels[i+2] = faded
		diff.Pixels[i+3] = 255
	}

	return diff
}

func absDelta(a, b uint8) uint8 {
	if a > b {
		return a - b
	}

	return b - a
}
