package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"refract.dev/pkg/refract/internal/adapter"
	m "refract.dev/pkg/refract/internal/model"
)

// ReasonTimeout is the outcome reason recorded when a case's render exceeded
// the per-case timeout.
const ReasonTimeout = "timeout"

// Orchestrator runs one test case end to end: render both documents, compare,
// derive the verdict. Every per-case failure is converted into an Outcome with
// VerdictError at this boundary; RunCase never returns a Go error, so one
// broken fixture can never mask the others.
type Orchestrator interface {
	RunCase(ctx context.Context, tc m.TestCase) m.Outcome
}

// CaseConfig carries the per-run settings shared by every case.
type CaseConfig struct {
	Viewport  m.Viewport
	Tolerance float64

	// Timeout bounds one case's rendering; zero disables the bound.
	Timeout time.Duration

	// DiffDir receives diff artifacts for failed match-relation cases; empty
	// disables artifact output.
	DiffDir m.Path
}

type orchestrator struct {
	fs         adapter.FixtureFSAdapter
	renderer   adapter.Renderer
	comparator *Comparator
	cfg        CaseConfig
}

// NewOrchestrator constructs an Orchestrator backed by the provided adapters.
func NewOrchestrator(fs adapter.FixtureFSAdapter, renderer adapter.Renderer, comparator *Comparator, cfg CaseConfig) Orchestrator {
	return &orchestrator{
		fs:         fs,
		renderer:   renderer,
		comparator: comparator,
		cfg:        cfg,
	}
}

func (o *orchestrator) RunCase(ctx context.Context, tc m.TestCase) m.Outcome {
	start := time.Now()

	if o.cfg.Timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, o.cfg.Timeout)
		defer cancel()
	}

	outcome := o.runCase(ctx, tc)
	outcome.Duration = time.Since(start)

	return outcome
}

func (o *orchestrator) runCase(ctx context.Context, tc m.TestCase) m.Outcome {
	if err := ctx.Err(); err != nil {
		return o.errorOutcome(tc, err)
	}

	test, err := o.renderer.Render(ctx, tc.TestPath, o.cfg.Viewport)
	if err != nil {
		slog.Error("Failed to render test document", "case", tc.ID, "path", tc.TestPath, "error", err)
		return o.errorOutcome(tc, err)
	}

	reference, err := o.renderer.Render(ctx, tc.ReferencePath, o.cfg.Viewport)
	if err != nil {
		slog.Error("Failed to render reference document", "case", tc.ID, "path", tc.ReferencePath, "error", err)
		return o.errorOutcome(tc, err)
	}

	comparison, err := o.comparator.Compare(test, reference)
	if err != nil {
		slog.Error("Comparison failed", "case", tc.ID, "error", err)
		return o.errorOutcome(tc, err)
	}

	outcome := m.Outcome{
		Case:    tc,
		Verdict: o.verdict(tc, comparison),
		Pixels:  comparison.Mismatched,
		Total:   comparison.Total,
	}.WithRatio(comparison.MismatchRatio)

	if outcome.Verdict == m.VerdictFail && tc.Relation == m.RelationMatch {
		outcome.DiffPath = o.writeDiff(tc, comparison)
	}

	slog.Debug("Case completed",
		"case", tc.ID,
		"verdict", outcome.Verdict,
		"mismatchRatio", comparison.MismatchRatio,
	)

	return outcome
}

// verdict applies tolerance under the case's relation: match cases pass when
// the buffers agree, mismatch cases pass when they differ.
func (o *orchestrator) verdict(tc m.TestCase, comparison Comparison) m.Verdict {
	matched := comparison.MismatchRatio <= o.cfg.Tolerance

	if tc.Relation == m.RelationMismatch {
		matched = !matched
	}

	if matched {
		return m.VerdictPass
	}

	return m.VerdictFail
}

// errorOutcome records a per-case failure. MismatchRatio stays unset so it
// reads as NaN, never as a clean zero.
func (o *orchestrator) errorOutcome(tc m.TestCase, err error) m.Outcome {
	reason := err.Error()
	if errors.Is(err, context.DeadlineExceeded) {
		reason = ReasonTimeout
	}

	return m.Outcome{
		Case:    tc,
		Verdict: m.VerdictError,
		Reason:  reason,
	}
}

// writeDiff emits the diff artifact with a per-case unique filename so
// concurrent cases never overwrite each other. Artifact failures are logged
// and swallowed: they must not change the case's verdict.
func (o *orchestrator) writeDiff(tc m.TestCase, comparison Comparison) m.Path {
	if o.cfg.DiffDir == "" || comparison.Diff == nil {
		return ""
	}

	data, err := adapter.EncodePNG(comparison.Diff)
	if err != nil {
		slog.Error("Failed to encode diff image", "case", tc.ID, "error", err)
		return ""
	}

	if err := o.fs.MkdirAll(o.cfg.DiffDir, 0o750); err != nil {
		slog.Error("Failed to create diff dir", "dir", o.cfg.DiffDir, "error", err)
		return ""
	}

	path := o.fs.JoinPath(string(o.cfg.DiffDir), diffFileName(tc.ID))

	if err := o.fs.WriteFile(path, data, 0o600); err != nil {
		slog.Error("Failed to write diff image", "case", tc.ID, "path", path, "error", err)
		return ""
	}

	return path
}

// diffFileName flattens a case ID into a single unique file name.
func diffFileName(id string) string {
	flat := strings.NewReplacer("/", "_", "\\", "_").Replace(id)
	return fmt.Sprintf("%s.diff.png", flat)
}
