package domain

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"refract.dev/pkg/refract/internal/adapter"
	m "refract.dev/pkg/refract/internal/model"
)

// stubRenderer serves canned buffers or failures per document path.
type stubRenderer struct {
	buffers map[m.Path]*m.RenderResult
	errs    map[m.Path]error

	// blockOnCtx makes Render wait for ctx cancellation, simulating a hung
	// rendering engine.
	blockOnCtx bool
}

func (s *stubRenderer) Render(ctx context.Context, path m.Path, _ m.Viewport) (*m.RenderResult, error) {
	if s.blockOnCtx {
		<-ctx.Done()
		return nil, adapter.NewRenderError(path, ctx.Err())
	}

	if err, ok := s.errs[path]; ok {
		return nil, adapter.NewRenderError(path, err)
	}

	if buf, ok := s.buffers[path]; ok {
		return buf, nil
	}

	return nil, adapter.NewRenderError(path, errors.New("document not found"))
}

func matchCase(id string) m.TestCase {
	return m.TestCase{
		ID:            id,
		TestPath:      m.Path(id + ".test"),
		ReferencePath: m.Path(id + ".ref"),
		Relation:      m.RelationMatch,
	}
}

func newTestOrchestrator(renderer adapter.Renderer, cfg CaseConfig) Orchestrator {
	return NewOrchestrator(adapter.NewLocalFixtureFSAdapter(), renderer, NewComparator(DefaultThreshold), cfg)
}

func TestRunCase_Pass(t *testing.T) {
	tc := matchCase("solid")
	renderer := &stubRenderer{buffers: map[m.Path]*m.RenderResult{
		tc.TestPath:      solidBuffer(4, 4, 9, 9, 9),
		tc.ReferencePath: solidBuffer(4, 4, 9, 9, 9),
	}}

	outcome := newTestOrchestrator(renderer, CaseConfig{Tolerance: 0}).RunCase(context.Background(), tc)

	require.Equal(t, m.VerdictPass, outcome.Verdict)
	assert.Equal(t, 0.0, outcome.MismatchRatio())
	assert.Empty(t, outcome.Reason)
	assert.Empty(t, outcome.DiffPath)
}

func TestRunCase_FailWritesDiff(t *testing.T) {
	diffDir := t.TempDir()

	tc := matchCase("shifted/swatch")
	renderer := &stubRenderer{buffers: map[m.Path]*m.RenderResult{
		tc.TestPath:      solidBuffer(4, 4, 0, 0, 0),
		tc.ReferencePath: solidBuffer(4, 4, 255, 255, 255),
	}}

	outcome := newTestOrchestrator(renderer, CaseConfig{
		Tolerance: 0,
		DiffDir:   m.Path(diffDir),
	}).RunCase(context.Background(), tc)

	require.Equal(t, m.VerdictFail, outcome.Verdict)
	assert.Equal(t, 1.0, outcome.MismatchRatio())

	require.NotEmpty(t, outcome.DiffPath)
	assert.Equal(t, filepath.Join(diffDir, "shifted_swatch.diff.png"), string(outcome.DiffPath))

	data, err := os.ReadFile(string(outcome.DiffPath))
	require.NoError(t, err)

	diff, err := adapter.DecodePNG(data)
	require.NoError(t, err)
	assert.Equal(t, 4, diff.Width)
	assert.Equal(t, 4, diff.Height)
}

func TestRunCase_ToleranceAllowsSmallMismatch(t *testing.T) {
	tc := matchCase("tolerant")
	test := solidBuffer(10, 10, 0, 0, 0)
	reference := solidBuffer(10, 10, 0, 0, 0)
	paintSwatch(reference, 0, 0, 1, 1, 255, 255, 255)

	renderer := &stubRenderer{buffers: map[m.Path]*m.RenderResult{
		tc.TestPath:      test,
		tc.ReferencePath: reference,
	}}

	outcome := newTestOrchestrator(renderer, CaseConfig{Tolerance: 0.05}).RunCase(context.Background(), tc)

	require.Equal(t, m.VerdictPass, outcome.Verdict)
	assert.InDelta(t, 0.01, outcome.MismatchRatio(), 1e-9)
}

func TestRunCase_MismatchRelationInverts(t *testing.T) {
	tc := matchCase("inverted")
	tc.Relation = m.RelationMismatch

	same := solidBuffer(4, 4, 1, 2, 3)
	renderer := &stubRenderer{buffers: map[m.Path]*m.RenderResult{
		tc.TestPath:      same,
		tc.ReferencePath: same,
	}}

	outcome := newTestOrchestrator(renderer, CaseConfig{Tolerance: 0}).RunCase(context.Background(), tc)

	// Identical renders violate a mismatch expectation.
	require.Equal(t, m.VerdictFail, outcome.Verdict)
	assert.Empty(t, outcome.DiffPath, "mismatch-relation failures have no meaningful diff")
}

func TestRunCase_RenderFailureIsErrorVerdict(t *testing.T) {
	tc := matchCase("broken")
	renderer := &stubRenderer{
		buffers: map[m.Path]*m.RenderResult{tc.TestPath: solidBuffer(4, 4, 0, 0, 0)},
		errs:    map[m.Path]error{tc.ReferencePath: errors.New("load failed")},
	}

	outcome := newTestOrchestrator(renderer, CaseConfig{}).RunCase(context.Background(), tc)

	require.Equal(t, m.VerdictError, outcome.Verdict)
	assert.Contains(t, outcome.Reason, "load failed")
	assert.True(t, math.IsNaN(outcome.MismatchRatio()), "errored case must not report a ratio")
}

func TestRunCase_DimensionMismatchIsErrorVerdict(t *testing.T) {
	tc := matchCase("dims")
	renderer := &stubRenderer{buffers: map[m.Path]*m.RenderResult{
		tc.TestPath:      solidBuffer(4, 4, 0, 0, 0),
		tc.ReferencePath: solidBuffer(5, 4, 0, 0, 0),
	}}

	outcome := newTestOrchestrator(renderer, CaseConfig{}).RunCase(context.Background(), tc)

	require.Equal(t, m.VerdictError, outcome.Verdict)
	assert.Contains(t, outcome.Reason, "dimension mismatch")
}

func TestRunCase_TimeoutIsErrorVerdict(t *testing.T) {
	tc := matchCase("hung")
	renderer := &stubRenderer{blockOnCtx: true}

	start := time.Now()
	outcome := newTestOrchestrator(renderer, CaseConfig{Timeout: 20 * time.Millisecond}).RunCase(context.Background(), tc)

	require.Equal(t, m.VerdictError, outcome.Verdict)
	assert.Equal(t, ReasonTimeout, outcome.Reason)
	assert.Less(t, time.Since(start), 5*time.Second)
}
