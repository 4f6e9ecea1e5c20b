package domain

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"refract.dev/pkg/refract/internal/adapter"
	m "refract.dev/pkg/refract/internal/model"
)

// fakeUI records every display call; safe for concurrent outcome delivery.
type fakeUI struct {
	mu       sync.Mutex
	outcomes []m.Outcome
	reports  []m.Report
	texts    []string
	cases    []m.TestCase
	skips    []m.Skip
	closed   bool
}

func (f *fakeUI) DisplayRunInfo(context.Context, int, int, int, int) error { return nil }

func (f *fakeUI) DisplayCaseOutcome(_ context.Context, outcome m.Outcome) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.outcomes = append(f.outcomes, outcome)
}

func (f *fakeUI) DisplayReport(_ context.Context, report m.Report) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.reports = append(f.reports, report)

	return nil
}

func (f *fakeUI) DisplayFixtureList(_ context.Context, cases []m.TestCase, skips []m.Skip) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.cases = append(f.cases, cases...)
	f.skips = append(f.skips, skips...)

	return nil
}

func (f *fakeUI) DisplayText(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.texts = append(f.texts, text)

	return nil
}

func (f *fakeUI) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true
}

// suiteRenderer colors each document by base name so individual cases can be
// made to pass, fail, error, or dawdle.
type suiteRenderer struct {
	colors map[string][3]uint8
	delays map[string]time.Duration
	fails  map[string]bool
}

func (s *suiteRenderer) Render(ctx context.Context, path m.Path, _ m.Viewport) (*m.RenderResult, error) {
	base := filepath.Base(string(path))

	if delay := s.delays[base]; delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, adapter.NewRenderError(path, ctx.Err())
		}
	}

	if s.fails[base] {
		return nil, adapter.NewRenderError(path, errors.New("engine crashed"))
	}

	color, ok := s.colors[base]
	if !ok {
		color = [3]uint8{0, 0, 0}
	}

	return solidBuffer(6, 6, color[0], color[1], color[2]), nil
}

type suite struct {
	workflow Workflow
	ui       *fakeUI
	store    adapter.ReportStore
	root     string
	reports  string
}

// newSuite lays out fixtures a.html, b.html, c.html with per-case references
// and builds a workflow around the given renderer.
func newSuite(t *testing.T, renderer adapter.Renderer) *suite {
	t.Helper()

	root := t.TempDir()

	for _, name := range []string{"a", "b", "c"} {
		doc := fmt.Sprintf(`<html><head><link rel="match" href="%s-ref.html"></head><body></body></html>`, name)
		writeFixture(t, filepath.Join(root, name+".html"), doc)
		writeFixture(t, filepath.Join(root, name+"-ref.html"), refDoc)
	}

	fs := adapter.NewLocalFixtureFSAdapter()
	ui := &fakeUI{}
	store := adapter.NewReportStore()

	wf := NewWorkflow(NewLoader(fs), fs, store, ui,
		func(context.Context) (adapter.Renderer, func()) {
			return renderer, func() {}
		})

	return &suite{
		workflow: wf,
		ui:       ui,
		store:    store,
		root:     root,
		reports:  t.TempDir(),
	}
}

func (s *suite) testArgs() TestArgs {
	return TestArgs{
		Paths:     []m.Path{m.Path(s.root)},
		Viewport:  m.Viewport{Width: 6, Height: 6},
		Threshold: DefaultThreshold,
		Timeout:   5 * time.Second,
		Threads:   3,
		Reports:   m.Path(s.reports),
	}
}

func TestWorkflowTest_AllPass(t *testing.T) {
	s := newSuite(t, &suiteRenderer{})

	err := s.workflow.Test(context.Background(), s.testArgs())
	require.NoError(t, err)

	report, err := s.store.LoadReport(m.Path(s.reports))
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 3)
	assert.True(t, report.AllPassed())
	assert.True(t, s.ui.closed)
}

// failingStore fails every save so post-run error paths can be exercised.
type failingStore struct {
	adapter.ReportStore
}

func (failingStore) SaveReport(m.Path, m.Report) error {
	return errors.New("disk full")
}

func TestWorkflowTest_StopsProgressDisplayOnSaveFailure(t *testing.T) {
	s := newSuite(t, &suiteRenderer{})

	fs := adapter.NewLocalFixtureFSAdapter()
	wf := NewWorkflow(NewLoader(fs), fs, failingStore{}, s.ui,
		func(context.Context) (adapter.Renderer, func()) {
			return &suiteRenderer{}, func() {}
		})

	err := wf.Test(context.Background(), s.testArgs())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save report")
	assert.True(t, s.ui.closed)
}

func TestWorkflowTest_ReportOrderMatchesDiscoveryOrder(t *testing.T) {
	// Completion order is reversed via delays; report order must not be.
	renderer := &suiteRenderer{delays: map[string]time.Duration{
		"a.html": 80 * time.Millisecond,
		"b.html": 40 * time.Millisecond,
	}}
	s := newSuite(t, renderer)

	require.NoError(t, s.workflow.Test(context.Background(), s.testArgs()))

	report, err := s.store.LoadReport(m.Path(s.reports))
	require.NoError(t, err)

	ids := make([]string, 0, len(report.Outcomes))
	for _, outcome := range report.Outcomes {
		ids = append(ids, outcome.Case.ID)
	}

	assert.Equal(t, []string{"a.html", "b.html", "c.html"}, ids)

	// Completion order differed from discovery order.
	require.Len(t, s.ui.outcomes, 3)
	assert.Equal(t, "c.html", s.ui.outcomes[0].Case.ID)
}

func TestWorkflowTest_FailureIsolation(t *testing.T) {
	// b's reference render crashes; a and c must still produce outcomes.
	renderer := &suiteRenderer{fails: map[string]bool{"b-ref.html": true}}
	s := newSuite(t, renderer)

	err := s.workflow.Test(context.Background(), s.testArgs())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 3")

	report, loadErr := s.store.LoadReport(m.Path(s.reports))
	require.NoError(t, loadErr)
	require.Len(t, report.Outcomes, 3)

	assert.Equal(t, m.VerdictPass, report.Outcomes[0].Verdict)
	assert.Equal(t, m.VerdictError, report.Outcomes[1].Verdict)
	assert.Equal(t, m.VerdictPass, report.Outcomes[2].Verdict)
}

func TestWorkflowTest_FailingCaseFailsRun(t *testing.T) {
	renderer := &suiteRenderer{colors: map[string][3]uint8{
		"b.html":     {0, 0, 0},
		"b-ref.html": {255, 255, 255},
	}}
	s := newSuite(t, renderer)

	err := s.workflow.Test(context.Background(), s.testArgs())
	require.Error(t, err)

	report, loadErr := s.store.LoadReport(m.Path(s.reports))
	require.NoError(t, loadErr)
	assert.Equal(t, 1, report.Failed())
	assert.Equal(t, 2, report.Passed())
}

func TestWorkflowTest_NoFixturesIsFatal(t *testing.T) {
	s := newSuite(t, &suiteRenderer{})
	args := s.testArgs()
	args.Paths = []m.Path{m.Path(t.TempDir())}

	err := s.workflow.Test(context.Background(), args)
	require.ErrorIs(t, err, ErrNoFixtures)
}

func TestWorkflowTest_ClearsStaleArtifacts(t *testing.T) {
	s := newSuite(t, &suiteRenderer{})

	stale := filepath.Join(s.reports, "removed_case.html.diff.png")
	writeFixture(t, stale, "old diff bytes")

	require.NoError(t, s.workflow.Test(context.Background(), s.testArgs()))

	_, err := os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
}

func TestWorkflowTest_ShardingKeepsDiscoveryIndex(t *testing.T) {
	s := newSuite(t, &suiteRenderer{})
	args := s.testArgs()
	args.ShardIndex = 0
	args.TotalShardCount = 2

	require.NoError(t, s.workflow.Test(context.Background(), args))

	report, err := s.store.LoadReport(m.Path(filepath.Join(s.reports, "shard_0")))
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 2)
	assert.Equal(t, 0, report.Outcomes[0].Index)
	assert.Equal(t, 2, report.Outcomes[1].Index)
}

func TestWorkflowMerge(t *testing.T) {
	s := newSuite(t, &suiteRenderer{})

	// An orphan document lands in every shard's skip list; the merged report
	// must record it once.
	writeFixture(t, filepath.Join(s.root, "orphan.html"), `<html><head></head><body></body></html>`)

	for _, shard := range []int{0, 1} {
		args := s.testArgs()
		args.ShardIndex = shard
		args.TotalShardCount = 2
		require.NoError(t, s.workflow.Test(context.Background(), args))
	}

	require.NoError(t, s.workflow.Merge(context.Background(), MergeArgs{Reports: m.Path(s.reports)}))

	merged, err := s.store.LoadReport(m.Path(s.reports))
	require.NoError(t, err)
	require.Len(t, merged.Outcomes, 3)

	for i, outcome := range merged.Outcomes {
		assert.Equal(t, i, outcome.Index)
	}

	require.Len(t, merged.Skips, 1)
	assert.Equal(t, m.NoReference, merged.Skips[0].Reason)
}

func TestWorkflowEstimate(t *testing.T) {
	s := newSuite(t, &suiteRenderer{})

	require.NoError(t, s.workflow.Estimate(context.Background(), EstimateArgs{
		Paths: []m.Path{m.Path(s.root)},
	}))

	require.Len(t, s.ui.cases, 3)
	assert.Empty(t, s.ui.skips)
}

func TestWorkflowView(t *testing.T) {
	s := newSuite(t, &suiteRenderer{})
	require.NoError(t, s.workflow.Test(context.Background(), s.testArgs()))

	t.Run("yaml format displays marshaled report", func(t *testing.T) {
		require.NoError(t, s.workflow.View(context.Background(), ViewArgs{
			Reports: m.Path(s.reports),
			Format:  "yaml",
		}))

		require.NotEmpty(t, s.ui.texts)
		assert.Contains(t, s.ui.texts[len(s.ui.texts)-1], "outcomes:")
	})

	t.Run("table format displays the report", func(t *testing.T) {
		before := len(s.ui.reports)
		require.NoError(t, s.workflow.View(context.Background(), ViewArgs{
			Reports: m.Path(s.reports),
		}))
		assert.Len(t, s.ui.reports, before+1)
	})

	t.Run("comparing a report against itself is empty", func(t *testing.T) {
		require.NoError(t, s.workflow.View(context.Background(), ViewArgs{
			Reports:   m.Path(s.reports),
			CompareTo: m.Path(s.reports),
		}))

		require.NotEmpty(t, s.ui.texts)
		assert.True(t, strings.Contains(s.ui.texts[len(s.ui.texts)-1], "identical"))
	})

	t.Run("missing report is an error", func(t *testing.T) {
		err := s.workflow.View(context.Background(), ViewArgs{Reports: m.Path(t.TempDir())})
		require.Error(t, err)
	})
}
