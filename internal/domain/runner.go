package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/pmezard/go-difflib/difflib"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"refract.dev/pkg/refract/internal/adapter"
	"refract.dev/pkg/refract/internal/controller"
	m "refract.dev/pkg/refract/internal/model"
	"refract.dev/pkg/refract/pkg"
)

// ErrNoFixtures aborts a run that discovered zero test cases. Unlike per-case
// failures this is fatal: an empty run exiting 0 would silently pass CI.
var ErrNoFixtures = errors.New("no test fixtures discovered")

// TestArgs contains the arguments for a comparison run.
type TestArgs struct {
	Paths           []m.Path
	Exclude         []string
	Viewport        m.Viewport
	Tolerance       float64
	Threshold       uint8
	Timeout         time.Duration
	Threads         int
	ShardIndex      int
	TotalShardCount int
	Reports         m.Path
}

// EstimateArgs contains the arguments for listing fixtures without rendering.
type EstimateArgs struct {
	Paths   []m.Path
	Exclude []string
}

// ViewArgs contains the arguments for viewing a persisted report.
type ViewArgs struct {
	Reports m.Path

	// Format selects table (default) or yaml output.
	Format string

	// CompareTo, when set, diffs the report in Reports against the report in
	// this directory instead of displaying it.
	CompareTo m.Path
}

// MergeArgs contains the arguments for merging shard reports.
type MergeArgs struct {
	Reports m.Path
}

// Workflow is the top-level use-case layer behind the CLI commands.
type Workflow interface {
	Test(ctx context.Context, args TestArgs) error
	Estimate(ctx context.Context, args EstimateArgs) error
	View(ctx context.Context, args ViewArgs) error
	Merge(ctx context.Context, args MergeArgs) error
}

type workflow struct {
	Loader
	adapter.ReportStore
	controller.UI

	fs          adapter.FixtureFSAdapter
	newRenderer func(ctx context.Context) (adapter.Renderer, func())
}

// NewWorkflow creates a Workflow with the provided dependencies. newRenderer
// is invoked once per run so the browser process only exists while rendering.
func NewWorkflow(
	loader Loader,
	fs adapter.FixtureFSAdapter,
	reportStore adapter.ReportStore,
	ui controller.UI,
	newRenderer func(ctx context.Context) (adapter.Renderer, func()),
) Workflow {
	return &workflow{
		Loader:      loader,
		ReportStore: reportStore,
		UI:          ui,
		fs:          fs,
		newRenderer: newRenderer,
	}
}

// Test discovers fixtures, renders and compares each pair on a bounded worker
// pool, persists the aggregated report, and fails when any verdict is not Pass.
func (w *workflow) Test(ctx context.Context, args TestArgs) error {
	cases, skips, err := w.Discover(ctx, args.Paths, args.Exclude...)
	if err != nil {
		return fmt.Errorf("discover fixtures: %w", err)
	}

	if len(cases) == 0 {
		return ErrNoFixtures
	}

	reportsDir := shardReportsDir(args.Reports, args.ShardIndex, args.TotalShardCount)
	sharded := shardCases(cases, args.ShardIndex, args.TotalShardCount)

	// Clear the previous run's report and diff artifacts so stale diffs never
	// sit beside a report that no longer mentions them.
	if err := w.fs.RemoveAll(reportsDir); err != nil {
		return fmt.Errorf("clear reports dir: %w", err)
	}

	if err := w.DisplayRunInfo(ctx, len(sharded), args.Threads, args.ShardIndex, args.TotalShardCount); err != nil {
		return err
	}

	// The TUI progress display must be stopped on every exit path or an early
	// error leaves the terminal in raw mode.
	defer w.UI.Close()

	renderer, closeRenderer := w.newRenderer(ctx)
	defer closeRenderer()

	orch := NewOrchestrator(w.fs, renderer, NewComparator(args.Threshold), CaseConfig{
		Viewport:  args.Viewport,
		Tolerance: args.Tolerance,
		Timeout:   args.Timeout,
		DiffDir:   reportsDir,
	})

	outcomes, err := w.runCases(ctx, orch, sharded, args.Threads)
	if err != nil {
		return err
	}

	report := m.Report{
		CreatedAt: time.Now().UTC(),
		Viewport:  args.Viewport,
		Tolerance: args.Tolerance,
		Threshold: args.Threshold,
		Outcomes:  outcomes,
		Skips:     skips,
	}

	if err := w.SaveReport(reportsDir, report); err != nil {
		return fmt.Errorf("save report: %w", err)
	}

	if err := w.DisplayReport(ctx, report); err != nil {
		return err
	}

	if !report.AllPassed() {
		return fmt.Errorf("%d of %d cases did not pass",
			len(report.Outcomes)-report.Passed(), len(report.Outcomes))
	}

	return nil
}

// runCases executes cases on an errgroup pool limited to the configured
// worker count. Completed outcomes spill to a disk-backed sequence so diff
// buffers of large suites never accumulate in memory; the final slice is
// re-sorted by discovery index, not completion order.
func (w *workflow) runCases(ctx context.Context, orch Orchestrator, cases []indexedCase, threads int) ([]m.Outcome, error) {
	spill, err := pkg.NewFileSpill[spilledOutcome]()
	if err != nil {
		return nil, fmt.Errorf("create outcome spill: %w", err)
	}

	defer func() {
		if err := spill.Close(); err != nil {
			slog.Error("Failed to clean up outcome spill", "error", err)
		}
	}()

	if threads <= 0 {
		threads = 1
	}

	var group errgroup.Group

	group.SetLimit(threads)

	for _, ic := range cases {
		currentCase := ic

		group.Go(func() error {
			outcome := orch.RunCase(ctx, currentCase.tc)
			outcome.Index = currentCase.index

			if err := spill.Append(newSpilledOutcome(outcome)); err != nil {
				return err
			}

			w.DisplayCaseOutcome(ctx, outcome)

			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, fmt.Errorf("collect outcomes: %w", err)
	}

	outcomes := make([]m.Outcome, 0, len(cases))

	err = spill.Range(func(_ uint64, item spilledOutcome) error {
		outcomes = append(outcomes, item.restore())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("collect outcomes: %w", err)
	}

	sort.Slice(outcomes, func(i, j int) bool {
		return outcomes[i].Index < outcomes[j].Index
	})

	return outcomes, nil
}

// Estimate lists discovered fixtures and skips without rendering anything.
func (w *workflow) Estimate(ctx context.Context, args EstimateArgs) error {
	cases, skips, err := w.Discover(ctx, args.Paths, args.Exclude...)
	if err != nil {
		return fmt.Errorf("discover fixtures: %w", err)
	}

	return w.DisplayFixtureList(ctx, cases, skips)
}

// View displays a persisted report, optionally as YAML or as a unified diff
// against another run's report.
func (w *workflow) View(ctx context.Context, args ViewArgs) error {
	report, err := w.LoadReport(args.Reports)
	if err != nil {
		return fmt.Errorf("load report: %w", err)
	}

	if args.CompareTo != "" {
		return w.viewDiff(ctx, report, args)
	}

	if args.Format == "yaml" {
		data, err := yaml.Marshal(report)
		if err != nil {
			return fmt.Errorf("marshal report: %w", err)
		}

		return w.DisplayText(ctx, string(data))
	}

	return w.DisplayReport(ctx, report)
}

func (w *workflow) viewDiff(ctx context.Context, report m.Report, args ViewArgs) error {
	other, err := w.LoadReport(args.CompareTo)
	if err != nil {
		return fmt.Errorf("load comparison report: %w", err)
	}

	left, err := yaml.Marshal(other)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	right, err := yaml.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(left)),
		B:        difflib.SplitLines(string(right)),
		FromFile: string(args.CompareTo),
		ToFile:   string(args.Reports),
		Context:  3,
	})
	if err != nil {
		return fmt.Errorf("diff reports: %w", err)
	}

	if diff == "" {
		diff = "reports are identical\n"
	}

	return w.DisplayText(ctx, diff)
}

// Merge combines shard_* reports under the reports directory into a single
// report, re-sorted by discovery index.
func (w *workflow) Merge(ctx context.Context, args MergeArgs) error {
	shards, err := w.LoadShardReports(args.Reports)
	if err != nil {
		return fmt.Errorf("load shard reports: %w", err)
	}

	if len(shards) == 0 {
		return fmt.Errorf("no shard reports found under %s", args.Reports)
	}

	merged := shards[0]
	merged.Outcomes = nil
	merged.Skips = nil

	// Every shard records the full discovery skip list, so skips must be
	// deduplicated or the merged report counts each one per shard.
	seen := make(map[m.Skip]bool)

	for _, shard := range shards {
		merged.Outcomes = append(merged.Outcomes, shard.Outcomes...)

		for _, skip := range shard.Skips {
			if seen[skip] {
				continue
			}

			seen[skip] = true
			merged.Skips = append(merged.Skips, skip)
		}
	}

	sort.Slice(merged.Outcomes, func(i, j int) bool {
		return merged.Outcomes[i].Index < merged.Outcomes[j].Index
	})

	if err := w.SaveReport(args.Reports, merged); err != nil {
		return fmt.Errorf("save merged report: %w", err)
	}

	return w.DisplayReport(ctx, merged)
}

// spilledOutcome flattens Outcome.Ratio for the gob spill. Gob omits fields
// holding their zero value, so a pointer to a clean 0.0 ratio would decode
// as nil and read back as NaN.
type spilledOutcome struct {
	Outcome  m.Outcome
	HasRatio bool
	Ratio    float64
}

func newSpilledOutcome(outcome m.Outcome) spilledOutcome {
	item := spilledOutcome{Outcome: outcome, HasRatio: outcome.Ratio != nil}
	if item.HasRatio {
		item.Ratio = *outcome.Ratio
	}

	return item
}

func (s spilledOutcome) restore() m.Outcome {
	if s.HasRatio {
		return s.Outcome.WithRatio(s.Ratio)
	}

	s.Outcome.Ratio = nil

	return s.Outcome
}

// indexedCase carries a case together with its discovery index so sharding
// never loses the original ordering.
type indexedCase struct {
	index int
	tc    m.TestCase
}

// shardCases filters cases to the given shard by discovery index.
func shardCases(cases []m.TestCase, shardIndex, totalShardCount int) []indexedCase {
	indexed := make([]indexedCase, 0, len(cases))

	for i, tc := range cases {
		if totalShardCount > 1 && i%totalShardCount != shardIndex {
			continue
		}

		indexed = append(indexed, indexedCase{index: i, tc: tc})
	}

	return indexed
}

// shardReportsDir nests shard output under the reports directory so shards
// running in parallel processes never overwrite each other.
func shardReportsDir(reports m.Path, shardIndex, totalShardCount int) m.Path {
	if totalShardCount <= 1 {
		return reports
	}

	return m.Path(fmt.Sprintf("%s/%s%d", reports, adapter.ShardDirPrefix, shardIndex))
}
