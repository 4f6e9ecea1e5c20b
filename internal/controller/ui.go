// Package controller provides output adapters for displaying harness results.
package controller

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	m "refract.dev/pkg/refract/internal/model"
)

// UI defines the interface for displaying discovery and run results.
// Implementations can use different output methods (simple text, TUI).
type UI interface {
	// DisplayRunInfo announces worker and shard settings before cases run.
	DisplayRunInfo(ctx context.Context, cases, threads, shardIndex, shardCount int) error

	// DisplayCaseOutcome reports one completed case. Called from worker
	// goroutines, so implementations must be safe for concurrent use.
	DisplayCaseOutcome(ctx context.Context, outcome m.Outcome)

	// DisplayReport renders the aggregated report summary.
	DisplayReport(ctx context.Context, report m.Report) error

	// DisplayFixtureList renders discovered cases and skipped documents.
	DisplayFixtureList(ctx context.Context, cases []m.TestCase, skips []m.Skip) error

	// DisplayText prints preformatted text (YAML exports, report diffs).
	DisplayText(ctx context.Context, text string) error

	// Close stops any in-flight progress display and restores the terminal.
	// Idempotent, and safe to call after DisplayReport.
	Close()
}

// NewUI selects the interactive TUI on a terminal and the simple printer
// otherwise (pipes, CI).
func NewUI(cmd *cobra.Command, interactive bool) UI {
	if interactive {
		return NewTUI(cmd.OutOrStdout())
	}

	return NewSimpleUI(cmd)
}

// IsTTY reports whether f is attached to a terminal.
func IsTTY(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
