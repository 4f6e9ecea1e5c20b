package controller

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	m "refract.dev/pkg/refract/internal/model"
)

var (
	passStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	dimStyle   = lipgloss.NewStyle().Faint(true)
)

// SimpleUI implements UI using cobra Command's output writer. Safe for
// concurrent DisplayCaseOutcome calls.
type SimpleUI struct {
	cmd *cobra.Command
	mu  sync.Mutex
}

// NewSimpleUI creates a new SimpleUI.
func NewSimpleUI(cmd *cobra.Command) *SimpleUI {
	return &SimpleUI{cmd: cmd}
}

// DisplayRunInfo announces worker and shard settings.
func (s *SimpleUI) DisplayRunInfo(ctx context.Context, cases, threads, shardIndex, shardCount int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if shardCount > 1 {
		return s.printf("Running %d cases with %d worker(s) (shard %d/%d)\n", cases, threads, shardIndex, shardCount)
	}

	return s.printf("Running %d cases with %d worker(s)\n", cases, threads)
}

// DisplayCaseOutcome prints one verdict line as the case completes.
func (s *SimpleUI) DisplayCaseOutcome(ctx context.Context, outcome m.Outcome) {
	if ctx.Err() != nil {
		return
	}

	_ = s.printf("%s %s%s\n", verdictMark(outcome.Verdict), outcome.Case.ID, outcomeDetail(outcome))
}

// DisplayReport prints the summary table plus failure details.
func (s *SimpleUI) DisplayReport(ctx context.Context, report m.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.printf("\n%s", renderReportTable(report)); err != nil {
		return err
	}

	for _, outcome := range report.Outcomes {
		if outcome.Verdict == m.VerdictPass {
			continue
		}

		if err := s.printf("%s %s%s\n", verdictMark(outcome.Verdict), outcome.Case.ID, outcomeDetail(outcome)); err != nil {
			return err
		}
	}

	return s.printf("\nTotal: %d | Pass: %d | Fail: %d | Error: %d | Skipped: %d\n",
		len(report.Outcomes), report.Passed(), report.Failed(), report.Errored(), len(report.Skips))
}

// DisplayFixtureList prints discovered cases and skipped documents.
func (s *SimpleUI) DisplayFixtureList(ctx context.Context, cases []m.TestCase, skips []m.Skip) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.printf("\n%s", renderFixtureTable(cases)); err != nil {
		return err
	}

	for _, skip := range skips {
		if err := s.printf("%s\n", dimStyle.Render(fmt.Sprintf("skipped %s (%s)", skip.Path, skip.Reason))); err != nil {
			return err
		}
	}

	return nil
}

// DisplayText prints preformatted text verbatim.
func (s *SimpleUI) DisplayText(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.printf("%s", text)
}

// Close is a no-op: SimpleUI holds no terminal state.
func (s *SimpleUI) Close() {}

func (s *SimpleUI) printf(format string, args ...interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := fmt.Fprintf(s.cmd.OutOrStdout(), format, args...)

	return err
}

func verdictMark(verdict m.Verdict) string {
	switch verdict {
	case m.VerdictPass:
		return passStyle.Render("✓")
	case m.VerdictFail:
		return failStyle.Render("✗")
	default:
		return errorStyle.Render("!")
	}
}

func outcomeDetail(outcome m.Outcome) string {
	switch outcome.Verdict {
	case m.VerdictError:
		return fmt.Sprintf(" (%s)", outcome.Reason)
	case m.VerdictFail:
		detail := fmt.Sprintf(" (mismatch %.4f)", outcome.MismatchRatio())
		if outcome.DiffPath != "" {
			detail += fmt.Sprintf(" diff: %s", outcome.DiffPath)
		}

		return detail
	default:
		return ""
	}
}

func renderReportTable(report m.Report) string {
	var tableBuffer bytes.Buffer

	table := tablewriter.NewWriter(&tableBuffer)
	table.SetHeader([]string{"Case", "Verdict", "Mismatch"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_CENTER, tablewriter.ALIGN_RIGHT})

	for _, outcome := range report.Outcomes {
		table.Append([]string{outcome.Case.ID, string(outcome.Verdict), formatRatio(outcome.MismatchRatio())})
	}

	table.SetFooter([]string{
		fmt.Sprintf("Total Cases %d", len(report.Outcomes)),
		fmt.Sprintf("Pass %d", report.Passed()),
		fmt.Sprintf("Not Pass %d", len(report.Outcomes)-report.Passed()),
	})

	table.Render()

	return tableBuffer.String()
}

func renderFixtureTable(cases []m.TestCase) string {
	var tableBuffer bytes.Buffer

	table := tablewriter.NewWriter(&tableBuffer)
	table.SetHeader([]string{"Case", "Relation", "Assertion"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_CENTER, tablewriter.ALIGN_LEFT})

	for _, tc := range cases {
		table.Append([]string{tc.ID, string(tc.Relation), tc.Assertion})
	}

	table.SetFooter([]string{fmt.Sprintf("Total Fixtures %d", len(cases)), "", ""})
	table.Render()

	return tableBuffer.String()
}

func formatRatio(ratio float64) string {
	if math.IsNaN(ratio) {
		return "n/a"
	}

	return fmt.Sprintf("%.4f", ratio)
}
