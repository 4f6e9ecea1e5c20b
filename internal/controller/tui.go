package controller

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	m "refract.dev/pkg/refract/internal/model"
)

// TUI implements UI using Bubble Tea for interactive progress display.
type TUI struct {
	output io.Writer

	mu      sync.Mutex
	program *tea.Program
	done    chan struct{}
}

// NewTUI creates a new TUI writing to output.
func NewTUI(output io.Writer) *TUI {
	return &TUI{output: output}
}

// DisplayRunInfo starts the progress display for the given number of cases.
func (t *TUI) DisplayRunInfo(ctx context.Context, cases, threads, shardIndex, shardCount int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	model := newRunModel(cases, threads, shardIndex, shardCount)
	t.program = tea.NewProgram(model, tea.WithOutput(t.output))
	t.done = make(chan struct{})

	go func() {
		defer close(t.done)

		_, _ = t.program.Run()
	}()

	return nil
}

// DisplayCaseOutcome forwards one completed case into the running program.
// Safe from worker goroutines: tea.Program.Send is concurrency-safe.
func (t *TUI) DisplayCaseOutcome(ctx context.Context, outcome m.Outcome) {
	if ctx.Err() != nil {
		return
	}

	t.mu.Lock()
	program := t.program
	t.mu.Unlock()

	if program != nil {
		program.Send(outcomeMsg{outcome: outcome})
	}
}

// DisplayReport stops the progress display and prints the summary table.
func (t *TUI) DisplayReport(ctx context.Context, report m.Report) error {
	t.mu.Lock()
	program, done := t.program, t.done
	t.program, t.done = nil, nil
	t.mu.Unlock()

	if program != nil {
		program.Send(finishedMsg{})
		<-done
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(t.output, "\n%s\nTotal: %d | Pass: %d | Fail: %d | Error: %d | Skipped: %d\n",
		renderReportTable(report),
		len(report.Outcomes), report.Passed(), report.Failed(), report.Errored(), len(report.Skips))

	return err
}

// DisplayFixtureList prints discovered cases; no progress display is involved.
func (t *TUI) DisplayFixtureList(ctx context.Context, cases []m.TestCase, skips []m.Skip) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := fmt.Fprintf(t.output, "\n%s", renderFixtureTable(cases)); err != nil {
		return err
	}

	for _, skip := range skips {
		if _, err := fmt.Fprintf(t.output, "%s\n", dimStyle.Render(fmt.Sprintf("skipped %s (%s)", skip.Path, skip.Reason))); err != nil {
			return err
		}
	}

	return nil
}

// DisplayText prints preformatted text verbatim.
func (t *TUI) DisplayText(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := fmt.Fprint(t.output, text)

	return err
}

// Close stops a progress display that is still running, releasing its
// goroutine and the raw terminal mode. A run that reaches DisplayReport has
// already stopped the program; Close then does nothing.
func (t *TUI) Close() {
	t.mu.Lock()
	program, done := t.program, t.done
	t.program, t.done = nil, nil
	t.mu.Unlock()

	if program != nil {
		program.Quit()
		<-done
	}
}

type outcomeMsg struct {
	outcome m.Outcome
}

type finishedMsg struct{}

// runModel is the Bubble Tea model for an in-flight comparison run.
type runModel struct {
	total      int
	threads    int
	shardIndex int
	shardCount int

	completed int
	passed    int
	failed    int
	errored   int
	lastCase  string

	spin spinner.Model
	bar  progress.Model
}

func newRunModel(total, threads, shardIndex, shardCount int) runModel {
	spin := spinner.New()
	spin.Spinner = spinner.Dot

	return runModel{
		total:      total,
		threads:    threads,
		shardIndex: shardIndex,
		shardCount: shardCount,
		spin:       spin,
		bar:        progress.New(progress.WithDefaultGradient()),
	}
}

func (r runModel) Init() tea.Cmd {
	return r.spin.Tick
}

func (r runModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case outcomeMsg:
		r.completed++
		r.lastCase = msg.outcome.Case.ID

		switch msg.outcome.Verdict {
		case m.VerdictPass:
			r.passed++
		case m.VerdictFail:
			r.failed++
		default:
			r.errored++
		}

		return r, nil

	case finishedMsg:
		return r, tea.Quit

	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return r, tea.Quit
		}

		return r, nil

	case spinner.TickMsg:
		var cmd tea.Cmd

		r.spin, cmd = r.spin.Update(msg)

		return r, cmd

	default:
		return r, nil
	}
}

func (r runModel) View() string {
	ratio := 0.0
	if r.total > 0 {
		ratio = float64(r.completed) / float64(r.total)
	}

	header := fmt.Sprintf("%s comparing %d/%d", r.spin.View(), r.completed, r.total)
	if r.shardCount > 1 {
		header += fmt.Sprintf(" (shard %d/%d)", r.shardIndex, r.shardCount)
	}

	counts := lipgloss.JoinHorizontal(lipgloss.Top,
		passStyle.Render(fmt.Sprintf("pass %d", r.passed)), "  ",
		failStyle.Render(fmt.Sprintf("fail %d", r.failed)), "  ",
		errorStyle.Render(fmt.Sprintf("error %d", r.errored)),
	)

	view := header + "\n" + r.bar.ViewAs(ratio) + "\n" + counts + "\n"
	if r.lastCase != "" {
		view += dimStyle.Render("last: "+r.lastCase) + "\n"
	}

	return view
}
