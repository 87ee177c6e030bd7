package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/jamesainslie/docsweep/pkg/docsweep/batch"
	"github.com/jamesainslie/docsweep/pkg/docsweep/logging"
	"github.com/jamesainslie/docsweep/pkg/docsweep/types"
)

const (
	recentLimit = 6
	logLimit    = 5
)

// ProcessFunc runs a batch, reporting each finished task to progress.
type ProcessFunc func(ctx context.Context, progress batch.ResultCallback) ([]types.Result, error)

// Options configures the batch progress view.
type Options struct {
	// Title describes the run, e.g. "Converting ~/papers".
	Title string

	// Total is the number of documents queued. Progress updates replace it
	// with the number actually dispatched.
	Total int

	// Process runs the batch. It is started when the program starts.
	Process ProcessFunc
}

// ProgressMsg is sent when a task finishes. Completed and Failed are
// running counts.
type ProgressMsg struct {
	Completed int
	Failed    int
	Total     int
	Success   bool
	Message   string
}

// recentLine is one finished document in the recent list.
type recentLine struct {
	text string
	ok   bool
}

// DoneMsg is sent when Process returns.
type DoneMsg struct {
	Results []types.Result
	Err     error
}

// LogMsg carries a log entry to the view.
type LogMsg logging.Entry

// tickMsg refreshes the elapsed time.
type tickMsg struct{}

// Model is the Bubble Tea model for a running batch.
type Model struct {
	options Options

	ctx    context.Context
	cancel context.CancelFunc

	spinner  spinner.Model
	bar      progress.Model
	progress chan ProgressMsg
	logCh    <-chan logging.Entry

	total     int
	completed int
	failed    int
	current   string
	recent    *lineRing[recentLine]
	logs      *lineRing[logging.Entry]

	startTime time.Time
	elapsed   time.Duration
	stopping  bool
	done      bool
	results   []types.Result
	err       error

	width  int
	height int
}

// NewModel creates a model. Cancelling ctx, or pressing q, stops dispatch;
// documents in progress finish before the model quits.
func NewModel(ctx context.Context, opts Options, logCh <-chan logging.Entry) Model {
	ctx, cancel := context.WithCancel(ctx)

	s := spinner.New()
	s.Spinner = spinner.Points
	s.Style = lipgloss.NewStyle().Foreground(primaryColor)

	bar := progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage())

	return Model{
		options:   opts,
		ctx:       ctx,
		cancel:    cancel,
		spinner:   s,
		bar:       bar,
		progress:  make(chan ProgressMsg, 100),
		logCh:     logCh,
		total:     opts.Total,
		recent:    newLineRing[recentLine](recentLimit),
		logs:      newLineRing[logging.Entry](logLimit),
		startTime: time.Now(),
		width:     80,
		height:    24,
	}
}

// Init starts the batch and the listeners.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.startProcess(),
		m.listenForProgress(),
		m.listenForLogs(),
		tick(),
	)
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg { return tickMsg{} })
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case ProgressMsg:
		if msg.Total > 0 {
			m.total = msg.Total
		}
		m.completed = max(m.completed, msg.Completed)
		m.failed = max(m.failed, msg.Failed)
		m.current = msg.Message
		m.recent.Add(recentLine{text: msg.Message, ok: msg.Success})
		return m, m.listenForProgress()

	case LogMsg:
		m.logs.Add(logging.Entry(msg))
		return m, m.listenForLogs()

	case DoneMsg:
		m.done = true
		m.results = msg.Results
		m.err = msg.Err
		m.elapsed = time.Since(m.startTime)
		m.completed = len(msg.Results)
		m.failed = types.Summarize(msg.Results).Failed
		if msg.Err == nil {
			// Every dispatched document finished, including runs where
			// nothing was left to dispatch.
			m.total = m.completed
		}
		m.cancel()
		return m, tea.Quit

	case tickMsg:
		if m.done {
			return m, nil
		}
		m.elapsed = time.Since(m.startTime)
		return m, tick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q", "esc":
		if !m.done && !m.stopping {
			m.stopping = true
			m.cancel()
		}
	}
	return m, nil
}

// View renders the model.
func (m Model) View() string {
	contentWidth := max(m.width-4, 40)

	var b strings.Builder
	b.WriteString(m.renderHeader(contentWidth))
	b.WriteString("\n")
	b.WriteString(renderDivider(contentWidth))
	b.WriteString("\n\n")

	b.WriteString(m.renderStatus(contentWidth))
	b.WriteString("\n\n  ")
	m.bar.Width = max(contentWidth-12, 10)
	b.WriteString(m.bar.ViewAs(m.fraction()))
	fmt.Fprintf(&b, " %3.0f%%\n", m.fraction()*100)

	if m.recent.Len() > 0 {
		b.WriteString("\n")
		for _, line := range m.recent.Items() {
			b.WriteString("  ")
			b.WriteString(renderRecent(line, contentWidth-2))
			b.WriteString("\n")
		}
	}

	if m.logs.Len() > 0 {
		b.WriteString("\n")
		for _, entry := range m.logs.Items() {
			b.WriteString("  ")
			b.WriteString(renderLogEntry(entry, contentWidth-2))
			b.WriteString("\n")
		}
	}

	return outerBoxStyle.Width(m.width - 2).Render(b.String())
}

func (m Model) renderHeader(width int) string {
	title := titleStyle.Render("docsweep") + " " + truncatePath(m.options.Title, width/2)
	hint := keyStyle.Render("[q]") + " " + keyDescStyle.Render("stop")
	if m.done {
		hint = ""
	}
	spacing := max(width-lipgloss.Width(title)-lipgloss.Width(hint), 1)
	return title + strings.Repeat(" ", spacing) + hint
}

func (m Model) renderStatus(width int) string {
	counts := countStyle.Render(fmt.Sprintf("%s/%s",
		humanize.Comma(int64(m.completed)), humanize.Comma(int64(m.total)))) + " documents"
	if m.failed > 0 {
		counts += "  " + errorTextStyle.Render(fmt.Sprintf("%d failed", m.failed))
	}
	counts += "  " + mutedTextStyle.Render(formatElapsed(m.elapsed))

	switch {
	case m.done && m.err != nil && !errors.Is(m.err, context.Canceled):
		return "  " + errorTextStyle.Render("Error: "+m.err.Error())
	case m.done && m.stopping:
		return "  " + warningTextStyle.Render("Stopped") + "  " + counts
	case m.done:
		return "  " + successTextStyle.Render("Done") + "  " + counts
	case m.stopping:
		return fmt.Sprintf("  %s %s  %s", m.spinner.View(),
			warningTextStyle.Render("Stopping, finishing documents in progress..."), counts)
	default:
		line := fmt.Sprintf("  %s %s", m.spinner.View(), counts)
		if m.current != "" {
			line += "\n  " + mutedTextStyle.Render(truncatePath(m.current, width-2))
		}
		return line
	}
}

func renderRecent(line recentLine, width int) string {
	if !line.ok {
		return errorTextStyle.Render("✗ " + truncateEnd(line.text, width-2))
	}
	return successTextStyle.Render("✓ ") + truncateEnd(line.text, width-2)
}

// fraction returns the completed share of the batch in [0, 1].
func (m Model) fraction() float64 {
	if m.total <= 0 {
		return 0
	}
	return min(float64(m.completed)/float64(m.total), 1)
}

// formatElapsed formats a duration as M:SS.
func formatElapsed(d time.Duration) string {
	d = d.Round(time.Second)
	return fmt.Sprintf("%d:%02d", d/time.Minute, (d%time.Minute)/time.Second)
}

// startProcess runs the batch and reports its outcome as a DoneMsg.
func (m Model) startProcess() tea.Cmd {
	progressCh := m.progress
	ctx := m.ctx
	process := m.options.Process
	return func() tea.Msg {
		results, err := process(ctx, func(p batch.Progress) {
			msg := ProgressMsg{
				Completed: p.Completed,
				Failed:    p.Failed,
				Total:     p.Total,
				Success:   p.Result.Success,
				Message:   p.Message,
			}
			select {
			case progressCh <- msg:
			default:
				// Channel full, skip this update
			}
		})
		close(progressCh)
		return DoneMsg{Results: results, Err: err}
	}
}

// listenForProgress waits for the next progress update.
func (m Model) listenForProgress() tea.Cmd {
	progressCh := m.progress
	return func() tea.Msg {
		p, ok := <-progressCh
		if !ok {
			return nil
		}
		return p
	}
}

// listenForLogs waits for the next log entry.
func (m Model) listenForLogs() tea.Cmd {
	logCh := m.logCh
	if logCh == nil {
		return nil
	}
	return func() tea.Msg {
		entry, ok := <-logCh
		if !ok {
			return nil
		}
		return LogMsg(entry)
	}
}

// Results returns the batch results once the model is done.
func (m Model) Results() ([]types.Result, error) {
	return m.results, m.err
}

// IsDone reports whether Process has returned.
func (m Model) IsDone() bool {
	return m.done
}
