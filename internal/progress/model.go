package progress

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/studiowebux/chirpload/internal/scenario"
)

const (
	pollInterval = 100 * time.Millisecond
	barWidth     = 40
)

type tickMsg time.Time

// Model is the bubbletea view of a running scenario. It polls a Tracker
// and quits once the run reaches a terminal state.
type Model struct {
	tracker *Tracker
	cancel  context.CancelFunc
	spinner spinner.Model
	view    View
	quit    bool
}

// NewModel creates a model; cancel is invoked when the user presses q or ctrl+c
func NewModel(tracker *Tracker, cancel context.CancelFunc) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styleSpinner

	return Model{
		tracker: tracker,
		cancel:  cancel,
		spinner: s,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, poll())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if m.cancel != nil {
				m.cancel()
			}
			m.quit = true
			return m, tea.Quit
		}
		return m, nil

	case tickMsg:
		m.view = m.tracker.Snapshot()
		if m.view.State.IsTerminal() {
			m.quit = true
			return m, tea.Quit
		}
		return m, poll()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(styleTitle.Render("chirpload") + " ")
	b.WriteString(styleSubtle.Render(fmt.Sprintf("%s · %s", m.view.State, formatElapsed(m.view.Elapsed))) + "\n\n")

	for _, p := range m.view.Finished {
		fmt.Fprintf(&b, "%s %-28s %6d/%-6d %s\n",
			styleDone.Render("✓"), p.Name, p.Completed, p.Total, styleSubtle.Render(formatElapsed(p.Elapsed)))
	}

	if cur := m.view.Current; cur != nil {
		fmt.Fprintf(&b, "%s %-28s %6d/%-6d %s\n",
			m.spinner.View(), cur.Name, cur.Completed, cur.Total, styleSubtle.Render(formatElapsed(cur.Elapsed)))
		fmt.Fprintf(&b, "  %s %5.1f%%  %s\n", renderBar(cur.Percent(), barWidth), cur.Percent(),
			styleSubtle.Render(fmt.Sprintf("%d in flight", m.view.InFlight)))
	} else if m.view.State == scenario.StateTransition {
		fmt.Fprintf(&b, "%s settling after %s\n", m.spinner.View(), m.view.StateLabel)
	}

	if m.view.State.IsTerminal() {
		style := styleDone
		if m.view.State == scenario.StateAborted {
			style = styleAborted
		}
		b.WriteString("\n" + style.Render(strings.ToUpper(m.view.State.String())) + "\n")
	} else if !m.quit {
		b.WriteString("\n" + styleSubtle.Render("q: abort run") + "\n")
	}
	return b.String()
}

// renderBar draws a block progress bar for percent in [0, 100]
func renderBar(percent float64, width int) string {
	filled := int(percent / 100.0 * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func poll() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func formatElapsed(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.Round(100 * time.Millisecond).String()
}

// RunTUI drives the model until the run ends or the user aborts. It is
// meant to run in its own goroutine next to the scenario runner.
func RunTUI(ctx context.Context, tracker *Tracker, cancel context.CancelFunc) error {
	p := tea.NewProgram(NewModel(tracker, cancel), tea.WithContext(ctx))
	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
