// Package ui renders the live status dashboard shown by 'docindex status
// --watch'.
package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/Aman-CERP/docindex/internal/app"
	"github.com/Aman-CERP/docindex/internal/output"
)

// StatusFunc reads the current status.
type StatusFunc func(ctx context.Context) (app.Status, error)

// ErrNotTerminal is returned by RunDashboard when out is not a terminal.
var ErrNotTerminal = errors.New("output is not a terminal")

type statusMsg struct {
	status app.Status
	err    error
	at     time.Time
}

type tickMsg struct{}

type dashboard struct {
	readStatus StatusFunc
	interval   time.Duration
	title      string

	spinner  spinner.Model
	depth    *Sparkline
	styles   output.Styles
	last     app.Status
	err      error
	updated  time.Time
	polls    int
	quitting bool
}

func newDashboard(readStatus StatusFunc, interval time.Duration, title string) *dashboard {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(output.ColorLime))

	return &dashboard{
		readStatus: readStatus,
		interval:   interval,
		title:      title,
		spinner:    s,
		depth:      NewSparkline(40),
		styles:     output.DefaultStyles(),
	}
}

// RunDashboard shows a status panel refreshed every interval until the user
// quits or ctx is done.
func RunDashboard(ctx context.Context, out io.Writer, readStatus StatusFunc, interval time.Duration, title string) error {
	f, ok := out.(*os.File)
	if !ok || !isatty.IsTerminal(f.Fd()) {
		return ErrNotTerminal
	}

	p := tea.NewProgram(newDashboard(readStatus, interval, title),
		tea.WithOutput(f),
		tea.WithContext(ctx),
		tea.WithAltScreen(),
	)
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// Init implements tea.Model.
func (m *dashboard) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.fetch())
}

func (m *dashboard) fetch() tea.Cmd {
	readStatus, timeout := m.readStatus, m.interval
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		st, err := readStatus(ctx)
		return statusMsg{status: st, err: err, at: time.Now()}
	}
}

// Update implements tea.Model.
func (m *dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.quitting = true
			return m, tea.Quit
		}

	case statusMsg:
		m.polls++
		m.updated = msg.at
		m.err = msg.err
		if msg.err == nil {
			m.last = msg.status
			m.depth.Add(float64(msg.status.QueueDepth))
		}
		return m, tea.Tick(m.interval, func(time.Time) tea.Msg { return tickMsg{} })

	case tickMsg:
		return m, m.fetch()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model.
func (m *dashboard) View() string {
	if m.quitting {
		return ""
	}
	if m.polls == 0 {
		return m.spinner.View() + " Reading status...\n"
	}

	label := func(s string) string { return m.styles.Dim.Render(fmt.Sprintf("%-13s", s)) }
	lines := []string{
		m.styles.Header.Render(m.title),
		"",
		label("server") + m.server(),
		label("queue depth") + fmt.Sprintf("%d", m.last.QueueDepth),
		label("") + m.styles.Success.Render(m.depth.Render()),
		label("dead letters") + m.deadLetters(),
		label("records") + fmt.Sprintf("%d", m.last.Records),
		label("documents") + m.documents(),
		"",
	}
	if m.err != nil {
		lines = append(lines, m.styles.Error.Render("status failed: "+m.err.Error()))
	}
	lines = append(lines, m.styles.Dim.Render(
		fmt.Sprintf("%s updated %s  •  q to quit", m.spinner.View(), m.updated.Format("15:04:05"))))

	panel := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(output.ColorDarkGray)).
		Padding(0, 1)
	return panel.Render(strings.Join(lines, "\n")) + "\n"
}

func (m *dashboard) server() string {
	if m.last.ServerPID == 0 {
		return m.styles.Dim.Render("not running")
	}
	return m.styles.Success.Render(fmt.Sprintf("running (pid %d)", m.last.ServerPID))
}

func (m *dashboard) deadLetters() string {
	s := fmt.Sprintf("%d", m.last.DeadLetters)
	if m.last.DeadLetters > 0 {
		return m.styles.Warning.Render(s)
	}
	return s
}

func (m *dashboard) documents() string {
	if m.last.IndexError != "" {
		return m.styles.Dim.Render("unavailable (" + m.last.IndexError + ")")
	}
	return fmt.Sprintf("%d", m.last.Documents)
}
