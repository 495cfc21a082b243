package ui

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/docindex/internal/app"
)

func fixedStatus(st app.Status, err error) StatusFunc {
	return func(context.Context) (app.Status, error) { return st, err }
}

func TestDashboard_InitialViewWaits(t *testing.T) {
	m := newDashboard(fixedStatus(app.Status{}, nil), time.Second, "docindex")

	assert.Contains(t, m.View(), "Reading status")
}

func TestDashboard_FetchReadsStatus(t *testing.T) {
	// Given: a status source reporting a backlog
	want := app.Status{QueueDepth: 4, Records: 10, Documents: 6}
	m := newDashboard(fixedStatus(want, nil), time.Second, "docindex")

	// When: running the fetch command
	msg := m.fetch()()

	// Then: it carries that status
	sm, ok := msg.(statusMsg)
	require.True(t, ok)
	assert.Equal(t, want, sm.status)
	assert.NoError(t, sm.err)
}

func TestDashboard_StatusRendersCounts(t *testing.T) {
	// Given: a dashboard that received a status
	m := newDashboard(nil, time.Second, "docindex • /srv/people")
	_, cmd := m.Update(statusMsg{
		status: app.Status{QueueDepth: 12, DeadLetters: 2, Records: 40, Documents: 28, ServerPID: 4242},
		at:     time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC),
	})

	// When: rendering
	view := m.View()

	// Then: every count and the refresh time are shown, and a next poll is scheduled
	assert.NotNil(t, cmd)
	for _, want := range []string{"docindex • /srv/people", "12", "2", "40", "28", "05:06:07", "q to quit", "running (pid 4242)"} {
		assert.Contains(t, view, want)
	}
}

func TestDashboard_IndexUnavailable(t *testing.T) {
	m := newDashboard(nil, time.Second, "docindex")
	m.Update(statusMsg{status: app.Status{IndexError: "held by server"}, at: time.Now()})

	assert.Contains(t, m.View(), "unavailable (held by server)")
}

func TestDashboard_ReadErrorKeepsLastStatus(t *testing.T) {
	// Given: a good status followed by a failed read
	m := newDashboard(nil, time.Second, "docindex")
	m.Update(statusMsg{status: app.Status{Records: 9}, at: time.Now()})
	m.Update(statusMsg{err: errors.New("queue locked"), at: time.Now()})

	// When: rendering
	view := m.View()

	// Then: the error is shown beside the last good counts
	assert.Contains(t, view, "status failed: queue locked")
	assert.Contains(t, view, "9")
}

func TestDashboard_TickFetchesAgain(t *testing.T) {
	m := newDashboard(fixedStatus(app.Status{}, nil), time.Second, "docindex")

	_, cmd := m.Update(tickMsg{})

	require.NotNil(t, cmd)
	_, ok := cmd().(statusMsg)
	assert.True(t, ok)
}

func TestDashboard_QuitKeys(t *testing.T) {
	for _, key := range []tea.KeyMsg{
		{Type: tea.KeyRunes, Runes: []rune{'q'}},
		{Type: tea.KeyCtrlC},
		{Type: tea.KeyEsc},
	} {
		m := newDashboard(nil, time.Second, "docindex")

		_, cmd := m.Update(key)

		require.NotNil(t, cmd, key.String())
		assert.Equal(t, tea.Quit(), cmd(), key.String())
		assert.Empty(t, m.View())
	}
}

func TestRunDashboard_RequiresTerminal(t *testing.T) {
	err := RunDashboard(context.Background(), &bytes.Buffer{}, fixedStatus(app.Status{}, nil), time.Second, "docindex")

	assert.ErrorIs(t, err, ErrNotTerminal)
}
