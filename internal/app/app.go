// Package app is the root Bubble Tea model of the investigation monitor.
package app

import (
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/procurewatch/investigator/internal/aggregate"
	"github.com/procurewatch/investigator/internal/channel"
	"github.com/procurewatch/investigator/internal/config"
	"github.com/procurewatch/investigator/internal/event"
	"github.com/procurewatch/investigator/internal/theme"
	"github.com/procurewatch/investigator/internal/views/debug"
	"github.com/procurewatch/investigator/internal/views/detail"
	"github.com/procurewatch/investigator/internal/views/status"
	"github.com/procurewatch/investigator/internal/views/summary"
	"github.com/procurewatch/investigator/internal/views/tasks"
)

// Source is the live session the monitor renders. *session.Session
// satisfies it.
type Source interface {
	ID() string
	Snapshot() aggregate.Snapshot
	RecentEvents(code string, n int) []event.Event
	EventLog() []event.Event
	Diagnostics() []channel.Diagnostic
	Connected() bool
	Updates() <-chan struct{}
}

// Overlay identifies which modal is active.
type Overlay int

const (
	OverlayNone Overlay = iota
	OverlayDetail
	OverlaySummary
	OverlayDebug
)

type updateMsg struct{}

type frameMsg struct{}

// Model is the root Bubble Tea model.
type Model struct {
	src    Source
	recent int

	keys   KeyMap
	width  int
	height int

	snap      aggregate.Snapshot
	connected bool

	selectedIdx  int
	selectedCode string
	overlay      Overlay

	statusBar status.Model
	debug     debug.Model
	summary   *summary.Model
	lastDiag  *channel.Diagnostic
	animating bool
}

// New creates the root model. recent is the number of events shown in the
// task detail; non-positive values use the configured default.
func New(src Source, recent int) Model {
	if recent <= 0 {
		recent = config.DefaultRecentEvents
	}
	return Model{
		src:       src,
		recent:    recent,
		keys:      DefaultKeyMap(),
		connected: true,
		statusBar: status.New(),
		debug:     debug.New(),
		summary:   func() *summary.Model { s := summary.New(); return &s }(),
	}
}

// Init renders the current state and starts listening for updates.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		func() tea.Msg { return updateMsg{} },
		m.waitForUpdate(),
	)
}

func (m Model) waitForUpdate() tea.Cmd {
	ch := m.src.Updates()
	return func() tea.Msg {
		<-ch
		return updateMsg{}
	}
}

func frame() tea.Cmd {
	return tea.Tick(time.Second/status.FPS, func(time.Time) tea.Msg { return frameMsg{} })
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case updateMsg:
		m.refresh()
		cmds := []tea.Cmd{m.waitForUpdate()}
		if !m.animating {
			m.animating = true
			cmds = append(cmds, frame())
		}
		return m, tea.Batch(cmds...)

	case frameMsg:
		if m.statusBar.Animate() {
			return m, frame()
		}
		m.animating = false
		return m, nil
	}

	return m, nil
}

// refresh re-reads the session and carries the selection across reorders.
func (m *Model) refresh() {
	m.snap = m.src.Snapshot()
	m.statusBar.SetSnapshot(m.snap)
	m.summary.SetMarkdown(m.snap.WorkflowSummary)

	connected := m.src.Connected()
	m.statusBar.Connected = connected
	if m.connected && !connected {
		m.debug.Note("channel closed")
	}
	m.connected = connected

	all := m.src.Diagnostics()
	for _, d := range newDiagnostics(all, m.lastDiag) {
		m.debug.AddDiagnostic(d)
	}
	if len(all) > 0 {
		last := all[len(all)-1]
		m.lastDiag = &last
	}

	m.selectedIdx = 0
	for i, t := range m.snap.Tasks {
		if t.Code == m.selectedCode {
			m.selectedIdx = i
			break
		}
	}
	if len(m.snap.Tasks) > 0 {
		m.selectedCode = m.snap.Tasks[m.selectedIdx].Code
	}
}

// newDiagnostics returns the entries of all that follow last. The session
// keeps a bounded window, so last may have been evicted.
func newDiagnostics(all []channel.Diagnostic, last *channel.Diagnostic) []channel.Diagnostic {
	if last == nil {
		return all
	}
	for i := len(all) - 1; i >= 0; i-- {
		d := all[i]
		if d.Time.Equal(last.Time) && d.Message == last.Message && d.Severity == last.Severity {
			return all[i+1:]
		}
	}
	return all
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		return m, tea.Quit
	}

	if m.overlay != OverlayNone {
		switch {
		case key.Matches(msg, m.keys.Escape):
			m.overlay = OverlayNone
		case key.Matches(msg, m.keys.Up):
			m.scroll(-1)
		case key.Matches(msg, m.keys.Down):
			m.scroll(1)
		}
		return m, nil
	}

	n := len(m.snap.Tasks)
	switch {
	case key.Matches(msg, m.keys.Down):
		if n > 0 {
			m.selectedIdx = (m.selectedIdx + 1) % n
			m.selectedCode = m.snap.Tasks[m.selectedIdx].Code
		}

	case key.Matches(msg, m.keys.Up):
		if n > 0 {
			m.selectedIdx = (m.selectedIdx - 1 + n) % n
			m.selectedCode = m.snap.Tasks[m.selectedIdx].Code
		}

	case key.Matches(msg, m.keys.Enter):
		if n > 0 {
			m.overlay = OverlayDetail
		}

	case key.Matches(msg, m.keys.Summary):
		m.overlay = OverlaySummary

	case key.Matches(msg, m.keys.Debug):
		m.overlay = OverlayDebug
	}

	return m, nil
}

func (m *Model) scroll(delta int) {
	switch m.overlay {
	case OverlayDebug:
		if delta < 0 {
			m.debug.ScrollUp(-delta)
		} else {
			m.debug.ScrollDown(delta)
		}
	case OverlaySummary:
		if delta < 0 {
			m.summary.ScrollUp(-delta)
		} else {
			m.summary.ScrollDown(delta)
		}
	}
}

// Overlay returns the active overlay.
func (m Model) Overlay() Overlay {
	return m.overlay
}

// Selected returns the code of the selected task, or "" when there are no
// tasks yet.
func (m Model) Selected() string {
	return m.selectedCode
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	header := []string{m.statusBar.View()}
	if b := m.banner(); b != "" {
		header = append(header, b)
	}
	help := theme.StyleDimmed.Render("  j/k:navigate  enter:detail  s:summary  d:diagnostics  q:quit")

	used := lipgloss.Height(lipgloss.JoinVertical(lipgloss.Left, header...)) + 2
	bodyHeight := m.height - used
	if bodyHeight < 3 {
		bodyHeight = 3
	}

	var body string
	switch m.overlay {
	case OverlayDetail:
		body = m.detailView()
	case OverlaySummary:
		body = m.summary.View(m.width, bodyHeight)
	case OverlayDebug:
		body = m.debug.View(m.width, bodyHeight)
	default:
		title := theme.StyleHeader.Render("TASKS")
		body = lipgloss.JoinVertical(lipgloss.Left, title,
			tasks.View(m.snap.Tasks, m.selectedIdx, m.width, bodyHeight-1))
	}
	if m.overlay != OverlayNone {
		body = lipgloss.Place(m.width, bodyHeight, lipgloss.Center, lipgloss.Top, body)
	}

	sections := append(header, body, help)
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) detailView() string {
	if m.selectedIdx >= len(m.snap.Tasks) {
		return ""
	}
	t := m.snap.Tasks[m.selectedIdx]
	return detail.New(t, m.src.RecentEvents(t.Code, m.recent)).View()
}

func (m Model) banner() string {
	switch {
	case m.snap.Status == aggregate.SessionCompleted:
		return lipgloss.NewStyle().Bold(true).Foreground(theme.ColorCompleted).
			Render("  INVESTIGATION COMPLETE  press s for the workflow summary")
	case m.snap.Status == aggregate.SessionFailed:
		return lipgloss.NewStyle().Bold(true).Foreground(theme.ColorFailed).
			Render("  INVESTIGATION FAILED  " + lastErrorMessage(m.src.EventLog()))
	case !m.connected:
		return lipgloss.NewStyle().Bold(true).Foreground(theme.ColorDanger).
			Render("  DISCONNECTED: channel closed before the investigation finished")
	}
	return ""
}

func lastErrorMessage(log []event.Event) string {
	for i := len(log) - 1; i >= 0; i-- {
		if log[i].Kind == event.KindError && !log[i].Scoped() {
			return log[i].Message
		}
	}
	return ""
}
