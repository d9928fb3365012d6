// Package status renders the top status bar with an animated progress
// gauge.
package status

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/harmonica"
	"github.com/charmbracelet/lipgloss"
	"github.com/procurewatch/investigator/internal/aggregate"
	"github.com/procurewatch/investigator/internal/theme"
)

const (
	gaugeWidth = 20
	// FPS is the animation frame rate of the gauge.
	FPS = 60
)

// Model holds the status bar state.
type Model struct {
	Connected bool
	SessionID string
	Status    aggregate.SessionStatus
	Counts    aggregate.Counts
	Events    int
	Width     int

	spring   harmonica.Spring
	pos, vel float64
	target   float64
}

// New creates a status bar model.
func New() Model {
	return Model{
		spring: harmonica.NewSpring(harmonica.FPS(FPS), 6.0, 1.0),
	}
}

// SetSnapshot copies the header fields out of a snapshot and retargets
// the gauge.
func (m *Model) SetSnapshot(s aggregate.Snapshot) {
	m.SessionID = s.SessionID
	m.Status = s.Status
	m.Counts = s.Counts
	m.Events = s.EventCount
	m.target = s.Progress()
}

// Animate advances the gauge one frame. It reports whether further frames
// are needed.
func (m *Model) Animate() bool {
	m.pos, m.vel = m.spring.Update(m.pos, m.vel, m.target)
	if math.Abs(m.pos-m.target) < 0.001 && math.Abs(m.vel) < 0.001 {
		m.pos, m.vel = m.target, 0
		return false
	}
	return true
}

// Progress is the displayed gauge fraction.
func (m Model) Progress() float64 {
	return m.pos
}

// View renders the status bar.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	var connStr string
	if m.Connected {
		connStr = theme.Colored(theme.ColorHealthy, "● Connected")
	} else {
		connStr = theme.Colored(theme.ColorDanger, "○ Disconnected")
	}

	id := m.SessionID
	if len(id) > 12 {
		id = id[:12]
	}
	statusStr := theme.Colored(theme.StatusColor(m.Status.String()), m.Status.String())

	counts := fmt.Sprintf("%d pending  %d running  %d done  %d failed",
		m.Counts.Pending, m.Counts.InProgress, m.Counts.Completed, m.Counts.Failed)

	sep := theme.Colored(theme.ColorBorder, " | ")
	content := strings.Join([]string{
		connStr,
		"session " + id + " " + statusStr,
		counts,
		gauge(m.pos, m.Counts),
	}, sep)

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}

func gauge(frac float64, c aggregate.Counts) string {
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	filled := int(math.Round(frac * gaugeWidth))
	color := theme.ColorInProgress
	if c.Total() > 0 && c.Done() == c.Total() {
		color = theme.ColorCompleted
	}
	bar := theme.Colored(color, strings.Repeat("█", filled)) +
		theme.StyleDimmed.Render(strings.Repeat("░", gaugeWidth-filled))
	return fmt.Sprintf("%s %d/%d", bar, c.Done(), c.Total())
}
