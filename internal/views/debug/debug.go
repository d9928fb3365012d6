// Package debug renders the diagnostics overlay: channel decode drops,
// transport failures and client notices, newest at the bottom.
package debug

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/procurewatch/investigator/internal/channel"
	"github.com/procurewatch/investigator/internal/theme"
)

const maxEntries = 200

// Entry kinds.
const (
	KindInfo  = "info"
	KindWarn  = "warn"
	KindError = "err"
)

// Entry is one diagnostic line. Detail holds the underlying error text,
// if any.
type Entry struct {
	Time    time.Time
	Kind    string
	Message string
	Detail  string
}

// Model holds the diagnostics log.
type Model struct {
	Entries []Entry
	Offset  int // lines scrolled up from the bottom
}

func New() Model {
	return Model{}
}

// Note records a client-side notice stamped now.
func (m *Model) Note(message string) {
	m.push(Entry{Time: time.Now(), Kind: KindInfo, Message: message})
}

// AddDiagnostic records a channel diagnostic, keeping its time, severity
// and error.
func (m *Model) AddDiagnostic(d channel.Diagnostic) {
	e := Entry{Time: d.Time, Kind: KindWarn, Message: d.Message}
	if d.Severity == channel.SeverityError {
		e.Kind = KindError
	}
	if d.Err != nil && d.Err.Error() != d.Message {
		e.Detail = d.Err.Error()
	}
	m.push(e)
}

func (m *Model) push(e Entry) {
	m.Entries = append(m.Entries, e)
	if over := len(m.Entries) - maxEntries; over > 0 {
		m.Entries = m.Entries[over:]
	}
	m.Offset = 0
}

// Counts tallies entries by kind.
func (m Model) Counts() (warn, errs int) {
	for _, e := range m.Entries {
		switch e.Kind {
		case KindWarn:
			warn++
		case KindError:
			errs++
		}
	}
	return warn, errs
}

// ScrollUp moves the viewport towards older entries.
func (m *Model) ScrollUp(n int) {
	m.Offset = clamp(m.Offset+n, 0, len(m.Entries)-1)
}

// ScrollDown moves the viewport towards newer entries.
func (m *Model) ScrollDown(n int) {
	m.Offset = clamp(m.Offset-n, 0, len(m.Entries)-1)
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// View renders the overlay within width x height.
func (m Model) View(width, height int) string {
	innerW := max(width-4, 20)
	rows := max(height-6, 3)

	warn, errs := m.Counts()
	title := theme.StyleHeader.Render(" DIAGNOSTICS ") + "  " +
		theme.Colored(theme.ColorWarning, fmt.Sprintf("%d warn", warn)) + "  " +
		theme.Colored(theme.ColorDanger, fmt.Sprintf("%d error", errs))
	help := theme.StyleDimmed.Render(fmt.Sprintf("j/k:scroll  esc:close  %d entries", len(m.Entries)))

	var body string
	if len(m.Entries) == 0 {
		body = "\n" + theme.StyleDimmed.Render("  No diagnostics recorded yet.") + "\n"
	} else {
		body = strings.Join(m.visible(innerW, rows), "\n")
		if m.Offset > 0 {
			body += "\n" + theme.StyleDimmed.Render(fmt.Sprintf(" ↓ %d newer", m.Offset))
		}
	}

	return lipgloss.NewStyle().
		Width(innerW).
		Padding(1, 2).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(lipgloss.JoinVertical(lipgloss.Left, title, body, help))
}

// visible renders entries ending Offset from the bottom, filling at most
// rows lines. An entry's detail takes a line of its own.
func (m Model) visible(width, rows int) []string {
	msgW := width - 22
	var lines []string
	for i := len(m.Entries) - 1 - m.Offset; i >= 0 && len(lines) < rows; i-- {
		e := m.Entries[i]
		entry := []string{fmt.Sprintf("%s %s %s",
			theme.StyleDimmed.Render(e.Time.Format("15:04:05.000")),
			lipgloss.NewStyle().Foreground(kindColor(e.Kind)).Width(4).Render(e.Kind),
			clip(e.Message, msgW))}
		if e.Detail != "" {
			entry = append(entry, theme.StyleDimmed.Render("             ↳ "+clip(e.Detail, msgW-2)))
		}
		if len(lines)+len(entry) > rows && len(lines) > 0 {
			break
		}
		lines = append(entry, lines...)
	}
	return lines
}

func clip(s string, n int) string {
	if n > 3 && len(s) > n {
		return s[:n-3] + "..."
	}
	return s
}

func kindColor(kind string) lipgloss.Color {
	switch kind {
	case KindError:
		return theme.ColorDanger
	case KindWarn:
		return theme.ColorWarning
	case KindInfo:
		return theme.ColorInProgress
	default:
		return theme.ColorDimmed
	}
}
