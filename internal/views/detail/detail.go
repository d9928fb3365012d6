// Package detail renders the task detail overlay.
package detail

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/procurewatch/investigator/internal/aggregate"
	"github.com/procurewatch/investigator/internal/event"
	"github.com/procurewatch/investigator/internal/theme"
)

const (
	panelWidth = 72
	labelWidth = 14
)

var (
	stylePanel = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(theme.ColorBorder).
			Padding(0, 1)

	styleLabel = lipgloss.NewStyle().
			Foreground(theme.ColorDimmed).
			Width(labelWidth)

	styleValue = lipgloss.NewStyle().
			Foreground(theme.ColorBright)

	styleTitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(theme.ColorBright)

	styleFooter = lipgloss.NewStyle().
			Foreground(theme.ColorDimmed)

	styleSectionHeader = lipgloss.NewStyle().
				Bold(true).
				Foreground(theme.ColorDimmed)
)

// Model holds the state for the detail overlay.
type Model struct {
	Task   *aggregate.Task
	Recent []event.Event
}

// New creates a detail model for a task and its most recent events,
// newest first.
func New(t aggregate.Task, recent []event.Event) Model {
	return Model{Task: &t, Recent: recent}
}

// View renders the detail panel. Returns an empty string if no task is set.
func (m Model) View() string {
	if m.Task == nil {
		return ""
	}
	return stylePanel.Width(panelWidth).Render(m.renderInner(m.Task))
}

func (m Model) renderInner(t *aggregate.Task) string {
	var b strings.Builder

	b.WriteString(styleTitle.Render("Task " + t.Code + ": " + t.DisplayName()) + "\n")
	b.WriteString(strings.Repeat("─", panelWidth-4) + "\n")

	if t.ID != 0 {
		writeRow(&b, "ID", fmt.Sprintf("%d", t.ID))
	}
	writeRow(&b, "Code", t.Code)
	status := t.Status.String()
	writeRow(&b, "Status", theme.Colored(theme.StatusColor(status), theme.StatusGlyph(status)+" "+status))
	if t.Severity != "" {
		writeRow(&b, "Severity", theme.Colored(theme.SeverityColor(t.Severity), t.Severity))
	}
	writeRow(&b, "Events", fmt.Sprintf("%d", len(t.Events)))

	if r := t.Result; r != nil {
		b.WriteString("\n")
		b.WriteString(styleSectionHeader.Render("Result") + "\n")
		validation := theme.Colored(theme.ColorFailed, "failed")
		if r.ValidationPassed {
			validation = theme.Colored(theme.ColorCompleted, "passed")
		}
		writeRow(&b, "Validation", validation)
		writeRow(&b, "Findings", fmt.Sprintf("%d", r.FindingsCount))
		if r.Summary != "" {
			b.WriteString(lipgloss.NewStyle().Width(panelWidth-4).Render(r.Summary) + "\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(styleSectionHeader.Render(fmt.Sprintf("Recent events (%d)", len(m.Recent))) + "\n")
	if len(m.Recent) == 0 {
		b.WriteString(theme.StyleDimmed.Render("  none yet") + "\n")
	}
	for _, ev := range m.Recent {
		b.WriteString(renderEvent(ev) + "\n")
	}

	b.WriteString("\n")
	b.WriteString(styleFooter.Render("[esc] close"))
	return b.String()
}

func renderEvent(ev event.Event) string {
	ts := "--:--:--"
	if !ev.Timestamp.IsZero() {
		ts = ev.Timestamp.Local().Format("15:04:05")
	}
	kind := lipgloss.NewStyle().Foreground(theme.KindColor(ev.Kind.String())).Width(7).Render(ev.Kind.String())
	return fmt.Sprintf("  %s %s %s", theme.StyleDimmed.Render(ts), kind, truncate(ev.Message, panelWidth-24))
}

func writeRow(b *strings.Builder, label, value string) {
	b.WriteString(styleLabel.Render(label+":") + styleValue.Render(value) + "\n")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}
