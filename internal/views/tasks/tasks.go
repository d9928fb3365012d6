// Package tasks renders the task list in display order.
package tasks

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/procurewatch/investigator/internal/aggregate"
	"github.com/procurewatch/investigator/internal/theme"
)

const nameWidth = 40

// View renders one row per task, marking the selected row. Rows beyond
// height are scrolled so the selection stays visible.
func View(tasks []aggregate.Task, selected, width, height int) string {
	if len(tasks) == 0 {
		return theme.StyleDimmed.Render("  Waiting for the first task...")
	}
	if height < 1 {
		height = len(tasks)
	}

	start := 0
	if selected >= height {
		start = selected - height + 1
	}
	end := start + height
	if end > len(tasks) {
		end = len(tasks)
	}

	lines := make([]string, 0, end-start)
	for i := start; i < end; i++ {
		lines = append(lines, row(tasks[i], i == selected, width))
	}
	return strings.Join(lines, "\n")
}

func row(t aggregate.Task, selected bool, width int) string {
	status := t.Status.String()
	cursor := "  "
	if selected {
		cursor = "▸ "
	}

	name := t.DisplayName()
	if len(name) > nameWidth {
		name = name[:nameWidth-1] + "…"
	}
	nameStyle := lipgloss.NewStyle().Width(nameWidth + 1)
	if selected {
		nameStyle = nameStyle.Inherit(theme.StyleSelected)
	}

	findings := ""
	if t.Result != nil {
		findings = fmt.Sprintf("%d findings", t.Result.FindingsCount)
	}

	line := fmt.Sprintf("%s%s %-8s %s %s %s %s",
		cursor,
		theme.Colored(theme.StatusColor(status), theme.StatusGlyph(status)),
		t.Code,
		nameStyle.Render(name),
		lipgloss.NewStyle().Width(12).Foreground(theme.StatusColor(status)).Render(status),
		lipgloss.NewStyle().Width(9).Foreground(theme.SeverityColor(t.Severity)).Render(t.Severity),
		theme.StyleDimmed.Render(findings),
	)
	if width > 0 {
		line = lipgloss.NewStyle().MaxWidth(width).Render(line)
	}
	return line
}
