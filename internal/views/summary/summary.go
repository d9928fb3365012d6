// Package summary renders the workflow summary markdown overlay.
package summary

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/procurewatch/investigator/internal/theme"
)

// Model caches the rendered markdown per width.
type Model struct {
	Markdown string
	Offset   int

	rendered string
	source   string
	width    int
}

// New creates an empty summary model.
func New() Model {
	return Model{}
}

// SetMarkdown replaces the summary text.
func (m *Model) SetMarkdown(md string) {
	m.Markdown = md
}

// ScrollUp moves the viewport up.
func (m *Model) ScrollUp(n int) {
	m.Offset -= n
	if m.Offset < 0 {
		m.Offset = 0
	}
}

// ScrollDown moves the viewport down.
func (m *Model) ScrollDown(n int) {
	m.Offset += n
}

// Render converts the markdown for the given width. Rendering failures
// fall back to the raw text.
func Render(md string, width int) string {
	if width < 10 {
		width = 10
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return strings.Trim(out, "\n")
}

// View renders the overlay, reusing the cached render when the text and
// width are unchanged.
func (m *Model) View(width, height int) string {
	innerW := width - 6
	if innerW < 20 {
		innerW = 20
	}
	visible := height - 6
	if visible < 3 {
		visible = 3
	}

	title := theme.StyleHeader.Render(" WORKFLOW SUMMARY ")
	help := theme.StyleDimmed.Render("j/k:scroll  esc:close")

	var body string
	if strings.TrimSpace(m.Markdown) == "" {
		body = theme.StyleDimmed.Render("  No summary yet. It arrives with the final results.")
	} else {
		if m.source != m.Markdown || m.width != innerW {
			m.rendered = Render(m.Markdown, innerW-4)
			m.source, m.width = m.Markdown, innerW
		}
		lines := strings.Split(m.rendered, "\n")
		maxOffset := len(lines) - visible
		if maxOffset < 0 {
			maxOffset = 0
		}
		if m.Offset > maxOffset {
			m.Offset = maxOffset
		}
		end := m.Offset + visible
		if end > len(lines) {
			end = len(lines)
		}
		body = strings.Join(lines[m.Offset:end], "\n")
	}

	content := lipgloss.JoinVertical(lipgloss.Left, title, body, help)
	return lipgloss.NewStyle().
		Width(innerW).
		Padding(1, 2).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}
