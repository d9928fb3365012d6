// Package theme provides the Lip Gloss color palette and reusable styles
// for the investigation TUI. It has no internal imports.
package theme

import "github.com/charmbracelet/lipgloss"

// Task status colors.
var (
	ColorPending    = lipgloss.Color("#6b7280")
	ColorInProgress = lipgloss.Color("#2563eb")
	ColorCompleted  = lipgloss.Color("#16a34a")
	ColorFailed     = lipgloss.Color("#dc2626")
)

// Severity colors.
var (
	ColorCritical = lipgloss.Color("#dc2626")
	ColorHigh     = lipgloss.Color("#d97706")
	ColorMedium   = lipgloss.Color("#f59e0b")
	ColorLow      = lipgloss.Color("#22c55e")
	ColorDefault  = lipgloss.Color("#9ca3af")
)

// Event kind colors.
var (
	ColorLog    = lipgloss.Color("#9ca3af")
	ColorResult = lipgloss.Color("#7c3aed")
	ColorError  = lipgloss.Color("#dc2626")
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorBg      = lipgloss.Color("#111827")
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorWarning = lipgloss.Color("#d97706")
	ColorDanger  = lipgloss.Color("#dc2626")
)

// StatusColor returns the color for a task or session status name.
func StatusColor(status string) lipgloss.Color {
	switch status {
	case "pending":
		return ColorPending
	case "in_progress", "running":
		return ColorInProgress
	case "completed":
		return ColorCompleted
	case "failed":
		return ColorFailed
	default:
		return ColorDefault
	}
}

// StatusGlyph returns a Unicode glyph for a task status name.
func StatusGlyph(status string) string {
	switch status {
	case "pending":
		return "○"
	case "in_progress":
		return "●"
	case "completed":
		return "✓"
	case "failed":
		return "✗"
	default:
		return "·"
	}
}

// SeverityColor accepts English and Spanish severity labels.
func SeverityColor(severity string) lipgloss.Color {
	switch severity {
	case "critical", "Critical", "Crítico":
		return ColorCritical
	case "high", "High", "Alto":
		return ColorHigh
	case "medium", "Medium", "Medio":
		return ColorMedium
	case "low", "Low", "Bajo":
		return ColorLow
	default:
		return ColorDefault
	}
}

// KindColor returns the color for an event kind name.
func KindColor(kind string) lipgloss.Color {
	switch kind {
	case "result":
		return ColorResult
	case "error":
		return ColorError
	default:
		return ColorLog
	}
}

// Reusable styles.
var (
	StyleBorder = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder)

	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
			Foreground(ColorDimmed)

	StyleSelected = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)
)

// Colored renders s in color c.
func Colored(c lipgloss.Color, s string) string {
	return lipgloss.NewStyle().Foreground(c).Render(s)
}
