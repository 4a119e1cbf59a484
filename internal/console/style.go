package console

import "github.com/charmbracelet/lipgloss"

// Palette.
const (
	colorPrimary = "#7C3AED"
	colorSuccess = "#10B981"
	colorInfo    = "#3B82F6"
	colorWarning = "#F59E0B"
	colorError   = "#EF4444"
	colorGray    = "#6B7280"
	colorWhite   = "#F3F4F6"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(colorWhite)).
			Background(lipgloss.Color(colorPrimary)).
			Padding(0, 1)

	cursorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color(colorPrimary)).Bold(true)
	surfaceStyle = lipgloss.NewStyle().Width(14)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color(colorGray))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color(colorError))
	youStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color(colorInfo)).Bold(true)
	botStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color(colorSuccess)).Bold(true)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(colorGray)).
			Padding(0, 1)
)

// statusStyle colors a session status badge.
func statusStyle(status string) lipgloss.Style {
	s := lipgloss.NewStyle().Bold(true)
	switch status {
	case "listening":
		return s.Foreground(lipgloss.Color(colorSuccess))
	case "speaking":
		return s.Foreground(lipgloss.Color(colorInfo))
	case "connecting":
		return s.Foreground(lipgloss.Color(colorWarning))
	default:
		return s.Foreground(lipgloss.Color(colorGray))
	}
}
