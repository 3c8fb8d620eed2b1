package report

import (
	"github.com/charmbracelet/lipgloss"
)

// Status styles
var (
	StyleStatusRunning = lipgloss.NewStyle().
				Foreground(lipgloss.Color("yellow")).
				Bold(true)

	StyleStatusComplete = lipgloss.NewStyle().
				Foreground(lipgloss.Color("green")).
				Bold(true)

	StyleStatusFailed = lipgloss.NewStyle().
				Foreground(lipgloss.Color("red")).
				Bold(true)

	StyleStatusPending = lipgloss.NewStyle().
				Foreground(lipgloss.Color("240"))
)

// Heading styles
var (
	StyleTitle = lipgloss.NewStyle().
			Bold(true)

	StyleMuted = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

// StatusStyle picks the style for a task or workflow status name.
func StatusStyle(status string) lipgloss.Style {
	switch status {
	case "running":
		return StyleStatusRunning
	case "completed":
		return StyleStatusComplete
	case "failed", "cancelled":
		return StyleStatusFailed
	default:
		return StyleStatusPending
	}
}
