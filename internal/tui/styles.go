package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/krabwidget/krab/internal/backend"
)

// Border styles
var (
	StyleFocusedBorder = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("208"))

	StyleUnfocusedBorder = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("240"))
)

// Status styles
var (
	StyleStatusConnecting = lipgloss.NewStyle().
				Foreground(lipgloss.Color("yellow")).
				Bold(true)

	StyleStatusConnected = lipgloss.NewStyle().
				Foreground(lipgloss.Color("green")).
				Bold(true)

	StyleStatusError = lipgloss.NewStyle().
				Foreground(lipgloss.Color("red")).
				Bold(true)

	StyleStatusDisconnected = lipgloss.NewStyle().
				Foreground(lipgloss.Color("240"))
)

// Chat styles
var (
	StyleUserName = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	StyleKrabName = lipgloss.NewStyle().
			Foreground(lipgloss.Color("208")).
			Bold(true)

	StyleTimestamp = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	StyleNotice = lipgloss.NewStyle().
			Foreground(lipgloss.Color("red"))
)

// UI element styles
var (
	StyleTitle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1)

	StyleHelp = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	StyleCursor = lipgloss.NewStyle().
			Background(lipgloss.Color("208")).
			Foreground(lipgloss.Color("0"))
)

// StatusStyle returns the style used for a connection status.
func StatusStyle(s backend.Status) lipgloss.Style {
	switch s {
	case backend.StatusConnecting:
		return StyleStatusConnecting
	case backend.StatusConnected:
		return StyleStatusConnected
	case backend.StatusError:
		return StyleStatusError
	default:
		return StyleStatusDisconnected
	}
}
