package tui

import "github.com/charmbracelet/lipgloss"

// Theme defines the visual style of the review screen.
type Theme struct {
	Title       lipgloss.Style
	Subtle      lipgloss.Style
	Added       lipgloss.Style
	StatusOK    lipgloss.Style
	StatusWarn  lipgloss.Style
	StatusError lipgloss.Style
	Box         lipgloss.Style
	Primary     lipgloss.Color
	Border      lipgloss.Color
}

// DefaultTheme is the default theme.
var DefaultTheme = Theme{
	Primary: lipgloss.Color("#21A366"),
	Border:  lipgloss.Color("#404040"),

	Title: lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#21A366")),
	Subtle: lipgloss.NewStyle().
		Foreground(lipgloss.Color("#737373")),
	Added: lipgloss.NewStyle().
		Foreground(lipgloss.Color("#737373")).
		Strikethrough(true),
	StatusOK: lipgloss.NewStyle().
		Foreground(lipgloss.Color("#10b981")),
	StatusWarn: lipgloss.NewStyle().
		Foreground(lipgloss.Color("#f59e0b")),
	StatusError: lipgloss.NewStyle().
		Foreground(lipgloss.Color("#ef4444")),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#404040")),
}
