// Package cli renders terminal output for the browser2excel commands.
package cli

import (
	"github.com/charmbracelet/lipgloss"
)

var (
	// AccentColor is the main theme color (spreadsheet green).
	AccentColor = lipgloss.Color("#21A366")
	// SuccessColor indicates successful operations.
	SuccessColor = lipgloss.Color("#4ECDC4")
	// WarningColor indicates warnings.
	WarningColor = lipgloss.Color("#FFE66D")
	// ErrorColor indicates failures.
	ErrorColor = lipgloss.Color("#FF6B6B")
	// SubtleColor is for less prominent text.
	SubtleColor = lipgloss.Color("#666666")

	// TitleStyle is used for section titles.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(AccentColor).
			MarginBottom(1)

	// SuccessStyle formats success messages.
	SuccessStyle = lipgloss.NewStyle().Foreground(SuccessColor)

	// WarningStyle formats warning messages.
	WarningStyle = lipgloss.NewStyle().Foreground(WarningColor)

	// ErrorStyle formats error messages.
	ErrorStyle = lipgloss.NewStyle().Foreground(ErrorColor)

	// SubtleStyle formats secondary text.
	SubtleStyle = lipgloss.NewStyle().Foreground(SubtleColor)

	// IncomeStyle renders positive amounts.
	IncomeStyle = lipgloss.NewStyle().Foreground(SuccessColor)

	// ExpenseStyle renders negative amounts.
	ExpenseStyle = lipgloss.NewStyle().Foreground(ErrorColor)

	// TableHeaderStyle is used for table headers.
	TableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				BorderStyle(lipgloss.NormalBorder()).
				BorderBottom(true).
				BorderForeground(lipgloss.Color("#333"))

	// BoxStyle is used for bordered content boxes.
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#333")).
			Padding(0, 1)
)

// Icons.
const (
	SuccessIcon = "✓"
	ErrorIcon   = "✗"
	WarningIcon = "⚠️"
	InfoIcon    = "ℹ️"
	SheetIcon   = "📊"
	LinkIcon    = "🔌"
)

// FormatSuccess formats a success message with icon.
func FormatSuccess(message string) string {
	return SuccessStyle.Render(SuccessIcon + " " + message)
}

// FormatError formats an error message with icon.
func FormatError(message string) string {
	return ErrorStyle.Render(ErrorIcon + " " + message)
}

// FormatWarning formats a warning message with icon.
func FormatWarning(message string) string {
	return WarningStyle.Render(WarningIcon + " " + message)
}

// FormatInfo formats an info message with icon.
func FormatInfo(message string) string {
	return SubtleStyle.Render(InfoIcon + " " + message)
}

// FormatTitle formats a title with the sheet icon.
func FormatTitle(title string) string {
	return TitleStyle.Render(SheetIcon + " " + title)
}

// RenderBox renders content in a bordered box under title.
func RenderBox(title, content string) string {
	return BoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		TitleStyle.UnsetMargins().Render(title),
		content,
	))
}
