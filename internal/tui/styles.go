package tui

import "github.com/charmbracelet/lipgloss"

var (
	// Colors
	primaryColor = lipgloss.Color("39")  // Blue
	accentColor  = lipgloss.Color("205") // Pink
	mutedColor   = lipgloss.Color("241") // Gray
	successColor = lipgloss.Color("76")  // Green
	warningColor = lipgloss.Color("214") // Orange
	errorColor   = lipgloss.Color("196") // Red

	// Base styles
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(primaryColor)
	subtitleStyle = lipgloss.NewStyle().Foreground(mutedColor)
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("117")) // Bright cyan
	selectedStyle = lipgloss.NewStyle().Bold(true).Background(primaryColor).Foreground(lipgloss.Color("0"))

	// Box styles
	boxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)

	// Layout
	borderColor    = lipgloss.Color("63") // Soft purple
	appBorderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(borderColor).
			Padding(1, 2)

	// Header/Footer
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(primaryColor).Padding(0, 1)
	footerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("226")).Bold(true) // Bright yellow

	// Grid specific
	cellCursorStyle = lipgloss.NewStyle().Bold(true).Background(accentColor).Foreground(lipgloss.Color("0"))
	rowCursorStyle  = lipgloss.NewStyle().Bold(true).Foreground(primaryColor)
	draftRowStyle   = lipgloss.NewStyle().Foreground(mutedColor).Italic(true)
	pendingRowStyle = lipgloss.NewStyle().Foreground(mutedColor)
	warningRowStyle = lipgloss.NewStyle().Foreground(warningColor)
	errorRowStyle   = lipgloss.NewStyle().Foreground(errorColor)
	readOnlyStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(warningColor).Padding(0, 1)
	stageStyle      = lipgloss.NewStyle().Bold(true).Foreground(accentColor)
	totalsStyle     = lipgloss.NewStyle().Bold(true)
)

func noticeStyle(level string) lipgloss.Style {
	switch level {
	case "success":
		return lipgloss.NewStyle().Foreground(successColor)
	case "warning":
		return lipgloss.NewStyle().Foreground(warningColor)
	case "error":
		return lipgloss.NewStyle().Foreground(errorColor)
	default:
		return lipgloss.NewStyle().Foreground(primaryColor)
	}
}
