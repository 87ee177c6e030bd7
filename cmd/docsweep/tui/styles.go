// Package tui shows live batch progress in the terminal with Bubble Tea,
// Lip Gloss and Bubbles.
package tui

import "github.com/charmbracelet/lipgloss"

// Color palette for the TUI.
var (
	primaryColor = lipgloss.Color("#7D56F4")
	accentColor  = lipgloss.Color("#00D9FF")

	successColor = lipgloss.Color("#28A745")
	warningColor = lipgloss.Color("#FFC107")
	dangerColor  = lipgloss.Color("#DC3545")

	mutedColor  = lipgloss.Color("#666666")
	borderColor = lipgloss.Color("#333333")
)

var (
	// outerBoxStyle is the main container style.
	outerBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(0, 1)

	dividerStyle = lipgloss.NewStyle().
			Foreground(borderColor)
)

// Text styles.
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	mutedTextStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	errorTextStyle = lipgloss.NewStyle().
			Foreground(dangerColor)

	successTextStyle = lipgloss.NewStyle().
				Foreground(successColor)

	warningTextStyle = lipgloss.NewStyle().
				Foreground(warningColor)

	countStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(accentColor)
)

// Log line styles.
var (
	logDebugStyle = lipgloss.NewStyle().Foreground(mutedColor)
	logInfoStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#CCCCCC"))
	logWarnStyle  = lipgloss.NewStyle().Foreground(warningColor)
	logErrorStyle = lipgloss.NewStyle().Foreground(dangerColor)
)

// Key hint styles.
var (
	keyStyle = lipgloss.NewStyle().
			Foreground(primaryColor).
			Bold(true)

	keyDescStyle = lipgloss.NewStyle().
			Foreground(mutedColor)
)

// renderDivider creates a horizontal divider line.
func renderDivider(width int) string {
	if width <= 0 {
		return ""
	}
	return dividerStyle.Render(repeatChar('─', width))
}

func repeatChar(char rune, n int) string {
	if n <= 0 {
		return ""
	}
	result := make([]rune, n)
	for i := range result {
		result[i] = char
	}
	return string(result)
}

// truncatePath truncates a path to fit within maxLen, preserving the end.
func truncatePath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}
	if maxLen <= 3 {
		return path[:maxLen]
	}
	return "..." + path[len(path)-(maxLen-3):]
}
