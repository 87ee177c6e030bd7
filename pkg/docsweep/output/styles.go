package output

import "github.com/charmbracelet/lipgloss"

// Color constants using the ANSI 256-color palette.
const (
	// ColorPrimary is used for headers (bright blue).
	ColorPrimary = lipgloss.Color("39")

	// ColorSuccess is used for successful conversions (green).
	ColorSuccess = lipgloss.Color("42")

	// ColorWarning is used for skips and warnings (orange).
	ColorWarning = lipgloss.Color("214")

	// ColorDanger is used for failures (red).
	ColorDanger = lipgloss.Color("196")

	// ColorMuted is used for secondary text (gray).
	ColorMuted = lipgloss.Color("245")
)

// Box styles.
var (
	// HeaderBox contains the run information.
	HeaderBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorPrimary).
			Padding(0, 1).
			MarginBottom(1)

	// FooterBox contains the summary.
	FooterBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorMuted).
			Padding(0, 1).
			MarginTop(1)
)

// Text styles.
var (
	LabelStyle   = lipgloss.NewStyle().Foreground(ColorMuted)
	ValueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	SuccessStyle = lipgloss.NewStyle().Foreground(ColorSuccess)
	WarningStyle = lipgloss.NewStyle().Foreground(ColorWarning)
	ErrorStyle   = lipgloss.NewStyle().Foreground(ColorDanger)
	MutedStyle   = lipgloss.NewStyle().Foreground(ColorMuted)
	PathStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))

	// TitleStyle is used for section titles.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary)

	// CountStyle is used for page and image counts.
	CountStyle = lipgloss.NewStyle().
			Foreground(ColorPrimary).
			Bold(true)

	// TableHeaderStyle is used for column headers.
	TableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(ColorMuted)
)
