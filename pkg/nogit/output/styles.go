package output

import "github.com/charmbracelet/lipgloss"

// Palette colors (ANSI 256).
const (
	ColorPrimary = lipgloss.Color("39")
	ColorSuccess = lipgloss.Color("42")
	ColorWarning = lipgloss.Color("214")
	ColorMuted   = lipgloss.Color("245")
	ColorText    = lipgloss.Color("255")
)

func fg(c lipgloss.Color) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(c)
}

// Styles used by the table formatter and by `nogit watch`.
var (
	LabelStyle   = fg(ColorMuted)
	MutedStyle   = fg(ColorMuted)
	ValueStyle   = fg(ColorText)
	SuccessStyle = fg(ColorSuccess)
	WarningStyle = fg(ColorWarning)

	IDStyle          = fg(ColorPrimary).Bold(true)
	TableHeaderStyle = fg(ColorMuted).Bold(true)

	// HeaderBox frames the workspace summary above the table.
	HeaderBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorPrimary).
			Padding(0, 1).
			MarginBottom(1)
)
