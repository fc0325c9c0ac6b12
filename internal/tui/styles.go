// Package tui renders control API data for the terminal.
package tui

import "github.com/charmbracelet/lipgloss"

// Alertwall color palette
var (
	ColorAccent = lipgloss.Color("#A8D8EA")
	ColorDeep   = lipgloss.Color("#596E79")
	ColorText   = lipgloss.Color("#E0E0E0")
	ColorAlert  = lipgloss.Color("#FF6B6B") // drops and rejects
	ColorGood   = lipgloss.Color("#4ECDC4") // accepts
	ColorWarn   = lipgloss.Color("#FFE66D")
	ColorMuted  = lipgloss.Color("#6c757d")
)

var (
	StyleTitle = lipgloss.NewStyle().
			Foreground(ColorAccent).
			Bold(true)

	StyleMuted = lipgloss.NewStyle().
			Foreground(ColorMuted).
			Italic(true)

	StyleStatusGood = lipgloss.NewStyle().Foreground(ColorGood).Bold(true)
	StyleStatusBad  = lipgloss.NewStyle().Foreground(ColorAlert).Bold(true)
	StyleStatusWarn = lipgloss.NewStyle().Foreground(ColorWarn).Bold(true)

	StyleTableHeader = lipgloss.NewStyle().
				Foreground(ColorAccent).
				Bold(true).
				Padding(0, 1)

	StyleTableRow = lipgloss.NewStyle().
			Foreground(ColorText).
			Padding(0, 1)

	StyleLabel = lipgloss.NewStyle().
			Foreground(ColorDeep).
			Width(10)
)

// TargetStyle colors a rule target by its verdict.
func TargetStyle(target string) lipgloss.Style {
	switch target {
	case "ACCEPT":
		return StyleStatusGood
	case "DROP", "REJECT":
		return StyleStatusBad
	default:
		return StyleStatusWarn
	}
}
