package console

import "github.com/charmbracelet/lipgloss"

var (
	salmonPink = lipgloss.Color("#FFB3BA")
	mintGreen  = lipgloss.Color("#A8E6CF")
	mutedGray  = lipgloss.Color("#6B7280")
)

var (
	botStyle = lipgloss.NewStyle().
			Foreground(mintGreen).
			Bold(true)

	textStyle = lipgloss.NewStyle()

	buttonStyle = lipgloss.NewStyle().
			Foreground(salmonPink).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(salmonPink).
			Padding(0, 1)

	fileStyle = lipgloss.NewStyle().
			Foreground(mutedGray).
			Italic(true)

	promptStyle = lipgloss.NewStyle().
			Foreground(salmonPink).
			Bold(true)
)
