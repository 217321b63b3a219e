package tui

import "github.com/charmbracelet/lipgloss"

var (
	accent = lipgloss.AdaptiveColor{Light: "#5A56E0", Dark: "#7D79F6"}
	muted  = lipgloss.AdaptiveColor{Light: "#8A8A8A", Dark: "#6C6C6C"}
	danger = lipgloss.AdaptiveColor{Light: "#D7263D", Dark: "#FF5F6D"}

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(accent)

	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(accent).
			Padding(0, 1)

	tabStyle = lipgloss.NewStyle().Foreground(muted).Padding(0, 1)

	mutedStyle = lipgloss.NewStyle().Foreground(muted)
	errorStyle = lipgloss.NewStyle().Foreground(danger).Bold(true)
	queryStyle = lipgloss.NewStyle().Bold(true)

	inputStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(muted).
			Padding(0, 1)

	focusedInputStyle = inputStyle.BorderForeground(accent)

	loginStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(1, 4)

	sourceTypeStyles = map[string]lipgloss.Style{
		"jira":       lipgloss.NewStyle().Foreground(lipgloss.Color("#2684FF")),
		"confluence": lipgloss.NewStyle().Foreground(lipgloss.Color("#36B37E")),
		"web":        lipgloss.NewStyle().Foreground(muted),
	}
)
