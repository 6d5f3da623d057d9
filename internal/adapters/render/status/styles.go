package status

import "github.com/charmbracelet/lipgloss"

type styles struct {
	title   lipgloss.Style
	header  lipgloss.Style
	window  lipgloss.Style
	rank    lipgloss.Style
	tab     lipgloss.Style
	current lipgloss.Style
	age     lipgloss.Style
	warning lipgloss.Style
	section lipgloss.Style
	empty   lipgloss.Style
}

func newStyles() styles {
	return styles{
		title:   lipgloss.NewStyle().Bold(true),
		header:  lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		window:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		rank:    lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
		tab:     lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		current: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("159")),
		age:     lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		warning: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
		section: lipgloss.NewStyle().MarginTop(1),
		empty:   lipgloss.NewStyle().Faint(true),
	}
}
