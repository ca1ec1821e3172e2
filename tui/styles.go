package tui

import (
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/lipgloss"
)

var (
	helpKeyStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	helpDescStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	helpSepStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

func helpStyles() help.Styles {
	s := help.New().Styles
	s.ShortKey = helpKeyStyle
	s.ShortDesc = helpDescStyle
	s.ShortSeparator = helpSepStyle
	s.FullKey = helpKeyStyle
	s.FullDesc = helpDescStyle
	s.FullSeparator = helpSepStyle
	return s
}
