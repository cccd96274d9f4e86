package main

import "github.com/charmbracelet/lipgloss"

var (
	keywordStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575")).Bold(true)
	faintStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#909090", Dark: "#626262"})
	errStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87"))
)

func keyword(s string) string {
	return keywordStyle.Render(s)
}

func paragraph(s string) string {
	return lipgloss.NewStyle().Width(78).Padding(0, 0, 0, 2).Render(s)
}

func faint(s string) string {
	return faintStyle.Render(s)
}
