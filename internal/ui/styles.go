package ui

import (
	"github.com/charmbracelet/lipgloss"
)

var (
	primaryColor   = lipgloss.Color("#7C3AED")
	secondaryColor = lipgloss.Color("#06B6D4")
	successColor   = lipgloss.Color("#10B981")
	warningColor   = lipgloss.Color("#F59E0B")
	errorColor     = lipgloss.Color("#EF4444")
	mutedColor     = lipgloss.Color("#6B7280")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(primaryColor).
			Padding(0, 2)

	subtitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(secondaryColor)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(1, 2)

	successBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(successColor).
			Padding(1, 2)

	warningBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(warningColor).
			Padding(1, 2)

	errorBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(errorColor).
			Padding(1, 2)

	dimStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	packageStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7aa2f7"))

	deviceStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#bb9af7"))

	cpuStyle = lipgloss.NewStyle().
			Foreground(secondaryColor)

	matchedStyle = lipgloss.NewStyle().
			Foreground(successColor)

	missingStyle = lipgloss.NewStyle().
			Foreground(errorColor)

	unresolvedStyle = lipgloss.NewStyle().
			Foreground(warningColor)

	highlightStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(warningColor)

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedColor)
)
