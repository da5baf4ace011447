package tui

import "github.com/charmbracelet/lipgloss"

var (
	// Colors
	ColorNeonPurple = lipgloss.Color("#bd93f9") // Dracula Purple
	ColorNeonPink   = lipgloss.Color("#ff79c6") // Dracula Pink
	ColorNeonCyan   = lipgloss.Color("#8be9fd") // Dracula Cyan
	ColorSuccess    = lipgloss.Color("#50fa7b") // Dracula Green
	ColorError      = lipgloss.Color("#ff5555") // Dracula Red
	ColorWarning    = lipgloss.Color("#ffb86c") // Dracula Orange
	ColorText       = lipgloss.Color("#f8f8f2") // Dracula Foreground
	ColorLightGray  = lipgloss.Color("#a0a0b0")
	ColorGray       = lipgloss.Color("#6272a4") // Dracula Comment
	ColorBorder     = lipgloss.Color("#44475a") // Dracula Selection

	// Timestep states
	ColorStateEmpty   = ColorBorder
	ColorStateLoading = ColorWarning
	ColorStateLoaded  = ColorSuccess
	ColorStateFailed  = ColorError

	// Styles
	AppStyle = lipgloss.NewStyle().
			Padding(DefaultPaddingX, 2).
			Foreground(ColorText)

	LogoStyle = lipgloss.NewStyle().
			Foreground(ColorNeonPurple).
			Bold(true)

	// List Styles
	SelectedItemStyle = lipgloss.NewStyle().
				Foreground(ColorNeonPink).
				Bold(true)

	ItemStyle = lipgloss.NewStyle().
			Foreground(ColorText)

	// Stats
	StatsLabelStyle = lipgloss.NewStyle().
			Foreground(ColorGray).
			Width(10)

	StatsValueStyle = lipgloss.NewStyle().
			Foreground(ColorText).
			Bold(true)

	CardStatsStyle = lipgloss.NewStyle().
			Foreground(ColorGray).
			Italic(true)

	NotificationStyle = lipgloss.NewStyle().
				Foreground(ColorNeonCyan).
				Bold(true)

	CursorStyle = lipgloss.NewStyle().
			Foreground(ColorNeonPink).
			Bold(true)
)
