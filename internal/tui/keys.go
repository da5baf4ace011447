package tui

import "github.com/charmbracelet/bubbles/key"

// DashboardKeyMap is the key map of the dashboard.
type DashboardKeyMap struct {
	Up          key.Binding
	Down        key.Binding
	Earlier     key.Binding
	Later       key.Binding
	DownloadAll key.Binding
	Retry       key.Binding
	Quit        key.Binding
}

var DashboardKeys = DashboardKeyMap{
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "prev layer"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "next layer"),
	),
	Earlier: key.NewBinding(
		key.WithKeys("left", "h"),
		key.WithHelp("←/h", "earlier"),
	),
	Later: key.NewBinding(
		key.WithKeys("right", "l"),
		key.WithHelp("→/l", "later"),
	),
	DownloadAll: key.NewBinding(
		key.WithKeys("a"),
		key.WithHelp("a", "download all"),
	),
	Retry: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "retry failed"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

func (k DashboardKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Earlier, k.Later, k.DownloadAll, k.Retry, k.Quit}
}

func (k DashboardKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down},
		{k.Earlier, k.Later},
		{k.DownloadAll, k.Retry, k.Quit},
	}
}
