package tui

import (
	"context"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/surge-downloader/gridsync/internal/engine/events"
)

// Run shows the dashboard until the user quits or ctx is cancelled.
func Run(ctx context.Context, s Scheduler, stream <-chan events.Event, current time.Time) error {
	// Honour NO_COLOR and CLICOLOR_FORCE.
	output := termenv.NewOutput(os.Stdout)
	lipgloss.SetColorProfile(output.EnvColorProfile())

	p := tea.NewProgram(
		NewRootModel(s, stream, current),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
