package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/surge-downloader/gridsync/internal/engine/types"
)

var (
	emptyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#44475a"))
	loadingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#ffb86c"))
	loadedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#50fa7b"))
	failedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#ff5555"))
	markerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#ff79c6")).Bold(true)
)

// TimelineModel renders the availability of every timestep of a layer as
// a strip of blocks with a marker under the current step.
type TimelineModel struct {
	Statuses []types.Status
	Current  int // index of the current step, -1 for none
	Width    int // columns available; 0 means one column per step
}

// NewTimelineModel creates a timeline strip.
func NewTimelineModel(statuses []types.Status, current, width int) TimelineModel {
	return TimelineModel{Statuses: statuses, Current: current, Width: width}
}

// Columns returns the number of cells the strip is drawn with.
func (m TimelineModel) Columns() int {
	n := len(m.Statuses)
	if m.Width > 0 && m.Width < n {
		return m.Width
	}
	return n
}

// span returns the step range [from, to) covered by column c.
func (m TimelineModel) span(c int) (from, to int) {
	n, cols := len(m.Statuses), m.Columns()
	from = c * n / cols
	to = (c + 1) * n / cols
	if to <= from {
		to = from + 1
	}
	return from, to
}

// CellStatus folds the steps of column c into one status: loading wins,
// then failed, then empty. A cell is loaded only when all its steps are.
func (m TimelineModel) CellStatus(c int) types.Status {
	from, to := m.span(c)
	var loading, failed, empty bool
	for _, st := range m.Statuses[from:to] {
		switch st {
		case types.StatusLoading:
			loading = true
		case types.StatusFailed:
			failed = true
		case types.StatusEmpty:
			empty = true
		}
	}
	switch {
	case loading:
		return types.StatusLoading
	case failed:
		return types.StatusFailed
	case empty:
		return types.StatusEmpty
	}
	return types.StatusLoaded
}

func (m TimelineModel) cellOf(index int) int {
	for c := 0; c < m.Columns(); c++ {
		if from, to := m.span(c); index >= from && index < to {
			return c
		}
	}
	return -1
}

// View renders the strip and, when Current is set, a marker line below it.
func (m TimelineModel) View() string {
	cols := m.Columns()
	if cols == 0 {
		return ""
	}

	var strip strings.Builder
	for c := 0; c < cols; c++ {
		switch m.CellStatus(c) {
		case types.StatusLoaded:
			strip.WriteString(loadedStyle.Render("█"))
		case types.StatusLoading:
			strip.WriteString(loadingStyle.Render("▒"))
		case types.StatusFailed:
			strip.WriteString(failedStyle.Render("✖"))
		default:
			strip.WriteString(emptyStyle.Render("░"))
		}
	}

	marker := m.cellOf(m.Current)
	if marker < 0 {
		return strip.String()
	}
	return strip.String() + "\n" + strings.Repeat(" ", marker) + markerStyle.Render("▲")
}
