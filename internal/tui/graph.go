package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Block characters, one eighth of a cell each
var graphBlocks = []string{" ", "▁", "▂", "▃", "▄", "▅", "▆", "▇", "█"}

// graphScale returns the top of the y axis for history: the peak plus 10%
// headroom, rounded up to a multiple of 5 (or of 1 below 5).
func graphScale(history []float64) float64 {
	peak := 1.0
	for _, v := range history {
		peak = max(peak, v)
	}
	peak *= 1.1
	if peak >= 5 {
		return float64(int((peak+4.99)/5) * 5)
	}
	return float64(int(peak + 0.99))
}

// renderBandwidthGraph draws history as right-aligned bars over a dashed
// grid. Values are scaled against maxVal and clipped at the top.
func renderBandwidthGraph(history []float64, width, height int, maxVal float64, color lipgloss.Color) string {
	if width < 1 || height < 1 {
		return ""
	}
	if maxVal <= 0 {
		maxVal = 1
	}

	gridStyle := lipgloss.NewStyle().Foreground(ColorBorder)
	barStyle := lipgloss.NewStyle().Foreground(color)

	rows := make([][]string, height)
	for i := range rows {
		rows[i] = make([]string, width)
		for j := range rows[i] {
			if i%2 == 0 {
				rows[i][j] = gridStyle.Render("╌")
			} else {
				rows[i][j] = " "
			}
		}
	}

	visible := history
	if len(visible) > width {
		visible = visible[len(visible)-width:]
	}
	// Newest sample sits at the right edge.
	offset := width - len(visible)

	for x, val := range visible {
		pct := min(max(val, 0)/maxVal, 1.0)
		eighths := pct * float64(height) * 8

		for y := 0; y < height; y++ {
			level := eighths - float64(y*8)
			if level <= 0 {
				break
			}
			char := graphBlocks[8]
			if level < 8 {
				char = graphBlocks[int(level)]
			}
			rows[height-1-y][offset+x] = barStyle.Render(char)
		}
	}

	lines := make([]string, height)
	for i, row := range rows {
		lines[i] = strings.Join(row, "")
	}
	return strings.Join(lines, "\n")
}
