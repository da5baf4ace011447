package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/surge-downloader/gridsync/internal/tui/components"
	"github.com/surge-downloader/gridsync/internal/utils"
)

// Define the Layout Ratios
const (
	ListWidthRatio = 0.6 // Layer list takes 60% width
)

const logoText = `
 ┏━╸┏━┓╻╺┳┓┏━┓╻ ╻┏┓╻┏━╸
 ┃╺┓┣┳┛┃ ┃┃┗━┓┗┳┛┃┗┫┃
 ┗━┛╹┗╸╹╺┻┛┗━┛ ╹ ╹ ╹┗━╸`

func (m RootModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	availableHeight := m.height - 2 // Margin
	availableWidth := m.width - 4   // Margin

	leftWidth := int(float64(availableWidth) * ListWidthRatio)
	rightWidth := availableWidth - leftWidth - 2

	headerHeight := 6
	listHeight := max(availableHeight-headerHeight, 8)
	graphHeight := max(availableHeight/3, 9)
	detailHeight := max(availableHeight-graphHeight, 8)

	// --- HEADER (Top Left) ---
	stats := CardStatsStyle.Render(fmt.Sprintf("Now: %s   Active: %d   Queued: %d",
		m.Current.UTC().Format("2006-01-02 15:04Z"), m.Active, m.Queued))
	headerBox := lipgloss.NewStyle().
		Width(leftWidth).
		Height(headerHeight).
		Padding(0, 2).
		Render(lipgloss.JoinVertical(lipgloss.Left, LogoStyle.Render(logoText), "", stats))

	// --- LAYER LIST (Bottom Left) ---
	var listContent string
	if len(m.layers) == 0 {
		listContent = lipgloss.Place(leftWidth-8, listHeight-4, lipgloss.Center, lipgloss.Center,
			lipgloss.NewStyle().Foreground(ColorNeonCyan).Render("No layers"))
	} else {
		rows := make([]string, 0, len(m.layers))
		for i, l := range m.layers {
			rows = append(rows, m.renderLayerRow(l, i == m.cursor, leftWidth-8))
		}
		listContent = strings.Join(rows, "\n")
	}
	listInner := lipgloss.NewStyle().Padding(1, 2).Render(listContent)
	listBox := renderBtopBox("Layers", listInner, leftWidth, listHeight, ColorNeonPink, true)

	// --- BANDWIDTH GRAPH (Top Right) ---
	graphBox := m.renderGraph(rightWidth, graphHeight)

	// --- DETAILS (Bottom Right) ---
	var detailContent string
	if sel := m.Selected(); sel != nil {
		detailContent = m.renderLayerDetails(sel, rightWidth-4)
	} else {
		detailContent = lipgloss.Place(rightWidth-4, detailHeight-4, lipgloss.Center, lipgloss.Center,
			lipgloss.NewStyle().Foreground(ColorNeonCyan).Render("No Layer Selected"))
	}
	detailBox := renderBtopBox("Timeline", detailContent, rightWidth, detailHeight, ColorGray, true)

	leftColumn := lipgloss.JoinVertical(lipgloss.Left, headerBox, listBox)
	rightColumn := lipgloss.JoinVertical(lipgloss.Left, graphBox, detailBox)
	body := lipgloss.JoinHorizontal(lipgloss.Top, leftColumn, rightColumn)

	var footer string
	if m.notification != "" {
		footer = lipgloss.Place(m.width, 1, lipgloss.Center, lipgloss.Center,
			NotificationStyle.Render(m.notification))
	} else {
		footer = lipgloss.NewStyle().Padding(0, 1).Render(m.help.View(DashboardKeys))
	}

	return lipgloss.JoinVertical(lipgloss.Left, body, footer)
}

func (m RootModel) renderLayerRow(l *LayerModel, selected bool, w int) string {
	cursor := "  "
	nameStyle := ItemStyle
	if selected {
		cursor = CursorStyle.Render("▸ ")
		nameStyle = SelectedItemStyle
	}

	counts := fmt.Sprintf("%d/%d", l.Progress.Loaded, l.Progress.Total)
	if l.Progress.Failed > 0 {
		counts += lipgloss.NewStyle().Foreground(ColorError).Render(fmt.Sprintf(" ✖%d", l.Progress.Failed))
	}

	l.progress.Width = max(w-ProgressBarWidthOffset-24, 10)
	return lipgloss.JoinHorizontal(lipgloss.Left,
		cursor,
		nameStyle.Width(12).Render(truncateString(string(l.ID), 11)),
		l.progress.View(),
		" ",
		CardStatsStyle.Render(counts),
	)
}

func (m RootModel) renderGraph(width, height int) string {
	axisWidth := 6
	contentWidth := max(width-axisWidth-5, 10)
	contentHeight := max(height-4, 1)

	maxSpeed := graphScale(m.SpeedHistory)
	graph := renderBandwidthGraph(m.SpeedHistory, contentWidth, contentHeight, maxSpeed, ColorNeonPink)

	axisStyle := lipgloss.NewStyle().Width(axisWidth).Foreground(ColorGray).Align(lipgloss.Right)
	gap := max(contentHeight-2, 0)
	axis := lipgloss.JoinVertical(lipgloss.Right,
		axisStyle.Render(fmt.Sprintf("%.0f", maxSpeed)),
		strings.Repeat("\n", gap),
		axisStyle.Render("0"),
	)
	row := lipgloss.JoinHorizontal(lipgloss.Top, axis, lipgloss.NewStyle().MarginLeft(1).Render(graph))

	title := lipgloss.NewStyle().
		Width(width - 4).
		Align(lipgloss.Right).
		Foreground(ColorNeonPink).
		Bold(true).
		Render(fmt.Sprintf("Current: %s  Avg: %s",
			utils.FormatRate(m.Bandwidth.CurrentBytesPerSecond),
			utils.FormatRate(m.Bandwidth.AverageBytesPerSecond)))

	content := lipgloss.JoinVertical(lipgloss.Left, title, "", row)
	return renderBtopBox("Bandwidth (MB/s)", content, width, height, ColorNeonCyan, false)
}

func (m RootModel) renderLayerDetails(l *LayerModel, w int) string {
	current := m.currentIndex(l)
	strip := components.NewTimelineModel(l.Statuses, current, max(w-6, 1))

	stepLabel := "-"
	if current >= 0 && current < len(l.Steps) {
		stepLabel = l.Steps[current].Label()
	}
	eta := utils.FormatETA(l.Progress.ETA, l.Progress.HasETA)

	divider := lipgloss.NewStyle().Foreground(ColorGray).Render(strings.Repeat("─", max(w-6, 1)))

	info := lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.JoinHorizontal(lipgloss.Left, StatsLabelStyle.Render("Layer:"), StatsValueStyle.Render(string(l.ID))),
		lipgloss.JoinHorizontal(lipgloss.Left, StatsLabelStyle.Render("Step:"), StatsValueStyle.Render(stepLabel)),
		lipgloss.JoinHorizontal(lipgloss.Left, StatsLabelStyle.Render("Loaded:"), StatsValueStyle.Render(
			fmt.Sprintf("%d / %d (%.0f%%)", l.Progress.Loaded, l.Progress.Total, l.Progress.PercentComplete))),
		lipgloss.JoinHorizontal(lipgloss.Left, StatsLabelStyle.Render("Loading:"), StatsValueStyle.Render(fmt.Sprintf("%d", l.Progress.Loading))),
		lipgloss.JoinHorizontal(lipgloss.Left, StatsLabelStyle.Render("ETA:"), StatsValueStyle.Render(eta)),
	)

	sections := []string{"", info, divider, "", strip.View()}
	if l.LastErr != nil {
		sections = append(sections, "", lipgloss.NewStyle().Foreground(ColorError).
			Render(truncateString(l.LastErr.Error(), max(w-8, 10))))
	}
	return lipgloss.NewStyle().Padding(0, 2).Render(lipgloss.JoinVertical(lipgloss.Left, sections...))
}

func truncateString(s string, i int) string {
	runes := []rune(s)
	if len(runes) > i {
		return string(runes[:i]) + "..."
	}
	return s
}

// renderBtopBox creates a btop-style box with the title embedded in the top
// border, on the right when titleRight is set.
//
//	╭─ TITLE ──────────╮   ╭────────── TITLE ─╮
func renderBtopBox(title string, content string, width, height int, borderColor lipgloss.Color, titleRight bool) string {
	const (
		topLeft     = "╭"
		topRight    = "╮"
		bottomLeft  = "╰"
		bottomRight = "╯"
		horizontal  = "─"
		vertical    = "│"
	)

	innerWidth := max(width-2, 1)
	border := lipgloss.NewStyle().Foreground(borderColor)
	titleStyle := lipgloss.NewStyle().Foreground(ColorNeonCyan).Bold(true)

	titleText := fmt.Sprintf(" %s ", title)
	remaining := max(innerWidth-lipgloss.Width(titleText)-1, 0)

	var top string
	if titleRight {
		top = border.Render(topLeft+strings.Repeat(horizontal, remaining)) +
			titleStyle.Render(titleText) +
			border.Render(horizontal+topRight)
	} else {
		top = border.Render(topLeft+horizontal) +
			titleStyle.Render(titleText) +
			border.Render(strings.Repeat(horizontal, remaining)+topRight)
	}
	bottom := border.Render(bottomLeft + strings.Repeat(horizontal, innerWidth) + bottomRight)

	lines := strings.Split(content, "\n")
	innerHeight := max(height-2, 0)
	wrapped := make([]string, 0, innerHeight)
	for i := 0; i < innerHeight; i++ {
		line := ""
		if i < len(lines) {
			line = lines[i]
		}
		if w := lipgloss.Width(line); w < innerWidth {
			line += strings.Repeat(" ", innerWidth-w)
		} else if w > innerWidth {
			runes := []rune(line)
			if len(runes) > innerWidth {
				line = string(runes[:innerWidth])
			}
		}
		wrapped = append(wrapped, border.Render(vertical)+line+border.Render(vertical))
	}

	return lipgloss.JoinVertical(lipgloss.Left, top, strings.Join(wrapped, "\n"), bottom)
}
