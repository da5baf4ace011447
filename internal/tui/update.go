package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/surge-downloader/gridsync/internal/engine/events"
	"github.com/surge-downloader/gridsync/internal/engine/types"
	"github.com/surge-downloader/gridsync/internal/utils"
)

// Update handles messages and updates the model
func (m RootModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case eventMsg:
		if cmd := m.applyEvent(msg.Event); cmd != nil {
			cmds = append(cmds, cmd)
		}
		cmds = append(cmds, listenForActivity(m.events))

	case streamClosedMsg:
		m.events = nil

	case tickMsg:
		m.Bandwidth = m.sched.GetBandwidthStats()
		m.Active = m.sched.ActiveDownloads()
		m.Queued = m.sched.QueueLength()
		m.SpeedHistory = append(m.SpeedHistory, m.Bandwidth.CurrentBytesPerSecond/Megabyte)
		if len(m.SpeedHistory) > GraphHistoryPoints {
			m.SpeedHistory = m.SpeedHistory[len(m.SpeedHistory)-GraphHistoryPoints:]
		}
		if m.notification != "" && time.Time(msg).Sub(m.notificationTime) > NotificationTimeout {
			m.notification = ""
		}
		// The event stream is lossy; the rows are resynced on every tick.
		cmds = append(cmds, m.syncLayers()...)
		cmds = append(cmds, tickCmd())

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, DashboardKeys.Quit):
			return m, tea.Quit
		case key.Matches(msg, DashboardKeys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, DashboardKeys.Down):
			if m.cursor < len(m.layers)-1 {
				m.cursor++
			}
		case key.Matches(msg, DashboardKeys.Earlier):
			m.moveCurrent(-1)
		case key.Matches(msg, DashboardKeys.Later):
			m.moveCurrent(1)
		case key.Matches(msg, DashboardKeys.DownloadAll):
			total := 0
			for _, l := range m.layers {
				n, err := m.sched.DownloadAllTimesteps(l.ID)
				if err != nil {
					m.notify(fmt.Sprintf("%s: %v", l.ID, err))
					return m, nil
				}
				total += n
			}
			m.notify(fmt.Sprintf("Queued %d timesteps", total))
		case key.Matches(msg, DashboardKeys.Retry):
			total := 0
			for _, l := range m.layers {
				n, err := m.sched.RetryFailed(l.ID)
				if err != nil {
					m.notify(fmt.Sprintf("%s: %v", l.ID, err))
					return m, nil
				}
				l.LastErr = nil
				total += n
			}
			cmds = append(cmds, m.syncLayers()...)
			m.notify(fmt.Sprintf("Retrying %d timesteps", total))
		}
	}

	// Propagate messages to progress bars
	for _, l := range m.layers {
		newModel, cmd := l.progress.Update(msg)
		if p, ok := newModel.(progress.Model); ok {
			l.progress = p
		}
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *RootModel) notify(text string) {
	m.notification = text
	m.notificationTime = time.Now()
}

// moveCurrent steps the current time by delta timesteps of the selected
// layer and prioritizes the new neighbourhood in every layer.
func (m *RootModel) moveCurrent(delta int) {
	sel := m.Selected()
	if sel == nil || len(sel.Steps) == 0 {
		return
	}
	idx := m.currentIndex(sel) + delta
	idx = min(max(idx, 0), len(sel.Steps)-1)
	m.Current = sel.Steps[idx].Time

	for _, l := range m.layers {
		if err := m.sched.PrioritizeTimestamps(l.ID, m.Current); err != nil {
			m.notify(fmt.Sprintf("%s: %v", l.ID, err))
			return
		}
	}
	utils.Debug("prioritized %d layers around %s", len(m.layers), m.Current.Format(time.RFC3339))
}

// applyEvent folds one scheduler event into the rows.
func (m *RootModel) applyEvent(ev events.Event) tea.Cmd {
	switch ev := ev.(type) {
	case events.TimestampLoadingMsg:
		m.setStatus(ev.Layer, ev.Index, types.StatusLoading)
	case events.TimestampLoadedMsg:
		m.setStatus(ev.Layer, ev.Index, types.StatusLoaded)
	case events.TimestampFailedMsg:
		m.setStatus(ev.Layer, ev.Index, types.StatusFailed)
		if l := m.findLayer(ev.Layer); l != nil {
			l.LastErr = ev.Err
		}
		m.notify(fmt.Sprintf("%s %s failed", ev.Layer, ev.Step.Label()))
	case events.DownloadProgressMsg:
		if l := m.findLayer(ev.Layer); l != nil {
			l.Progress = ev.Progress
			return l.progress.SetPercent(ev.Progress.PercentComplete / 100)
		}
	case events.LayerRegisteredMsg:
		if m.findLayer(ev.Layer) == nil {
			if lm, err := NewLayerModel(m.sched, ev.Layer); err == nil {
				m.layers = append(m.layers, lm)
			}
		}
	case events.LayerClearedMsg:
		for i, l := range m.layers {
			if l.ID == ev.Layer {
				m.layers = append(m.layers[:i], m.layers[i+1:]...)
				break
			}
		}
		if m.cursor >= len(m.layers) {
			m.cursor = max(len(m.layers)-1, 0)
		}
	}
	return nil
}

// syncLayers reloads every row's statuses and progress from the scheduler.
// Rows of layers that are gone are left for the LayerCleared event.
func (m *RootModel) syncLayers() []tea.Cmd {
	var cmds []tea.Cmd
	for _, l := range m.layers {
		statuses, err := m.sched.GetStatuses(l.ID)
		if err != nil {
			continue
		}
		p, err := m.sched.GetProgress(l.ID)
		if err != nil {
			continue
		}
		l.Statuses = statuses
		if p != l.Progress {
			l.Progress = p
			cmds = append(cmds, l.progress.SetPercent(p.PercentComplete/100))
		}
	}
	return cmds
}

func (m *RootModel) setStatus(layer types.LayerID, index int, st types.Status) {
	l := m.findLayer(layer)
	if l == nil || index < 0 || index >= len(l.Statuses) {
		return
	}
	l.Statuses[index] = st
}
