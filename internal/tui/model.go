package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/surge-downloader/gridsync/internal/engine/events"
	"github.com/surge-downloader/gridsync/internal/engine/timeline"
	"github.com/surge-downloader/gridsync/internal/engine/types"
)

// Scheduler is the part of the download scheduler the dashboard drives.
type Scheduler interface {
	Layers() []types.LayerID
	TimeSteps(layer types.LayerID) ([]types.TimeStep, error)
	GetStatuses(layer types.LayerID) ([]types.Status, error)
	GetProgress(layer types.LayerID) (types.Progress, error)
	GetBandwidthStats() types.BandwidthStats
	PrioritizeTimestamps(layer types.LayerID, current time.Time) error
	DownloadAllTimesteps(layer types.LayerID) (int, error)
	RetryFailed(layer types.LayerID) (int, error)
	ActiveDownloads() int
	QueueLength() int
}

// LayerModel is the dashboard row of one layer.
type LayerModel struct {
	ID       types.LayerID
	Steps    []types.TimeStep
	Statuses []types.Status
	Progress types.Progress
	LastErr  error

	progress progress.Model
}

// NewLayerModel loads the row of layer from the scheduler.
func NewLayerModel(s Scheduler, layer types.LayerID) (*LayerModel, error) {
	steps, err := s.TimeSteps(layer)
	if err != nil {
		return nil, err
	}
	statuses, err := s.GetStatuses(layer)
	if err != nil {
		return nil, err
	}
	p, err := s.GetProgress(layer)
	if err != nil {
		return nil, err
	}
	return &LayerModel{
		ID:       layer,
		Steps:    steps,
		Statuses: statuses,
		Progress: p,
		progress: progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
	}, nil
}

type RootModel struct {
	sched  Scheduler
	events <-chan events.Event

	layers []*LayerModel
	cursor int

	// Current is the time the user is looking at. Moving it re-prioritizes
	// the timesteps around it.
	Current time.Time

	SpeedHistory []float64 // MB/s, oldest first
	Bandwidth    types.BandwidthStats
	Active       int
	Queued       int

	help             help.Model
	notification     string
	notificationTime time.Time

	width  int
	height int
}

// tickMsg drives the periodic bandwidth refresh
type tickMsg time.Time

// eventMsg wraps a scheduler event for the update loop
type eventMsg struct {
	Event events.Event
}

// streamClosedMsg is sent once the event stream is closed
type streamClosedMsg struct{}

// NewRootModel builds the dashboard for every layer currently registered
// with s. Events are read from stream.
func NewRootModel(s Scheduler, stream <-chan events.Event, current time.Time) RootModel {
	m := RootModel{
		sched:   s,
		events:  stream,
		Current: current,
		help:    help.New(),
	}
	for _, id := range s.Layers() {
		if lm, err := NewLayerModel(s, id); err == nil {
			m.layers = append(m.layers, lm)
		}
	}
	return m
}

func (m RootModel) Init() tea.Cmd {
	return tea.Batch(listenForActivity(m.events), tickCmd())
}

func listenForActivity(sub <-chan events.Event) tea.Cmd {
	if sub == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-sub
		if !ok {
			return streamClosedMsg{}
		}
		return eventMsg{Event: ev}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(TickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Layers returns the rows in display order.
func (m RootModel) Layers() []*LayerModel {
	return m.layers
}

// Selected returns the highlighted row, or nil when there are none.
func (m RootModel) Selected() *LayerModel {
	if m.cursor < 0 || m.cursor >= len(m.layers) {
		return nil
	}
	return m.layers[m.cursor]
}

func (m RootModel) findLayer(id types.LayerID) *LayerModel {
	for _, l := range m.layers {
		if l.ID == id {
			return l
		}
	}
	return nil
}

// currentIndex returns the step of l nearest to the current time.
func (m RootModel) currentIndex(l *LayerModel) int {
	return timeline.Nearest(l.Steps, m.Current)
}
