package events

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/surge-downloader/gridsync/internal/engine/types"
)

// Name identifies an event kind for subscription.
type Name string

const (
	TimestampLoading Name = "timestampLoading"
	TimestampLoaded  Name = "timestampLoaded"
	TimestampFailed  Name = "timestampFailed"
	DownloadProgress Name = "downloadProgress"
	LayerRegistered  Name = "layerRegistered"
	LayerCleared     Name = "layerCleared"

	// Any subscribes to every event.
	Any Name = "*"
)

// Event is implemented by every message the scheduler emits.
type Event interface {
	EventName() Name
}

// TimestampLoadingMsg is sent when a fetch for (Layer, Index) starts
type TimestampLoadingMsg struct {
	Layer    types.LayerID
	Index    int
	Step     types.TimeStep
	Priority types.Priority
}

// TimestampLoadedMsg signals that a timestep finished successfully
type TimestampLoadedMsg struct {
	Layer    types.LayerID
	Index    int
	Step     types.TimeStep
	Payload  *types.Payload `json:"-"`
	Priority types.Priority
	Bytes    int64
	Elapsed  time.Duration
}

// TimestampFailedMsg signals that a fetch failed
type TimestampFailedMsg struct {
	Layer    types.LayerID
	Index    int
	Step     types.TimeStep
	Priority types.Priority
	Err      error
}

func (m TimestampFailedMsg) MarshalJSON() ([]byte, error) {
	type encoded struct {
		Layer    types.LayerID  `json:"Layer"`
		Index    int            `json:"Index"`
		Step     types.TimeStep `json:"Step"`
		Priority types.Priority `json:"Priority"`
		Err      string         `json:"Err,omitempty"`
	}

	out := encoded{
		Layer:    m.Layer,
		Index:    m.Index,
		Step:     m.Step,
		Priority: m.Priority,
	}
	if m.Err != nil {
		out.Err = m.Err.Error()
	}

	return json.Marshal(out)
}

func (m *TimestampFailedMsg) UnmarshalJSON(data []byte) error {
	var aux struct {
		Layer    types.LayerID   `json:"Layer"`
		Index    int             `json:"Index"`
		Step     types.TimeStep  `json:"Step"`
		Priority types.Priority  `json:"Priority"`
		Err      json.RawMessage `json:"Err"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	m.Layer = aux.Layer
	m.Index = aux.Index
	m.Step = aux.Step
	m.Priority = aux.Priority
	m.Err = nil

	if len(aux.Err) == 0 {
		return nil
	}

	var errStr string
	if err := json.Unmarshal(aux.Err, &errStr); err == nil {
		if errStr != "" {
			m.Err = errors.New(errStr)
		}
		return nil
	}

	// Non-string payloads (e.g. {}) are kept verbatim.
	raw := string(aux.Err)
	if raw != "" && raw != "null" {
		m.Err = errors.New(raw)
	}
	return nil
}

// DownloadProgressMsg carries a layer snapshot after each finished fetch
type DownloadProgressMsg struct {
	Layer    types.LayerID
	Index    int
	Step     types.TimeStep
	Progress types.Progress
}

type LayerRegisteredMsg struct {
	Layer types.LayerID
	Steps int
}

type LayerClearedMsg struct {
	Layer types.LayerID
}

func (TimestampLoadingMsg) EventName() Name { return TimestampLoading }
func (TimestampLoadedMsg) EventName() Name  { return TimestampLoaded }
func (TimestampFailedMsg) EventName() Name  { return TimestampFailed }
func (DownloadProgressMsg) EventName() Name { return DownloadProgress }
func (LayerRegisteredMsg) EventName() Name  { return LayerRegistered }
func (LayerClearedMsg) EventName() Name     { return LayerCleared }
