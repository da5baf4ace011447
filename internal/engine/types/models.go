package types

import (
	"fmt"
	"strings"
	"time"
)

// LayerID identifies one logical data series (e.g. "temp2m", "wind10m").
type LayerID string

// TimeStep describes one loadable unit of a layer's timeline.
// Sources holds one locator for single-file layers and two (U, V) for
// dual-component layers.
type TimeStep struct {
	Time    time.Time `json:"time"`
	Date    string    `json:"date"`  // YYYYMMDD
	Cycle   string    `json:"cycle"` // e.g. "06z"
	Sources []string  `json:"sources"`
}

// IsDual reports whether the step is made of two component files.
func (t TimeStep) IsDual() bool {
	return len(t.Sources) == 2
}

// Label returns a short human readable name, e.g. "20251028 06z".
func (t TimeStep) Label() string {
	return t.Date + " " + t.Cycle
}

// Priority orders download requests. Higher values are dispatched first.
type Priority int

const (
	PriorityBackground Priority = iota
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityBackground:
		return "background"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// IsUrgent reports whether work at this priority gates Scheduler.Done.
func (p Priority) IsUrgent() bool {
	return p > PriorityBackground
}

// ParsePriority converts a priority name into a Priority.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "background":
		return PriorityBackground, nil
	case "high":
		return PriorityHigh, nil
	case "critical":
		return PriorityCritical, nil
	}
	return PriorityBackground, fmt.Errorf("unknown priority %q", s)
}

// Status is the availability state of a single timestep.
type Status int

const (
	StatusEmpty Status = iota
	StatusLoading
	StatusLoaded
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusEmpty:
		return "empty"
	case StatusLoading:
		return "loading"
	case StatusLoaded:
		return "loaded"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// PayloadKind tags the shape of a Payload.
type PayloadKind int

const (
	PayloadSingle PayloadKind = iota
	PayloadPair
)

// Payload is the opaque result of loading a timestep. Single layers carry
// Data, dual-component layers carry U and V.
type Payload struct {
	Kind PayloadKind
	Data []byte
	U    []byte
	V    []byte
}

// Size returns the number of payload bytes.
func (p *Payload) Size() int64 {
	if p == nil {
		return 0
	}
	if p.Kind == PayloadPair {
		return int64(len(p.U) + len(p.V))
	}
	return int64(len(p.Data))
}

// TimestampState is the record kept for each (layer, index).
type TimestampState struct {
	Status   Status
	Payload  *Payload
	Bytes    int64         // downloaded bytes, set once loaded
	Elapsed  time.Duration // download time, set once finished
	Err      error         // set when failed
	Priority Priority      // priority the request was dispatched with
}

// DownloadRequest is a queue entry for one (layer, index).
type DownloadRequest struct {
	ID         string
	Layer      LayerID
	Index      int
	Step       TimeStep
	Priority   Priority
	EnqueuedAt time.Time
}

// BandwidthSample is one measured transfer.
type BandwidthSample struct {
	Bytes   int64
	Elapsed time.Duration
}

// BandwidthStats is a read-only view of the bandwidth tracker.
type BandwidthStats struct {
	AverageBytesPerSecond float64       `json:"average_bytes_per_second"`
	CurrentBytesPerSecond float64       `json:"current_bytes_per_second"`
	TotalBytes            int64         `json:"total_bytes"`
	TotalTime             time.Duration `json:"total_time"`
	Samples               int           `json:"samples"`
}

// Progress is a derived per-layer snapshot.
type Progress struct {
	Layer           LayerID       `json:"layer"`
	Loaded          int           `json:"loaded"`
	Loading         int           `json:"loading"`
	Failed          int           `json:"failed"`
	Empty           int           `json:"empty"`
	Total           int           `json:"total"`
	PercentComplete float64       `json:"percent_complete"`
	ETA             time.Duration `json:"eta,omitempty"`
	HasETA          bool          `json:"has_eta"`
}

// Settled reports whether no index is empty or loading.
func (p Progress) Settled() bool {
	return p.Empty == 0 && p.Loading == 0
}

// Strategy controls what InitializeLayer schedules beyond the adjacent steps.
type Strategy string

const (
	StrategyOnDemand   Strategy = "on-demand"
	StrategyAggressive Strategy = "aggressive"
)

// ParseStrategy validates a strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case StrategyOnDemand:
		return StrategyOnDemand, nil
	case StrategyAggressive:
		return StrategyAggressive, nil
	}
	return "", fmt.Errorf("unknown strategy %q (want %q or %q)", s, StrategyOnDemand, StrategyAggressive)
}
