package tui

import "time"

const (
	// Timeouts and Intervals
	TickInterval = 500 * time.Millisecond

	// Layout Offsets and Padding
	HeaderWidthOffset      = 2
	ProgressBarWidthOffset = 4
	DefaultPaddingX        = 1
	DefaultPaddingY        = 0

	// Graph
	GraphHistoryPoints = 120

	// Units
	Megabyte = 1024.0 * 1024.0

	// Channel Buffers
	EventChannelBuffer = 256

	// How long a notification stays in the footer
	NotificationTimeout = 3 * time.Second
)
