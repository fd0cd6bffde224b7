// Package types provides shared type definitions used across the meter.
package types

import "time"

// EngineState represents the lifecycle state of a metering engine.
type EngineState string

const (
	// StateUnattached indicates no source is attached.
	StateUnattached EngineState = "unattached"
	// StateAttaching indicates taps are being acquired for a new source.
	StateAttaching EngineState = "attaching"
	// StateAttached indicates the engine is sampling a live source.
	StateAttached EngineState = "attached"
	// StateDetaching indicates taps are being released.
	StateDetaching EngineState = "detaching"
	// StateDisposed indicates the engine has been shut down permanently.
	StateDisposed EngineState = "disposed"
)

// Audio format constants for PCM capture.
const (
	// SampleRate is the audio sample rate in Hz.
	SampleRate = 48000
	// Channels is the number of audio channels (stereo).
	Channels = 2
)

// Channel indices.
const (
	ChannelLeft  = 0
	ChannelRight = 1
)

// LevelMin and LevelMax bound every normalized level.
const (
	LevelMin = 0.0
	LevelMax = 100.0
)

const (
	// InitialRetryDelay is the starting delay between capture restarts.
	InitialRetryDelay = 3000 * time.Millisecond
	// MaxRetryDelay is the maximum delay between capture restarts.
	MaxRetryDelay = 60000 * time.Millisecond
	// SuccessThreshold is the run duration after which the retry delay resets.
	SuccessThreshold = 30000 * time.Millisecond
	// ShutdownTimeout is the duration to wait for graceful shutdown.
	ShutdownTimeout = 3000 * time.Millisecond
)

// AudioLevels is one immutable metering snapshot. All levels are normalized to [0, 100].
type AudioLevels struct {
	// Left is the instantaneous left channel level.
	Left float64 `json:"left"`
	// Right is the instantaneous right channel level.
	Right float64 `json:"right"`
	// PeakLeft is the decaying left channel peak-hold level.
	PeakLeft float64 `json:"peak_left"`
	// PeakRight is the decaying right channel peak-hold level.
	PeakRight float64 `json:"peak_right"`
	// ClipLeft reports whether the left channel reached full scale this tick.
	ClipLeft bool `json:"clip_left,omitzero"`
	// ClipRight reports whether the right channel reached full scale this tick.
	ClipRight bool `json:"clip_right,omitzero"`
}

// IsZero reports whether all levels are zero.
func (l AudioLevels) IsZero() bool {
	return l == AudioLevels{}
}

// EngineStatus contains runtime status for a metering engine.
type EngineStatus struct {
	ID       string      `json:"id"`                 // Engine instance ID
	State    EngineState `json:"state"`              // Lifecycle state
	Accepted int         `json:"accepted"`           // Accepted samples since the last attach
	Source   string      `json:"source,omitempty"`   // Current capture input
	Error    string      `json:"error,omitempty"`    // Last capture error
	Restarts int         `json:"restarts,omitempty"` // Capture restarts since startup
}

// WSLevelsResponse is sent to clients with audio level updates.
type WSLevelsResponse struct {
	Type   string      `json:"type"`   // "levels"
	Levels AudioLevels `json:"levels"` // Current audio levels
}

// WSStatusResponse is sent to clients with engine status.
type WSStatusResponse struct {
	Type    string       `json:"type"`    // "status"
	Version string       `json:"version"` // Build version
	Engine  EngineStatus `json:"engine"`  // Engine status
}
