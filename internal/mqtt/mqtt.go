// Package mqtt publishes rendered display frames and system lifecycle
// events to a local broker, with an abstraction for testing.
package mqtt

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/sweeney/evm-controller/internal/display"
	"github.com/sweeney/evm-controller/internal/logic"
)

// TopicFrame is the default MQTT topic for display frames. Frames are
// retained so a panel that connects late shows the current state.
const TopicFrame = "evm/display/frame"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "evm/system"

// ErrNotConnected is returned when a frame is published while the broker
// connection is down.
var ErrNotConnected = errors.New("mqtt not connected")

// Publisher publishes frames and system events to MQTT.
type Publisher interface {
	// PublishFrame sends a display frame to the broker.
	// Returns error if publishing fails (should not crash the process).
	PublishFrame(f logic.Frame) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// FramePayload is the MQTT message payload for a display frame.
type FramePayload struct {
	Frame FrameInner `json:"frame"`
}

// FrameInner is a timestamped display.View.
type FrameInner struct {
	Timestamp string `json:"timestamp"`
	display.View
}

// FormatFramePayload creates the JSON payload for a display frame.
func FormatFramePayload(f logic.Frame, at time.Time) ([]byte, error) {
	return json.Marshal(FramePayload{
		Frame: FrameInner{
			Timestamp: at.UTC().Format(time.RFC3339),
			View:      display.NewView(f),
		},
	})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
