// Package status provides a thread-safe status tracker for the vending controller.
// It is written by the control loop and the metering pipeline and read by
// HTTP handlers.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/evm-controller/internal/logic"
)

// MeterStatus is the latest poll result of one outlet meter. This is a
// local copy to avoid importing internal/metering from status.
type MeterStatus struct {
	Addr     uint8
	OK       bool
	Err      string
	Register uint32
	TotalWh  uint64
	CarryWh  uint64
	At       time.Time
}

// Config contains daemon configuration for display.
type Config struct {
	Version      string
	PriceCents   uint64
	UnitsPerCent uint64
	UpdateMs     int64
	InactivityMs int64
	PollMs       int64
	Broker       string
	HTTPAddr     string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	Frame         logic.Frame
	Rendered      bool
	Meters        [2]MeterStatus
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Meter returns the meter status of side.
func (s Snapshot) Meter(side logic.Side) MeterStatus {
	return s.Meters[side.Index()]
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Render stores the latest display frame. Tracker is a display.Renderer.
func (t *Tracker) Render(f logic.Frame) {
	t.mu.Lock()
	t.snap.Frame = f
	t.snap.Rendered = true
	t.mu.Unlock()
}

// SetMeter stores the latest poll result of side.
func (t *Tracker) SetMeter(side logic.Side, m MeterStatus) {
	if !side.Valid() {
		return
	}
	t.mu.Lock()
	t.snap.Meters[side.Index()] = m
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
