// Package debounce turns raw falling edges from the buttons and the coin and
// bill acceptors into confirmed events on the event queue.
//
// All types here run on the primary scheduler. Edges arrive from GPIO
// goroutines through Edges.Handle, which posts them onto that context.
package debounce

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/evm-controller/internal/gpio"
	"github.com/sweeney/evm-controller/internal/logic"
	"github.com/sweeney/evm-controller/internal/sched"
)

// Default timings.
const (
	DefaultButtonWindow  = 25 * time.Millisecond
	DefaultCheckInterval = 10 * time.Millisecond
	DefaultPulseConfirm  = 25 * time.Millisecond // half the shortest acceptor pulse
	DefaultRetryDelay    = 5 * time.Millisecond
)

// Pusher is the non-blocking side of the event queue.
type Pusher interface {
	TryPush(e logic.Event) bool
}

// Levels reads input lines.
type Levels interface {
	Asserted(line gpio.Line) (bool, error)
}

// Config holds debounce timings.
type Config struct {
	ButtonWindow  time.Duration
	CheckInterval time.Duration
	PulseConfirm  time.Duration
	RetryDelay    time.Duration
}

// DefaultConfig returns the reference timings.
func DefaultConfig() Config {
	return Config{
		ButtonWindow:  DefaultButtonWindow,
		CheckInterval: DefaultCheckInterval,
		PulseConfirm:  DefaultPulseConfirm,
		RetryDelay:    DefaultRetryDelay,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ButtonWindow <= 0 {
		c.ButtonWindow = d.ButtonWindow
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = d.CheckInterval
	}
	if c.PulseConfirm <= 0 {
		c.PulseConfirm = d.PulseConfirm
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = d.RetryDelay
	}
	return c
}

// Edges routes falling edges to the button or pulse debouncer.
type Edges struct {
	sched   sched.Scheduler
	buttons *Buttons
	pulses  *Pulses
	log     *zap.Logger
	lost    atomic.Uint64
}

// New builds both debouncers on s.
func New(s sched.Scheduler, levels Levels, q Pusher, cfg Config, log *zap.Logger) *Edges {
	if log == nil {
		log = zap.NewNop()
	}
	return &Edges{
		sched:   s,
		buttons: NewButtons(s, levels, q, cfg, log.Named("buttons")),
		pulses:  NewPulses(s, levels, q, cfg, log.Named("pulses")),
		log:     log,
	}
}

// Handle is a gpio.EdgeHandler. It may be called from any goroutine.
func (e *Edges) Handle(line gpio.Line) {
	if !e.sched.Post(func(now time.Time) { e.Dispatch(line, now) }) {
		if e.lost.Add(1) == 1 {
			e.log.Warn("edge lost, primary context saturated", zap.Stringer("line", line))
		}
	}
}

// Dispatch handles an edge on the primary context.
func (e *Edges) Dispatch(line gpio.Line, now time.Time) {
	if line.IsButton() {
		e.buttons.Edge(line, now)
		return
	}
	e.pulses.Edge(line, now)
}

// Lost returns the number of edges that could not be posted.
func (e *Edges) Lost() uint64 { return e.lost.Load() }

// Buttons returns the button debouncer.
func (e *Edges) Buttons() *Buttons { return e.buttons }

// Pulses returns the coin and bill debouncer.
func (e *Edges) Pulses() *Pulses { return e.pulses }
