// Package controller runs the main control loop: it drains the event queue
// into the selection machine and ledger, drives the relays and the bill
// acceptor from ledger state, and paints the display.
//
// A Controller must only be used from the primary scheduler's context. It
// is the exclusive owner of the ledger and the selected side.
package controller

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/evm-controller/internal/display"
	"github.com/sweeney/evm-controller/internal/logic"
	"github.com/sweeney/evm-controller/internal/metrics"
	"github.com/sweeney/evm-controller/internal/sched"
)

// Default timings.
const (
	DefaultUpdateInterval    = 15 * time.Millisecond
	DefaultInactivityTimeout = 30 * time.Second
)

// Source is the consumer side of the event queue.
type Source interface {
	TryPop() (logic.Event, bool)
}

// Outputs is the set of lines the controller drives.
type Outputs interface {
	SetRelay(side logic.Side, on bool) error
	SetBillAcceptor(enabled bool) error
}

// Config holds controller timings.
type Config struct {
	UpdateInterval    time.Duration
	InactivityTimeout time.Duration
}

// DefaultConfig returns the reference timings.
func DefaultConfig() Config {
	return Config{
		UpdateInterval:    DefaultUpdateInterval,
		InactivityTimeout: DefaultInactivityTimeout,
	}
}

// level is the last level successfully written to an output.
type level struct {
	known bool
	on    bool
}

func (l level) needs(on bool) bool {
	return !l.known || l.on != on
}

// Controller is the main control loop.
type Controller struct {
	sched    sched.Scheduler
	events   Source
	outputs  Outputs
	renderer display.Renderer
	pricing  logic.Pricing
	cfg      Config
	log      *zap.Logger

	machine    *logic.Machine
	step       *sched.Timer
	inactivity *sched.Timer

	relays    [2]level
	acceptor  level
	lastWrite error
}

// New creates a controller. Nothing runs until Start.
func New(s sched.Scheduler, events Source, outputs Outputs, renderer display.Renderer,
	pricing logic.Pricing, cfg Config, log *zap.Logger) *Controller {
	if cfg.UpdateInterval <= 0 {
		cfg.UpdateInterval = DefaultUpdateInterval
	}
	if cfg.InactivityTimeout <= 0 {
		cfg.InactivityTimeout = DefaultInactivityTimeout
	}
	if renderer == nil {
		renderer = display.Nop
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{
		sched:    s,
		events:   events,
		outputs:  outputs,
		renderer: renderer,
		pricing:  pricing,
		cfg:      cfg,
		log:      log,
		machine:  logic.NewMachine(),
	}
}

// Start drives outputs to their initial state, paints the first frame and
// schedules the loop on the primary scheduler.
func (c *Controller) Start() {
	c.applyOutputs()
	c.renderer.Render(c.Frame())
	c.step = c.sched.Every(c.cfg.UpdateInterval, func(now time.Time) bool {
		c.Step(now)
		return true
	})
	c.log.Info("control loop started",
		zap.Duration("interval", c.cfg.UpdateInterval),
		zap.Uint64("price_cents", c.pricing.PriceCents()),
		zap.Uint64("units_per_cent", c.pricing.UnitsPerCent()))
}

// Step runs one iteration: drain the queue, apply outputs, render.
func (c *Controller) Step(now time.Time) {
	c.drain()
	c.applyOutputs()
	c.renderer.Render(c.Frame())
}

// drain applies every queued event and returns how many were applied.
func (c *Controller) drain() int {
	n := 0
	for {
		e, ok := c.events.TryPop()
		if !ok {
			return n
		}
		c.apply(e)
		n++
	}
}

func (c *Controller) apply(e logic.Event) {
	target := c.machine.Selected()
	out := c.machine.Apply(e)
	if out.Ignored {
		c.log.Warn("event ignored", zap.Stringer("event", e))
		return
	}
	metrics.RecordApplied(e.Kind.String())

	switch e.Kind {
	case logic.EventButtonPressed:
		c.log.Info("outlet selected",
			zap.Stringer("side", e.Side),
			zap.Uint64("balance_cents", c.machine.Balance(e.Side)))
	case logic.EventCoinInserted, logic.EventBillInserted:
		cents := logic.CoinCents
		if e.Kind == logic.EventBillInserted {
			cents = logic.BillCents
		}
		label := "pending"
		if target.Valid() {
			label = sideLabel(target)
		}
		metrics.AddCredited(label, cents)
		c.log.Info("credit", zap.Stringer("event", e), zap.String("to", label), zap.Uint64("cents", cents))
	case logic.EventDebitEnergy:
		metrics.AddDebited(sideLabel(e.Side), e.Cents)
		c.log.Debug("debit", zap.Stringer("side", e.Side), zap.Uint64("cents", e.Cents))
	}

	if out.Rearm {
		c.rearm()
	}
}

func (c *Controller) rearm() {
	c.inactivity.Stop()
	c.inactivity = c.sched.After(c.cfg.InactivityTimeout, c.expire)
}

// expire applies anything already queued first: activity registered inside
// the window re-arms the timer and keeps the selection.
func (c *Controller) expire(time.Time) {
	if c.drain() > 0 && c.inactivity.Active() {
		return
	}
	if c.machine.Selected() == logic.None {
		return
	}
	c.log.Info("selection expired", zap.Stringer("side", c.machine.Selected()))
	c.machine.Expire()
	c.applyOutputs()
}

// applyOutputs writes the relay and acceptor levels that differ from the
// last successful write. Failed writes are retried on the next call.
func (c *Controller) applyOutputs() {
	var errs []error

	relays := logic.RelayStates(c.machine.Ledger())
	for _, side := range logic.Sides {
		i := side.Index()
		metrics.SetBalance(sideLabel(side), c.machine.Balance(side))
		on := relays[i]
		if !c.relays[i].needs(on) {
			continue
		}
		if err := c.outputs.SetRelay(side, on); err != nil {
			c.relays[i] = level{}
			errs = append(errs, err)
			continue
		}
		c.relays[i] = level{known: true, on: on}
		metrics.SetRelay(sideLabel(side), on)
		c.log.Info("relay", zap.Stringer("side", side), zap.Bool("on", on))
	}

	enabled := c.machine.BillAcceptorEnabled()
	if c.acceptor.needs(enabled) {
		if err := c.outputs.SetBillAcceptor(enabled); err != nil {
			c.acceptor = level{}
			errs = append(errs, err)
		} else {
			c.acceptor = level{known: true, on: enabled}
			c.log.Debug("bill acceptor", zap.Bool("enabled", enabled))
		}
	}

	err := errors.Join(errs...)
	switch {
	case err != nil && c.lastWrite == nil:
		c.log.Error("output write failed", zap.Error(err))
	case err == nil && c.lastWrite != nil:
		c.log.Info("output writes recovered")
	}
	c.lastWrite = err
}

// Shutdown stops the loop and drives every output safe regardless of the
// levels last written.
func (c *Controller) Shutdown() error {
	c.step.Stop()
	c.inactivity.Stop()

	var errs []error
	for _, side := range logic.Sides {
		if err := c.outputs.SetRelay(side, false); err != nil {
			errs = append(errs, fmt.Errorf("release %s relay: %w", side, err))
		}
		metrics.SetRelay(sideLabel(side), false)
	}
	if err := c.outputs.SetBillAcceptor(false); err != nil {
		errs = append(errs, fmt.Errorf("inhibit bill acceptor: %w", err))
	}
	c.relays = [2]level{}
	c.acceptor = level{}
	return errors.Join(errs...)
}

// Frame returns the current display snapshot.
func (c *Controller) Frame() logic.Frame {
	return c.machine.Frame(c.pricing)
}

// Machine exposes the state machine for inspection on the primary context.
func (c *Controller) Machine() *logic.Machine {
	return c.machine
}

// InactivityArmed reports whether the inactivity timer is running.
func (c *Controller) InactivityArmed() bool {
	return c.inactivity.Active()
}

func sideLabel(s logic.Side) string {
	return strings.ToLower(s.String())
}
