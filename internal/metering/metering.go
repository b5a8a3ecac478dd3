// Package metering polls the outlet meters on their own scheduler and turns
// measured energy into whole-cent debit events.
//
// Each outlet has a poller with its own accumulator. Accumulators belong to
// the metering context; the event queue is the only thing shared with the
// control loop. This package is the only caller of the meters.
package metering

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/evm-controller/internal/logic"
	"github.com/sweeney/evm-controller/internal/meter"
	"github.com/sweeney/evm-controller/internal/metrics"
	"github.com/sweeney/evm-controller/internal/sched"
)

// Defaults.
const (
	DefaultPollInterval = 100 * time.Millisecond
	DefaultPushTimeout  = 50 * time.Millisecond
)

// Pusher is the waiting side of the event queue.
type Pusher interface {
	Push(ctx context.Context, e logic.Event) error
}

// Reading is the latest poll result of one outlet, for status display.
type Reading struct {
	Side     logic.Side
	Addr     uint8
	OK       bool
	Err      string
	Register uint32 // raw cumulative register, Wh
	TotalWh  uint64 // energy observed since start
	CarryWh  uint64 // observed but not yet billed
	At       time.Time
}

// Observer receives a Reading after every poll. It is called on the
// metering context and must not block.
type Observer interface {
	MeterUpdated(r Reading)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(r Reading)

// MeterUpdated calls fn(r).
func (fn ObserverFunc) MeterUpdated(r Reading) { fn(r) }

// Config holds the pipeline settings.
type Config struct {
	PollInterval time.Duration
	PushTimeout  time.Duration
	AddrLeft     uint8
	AddrRight    uint8
	ResetOnStart bool
}

// DefaultConfig returns the reference settings.
func DefaultConfig() Config {
	return Config{
		PollInterval: DefaultPollInterval,
		PushTimeout:  DefaultPushTimeout,
		AddrLeft:     meter.AddrLeft,
		AddrRight:    meter.AddrRight,
	}
}

type poller struct {
	side  logic.Side
	label string
	addr  uint8
	acc   *logic.Accumulator
	timer *sched.Timer

	failing   bool
	missed    int
	deferring bool
}

// Pipeline runs the two outlet pollers.
type Pipeline struct {
	sched    sched.Scheduler
	meter    meter.Meter
	queue    Pusher
	cfg      Config
	log      *zap.Logger
	observer Observer

	ctx     context.Context
	pollers [2]*poller
}

// Option applies a configuration option to a Pipeline.
type Option func(*Pipeline)

// WithObserver sets the receiver of poll results.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) { p.observer = o }
}

// WithLogger sets the pipeline's logger.
func WithLogger(log *zap.Logger) Option {
	return func(p *Pipeline) {
		if log != nil {
			p.log = log
		}
	}
}

// New creates a pipeline billing pricing.UnitsPerCent() watt-hours per cent.
func New(s sched.Scheduler, m meter.Meter, q Pusher, pricing logic.Pricing, cfg Config, opts ...Option) *Pipeline {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.PushTimeout <= 0 {
		cfg.PushTimeout = DefaultPushTimeout
	}
	p := &Pipeline{
		sched: s,
		meter: m,
		queue: q,
		cfg:   cfg,
		log:   zap.NewNop(),
		ctx:   context.Background(),
	}
	for _, opt := range opts {
		opt(p)
	}
	addrs := [2]uint8{cfg.AddrLeft, cfg.AddrRight}
	for i, side := range logic.Sides {
		p.pollers[i] = &poller{
			side:  side,
			label: strings.ToLower(side.String()),
			addr:  addrs[i],
			acc:   logic.NewAccumulator(pricing.UnitsPerCent()),
		}
	}
	return p
}

// Start schedules the pollers. ctx bounds every queue push; cancelling it
// makes pending debits wait for the next poll.
func (p *Pipeline) Start(ctx context.Context) {
	p.ctx = ctx
	if p.cfg.ResetOnStart {
		for _, pl := range p.pollers {
			if err := p.meter.ResetEnergy(pl.addr); err != nil {
				p.log.Warn("reset meter", zap.String("side", pl.label), zap.Uint8("addr", pl.addr), zap.Error(err))
				continue
			}
			p.log.Info("meter reset", zap.String("side", pl.label), zap.Uint8("addr", pl.addr))
		}
	}
	for _, pl := range p.pollers {
		pl := pl
		pl.timer = p.sched.Every(p.cfg.PollInterval, func(now time.Time) bool {
			p.poll(pl, now)
			return true
		})
	}
	p.log.Info("metering started",
		zap.Duration("interval", p.cfg.PollInterval),
		zap.Uint64("units_per_cent", p.pollers[0].acc.UnitsPerCent()))
}

// Stop cancels the pollers.
func (p *Pipeline) Stop() {
	for _, pl := range p.pollers {
		pl.timer.Stop()
	}
}

func (p *Pipeline) poll(pl *poller, now time.Time) {
	wh, err := p.meter.ReadEnergy(pl.addr)
	if err != nil {
		metrics.RecordMeterReadError(pl.label)
		pl.missed++
		if !pl.failing {
			pl.failing = true
			p.log.Warn("meter read failed", zap.String("side", pl.label), zap.Uint8("addr", pl.addr), zap.Error(err))
		}
		p.notify(pl, Reading{Err: err.Error(), At: now})
		return
	}
	if pl.failing {
		p.log.Info("meter read recovered", zap.String("side", pl.label), zap.Int("missed", pl.missed))
		pl.failing = false
		pl.missed = 0
	}

	first := !pl.acc.Baselined()
	delta, reset := pl.acc.Observe(uint64(wh))
	switch {
	case first:
		p.log.Info("meter baseline", zap.String("side", pl.label), zap.Uint32("wh", wh))
	case reset:
		p.log.Warn("meter register went backwards, rebaselined",
			zap.String("side", pl.label), zap.Uint32("wh", wh))
	}
	if delta > 0 {
		metrics.AddEnergy(pl.label, delta)
	}

	p.settle(pl)
	p.notify(pl, Reading{OK: true, Register: wh, At: now})
}

// settle converts whole cents of carry into one debit. Carry is only
// reduced once the queue has taken the event.
func (p *Pipeline) settle(pl *poller) {
	cents := pl.acc.Billable()
	if cents == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.PushTimeout)
	defer cancel()
	if err := p.queue.Push(ctx, logic.DebitEnergy(pl.side, cents)); err != nil {
		metrics.RecordDebitDeferred(pl.label)
		if !pl.deferring {
			pl.deferring = true
			p.log.Warn("debit deferred", zap.String("side", pl.label), zap.Uint64("cents", cents), zap.Error(err))
		}
		return
	}
	if pl.deferring {
		pl.deferring = false
		p.log.Info("deferred debit queued", zap.String("side", pl.label), zap.Uint64("cents", cents))
	}
	pl.acc.Commit(cents)
}

func (p *Pipeline) notify(pl *poller, r Reading) {
	if p.observer == nil {
		return
	}
	r.Side = pl.side
	r.Addr = pl.addr
	r.TotalWh = pl.acc.Total()
	r.CarryWh = pl.acc.Carry()
	p.observer.MeterUpdated(r)
}

// Carry returns the unbilled energy of side. Call on the metering context.
func (p *Pipeline) Carry(side logic.Side) uint64 {
	return p.pollers[side.Index()].acc.Carry()
}

// Total returns the energy observed on side since start. Call on the
// metering context.
func (p *Pipeline) Total(side logic.Side) uint64 {
	return p.pollers[side.Index()].acc.Total()
}
