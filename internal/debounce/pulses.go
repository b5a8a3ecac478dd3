package debounce

import (
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/evm-controller/internal/gpio"
	"github.com/sweeney/evm-controller/internal/logic"
	"github.com/sweeney/evm-controller/internal/sched"
)

// Pulses confirms coin and bill pulses. A falling edge schedules one check
// a confirmation delay later; the credit registers only if the line still
// reads asserted then. Edges during a pending confirmation are ignored.
//
// A confirmed credit is never dropped: if the queue is full it is offered
// again after the retry delay until accepted.
type Pulses struct {
	sched  sched.Scheduler
	levels Levels
	queue  Pusher
	log    *zap.Logger

	confirm time.Duration
	retry   time.Duration

	pending map[gpio.Line]*sched.Timer

	confirmed int
	rejected  int
	waiting   int // confirmed credits not yet accepted by the queue
}

// NewPulses creates a pulse debouncer on s.
func NewPulses(s sched.Scheduler, levels Levels, q Pusher, cfg Config, log *zap.Logger) *Pulses {
	cfg = cfg.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &Pulses{
		sched:   s,
		levels:  levels,
		queue:   q,
		log:     log,
		confirm: cfg.PulseConfirm,
		retry:   cfg.RetryDelay,
		pending: make(map[gpio.Line]*sched.Timer),
	}
}

func pulseEvent(line gpio.Line) (logic.Event, bool) {
	switch line {
	case gpio.CoinPulse:
		return logic.CoinInserted(), true
	case gpio.BillPulse:
		return logic.BillInserted(), true
	default:
		return logic.Event{}, false
	}
}

// Edge handles a falling edge on an acceptor line.
func (p *Pulses) Edge(line gpio.Line, now time.Time) {
	ev, ok := pulseEvent(line)
	if !ok {
		return
	}
	if p.pending[line].Active() {
		return
	}
	p.pending[line] = p.sched.After(p.confirm, func(time.Time) {
		p.check(line, ev)
	})
}

func (p *Pulses) check(line gpio.Line, ev logic.Event) {
	asserted, err := p.levels.Asserted(line)
	if err != nil {
		p.rejected++
		p.log.Warn("read acceptor line", zap.Stringer("line", line), zap.Error(err))
		return
	}
	if !asserted {
		p.rejected++
		p.log.Debug("pulse too short, ignored", zap.Stringer("line", line))
		return
	}

	p.confirmed++
	p.waiting++
	p.submit(ev, 0)
}

func (p *Pulses) submit(ev logic.Event, attempt int) {
	if p.queue.TryPush(ev) {
		p.waiting--
		if attempt > 0 {
			p.log.Info("queued credit after backpressure",
				zap.Stringer("event", ev), zap.Int("attempts", attempt+1))
		}
		return
	}
	if attempt == 0 {
		p.log.Warn("queue full, holding credit", zap.Stringer("event", ev))
	}
	p.sched.After(p.retry, func(time.Time) { p.submit(ev, attempt+1) })
}

// Confirmed returns the number of pulses that passed confirmation.
func (p *Pulses) Confirmed() int { return p.confirmed }

// Rejected returns the number of edges that failed confirmation.
func (p *Pulses) Rejected() int { return p.rejected }

// Waiting returns the number of confirmed credits still held for the queue.
func (p *Pulses) Waiting() int { return p.waiting }

// Pending reports whether a confirmation is scheduled for line.
func (p *Pulses) Pending(line gpio.Line) bool { return p.pending[line].Active() }
