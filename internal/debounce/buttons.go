package debounce

import (
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/evm-controller/internal/gpio"
	"github.com/sweeney/evm-controller/internal/logic"
	"github.com/sweeney/evm-controller/internal/sched"
)

// Buttons accepts a press on its first edge and then suppresses bounce.
//
// Both buttons share one activity timestamp. A press registers only if the
// window has elapsed since the last activity. While a checker runs, every
// tick on which either button still reads asserted refreshes the timestamp;
// once both are released for a full window the checker stops itself.
type Buttons struct {
	sched  sched.Scheduler
	levels Levels
	queue  Pusher
	log    *zap.Logger

	window     time.Duration
	checkEvery time.Duration

	lastActivity time.Time
	active       bool // lastActivity is set
	checker      *sched.Timer

	accepted int
	dropped  int
}

// NewButtons creates a button debouncer on s.
func NewButtons(s sched.Scheduler, levels Levels, q Pusher, cfg Config, log *zap.Logger) *Buttons {
	cfg = cfg.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &Buttons{
		sched:      s,
		levels:     levels,
		queue:      q,
		log:        log,
		window:     cfg.ButtonWindow,
		checkEvery: cfg.CheckInterval,
	}
}

// Edge handles a falling edge on a button line.
func (b *Buttons) Edge(line gpio.Line, now time.Time) {
	side := gpio.ButtonSide(line)
	if !side.Valid() {
		return
	}
	if b.active && now.Sub(b.lastActivity) <= b.window {
		return
	}

	b.lastActivity = now
	b.active = true

	if b.queue.TryPush(logic.ButtonPressed(side)) {
		b.accepted++
		b.log.Debug("button pressed", zap.Stringer("side", side))
	} else {
		b.dropped++
		b.log.Warn("queue full, button press dropped", zap.Stringer("side", side))
	}

	if !b.checker.Active() {
		b.checker = b.sched.Every(b.checkEvery, b.check)
	}
}

func (b *Buttons) check(now time.Time) bool {
	if now.Sub(b.lastActivity) >= b.window {
		return false
	}
	if b.anyAsserted() {
		b.lastActivity = now
	}
	return true
}

func (b *Buttons) anyAsserted() bool {
	for _, line := range []gpio.Line{gpio.ButtonLeft, gpio.ButtonRight} {
		asserted, err := b.levels.Asserted(line)
		if err != nil {
			b.log.Warn("read button", zap.Stringer("line", line), zap.Error(err))
			continue
		}
		if asserted {
			return true
		}
	}
	return false
}

// Checking reports whether the bounce checker is running.
func (b *Buttons) Checking() bool { return b.checker.Active() }

// Accepted returns the number of presses queued.
func (b *Buttons) Accepted() int { return b.accepted }

// Dropped returns the number of presses lost to a full queue.
func (b *Buttons) Dropped() int { return b.dropped }
