package sched

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	defaultPostBuffer = 64
	idleWait          = time.Hour
)

// Loop is a Scheduler backed by a single goroutine (Run). Timers, periodic
// tasks and posted work all execute on that goroutine, one at a time.
type Loop struct {
	name   string
	timers timerSet
	posted chan func(time.Time)
	kick   chan struct{}
	log    *zap.Logger

	postBuffer int
	dropped    atomic.Uint64
}

// LoopOption applies a configuration option to a Loop.
type LoopOption func(*Loop)

// WithPostBuffer sets how many posted callbacks may wait for the loop.
func WithPostBuffer(n int) LoopOption {
	return func(l *Loop) {
		if n > 0 {
			l.postBuffer = n
		}
	}
}

// WithLogger sets the loop's logger.
func WithLogger(log *zap.Logger) LoopOption {
	return func(l *Loop) {
		if log != nil {
			l.log = log
		}
	}
}

// NewLoop creates a loop. Nothing runs until Run is called.
func NewLoop(name string, opts ...LoopOption) *Loop {
	l := &Loop{
		name:       name,
		log:        zap.NewNop(),
		postBuffer: defaultPostBuffer,
		kick:       make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.posted = make(chan func(time.Time), l.postBuffer)
	l.timers.onAdd = l.wake
	return l
}

// Name returns the loop's name.
func (l *Loop) Name() string { return l.name }

// Now returns the wall clock.
func (l *Loop) Now() time.Time { return time.Now() }

// After runs fn once on the loop after delay.
func (l *Loop) After(delay time.Duration, fn func(now time.Time)) *Timer {
	return l.timers.schedule(l.Now().Add(delay), 0, once(fn))
}

// Every runs task on the loop every interval until it returns false.
func (l *Loop) Every(interval time.Duration, task Task) *Timer {
	return l.timers.schedule(l.Now().Add(interval), interval, task)
}

// Post queues fn for the loop without blocking the caller.
func (l *Loop) Post(fn func(now time.Time)) bool {
	select {
	case l.posted <- fn:
		return true
	default:
		if l.dropped.Add(1) == 1 {
			l.log.Warn("post buffer full, dropping callback", zap.String("loop", l.name))
		}
		return false
	}
}

// Dropped returns how many posted callbacks were discarded.
func (l *Loop) Dropped() uint64 { return l.dropped.Load() }

// Run executes callbacks until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	l.log.Debug("loop started", zap.String("loop", l.name))
	defer l.log.Debug("loop stopped", zap.String("loop", l.name))

	wake := time.NewTimer(idleWait)
	defer wake.Stop()

	for {
		l.runDue()

		wait := idleWait
		if when, ok := l.timers.next(); ok {
			wait = time.Until(when)
			if wait < 0 {
				wait = 0
			}
		}
		wake.Reset(wait)

		select {
		case <-ctx.Done():
			return nil
		case fn := <-l.posted:
			fn(l.Now())
		case <-l.kick:
		case <-wake.C:
		}
	}
}

func (l *Loop) runDue() {
	now := l.Now()
	for t := l.timers.popDue(now); t != nil; t = l.timers.popDue(now) {
		l.timers.fire(t, now)
	}
}

// wake interrupts the wait so a newly added earlier deadline is honoured.
func (l *Loop) wake() {
	select {
	case l.kick <- struct{}{}:
	default:
	}
}
