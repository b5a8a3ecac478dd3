package sched

import (
	"sync"
	"time"
)

// Fake is a Scheduler driven by a virtual clock for tests. Nothing runs
// until Advance or Flush is called; callbacks then run on the caller's
// goroutine in deadline order, with Now set to each deadline.
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	timers timerSet
	posted []func(time.Time)
}

// NewFake creates a fake scheduler starting at start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

// Now returns the virtual time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// After schedules fn delay after the virtual now.
func (f *Fake) After(delay time.Duration, fn func(now time.Time)) *Timer {
	return f.timers.schedule(f.Now().Add(delay), 0, once(fn))
}

// Every schedules task every interval from the virtual now.
func (f *Fake) Every(interval time.Duration, task Task) *Timer {
	return f.timers.schedule(f.Now().Add(interval), interval, task)
}

// Post queues fn to run on the next Flush or Advance.
func (f *Fake) Post(fn func(now time.Time)) bool {
	f.mu.Lock()
	f.posted = append(f.posted, fn)
	f.mu.Unlock()
	return true
}

// Flush runs posted callbacks and timers due at the current virtual time.
func (f *Fake) Flush() {
	f.Advance(0)
}

// Advance moves the virtual clock forward by d, firing everything that
// comes due on the way.
func (f *Fake) Advance(d time.Duration) {
	target := f.Now().Add(d)
	f.runPosted()
	for t := f.timers.popDue(target); t != nil; t = f.timers.popDue(target) {
		f.mu.Lock()
		if t.when.After(f.now) {
			f.now = t.when
		}
		now := f.now
		f.mu.Unlock()

		f.timers.fire(t, now)
		f.runPosted()
	}
	f.mu.Lock()
	f.now = target
	f.mu.Unlock()
	f.runPosted()
}

// Pending returns the number of scheduled timers.
func (f *Fake) Pending() int {
	return f.timers.len()
}

func (f *Fake) runPosted() {
	for {
		f.mu.Lock()
		if len(f.posted) == 0 {
			f.mu.Unlock()
			return
		}
		fn := f.posted[0]
		f.posted = f.posted[1:]
		now := f.now
		f.mu.Unlock()
		fn(now)
	}
}
