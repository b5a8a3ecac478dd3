// Package sched provides the timer domains of the controller.
//
// A Scheduler stands for one execution context: every callback it runs
// (timers, periodic tasks and work posted from interrupt handlers) runs
// serially on that context, so state owned by the context needs no locks.
// The controller uses two independent schedulers, one for inputs and the
// control loop and one for metering; they never share timers.
package sched

import (
	"container/heap"
	"sync"
	"time"
)

// Task is a periodic callback. Returning false cancels it.
type Task func(now time.Time) bool

// Scheduler is a timer facility bound to one execution context.
type Scheduler interface {
	// Now returns the scheduler's current time.
	Now() time.Time

	// After runs fn once, delay from now.
	After(delay time.Duration, fn func(now time.Time)) *Timer

	// Every runs task every interval, first after one interval, until it
	// returns false or the timer is stopped.
	Every(interval time.Duration, task Task) *Timer

	// Post runs fn on the scheduler's context as soon as possible. It is
	// the entry point for interrupt-style callbacks arriving on other
	// goroutines. It never blocks and returns false if fn was dropped.
	Post(fn func(now time.Time)) bool
}

// Timer is the handle of a scheduled callback. The owner of a handle is the
// only one that stops or replaces it.
type Timer struct {
	set     *timerSet
	when    time.Time
	period  time.Duration
	task    Task
	seq     uint64
	index   int // position in the heap, -1 when not scheduled
	stopped bool
}

// Stop cancels the timer. It returns true if the timer was still pending.
// Stopping a nil or already fired timer is a no-op.
func (t *Timer) Stop() bool {
	if t == nil {
		return false
	}
	return t.set.stop(t)
}

// Active reports whether the timer is waiting to fire.
func (t *Timer) Active() bool {
	if t == nil {
		return false
	}
	return t.set.active(t)
}

// timerSet is the deadline-ordered set of timers shared by Loop and Fake.
type timerSet struct {
	mu    sync.Mutex
	heap  timerHeap
	seq   uint64
	onAdd func()
}

func (s *timerSet) schedule(when time.Time, period time.Duration, task Task) *Timer {
	t := &Timer{set: s, when: when, period: period, task: task, index: -1}
	s.mu.Lock()
	s.seq++
	t.seq = s.seq
	heap.Push(&s.heap, t)
	s.mu.Unlock()

	if s.onAdd != nil {
		s.onAdd()
	}
	return t
}

func (s *timerSet) stop(t *Timer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.stopped = true
	if t.index < 0 {
		return false
	}
	heap.Remove(&s.heap, t.index)
	return true
}

func (s *timerSet) active(t *Timer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return t.index >= 0
}

// next returns the earliest deadline.
func (s *timerSet) next() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.heap) == 0 {
		return time.Time{}, false
	}
	return s.heap[0].when, true
}

// popDue removes and returns the earliest timer if it is due at now.
func (s *timerSet) popDue(now time.Time) *Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.heap) == 0 || s.heap[0].when.After(now) {
		return nil
	}
	return heap.Pop(&s.heap).(*Timer)
}

// fire runs a popped timer outside the lock and reschedules periodic ones.
func (s *timerSet) fire(t *Timer, now time.Time) {
	again := t.task(now)
	if !again || t.period <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if t.stopped {
		return
	}
	next := t.when.Add(t.period)
	if !next.After(now) {
		// Fell behind by more than a period: skip missed ticks.
		next = now.Add(t.period)
	}
	t.when = next
	s.seq++
	t.seq = s.seq
	heap.Push(&s.heap, t)
}

func (s *timerSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.heap)
}

func once(fn func(now time.Time)) Task {
	return func(now time.Time) bool {
		fn(now)
		return false
	}
}

type timerHeap []*Timer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].when.Equal(h[j].when) {
		return h[i].seq < h[j].seq
	}
	return h[i].when.Before(h[j].when)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*Timer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}
