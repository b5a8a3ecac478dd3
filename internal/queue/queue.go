// Package queue is the bounded FIFO between every event producer (input
// debouncers, metering pipeline) and the single consumer, the control loop.
// It is the only object shared across execution contexts.
package queue

import (
	"context"
	"sync"

	"github.com/sweeney/evm-controller/internal/logic"
	"github.com/sweeney/evm-controller/internal/metrics"
)

// DefaultCapacity matches the slot count of the machine's event queue.
const DefaultCapacity = 100

// Queue is a fixed-capacity, goroutine-safe FIFO of logic.Event values.
// Events are copied in and out and are never modified while queued.
type Queue struct {
	events   chan logic.Event
	capacity int

	done      chan struct{}
	closeOnce sync.Once
}

// New creates a queue with configuration options.
func New(opts ...Option) *Queue {
	q := &Queue{capacity: DefaultCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.events = make(chan logic.Event, q.capacity)
	q.done = make(chan struct{})

	metrics.SetQueueCapacity(q.capacity)
	metrics.SetQueueDepth(0)
	return q
}

// TryPush enqueues e without waiting. It returns false if the queue is full
// or closed; the caller decides whether to drop or retry.
func (q *Queue) TryPush(e logic.Event) bool {
	if q.tryPush(e) {
		return true
	}
	if q.IsClosed() {
		metrics.RecordRejected(e.Kind.String(), "closed")
	} else {
		metrics.RecordRejected(e.Kind.String(), "full")
	}
	return false
}

// Push enqueues e, waiting for a free slot until ctx is done or the queue
// is closed.
func (q *Queue) Push(ctx context.Context, e logic.Event) error {
	if q.tryPush(e) {
		return nil
	}
	select {
	case q.events <- e:
		q.accepted(e)
		return nil
	case <-q.done:
		metrics.RecordRejected(e.Kind.String(), "closed")
		return ErrClosed
	case <-ctx.Done():
		metrics.RecordRejected(e.Kind.String(), "timeout")
		return ctx.Err()
	}
}

func (q *Queue) tryPush(e logic.Event) bool {
	select {
	case <-q.done:
		return false
	default:
	}
	select {
	case q.events <- e:
		q.accepted(e)
		return true
	default:
		return false
	}
}

// Pop removes the oldest event, waiting until one exists, ctx is done, or
// the queue is closed and empty.
func (q *Queue) Pop(ctx context.Context) (logic.Event, error) {
	select {
	case e := <-q.events:
		metrics.SetQueueDepth(len(q.events))
		return e, nil
	default:
	}
	select {
	case e := <-q.events:
		metrics.SetQueueDepth(len(q.events))
		return e, nil
	case <-q.done:
		return logic.Event{}, ErrClosed
	case <-ctx.Done():
		return logic.Event{}, ctx.Err()
	}
}

// TryPop removes the oldest event if there is one.
func (q *Queue) TryPop() (logic.Event, bool) {
	select {
	case e := <-q.events:
		metrics.SetQueueDepth(len(q.events))
		return e, true
	default:
		return logic.Event{}, false
	}
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	return len(q.events)
}

// Cap returns the fixed capacity.
func (q *Queue) Cap() int {
	return q.capacity
}

// Close rejects further pushes and wakes blocked producers and consumers.
// Events already queued can still be drained with TryPop.
func (q *Queue) Close() error {
	q.closeOnce.Do(func() { close(q.done) })
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *Queue) IsClosed() bool {
	select {
	case <-q.done:
		return true
	default:
		return false
	}
}

func (q *Queue) accepted(e logic.Event) {
	metrics.RecordEnqueued(e.Kind.String())
	metrics.SetQueueDepth(len(q.events))
}
