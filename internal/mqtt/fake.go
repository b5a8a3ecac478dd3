package mqtt

import (
	"sync"

	"github.com/sweeney/evm-controller/internal/logic"
)

// FakePublisher records published frames and events for test assertions.
// It is safe for concurrent use since Display publishes from its own goroutine.
type FakePublisher struct {
	mu sync.Mutex

	frames         []logic.Frame
	systemEvents   []SystemEvent
	systemPayloads [][]byte

	publishError       error
	publishSystemError error
	closed             bool
	connected          bool
	published          chan struct{}
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{published: make(chan struct{}, 64)}
}

// PublishFrame records the frame.
func (f *FakePublisher) PublishFrame(frame logic.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	defer f.notify()

	if f.publishError != nil {
		return f.publishError
	}
	f.frames = append(f.frames, frame)
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.publishSystemError != nil {
		return f.publishSystemError
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.systemEvents = append(f.systemEvents, event)
	f.systemPayloads = append(f.systemPayloads, payload)
	return nil
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// SetConnected controls the return value of IsConnected.
func (f *FakePublisher) SetConnected(c bool) {
	f.mu.Lock()
	f.connected = c
	f.mu.Unlock()
}

// FailFrames makes PublishFrame return err (nil restores success).
func (f *FakePublisher) FailFrames(err error) {
	f.mu.Lock()
	f.publishError = err
	f.mu.Unlock()
}

// FailSystem makes PublishSystem return err (nil restores success).
func (f *FakePublisher) FailSystem(err error) {
	f.mu.Lock()
	f.publishSystemError = err
	f.mu.Unlock()
}

// Frames returns a copy of the published frames.
func (f *FakePublisher) Frames() []logic.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]logic.Frame(nil), f.frames...)
}

// SystemEvents returns a copy of the published system events.
func (f *FakePublisher) SystemEvents() []SystemEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SystemEvent(nil), f.systemEvents...)
}

// SystemPayloads returns a copy of the system event payloads.
func (f *FakePublisher) SystemPayloads() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.systemPayloads...)
}

// Closed reports whether Close was called.
func (f *FakePublisher) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Published is signalled after every PublishFrame attempt.
func (f *FakePublisher) Published() <-chan struct{} {
	return f.published
}

// Reset clears recorded frames and events.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = nil
	f.systemEvents = nil
	f.systemPayloads = nil
	f.closed = false
	f.publishError = nil
	f.publishSystemError = nil
	f.connected = false
}

func (f *FakePublisher) notify() {
	select {
	case f.published <- struct{}{}:
	default:
	}
}
