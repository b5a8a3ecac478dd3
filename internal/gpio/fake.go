package gpio

import (
	"fmt"
	"sync"

	"github.com/sweeney/evm-controller/internal/logic"
)

// FakeBoard is a test double with settable input levels and recorded outputs.
type FakeBoard struct {
	mu       sync.Mutex
	levels   map[Line]bool
	relays   [2]bool
	billOn   bool
	writes   int
	handler  EdgeHandler
	closed   bool
	readErr  error
	writeErr error
}

// NewFakeBoard creates a board with every input released.
func NewFakeBoard() *FakeBoard {
	return &FakeBoard{levels: make(map[Line]bool)}
}

// Asserted returns the scripted level of line.
func (f *FakeBoard) Asserted(line Line) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return false, f.readErr
	}
	return f.levels[line], nil
}

// SetRelay records a relay write.
func (f *FakeBoard) SetRelay(side logic.Side, on bool) error {
	if !side.Valid() {
		return fmt.Errorf("gpio: relay for side %s", side)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.writes++
	f.relays[side.Index()] = on
	return nil
}

// SetBillAcceptor records an acceptor enable write.
func (f *FakeBoard) SetBillAcceptor(enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.writes++
	f.billOn = enabled
	return nil
}

// SetEdgeHandler installs the edge callback.
func (f *FakeBoard) SetEdgeHandler(fn EdgeHandler) {
	f.mu.Lock()
	f.handler = fn
	f.mu.Unlock()
}

// Close drives outputs safe and marks the board closed.
func (f *FakeBoard) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.relays = [2]bool{}
	f.billOn = false
	f.handler = nil
	f.closed = true
	return nil
}

// Press asserts line and delivers a falling edge.
func (f *FakeBoard) Press(line Line) {
	f.SetLevel(line, true)
	f.Edge(line)
}

// Release deasserts line. Rising edges are not delivered.
func (f *FakeBoard) Release(line Line) {
	f.SetLevel(line, false)
}

// SetLevel sets the logical level of line without an edge.
func (f *FakeBoard) SetLevel(line Line, asserted bool) {
	f.mu.Lock()
	f.levels[line] = asserted
	f.mu.Unlock()
}

// Edge delivers a falling edge on line to the installed handler.
func (f *FakeBoard) Edge(line Line) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if h != nil {
		h(line)
	}
}

// Relay returns the last written relay level.
func (f *FakeBoard) Relay(side logic.Side) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.relays[side.Index()]
}

// BillAcceptor returns whether the acceptor is enabled.
func (f *FakeBoard) BillAcceptor() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.billOn
}

// Writes returns the number of successful output writes.
func (f *FakeBoard) Writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

// Closed returns true once Close has been called.
func (f *FakeBoard) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// FailReads makes Asserted return err. A nil err clears the failure.
func (f *FakeBoard) FailReads(err error) {
	f.mu.Lock()
	f.readErr = err
	f.mu.Unlock()
}

// FailWrites makes output writes return err. A nil err clears the failure.
func (f *FakeBoard) FailWrites(err error) {
	f.mu.Lock()
	f.writeErr = err
	f.mu.Unlock()
}
