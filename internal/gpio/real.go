//go:build linux

package gpio

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/warthog618/go-gpiocdev"

	"github.com/sweeney/evm-controller/internal/logic"
)

// RealBoard drives the machine through the Linux GPIO character device.
type RealBoard struct {
	chip    *gpiocdev.Chip
	inputs  map[Line]*gpiocdev.Line
	byPin   map[int]Line
	relays  [2]*gpiocdev.Line
	inhibit *gpiocdev.Line
	handler atomic.Pointer[EdgeHandler]
}

// NewRealBoard requests all lines on chip. Inputs get pull-ups and falling
// edge detection; outputs start safe (relays off, acceptor inhibited).
func NewRealBoard(chipName string, pins Pins) (*RealBoard, error) {
	if err := pins.Validate(); err != nil {
		return nil, err
	}

	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	// byPin is complete before the first watcher starts and read-only after.
	b := &RealBoard{
		chip:   chip,
		inputs: make(map[Line]*gpiocdev.Line),
		byPin:  pins.ByOffset(),
	}

	for _, line := range Inputs {
		offset, _ := pins.Input(line)
		l, err := chip.RequestLine(offset,
			gpiocdev.AsInput,
			gpiocdev.WithPullUp,
			gpiocdev.WithFallingEdge,
			gpiocdev.WithEventHandler(b.onEvent))
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("request %s pin %d: %w", line, offset, err)
		}
		b.inputs[line] = l
	}

	for i, offset := range []int{pins.RelayLeft, pins.RelayRight} {
		l, err := chip.RequestLine(offset, gpiocdev.AsOutput(0))
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("request relay pin %d: %w", offset, err)
		}
		b.relays[i] = l
	}

	// Inhibit is active-high: driving it high keeps the acceptor disabled.
	b.inhibit, err = chip.RequestLine(pins.BillInhibit, gpiocdev.AsOutput(1))
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("request inhibit pin %d: %w", pins.BillInhibit, err)
	}

	return b, nil
}

func (b *RealBoard) onEvent(evt gpiocdev.LineEvent) {
	if evt.Type != gpiocdev.LineEventFallingEdge {
		return
	}
	line, ok := b.byPin[evt.Offset]
	if !ok {
		return
	}
	if h := b.handler.Load(); h != nil && *h != nil {
		(*h)(line)
	}
}

// SetEdgeHandler installs the falling-edge callback.
func (b *RealBoard) SetEdgeHandler(fn EdgeHandler) {
	b.handler.Store(&fn)
}

// Asserted reads an input line. Raw low means asserted.
func (b *RealBoard) Asserted(line Line) (bool, error) {
	l, ok := b.inputs[line]
	if !ok {
		return false, fmt.Errorf("gpio: unknown line %s", line)
	}
	raw, err := l.Value()
	if err != nil {
		return false, fmt.Errorf("read %s: %w", line, err)
	}
	return raw == 0, nil
}

// SetRelay drives an outlet relay.
func (b *RealBoard) SetRelay(side logic.Side, on bool) error {
	if !side.Valid() {
		return fmt.Errorf("gpio: relay for side %s", side)
	}
	v := 0
	if on {
		v = 1
	}
	if err := b.relays[side.Index()].SetValue(v); err != nil {
		return fmt.Errorf("set %s relay: %w", side, err)
	}
	return nil
}

// SetBillAcceptor ties the inhibit line low to enable the acceptor.
func (b *RealBoard) SetBillAcceptor(enabled bool) error {
	v := 1
	if enabled {
		v = 0
	}
	if err := b.inhibit.SetValue(v); err != nil {
		return fmt.Errorf("set bill inhibit: %w", err)
	}
	return nil
}

// Close drives outputs safe and releases the lines.
func (b *RealBoard) Close() error {
	var errs []error

	b.SetEdgeHandler(nil)
	for i, l := range b.relays {
		if l == nil {
			continue
		}
		if err := l.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("release relay %d: %w", i, err))
		}
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close relay %d: %w", i, err))
		}
	}
	if b.inhibit != nil {
		if err := b.inhibit.SetValue(1); err != nil {
			errs = append(errs, fmt.Errorf("inhibit bill acceptor: %w", err))
		}
		if err := b.inhibit.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close inhibit: %w", err))
		}
	}
	for line, l := range b.inputs {
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", line, err))
		}
	}
	if b.chip != nil {
		if err := b.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	return errors.Join(errs...)
}
