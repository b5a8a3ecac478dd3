// Package gpio provides the machine's digital I/O with hardware abstraction.
// The real implementation uses Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import (
	"fmt"

	"github.com/sweeney/evm-controller/internal/logic"
)

// Line identifies one of the board's input lines.
type Line int

const (
	ButtonLeft Line = iota
	ButtonRight
	CoinPulse
	BillPulse
)

// Inputs lists every input line.
var Inputs = [...]Line{ButtonLeft, ButtonRight, CoinPulse, BillPulse}

func (l Line) String() string {
	switch l {
	case ButtonLeft:
		return "button_left"
	case ButtonRight:
		return "button_right"
	case CoinPulse:
		return "coin"
	case BillPulse:
		return "bill"
	default:
		return fmt.Sprintf("line(%d)", int(l))
	}
}

// IsButton reports whether l is one of the side buttons.
func (l Line) IsButton() bool {
	return l == ButtonLeft || l == ButtonRight
}

// ButtonSide maps a button line to its outlet. Other lines map to None.
func ButtonSide(l Line) logic.Side {
	switch l {
	case ButtonLeft:
		return logic.Left
	case ButtonRight:
		return logic.Right
	default:
		return logic.None
	}
}

// EdgeHandler is called for every falling edge on an input line. It may be
// called from any goroutine and must not block.
type EdgeHandler func(line Line)

// Board is the machine's digital I/O boundary.
type Board interface {
	// Asserted returns the logical state of an input line.
	// Inputs are active-low with pull-up: raw low = asserted.
	Asserted(line Line) (bool, error)

	// SetRelay energizes or releases an outlet relay.
	SetRelay(side logic.Side, on bool) error

	// SetBillAcceptor enables or inhibits the bill acceptor.
	SetBillAcceptor(enabled bool) error

	// SetEdgeHandler installs the falling-edge callback. A nil handler
	// discards edges.
	SetEdgeHandler(fn EdgeHandler)

	// Close drives outputs safe (relays off, acceptor inhibited) and
	// releases GPIO resources.
	Close() error
}

// DefaultChip is the GPIO character device of the board.
const DefaultChip = "gpiochip0"

// Pins holds line offsets on the GPIO chip.
type Pins struct {
	ButtonLeft  int `koanf:"button_left"`
	ButtonRight int `koanf:"button_right"`
	Coin        int `koanf:"coin"`
	Bill        int `koanf:"bill"`
	BillInhibit int `koanf:"bill_inhibit"`
	RelayLeft   int `koanf:"relay_left"`
	RelayRight  int `koanf:"relay_right"`
}

// DefaultPins is the wiring of the reference board.
var DefaultPins = Pins{
	ButtonLeft:  11,
	ButtonRight: 14,
	Coin:        5,
	Bill:        18,
	BillInhibit: 19, // low enables the acceptor
	RelayLeft:   17,
	RelayRight:  16,
}

// Offsets returns every configured offset, inputs first.
func (p Pins) Offsets() []int {
	return []int{p.ButtonLeft, p.ButtonRight, p.Coin, p.Bill, p.BillInhibit, p.RelayLeft, p.RelayRight}
}

// Input returns the offset of an input line.
func (p Pins) Input(l Line) (int, bool) {
	switch l {
	case ButtonLeft:
		return p.ButtonLeft, true
	case ButtonRight:
		return p.ButtonRight, true
	case CoinPulse:
		return p.Coin, true
	case BillPulse:
		return p.Bill, true
	default:
		return 0, false
	}
}

// ByOffset maps each input offset to its line.
func (p Pins) ByOffset() map[int]Line {
	m := make(map[int]Line, len(Inputs))
	for _, line := range Inputs {
		offset, _ := p.Input(line)
		m[offset] = line
	}
	return m
}

// Validate rejects duplicate or negative offsets.
func (p Pins) Validate() error {
	seen := make(map[int]bool)
	for _, off := range p.Offsets() {
		if off < 0 {
			return fmt.Errorf("gpio: negative offset %d", off)
		}
		if seen[off] {
			return fmt.Errorf("gpio: offset %d assigned twice", off)
		}
		seen[off] = true
	}
	return nil
}
