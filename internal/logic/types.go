// Package logic contains the pure billing and selection rules of the vending machine.
// This package has NO external dependencies (no GPIO, meters, MQTT, OS, or time.Sleep).
// Everything here is owned by exactly one execution context and is not safe for
// concurrent use.
package logic

import "fmt"

// Side identifies one of the two outlets, or no outlet at all.
type Side uint8

const (
	None Side = iota
	Left
	Right
)

// Sides lists the two physical outlets in display order.
var Sides = [2]Side{Left, Right}

// Index returns the array position of an outlet side (Left=0, Right=1).
// It panics for None, which has no outlet.
func (s Side) Index() int {
	switch s {
	case Left:
		return 0
	case Right:
		return 1
	}
	panic(fmt.Sprintf("logic: side %d has no outlet", s))
}

// Valid reports whether s names a physical outlet.
func (s Side) Valid() bool {
	return s == Left || s == Right
}

func (s Side) String() string {
	switch s {
	case None:
		return "NONE"
	case Left:
		return "LEFT"
	case Right:
		return "RIGHT"
	}
	return fmt.Sprintf("SIDE(%d)", uint8(s))
}

// Fixed denominations, one pulse = one unit.
const (
	CoinCents uint64 = 10
	BillCents uint64 = 500
)

// EventKind names the variant of an Event.
type EventKind uint8

const (
	EventButtonPressed EventKind = iota + 1
	EventCoinInserted
	EventBillInserted
	EventDebitEnergy
)

func (k EventKind) String() string {
	switch k {
	case EventButtonPressed:
		return "BUTTON_PRESSED"
	case EventCoinInserted:
		return "COIN_INSERTED"
	case EventBillInserted:
		return "BILL_INSERTED"
	case EventDebitEnergy:
		return "DEBIT_ENERGY"
	}
	return fmt.Sprintf("EVENT(%d)", uint8(k))
}

// Event is a single input to the control loop. It is a value type and is
// never modified after construction; use the constructors below.
type Event struct {
	Kind  EventKind
	Side  Side   // ButtonPressed, DebitEnergy
	Cents uint64 // DebitEnergy
}

// ButtonPressed selects side as the destination of new funds.
func ButtonPressed(side Side) Event {
	return Event{Kind: EventButtonPressed, Side: side}
}

// CoinInserted credits one coin.
func CoinInserted() Event {
	return Event{Kind: EventCoinInserted}
}

// BillInserted credits one bill.
func BillInserted() Event {
	return Event{Kind: EventBillInserted}
}

// DebitEnergy deducts cents worth of metered energy from side.
func DebitEnergy(side Side, cents uint64) Event {
	return Event{Kind: EventDebitEnergy, Side: side, Cents: cents}
}

func (e Event) String() string {
	switch e.Kind {
	case EventButtonPressed:
		return fmt.Sprintf("%s{%s}", e.Kind, e.Side)
	case EventDebitEnergy:
		return fmt.Sprintf("%s{%s,%d}", e.Kind, e.Side, e.Cents)
	}
	return e.Kind.String()
}

// EventCounts tracks the number of applied events since startup.
type EventCounts struct {
	Buttons      int
	Coins        int
	Bills        int
	Debits       int
	DebitedCents uint64
	Expirations  int
}

// OutletFrame is the display view of one outlet.
type OutletFrame struct {
	BalanceCents uint64
	EnergyUnits  uint64 // watt-hours purchasable with BalanceCents at the current price
	RelayOn      bool
}

// Frame is a read-only snapshot handed to display renderers.
// It is comparable, so renderers can skip unchanged frames with ==.
type Frame struct {
	Left         OutletFrame
	Right        OutletFrame
	PendingCents uint64
	PriceCents   uint64
	Selected     Side
	Counts       EventCounts
}

// Outlet returns the frame of the given outlet side.
func (f Frame) Outlet(side Side) OutletFrame {
	if side == Right {
		return f.Right
	}
	return f.Left
}
