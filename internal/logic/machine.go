package logic

import "math"

// Outcome reports what the caller must do after an event has been applied.
type Outcome struct {
	// Rearm is true when the event counts as customer activity and the
	// inactivity timeout must restart.
	Rearm bool
	// Ignored is true when the event carried an invalid side and changed nothing.
	Ignored bool
}

// Machine is the side-selection state machine together with the ledger and
// the pending balance. It is owned by the control loop.
type Machine struct {
	ledger   Ledger
	pending  uint64
	selected Side
	counts   EventCounts
}

// NewMachine returns a machine with empty balances and no side selected.
func NewMachine() *Machine {
	return &Machine{}
}

// Apply mutates the machine according to a single event.
func (m *Machine) Apply(e Event) Outcome {
	switch e.Kind {
	case EventButtonPressed:
		if !e.Side.Valid() {
			return Outcome{Ignored: true}
		}
		m.selected = e.Side
		if m.pending > 0 {
			m.ledger.Credit(e.Side, m.pending)
			m.pending = 0
		}
		m.counts.Buttons++
		return Outcome{Rearm: true}

	case EventCoinInserted:
		m.credit(CoinCents)
		m.counts.Coins++
		return Outcome{Rearm: true}

	case EventBillInserted:
		m.credit(BillCents)
		m.counts.Bills++
		return Outcome{Rearm: true}

	case EventDebitEnergy:
		if !e.Side.Valid() {
			return Outcome{Ignored: true}
		}
		m.ledger.Debit(e.Side, e.Cents)
		m.counts.Debits++
		m.counts.DebitedCents += e.Cents
		return Outcome{}
	}
	return Outcome{Ignored: true}
}

// credit routes funds to the selected outlet, or to pending when none is selected.
func (m *Machine) credit(cents uint64) {
	if m.selected == None {
		if m.pending > math.MaxUint64-cents {
			m.pending = math.MaxUint64
			return
		}
		m.pending += cents
		return
	}
	m.ledger.Credit(m.selected, cents)
}

// Expire handles the inactivity timeout: future credits go to pending again.
// Balances are not touched.
func (m *Machine) Expire() {
	if m.selected != None {
		m.counts.Expirations++
	}
	m.selected = None
}

// Selected returns the outlet that currently receives new funds.
func (m *Machine) Selected() Side {
	return m.selected
}

// Pending returns funds inserted while no side was selected.
func (m *Machine) Pending() uint64 {
	return m.pending
}

// Balance returns the ledger balance of side.
func (m *Machine) Balance(side Side) uint64 {
	return m.ledger.Balance(side)
}

// Ledger exposes the ledger for read-only consumers such as RelayStates.
func (m *Machine) Ledger() *Ledger {
	return &m.ledger
}

// BillAcceptorEnabled reports whether the bill acceptor should take bills.
func (m *Machine) BillAcceptorEnabled() bool {
	return m.selected != None
}

// Counts returns a copy of the applied event counters.
func (m *Machine) Counts() EventCounts {
	return m.counts
}

// Frame builds the display snapshot. Energy units are derived from the
// balance and price on every call and never stored.
func (m *Machine) Frame(p Pricing) Frame {
	relays := RelayStates(&m.ledger)
	outlet := func(side Side) OutletFrame {
		cents := m.ledger.Balance(side)
		return OutletFrame{
			BalanceCents: cents,
			EnergyUnits:  p.EnergyUnits(cents),
			RelayOn:      relays[side.Index()],
		}
	}
	return Frame{
		Left:         outlet(Left),
		Right:        outlet(Right),
		PendingCents: m.pending,
		PriceCents:   p.PriceCents(),
		Selected:     m.selected,
		Counts:       m.counts,
	}
}
