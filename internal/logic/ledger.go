package logic

import "math"

// Ledger holds the authoritative currency balance of each outlet.
type Ledger struct {
	balance [2]uint64
}

// Credit adds cents to side, saturating at the maximum representable balance.
func (l *Ledger) Credit(side Side, cents uint64) {
	i := side.Index()
	if l.balance[i] > math.MaxUint64-cents {
		l.balance[i] = math.MaxUint64
		return
	}
	l.balance[i] += cents
}

// Debit subtracts cents from side. An overdraft floors the balance at zero.
func (l *Ledger) Debit(side Side, cents uint64) {
	i := side.Index()
	if cents >= l.balance[i] {
		l.balance[i] = 0
		return
	}
	l.balance[i] -= cents
}

// Balance returns the balance of side in cents.
func (l *Ledger) Balance(side Side) uint64 {
	return l.balance[side.Index()]
}

// RelayStates returns the desired relay level per outlet: energized iff the
// outlet has a positive balance. Index with Side.Index().
func RelayStates(l *Ledger) [2]bool {
	return [2]bool{l.balance[0] > 0, l.balance[1] > 0}
}
