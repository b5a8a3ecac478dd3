package logic

// Accumulator converts cumulative meter readings into whole-cent debits for
// one outlet. It lives in the metering context only.
//
// Energy is never dropped: the remainder of each conversion stays in carry
// until enough has accumulated for another cent.
type Accumulator struct {
	unitsPerCent uint64
	last         uint64
	carry        uint64
	baselined    bool
	total        uint64
}

// NewAccumulator creates an accumulator billing unitsPerCent watt-hours per cent.
// unitsPerCent must be at least 1; Pricing guarantees that.
func NewAccumulator(unitsPerCent uint64) *Accumulator {
	if unitsPerCent == 0 {
		unitsPerCent = 1
	}
	return &Accumulator{unitsPerCent: unitsPerCent}
}

// Observe records a new cumulative register reading and returns the energy
// added since the previous reading.
//
// The first reading only establishes the baseline. A reading below the
// previous one means the meter register was reset or rolled over; the
// accumulator re-baselines without billing and reset is true.
func (a *Accumulator) Observe(reading uint64) (delta uint64, reset bool) {
	if !a.baselined {
		a.last = reading
		a.baselined = true
		return 0, false
	}
	if reading < a.last {
		a.last = reading
		return 0, true
	}
	delta = reading - a.last
	a.last = reading
	a.carry += delta
	a.total += delta
	return delta, false
}

// Billable returns the number of whole cents held in carry.
func (a *Accumulator) Billable() uint64 {
	return a.carry / a.unitsPerCent
}

// Commit removes cents worth of energy from carry once the matching debit
// has been accepted by the queue.
func (a *Accumulator) Commit(cents uint64) {
	used := cents * a.unitsPerCent
	if used > a.carry {
		used = a.carry
	}
	a.carry -= used
}

// Carry returns energy observed but not yet billed.
func (a *Accumulator) Carry() uint64 {
	return a.carry
}

// Last returns the last register reading seen.
func (a *Accumulator) Last() uint64 {
	return a.last
}

// Baselined reports whether a first reading has been observed.
func (a *Accumulator) Baselined() bool {
	return a.baselined
}

// Total returns all energy observed since startup, billed or not.
func (a *Accumulator) Total() uint64 {
	return a.total
}

// UnitsPerCent returns the billing granularity.
func (a *Accumulator) UnitsPerCent() uint64 {
	return a.unitsPerCent
}
