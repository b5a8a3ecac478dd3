package meter

import (
	"errors"
	"sync"
)

// FakeMeter is a test double holding one energy register per address.
type FakeMeter struct {
	mu        sync.Mutex
	registers map[uint8]uint32
	readErrs  map[uint8]error
	resets    map[uint8]int
	reads     map[uint8]int
}

// NewFakeMeter creates a meter with every register at zero.
func NewFakeMeter() *FakeMeter {
	return &FakeMeter{
		registers: make(map[uint8]uint32),
		readErrs:  make(map[uint8]error),
		resets:    make(map[uint8]int),
		reads:     make(map[uint8]int),
	}
}

// ReadEnergy returns the register or the injected error.
func (f *FakeMeter) ReadEnergy(addr uint8) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads[addr]++
	if err := f.readErrs[addr]; err != nil {
		return 0, err
	}
	return f.registers[addr], nil
}

// ResetEnergy zeroes the register.
func (f *FakeMeter) ResetEnergy(addr uint8) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.readErrs[addr]; err != nil {
		return err
	}
	f.registers[addr] = 0
	f.resets[addr]++
	return nil
}

// Set sets the register of addr.
func (f *FakeMeter) Set(addr uint8, wh uint32) {
	f.mu.Lock()
	f.registers[addr] = wh
	f.mu.Unlock()
}

// Add adds wh to the register of addr.
func (f *FakeMeter) Add(addr uint8, wh uint32) {
	f.mu.Lock()
	f.registers[addr] += wh
	f.mu.Unlock()
}

// Fail makes reads of addr return err. A nil err clears the failure.
func (f *FakeMeter) Fail(addr uint8, err error) {
	f.mu.Lock()
	f.readErrs[addr] = err
	f.mu.Unlock()
}

// Resets returns how many times addr was reset.
func (f *FakeMeter) Resets(addr uint8) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resets[addr]
}

// Reads returns how many reads addr has seen.
func (f *FakeMeter) Reads(addr uint8) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads[addr]
}

// ErrNoReply simulates a meter that does not answer.
var ErrNoReply = errors.New("meter: no reply")
