// Package meter talks to the outlet energy meters.
package meter

import (
	"errors"
	"fmt"
)

// Meter reads and resets cumulative energy registers. Each outlet's meter
// has its own bus address. Implementations are not required to be safe for
// concurrent use; only the metering pipeline calls them.
type Meter interface {
	// ReadEnergy returns the cumulative energy register in Wh.
	ReadEnergy(addr uint8) (uint32, error)

	// ResetEnergy clears the energy register.
	ResetEnergy(addr uint8) error
}

// Default bus addresses. Each meter is programmed once before installation.
const (
	AddrLeft  uint8 = 0x01
	AddrRight uint8 = 0x02
)

var (
	// ErrCRC is returned when a reply fails its checksum.
	ErrCRC = errors.New("meter: crc mismatch")

	// ErrShortFrame is returned when the meter stops sending mid-reply.
	ErrShortFrame = errors.New("meter: short frame")

	// ErrUnexpectedReply is returned when a reply does not match the request.
	ErrUnexpectedReply = errors.New("meter: unexpected reply")
)

// ExceptionError is a Modbus exception reply.
type ExceptionError struct {
	Addr     uint8
	Function uint8
	Code     uint8
}

func (e *ExceptionError) Error() string {
	return fmt.Sprintf("meter 0x%02x: exception 0x%02x on function 0x%02x", e.Addr, e.Code, e.Function)
}
