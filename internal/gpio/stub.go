//go:build !linux

package gpio

import (
	"errors"

	"github.com/sweeney/evm-controller/internal/logic"
)

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// RealBoard is not available on non-Linux platforms.
type RealBoard struct{}

// NewRealBoard returns an error on non-Linux platforms.
func NewRealBoard(chipName string, pins Pins) (*RealBoard, error) {
	return nil, errUnsupported
}

// Asserted is not implemented on non-Linux platforms.
func (b *RealBoard) Asserted(Line) (bool, error) { return false, errUnsupported }

// SetRelay is not implemented on non-Linux platforms.
func (b *RealBoard) SetRelay(logic.Side, bool) error { return errUnsupported }

// SetBillAcceptor is not implemented on non-Linux platforms.
func (b *RealBoard) SetBillAcceptor(bool) error { return errUnsupported }

// SetEdgeHandler does nothing on non-Linux platforms.
func (b *RealBoard) SetEdgeHandler(EdgeHandler) {}

// Close is not implemented on non-Linux platforms.
func (b *RealBoard) Close() error { return nil }
