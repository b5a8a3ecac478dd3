// Package display defines the sink the control loop paints frames to.
package display

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/sweeney/evm-controller/internal/logic"
)

// Renderer consumes frames. Render is called from the control loop and
// must return quickly; slow sinks hand the frame off to their own goroutine.
type Renderer interface {
	Render(f logic.Frame)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(f logic.Frame)

// Render calls fn(f).
func (fn RendererFunc) Render(f logic.Frame) { fn(f) }

// Nop discards frames.
var Nop Renderer = RendererFunc(func(logic.Frame) {})

type multi []Renderer

// Multi fans a frame out to every non-nil renderer in order.
func Multi(rs ...Renderer) Renderer {
	out := make(multi, 0, len(rs))
	for _, r := range rs {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

func (m multi) Render(f logic.Frame) {
	for _, r := range m {
		r.Render(f)
	}
}

// OnChange forwards a frame only when it differs from the previous one.
// It is not safe for concurrent use.
type OnChange struct {
	next Renderer
	last logic.Frame
	seen bool
}

// NewOnChange wraps next.
func NewOnChange(next Renderer) *OnChange {
	return &OnChange{next: next}
}

// Render forwards f if it changed.
func (o *OnChange) Render(f logic.Frame) {
	if o.seen && f == o.last {
		return
	}
	o.last = f
	o.seen = true
	o.next.Render(f)
}

// FormatCents renders a currency amount with two decimals ("12.30").
func FormatCents(cents uint64) string {
	return fromUint(cents, -2).StringFixed(2)
}

// FormatKWh renders watt-hours as kilowatt-hours with three decimals ("1.000").
func FormatKWh(wh uint64) string {
	return fromUint(wh, -3).StringFixed(3)
}

func fromUint(v uint64, exp int32) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), exp)
}

// Lines renders the frame as panel text, one line per row.
func Lines(f logic.Frame) []string {
	lines := make([]string, 0, 4)
	for _, side := range logic.Sides {
		o := f.Outlet(side)
		marker := " "
		if f.Selected == side {
			marker = ">"
		}
		relay := "off"
		if o.RelayOn {
			relay = "on"
		}
		lines = append(lines, fmt.Sprintf("%s%s %8s %9skWh %s",
			marker, sideLetter(side), FormatCents(o.BalanceCents), FormatKWh(o.EnergyUnits), relay))
	}
	if f.PendingCents > 0 {
		lines = append(lines, fmt.Sprintf("select outlet %s", FormatCents(f.PendingCents)))
	}
	lines = append(lines, fmt.Sprintf("price %s/kWh", FormatCents(f.PriceCents)))
	return lines
}

func sideLetter(s logic.Side) string {
	if s == logic.Right {
		return "R"
	}
	return "L"
}
