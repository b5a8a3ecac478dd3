package display

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sweeney/evm-controller/internal/logic"
)

func TestFormatCents(t *testing.T) {
	assert.Equal(t, "0.00", FormatCents(0))
	assert.Equal(t, "0.10", FormatCents(10))
	assert.Equal(t, "12.30", FormatCents(1230))
	assert.Equal(t, "184467440737095516.15", FormatCents(math.MaxUint64))
}

func TestFormatKWh(t *testing.T) {
	assert.Equal(t, "0.000", FormatKWh(0))
	assert.Equal(t, "1.000", FormatKWh(1000))
	assert.Equal(t, "0.009", FormatKWh(9))
	assert.Equal(t, "12.345", FormatKWh(12345))
}

func TestMultiSkipsNil(t *testing.T) {
	var a, b int
	r := Multi(
		RendererFunc(func(logic.Frame) { a++ }),
		nil,
		RendererFunc(func(logic.Frame) { b++ }),
	)
	r.Render(logic.Frame{})
	r.Render(logic.Frame{})
	assert.Equal(t, 2, a)
	assert.Equal(t, 2, b)
}

func TestOnChangeForwardsOnlyChanges(t *testing.T) {
	var got []logic.Frame
	o := NewOnChange(RendererFunc(func(f logic.Frame) { got = append(got, f) }))

	f := logic.Frame{PriceCents: 1000}
	o.Render(f)
	o.Render(f)
	f.Left.BalanceCents = 10
	o.Render(f)
	o.Render(f)

	assert.Len(t, got, 2)
	assert.Equal(t, uint64(10), got[1].Left.BalanceCents)
}

func TestOnChangeForwardsFirstZeroFrame(t *testing.T) {
	n := 0
	o := NewOnChange(RendererFunc(func(logic.Frame) { n++ }))
	o.Render(logic.Frame{})
	assert.Equal(t, 1, n)
}

func TestLines(t *testing.T) {
	f := logic.Frame{
		Left:         logic.OutletFrame{BalanceCents: 1000, EnergyUnits: 1000, RelayOn: true},
		PendingCents: 0,
		PriceCents:   1000,
		Selected:     logic.Left,
	}
	lines := Lines(f)
	assert.Len(t, lines, 3)
	assert.Contains(t, lines[0], ">L")
	assert.Contains(t, lines[0], "10.00")
	assert.Contains(t, lines[0], "1.000kWh")
	assert.Contains(t, lines[0], "on")
	assert.Contains(t, lines[1], " R")
	assert.Contains(t, lines[2], "price 10.00/kWh")

	f.Selected = logic.None
	f.PendingCents = 510
	lines = Lines(f)
	assert.Len(t, lines, 4)
	assert.Equal(t, "select outlet 5.10", lines[2])
}
