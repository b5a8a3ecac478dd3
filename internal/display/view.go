package display

import (
	"strings"

	"github.com/sweeney/evm-controller/internal/logic"
)

// OutletView is the wire form of one outlet in a frame.
type OutletView struct {
	Side         string `json:"side"`
	BalanceCents uint64 `json:"balance_cents"`
	Balance      string `json:"balance"`
	EnergyWh     uint64 `json:"energy_wh"`
	EnergyKWh    string `json:"energy_kwh"`
	Relay        bool   `json:"relay"`
}

// View is the wire form of a frame, shared by remote panels and the
// status page.
type View struct {
	Selected     string       `json:"selected"`
	PendingCents uint64       `json:"pending_cents"`
	Pending      string       `json:"pending"`
	PriceCents   uint64       `json:"price_cents"`
	Price        string       `json:"price"`
	Outlets      []OutletView `json:"outlets"`
	Lines        []string     `json:"lines"`
}

// NewView converts a frame to its wire form.
func NewView(f logic.Frame) View {
	v := View{
		Selected:     strings.ToLower(f.Selected.String()),
		PendingCents: f.PendingCents,
		Pending:      FormatCents(f.PendingCents),
		PriceCents:   f.PriceCents,
		Price:        FormatCents(f.PriceCents),
		Outlets:      make([]OutletView, 0, len(logic.Sides)),
		Lines:        Lines(f),
	}
	for _, side := range logic.Sides {
		o := f.Outlet(side)
		v.Outlets = append(v.Outlets, OutletView{
			Side:         strings.ToLower(side.String()),
			BalanceCents: o.BalanceCents,
			Balance:      FormatCents(o.BalanceCents),
			EnergyWh:     o.EnergyUnits,
			EnergyKWh:    FormatKWh(o.EnergyUnits),
			Relay:        o.RelayOn,
		})
	}
	return v
}
