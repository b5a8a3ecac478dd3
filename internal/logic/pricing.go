package logic

import (
	"errors"
	"fmt"
)

// ReferenceScale is the number of energy units (watt-hours) in one priced unit (kWh).
const ReferenceScale uint64 = 1000

// MaxPriceCents is the highest accepted price per kWh. Above it a single cent
// would buy less than one watt-hour and UnitsPerCent would floor to zero.
const MaxPriceCents uint64 = ReferenceScale

// ErrInvalidPrice is returned for prices outside (0, MaxPriceCents].
var ErrInvalidPrice = errors.New("invalid price")

// Pricing is the validated, immutable price configuration. It is safe to
// share between execution contexts.
type Pricing struct {
	priceCents   uint64
	unitsPerCent uint64
}

// NewPricing validates priceCents (cents per kWh) and derives the billing granularity.
func NewPricing(priceCents uint64) (Pricing, error) {
	if priceCents == 0 || priceCents > MaxPriceCents {
		return Pricing{}, fmt.Errorf("%w: %d cents per unit, want 1..%d", ErrInvalidPrice, priceCents, MaxPriceCents)
	}
	return Pricing{
		priceCents:   priceCents,
		unitsPerCent: ReferenceScale / priceCents,
	}, nil
}

// PriceCents returns the configured price in cents per kWh.
func (p Pricing) PriceCents() uint64 {
	return p.priceCents
}

// UnitsPerCent returns how many watt-hours are billed as one cent.
// Integer floor division: at 300 cents/kWh one cent bills 3 Wh, not 3.33.
func (p Pricing) UnitsPerCent() uint64 {
	return p.unitsPerCent
}

// EnergyUnits converts a balance into the watt-hours it buys, floored.
// Computed as q*1000 + r*1000/price to stay exact without a 128-bit product.
func (p Pricing) EnergyUnits(cents uint64) uint64 {
	if p.priceCents == 0 {
		return 0
	}
	q, r := cents/p.priceCents, cents%p.priceCents
	return q*ReferenceScale + r*ReferenceScale/p.priceCents
}
