// Package pricing holds the pure price math: position<->price conversion on
// a bounded range and pricing-mode application. No I/O happens here.
package pricing

import (
	"errors"

	"github.com/Cymoe/Estimate-Wave-App-sub001/pkg/models"
)

// ErrInvalidBasePrice marks an item whose base price is missing, so no mode
// can be applied to it.
var ErrInvalidBasePrice = errors.New("line item has no usable base price")

// NeutralPosition is the sentinel returned by PositionOf when an item
// declares no floor/ceiling and the notion of a slider position is undefined.
const NeutralPosition = 0.5

// Range is a bounded price range: Floor is the red-line the system must never
// go under, Ceiling the cap it must never exceed.
type Range struct {
	Floor   float64
	Base    float64
	Ceiling float64
}

// RangeOf derives the item's price range. ok is false when the item declares
// no floor/ceiling pair, in which case its price is simply the base.
func RangeOf(item *models.LineItem) (Range, bool) {
	if item.Floor == nil || item.Ceiling == nil {
		return Range{}, false
	}
	base := item.Price
	if item.BasePrice != nil {
		base = *item.BasePrice
	}
	return Range{Floor: *item.Floor, Base: base, Ceiling: *item.Ceiling}, true
}

// PriceAt maps a position in [0,1] onto the range. Positions outside [0,1]
// are clamped. A degenerate range (ceiling == floor) always yields the floor.
func PriceAt(r Range, position float64) float64 {
	position = clamp(position, 0, 1)
	return r.Floor + position*(r.Ceiling-r.Floor)
}

// PositionOf is the inverse of PriceAt. The price is clamped into
// [floor, ceiling] first; a degenerate range yields NeutralPosition.
func PositionOf(r Range, price float64) float64 {
	if r.Ceiling == r.Floor {
		return NeutralPosition
	}
	price = clamp(price, r.Floor, r.Ceiling)
	return (price - r.Floor) / (r.Ceiling - r.Floor)
}

// ApplyMode computes the price a mode assigns to an item: base price times
// the resolved multiplier, clamped into the item's declared range when one
// exists. The clamp is mandatory: a mode must never push a price past the
// red-line or the cap.
func ApplyMode(mode *models.PricingMode, item *models.LineItem) (float64, error) {
	if item.BasePrice == nil {
		return 0, ErrInvalidBasePrice
	}
	price := *item.BasePrice * mode.Multiplier(item.Category)
	if item.Floor != nil && item.Ceiling != nil {
		price = clamp(price, *item.Floor, *item.Ceiling)
	}
	return price, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
