package service

import (
	"github.com/shopspring/decimal"
)

// Pricing holds the order pricing policy in minor units
type Pricing struct {
	TaxRatePercent        int64
	FreeShippingThreshold int64
	FlatShippingFee       int64
}

// Totals is the priced breakdown of an order
type Totals struct {
	Total    int64
	Tax      int64
	Shipping int64
	Discount int64
	Final    int64
}

// Price computes tax, shipping and the final amount for an item total.
// Tax rounds half away from zero to the nearest minor unit.
func (p Pricing) Price(total, discount int64) Totals {
	tax := decimal.NewFromInt(total).
		Mul(decimal.NewFromInt(p.TaxRatePercent)).
		Div(decimal.NewFromInt(100)).
		Round(0).
		IntPart()

	shipping := p.FlatShippingFee
	if total > p.FreeShippingThreshold {
		shipping = 0
	}

	return Totals{
		Total:    total,
		Tax:      tax,
		Shipping: shipping,
		Discount: discount,
		Final:    total + tax + shipping - discount,
	}
}
