package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPricing(t *testing.T) {
	p := Pricing{TaxRatePercent: 18, FreeShippingThreshold: 50000, FlatShippingFee: 5000}

	tests := []struct {
		name     string
		total    int64
		discount int64
		want     Totals
	}{
		{"flat shipping", 25000, 0, Totals{Total: 25000, Tax: 4500, Shipping: 5000, Final: 34500}},
		{"threshold is exclusive", 50000, 0, Totals{Total: 50000, Tax: 9000, Shipping: 5000, Final: 64000}},
		{"free shipping", 50001, 0, Totals{Total: 50001, Tax: 9000, Shipping: 0, Final: 59001}},
		{"tax rounds half up", 25, 0, Totals{Total: 25, Tax: 5, Shipping: 5000, Final: 5030}},
		{"tax rounds down", 22, 0, Totals{Total: 22, Tax: 4, Shipping: 5000, Final: 5026}},
		{"discount", 60000, 1000, Totals{Total: 60000, Tax: 10800, Shipping: 0, Discount: 1000, Final: 69800}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Price(tt.total, tt.discount))
		})
	}
}
