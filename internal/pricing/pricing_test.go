package pricing_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/forfit/storefront/internal/models"
	"github.com/forfit/storefront/internal/pricing"
)

func TestSubtotal(t *testing.T) {
	assert.Equal(t, 0, pricing.Subtotal(nil))

	items := []pricing.LineItem{
		{UnitPriceCents: 2390, Quantity: 2},
		{UnitPriceCents: 1990, Quantity: 1},
	}
	assert.Equal(t, 2390*2+1990, pricing.Subtotal(items))
}

func TestApplyCouponNil(t *testing.T) {
	discount, total := pricing.ApplyCoupon(5000, nil)
	assert.Equal(t, 0, discount)
	assert.Equal(t, 5000, total)
}

func TestApplyCouponPercent(t *testing.T) {
	tests := []struct {
		name         string
		subtotal     int
		value        int
		wantDiscount int
	}{
		{"ten percent", 2000, 10, 200},
		{"floors fractions", 999, 10, 99},
		{"zero percent", 2000, 0, 0},
		{"full percent", 2000, 100, 2000},
		{"over hundred clamps to subtotal", 2000, 150, 2000},
		{"zero subtotal", 0, 50, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			discount, total := pricing.ApplyCoupon(tt.subtotal, &pricing.CouponSpec{
				Type:  models.CouponPercent,
				Value: tt.value,
			})
			assert.Equal(t, tt.wantDiscount, discount)
			assert.Equal(t, tt.subtotal-tt.wantDiscount, total)
		})
	}
}

func TestApplyCouponFixed(t *testing.T) {
	tests := []struct {
		name         string
		subtotal     int
		value        int
		wantDiscount int
	}{
		{"flat amount", 5000, 1000, 1000},
		{"exceeds subtotal clamps", 500, 1000, 500},
		{"negative value clamps to zero", 5000, -300, 0},
		{"exact subtotal", 1000, 1000, 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			discount, total := pricing.ApplyCoupon(tt.subtotal, &pricing.CouponSpec{
				Type:  models.CouponFixed,
				Value: tt.value,
			})
			assert.Equal(t, tt.wantDiscount, discount)
			assert.Equal(t, tt.subtotal-tt.wantDiscount, total)
		})
	}
}

// Discounts stay inside [0, subtotal] across a sweep of percent values.
func TestApplyCouponPercentBounds(t *testing.T) {
	for subtotal := 0; subtotal <= 5000; subtotal += 777 {
		for value := 0; value <= 100; value += 7 {
			discount, total := pricing.ApplyCoupon(subtotal, &pricing.CouponSpec{
				Type:  models.CouponPercent,
				Value: value,
			})
			assert.Equal(t, subtotal*value/100, discount)
			assert.GreaterOrEqual(t, discount, 0)
			assert.LessOrEqual(t, discount, subtotal)
			assert.Equal(t, subtotal, discount+total)
		}
	}
}
