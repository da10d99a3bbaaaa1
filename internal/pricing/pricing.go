// Package pricing holds the pure money math for checkout. Everything is
// integer cents, no I/O.
package pricing

import "github.com/forfit/storefront/internal/models"

// LineItem is the minimal shape needed to price a cart line.
type LineItem struct {
	UnitPriceCents int
	Quantity       int
}

// CouponSpec mirrors the coupon fields relevant for pricing.
// PERCENT: Value is a percentage (10 => 10%). FIXED: Value is flat cents.
type CouponSpec struct {
	Type  models.CouponType
	Value int
}

// Subtotal sums unit price times quantity over all items.
func Subtotal(items []LineItem) int {
	sum := 0
	for _, it := range items {
		sum += it.UnitPriceCents * it.Quantity
	}
	return sum
}

// ApplyCoupon computes the discount for a coupon against a subtotal. The
// discount is clamped to [0, subtotal]: never negative, never more than the
// cart is worth.
func ApplyCoupon(subtotalCents int, coupon *CouponSpec) (discountCents, totalCents int) {
	if coupon == nil {
		return 0, subtotalCents
	}

	switch coupon.Type {
	case models.CouponPercent:
		discountCents = subtotalCents * coupon.Value / 100
	case models.CouponFixed:
		discountCents = coupon.Value
	}

	if discountCents < 0 {
		discountCents = 0
	}
	if discountCents > subtotalCents {
		discountCents = subtotalCents
	}

	return discountCents, subtotalCents - discountCents
}
