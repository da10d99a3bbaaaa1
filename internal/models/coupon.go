package models

import (
	"time"

	"github.com/uptrace/bun"
)

type CouponType string

const (
	CouponPercent CouponType = "PERCENT"
	CouponFixed   CouponType = "FIXED"
)

// Coupon usage is only counted on confirmed payment, never at order creation,
// so abandoned carts do not burn redemptions.
type Coupon struct {
	bun.BaseModel `bun:"table:coupons"`

	ID           string     `bun:"id,pk" json:"id"`
	Code         string     `bun:"code,unique" json:"code"`
	Type         CouponType `bun:"type" json:"type"`
	Value        int        `bun:"value" json:"value"`
	Active       bool       `bun:"active" json:"active"`
	UsedCount    int        `bun:"used_count" json:"used_count"`
	InfluencerID string     `bun:"influencer_id,nullzero" json:"influencer_id,omitempty"`
}

// CouponRedemption records one confirmed use of a coupon.
type CouponRedemption struct {
	bun.BaseModel `bun:"table:coupon_redemptions"`

	ID                  string    `bun:"id,pk" json:"id"`
	CouponID            string    `bun:"coupon_id" json:"coupon_id"`
	OrderID             string    `bun:"order_id" json:"order_id"`
	UserID              string    `bun:"user_id" json:"user_id"`
	AmountDiscountCents int       `bun:"amount_discount_cents" json:"amount_discount_cents"`
	CreatedAt           time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at"`
}
