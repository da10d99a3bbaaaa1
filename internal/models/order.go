package models

import (
	"time"

	"github.com/uptrace/bun"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderPaid      OrderStatus = "PAID"
	OrderCancelled OrderStatus = "CANCELLED"
)

// Order is created PENDING by checkout and only mutated by the webhook
// reconciler afterwards. PAID and CANCELLED are terminal.
type Order struct {
	bun.BaseModel `bun:"table:orders"`

	ID               string      `bun:"id,pk" json:"id"`
	UserID           string      `bun:"user_id" json:"user_id"`
	StoreID          string      `bun:"store_id" json:"store_id"`
	Status           OrderStatus `bun:"status" json:"status"`
	SubtotalCents    int         `bun:"subtotal_cents" json:"subtotal_cents"`
	DiscountCents    int         `bun:"discount_cents" json:"discount_cents"`
	ShippingCents    int         `bun:"shipping_cents" json:"shipping_cents"`
	TotalCents       int         `bun:"total_cents" json:"total_cents"`
	PointsEarned     int         `bun:"points_earned" json:"points_earned"`
	PointsRedeemed   int         `bun:"points_redeemed" json:"points_redeemed"`
	CouponCode       string      `bun:"coupon_code,nullzero" json:"coupon_code,omitempty"`
	InfluencerID     string      `bun:"influencer_id,nullzero" json:"influencer_id,omitempty"`
	AbacateBillingID string      `bun:"abacate_billing_id,nullzero" json:"abacate_billing_id,omitempty"`
	AbacateStatus    string      `bun:"abacate_status,nullzero" json:"abacate_status,omitempty"`
	CreatedAt        time.Time   `bun:"created_at,nullzero,default:current_timestamp" json:"created_at"`

	Items    []OrderItem    `bun:"rel:has-many,join:id=order_id" json:"items,omitempty"`
	Delivery *OrderDelivery `bun:"rel:has-one,join:id=order_id" json:"delivery,omitempty"`
}

// OrderItem snapshots the product name/code/price at order time so later
// catalog changes never touch historical orders.
type OrderItem struct {
	bun.BaseModel `bun:"table:order_items"`

	ID             string `bun:"id,pk" json:"id"`
	OrderID        string `bun:"order_id" json:"order_id"`
	ProductID      string `bun:"product_id" json:"product_id"`
	NameSnapshot   string `bun:"name_snapshot" json:"name_snapshot"`
	CodeSnapshot   string `bun:"code_snapshot" json:"code_snapshot"`
	UnitPriceCents int    `bun:"unit_price_cents" json:"unit_price_cents"`
	Quantity       int    `bun:"quantity" json:"quantity"`
	TotalCents     int    `bun:"total_cents" json:"total_cents"`
}

type OrderDelivery struct {
	bun.BaseModel `bun:"table:order_deliveries"`

	ID       string `bun:"id,pk" json:"id"`
	OrderID  string `bun:"order_id,unique" json:"order_id"`
	Street   string `bun:"street" json:"street"`
	Number   string `bun:"number" json:"number"`
	District string `bun:"district" json:"district"`
	City     string `bun:"city" json:"city"`
	State    string `bun:"state" json:"state"`
	Zip      string `bun:"zip" json:"zip"`
}
