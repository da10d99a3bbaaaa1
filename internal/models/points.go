package models

import (
	"time"

	"github.com/uptrace/bun"
)

type PointsReason string

const (
	PointsEarnOrder       PointsReason = "EARN_ORDER"
	PointsRedeemOrder     PointsReason = "REDEEM_ORDER"
	PointsInfluencerBonus PointsReason = "INFLUENCER_BONUS"
)

// The balance columns are cached aggregates: every mutation is paired with an
// append-only transaction row inside the same database transaction, so the
// balance always equals the sum of its ledger entries.

type UserPointsAccount struct {
	bun.BaseModel `bun:"table:user_points_accounts"`

	UserID  string `bun:"user_id,pk" json:"user_id"`
	Balance int    `bun:"balance" json:"balance"`
}

type UserPointsTransaction struct {
	bun.BaseModel `bun:"table:user_points_transactions"`

	ID        string       `bun:"id,pk" json:"id"`
	UserID    string       `bun:"user_id" json:"user_id"`
	OrderID   string       `bun:"order_id,nullzero" json:"order_id,omitempty"`
	Points    int          `bun:"points" json:"points"`
	Reason    PointsReason `bun:"reason" json:"reason"`
	CreatedAt time.Time    `bun:"created_at,nullzero,default:current_timestamp" json:"created_at"`
}

type InfluencerPointsAccount struct {
	bun.BaseModel `bun:"table:influencer_points_accounts"`

	InfluencerID string `bun:"influencer_id,pk" json:"influencer_id"`
	Balance      int    `bun:"balance" json:"balance"`
}

type InfluencerPointsTransaction struct {
	bun.BaseModel `bun:"table:influencer_points_transactions"`

	ID           string       `bun:"id,pk" json:"id"`
	InfluencerID string       `bun:"influencer_id" json:"influencer_id"`
	OrderID      string       `bun:"order_id,nullzero" json:"order_id,omitempty"`
	Points       int          `bun:"points" json:"points"`
	Reason       PointsReason `bun:"reason" json:"reason"`
	CreatedAt    time.Time    `bun:"created_at,nullzero,default:current_timestamp" json:"created_at"`
}
