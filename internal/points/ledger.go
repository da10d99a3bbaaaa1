// Package points maintains the loyalty balances for customers and
// influencers. Balances are cached aggregates over the append-only
// transaction tables: every mutation writes both rows inside the caller's
// database transaction.
package points

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/forfit/storefront/internal/models"
)

const (
	// PointValueCents is what one redeemed point is worth.
	PointValueCents = 10
	// CentsPerPoint: customers earn 1 point per R$10 of subtotal.
	CentsPerPoint = 1000
	// InfluencerCentsPerPoint: influencers earn floor(discount/10) points.
	InfluencerCentsPerPoint = 10
)

// EarnedForSubtotal returns the points a customer earns on an order.
func EarnedForSubtotal(subtotalCents int) int {
	if subtotalCents <= 0 {
		return 0
	}
	return subtotalCents / CentsPerPoint
}

// InfluencerBonus returns the points an influencer earns from a coupon
// discount, credited only on confirmed payment.
func InfluencerBonus(discountCents int) int {
	if discountCents <= 0 {
		return 0
	}
	return discountCents / InfluencerCentsPerPoint
}

// ClampRedeem caps a redemption request at the available balance. A stale
// client asking for more than it has silently gets less instead of an error.
func ClampRedeem(requested, available int) int {
	if requested < 0 {
		return 0
	}
	if requested > available {
		return available
	}
	return requested
}

type Ledger struct {
	DB bun.IDB
}

func NewLedger(db bun.IDB) *Ledger {
	return &Ledger{DB: db}
}

// Available returns the customer's current balance, zero when no account
// exists yet.
func (l *Ledger) Available(ctx context.Context, userID string) (int, error) {
	var acc models.UserPointsAccount
	err := l.DB.NewSelect().
		Model(&acc).
		Where("user_id = ?", userID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return acc.Balance, nil
}

// CreditUser adds points to a customer balance and logs the ledger row.
// Must run inside the caller's transaction.
func (l *Ledger) CreditUser(ctx context.Context, tx bun.Tx, userID, orderID string, pts int, reason models.PointsReason) error {
	return l.applyUser(ctx, tx, userID, orderID, pts, reason)
}

// DebitUser removes points from a customer balance and logs the ledger row.
func (l *Ledger) DebitUser(ctx context.Context, tx bun.Tx, userID, orderID string, pts int, reason models.PointsReason) error {
	return l.applyUser(ctx, tx, userID, orderID, -pts, reason)
}

func (l *Ledger) applyUser(ctx context.Context, tx bun.Tx, userID, orderID string, delta int, reason models.PointsReason) error {
	if delta == 0 {
		return nil
	}

	acc := &models.UserPointsAccount{UserID: userID, Balance: delta}
	_, err := tx.NewInsert().
		Model(acc).
		On("CONFLICT (user_id) DO UPDATE").
		Set("balance = balance + ?", delta).
		Exec(ctx)
	if err != nil {
		return err
	}

	txn := &models.UserPointsTransaction{
		ID:      uuid.NewString(),
		UserID:  userID,
		OrderID: orderID,
		Points:  delta,
		Reason:  reason,
	}
	_, err = tx.NewInsert().Model(txn).Exec(ctx)
	return err
}

// CreditInfluencer adds points to an influencer balance with its own ledger
// row. Must run inside the caller's transaction.
func (l *Ledger) CreditInfluencer(ctx context.Context, tx bun.Tx, influencerID, orderID string, pts int) error {
	if pts <= 0 {
		return nil
	}

	acc := &models.InfluencerPointsAccount{InfluencerID: influencerID, Balance: pts}
	_, err := tx.NewInsert().
		Model(acc).
		On("CONFLICT (influencer_id) DO UPDATE").
		Set("balance = balance + ?", pts).
		Exec(ctx)
	if err != nil {
		return err
	}

	txn := &models.InfluencerPointsTransaction{
		ID:           uuid.NewString(),
		InfluencerID: influencerID,
		OrderID:      orderID,
		Points:       pts,
		Reason:       models.PointsInfluencerBonus,
	}
	_, err = tx.NewInsert().Model(txn).Exec(ctx)
	return err
}
