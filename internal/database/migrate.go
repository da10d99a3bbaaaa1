package database

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/forfit/storefront/internal/models"
)

// tables in dependency order.
var tables = []any{
	(*models.Store)(nil),
	(*models.Product)(nil),
	(*models.StoreInventory)(nil),
	(*models.User)(nil),
	(*models.Coupon)(nil),
	(*models.Order)(nil),
	(*models.OrderItem)(nil),
	(*models.OrderDelivery)(nil),
	(*models.CouponRedemption)(nil),
	(*models.UserPointsAccount)(nil),
	(*models.UserPointsTransaction)(nil),
	(*models.InfluencerPointsAccount)(nil),
	(*models.InfluencerPointsTransaction)(nil),
}

// Migrate creates any missing tables. Schema changes beyond that are handled
// operationally.
func Migrate(ctx context.Context, db *bun.DB) error {
	for _, model := range tables {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", model, err)
		}
	}
	return nil
}

// Reset drops and recreates every table. Test helper; never call it against
// a production DSN.
func Reset(ctx context.Context, db *bun.DB) error {
	for _, model := range tables {
		if err := db.ResetModel(ctx, model); err != nil {
			return fmt.Errorf("reset table for %T: %w", model, err)
		}
	}
	return nil
}
