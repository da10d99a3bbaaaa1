package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/forfit/storefront/internal/models"
)

// StockError is returned when the conditional decrement touches zero rows,
// meaning another checkout got there first or stock was short all along.
type StockError struct {
	ProductID string
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s", e.ProductID)
}

type DB struct {
	Bun *bun.DB
}

// ProductWithStock joins a product with this store's inventory row. Quantity
// is -1 when the store carries no inventory row for the product.
type ProductWithStock struct {
	Product  models.Product
	Quantity int
}

// GetProductsWithInventory loads the requested products together with the
// store's inventory quantities in one round trip per table.
func (d *DB) GetProductsWithInventory(ctx context.Context, storeID string, productIDs []string) (map[string]ProductWithStock, error) {
	var products []models.Product
	err := d.Bun.NewSelect().
		Model(&products).
		Where("id IN (?)", bun.In(productIDs)).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}

	var inventories []models.StoreInventory
	err = d.Bun.NewSelect().
		Model(&inventories).
		Where("store_id = ?", storeID).
		Where("product_id IN (?)", bun.In(productIDs)).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("load inventory: %w", err)
	}

	stockByProduct := make(map[string]int, len(inventories))
	for _, inv := range inventories {
		stockByProduct[inv.ProductID] = inv.Quantity
	}

	result := make(map[string]ProductWithStock, len(products))
	for _, p := range products {
		qty, ok := stockByProduct[p.ID]
		if !ok {
			qty = -1
		}
		result[p.ID] = ProductWithStock{Product: p, Quantity: qty}
	}
	return result, nil
}

// GetCouponByCode returns nil when no coupon exists for the code.
func (d *DB) GetCouponByCode(ctx context.Context, code string) (*models.Coupon, error) {
	var coupon models.Coupon
	err := d.Bun.NewSelect().
		Model(&coupon).
		Where("code = ?", code).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &coupon, nil
}

func (d *DB) GetUser(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := d.Bun.NewSelect().
		Model(&user).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// SaveUserCustomerID caches the gateway customer id on the user record so
// later checkouts skip customer creation.
func (d *DB) SaveUserCustomerID(ctx context.Context, userID, customerID string) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.User)(nil)).
		Set("abacate_customer_id = ?", customerID).
		Where("id = ?", userID).
		Exec(ctx)
	return err
}

// CreateOrder persists the order with its items and delivery address in one
// transaction. This is the checkout durability point.
func (d *DB) CreateOrder(ctx context.Context, order *models.Order, items []models.OrderItem, delivery *models.OrderDelivery) error {
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(order).Exec(ctx); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		if len(items) > 0 {
			if _, err := tx.NewInsert().Model(&items).Exec(ctx); err != nil {
				return fmt.Errorf("insert items: %w", err)
			}
		}
		if delivery != nil {
			if _, err := tx.NewInsert().Model(delivery).Exec(ctx); err != nil {
				return fmt.Errorf("insert delivery: %w", err)
			}
		}
		return nil
	})
}

// DeleteOrder removes an order and its dependent rows. Used as the
// compensating action when the gateway call fails after local creation.
func (d *DB) DeleteOrder(ctx context.Context, orderID string) error {
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*models.OrderItem)(nil)).
			Where("order_id = ?", orderID).
			Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewDelete().
			Model((*models.OrderDelivery)(nil)).
			Where("order_id = ?", orderID).
			Exec(ctx); err != nil {
			return err
		}
		_, err := tx.NewDelete().
			Model((*models.Order)(nil)).
			Where("id = ?", orderID).
			Exec(ctx)
		return err
	})
}

// SetBilling records the external billing id and provider status on the order.
func (d *DB) SetBilling(ctx context.Context, orderID, billingID, status string) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("abacate_billing_id = ?", billingID).
		Set("abacate_status = ?", status).
		Where("id = ?", orderID).
		Exec(ctx)
	return err
}

// DecrementInventory subtracts the ordered quantities in one transaction.
// Each line uses a conditional atomic update (quantity >= requested) so
// concurrent checkouts cannot oversell; a zero-rows result rolls the whole
// transaction back with a StockError.
func (d *DB) DecrementInventory(ctx context.Context, storeID string, items []models.OrderItem) error {
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, item := range items {
			res, err := tx.NewUpdate().
				Model((*models.StoreInventory)(nil)).
				Set("quantity = quantity - ?", item.Quantity).
				Where("store_id = ?", storeID).
				Where("product_id = ?", item.ProductID).
				Where("quantity >= ?", item.Quantity).
				Exec(ctx)
			if err != nil {
				return err
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if affected == 0 {
				return &StockError{ProductID: item.ProductID}
			}
		}
		return nil
	})
}

// GetOrdersByUser returns the caller's orders, newest first, with items and
// delivery loaded.
func (d *DB) GetOrdersByUser(ctx context.Context, userID string) ([]models.Order, error) {
	var orders []models.Order
	err := d.Bun.NewSelect().
		Model(&orders).
		Relation("Items").
		Relation("Delivery").
		Where("\"order\".user_id = ?", userID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	if orders == nil {
		orders = []models.Order{}
	}
	return orders, nil
}
