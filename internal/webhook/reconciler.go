// Package webhook consumes AbacatePay payment-status callbacks and settles
// orders. Delivery is at-least-once and may be concurrent; the PENDING guard
// runs inside the settlement transaction so duplicates become no-ops.
package webhook

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/forfit/storefront/internal/logger"
	"github.com/forfit/storefront/internal/models"
	"github.com/forfit/storefront/internal/points"
)

const (
	EventBillingPaid      = "billing.paid"
	EventBillingFailed    = "billing.failed"
	EventBillingCancelled = "billing.cancelled"
)

// Error distinguishes webhook failure classes the way the provider needs to
// see them: 401 means do not retry with this signature, 400 means the payload
// is unusable. InternalError stays in the logs.
type Error struct {
	Category      string
	StatusCode    int
	PublicError   string
	InternalError string
}

func (e *Error) Error() string { return e.InternalError }

// Event is the provider's callback envelope. Only the billing id is pulled
// from data before the signature is verified; nothing else is trusted until
// then.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type eventData struct {
	ID string `json:"id"`
}

// Publisher mirrors the checkout-side producer for settlement events.
type Publisher interface {
	PublishOrderPaid(order models.Order) error
	PublishOrderCancelled(order models.Order) error
}

type Reconciler struct {
	DB        *bun.DB
	Ledger    *points.Ledger
	Publisher Publisher
	logger    *logger.Logger
}

func NewReconciler(db *bun.DB, ledger *points.Ledger, pub Publisher, log *logger.Logger) *Reconciler {
	return &Reconciler{DB: db, Ledger: ledger, Publisher: pub, logger: log}
}

// Process verifies and applies one provider event. The raw bytes are the ones
// received on the wire; the signature is computed over exactly those bytes
// with the secret of the store that owns the referenced order.
func (r *Reconciler) Process(ctx context.Context, raw []byte, sigHeader string) *Error {
	if ParseSignatureHeader(sigHeader) == "" {
		return &Error{
			Category:      "auth",
			StatusCode:    http.StatusUnauthorized,
			PublicError:   "invalid_signature_headers",
			InternalError: "missing or malformed signature header",
		}
	}

	// Lenient parse just to find the billing id. The payload stays untrusted
	// until the signature check passes.
	var evt Event
	_ = json.Unmarshal(raw, &evt)
	var data eventData
	if len(evt.Data) > 0 {
		_ = json.Unmarshal(evt.Data, &data)
	}
	if data.ID == "" {
		return &Error{
			Category:      "validation",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "no_billing_id",
			InternalError: "event payload has no billing id",
		}
	}

	order, store, err := r.orderByBilling(ctx, data.ID)
	if err != nil {
		return &Error{
			Category:      "processing",
			StatusCode:    http.StatusInternalServerError,
			PublicError:   "webhook processing error",
			InternalError: fmt.Sprintf("load order for billing %s: %v", data.ID, err),
		}
	}
	// No matching order means there is no secret to verify against; the event
	// is rejected the same way a bad signature would be.
	if order == nil || store == nil || store.AbacateWebhookSecret == "" {
		r.logger.LogSecurity("WEBHOOK", fmt.Sprintf("no configured store for billing %s", data.ID))
		return &Error{
			Category:      "auth",
			StatusCode:    http.StatusUnauthorized,
			PublicError:   "store_not_found_or_not_configured",
			InternalError: fmt.Sprintf("no order/store/secret for billing %s", data.ID),
		}
	}

	if !VerifySignature(raw, sigHeader, store.AbacateWebhookSecret) {
		r.logger.LogSecurity("WEBHOOK", fmt.Sprintf("signature mismatch for billing %s (store %s)", data.ID, store.Subdomain))
		return &Error{
			Category:      "auth",
			StatusCode:    http.StatusUnauthorized,
			PublicError:   "invalid_signature",
			InternalError: "webhook signature verification failed",
		}
	}

	switch evt.Type {
	case EventBillingPaid:
		return r.settlePaid(ctx, order)
	case EventBillingFailed, EventBillingCancelled:
		providerStatus := strings.ToUpper(strings.TrimPrefix(evt.Type, "billing."))
		return r.settleCancelled(ctx, order, providerStatus)
	default:
		// Unknown event types are acknowledged so the provider stops
		// re-delivering them.
		r.logger.Info("WEBHOOK", fmt.Sprintf("ignoring event type %q for billing %s", evt.Type, data.ID))
		return nil
	}
}

func (r *Reconciler) orderByBilling(ctx context.Context, billingID string) (*models.Order, *models.Store, error) {
	var order models.Order
	err := r.DB.NewSelect().
		Model(&order).
		Relation("Items").
		Where("abacate_billing_id = ?", billingID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}

	var store models.Store
	err = r.DB.NewSelect().
		Model(&store).
		Where("id = ?", order.StoreID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return &order, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return &order, &store, nil
}

// settlePaid transitions PENDING → PAID and applies the ledger and coupon
// side effects. The conditional status update is the idempotency guard: a
// duplicate event finds zero rows and the transaction commits with no writes.
func (r *Reconciler) settlePaid(ctx context.Context, order *models.Order) *Error {
	transitioned := false

	err := r.DB.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model((*models.Order)(nil)).
			Set("status = ?", models.OrderPaid).
			Set("abacate_status = ?", "PAID").
			Where("id = ?", order.ID).
			Where("status = ?", models.OrderPending).
			Exec(ctx)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return nil
		}
		transitioned = true

		if order.PointsRedeemed > 0 {
			if err := r.Ledger.DebitUser(ctx, tx, order.UserID, order.ID, order.PointsRedeemed, models.PointsRedeemOrder); err != nil {
				return fmt.Errorf("debit redeemed points: %w", err)
			}
		}
		if order.PointsEarned > 0 {
			if err := r.Ledger.CreditUser(ctx, tx, order.UserID, order.ID, order.PointsEarned, models.PointsEarnOrder); err != nil {
				return fmt.Errorf("credit earned points: %w", err)
			}
		}

		if order.CouponCode != "" {
			if err := r.redeemCoupon(ctx, tx, order); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return &Error{
			Category:      "processing",
			StatusCode:    http.StatusInternalServerError,
			PublicError:   "webhook processing error",
			InternalError: fmt.Sprintf("settle paid order %s: %v", order.ID, err),
		}
	}

	if !transitioned {
		r.logger.Info("WEBHOOK", fmt.Sprintf("order %s already settled, paid event is a no-op", order.ID))
		return nil
	}

	r.logger.LogOrder("PAID", order.ID, "payment confirmed, ledgers updated")

	if r.Publisher != nil {
		paid := *order
		paid.Status = models.OrderPaid
		if err := r.Publisher.PublishOrderPaid(paid); err != nil {
			r.logger.Warn("KAFKA", fmt.Sprintf("publish order.paid for %s: %v", order.ID, err))
		}
	}
	return nil
}

func (r *Reconciler) redeemCoupon(ctx context.Context, tx bun.Tx, order *models.Order) error {
	var coupon models.Coupon
	err := tx.NewSelect().
		Model(&coupon).
		Where("code = ?", order.CouponCode).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		// Coupon deleted since checkout; nothing left to count.
		return nil
	}
	if err != nil {
		return fmt.Errorf("load coupon %s: %w", order.CouponCode, err)
	}

	if _, err := tx.NewUpdate().
		Model((*models.Coupon)(nil)).
		Set("used_count = used_count + 1").
		Where("id = ?", coupon.ID).
		Exec(ctx); err != nil {
		return fmt.Errorf("increment coupon usage: %w", err)
	}

	redemption := &models.CouponRedemption{
		ID:                  uuid.NewString(),
		CouponID:            coupon.ID,
		OrderID:             order.ID,
		UserID:              order.UserID,
		AmountDiscountCents: order.DiscountCents,
	}
	if _, err := tx.NewInsert().Model(redemption).Exec(ctx); err != nil {
		return fmt.Errorf("record coupon redemption: %w", err)
	}

	if order.InfluencerID != "" {
		bonus := points.InfluencerBonus(order.DiscountCents)
		if err := r.Ledger.CreditInfluencer(ctx, tx, order.InfluencerID, order.ID, bonus); err != nil {
			return fmt.Errorf("credit influencer points: %w", err)
		}
	}
	return nil
}

// settleCancelled transitions PENDING → CANCELLED and restores the store
// inventory decremented by checkout.
func (r *Reconciler) settleCancelled(ctx context.Context, order *models.Order, providerStatus string) *Error {
	transitioned := false

	err := r.DB.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model((*models.Order)(nil)).
			Set("status = ?", models.OrderCancelled).
			Set("abacate_status = ?", providerStatus).
			Where("id = ?", order.ID).
			Where("status = ?", models.OrderPending).
			Exec(ctx)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return nil
		}
		transitioned = true

		for _, item := range order.Items {
			if _, err := tx.NewUpdate().
				Model((*models.StoreInventory)(nil)).
				Set("quantity = quantity + ?", item.Quantity).
				Where("store_id = ?", order.StoreID).
				Where("product_id = ?", item.ProductID).
				Exec(ctx); err != nil {
				return fmt.Errorf("restore inventory for %s: %w", item.ProductID, err)
			}
		}
		return nil
	})
	if err != nil {
		return &Error{
			Category:      "processing",
			StatusCode:    http.StatusInternalServerError,
			PublicError:   "webhook processing error",
			InternalError: fmt.Sprintf("cancel order %s: %v", order.ID, err),
		}
	}

	if !transitioned {
		r.logger.Info("WEBHOOK", fmt.Sprintf("order %s not pending, %s event is a no-op", order.ID, providerStatus))
		return nil
	}

	r.logger.LogOrder("CANCELLED", order.ID, fmt.Sprintf("provider status %s, inventory restored", providerStatus))

	if r.Publisher != nil {
		cancelled := *order
		cancelled.Status = models.OrderCancelled
		if err := r.Publisher.PublishOrderCancelled(cancelled); err != nil {
			r.logger.Warn("KAFKA", fmt.Sprintf("publish order.cancelled for %s: %v", order.ID, err))
		}
	}
	return nil
}
