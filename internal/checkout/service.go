package checkout

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/forfit/storefront/internal/abacatepay"
	checkoutdb "github.com/forfit/storefront/internal/checkout/db"
	"github.com/forfit/storefront/internal/logger"
	"github.com/forfit/storefront/internal/models"
	"github.com/forfit/storefront/internal/points"
	"github.com/forfit/storefront/internal/pricing"
	"github.com/forfit/storefront/internal/shipping"
)

// Storage is the slice of the datastore the orchestrator needs.
type Storage interface {
	GetProductsWithInventory(ctx context.Context, storeID string, productIDs []string) (map[string]checkoutdb.ProductWithStock, error)
	GetCouponByCode(ctx context.Context, code string) (*models.Coupon, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
	SaveUserCustomerID(ctx context.Context, userID, customerID string) error
	CreateOrder(ctx context.Context, order *models.Order, items []models.OrderItem, delivery *models.OrderDelivery) error
	DeleteOrder(ctx context.Context, orderID string) error
	SetBilling(ctx context.Context, orderID, billingID, status string) error
	DecrementInventory(ctx context.Context, storeID string, items []models.OrderItem) error
	GetOrdersByUser(ctx context.Context, userID string) ([]models.Order, error)
}

// Gateway is the payment-provider surface used during checkout. The API key
// is the tenant's, passed per call.
type Gateway interface {
	CreateCustomer(ctx context.Context, apiKey string, in abacatepay.CustomerInput) (*abacatepay.Customer, error)
	CreateBilling(ctx context.Context, apiKey string, in abacatepay.BillingInput) (*abacatepay.Billing, error)
}

// PointsReader exposes the balance lookup used for redemption clamping.
type PointsReader interface {
	Available(ctx context.Context, userID string) (int, error)
}

// Publisher streams order lifecycle events. Publish failures are logged, not
// surfaced; the checkout outcome never depends on the broker.
type Publisher interface {
	PublishOrderCreated(order models.Order) error
}

type Service struct {
	DB          Storage
	Gateway     Gateway
	Points      PointsReader
	Shipping    shipping.Calculator
	Publisher   Publisher
	FrontendURL string
	logger      *logger.Logger
}

func NewService(db Storage, gateway Gateway, pts PointsReader, ship shipping.Calculator, pub Publisher, frontendURL string, log *logger.Logger) *Service {
	return &Service{
		DB:          db,
		Gateway:     gateway,
		Points:      pts,
		Shipping:    ship,
		Publisher:   pub,
		FrontendURL: strings.TrimRight(frontendURL, "/"),
		logger:      log,
	}
}

// ---------------- REQUEST / RESPONSE ----------------

type CartItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type DeliveryInput struct {
	Street   string `json:"street"`
	Number   string `json:"number"`
	District string `json:"district"`
	City     string `json:"city"`
	State    string `json:"state"`
	Zip      string `json:"zip"`
}

type Request struct {
	Items        []CartItem    `json:"items"`
	Delivery     DeliveryInput `json:"delivery"`
	CouponCode   string        `json:"couponCode,omitempty"`
	PointsRedeem int           `json:"pointsRedeem,omitempty"`
}

type PaymentInfo struct {
	BillingID string `json:"billingId"`
	URL       string `json:"url"`
	QRCode    string `json:"qrcode,omitempty"`
}

type Result struct {
	OrderID    string       `json:"orderId"`
	TotalCents int          `json:"totalCents"`
	Payment    *PaymentInfo `json:"payment"`
}

// ---------------- ERRORS ----------------

type InvalidProductsError struct {
	Missing []string
}

func (e *InvalidProductsError) Error() string {
	return fmt.Sprintf("invalid products: %v", e.Missing)
}

type InsufficientStockError struct {
	ProductID string
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s (available %d)", e.ProductID, e.Available)
}

var ErrInvalidCoupon = errors.New("invalid coupon")

// GatewayError marks upstream payment-provider failures after which the
// local order was rolled back.
type GatewayError struct {
	Stage string
	Err   error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway %s failed: %v", e.Stage, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// ---------------- CHECKOUT ----------------

// Checkout runs the full saga: validate cart against tenant inventory, price
// it, persist a PENDING order, create the payment link with the tenant's own
// API key, then decrement inventory. A gateway failure deletes the
// just-created order so no partial state survives. Each call creates a new
// order; the operation is deliberately not idempotent.
func (s *Service) Checkout(ctx context.Context, store *models.Store, userID string, req Request) (*Result, error) {
	if len(req.Items) == 0 {
		return nil, &InvalidProductsError{}
	}

	// Step 1: resolve products and this store's stock.
	productIDs := make([]string, len(req.Items))
	for i, item := range req.Items {
		productIDs[i] = item.ProductID
	}

	stock, err := s.DB.GetProductsWithInventory(ctx, store.ID, productIDs)
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}

	var missing []string
	for _, id := range productIDs {
		if _, ok := stock[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, &InvalidProductsError{Missing: missing}
	}

	// Step 2: best-effort availability pre-check. The authoritative guard is
	// the conditional decrement in step 11; this pass exists to report the
	// available quantity before any row is written.
	for _, item := range req.Items {
		ps := stock[item.ProductID]
		available := ps.Quantity
		if available < 0 {
			available = 0
		}
		if item.Quantity > available {
			return nil, &InsufficientStockError{ProductID: item.ProductID, Available: available}
		}
	}

	// Step 3: snapshot line items at today's sale price.
	items := make([]models.OrderItem, len(req.Items))
	lines := make([]pricing.LineItem, len(req.Items))
	for i, item := range req.Items {
		p := stock[item.ProductID].Product
		items[i] = models.OrderItem{
			ID:             uuid.NewString(),
			ProductID:      p.ID,
			NameSnapshot:   p.Name,
			CodeSnapshot:   p.Code,
			UnitPriceCents: p.SalePriceCents,
			Quantity:       item.Quantity,
			TotalCents:     p.SalePriceCents * item.Quantity,
		}
		lines[i] = pricing.LineItem{UnitPriceCents: p.SalePriceCents, Quantity: item.Quantity}
	}
	subtotalCents := pricing.Subtotal(lines)

	// Step 4: coupon.
	discountCents := 0
	var couponCode, influencerID string
	if req.CouponCode != "" {
		coupon, err := s.DB.GetCouponByCode(ctx, req.CouponCode)
		if err != nil {
			return nil, fmt.Errorf("load coupon: %w", err)
		}
		if coupon == nil || !coupon.Active {
			return nil, ErrInvalidCoupon
		}
		couponCode = coupon.Code
		influencerID = coupon.InfluencerID
		d, _ := pricing.ApplyCoupon(subtotalCents, &pricing.CouponSpec{Type: coupon.Type, Value: coupon.Value})
		discountCents += d
	}

	// Step 5: points redemption, clamped to the live balance.
	pointsRedeemed := 0
	if req.PointsRedeem > 0 {
		available, err := s.Points.Available(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("load points balance: %w", err)
		}
		pointsRedeemed = points.ClampRedeem(req.PointsRedeem, available)
		discountCents += pointsRedeemed * points.PointValueCents
	}

	// Steps 6-7: shipping and totals. Points are earned on the pre-discount
	// subtotal and only credited once payment confirms.
	shippingCents := s.Shipping(shipping.Input{
		Zip:           req.Delivery.Zip,
		City:          req.Delivery.City,
		State:         req.Delivery.State,
		SubtotalCents: subtotalCents,
	})
	totalCents := subtotalCents - discountCents + shippingCents
	if totalCents < 0 {
		totalCents = 0
	}
	pointsEarned := points.EarnedForSubtotal(subtotalCents)

	// Step 8: durability point.
	order := &models.Order{
		ID:             uuid.NewString(),
		UserID:         userID,
		StoreID:        store.ID,
		Status:         models.OrderPending,
		SubtotalCents:  subtotalCents,
		DiscountCents:  discountCents,
		ShippingCents:  shippingCents,
		TotalCents:     totalCents,
		PointsEarned:   pointsEarned,
		PointsRedeemed: pointsRedeemed,
		CouponCode:     couponCode,
		InfluencerID:   influencerID,
	}
	for i := range items {
		items[i].OrderID = order.ID
	}
	delivery := &models.OrderDelivery{
		ID:       uuid.NewString(),
		OrderID:  order.ID,
		Street:   req.Delivery.Street,
		Number:   req.Delivery.Number,
		District: req.Delivery.District,
		City:     req.Delivery.City,
		State:    req.Delivery.State,
		Zip:      req.Delivery.Zip,
	}

	if err := s.DB.CreateOrder(ctx, order, items, delivery); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	s.logger.LogOrder("CREATE", order.ID, fmt.Sprintf("store=%s total=%d", store.Subdomain, totalCents))

	// Step 9: resolve or create the gateway customer. A user without a phone
	// cannot be registered with the provider; the order then proceeds with a
	// null payment link.
	customerID, err := s.resolveCustomer(ctx, store, userID)
	if err != nil {
		s.compensate(ctx, order.ID)
		return nil, &GatewayError{Stage: "create_customer", Err: err}
	}

	// Steps 10-11: billing link, then inventory commit.
	var payment *PaymentInfo
	if customerID != "" {
		billing, err := s.Gateway.CreateBilling(ctx, store.AbacateAPIKey, abacatepay.BillingInput{
			CustomerID:    customerID,
			Products:      billingProducts(items),
			Coupons:       couponList(couponCode),
			AllowCoupons:  false,
			ExternalID:    order.ID,
			ReturnURL:     fmt.Sprintf("%s/checkout/success?orderId=%s", s.FrontendURL, order.ID),
			CompletionURL: fmt.Sprintf("%s/checkout/completion?orderId=%s", s.FrontendURL, order.ID),
		})
		if err != nil {
			s.compensate(ctx, order.ID)
			return nil, &GatewayError{Stage: "create_billing", Err: err}
		}

		if err := s.DB.SetBilling(ctx, order.ID, billing.ID, billing.Status); err != nil {
			return nil, fmt.Errorf("record billing: %w", err)
		}
		order.AbacateBillingID = billing.ID
		order.AbacateStatus = billing.Status

		payment = &PaymentInfo{
			BillingID: billing.ID,
			URL:       billing.URL,
			QRCode:    encodePaymentQR(billing.URL),
		}
	}

	// Orders without a billing link reserve stock too. No webhook will ever
	// settle them, so they hold their quantities until operational cleanup
	// cancels stale PENDING orders and restores inventory.
	if err := s.DB.DecrementInventory(ctx, store.ID, items); err != nil {
		// The conditional update lost a race after the pre-check passed.
		var stockErr *checkoutdb.StockError
		if errors.As(err, &stockErr) {
			s.compensate(ctx, order.ID)
			return nil, &InsufficientStockError{ProductID: stockErr.ProductID, Available: 0}
		}
		return nil, fmt.Errorf("decrement inventory: %w", err)
	}

	if s.Publisher != nil {
		if err := s.Publisher.PublishOrderCreated(*order); err != nil {
			s.logger.Warn("KAFKA", fmt.Sprintf("publish order.created for %s: %v", order.ID, err))
		}
	}

	return &Result{OrderID: order.ID, TotalCents: totalCents, Payment: payment}, nil
}

// ListOrders returns the caller's order history.
func (s *Service) ListOrders(ctx context.Context, userID string) ([]models.Order, error) {
	return s.DB.GetOrdersByUser(ctx, userID)
}

func (s *Service) resolveCustomer(ctx context.Context, store *models.Store, userID string) (string, error) {
	user, err := s.DB.GetUser(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("load user: %w", err)
	}
	if user.AbacateCustomerID != "" {
		return user.AbacateCustomerID, nil
	}
	if user.Phone == "" {
		s.logger.Warn("CHECKOUT", fmt.Sprintf("user %s has no phone, skipping gateway customer", userID))
		return "", nil
	}

	cust, err := s.Gateway.CreateCustomer(ctx, store.AbacateAPIKey, abacatepay.CustomerInput{
		Name:      user.Name,
		Email:     user.Email,
		TaxID:     user.CPF,
		Cellphone: user.Phone,
	})
	if err != nil {
		return "", err
	}

	if err := s.DB.SaveUserCustomerID(ctx, userID, cust.ID); err != nil {
		s.logger.Error("CHECKOUT", fmt.Sprintf("failed to cache customer id for user %s: %v", userID, err))
	}
	return cust.ID, nil
}

// compensate deletes the order created earlier in this request. Inventory was
// not yet touched at any call site, so deletion alone restores a clean state.
func (s *Service) compensate(ctx context.Context, orderID string) {
	if err := s.DB.DeleteOrder(ctx, orderID); err != nil {
		// Operational tooling retries orphaned-order cleanup; log loudly.
		s.logger.Error("CHECKOUT", fmt.Sprintf("COMPENSATION FAILED for order %s: %v", orderID, err))
		return
	}
	s.logger.LogOrder("ROLLBACK", orderID, "order deleted after gateway failure")
}

func billingProducts(items []models.OrderItem) []abacatepay.BillingProduct {
	products := make([]abacatepay.BillingProduct, len(items))
	for i, it := range items {
		products[i] = abacatepay.BillingProduct{
			ExternalID:  it.CodeSnapshot,
			Name:        it.NameSnapshot,
			Description: "Produto: " + it.NameSnapshot,
			Price:       it.UnitPriceCents,
			Quantity:    it.Quantity,
		}
	}
	return products
}

func couponList(code string) []string {
	if code == "" {
		return nil
	}
	return []string{code}
}

// encodePaymentQR renders the PIX payment URL as a base64 PNG. An encoding
// failure just omits the QR; the URL is still in the response.
func encodePaymentQR(url string) string {
	if url == "" {
		return ""
	}
	png, err := qrcode.Encode(url, qrcode.Medium, 256)
	if err != nil {
		return ""
	}
	return base64.StdEncoding.EncodeToString(png)
}
