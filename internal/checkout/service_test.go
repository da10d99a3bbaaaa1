package checkout_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forfit/storefront/internal/abacatepay"
	"github.com/forfit/storefront/internal/checkout"
	checkoutdb "github.com/forfit/storefront/internal/checkout/db"
	"github.com/forfit/storefront/internal/logger"
	"github.com/forfit/storefront/internal/models"
	"github.com/forfit/storefront/internal/shipping"
)

// fakeStorage is an in-memory Storage with per-method failure injection.
type fakeStorage struct {
	stock   map[string]checkoutdb.ProductWithStock
	coupons map[string]*models.Coupon
	user    *models.User

	createdOrder  *models.Order
	createdItems  []models.OrderItem
	deletedOrders []string
	billingSet    bool
	decremented   bool
	savedCustomer string

	decrementErr error
	createErr    error
}

func (f *fakeStorage) GetProductsWithInventory(_ context.Context, _ string, ids []string) (map[string]checkoutdb.ProductWithStock, error) {
	out := make(map[string]checkoutdb.ProductWithStock)
	for _, id := range ids {
		if ps, ok := f.stock[id]; ok {
			out[id] = ps
		}
	}
	return out, nil
}

func (f *fakeStorage) GetCouponByCode(_ context.Context, code string) (*models.Coupon, error) {
	return f.coupons[code], nil
}

func (f *fakeStorage) GetUser(_ context.Context, _ string) (*models.User, error) {
	return f.user, nil
}

func (f *fakeStorage) SaveUserCustomerID(_ context.Context, _, customerID string) error {
	f.savedCustomer = customerID
	return nil
}

func (f *fakeStorage) CreateOrder(_ context.Context, order *models.Order, items []models.OrderItem, _ *models.OrderDelivery) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.createdOrder = order
	f.createdItems = items
	return nil
}

func (f *fakeStorage) DeleteOrder(_ context.Context, orderID string) error {
	f.deletedOrders = append(f.deletedOrders, orderID)
	return nil
}

func (f *fakeStorage) SetBilling(_ context.Context, _, _, _ string) error {
	f.billingSet = true
	return nil
}

func (f *fakeStorage) DecrementInventory(_ context.Context, _ string, _ []models.OrderItem) error {
	if f.decrementErr != nil {
		return f.decrementErr
	}
	f.decremented = true
	return nil
}

func (f *fakeStorage) GetOrdersByUser(_ context.Context, _ string) ([]models.Order, error) {
	return nil, nil
}

type fakeGateway struct {
	customerErr error
	billingErr  error
	billingIn   *abacatepay.BillingInput
}

func (f *fakeGateway) CreateCustomer(_ context.Context, _ string, _ abacatepay.CustomerInput) (*abacatepay.Customer, error) {
	if f.customerErr != nil {
		return nil, f.customerErr
	}
	return &abacatepay.Customer{ID: "cust_123"}, nil
}

func (f *fakeGateway) CreateBilling(_ context.Context, _ string, in abacatepay.BillingInput) (*abacatepay.Billing, error) {
	if f.billingErr != nil {
		return nil, f.billingErr
	}
	f.billingIn = &in
	return &abacatepay.Billing{ID: "bill_123", URL: "https://pay.example/bill_123", Status: "PENDING"}, nil
}

type fakePoints struct{ balance int }

func (f *fakePoints) Available(_ context.Context, _ string) (int, error) { return f.balance, nil }

type fakePublisher struct{ created []models.Order }

func (f *fakePublisher) PublishOrderCreated(order models.Order) error {
	f.created = append(f.created, order)
	return nil
}

func testStore() *models.Store {
	return &models.Store{ID: "store-1", Subdomain: "cascavel", AbacateAPIKey: "key_store1", AbacateWebhookSecret: "whsec"}
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		stock: map[string]checkoutdb.ProductWithStock{
			"prod-a": {Product: models.Product{ID: "prod-a", Name: "Macarrão", Code: "FF-001", SalePriceCents: 1000}, Quantity: 5},
		},
		coupons: map[string]*models.Coupon{},
		user:    &models.User{ID: "user-1", Name: "Ana", Email: "ana@example.com", CPF: "00000000191", Phone: "+5545999990000"},
	}
}

// pub is the interface, not the fake, so tests without a publisher pass a
// true nil and hit the service's nil guard.
func newService(st *fakeStorage, gw *fakeGateway, pts *fakePoints, pub checkout.Publisher) *checkout.Service {
	return checkout.NewService(st, gw, pts, shipping.Calculate, pub, "https://app.forfit.com/", &logger.Logger{})
}

func prDelivery() checkout.DeliveryInput {
	return checkout.DeliveryInput{Street: "Rua X", Number: "10", City: "Cascavel", State: "PR", Zip: "85800-000"}
}

func TestCheckoutSuccess(t *testing.T) {
	st := newFakeStorage()
	gw := &fakeGateway{}
	pub := &fakePublisher{}
	svc := newService(st, gw, &fakePoints{}, pub)

	res, err := svc.Checkout(context.Background(), testStore(), "user-1", checkout.Request{
		Items:    []checkout.CartItem{{ProductID: "prod-a", Quantity: 2}},
		Delivery: prDelivery(),
	})
	require.NoError(t, err)

	// 2 x 1000 subtotal, below the PR free-shipping threshold.
	assert.Equal(t, 2000+shipping.BasePRCents, res.TotalCents)
	require.NotNil(t, res.Payment)
	assert.Equal(t, "bill_123", res.Payment.BillingID)
	assert.Equal(t, "https://pay.example/bill_123", res.Payment.URL)
	assert.NotEmpty(t, res.Payment.QRCode)

	require.NotNil(t, st.createdOrder)
	assert.Equal(t, models.OrderPending, st.createdOrder.Status)
	assert.Equal(t, 2000, st.createdOrder.SubtotalCents)
	assert.Equal(t, 2, st.createdOrder.PointsEarned)
	assert.True(t, st.billingSet)
	assert.True(t, st.decremented)
	assert.Empty(t, st.deletedOrders)
	assert.Equal(t, "cust_123", st.savedCustomer)
	require.Len(t, pub.created, 1)
	assert.Equal(t, res.OrderID, pub.created[0].ID)

	require.NotNil(t, gw.billingIn)
	assert.Equal(t, "cust_123", gw.billingIn.CustomerID)
	assert.Equal(t, res.OrderID, gw.billingIn.ExternalID)
	assert.Equal(t, "https://app.forfit.com/checkout/success?orderId="+res.OrderID, gw.billingIn.ReturnURL)

	// Line items snapshot the catalog at order time.
	require.Len(t, st.createdItems, 1)
	assert.Equal(t, "FF-001", st.createdItems[0].CodeSnapshot)
	assert.Equal(t, 1000, st.createdItems[0].UnitPriceCents)
	assert.Equal(t, 2000, st.createdItems[0].TotalCents)
}

func TestCheckoutUnknownProduct(t *testing.T) {
	st := newFakeStorage()
	svc := newService(st, &fakeGateway{}, &fakePoints{}, nil)

	_, err := svc.Checkout(context.Background(), testStore(), "user-1", checkout.Request{
		Items:    []checkout.CartItem{{ProductID: "prod-a", Quantity: 1}, {ProductID: "ghost", Quantity: 1}},
		Delivery: prDelivery(),
	})

	var invalid *checkout.InvalidProductsError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, []string{"ghost"}, invalid.Missing)
	assert.Nil(t, st.createdOrder, "no order may exist after a validation failure")
}

func TestCheckoutEmptyCart(t *testing.T) {
	svc := newService(newFakeStorage(), &fakeGateway{}, &fakePoints{}, nil)

	_, err := svc.Checkout(context.Background(), testStore(), "user-1", checkout.Request{Delivery: prDelivery()})

	var invalid *checkout.InvalidProductsError
	require.ErrorAs(t, err, &invalid)
}

func TestCheckoutInsufficientStockPreCheck(t *testing.T) {
	st := newFakeStorage()
	svc := newService(st, &fakeGateway{}, &fakePoints{}, nil)

	_, err := svc.Checkout(context.Background(), testStore(), "user-1", checkout.Request{
		Items:    []checkout.CartItem{{ProductID: "prod-a", Quantity: 6}},
		Delivery: prDelivery(),
	})

	var stockErr *checkout.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "prod-a", stockErr.ProductID)
	assert.Equal(t, 5, stockErr.Available)
	assert.Nil(t, st.createdOrder)
}

func TestCheckoutNoInventoryRowMeansZeroStock(t *testing.T) {
	st := newFakeStorage()
	st.stock["prod-a"] = checkoutdb.ProductWithStock{Product: st.stock["prod-a"].Product, Quantity: -1}
	svc := newService(st, &fakeGateway{}, &fakePoints{}, nil)

	_, err := svc.Checkout(context.Background(), testStore(), "user-1", checkout.Request{
		Items:    []checkout.CartItem{{ProductID: "prod-a", Quantity: 1}},
		Delivery: prDelivery(),
	})

	var stockErr *checkout.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 0, stockErr.Available)
}

func TestCheckoutInvalidCoupon(t *testing.T) {
	st := newFakeStorage()
	st.coupons["OLD"] = &models.Coupon{ID: "c-1", Code: "OLD", Type: models.CouponPercent, Value: 10, Active: false}
	svc := newService(st, &fakeGateway{}, &fakePoints{}, nil)

	for _, code := range []string{"OLD", "NOPE"} {
		_, err := svc.Checkout(context.Background(), testStore(), "user-1", checkout.Request{
			Items:      []checkout.CartItem{{ProductID: "prod-a", Quantity: 1}},
			Delivery:   prDelivery(),
			CouponCode: code,
		})
		assert.ErrorIs(t, err, checkout.ErrInvalidCoupon, code)
	}
	assert.Nil(t, st.createdOrder)
}

func TestCheckoutCouponDiscount(t *testing.T) {
	st := newFakeStorage()
	st.coupons["INFLU10"] = &models.Coupon{ID: "c-1", Code: "INFLU10", Type: models.CouponPercent, Value: 10, Active: true, InfluencerID: "inf-1"}
	gw := &fakeGateway{}
	svc := newService(st, gw, &fakePoints{}, nil)

	res, err := svc.Checkout(context.Background(), testStore(), "user-1", checkout.Request{
		Items:      []checkout.CartItem{{ProductID: "prod-a", Quantity: 2}},
		Delivery:   prDelivery(),
		CouponCode: "INFLU10",
	})
	require.NoError(t, err)

	assert.Equal(t, 2000-200+shipping.BasePRCents, res.TotalCents)
	assert.Equal(t, 200, st.createdOrder.DiscountCents)
	assert.Equal(t, "INFLU10", st.createdOrder.CouponCode)
	assert.Equal(t, "inf-1", st.createdOrder.InfluencerID)
	assert.Equal(t, []string{"INFLU10"}, gw.billingIn.Coupons)
}

func TestCheckoutPointsRedeemClampedToBalance(t *testing.T) {
	st := newFakeStorage()
	svc := newService(st, &fakeGateway{}, &fakePoints{balance: 3}, nil)

	res, err := svc.Checkout(context.Background(), testStore(), "user-1", checkout.Request{
		Items:        []checkout.CartItem{{ProductID: "prod-a", Quantity: 2}},
		Delivery:     prDelivery(),
		PointsRedeem: 100,
	})
	require.NoError(t, err)

	assert.Equal(t, 3, st.createdOrder.PointsRedeemed)
	assert.Equal(t, 2000-30+shipping.BasePRCents, res.TotalCents)
}

func TestCheckoutGatewayBillingFailureCompensates(t *testing.T) {
	st := newFakeStorage()
	svc := newService(st, &fakeGateway{billingErr: errors.New("upstream 500")}, &fakePoints{}, nil)

	_, err := svc.Checkout(context.Background(), testStore(), "user-1", checkout.Request{
		Items:    []checkout.CartItem{{ProductID: "prod-a", Quantity: 1}},
		Delivery: prDelivery(),
	})

	var gwErr *checkout.GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, "create_billing", gwErr.Stage)

	require.NotNil(t, st.createdOrder)
	assert.Equal(t, []string{st.createdOrder.ID}, st.deletedOrders, "the pending order must be rolled back")
	assert.False(t, st.decremented, "inventory must be untouched after a gateway failure")
}

func TestCheckoutCustomerFailureCompensates(t *testing.T) {
	st := newFakeStorage()
	svc := newService(st, &fakeGateway{customerErr: errors.New("upstream 500")}, &fakePoints{}, nil)

	_, err := svc.Checkout(context.Background(), testStore(), "user-1", checkout.Request{
		Items:    []checkout.CartItem{{ProductID: "prod-a", Quantity: 1}},
		Delivery: prDelivery(),
	})

	var gwErr *checkout.GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, "create_customer", gwErr.Stage)
	assert.Len(t, st.deletedOrders, 1)
}

func TestCheckoutUserWithoutPhoneGetsNullPayment(t *testing.T) {
	st := newFakeStorage()
	st.user.Phone = ""
	gw := &fakeGateway{}
	svc := newService(st, gw, &fakePoints{}, nil)

	res, err := svc.Checkout(context.Background(), testStore(), "user-1", checkout.Request{
		Items:    []checkout.CartItem{{ProductID: "prod-a", Quantity: 1}},
		Delivery: prDelivery(),
	})
	require.NoError(t, err)

	assert.Nil(t, res.Payment)
	assert.Nil(t, gw.billingIn, "no billing call without a gateway customer")
	assert.True(t, st.decremented, "the order still reserves stock")
}

func TestCheckoutCachedCustomerSkipsCreation(t *testing.T) {
	st := newFakeStorage()
	st.user.AbacateCustomerID = "cust_cached"
	gw := &fakeGateway{customerErr: errors.New("must not be called")}
	svc := newService(st, gw, &fakePoints{}, nil)

	res, err := svc.Checkout(context.Background(), testStore(), "user-1", checkout.Request{
		Items:    []checkout.CartItem{{ProductID: "prod-a", Quantity: 1}},
		Delivery: prDelivery(),
	})
	require.NoError(t, err)
	assert.Equal(t, "cust_cached", gw.billingIn.CustomerID)
	require.NotNil(t, res.Payment)
}

func TestCheckoutDecrementRaceCompensates(t *testing.T) {
	st := newFakeStorage()
	st.decrementErr = &checkoutdb.StockError{ProductID: "prod-a"}
	svc := newService(st, &fakeGateway{}, &fakePoints{}, nil)

	_, err := svc.Checkout(context.Background(), testStore(), "user-1", checkout.Request{
		Items:    []checkout.CartItem{{ProductID: "prod-a", Quantity: 5}},
		Delivery: prDelivery(),
	})

	var stockErr *checkout.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "prod-a", stockErr.ProductID)
	assert.Len(t, st.deletedOrders, 1, "the order loses the race and is rolled back")
}
