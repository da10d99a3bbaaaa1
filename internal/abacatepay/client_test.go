package abacatepay_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forfit/storefront/internal/abacatepay"
	"github.com/forfit/storefront/internal/logger"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *abacatepay.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return abacatepay.NewClient(srv.URL, srv.Client(), &logger.Logger{})
}

func TestCreateCustomer(t *testing.T) {
	var gotAuth, gotPath string
	var gotBody abacatepay.CustomerInput

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"id":       "cust_abc",
				"metadata": map[string]any{"name": "Ana", "email": "ana@example.com"},
			},
			"error": nil,
		})
	})

	cust, err := client.CreateCustomer(context.Background(), "key_store1", abacatepay.CustomerInput{
		Name: "Ana", Email: "ana@example.com", TaxID: "00000000191", Cellphone: "+5545999990000",
	})
	require.NoError(t, err)

	assert.Equal(t, "cust_abc", cust.ID)
	assert.Equal(t, "Ana", cust.Metadata.Name)
	assert.Equal(t, "Bearer key_store1", gotAuth)
	assert.Equal(t, "/customer/create", gotPath)
	assert.Equal(t, "Ana", gotBody.Name)
}

func TestCreateBillingDefaults(t *testing.T) {
	var gotBody abacatepay.BillingInput

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"id": "bill_1", "url": "https://pay.example/bill_1", "status": "PENDING", "amount": 3200},
		})
	})

	billing, err := client.CreateBilling(context.Background(), "key_store1", abacatepay.BillingInput{
		CustomerID: "cust_abc",
		Products:   []abacatepay.BillingProduct{{ExternalID: "FF-001", Name: "Macarrão", Price: 1000, Quantity: 2}},
		ExternalID: "order-1",
	})
	require.NoError(t, err)

	assert.Equal(t, "bill_1", billing.ID)
	assert.Equal(t, "https://pay.example/bill_1", billing.URL)
	assert.Equal(t, "ONE_TIME", gotBody.Frequency)
	assert.Equal(t, []string{"PIX"}, gotBody.Methods)
	assert.Equal(t, "order-1", gotBody.ExternalID)
}

func TestErrorFieldOn200(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"data": nil, "error": "tax id already registered"})
	})

	_, err := client.CreateCustomer(context.Background(), "key", abacatepay.CustomerInput{})
	require.Error(t, err)

	var apiErr *abacatepay.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusOK, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "tax id already registered")
}

func TestNon2xxStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
	})

	_, err := client.CreateBilling(context.Background(), "bad-key", abacatepay.BillingInput{})
	var apiErr *abacatepay.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "/billing/create", apiErr.Path)
}

func TestCreateCouponWrapsPayload(t *testing.T) {
	var gotBody map[string]abacatepay.CouponInput

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"id": "coup_1", "code": "INFLU10"},
		})
	})

	coupon, err := client.CreateCoupon(context.Background(), "key", abacatepay.CouponInput{
		Code: "INFLU10", DiscountKind: "PERCENTAGE", Discount: 10, MaxRedeems: -1,
	})
	require.NoError(t, err)

	assert.Equal(t, "coup_1", coupon.ID)
	// The coupon endpoint nests the input under "data".
	require.Contains(t, gotBody, "data")
	assert.Equal(t, "INFLU10", gotBody["data"].Code)
}

func TestListCoupons(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"id": "coup_1", "code": "INFLU10"}, {"id": "coup_2", "code": "WELCOME"}},
		})
	})

	coupons, err := client.ListCoupons(context.Background(), "key")
	require.NoError(t, err)
	require.Len(t, coupons, 2)
	assert.Equal(t, "WELCOME", coupons[1].Code)
}
