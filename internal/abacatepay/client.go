// Package abacatepay is a thin client for the AbacatePay billing API. Every
// call takes the tenant's API key explicitly; the client holds no credential
// of its own, which is what keeps the gateway multi-tenant.
package abacatepay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/forfit/storefront/internal/logger"
)

type Client struct {
	baseURL string
	client  *http.Client
	logger  *logger.Logger
}

func NewClient(baseURL string, httpClient *http.Client, log *logger.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: baseURL, client: httpClient, logger: log}
}

// APIError carries the upstream status and body so callers can log what the
// provider actually said. No retries happen here; retry policy belongs to the
// caller.
type APIError struct {
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("abacatepay %s %d: %s", e.Path, e.StatusCode, e.Body)
}

// envelope is the provider's standard {data, error} wrapper. A non-null error
// field signals failure even on a 2xx status.
type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error json.RawMessage `json:"error"`
}

type CustomerInput struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	TaxID     string `json:"taxId"`
	Cellphone string `json:"cellphone"`
}

type Customer struct {
	ID       string `json:"id"`
	Metadata struct {
		Name      string `json:"name"`
		Email     string `json:"email"`
		TaxID     string `json:"taxId"`
		Cellphone string `json:"cellphone"`
	} `json:"metadata"`
}

type BillingProduct struct {
	ExternalID  string `json:"externalId"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Price       int    `json:"price"`
	Quantity    int    `json:"quantity"`
}

type BillingInput struct {
	Frequency     string           `json:"frequency"`
	Methods       []string         `json:"methods"`
	CustomerID    string           `json:"customerId"`
	Products      []BillingProduct `json:"products"`
	Coupons       []string         `json:"coupons,omitempty"`
	AllowCoupons  bool             `json:"allowCoupons"`
	ReturnURL     string           `json:"returnUrl"`
	CompletionURL string           `json:"completionUrl"`
	ExternalID    string           `json:"externalId,omitempty"`
}

type Billing struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	Status string `json:"status"`
	Amount int    `json:"amount"`
}

type CouponInput struct {
	Code         string `json:"code"`
	Notes        string `json:"notes,omitempty"`
	MaxRedeems   int    `json:"maxRedeems"`
	DiscountKind string `json:"discountKind"`
	Discount     int    `json:"discount"`
}

type ProviderCoupon struct {
	ID   string `json:"id"`
	Code string `json:"code"`
}

func (c *Client) do(ctx context.Context, apiKey, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal %s payload: %w", path, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("abacatepay %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("GATEWAY", fmt.Sprintf("%s returned %d: %s", path, resp.StatusCode, string(raw)))
		return &APIError{Path: path, StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	if len(env.Error) > 0 && string(env.Error) != "null" {
		c.logger.Error("GATEWAY", fmt.Sprintf("%s API error: %s", path, string(env.Error)))
		return &APIError{Path: path, StatusCode: resp.StatusCode, Body: string(env.Error)}
	}

	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode %s data: %w", path, err)
		}
	}
	return nil
}

// CreateCustomer registers a customer profile with the provider.
// POST /customer/create
func (c *Client) CreateCustomer(ctx context.Context, apiKey string, in CustomerInput) (*Customer, error) {
	var cust Customer
	if err := c.do(ctx, apiKey, http.MethodPost, "/customer/create", in, &cust); err != nil {
		return nil, err
	}
	c.logger.Info("GATEWAY", fmt.Sprintf("created customer %s", cust.ID))
	return &cust, nil
}

// CreateBilling creates a one-time PIX payment link for an order.
// POST /billing/create
func (c *Client) CreateBilling(ctx context.Context, apiKey string, in BillingInput) (*Billing, error) {
	if in.Frequency == "" {
		in.Frequency = "ONE_TIME"
	}
	if len(in.Methods) == 0 {
		in.Methods = []string{"PIX"}
	}

	var billing Billing
	if err := c.do(ctx, apiKey, http.MethodPost, "/billing/create", in, &billing); err != nil {
		return nil, err
	}
	c.logger.Info("GATEWAY", fmt.Sprintf("created billing %s (%d cents)", billing.ID, billing.Amount))
	return &billing, nil
}

// CreateCoupon creates a provider-side coupon. The coupon endpoint expects
// the input under a "data" wrapper, unlike the others.
// POST /coupon/create
func (c *Client) CreateCoupon(ctx context.Context, apiKey string, in CouponInput) (*ProviderCoupon, error) {
	var coupon ProviderCoupon
	payload := map[string]CouponInput{"data": in}
	if err := c.do(ctx, apiKey, http.MethodPost, "/coupon/create", payload, &coupon); err != nil {
		return nil, err
	}
	return &coupon, nil
}

// ListCoupons lists the provider-side coupons for this tenant.
// GET /coupon/list
func (c *Client) ListCoupons(ctx context.Context, apiKey string) ([]ProviderCoupon, error) {
	var coupons []ProviderCoupon
	if err := c.do(ctx, apiKey, http.MethodGet, "/coupon/list", nil, &coupons); err != nil {
		return nil, err
	}
	return coupons, nil
}
