package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Store is a tenant. Each store carries its own AbacatePay credentials so
// gateway calls and webhook verification are scoped per tenant.
type Store struct {
	bun.BaseModel `bun:"table:stores"`

	ID                   string    `bun:"id,pk" json:"id"`
	Name                 string    `bun:"name" json:"name"`
	Subdomain            string    `bun:"subdomain,unique" json:"subdomain"`
	City                 string    `bun:"city" json:"city"`
	State                string    `bun:"state" json:"state"`
	AbacateAPIKey        string    `bun:"abacate_api_key" json:"-"`
	AbacateWebhookSecret string    `bun:"abacate_webhook_secret" json:"-"`
	CreatedAt            time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at"`
}

// StoreInventory holds the per-store quantity of a product. The
// (store_id, product_id) pair is unique and quantity never goes below zero.
type StoreInventory struct {
	bun.BaseModel `bun:"table:store_inventories"`

	ID        string `bun:"id,pk" json:"id"`
	StoreID   string `bun:"store_id,unique:store_product" json:"store_id"`
	ProductID string `bun:"product_id,unique:store_product" json:"product_id"`
	Quantity  int    `bun:"quantity" json:"quantity"`
}
