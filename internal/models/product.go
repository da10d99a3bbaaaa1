package models

import "github.com/uptrace/bun"

// Product is a catalog entry, global across stores. Prices are integer cents.
type Product struct {
	bun.BaseModel `bun:"table:products"`

	ID             string `bun:"id,pk" json:"id"`
	Name           string `bun:"name" json:"name"`
	Code           string `bun:"code,unique" json:"code"`
	Description    string `bun:"description" json:"description"`
	PhotoURL       string `bun:"photo_url" json:"photo_url"`
	CostPriceCents int    `bun:"cost_price_cents" json:"cost_price_cents"`
	SalePriceCents int    `bun:"sale_price_cents" json:"sale_price_cents"`
}
