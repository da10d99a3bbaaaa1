package models

import "github.com/uptrace/bun"

// User rows are owned by the auth collaborator. The core only reads them and
// caches the gateway customer id after the first successful creation.
type User struct {
	bun.BaseModel `bun:"table:users"`

	ID                string `bun:"id,pk" json:"id"`
	Name              string `bun:"name" json:"name"`
	Email             string `bun:"email,unique" json:"email"`
	CPF               string `bun:"cpf" json:"cpf"`
	Phone             string `bun:"phone,nullzero" json:"phone,omitempty"`
	StoreID           string `bun:"store_id,nullzero" json:"store_id,omitempty"`
	AbacateCustomerID string `bun:"abacate_customer_id,nullzero" json:"-"`
}
