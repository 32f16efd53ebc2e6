package domain

import "github.com/shopspring/decimal"

// Product is a catalog entry. Stock is only ever changed by ledger operations.
type Product struct {
	ID    int64           `json:"id" db:"id"`
	Name  string          `json:"name" db:"name"`
	Price decimal.Decimal `json:"price" db:"price"`
	Stock int64           `json:"stock" db:"stock"`
}
