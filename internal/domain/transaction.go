package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType is the kind of stock/money movement a transaction records
type TransactionType string

const (
	TransactionSale     TransactionType = "Sale"
	TransactionReturn   TransactionType = "Return"
	TransactionExchange TransactionType = "Exchange"
)

// Valid reports whether t is one of the known transaction types
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionSale, TransactionReturn, TransactionExchange:
		return true
	}
	return false
}

// Transaction is an immutable ledger row.
// Quantity is negative for returns, TotalPrice is negative for refunds.
type Transaction struct {
	ID         int64           `json:"id"`
	ProductID  int64           `json:"product_id"`
	Quantity   int64           `json:"quantity"`
	TotalPrice decimal.Decimal `json:"total_price"`
	Type       TransactionType `json:"type"`
	Timestamp  time.Time       `json:"timestamp"`
}

// UnitPrice is the per-unit amount the transaction was settled at
func (t Transaction) UnitPrice() decimal.Decimal {
	if t.Quantity == 0 {
		return decimal.Zero
	}
	return t.TotalPrice.Div(decimal.NewFromInt(t.Quantity))
}
