package domain

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Event is a ledger fact published through the outbox
type Event interface {
	Type() string
	AggregateID() string
}

type ProductAdded struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Stock     int64           `json:"stock"`
}

func (e ProductAdded) Type() string        { return "ProductAdded" }
func (e ProductAdded) AggregateID() string { return productKey(e.ProductID) }

type TransactionRecorded struct {
	TransactionID int64           `json:"transaction_id"`
	ProductID     int64           `json:"product_id"`
	Kind          TransactionType `json:"transaction_type"`
	Quantity      int64           `json:"quantity"`
	TotalPrice    decimal.Decimal `json:"total_price"`
	StockAfter    int64           `json:"stock_after"`
	ReferenceID   int64           `json:"reference_id,omitempty"` // original sale for returns and exchanges
	RecordedAt    time.Time       `json:"recorded_at"`
}

func (e TransactionRecorded) Type() string        { return "TransactionRecorded" }
func (e TransactionRecorded) AggregateID() string { return productKey(e.ProductID) }

// events for one product share a key so they stay ordered on a partition
func productKey(id int64) string {
	return "product-" + strconv.FormatInt(id, 10)
}
