package domain

import (
	"errors"
	"fmt"
)

// Error kinds returned by the ledger and the stores
var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrProductNotFound     = errors.New("product not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrNotASale            = errors.New("transaction is not a sale")
)

// InsufficientStockError reports how much stock was available when a request was rejected
type InsufficientStockError struct {
	ProductID int64
	Requested int64
	Available int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// Is lets errors.Is(err, ErrInsufficientStock) match
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}
