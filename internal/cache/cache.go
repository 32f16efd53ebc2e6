package cache

import (
	"context"

	"github.com/Debojyoti-Gho/offline-billing-app/internal/domain"
	"github.com/pkg/errors"
)

// ProductCache holds the product listing between ledger mutations
type ProductCache interface {
	GetProducts(ctx context.Context) ([]*domain.Product, error)
	SetProducts(ctx context.Context, products []*domain.Product) error
	Invalidate(ctx context.Context) error
}

var ErrCacheMiss = errors.New("cache miss")
