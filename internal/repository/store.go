package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Debojyoti-Gho/offline-billing-app/internal/domain"
)

// Supported SQL drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// OutboxEvent is a pending ledger event waiting to be published
type OutboxEvent struct {
	ID          int64
	AggregateID string
	EventType   string
	Payload     json.RawMessage
	CreatedAt   time.Time
}

// Tx is the set of operations available inside Store.WithinTx.
// Nothing done through a Tx is visible to other callers until fn returns nil.
type Tx interface {
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	GetTransaction(ctx context.Context, id int64) (*domain.Transaction, error)

	// InsertProduct stores p and sets p.ID
	InsertProduct(ctx context.Context, p *domain.Product) error

	// AdjustStock adds delta to the product's stock, failing if the result is negative
	AdjustStock(ctx context.Context, productID int64, delta int64) error

	// InsertTransaction appends t and sets t.ID
	InsertTransaction(ctx context.Context, t *domain.Transaction) error

	// AddOutboxEvent queues ev for publishing once the transaction commits
	AddOutboxEvent(ctx context.Context, ev domain.Event) error
}

// Store owns the product and transaction collections
type Store interface {
	// WithinTx runs fn atomically: either everything fn did is kept or nothing is
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	GetTransaction(ctx context.Context, id int64) (*domain.Transaction, error)

	// ListProducts returns all products ordered by id
	ListProducts(ctx context.Context) ([]*domain.Product, error)

	// ListTransactions returns all transactions ordered by id
	ListTransactions(ctx context.Context) ([]*domain.Transaction, error)

	GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id int64) error

	Close() error
}
