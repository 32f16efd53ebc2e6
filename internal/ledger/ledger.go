// Package ledger enforces how stock and money move when products are sold,
// returned and exchanged.
package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/Debojyoti-Gho/offline-billing-app/internal/cache"
	"github.com/Debojyoti-Gho/offline-billing-app/internal/domain"
	"github.com/Debojyoti-Gho/offline-billing-app/internal/repository"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Ledger owns the product and transaction records of one store.
// Mutating operations are serialised by a single lock and each one commits
// its stock change, transaction row and outbox event in one store transaction.
type Ledger struct {
	mu    sync.Mutex
	store repository.Store
	cache cache.ProductCache
	sfg   singleflight.Group // collapses concurrent catalog cache misses
	log   logrus.FieldLogger
	now   func() time.Time

	requireSaleReference      bool
	checkExchangeAfterRestore bool
}

type Option func(*Ledger)

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(l *Ledger) { l.log = log }
}

// WithCache puts c in front of ListProducts
func WithCache(c cache.ProductCache) Option {
	return func(l *Ledger) { l.cache = c }
}

// RequireSaleReference makes Return and Exchange reject references to
// transactions that are not sales. Off by default: any transaction is accepted.
func RequireSaleReference(on bool) Option {
	return func(l *Ledger) { l.requireSaleReference = on }
}

// CheckExchangeAfterRestore credits the original sale's quantity back before
// checking stock for the new quantity. Off by default: stock is checked first.
func CheckExchangeAfterRestore(on bool) Option {
	return func(l *Ledger) { l.checkExchangeAfterRestore = on }
}

func New(store repository.Store, opts ...Option) *Ledger {
	l := &Ledger{
		store: store,
		log:   logrus.StandardLogger(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// AddProduct stocks a new product. No transaction is recorded.
func (l *Ledger) AddProduct(ctx context.Context, name string, price decimal.Decimal, stock int64) (*domain.Product, error) {
	switch {
	case name == "":
		return nil, l.reject("add_product", errors.Wrap(domain.ErrInvalidInput, "product name is required"), nil)
	case !price.IsPositive():
		return nil, l.reject("add_product", errors.Wrapf(domain.ErrInvalidInput, "price must be positive, got %s", price), nil)
	case stock <= 0:
		return nil, l.reject("add_product", errors.Wrapf(domain.ErrInvalidInput, "stock must be positive, got %d", stock), nil)
	}

	p := &domain.Product{Name: name, Price: price, Stock: stock}
	err := l.withinTx(ctx, func(tx repository.Tx) error {
		if err := tx.InsertProduct(ctx, p); err != nil {
			return err
		}
		return tx.AddOutboxEvent(ctx, domain.ProductAdded{
			ProductID: p.ID,
			Name:      p.Name,
			Price:     p.Price,
			Stock:     p.Stock,
		})
	})
	if err != nil {
		return nil, l.reject("add_product", errors.WithMessage(err, "add product"), logrus.Fields{"name": name})
	}

	l.log.WithFields(logrus.Fields{
		"operation":  "add_product",
		"product_id": p.ID,
		"name":       p.Name,
		"price":      p.Price.String(),
		"stock":      p.Stock,
	}).Info("product added")
	return p, nil
}

// Sell removes quantity units from stock and records a Sale at the current price.
func (l *Ledger) Sell(ctx context.Context, productID, quantity int64) (*domain.Transaction, error) {
	fields := logrus.Fields{"product_id": productID, "quantity": quantity}
	if quantity <= 0 {
		return nil, l.reject("sell", errors.Wrapf(domain.ErrInvalidInput, "quantity must be positive, got %d", quantity), fields)
	}

	var tr *domain.Transaction
	err := l.withinTx(ctx, func(tx repository.Tx) error {
		p, err := tx.GetProduct(ctx, productID)
		if err != nil {
			return err
		}
		if p.Stock < quantity {
			return &domain.InsufficientStockError{ProductID: p.ID, Requested: quantity, Available: p.Stock}
		}
		if err := tx.AdjustStock(ctx, p.ID, -quantity); err != nil {
			return err
		}

		tr = &domain.Transaction{
			ProductID:  p.ID,
			Quantity:   quantity,
			TotalPrice: p.Price.Mul(decimal.NewFromInt(quantity)),
			Type:       domain.TransactionSale,
			Timestamp:  l.timestamp(),
		}
		return l.record(ctx, tx, tr, p.Stock-quantity, 0)
	})
	if err != nil {
		return nil, l.reject("sell", errors.WithMessagef(err, "sell product %d", productID), fields)
	}

	l.logRecorded("sell", tr)
	return tr, nil
}

// Return puts quantity units back in stock and refunds them at the per-unit
// price of the referenced transaction. The quantity is not capped by what
// the original transaction sold.
func (l *Ledger) Return(ctx context.Context, transactionID, quantity int64) (*domain.Transaction, error) {
	fields := logrus.Fields{"reference_id": transactionID, "quantity": quantity}
	if quantity <= 0 {
		return nil, l.reject("return", errors.Wrapf(domain.ErrInvalidInput, "quantity must be positive, got %d", quantity), fields)
	}

	var tr *domain.Transaction
	err := l.withinTx(ctx, func(tx repository.Tx) error {
		orig, err := l.reference(ctx, tx, transactionID)
		if err != nil {
			return err
		}
		if err := tx.AdjustStock(ctx, orig.ProductID, quantity); err != nil {
			return err
		}
		p, err := tx.GetProduct(ctx, orig.ProductID)
		if err != nil {
			return err
		}

		// total*q/origQty keeps whole refunds exact where unit*q would not
		refund := orig.TotalPrice.
			Mul(decimal.NewFromInt(quantity)).
			Div(decimal.NewFromInt(orig.Quantity)).
			Neg()

		tr = &domain.Transaction{
			ProductID:  orig.ProductID,
			Quantity:   -quantity,
			TotalPrice: refund,
			Type:       domain.TransactionReturn,
			Timestamp:  l.timestamp(),
		}
		return l.record(ctx, tx, tr, p.Stock, orig.ID)
	})
	if err != nil {
		return nil, l.reject("return", errors.WithMessagef(err, "return against transaction %d", transactionID), fields)
	}

	l.logRecorded("return", tr)
	return tr, nil
}

// Exchange undoes the referenced sale's stock deduction, deducts newQuantity
// instead and records an Exchange priced at the product's current price.
//
// By default the stock check compares newQuantity with the stock on hand
// before the original quantity is credited back.
func (l *Ledger) Exchange(ctx context.Context, transactionID, newQuantity int64) (*domain.Transaction, error) {
	fields := logrus.Fields{"reference_id": transactionID, "quantity": newQuantity}
	if newQuantity <= 0 {
		return nil, l.reject("exchange", errors.Wrapf(domain.ErrInvalidInput, "quantity must be positive, got %d", newQuantity), fields)
	}

	var tr *domain.Transaction
	err := l.withinTx(ctx, func(tx repository.Tx) error {
		orig, err := l.reference(ctx, tx, transactionID)
		if err != nil {
			return err
		}
		p, err := tx.GetProduct(ctx, orig.ProductID)
		if err != nil {
			return err
		}

		available := p.Stock
		if l.checkExchangeAfterRestore {
			available += orig.Quantity
		}
		if available < newQuantity {
			return &domain.InsufficientStockError{ProductID: p.ID, Requested: newQuantity, Available: available}
		}
		// only reachable when the reference was a return
		final := p.Stock + orig.Quantity - newQuantity
		if final < 0 {
			return &domain.InsufficientStockError{ProductID: p.ID, Requested: newQuantity, Available: p.Stock + orig.Quantity}
		}

		if err := tx.AdjustStock(ctx, p.ID, orig.Quantity); err != nil {
			return err
		}
		if err := tx.AdjustStock(ctx, p.ID, -newQuantity); err != nil {
			return err
		}

		tr = &domain.Transaction{
			ProductID:  p.ID,
			Quantity:   newQuantity,
			TotalPrice: p.Price.Mul(decimal.NewFromInt(newQuantity)),
			Type:       domain.TransactionExchange,
			Timestamp:  l.timestamp(),
		}
		return l.record(ctx, tx, tr, final, orig.ID)
	})
	if err != nil {
		return nil, l.reject("exchange", errors.WithMessagef(err, "exchange against transaction %d", transactionID), fields)
	}

	l.logRecorded("exchange", tr)
	return tr, nil
}

// ListProducts returns every product ordered by id
func (l *Ledger) ListProducts(ctx context.Context) ([]*domain.Product, error) {
	if l.cache == nil {
		return l.store.ListProducts(ctx)
	}

	v, err, _ := l.sfg.Do("products", func() (interface{}, error) {
		products, err := l.cache.GetProducts(ctx)
		if err == nil {
			return products, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			l.log.WithError(err).Warn("catalog cache get failed")
		}

		// hold the lock so a concurrent mutation cannot invalidate before a stale set
		l.mu.Lock()
		defer l.mu.Unlock()

		products, err = l.store.ListProducts(ctx)
		if err != nil {
			return nil, err
		}
		if err := l.cache.SetProducts(ctx, products); err != nil {
			l.log.WithError(err).Warn("catalog cache set failed")
		}
		return products, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]*domain.Product), nil
}

// ListTransactions returns every transaction ordered by id
func (l *Ledger) ListTransactions(ctx context.Context) ([]*domain.Transaction, error) {
	return l.store.ListTransactions(ctx)
}

func (l *Ledger) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	return l.store.GetProduct(ctx, id)
}

func (l *Ledger) GetTransaction(ctx context.Context, id int64) (*domain.Transaction, error) {
	return l.store.GetTransaction(ctx, id)
}

func (l *Ledger) withinTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.store.WithinTx(ctx, fn); err != nil {
		return err
	}

	if l.cache != nil {
		if err := l.cache.Invalidate(ctx); err != nil {
			l.log.WithError(err).Warn("catalog cache invalidate failed")
		}
	}
	return nil
}

func (l *Ledger) reference(ctx context.Context, tx repository.Tx, id int64) (*domain.Transaction, error) {
	orig, err := tx.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if l.requireSaleReference && orig.Type != domain.TransactionSale {
		return nil, errors.Wrapf(domain.ErrNotASale, "transaction %d is a %s", orig.ID, orig.Type)
	}
	return orig, nil
}

func (l *Ledger) record(ctx context.Context, tx repository.Tx, tr *domain.Transaction, stockAfter, referenceID int64) error {
	if err := tx.InsertTransaction(ctx, tr); err != nil {
		return err
	}
	return tx.AddOutboxEvent(ctx, domain.TransactionRecorded{
		TransactionID: tr.ID,
		ProductID:     tr.ProductID,
		Kind:          tr.Type,
		Quantity:      tr.Quantity,
		TotalPrice:    tr.TotalPrice,
		StockAfter:    stockAfter,
		ReferenceID:   referenceID,
		RecordedAt:    tr.Timestamp,
	})
}

func (l *Ledger) timestamp() time.Time {
	return l.now().UTC().Truncate(time.Microsecond)
}

func (l *Ledger) logRecorded(op string, tr *domain.Transaction) {
	l.log.WithFields(logrus.Fields{
		"operation":      op,
		"transaction_id": tr.ID,
		"product_id":     tr.ProductID,
		"quantity":       tr.Quantity,
		"total_price":    tr.TotalPrice.String(),
	}).Info("transaction recorded")
}

// reject logs a failed operation and returns err unchanged
func (l *Ledger) reject(op string, err error, fields logrus.Fields) error {
	entry := l.log.WithError(err).WithField("operation", op)
	if fields != nil {
		entry = entry.WithFields(fields)
	}
	if isUserError(err) {
		entry.Warn("operation rejected")
	} else {
		entry.Error("operation failed")
	}
	return err
}

// isUserError reports whether err needs a new user action rather than an operator
func isUserError(err error) bool {
	for _, kind := range []error{
		domain.ErrInvalidInput,
		domain.ErrProductNotFound,
		domain.ErrTransactionNotFound,
		domain.ErrInsufficientStock,
		domain.ErrNotASale,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
