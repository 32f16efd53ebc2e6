package repository

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Debojyoti-Gho/offline-billing-app/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *Repository {
	// Use in-memory database for tests
	repo, err := NewRepository(DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	require.NoError(t, repo.RunMigrations("./migrations"))
	return repo
}

func TestSQLiteStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store { return setupTestDB(t) })
}

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store { return NewMemoryStore() })
}

func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("InsertAndGetProduct", func(t *testing.T) {
		testInsertAndGetProduct(t, newStore(t))
	})
	t.Run("ListProductsOrderedByID", func(t *testing.T) {
		testListProductsOrderedByID(t, newStore(t))
	})
	t.Run("AdjustStock", func(t *testing.T) {
		testAdjustStock(t, newStore(t))
	})
	t.Run("TransactionsRoundTrip", func(t *testing.T) {
		testTransactionsRoundTrip(t, newStore(t))
	})
	t.Run("DecimalsAreExact", func(t *testing.T) {
		testDecimalsAreExact(t, newStore(t))
	})
	t.Run("RollbackOnError", func(t *testing.T) {
		testRollbackOnError(t, newStore(t))
	})
	t.Run("Outbox", func(t *testing.T) {
		testOutbox(t, newStore(t))
	})
	t.Run("NotFound", func(t *testing.T) {
		testNotFound(t, newStore(t))
	})
}

func seedProduct(t *testing.T, s Store, name, price string, stock int64) *domain.Product {
	t.Helper()
	p := &domain.Product{Name: name, Price: decimal.RequireFromString(price), Stock: stock}
	err := s.WithinTx(context.Background(), func(tx Tx) error {
		return tx.InsertProduct(context.Background(), p)
	})
	require.NoError(t, err)
	return p
}

func testInsertAndGetProduct(t *testing.T, s Store) {
	ctx := context.Background()
	p := seedProduct(t, s, "Notebook", "19.99", 10)
	assert.Equal(t, int64(1), p.ID)

	got, err := s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Notebook", got.Name)
	assert.True(t, decimal.RequireFromString("19.99").Equal(got.Price), "price %s", got.Price)
	assert.Equal(t, int64(10), got.Stock)
}

func testListProductsOrderedByID(t *testing.T, s Store) {
	seedProduct(t, s, "A", "1", 1)
	seedProduct(t, s, "B", "2", 2)
	seedProduct(t, s, "C", "3", 3)

	products, err := s.ListProducts(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 3)
	for i, p := range products {
		assert.Equal(t, int64(i+1), p.ID)
	}
	assert.Equal(t, "C", products[2].Name)
}

func testAdjustStock(t *testing.T, s Store) {
	ctx := context.Background()
	p := seedProduct(t, s, "Pen", "2.50", 5)

	err := s.WithinTx(ctx, func(tx Tx) error {
		return tx.AdjustStock(ctx, p.ID, -3)
	})
	require.NoError(t, err)

	err = s.WithinTx(ctx, func(tx Tx) error {
		return tx.AdjustStock(ctx, p.ID, -3)
	})
	var stockErr *domain.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Equal(t, int64(2), stockErr.Available)

	got, err := s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Stock)

	err = s.WithinTx(ctx, func(tx Tx) error {
		return tx.AdjustStock(ctx, 999, 1)
	})
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
}

func testTransactionsRoundTrip(t *testing.T, s Store) {
	ctx := context.Background()
	p := seedProduct(t, s, "Mug", "20", 10)
	ts := time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)

	sale := &domain.Transaction{
		ProductID:  p.ID,
		Quantity:   5,
		TotalPrice: decimal.NewFromInt(100),
		Type:       domain.TransactionSale,
		Timestamp:  ts,
	}
	refund := &domain.Transaction{
		ProductID:  p.ID,
		Quantity:   -2,
		TotalPrice: decimal.NewFromInt(-40),
		Type:       domain.TransactionReturn,
		Timestamp:  ts.Add(time.Minute),
	}
	err := s.WithinTx(ctx, func(tx Tx) error {
		if err := tx.InsertTransaction(ctx, sale); err != nil {
			return err
		}
		return tx.InsertTransaction(ctx, refund)
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), sale.ID)
	assert.Equal(t, int64(2), refund.ID)

	got, err := s.GetTransaction(ctx, refund.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionReturn, got.Type)
	assert.Equal(t, int64(-2), got.Quantity)
	assert.True(t, decimal.NewFromInt(-40).Equal(got.TotalPrice))
	assert.True(t, ts.Add(time.Minute).Equal(got.Timestamp), "timestamp %s", got.Timestamp)

	all, err := s.ListTransactions(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, domain.TransactionSale, all[0].Type)
	assert.Equal(t, domain.TransactionReturn, all[1].Type)
}

func testDecimalsAreExact(t *testing.T, s Store) {
	ctx := context.Background()
	prices := []string{"0.10000000000000001", "0.12345", "1234567890123.456789"}
	for _, price := range prices {
		seedProduct(t, s, "Item", price, 1)
	}

	products, err := s.ListProducts(ctx)
	require.NoError(t, err)
	require.Len(t, products, len(prices))
	for i, p := range products {
		assert.True(t, decimal.RequireFromString(prices[i]).Equal(p.Price), "want %s, got %s", prices[i], p.Price)
	}

	refund := &domain.Transaction{
		ProductID:  products[0].ID,
		Quantity:   -1,
		TotalPrice: decimal.NewFromInt(-100).Div(decimal.NewFromInt(3)),
		Type:       domain.TransactionReturn,
		Timestamp:  time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC),
	}
	require.NoError(t, s.WithinTx(ctx, func(tx Tx) error {
		return tx.InsertTransaction(ctx, refund)
	}))

	got, err := s.GetTransaction(ctx, refund.ID)
	require.NoError(t, err)
	assert.True(t, refund.TotalPrice.Equal(got.TotalPrice), "want %s, got %s", refund.TotalPrice, got.TotalPrice)
}

func testRollbackOnError(t *testing.T, s Store) {
	ctx := context.Background()
	p := seedProduct(t, s, "Lamp", "15", 4)
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(tx Tx) error {
		if err := tx.AdjustStock(ctx, p.ID, -4); err != nil {
			return err
		}
		if err := tx.InsertTransaction(ctx, &domain.Transaction{
			ProductID:  p.ID,
			Quantity:   4,
			TotalPrice: decimal.NewFromInt(60),
			Type:       domain.TransactionSale,
			Timestamp:  time.Now(),
		}); err != nil {
			return err
		}
		if err := tx.AddOutboxEvent(ctx, domain.ProductAdded{ProductID: p.ID}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), got.Stock)

	all, err := s.ListTransactions(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	events, err := s.GetUnprocessedEvents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func testOutbox(t *testing.T, s Store) {
	ctx := context.Background()
	err := s.WithinTx(ctx, func(tx Tx) error {
		if err := tx.AddOutboxEvent(ctx, domain.ProductAdded{ProductID: 1, Name: "A"}); err != nil {
			return err
		}
		return tx.AddOutboxEvent(ctx, domain.ProductAdded{ProductID: 2, Name: "B"})
	})
	require.NoError(t, err)

	events, err := s.GetUnprocessedEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "ProductAdded", events[0].EventType)
	assert.Equal(t, "product-1", events[0].AggregateID)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(events[1].Payload, &payload))
	assert.Equal(t, "B", payload["name"])

	require.NoError(t, s.MarkEventAsProcessed(ctx, events[0].ID))

	events, err = s.GetUnprocessedEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "product-2", events[0].AggregateID)

	limited, err := s.GetUnprocessedEvents(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, limited)
}

func testNotFound(t *testing.T, s Store) {
	ctx := context.Background()

	product, err := s.GetProduct(ctx, -1)
	assert.Nil(t, product)
	assert.ErrorIs(t, err, domain.ErrProductNotFound)

	tr, err := s.GetTransaction(ctx, 42)
	assert.Nil(t, tr)
	assert.ErrorIs(t, err, domain.ErrTransactionNotFound)
}

func TestNewRepository_UnsupportedDriver(t *testing.T) {
	_, err := NewRepository("mysql", "whatever")
	assert.Error(t, err)
}

func TestListProducts_CancelledContext(t *testing.T) {
	repo := setupTestDB(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := repo.ListProducts(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDBTime_ParsesLegacyLayout(t *testing.T) {
	var ts dbTime
	require.NoError(t, ts.Scan("2024-01-02 03:04:05"))
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), ts.Time)

	assert.Error(t, ts.Scan(42))
}
