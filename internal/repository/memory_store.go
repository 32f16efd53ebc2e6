package repository

import (
	"context"
	"encoding/json"
	"maps"
	"sync"
	"time"

	"github.com/Debojyoti-Gho/offline-billing-app/internal/domain"
	"github.com/pkg/errors"
)

// MemoryStore implements Store with in-memory storage
type MemoryStore struct {
	mu           sync.RWMutex
	products     map[int64]domain.Product // productID -> product
	transactions []domain.Transaction     // append-only, index i holds id i+1
	outbox       []memoryOutboxEntry

	nextProductID int64
}

type memoryOutboxEntry struct {
	event     OutboxEvent
	processed bool
}

// snapshot is the state WithinTx restores when fn fails
type snapshot struct {
	products      map[int64]domain.Product
	transactions  int
	outbox        int
	nextProductID int64
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products: make(map[int64]domain.Product),
	}
}

// WithinTx holds the write lock for the whole of fn and rolls back on error
func (s *MemoryStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := snapshot{
		products:      maps.Clone(s.products),
		transactions:  len(s.transactions),
		outbox:        len(s.outbox),
		nextProductID: s.nextProductID,
	}

	if err := fn(&memoryTx{s: s}); err != nil {
		s.products = snap.products
		s.transactions = s.transactions[:snap.transactions]
		s.outbox = s.outbox[:snap.outbox]
		s.nextProductID = snap.nextProductID
		return err
	}
	return nil
}

func (s *MemoryStore) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.product(id)
}

func (s *MemoryStore) GetTransaction(_ context.Context, id int64) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.transaction(id)
}

func (s *MemoryStore) ListProducts(_ context.Context) ([]*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// ids are dense: 1..nextProductID
	result := make([]*domain.Product, 0, len(s.products))
	for id := int64(1); id <= s.nextProductID; id++ {
		if p, ok := s.products[id]; ok {
			result = append(result, &p)
		}
	}
	return result, nil
}

func (s *MemoryStore) ListTransactions(_ context.Context) ([]*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Transaction, len(s.transactions))
	for i := range s.transactions {
		t := s.transactions[i]
		result[i] = &t
	}
	return result, nil
}

func (s *MemoryStore) GetUnprocessedEvents(_ context.Context, limit int) ([]*OutboxEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*OutboxEvent
	for i := range s.outbox {
		if len(result) >= limit {
			break
		}
		if s.outbox[i].processed {
			continue
		}
		ev := s.outbox[i].event
		result = append(result, &ev)
	}
	return result, nil
}

func (s *MemoryStore) MarkEventAsProcessed(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id < 1 || id > int64(len(s.outbox)) {
		return errors.Errorf("outbox event %d not found", id)
	}
	s.outbox[id-1].processed = true
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// product and transaction expect the caller to hold s.mu
func (s *MemoryStore) product(id int64) (*domain.Product, error) {
	p, ok := s.products[id]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	return &p, nil
}

func (s *MemoryStore) transaction(id int64) (*domain.Transaction, error) {
	if id < 1 || id > int64(len(s.transactions)) {
		return nil, domain.ErrTransactionNotFound
	}
	t := s.transactions[id-1]
	return &t, nil
}

// memoryTx runs with the store's write lock already held
type memoryTx struct {
	s *MemoryStore
}

func (t *memoryTx) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	return t.s.product(id)
}

func (t *memoryTx) GetTransaction(_ context.Context, id int64) (*domain.Transaction, error) {
	return t.s.transaction(id)
}

func (t *memoryTx) InsertProduct(_ context.Context, p *domain.Product) error {
	t.s.nextProductID++
	p.ID = t.s.nextProductID
	t.s.products[p.ID] = *p
	return nil
}

func (t *memoryTx) AdjustStock(_ context.Context, productID int64, delta int64) error {
	p, ok := t.s.products[productID]
	if !ok {
		return domain.ErrProductNotFound
	}
	if p.Stock+delta < 0 {
		return &domain.InsufficientStockError{ProductID: productID, Requested: -delta, Available: p.Stock}
	}
	p.Stock += delta
	t.s.products[productID] = p
	return nil
}

func (t *memoryTx) InsertTransaction(_ context.Context, tr *domain.Transaction) error {
	if _, ok := t.s.products[tr.ProductID]; !ok {
		return domain.ErrProductNotFound
	}
	tr.ID = int64(len(t.s.transactions)) + 1
	t.s.transactions = append(t.s.transactions, *tr)
	return nil
}

func (t *memoryTx) AddOutboxEvent(_ context.Context, ev domain.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrapf(err, "marshal %s event", ev.Type())
	}
	t.s.outbox = append(t.s.outbox, memoryOutboxEntry{
		event: OutboxEvent{
			ID:          int64(len(t.s.outbox)) + 1,
			AggregateID: ev.AggregateID(),
			EventType:   ev.Type(),
			Payload:     payload,
			CreatedAt:   time.Now(),
		},
	})
	return nil
}
