package http

import (
	"context"
	"net/http"
	"time"

	"github.com/Debojyoti-Gho/offline-billing-app/internal/domain"
	"github.com/shopspring/decimal"
)

// Ledger is the set of ledger operations the handlers call
type Ledger interface {
	AddProduct(ctx context.Context, name string, price decimal.Decimal, stock int64) (*domain.Product, error)
	Sell(ctx context.Context, productID, quantity int64) (*domain.Transaction, error)
	Return(ctx context.Context, transactionID, quantity int64) (*domain.Transaction, error)
	Exchange(ctx context.Context, transactionID, newQuantity int64) (*domain.Transaction, error)
	ListProducts(ctx context.Context) ([]*domain.Product, error)
	ListTransactions(ctx context.Context) ([]*domain.Transaction, error)
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	GetTransaction(ctx context.Context, id int64) (*domain.Transaction, error)
}

type ProductHandler struct {
	ledger  Ledger
	timeout time.Duration
}

func NewProductHandler(ledger Ledger, timeout time.Duration) *ProductHandler {
	return &ProductHandler{
		ledger:  ledger,
		timeout: timeout,
	}
}

type CreateProductRequestDTO struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
	Stock int64           `json:"stock"`
}

type ProductResponse struct {
	ID    int64           `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
	Stock int64           `json:"stock"`
}

type ProductsResponse struct {
	Products []ProductResponse `json:"products"`
}

func toProductResponse(p *domain.Product) ProductResponse {
	return ProductResponse{
		ID:    p.ID,
		Name:  p.Name,
		Price: p.Price,
		Stock: p.Stock,
	}
}

func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	res, err := h.ledger.ListProducts(ctx)
	if err != nil {
		handleLedgerError(w, err)
		return
	}

	products := make([]ProductResponse, len(res))
	for i, p := range res {
		products[i] = toProductResponse(p)
	}
	respondJSON(w, http.StatusOK, &ProductsResponse{Products: products})
}

func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := pathID(w, r, "product_id")
	if !ok {
		return
	}

	p, err := h.ledger.GetProduct(ctx, id)
	if err != nil {
		handleLedgerError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toProductResponse(p))
}

func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req CreateProductRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := h.ledger.AddProduct(ctx, req.Name, req.Price, req.Stock)
	if err != nil {
		handleLedgerError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, toProductResponse(p))
}
