package http

import (
	"context"
	"net/http"
	"time"

	"github.com/Debojyoti-Gho/offline-billing-app/internal/domain"
	"github.com/shopspring/decimal"
)

type TransactionHandler struct {
	ledger  Ledger
	timeout time.Duration
}

func NewTransactionHandler(ledger Ledger, timeout time.Duration) *TransactionHandler {
	return &TransactionHandler{
		ledger:  ledger,
		timeout: timeout,
	}
}

type SellRequestDTO struct {
	ProductID int64 `json:"product_id"`
	Quantity  int64 `json:"quantity"`
}

// QuantityRequestDTO is the body of return and exchange requests
type QuantityRequestDTO struct {
	Quantity int64 `json:"quantity"`
}

type TransactionResponse struct {
	ID         int64           `json:"id"`
	ProductID  int64           `json:"product_id"`
	Quantity   int64           `json:"quantity"`
	TotalPrice decimal.Decimal `json:"total_price"`
	Type       string          `json:"type"`
	Timestamp  time.Time       `json:"timestamp"`
}

type TransactionsResponse struct {
	Transactions []TransactionResponse `json:"transactions"`
}

func toTransactionResponse(t *domain.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:         t.ID,
		ProductID:  t.ProductID,
		Quantity:   t.Quantity,
		TotalPrice: t.TotalPrice,
		Type:       string(t.Type),
		Timestamp:  t.Timestamp,
	}
}

func (h *TransactionHandler) Sell(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req SellRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ProductID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be positive")
		return
	}

	tr, err := h.ledger.Sell(ctx, req.ProductID, req.Quantity)
	if err != nil {
		handleLedgerError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, toTransactionResponse(tr))
}

func (h *TransactionHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	res, err := h.ledger.ListTransactions(ctx)
	if err != nil {
		handleLedgerError(w, err)
		return
	}

	txs := make([]TransactionResponse, len(res))
	for i, t := range res {
		txs[i] = toTransactionResponse(t)
	}
	respondJSON(w, http.StatusOK, &TransactionsResponse{Transactions: txs})
}

func (h *TransactionHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := pathID(w, r, "transaction_id")
	if !ok {
		return
	}

	tr, err := h.ledger.GetTransaction(ctx, id)
	if err != nil {
		handleLedgerError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toTransactionResponse(tr))
}

func (h *TransactionHandler) Return(w http.ResponseWriter, r *http.Request) {
	h.adjust(w, r, h.ledger.Return)
}

func (h *TransactionHandler) Exchange(w http.ResponseWriter, r *http.Request) {
	h.adjust(w, r, h.ledger.Exchange)
}

// adjust runs a return or exchange against the transaction named in the path
func (h *TransactionHandler) adjust(w http.ResponseWriter, r *http.Request,
	op func(ctx context.Context, transactionID, quantity int64) (*domain.Transaction, error)) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := pathID(w, r, "transaction_id")
	if !ok {
		return
	}
	var req QuantityRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	tr, err := op(ctx, id, req.Quantity)
	if err != nil {
		handleLedgerError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, toTransactionResponse(tr))
}
