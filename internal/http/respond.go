package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/Debojyoti-Gho/offline-billing-app/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const maxRequestBodySize = 1 << 20 // 1MB

type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Details   string `json:"details,omitempty"`
	Available *int64 `json:"available,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logrus.WithError(err).Error("failed to encode response")
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// handleLedgerError maps ledger error kinds to HTTP statuses
func handleLedgerError(w http.ResponseWriter, err error) {
	var stockErr *domain.InsufficientStockError
	switch {
	case errors.As(err, &stockErr):
		available := stockErr.Available
		respondJSON(w, http.StatusConflict, ErrorResponse{
			Error:     "insufficient stock",
			Code:      "insufficient_stock",
			Details:   err.Error(),
			Available: &available,
		})
	case errors.Is(err, domain.ErrInvalidInput):
		respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid input", Code: "invalid_input", Details: err.Error()})
	case errors.Is(err, domain.ErrProductNotFound):
		respondError(w, http.StatusNotFound, "product_not_found", "product not found")
	case errors.Is(err, domain.ErrTransactionNotFound):
		respondError(w, http.StatusNotFound, "transaction_not_found", "transaction not found")
	case errors.Is(err, domain.ErrNotASale):
		respondJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: "transaction is not a sale", Code: "not_a_sale", Details: err.Error()})
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusGatewayTimeout, "timeout", "request timed out")
	default:
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON body", Code: "invalid_request", Details: err.Error()})
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_request", name+" must be a positive integer")
		return 0, false
	}
	return id, true
}
