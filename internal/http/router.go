package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// NewRouter mounts the billing API on a chi router
func NewRouter(ledger Ledger, log logrus.FieldLogger, timeout time.Duration) http.Handler {
	products := NewProductHandler(ledger, timeout)
	transactions := NewTransactionHandler(ledger, timeout)

	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LogMiddleware(log))
	r.Use(middleware.Timeout(timeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/products", func(r chi.Router) {
			r.Get("/", products.List)
			r.Post("/", products.Create)
			r.Get("/{product_id}", products.Get)
		})
		r.Post("/sales", transactions.Sell)
		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", transactions.List)
			r.Get("/{transaction_id}", transactions.Get)
			r.Post("/{transaction_id}/return", transactions.Return)
			r.Post("/{transaction_id}/exchange", transactions.Exchange)
		})
	})

	return r
}
