package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/Debojyoti-Gho/offline-billing-app/internal/domain"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const timestampLayout = "2006-01-02 15:04:05"

// Renderer turns ledger results into the messages and tables shown to the cashier
type Renderer struct {
	out      io.Writer
	currency string
}

func NewRenderer(out io.Writer, currency string) *Renderer {
	return &Renderer{out: out, currency: currency}
}

func (r *Renderer) Money(d decimal.Decimal) string {
	return r.currency + d.StringFixed(2)
}

func (r *Renderer) ProductAdded(p *domain.Product) {
	fmt.Fprintf(r.out, "Product '%s' added successfully!\n", p.Name)
}

func (r *Renderer) Sold(p *domain.Product, tr *domain.Transaction) {
	fmt.Fprintf(r.out, "Bill Generated: %s x %d = %s\n", p.Name, tr.Quantity, r.Money(tr.TotalPrice))
}

// Returned shows the refund as a positive amount
func (r *Renderer) Returned(tr *domain.Transaction) {
	fmt.Fprintf(r.out, "Return Processed: %s refunded.\n", r.Money(tr.TotalPrice.Abs()))
}

func (r *Renderer) Exchanged(tr *domain.Transaction) {
	fmt.Fprintf(r.out, "Exchange Processed: New Quantity = %d, Total = %s\n", tr.Quantity, r.Money(tr.TotalPrice))
}

func (r *Renderer) Products(products []*domain.Product) error {
	w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tName\tPrice\tStock")
	for _, p := range products {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\n", p.ID, p.Name, r.Money(p.Price), p.Stock)
	}
	return w.Flush()
}

// Transactions prints product names where known and the raw id otherwise
func (r *Renderer) Transactions(txs []*domain.Transaction, names map[int64]string) error {
	w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tProduct\tQuantity\tTotal\tType\tTimestamp")
	for _, t := range txs {
		product, ok := names[t.ProductID]
		if !ok {
			product = fmt.Sprintf("#%d", t.ProductID)
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\t%s\n",
			t.ID, product, t.Quantity, r.Money(t.TotalPrice), t.Type, t.Timestamp.Local().Format(timestampLayout))
	}
	return w.Flush()
}

// userError carries the message shown to the cashier while keeping the cause
type userError struct {
	msg   string
	cause error
}

func (e *userError) Error() string { return e.msg }
func (e *userError) Unwrap() error { return e.cause }

// describe converts a ledger error into a cashier-facing message.
// productName and transactionID fill in the message where it names them.
func describe(err error, op, productName string, transactionID int64) error {
	var stockErr *domain.InsufficientStockError
	var msg string
	switch {
	case errors.As(err, &stockErr):
		if op == "exchange" {
			msg = fmt.Sprintf("Insufficient stock for exchange. Available: %d", stockErr.Available)
		} else {
			msg = fmt.Sprintf("Insufficient stock for %s. Available: %d", productName, stockErr.Available)
		}
	case errors.Is(err, domain.ErrInvalidInput):
		msg = "Please fill all fields correctly."
	case errors.Is(err, domain.ErrProductNotFound):
		msg = "Product not found."
	case errors.Is(err, domain.ErrTransactionNotFound):
		msg = "Transaction not found."
	case errors.Is(err, domain.ErrNotASale):
		msg = fmt.Sprintf("Transaction %d is not a sale.", transactionID)
	default:
		return err
	}
	return &userError{msg: msg, cause: err}
}
