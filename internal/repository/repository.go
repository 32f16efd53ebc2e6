package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/Debojyoti-Gho/offline-billing-app/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

const timeLayout = "2006-01-02 15:04:05.000000Z07:00"

// Repository is the SQL-backed Store (sqlite or postgres)
type Repository struct {
	db     *sqlx.DB
	driver string
}

var _ Store = (*Repository)(nil)

func NewRepository(driverName, dsn string) (*Repository, error) {
	switch driverName {
	case DriverSQLite:
		dsn = sqliteDSN(dsn)
	case DriverPostgres:
	default:
		return nil, errors.Errorf("unsupported database driver %q", driverName)
	}

	db, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	if driverName == DriverSQLite {
		// one connection: writers serialise and :memory: stays a single database
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(100)
		db.SetMaxIdleConns(10)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}

	return &Repository{db: db, driver: driverName}, nil
}

func sqliteDSN(path string) string {
	if path == ":memory:" || strings.Contains(path, "?") {
		return path
	}
	return "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// RunMigrations applies migrationsPath/<driver>/*.sql
func (r *Repository) RunMigrations(migrationsPath string) error {
	var (
		instance migratedb.Driver
		err      error
	)
	switch r.driver {
	case DriverSQLite:
		instance, err = sqlite.WithInstance(r.db.DB, &sqlite.Config{})
	case DriverPostgres:
		instance, err = postgres.WithInstance(r.db.DB, &postgres.Config{
			MigrationsTable: "billing_schema_migrations",
		})
	}
	if err != nil {
		return errors.Wrap(err, "could not create migration driver")
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", filepath.Join(migrationsPath, r.driver)),
		r.driver,
		instance,
	)
	if err != nil {
		return errors.Wrap(err, "could not create migrate instance")
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, "could not run migrations")
	}

	return nil
}

func (r *Repository) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer tx.Rollback()

	if err := fn(&sqlTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit transaction")
	}
	return nil
}

func (r *Repository) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	return getProduct(ctx, r.db, id)
}

func (r *Repository) GetTransaction(ctx context.Context, id int64) (*domain.Transaction, error) {
	return getTransaction(ctx, r.db, id)
}

func (r *Repository) ListProducts(ctx context.Context) ([]*domain.Product, error) {
	var products []*domain.Product
	query := `SELECT id, name, price, stock FROM products ORDER BY id`
	if err := sqlx.SelectContext(ctx, r.db, &products, query); err != nil {
		return nil, errors.Wrap(err, "failed to query products")
	}
	return products, nil
}

func (r *Repository) ListTransactions(ctx context.Context) ([]*domain.Transaction, error) {
	var rows []transactionRow
	query := `
		SELECT id, product_id, quantity, total_price, transaction_type, created_at
		FROM transactions
		ORDER BY id
	`
	if err := sqlx.SelectContext(ctx, r.db, &rows, query); err != nil {
		return nil, errors.Wrap(err, "failed to query transactions")
	}

	transactions := make([]*domain.Transaction, len(rows))
	for i, row := range rows {
		transactions[i] = row.toDomain()
	}
	return transactions, nil
}

func (r *Repository) GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	var rows []outboxRow
	query := r.db.Rebind(`
		SELECT id, aggregate_id, event_type, payload, created_at
		FROM outbox
		WHERE processed_at IS NULL
		ORDER BY id
		LIMIT ?
	`)
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, limit); err != nil {
		return nil, errors.Wrap(err, "failed to query outbox")
	}

	events := make([]*OutboxEvent, len(rows))
	for i, row := range rows {
		events[i] = &OutboxEvent{
			ID:          row.ID,
			AggregateID: row.AggregateID,
			EventType:   row.EventType,
			Payload:     json.RawMessage(row.Payload),
			CreatedAt:   row.CreatedAt.Time,
		}
	}
	return events, nil
}

func (r *Repository) MarkEventAsProcessed(ctx context.Context, id int64) error {
	query := r.db.Rebind(`UPDATE outbox SET processed_at = ? WHERE id = ?`)
	if _, err := r.db.ExecContext(ctx, query, dbTime{time.Now()}, id); err != nil {
		return errors.Wrapf(err, "mark outbox event %d processed", id)
	}
	return nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

type sqlTx struct {
	tx *sqlx.Tx
}

func (t *sqlTx) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	return getProduct(ctx, t.tx, id)
}

func (t *sqlTx) GetTransaction(ctx context.Context, id int64) (*domain.Transaction, error) {
	return getTransaction(ctx, t.tx, id)
}

func (t *sqlTx) InsertProduct(ctx context.Context, p *domain.Product) error {
	query := t.tx.Rebind(`INSERT INTO products (name, price, stock) VALUES (?, ?, ?) RETURNING id`)
	if err := t.tx.QueryRowxContext(ctx, query, p.Name, p.Price, p.Stock).Scan(&p.ID); err != nil {
		return errors.Wrap(err, "insert product")
	}
	return nil
}

func (t *sqlTx) AdjustStock(ctx context.Context, productID int64, delta int64) error {
	query := t.tx.Rebind(`UPDATE products SET stock = stock + ? WHERE id = ? AND stock + ? >= 0`)
	res, err := t.tx.ExecContext(ctx, query, delta, productID, delta)
	if err != nil {
		return errors.Wrap(err, "adjust stock")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "adjust stock")
	}
	if n == 1 {
		return nil
	}

	p, err := getProduct(ctx, t.tx, productID)
	if err != nil {
		return err
	}
	return &domain.InsufficientStockError{ProductID: productID, Requested: -delta, Available: p.Stock}
}

func (t *sqlTx) InsertTransaction(ctx context.Context, tr *domain.Transaction) error {
	query := t.tx.Rebind(`
		INSERT INTO transactions (product_id, quantity, total_price, transaction_type, created_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id
	`)
	err := t.tx.QueryRowxContext(ctx, query,
		tr.ProductID,
		tr.Quantity,
		tr.TotalPrice,
		string(tr.Type),
		dbTime{tr.Timestamp},
	).Scan(&tr.ID)
	if err != nil {
		return errors.Wrap(err, "insert transaction")
	}
	return nil
}

func (t *sqlTx) AddOutboxEvent(ctx context.Context, ev domain.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrapf(err, "marshal %s event", ev.Type())
	}

	query := t.tx.Rebind(`
		INSERT INTO outbox (aggregate_id, event_type, payload, created_at)
		VALUES (?, ?, ?, ?)
	`)
	if _, err := t.tx.ExecContext(ctx, query, ev.AggregateID(), ev.Type(), string(payload), dbTime{time.Now()}); err != nil {
		return errors.Wrap(err, "insert outbox event")
	}
	return nil
}

func getProduct(ctx context.Context, q sqlx.ExtContext, id int64) (*domain.Product, error) {
	var p domain.Product
	query := q.Rebind(`SELECT id, name, price, stock FROM products WHERE id = ?`)
	err := sqlx.GetContext(ctx, q, &p, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrProductNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "query product %d", id)
	}
	return &p, nil
}

func getTransaction(ctx context.Context, q sqlx.ExtContext, id int64) (*domain.Transaction, error) {
	var row transactionRow
	query := q.Rebind(`
		SELECT id, product_id, quantity, total_price, transaction_type, created_at
		FROM transactions
		WHERE id = ?
	`)
	err := sqlx.GetContext(ctx, q, &row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrTransactionNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "query transaction %d", id)
	}
	return row.toDomain(), nil
}

type transactionRow struct {
	ID         int64           `db:"id"`
	ProductID  int64           `db:"product_id"`
	Quantity   int64           `db:"quantity"`
	TotalPrice decimal.Decimal `db:"total_price"`
	Type       string          `db:"transaction_type"`
	CreatedAt  dbTime          `db:"created_at"`
}

func (r transactionRow) toDomain() *domain.Transaction {
	return &domain.Transaction{
		ID:         r.ID,
		ProductID:  r.ProductID,
		Quantity:   r.Quantity,
		TotalPrice: r.TotalPrice,
		Type:       domain.TransactionType(r.Type),
		Timestamp:  r.CreatedAt.Time,
	}
}

type outboxRow struct {
	ID          int64  `db:"id"`
	AggregateID string `db:"aggregate_id"`
	EventType   string `db:"event_type"`
	Payload     string `db:"payload"`
	CreatedAt   dbTime `db:"created_at"`
}

// dbTime stores UTC timestamps as text in sqlite and as timestamptz in postgres
type dbTime struct {
	time.Time
}

func (t dbTime) Value() (driver.Value, error) {
	return t.UTC().Format(timeLayout), nil
}

func (t *dbTime) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		t.Time = v.UTC()
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	case nil:
		t.Time = time.Time{}
		return nil
	}
	return errors.Errorf("cannot scan %T into timestamp", src)
}

func (t *dbTime) parse(s string) error {
	for _, layout := range []string{timeLayout, time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return errors.Errorf("unrecognised timestamp %q", s)
}
