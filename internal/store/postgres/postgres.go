package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"bengkelpos/internal/domain"
	"bengkelpos/internal/store"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the tables the store needs. The CHECK constraints
// on stock_records are the storage-level backstop for the counter
// invariants; every conditional update is written so it never trips them.
func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS products (
			id TEXT PRIMARY KEY,
			sku TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL DEFAULT '',
			category TEXT,
			active BOOLEAN NOT NULL DEFAULT TRUE
		)`,
		`CREATE TABLE IF NOT EXISTS stock_records (
			id TEXT PRIMARY KEY,
			product_id TEXT NOT NULL,
			branch_id TEXT NOT NULL,
			quantity INT NOT NULL DEFAULT 0 CHECK (quantity >= 0),
			reserved_qty INT NOT NULL DEFAULT 0 CHECK (reserved_qty >= 0 AND reserved_qty <= quantity),
			cost_price NUMERIC(14,2) NOT NULL DEFAULT 0,
			selling_price NUMERIC(14,2) NOT NULL DEFAULT 0,
			reorder_point INT NOT NULL DEFAULT 0,
			reorder_qty INT NOT NULL DEFAULT 0,
			supplier_id TEXT,
			location TEXT,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			UNIQUE (product_id, branch_id)
		)`,
		`CREATE TABLE IF NOT EXISTS stock_movements (
			id TEXT PRIMARY KEY,
			stock_record_id TEXT NOT NULL REFERENCES stock_records(id),
			product_id TEXT NOT NULL,
			branch_id TEXT NOT NULL,
			type TEXT NOT NULL,
			quantity_change INT NOT NULL,
			quantity_before INT NOT NULL,
			quantity_after INT NOT NULL,
			reference_kind TEXT,
			reference_id TEXT,
			performed_by TEXT NOT NULL,
			notes TEXT,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_movements_record ON stock_movements (stock_record_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_movements_branch ON stock_movements (branch_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS stock_transfers (
			id TEXT PRIMARY KEY,
			product_id TEXT NOT NULL,
			from_branch_id TEXT NOT NULL,
			to_branch_id TEXT NOT NULL,
			quantity INT NOT NULL CHECK (quantity > 0),
			status TEXT NOT NULL,
			notes TEXT,
			created_by TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			completed_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS sales_orders (
			id TEXT PRIMARY KEY,
			order_number TEXT NOT NULL UNIQUE,
			branch_id TEXT NOT NULL,
			customer_name TEXT,
			customer_phone TEXT,
			customer_email TEXT,
			customer_address TEXT,
			subtotal NUMERIC(14,2) NOT NULL,
			tax_rate NUMERIC(8,4) NOT NULL DEFAULT 0,
			tax_amount NUMERIC(14,2) NOT NULL DEFAULT 0,
			discount NUMERIC(14,2) NOT NULL DEFAULT 0,
			total NUMERIC(14,2) NOT NULL,
			payment_method TEXT,
			amount_paid NUMERIC(14,2) NOT NULL DEFAULT 0,
			payment_status TEXT NOT NULL,
			payment_change NUMERIC(14,2) NOT NULL DEFAULT 0,
			paid_at TIMESTAMPTZ,
			status TEXT NOT NULL,
			processed_by TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			completed_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS sales_order_items (
			order_id TEXT NOT NULL REFERENCES sales_orders(id),
			line_no INT NOT NULL,
			product_id TEXT NOT NULL,
			quantity INT NOT NULL CHECK (quantity > 0),
			unit_price NUMERIC(14,2) NOT NULL,
			discount NUMERIC(14,2) NOT NULL DEFAULT 0,
			total NUMERIC(14,2) NOT NULL,
			PRIMARY KEY (order_id, line_no)
		)`,
		`CREATE TABLE IF NOT EXISTS service_orders (
			id TEXT PRIMARY KEY,
			job_number TEXT NOT NULL UNIQUE,
			branch_id TEXT NOT NULL,
			customer_name TEXT,
			customer_phone TEXT,
			customer_email TEXT,
			customer_address TEXT,
			vehicle_make TEXT,
			vehicle_model TEXT,
			vehicle_year INT,
			vehicle_plate TEXT,
			vehicle_vin TEXT,
			vehicle_mileage INT,
			description TEXT NOT NULL,
			diagnosis TEXT,
			assigned_to TEXT,
			total_parts NUMERIC(14,2) NOT NULL DEFAULT 0,
			labor_cost NUMERIC(14,2) NOT NULL DEFAULT 0,
			other_charges NUMERIC(14,2) NOT NULL DEFAULT 0,
			total_amount NUMERIC(14,2) NOT NULL DEFAULT 0,
			payment_method TEXT,
			amount_paid NUMERIC(14,2) NOT NULL DEFAULT 0,
			payment_status TEXT NOT NULL,
			payment_change NUMERIC(14,2) NOT NULL DEFAULT 0,
			paid_at TIMESTAMPTZ,
			status TEXT NOT NULL,
			priority TEXT NOT NULL,
			scheduled_at TIMESTAMPTZ,
			started_at TIMESTAMPTZ,
			completed_at TIMESTAMPTZ,
			created_by TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS service_order_parts (
			order_id TEXT NOT NULL REFERENCES service_orders(id),
			line_no INT NOT NULL,
			product_id TEXT NOT NULL,
			sku TEXT,
			name TEXT,
			quantity INT NOT NULL CHECK (quantity > 0),
			unit_price NUMERIC(14,2) NOT NULL,
			total NUMERIC(14,2) NOT NULL,
			PRIMARY KEY (order_id, line_no)
		)`,
		`CREATE TABLE IF NOT EXISTS app_users (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			password TEXT NOT NULL,
			role TEXT NOT NULL,
			branch_id TEXT,
			active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// withSerializableRetry runs fn in a serializable transaction, retrying
// a bounded number of times when Postgres aborts it with a
// serialization failure. Losing every retry surfaces as ErrConflict.
func (s *Store) withSerializableRetry(ctx context.Context, fn func(tx *sql.Tx) error) error {
	const attempts = 3
	for i := 0; i < attempts; i++ {
		err := s.runSerializable(ctx, fn)
		if err == nil {
			return nil
		}
		if !isSerializationFailure(err) {
			return err
		}
	}
	return store.ErrConflict
}

func (s *Store) runSerializable(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func insertMovement(ctx context.Context, db execer, m domain.StockMovement) error {
	var refKind, refID any
	if m.Reference != nil {
		refKind = m.Reference.Kind
		refID = m.Reference.ID
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO stock_movements (
			id, stock_record_id, product_id, branch_id, type,
			quantity_change, quantity_before, quantity_after,
			reference_kind, reference_id, performed_by, notes, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, m.ID, m.StockRecordID, m.ProductID, m.BranchID, m.Type,
		m.QuantityChange, m.QuantityBefore, m.QuantityAfter,
		refKind, refID, m.PerformedBy, nullIfEmpty(m.Notes), m.CreatedAt)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}

func scanNullTime(dst **time.Time, src sql.NullTime) {
	if src.Valid {
		at := src.Time.UTC()
		*dst = &at
	}
}
