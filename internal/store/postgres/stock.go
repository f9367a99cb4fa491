package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"bengkelpos/internal/domain"
	"bengkelpos/internal/store"
	"bengkelpos/internal/xid"
)

const stockColumns = `id, product_id, branch_id, quantity, reserved_qty,
	cost_price, selling_price, reorder_point, reorder_qty,
	COALESCE(supplier_id,''), COALESCE(location,''), created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStockRecord(row rowScanner) (*domain.StockRecord, error) {
	var rec domain.StockRecord
	err := row.Scan(
		&rec.ID,
		&rec.ProductID,
		&rec.BranchID,
		&rec.Quantity,
		&rec.ReservedQty,
		&rec.CostPrice,
		&rec.SellingPrice,
		&rec.ReorderPoint,
		&rec.ReorderQty,
		&rec.SupplierID,
		&rec.Location,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return &rec, nil
}

func (s *Store) Restock(ctx context.Context, p store.RestockParams) (*domain.StockRecord, error) {
	var result *domain.StockRecord
	err := s.withSerializableRetry(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC()

		rec, err := scanStockRecord(tx.QueryRowContext(ctx, `
			UPDATE stock_records
			SET quantity = quantity + $3,
				cost_price = $4,
				selling_price = $5,
				reorder_point = COALESCE($6, reorder_point),
				reorder_qty = COALESCE($7, reorder_qty),
				supplier_id = COALESCE($8, supplier_id),
				location = COALESCE($9, location),
				updated_at = $10
			WHERE product_id = $1 AND branch_id = $2
			RETURNING `+stockColumns+`
		`, p.ProductID, p.BranchID, p.Quantity, p.CostPrice, p.SellingPrice,
			intPtrOrNull(p.ReorderPoint), intPtrOrNull(p.ReorderQty),
			nullIfEmpty(p.SupplierID), nullIfEmpty(p.Location), now))
		if err == nil {
			result = rec
			return insertMovement(ctx, tx, domain.StockMovement{
				ID:             xid.New("mov"),
				StockRecordID:  rec.ID,
				ProductID:      rec.ProductID,
				BranchID:       rec.BranchID,
				Type:           domain.MovementRestock,
				QuantityChange: p.Quantity,
				QuantityBefore: rec.Quantity - p.Quantity,
				QuantityAfter:  rec.Quantity,
				PerformedBy:    p.PerformedBy,
				Notes:          p.Notes,
				CreatedAt:      now,
			})
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		// First stock-in of this (product, branch) pair.
		rec, err = scanStockRecord(tx.QueryRowContext(ctx, `
			INSERT INTO stock_records (
				id, product_id, branch_id, quantity, reserved_qty,
				cost_price, selling_price, reorder_point, reorder_qty,
				supplier_id, location, created_at, updated_at
			)
			VALUES ($1,$2,$3,$4,0,$5,$6,$7,$8,$9,$10,$11,$11)
			RETURNING `+stockColumns+`
		`, xid.New("stk"), p.ProductID, p.BranchID, p.Quantity,
			p.CostPrice, p.SellingPrice, intOrZero(p.ReorderPoint), intOrZero(p.ReorderQty),
			nullIfEmpty(p.SupplierID), nullIfEmpty(p.Location), now))
		if err != nil {
			if isUniqueViolation(err) {
				return store.ErrConflict
			}
			return err
		}
		result = rec
		return insertMovement(ctx, tx, domain.StockMovement{
			ID:             xid.New("mov"),
			StockRecordID:  rec.ID,
			ProductID:      rec.ProductID,
			BranchID:       rec.BranchID,
			Type:           domain.MovementInitial,
			QuantityChange: p.Quantity,
			QuantityBefore: 0,
			QuantityAfter:  rec.Quantity,
			PerformedBy:    p.PerformedBy,
			Notes:          p.Notes,
			CreatedAt:      now,
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) Adjust(ctx context.Context, productID, branchID string, delta int, reason, performedBy string) (*domain.StockRecord, error) {
	var result *domain.StockRecord
	err := s.withSerializableRetry(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC()
		rec, err := scanStockRecord(tx.QueryRowContext(ctx, `
			UPDATE stock_records
			SET quantity = quantity + $3, updated_at = $4
			WHERE product_id = $1 AND branch_id = $2
				AND quantity + $3 >= reserved_qty
			RETURNING `+stockColumns+`
		`, productID, branchID, delta, now))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				if exists, exErr := s.stockExists(ctx, tx, productID, branchID); exErr != nil {
					return exErr
				} else if exists {
					return store.ErrInvalidAdjustment
				}
				return store.ErrNotFound
			}
			return err
		}
		result = rec

		movementType := domain.MovementAdjustmentAdd
		if delta < 0 {
			movementType = domain.MovementAdjustmentRemove
		}
		return insertMovement(ctx, tx, domain.StockMovement{
			ID:             xid.New("mov"),
			StockRecordID:  rec.ID,
			ProductID:      rec.ProductID,
			BranchID:       rec.BranchID,
			Type:           movementType,
			QuantityChange: delta,
			QuantityBefore: rec.Quantity - delta,
			QuantityAfter:  rec.Quantity,
			PerformedBy:    performedBy,
			Notes:          reason,
			CreatedAt:      now,
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Reserve claims qty units without touching on-hand quantity. The guard
// in the WHERE clause is what keeps two concurrent callers from both
// passing the available boundary.
func (s *Store) Reserve(ctx context.Context, productID, branchID string, qty int) (*domain.StockRecord, error) {
	return s.reserveOn(ctx, s.db, productID, branchID, qty)
}

func (s *Store) reserveOn(ctx context.Context, db execer, productID, branchID string, qty int) (*domain.StockRecord, error) {
	rec, err := scanStockRecord(db.QueryRowContext(ctx, `
		UPDATE stock_records
		SET reserved_qty = reserved_qty + $3, updated_at = now()
		WHERE product_id = $1 AND branch_id = $2
			AND quantity - reserved_qty >= $3
		RETURNING `+stockColumns+`
	`, productID, branchID, qty))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if exists, exErr := s.stockExists(ctx, db, productID, branchID); exErr != nil {
				return nil, exErr
			} else if exists {
				return nil, store.ErrInsufficientStock
			}
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return rec, nil
}

func (s *Store) Release(ctx context.Context, productID, branchID string, qty int) (*domain.StockRecord, error) {
	return s.releaseOn(ctx, s.db, productID, branchID, qty)
}

func (s *Store) releaseOn(ctx context.Context, db execer, productID, branchID string, qty int) (*domain.StockRecord, error) {
	rec, err := scanStockRecord(db.QueryRowContext(ctx, `
		UPDATE stock_records
		SET reserved_qty = GREATEST(reserved_qty - $3, 0), updated_at = now()
		WHERE product_id = $1 AND branch_id = $2
		RETURNING `+stockColumns+`
	`, productID, branchID, qty))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return rec, nil
}

// fulfillOn deducts previously reserved units: quantity and reserved
// drop together.
func (s *Store) fulfillOn(ctx context.Context, db execer, productID, branchID string, qty int) (*domain.StockRecord, error) {
	rec, err := scanStockRecord(db.QueryRowContext(ctx, `
		UPDATE stock_records
		SET quantity = quantity - $3, reserved_qty = reserved_qty - $3, updated_at = now()
		WHERE product_id = $1 AND branch_id = $2
			AND quantity >= $3 AND reserved_qty >= $3
		RETURNING `+stockColumns+`
	`, productID, branchID, qty))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if exists, exErr := s.stockExists(ctx, db, productID, branchID); exErr != nil {
				return nil, exErr
			} else if exists {
				return nil, store.ErrInsufficientStock
			}
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return rec, nil
}

// consumeOn deducts units that were never reserved (service parts).
func (s *Store) consumeOn(ctx context.Context, db execer, productID, branchID string, qty int) (*domain.StockRecord, error) {
	rec, err := scanStockRecord(db.QueryRowContext(ctx, `
		UPDATE stock_records
		SET quantity = quantity - $3, updated_at = now()
		WHERE product_id = $1 AND branch_id = $2
			AND quantity - reserved_qty >= $3
		RETURNING `+stockColumns+`
	`, productID, branchID, qty))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if exists, exErr := s.stockExists(ctx, db, productID, branchID); exErr != nil {
				return nil, exErr
			} else if exists {
				return nil, store.ErrInsufficientStock
			}
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return rec, nil
}

func (s *Store) stockExists(ctx context.Context, db execer, productID, branchID string) (bool, error) {
	var one int
	err := db.QueryRowContext(ctx, `
		SELECT 1 FROM stock_records WHERE product_id = $1 AND branch_id = $2
	`, productID, branchID).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Store) GetStockRecord(ctx context.Context, id string) (*domain.StockRecord, error) {
	rec, err := scanStockRecord(s.db.QueryRowContext(ctx, `
		SELECT `+stockColumns+` FROM stock_records WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return rec, nil
}

func (s *Store) GetStock(ctx context.Context, productID, branchID string) (*domain.StockRecord, error) {
	rec, err := scanStockRecord(s.db.QueryRowContext(ctx, `
		SELECT `+stockColumns+` FROM stock_records WHERE product_id = $1 AND branch_id = $2
	`, productID, branchID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return rec, nil
}

func (s *Store) ListStock(ctx context.Context, f store.StockFilter) ([]domain.StockRecord, error) {
	if f.Limit < 1 {
		f.Limit = 100
	}

	query := `
		SELECT ` + stockColumns + `
		FROM stock_records
		WHERE ($1 = '' OR branch_id = $1)
			AND ($2 = '' OR product_id = $2)
	`
	if f.LowOnly {
		query += ` AND quantity - reserved_qty <= reorder_point`
	}
	query += `
		ORDER BY branch_id, product_id
		LIMIT $3 OFFSET $4
	`

	rows, err := s.db.QueryContext(ctx, query, f.BranchID, f.ProductID, f.Limit, f.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.StockRecord, 0, f.Limit)
	for rows.Next() {
		rec, err := scanStockRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Store) ListMovements(ctx context.Context, f domain.MovementFilter) ([]domain.StockMovement, error) {
	if f.Limit < 1 {
		f.Limit = 100
	}

	from := time.Unix(0, 0).UTC()
	if f.From != nil {
		from = *f.From
	}
	to := time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)
	if f.To != nil {
		to = *f.To
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, stock_record_id, product_id, branch_id, type,
			quantity_change, quantity_before, quantity_after,
			reference_kind, reference_id, performed_by, COALESCE(notes,''), created_at
		FROM stock_movements
		WHERE ($1 = '' OR stock_record_id = $1)
			AND ($2 = '' OR product_id = $2)
			AND ($3 = '' OR branch_id = $3)
			AND ($4 = '' OR type = $4)
			AND created_at >= $5
			AND created_at < $6
		ORDER BY created_at DESC
		LIMIT $7 OFFSET $8
	`, f.StockRecordID, f.ProductID, f.BranchID, f.Type, from, to, f.Limit, f.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	movements := make([]domain.StockMovement, 0, f.Limit)
	for rows.Next() {
		var m domain.StockMovement
		var refKind, refID sql.NullString
		if err := rows.Scan(
			&m.ID, &m.StockRecordID, &m.ProductID, &m.BranchID, &m.Type,
			&m.QuantityChange, &m.QuantityBefore, &m.QuantityAfter,
			&refKind, &refID, &m.PerformedBy, &m.Notes, &m.CreatedAt,
		); err != nil {
			return nil, err
		}
		m.CreatedAt = m.CreatedAt.UTC()
		if refKind.Valid && refID.Valid {
			m.Reference = &domain.MovementReference{Kind: refKind.String, ID: refID.String}
		}
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return movements, nil
}

func intPtrOrNull(val *int) any {
	if val == nil {
		return nil
	}
	return *val
}

func intOrZero(val *int) int {
	if val == nil {
		return 0
	}
	return *val
}
