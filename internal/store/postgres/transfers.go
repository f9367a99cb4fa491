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

const transferColumns = `id, product_id, from_branch_id, to_branch_id, quantity,
	status, COALESCE(notes,''), created_by, created_at, updated_at, completed_at`

func scanTransfer(row rowScanner) (*domain.StockTransfer, error) {
	var t domain.StockTransfer
	var completedAt sql.NullTime
	err := row.Scan(
		&t.ID, &t.ProductID, &t.FromBranchID, &t.ToBranchID, &t.Quantity,
		&t.Status, &t.Notes, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	scanNullTime(&t.CompletedAt, completedAt)
	return &t, nil
}

// CreateTransfer reserves the quantity at the source branch and inserts
// the transfer row in one transaction, so a failed insert never leaves
// an orphaned reservation.
func (s *Store) CreateTransfer(ctx context.Context, t domain.StockTransfer) (*domain.StockTransfer, error) {
	if t.ID == "" {
		t.ID = xid.New("trf")
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	t.Status = domain.TransferStatusPending

	err := s.withSerializableRetry(ctx, func(tx *sql.Tx) error {
		if _, err := s.reserveOn(ctx, tx, t.ProductID, t.FromBranchID, t.Quantity); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO stock_transfers (
				id, product_id, from_branch_id, to_branch_id, quantity,
				status, notes, created_by, created_at, updated_at
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		`, t.ID, t.ProductID, t.FromBranchID, t.ToBranchID, t.Quantity,
			t.Status, nullIfEmpty(t.Notes), t.CreatedBy, t.CreatedAt, t.UpdatedAt)
		return err
	})
	if err != nil {
		return nil, err
	}
	created := t
	return &created, nil
}

func (s *Store) GetTransfer(ctx context.Context, id string) (*domain.StockTransfer, error) {
	t, err := scanTransfer(s.db.QueryRowContext(ctx, `
		SELECT `+transferColumns+` FROM stock_transfers WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return t, nil
}

func (s *Store) ListTransfers(ctx context.Context, f store.TransferFilter) ([]domain.StockTransfer, error) {
	if f.Limit < 1 {
		f.Limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+transferColumns+`
		FROM stock_transfers
		WHERE ($1 = '' OR product_id = $1)
			AND ($2 = '' OR from_branch_id = $2 OR to_branch_id = $2)
			AND ($3 = '' OR status = $3)
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5
	`, f.ProductID, f.BranchID, f.Status, f.Limit, f.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transfers := make([]domain.StockTransfer, 0, f.Limit)
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		transfers = append(transfers, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return transfers, nil
}

// MarkTransferInTransit is metadata only; the source reservation taken
// at creation keeps holding the units.
func (s *Store) MarkTransferInTransit(ctx context.Context, id string) (*domain.StockTransfer, error) {
	t, err := scanTransfer(s.db.QueryRowContext(ctx, `
		UPDATE stock_transfers
		SET status = $2, updated_at = now()
		WHERE id = $1 AND status = $3
		RETURNING `+transferColumns+`
	`, id, domain.TransferStatusInTransit, domain.TransferStatusPending))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if _, getErr := s.GetTransfer(ctx, id); getErr != nil {
				return nil, getErr
			}
			return nil, store.ErrInvalidStatusTransition
		}
		return nil, err
	}
	return t, nil
}

// CompleteTransfer deducts the reserved units at the source, adds them
// at the destination (creating the destination record with the source's
// prices when absent) and writes the paired transfer_out / transfer_in
// movements, all in one transaction.
func (s *Store) CompleteTransfer(ctx context.Context, id, performedBy string) (*domain.StockTransfer, error) {
	var result *domain.StockTransfer
	err := s.withSerializableRetry(ctx, func(tx *sql.Tx) error {
		t, err := scanTransfer(tx.QueryRowContext(ctx, `
			SELECT `+transferColumns+` FROM stock_transfers WHERE id = $1 FOR UPDATE
		`, id))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrNotFound
			}
			return err
		}
		if t.Status != domain.TransferStatusInTransit {
			return store.ErrInvalidStatusTransition
		}
		now := time.Now().UTC()
		ref := &domain.MovementReference{Kind: domain.ReferenceTransfer, ID: t.ID}

		source, err := s.fulfillOn(ctx, tx, t.ProductID, t.FromBranchID, t.Quantity)
		if err != nil {
			return err
		}
		if err := insertMovement(ctx, tx, domain.StockMovement{
			ID:             xid.New("mov"),
			StockRecordID:  source.ID,
			ProductID:      t.ProductID,
			BranchID:       t.FromBranchID,
			Type:           domain.MovementTransferOut,
			QuantityChange: -t.Quantity,
			QuantityBefore: source.Quantity + t.Quantity,
			QuantityAfter:  source.Quantity,
			Reference:      ref,
			PerformedBy:    performedBy,
			CreatedAt:      now,
		}); err != nil {
			return err
		}

		dest, err := scanStockRecord(tx.QueryRowContext(ctx, `
			UPDATE stock_records
			SET quantity = quantity + $3, updated_at = $4
			WHERE product_id = $1 AND branch_id = $2
			RETURNING `+stockColumns+`
		`, t.ProductID, t.ToBranchID, t.Quantity, now))
		if errors.Is(err, sql.ErrNoRows) {
			dest, err = scanStockRecord(tx.QueryRowContext(ctx, `
				INSERT INTO stock_records (
					id, product_id, branch_id, quantity, reserved_qty,
					cost_price, selling_price, reorder_point, reorder_qty,
					supplier_id, location, created_at, updated_at
				)
				VALUES ($1,$2,$3,$4,0,$5,$6,$7,$8,NULL,NULL,$9,$9)
				RETURNING `+stockColumns+`
			`, xid.New("stk"), t.ProductID, t.ToBranchID, t.Quantity,
				source.CostPrice, source.SellingPrice, source.ReorderPoint, source.ReorderQty, now))
		}
		if err != nil {
			return err
		}
		if err := insertMovement(ctx, tx, domain.StockMovement{
			ID:             xid.New("mov"),
			StockRecordID:  dest.ID,
			ProductID:      t.ProductID,
			BranchID:       t.ToBranchID,
			Type:           domain.MovementTransferIn,
			QuantityChange: t.Quantity,
			QuantityBefore: dest.Quantity - t.Quantity,
			QuantityAfter:  dest.Quantity,
			Reference:      ref,
			PerformedBy:    performedBy,
			CreatedAt:      now,
		}); err != nil {
			return err
		}

		updated, err := scanTransfer(tx.QueryRowContext(ctx, `
			UPDATE stock_transfers
			SET status = $2, updated_at = $3, completed_at = $3
			WHERE id = $1
			RETURNING `+transferColumns+`
		`, id, domain.TransferStatusCompleted, now))
		if err != nil {
			return err
		}
		result = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CancelTransfer releases the source reservation. On-hand quantity never
// changed, so no movement rows are written.
func (s *Store) CancelTransfer(ctx context.Context, id string) (*domain.StockTransfer, error) {
	var result *domain.StockTransfer
	err := s.withSerializableRetry(ctx, func(tx *sql.Tx) error {
		t, err := scanTransfer(tx.QueryRowContext(ctx, `
			SELECT `+transferColumns+` FROM stock_transfers WHERE id = $1 FOR UPDATE
		`, id))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrNotFound
			}
			return err
		}
		if !domain.ValidTransferTransition(t.Status, domain.TransferStatusCancelled) {
			return store.ErrInvalidStatusTransition
		}

		if _, err := s.releaseOn(ctx, tx, t.ProductID, t.FromBranchID, t.Quantity); err != nil {
			return err
		}

		updated, err := scanTransfer(tx.QueryRowContext(ctx, `
			UPDATE stock_transfers
			SET status = $2, updated_at = now()
			WHERE id = $1
			RETURNING `+transferColumns+`
		`, id, domain.TransferStatusCancelled))
		if err != nil {
			return err
		}
		result = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
