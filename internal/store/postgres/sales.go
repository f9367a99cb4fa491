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

const salesColumns = `id, order_number, branch_id,
	COALESCE(customer_name,''), COALESCE(customer_phone,''), COALESCE(customer_email,''), COALESCE(customer_address,''),
	subtotal, tax_rate, tax_amount, discount, total,
	COALESCE(payment_method,''), amount_paid, payment_status, payment_change, paid_at,
	status, processed_by, created_at, updated_at, completed_at`

func scanSalesOrder(row rowScanner) (*domain.SalesOrder, error) {
	var o domain.SalesOrder
	var paidAt, completedAt sql.NullTime
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.BranchID,
		&o.Customer.Name, &o.Customer.Phone, &o.Customer.Email, &o.Customer.Address,
		&o.Subtotal, &o.Tax.Rate, &o.Tax.Amount, &o.Discount, &o.Total,
		&o.Payment.Method, &o.Payment.AmountPaid, &o.Payment.Status, &o.Payment.Change, &paidAt,
		&o.Status, &o.ProcessedBy, &o.CreatedAt, &o.UpdatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	scanNullTime(&o.Payment.PaidAt, paidAt)
	scanNullTime(&o.CompletedAt, completedAt)
	return &o, nil
}

func (s *Store) loadSalesItems(ctx context.Context, db execer, orderID string) ([]domain.SalesOrderItem, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT product_id, quantity, unit_price, discount, total
		FROM sales_order_items
		WHERE order_id = $1
		ORDER BY line_no ASC
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.SalesOrderItem, 0, 8)
	for rows.Next() {
		var item domain.SalesOrderItem
		if err := rows.Scan(&item.ProductID, &item.Quantity, &item.UnitPrice, &item.Discount, &item.Total); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// CreateSalesOrder persists the order document and its item snapshots.
// Item reservations are taken by the caller before this call and
// compensated by the caller if it fails.
func (s *Store) CreateSalesOrder(ctx context.Context, o domain.SalesOrder) (*domain.SalesOrder, error) {
	err := s.withSerializableRetry(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sales_orders (
				id, order_number, branch_id,
				customer_name, customer_phone, customer_email, customer_address,
				subtotal, tax_rate, tax_amount, discount, total,
				payment_method, amount_paid, payment_status, payment_change, paid_at,
				status, processed_by, created_at, updated_at
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
		`, o.ID, o.OrderNumber, o.BranchID,
			nullIfEmpty(o.Customer.Name), nullIfEmpty(o.Customer.Phone), nullIfEmpty(o.Customer.Email), nullIfEmpty(o.Customer.Address),
			o.Subtotal, o.Tax.Rate, o.Tax.Amount, o.Discount, o.Total,
			nullIfEmpty(o.Payment.Method), o.Payment.AmountPaid, o.Payment.Status, o.Payment.Change, nullTime(o.Payment.PaidAt),
			o.Status, o.ProcessedBy, o.CreatedAt, o.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return store.ErrDuplicate
			}
			return err
		}
		for i, item := range o.Items {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO sales_order_items (order_id, line_no, product_id, quantity, unit_price, discount, total)
				VALUES ($1,$2,$3,$4,$5,$6,$7)
			`, o.ID, i+1, item.ProductID, item.Quantity, item.UnitPrice, item.Discount, item.Total)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	created := o
	return &created, nil
}

func (s *Store) GetSalesOrder(ctx context.Context, id string) (*domain.SalesOrder, error) {
	o, err := scanSalesOrder(s.db.QueryRowContext(ctx, `
		SELECT `+salesColumns+` FROM sales_orders WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	items, err := s.loadSalesItems(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	o.Items = items
	return o, nil
}

func (s *Store) ListSalesOrders(ctx context.Context, f store.SalesFilter) ([]domain.SalesOrder, error) {
	if f.Limit < 1 {
		f.Limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+salesColumns+`
		FROM sales_orders
		WHERE ($1 = '' OR branch_id = $1)
			AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`, f.BranchID, f.Status, f.Limit, f.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]domain.SalesOrder, 0, f.Limit)
	for rows.Next() {
		o, err := scanSalesOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range orders {
		items, err := s.loadSalesItems(ctx, s.db, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Items = items
	}
	return orders, nil
}

// SetSalesOrderProcessing flips pending to processing. The reservation
// taken at creation keeps holding the stock, so there is no ledger
// effect.
func (s *Store) SetSalesOrderProcessing(ctx context.Context, id string) (*domain.SalesOrder, error) {
	o, err := scanSalesOrder(s.db.QueryRowContext(ctx, `
		UPDATE sales_orders
		SET status = $2, updated_at = now()
		WHERE id = $1 AND status = $3
		RETURNING `+salesColumns+`
	`, id, domain.SalesStatusProcessing, domain.SalesStatusPending))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if _, getErr := s.GetSalesOrder(ctx, id); getErr != nil {
				return nil, getErr
			}
			return nil, store.ErrInvalidStatusTransition
		}
		return nil, err
	}
	items, err := s.loadSalesItems(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	o.Items = items
	return o, nil
}

// CompleteSalesOrder fulfills every item and flips the order to
// completed in one transaction. A failure on any item rolls the whole
// transition back; an order is never left half-fulfilled.
func (s *Store) CompleteSalesOrder(ctx context.Context, id, performedBy string) (*domain.SalesOrder, error) {
	var result *domain.SalesOrder
	err := s.withSerializableRetry(ctx, func(tx *sql.Tx) error {
		o, err := scanSalesOrder(tx.QueryRowContext(ctx, `
			SELECT `+salesColumns+` FROM sales_orders WHERE id = $1 FOR UPDATE
		`, id))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrNotFound
			}
			return err
		}
		if o.Status != domain.SalesStatusProcessing {
			return store.ErrInvalidStatusTransition
		}
		items, err := s.loadSalesItems(ctx, tx, id)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		ref := &domain.MovementReference{Kind: domain.ReferenceSalesOrder, ID: o.ID}
		for _, item := range items {
			rec, err := s.fulfillOn(ctx, tx, item.ProductID, o.BranchID, item.Quantity)
			if err != nil {
				return err
			}
			if err := insertMovement(ctx, tx, domain.StockMovement{
				ID:             xid.New("mov"),
				StockRecordID:  rec.ID,
				ProductID:      item.ProductID,
				BranchID:       o.BranchID,
				Type:           domain.MovementSale,
				QuantityChange: -item.Quantity,
				QuantityBefore: rec.Quantity + item.Quantity,
				QuantityAfter:  rec.Quantity,
				Reference:      ref,
				PerformedBy:    performedBy,
				CreatedAt:      now,
			}); err != nil {
				return err
			}
		}

		updated, err := scanSalesOrder(tx.QueryRowContext(ctx, `
			UPDATE sales_orders
			SET status = $2, updated_at = $3, completed_at = $3
			WHERE id = $1
			RETURNING `+salesColumns+`
		`, id, domain.SalesStatusCompleted, now))
		if err != nil {
			return err
		}
		updated.Items = items
		result = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CancelSalesOrder releases every item's reservation and records a
// zero-delta sale_cancel movement per item so the audit trail shows the
// cancellation without affecting the ledger sum.
func (s *Store) CancelSalesOrder(ctx context.Context, id, performedBy string) (*domain.SalesOrder, error) {
	var result *domain.SalesOrder
	err := s.withSerializableRetry(ctx, func(tx *sql.Tx) error {
		o, err := scanSalesOrder(tx.QueryRowContext(ctx, `
			SELECT `+salesColumns+` FROM sales_orders WHERE id = $1 FOR UPDATE
		`, id))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrNotFound
			}
			return err
		}
		if !domain.ValidSalesTransition(o.Status, domain.SalesStatusCancelled) {
			return store.ErrInvalidStatusTransition
		}
		items, err := s.loadSalesItems(ctx, tx, id)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		ref := &domain.MovementReference{Kind: domain.ReferenceSalesOrder, ID: o.ID}
		for _, item := range items {
			rec, err := s.releaseOn(ctx, tx, item.ProductID, o.BranchID, item.Quantity)
			if err != nil {
				return err
			}
			if err := insertMovement(ctx, tx, domain.StockMovement{
				ID:             xid.New("mov"),
				StockRecordID:  rec.ID,
				ProductID:      item.ProductID,
				BranchID:       o.BranchID,
				Type:           domain.MovementSaleCancel,
				QuantityChange: 0,
				QuantityBefore: rec.Quantity,
				QuantityAfter:  rec.Quantity,
				Reference:      ref,
				PerformedBy:    performedBy,
				CreatedAt:      now,
			}); err != nil {
				return err
			}
		}

		updated, err := scanSalesOrder(tx.QueryRowContext(ctx, `
			UPDATE sales_orders
			SET status = $2, updated_at = $3
			WHERE id = $1
			RETURNING `+salesColumns+`
		`, id, domain.SalesStatusCancelled, now))
		if err != nil {
			return err
		}
		updated.Items = items
		result = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) UpdateSalesPayment(ctx context.Context, id string, p domain.Payment) (*domain.SalesOrder, error) {
	o, err := scanSalesOrder(s.db.QueryRowContext(ctx, `
		UPDATE sales_orders
		SET payment_method = $2, amount_paid = $3, payment_status = $4,
			payment_change = $5, paid_at = $6, updated_at = now()
		WHERE id = $1
		RETURNING `+salesColumns+`
	`, id, nullIfEmpty(p.Method), p.AmountPaid, p.Status, p.Change, nullTime(p.PaidAt)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	items, err := s.loadSalesItems(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	o.Items = items
	return o, nil
}
