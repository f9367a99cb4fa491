package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"bengkelpos/internal/domain"
	"bengkelpos/internal/store"
	"bengkelpos/internal/xid"
)

const serviceColumns = `id, job_number, branch_id,
	COALESCE(customer_name,''), COALESCE(customer_phone,''), COALESCE(customer_email,''), COALESCE(customer_address,''),
	COALESCE(vehicle_make,''), COALESCE(vehicle_model,''), COALESCE(vehicle_year,0),
	COALESCE(vehicle_plate,''), COALESCE(vehicle_vin,''), COALESCE(vehicle_mileage,0),
	description, COALESCE(diagnosis,''), COALESCE(assigned_to,''),
	total_parts, labor_cost, other_charges, total_amount,
	COALESCE(payment_method,''), amount_paid, payment_status, payment_change, paid_at,
	status, priority, scheduled_at, started_at, completed_at,
	created_by, created_at, updated_at`

func scanServiceOrder(row rowScanner) (*domain.ServiceOrder, error) {
	var o domain.ServiceOrder
	var paidAt, scheduledAt, startedAt, completedAt sql.NullTime
	err := row.Scan(
		&o.ID, &o.JobNumber, &o.BranchID,
		&o.Customer.Name, &o.Customer.Phone, &o.Customer.Email, &o.Customer.Address,
		&o.Vehicle.Make, &o.Vehicle.Model, &o.Vehicle.Year,
		&o.Vehicle.Plate, &o.Vehicle.VIN, &o.Vehicle.Mileage,
		&o.Description, &o.Diagnosis, &o.AssignedTo,
		&o.TotalParts, &o.LaborCost, &o.OtherCharges, &o.TotalAmount,
		&o.Payment.Method, &o.Payment.AmountPaid, &o.Payment.Status, &o.Payment.Change, &paidAt,
		&o.Status, &o.Priority, &scheduledAt, &startedAt, &completedAt,
		&o.CreatedBy, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	scanNullTime(&o.Payment.PaidAt, paidAt)
	scanNullTime(&o.ScheduledAt, scheduledAt)
	scanNullTime(&o.StartedAt, startedAt)
	scanNullTime(&o.CompletedAt, completedAt)
	return &o, nil
}

func (s *Store) loadServiceParts(ctx context.Context, db execer, orderID string) ([]domain.ServicePart, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT product_id, COALESCE(sku,''), COALESCE(name,''), quantity, unit_price, total
		FROM service_order_parts
		WHERE order_id = $1
		ORDER BY line_no ASC
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	parts := make([]domain.ServicePart, 0, 8)
	for rows.Next() {
		var p domain.ServicePart
		if err := rows.Scan(&p.ProductID, &p.SKU, &p.Name, &p.Quantity, &p.UnitPrice, &p.Total); err != nil {
			return nil, err
		}
		parts = append(parts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return parts, nil
}

func (s *Store) replaceServiceParts(ctx context.Context, tx *sql.Tx, orderID string, parts []domain.ServicePart) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM service_order_parts WHERE order_id = $1`, orderID); err != nil {
		return err
	}
	for i, p := range parts {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO service_order_parts (order_id, line_no, product_id, sku, name, quantity, unit_price, total)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, orderID, i+1, p.ProductID, nullIfEmpty(p.SKU), nullIfEmpty(p.Name), p.Quantity, p.UnitPrice, p.Total)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) CreateServiceOrder(ctx context.Context, o domain.ServiceOrder) (*domain.ServiceOrder, error) {
	err := s.withSerializableRetry(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO service_orders (
				id, job_number, branch_id,
				customer_name, customer_phone, customer_email, customer_address,
				vehicle_make, vehicle_model, vehicle_year, vehicle_plate, vehicle_vin, vehicle_mileage,
				description, diagnosis, assigned_to,
				total_parts, labor_cost, other_charges, total_amount,
				payment_method, amount_paid, payment_status, payment_change, paid_at,
				status, priority, scheduled_at, started_at, completed_at,
				created_by, created_at, updated_at
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,
				$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28,$29,$30,$31,$32,$33)
		`, o.ID, o.JobNumber, o.BranchID,
			nullIfEmpty(o.Customer.Name), nullIfEmpty(o.Customer.Phone), nullIfEmpty(o.Customer.Email), nullIfEmpty(o.Customer.Address),
			nullIfEmpty(o.Vehicle.Make), nullIfEmpty(o.Vehicle.Model), o.Vehicle.Year,
			nullIfEmpty(o.Vehicle.Plate), nullIfEmpty(o.Vehicle.VIN), o.Vehicle.Mileage,
			o.Description, nullIfEmpty(o.Diagnosis), nullIfEmpty(o.AssignedTo),
			o.TotalParts, o.LaborCost, o.OtherCharges, o.TotalAmount,
			nullIfEmpty(o.Payment.Method), o.Payment.AmountPaid, o.Payment.Status, o.Payment.Change, nullTime(o.Payment.PaidAt),
			o.Status, o.Priority, nullTime(o.ScheduledAt), nullTime(o.StartedAt), nullTime(o.CompletedAt),
			o.CreatedBy, o.CreatedAt, o.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return store.ErrDuplicate
			}
			return err
		}
		return s.replaceServiceParts(ctx, tx, o.ID, o.PartsUsed)
	})
	if err != nil {
		return nil, err
	}
	created := o
	return &created, nil
}

func (s *Store) GetServiceOrder(ctx context.Context, id string) (*domain.ServiceOrder, error) {
	o, err := scanServiceOrder(s.db.QueryRowContext(ctx, `
		SELECT `+serviceColumns+` FROM service_orders WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	parts, err := s.loadServiceParts(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	o.PartsUsed = parts
	return o, nil
}

func (s *Store) ListServiceOrders(ctx context.Context, f store.ServiceFilter) ([]domain.ServiceOrder, error) {
	if f.Limit < 1 {
		f.Limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+serviceColumns+`
		FROM service_orders
		WHERE ($1 = '' OR branch_id = $1)
			AND ($2 = '' OR status = $2)
			AND ($3 = '' OR assigned_to = $3)
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5
	`, f.BranchID, f.Status, f.AssignedTo, f.Limit, f.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]domain.ServiceOrder, 0, f.Limit)
	for rows.Next() {
		o, err := scanServiceOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range orders {
		parts, err := s.loadServiceParts(ctx, s.db, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].PartsUsed = parts
	}
	return orders, nil
}

// UpdateServiceOrderStatus performs the metadata-only transitions
// (scheduled, in-progress, cancelled). Completion goes through
// CompleteServiceOrder because it touches the ledger.
func (s *Store) UpdateServiceOrderStatus(ctx context.Context, id, from, to string) (*domain.ServiceOrder, error) {
	if to == domain.ServiceStatusCompleted || !domain.ValidServiceTransition(from, to) {
		return nil, store.ErrInvalidStatusTransition
	}

	extra := ""
	switch to {
	case domain.ServiceStatusScheduled:
		extra = `, scheduled_at = now()`
	case domain.ServiceStatusInProgress:
		extra = `, started_at = now()`
	}

	o, err := scanServiceOrder(s.db.QueryRowContext(ctx, `
		UPDATE service_orders
		SET status = $2, updated_at = now()`+extra+`
		WHERE id = $1 AND status = $3
		RETURNING `+serviceColumns+`
	`, id, to, from))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if _, getErr := s.GetServiceOrder(ctx, id); getErr != nil {
				return nil, getErr
			}
			return nil, store.ErrInvalidStatusTransition
		}
		return nil, err
	}
	parts, err := s.loadServiceParts(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	o.PartsUsed = parts
	return o, nil
}

// CompleteServiceOrder consumes every listed part from the branch's
// stock, writes a service_use movement per part, recomputes the totals
// and flips the order to completed, all in one transaction. Parts are
// never reserved beforehand, so the deduction is guarded against the
// available quantity.
func (s *Store) CompleteServiceOrder(ctx context.Context, id, performedBy string) (*domain.ServiceOrder, error) {
	var result *domain.ServiceOrder
	err := s.withSerializableRetry(ctx, func(tx *sql.Tx) error {
		o, err := scanServiceOrder(tx.QueryRowContext(ctx, `
			SELECT `+serviceColumns+` FROM service_orders WHERE id = $1 FOR UPDATE
		`, id))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrNotFound
			}
			return err
		}
		if !domain.ValidServiceTransition(o.Status, domain.ServiceStatusCompleted) {
			return store.ErrInvalidStatusTransition
		}
		parts, err := s.loadServiceParts(ctx, tx, id)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		ref := &domain.MovementReference{Kind: domain.ReferenceServiceOrder, ID: o.ID}
		totalParts := decimal.Zero
		for _, part := range parts {
			rec, err := s.consumeOn(ctx, tx, part.ProductID, o.BranchID, part.Quantity)
			if err != nil {
				return err
			}
			if err := insertMovement(ctx, tx, domain.StockMovement{
				ID:             xid.New("mov"),
				StockRecordID:  rec.ID,
				ProductID:      part.ProductID,
				BranchID:       o.BranchID,
				Type:           domain.MovementServiceUse,
				QuantityChange: -part.Quantity,
				QuantityBefore: rec.Quantity + part.Quantity,
				QuantityAfter:  rec.Quantity,
				Reference:      ref,
				PerformedBy:    performedBy,
				CreatedAt:      now,
			}); err != nil {
				return err
			}
			totalParts = totalParts.Add(part.Total)
		}

		totalAmount := totalParts.Add(o.LaborCost).Add(o.OtherCharges)
		paymentStatus, change := domain.ComputePayment(o.Payment.AmountPaid, totalAmount)
		paidAt := o.Payment.PaidAt
		if paymentStatus == domain.PaymentStatusPaid && paidAt == nil {
			paidAt = &now
		}

		updated, err := scanServiceOrder(tx.QueryRowContext(ctx, `
			UPDATE service_orders
			SET status = $2, total_parts = $3, total_amount = $4,
				payment_status = $5, payment_change = $6, paid_at = $7,
				completed_at = $8, updated_at = $8
			WHERE id = $1
			RETURNING `+serviceColumns+`
		`, id, domain.ServiceStatusCompleted, totalParts, totalAmount,
			paymentStatus, change, nullTime(paidAt), now))
		if err != nil {
			return err
		}
		updated.PartsUsed = parts
		result = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// UpdateServiceParts replaces the parts list and recomputes the running
// totals. Allowed only while the order is still open.
func (s *Store) UpdateServiceParts(ctx context.Context, id string, parts []domain.ServicePart) (*domain.ServiceOrder, error) {
	var result *domain.ServiceOrder
	err := s.withSerializableRetry(ctx, func(tx *sql.Tx) error {
		o, err := scanServiceOrder(tx.QueryRowContext(ctx, `
			SELECT `+serviceColumns+` FROM service_orders WHERE id = $1 FOR UPDATE
		`, id))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrNotFound
			}
			return err
		}
		if o.Status == domain.ServiceStatusCompleted || o.Status == domain.ServiceStatusCancelled {
			return store.ErrInvalidStatusTransition
		}
		if err := s.replaceServiceParts(ctx, tx, id, parts); err != nil {
			return err
		}

		totalParts := decimal.Zero
		for _, p := range parts {
			totalParts = totalParts.Add(p.Total)
		}
		totalAmount := totalParts.Add(o.LaborCost).Add(o.OtherCharges)

		updated, err := scanServiceOrder(tx.QueryRowContext(ctx, `
			UPDATE service_orders
			SET total_parts = $2, total_amount = $3, updated_at = now()
			WHERE id = $1
			RETURNING `+serviceColumns+`
		`, id, totalParts, totalAmount))
		if err != nil {
			return err
		}
		updated.PartsUsed = parts
		result = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) AssignServiceOrder(ctx context.Context, id, mechanic string) (*domain.ServiceOrder, error) {
	o, err := scanServiceOrder(s.db.QueryRowContext(ctx, `
		UPDATE service_orders
		SET assigned_to = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+serviceColumns+`
	`, id, mechanic))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	parts, err := s.loadServiceParts(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	o.PartsUsed = parts
	return o, nil
}

func (s *Store) UpdateServiceDetails(ctx context.Context, id string, req domain.ServiceUpdateRequest) (*domain.ServiceOrder, error) {
	var result *domain.ServiceOrder
	err := s.withSerializableRetry(ctx, func(tx *sql.Tx) error {
		o, err := scanServiceOrder(tx.QueryRowContext(ctx, `
			SELECT `+serviceColumns+` FROM service_orders WHERE id = $1 FOR UPDATE
		`, id))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrNotFound
			}
			return err
		}

		diagnosis := o.Diagnosis
		if req.Diagnosis != nil {
			diagnosis = *req.Diagnosis
		}
		priority := o.Priority
		if req.Priority != nil {
			priority = *req.Priority
		}
		laborCost := o.LaborCost
		if req.LaborCost != nil {
			laborCost = *req.LaborCost
		}
		otherCharges := o.OtherCharges
		if req.OtherCharges != nil {
			otherCharges = *req.OtherCharges
		}
		totalAmount := o.TotalParts.Add(laborCost).Add(otherCharges)

		updated, err := scanServiceOrder(tx.QueryRowContext(ctx, `
			UPDATE service_orders
			SET diagnosis = $2, priority = $3, labor_cost = $4, other_charges = $5,
				total_amount = $6, updated_at = now()
			WHERE id = $1
			RETURNING `+serviceColumns+`
		`, id, nullIfEmpty(diagnosis), priority, laborCost, otherCharges, totalAmount))
		if err != nil {
			return err
		}
		parts, err := s.loadServiceParts(ctx, tx, id)
		if err != nil {
			return err
		}
		updated.PartsUsed = parts
		result = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) UpdateServicePayment(ctx context.Context, id string, p domain.Payment) (*domain.ServiceOrder, error) {
	o, err := scanServiceOrder(s.db.QueryRowContext(ctx, `
		UPDATE service_orders
		SET payment_method = $2, amount_paid = $3, payment_status = $4,
			payment_change = $5, paid_at = $6, updated_at = now()
		WHERE id = $1
		RETURNING `+serviceColumns+`
	`, id, nullIfEmpty(p.Method), p.AmountPaid, p.Status, p.Change, nullTime(p.PaidAt)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	parts, err := s.loadServiceParts(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	o.PartsUsed = parts
	return o, nil
}
