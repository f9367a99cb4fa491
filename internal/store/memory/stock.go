package memory

import (
	"context"
	"sort"
	"time"

	"bengkelpos/internal/domain"
	"bengkelpos/internal/store"
	"bengkelpos/internal/xid"
)

// locked helpers: callers hold s.mu.

func (s *Store) appendMovementLocked(m domain.StockMovement) {
	if m.ID == "" {
		m.ID = xid.New("mov")
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	s.movements = append(s.movements, m)
}

func (s *Store) reserveLocked(productID, branchID string, qty int) (*domain.StockRecord, error) {
	rec, ok := s.stockByKey[stockKey(productID, branchID)]
	if !ok {
		return nil, store.ErrNotFound
	}
	if rec.Quantity-rec.ReservedQty < qty {
		return nil, store.ErrInsufficientStock
	}
	rec.ReservedQty += qty
	rec.UpdatedAt = time.Now().UTC()
	return rec, nil
}

func (s *Store) releaseLocked(productID, branchID string, qty int) (*domain.StockRecord, error) {
	rec, ok := s.stockByKey[stockKey(productID, branchID)]
	if !ok {
		return nil, store.ErrNotFound
	}
	rec.ReservedQty -= qty
	if rec.ReservedQty < 0 {
		rec.ReservedQty = 0
	}
	rec.UpdatedAt = time.Now().UTC()
	return rec, nil
}

func (s *Store) fulfillLocked(productID, branchID string, qty int) (*domain.StockRecord, error) {
	rec, ok := s.stockByKey[stockKey(productID, branchID)]
	if !ok {
		return nil, store.ErrNotFound
	}
	if rec.Quantity < qty || rec.ReservedQty < qty {
		return nil, store.ErrInsufficientStock
	}
	rec.Quantity -= qty
	rec.ReservedQty -= qty
	rec.UpdatedAt = time.Now().UTC()
	return rec, nil
}

func (s *Store) consumeLocked(productID, branchID string, qty int) (*domain.StockRecord, error) {
	rec, ok := s.stockByKey[stockKey(productID, branchID)]
	if !ok {
		return nil, store.ErrNotFound
	}
	if rec.Quantity-rec.ReservedQty < qty {
		return nil, store.ErrInsufficientStock
	}
	rec.Quantity -= qty
	rec.UpdatedAt = time.Now().UTC()
	return rec, nil
}

func (s *Store) Restock(_ context.Context, p store.RestockParams) (*domain.StockRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	rec, exists := s.stockByKey[stockKey(p.ProductID, p.BranchID)]
	if exists {
		rec.Quantity += p.Quantity
		rec.CostPrice = p.CostPrice
		rec.SellingPrice = p.SellingPrice
		if p.ReorderPoint != nil {
			rec.ReorderPoint = *p.ReorderPoint
		}
		if p.ReorderQty != nil {
			rec.ReorderQty = *p.ReorderQty
		}
		if p.SupplierID != "" {
			rec.SupplierID = p.SupplierID
		}
		if p.Location != "" {
			rec.Location = p.Location
		}
		rec.UpdatedAt = now
		s.appendMovementLocked(domain.StockMovement{
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
		copied := *rec
		return &copied, nil
	}

	rec = &domain.StockRecord{
		ID:           xid.New("stk"),
		ProductID:    p.ProductID,
		BranchID:     p.BranchID,
		Quantity:     p.Quantity,
		CostPrice:    p.CostPrice,
		SellingPrice: p.SellingPrice,
		SupplierID:   p.SupplierID,
		Location:     p.Location,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if p.ReorderPoint != nil {
		rec.ReorderPoint = *p.ReorderPoint
	}
	if p.ReorderQty != nil {
		rec.ReorderQty = *p.ReorderQty
	}
	s.stockByKey[stockKey(p.ProductID, p.BranchID)] = rec
	s.stockByID[rec.ID] = rec
	s.appendMovementLocked(domain.StockMovement{
		StockRecordID:  rec.ID,
		ProductID:      rec.ProductID,
		BranchID:       rec.BranchID,
		Type:           domain.MovementInitial,
		QuantityChange: p.Quantity,
		QuantityBefore: 0,
		QuantityAfter:  p.Quantity,
		PerformedBy:    p.PerformedBy,
		Notes:          p.Notes,
		CreatedAt:      now,
	})
	copied := *rec
	return &copied, nil
}

func (s *Store) Adjust(_ context.Context, productID, branchID string, delta int, reason, performedBy string) (*domain.StockRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.stockByKey[stockKey(productID, branchID)]
	if !ok {
		return nil, store.ErrNotFound
	}
	if rec.Quantity+delta < rec.ReservedQty {
		return nil, store.ErrInvalidAdjustment
	}

	now := time.Now().UTC()
	rec.Quantity += delta
	rec.UpdatedAt = now

	movementType := domain.MovementAdjustmentAdd
	if delta < 0 {
		movementType = domain.MovementAdjustmentRemove
	}
	s.appendMovementLocked(domain.StockMovement{
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
	copied := *rec
	return &copied, nil
}

func (s *Store) Reserve(_ context.Context, productID, branchID string, qty int) (*domain.StockRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.reserveLocked(productID, branchID, qty)
	if err != nil {
		return nil, err
	}
	copied := *rec
	return &copied, nil
}

func (s *Store) Release(_ context.Context, productID, branchID string, qty int) (*domain.StockRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.releaseLocked(productID, branchID, qty)
	if err != nil {
		return nil, err
	}
	copied := *rec
	return &copied, nil
}

func (s *Store) GetStockRecord(_ context.Context, id string) (*domain.StockRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.stockByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *rec
	return &copied, nil
}

func (s *Store) GetStock(_ context.Context, productID, branchID string) (*domain.StockRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.stockByKey[stockKey(productID, branchID)]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *rec
	return &copied, nil
}

func (s *Store) ListStock(_ context.Context, f store.StockFilter) ([]domain.StockRecord, error) {
	if f.Limit < 1 {
		f.Limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]domain.StockRecord, 0, len(s.stockByKey))
	for _, rec := range s.stockByKey {
		if f.BranchID != "" && rec.BranchID != f.BranchID {
			continue
		}
		if f.ProductID != "" && rec.ProductID != f.ProductID {
			continue
		}
		if f.LowOnly && !rec.BelowReorderPoint() {
			continue
		}
		records = append(records, *rec)
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].BranchID == records[j].BranchID {
			return records[i].ProductID < records[j].ProductID
		}
		return records[i].BranchID < records[j].BranchID
	})
	return page(records, f.Offset, f.Limit), nil
}

func (s *Store) ListMovements(_ context.Context, f domain.MovementFilter) ([]domain.StockMovement, error) {
	if f.Limit < 1 {
		f.Limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]domain.StockMovement, 0, f.Limit)
	for _, m := range s.movements {
		if f.StockRecordID != "" && m.StockRecordID != f.StockRecordID {
			continue
		}
		if f.ProductID != "" && m.ProductID != f.ProductID {
			continue
		}
		if f.BranchID != "" && m.BranchID != f.BranchID {
			continue
		}
		if f.Type != "" && m.Type != f.Type {
			continue
		}
		if f.From != nil && m.CreatedAt.Before(*f.From) {
			continue
		}
		if f.To != nil && !m.CreatedAt.Before(*f.To) {
			continue
		}
		matched = append(matched, m)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	return page(matched, f.Offset, f.Limit), nil
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if len(items) > limit {
		items = items[:limit]
	}
	return items
}
