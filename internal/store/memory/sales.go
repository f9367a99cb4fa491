package memory

import (
	"context"
	"sort"
	"time"

	"bengkelpos/internal/domain"
	"bengkelpos/internal/store"
)

func cloneSalesOrder(o *domain.SalesOrder) *domain.SalesOrder {
	copied := *o
	copied.Items = append([]domain.SalesOrderItem(nil), o.Items...)
	return &copied
}

func (s *Store) CreateSalesOrder(_ context.Context, o domain.SalesOrder) (*domain.SalesOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.salesByID {
		if existing.OrderNumber == o.OrderNumber {
			return nil, store.ErrDuplicate
		}
	}
	stored := o
	stored.Items = append([]domain.SalesOrderItem(nil), o.Items...)
	s.salesByID[o.ID] = &stored
	return cloneSalesOrder(&stored), nil
}

func (s *Store) GetSalesOrder(_ context.Context, id string) (*domain.SalesOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.salesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneSalesOrder(o), nil
}

func (s *Store) ListSalesOrders(_ context.Context, f store.SalesFilter) ([]domain.SalesOrder, error) {
	if f.Limit < 1 {
		f.Limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]domain.SalesOrder, 0, len(s.salesByID))
	for _, o := range s.salesByID {
		if f.BranchID != "" && o.BranchID != f.BranchID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		orders = append(orders, *cloneSalesOrder(o))
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	return page(orders, f.Offset, f.Limit), nil
}

func (s *Store) SetSalesOrderProcessing(_ context.Context, id string) (*domain.SalesOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.salesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if o.Status != domain.SalesStatusPending {
		return nil, store.ErrInvalidStatusTransition
	}
	o.Status = domain.SalesStatusProcessing
	o.UpdatedAt = time.Now().UTC()
	return cloneSalesOrder(o), nil
}

func (s *Store) CompleteSalesOrder(_ context.Context, id, performedBy string) (*domain.SalesOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.salesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if o.Status != domain.SalesStatusProcessing {
		return nil, store.ErrInvalidStatusTransition
	}

	// Dry-run every deduction first so a failure on a later item leaves
	// earlier items untouched, matching the all-or-nothing transaction
	// in the postgres store.
	for _, item := range o.Items {
		rec, exists := s.stockByKey[stockKey(item.ProductID, o.BranchID)]
		if !exists {
			return nil, store.ErrNotFound
		}
		if rec.Quantity < item.Quantity || rec.ReservedQty < item.Quantity {
			return nil, store.ErrInsufficientStock
		}
	}

	now := time.Now().UTC()
	ref := &domain.MovementReference{Kind: domain.ReferenceSalesOrder, ID: o.ID}
	for _, item := range o.Items {
		rec, err := s.fulfillLocked(item.ProductID, o.BranchID, item.Quantity)
		if err != nil {
			return nil, err
		}
		s.appendMovementLocked(domain.StockMovement{
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
		})
	}

	o.Status = domain.SalesStatusCompleted
	o.UpdatedAt = now
	o.CompletedAt = &now
	return cloneSalesOrder(o), nil
}

func (s *Store) CancelSalesOrder(_ context.Context, id, performedBy string) (*domain.SalesOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.salesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !domain.ValidSalesTransition(o.Status, domain.SalesStatusCancelled) {
		return nil, store.ErrInvalidStatusTransition
	}

	now := time.Now().UTC()
	ref := &domain.MovementReference{Kind: domain.ReferenceSalesOrder, ID: o.ID}
	for _, item := range o.Items {
		rec, err := s.releaseLocked(item.ProductID, o.BranchID, item.Quantity)
		if err != nil {
			return nil, err
		}
		s.appendMovementLocked(domain.StockMovement{
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
		})
	}

	o.Status = domain.SalesStatusCancelled
	o.UpdatedAt = now
	return cloneSalesOrder(o), nil
}

func (s *Store) UpdateSalesPayment(_ context.Context, id string, p domain.Payment) (*domain.SalesOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.salesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	o.Payment = p
	o.UpdatedAt = time.Now().UTC()
	return cloneSalesOrder(o), nil
}
