package memory

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"bengkelpos/internal/domain"
	"bengkelpos/internal/store"
)

func cloneServiceOrder(o *domain.ServiceOrder) *domain.ServiceOrder {
	copied := *o
	copied.PartsUsed = append([]domain.ServicePart(nil), o.PartsUsed...)
	return &copied
}

func (s *Store) CreateServiceOrder(_ context.Context, o domain.ServiceOrder) (*domain.ServiceOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.servicesByID {
		if existing.JobNumber == o.JobNumber {
			return nil, store.ErrDuplicate
		}
	}
	stored := o
	stored.PartsUsed = append([]domain.ServicePart(nil), o.PartsUsed...)
	s.servicesByID[o.ID] = &stored
	return cloneServiceOrder(&stored), nil
}

func (s *Store) GetServiceOrder(_ context.Context, id string) (*domain.ServiceOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.servicesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneServiceOrder(o), nil
}

func (s *Store) ListServiceOrders(_ context.Context, f store.ServiceFilter) ([]domain.ServiceOrder, error) {
	if f.Limit < 1 {
		f.Limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]domain.ServiceOrder, 0, len(s.servicesByID))
	for _, o := range s.servicesByID {
		if f.BranchID != "" && o.BranchID != f.BranchID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		if f.AssignedTo != "" && o.AssignedTo != f.AssignedTo {
			continue
		}
		orders = append(orders, *cloneServiceOrder(o))
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	return page(orders, f.Offset, f.Limit), nil
}

func (s *Store) UpdateServiceOrderStatus(_ context.Context, id, from, to string) (*domain.ServiceOrder, error) {
	if to == domain.ServiceStatusCompleted {
		return nil, store.ErrInvalidStatusTransition
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.servicesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if o.Status != from || !domain.ValidServiceTransition(from, to) {
		return nil, store.ErrInvalidStatusTransition
	}

	now := time.Now().UTC()
	switch to {
	case domain.ServiceStatusScheduled:
		o.ScheduledAt = &now
	case domain.ServiceStatusInProgress:
		o.StartedAt = &now
	}
	o.Status = to
	o.UpdatedAt = now
	return cloneServiceOrder(o), nil
}

func (s *Store) CompleteServiceOrder(_ context.Context, id, performedBy string) (*domain.ServiceOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.servicesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !domain.ValidServiceTransition(o.Status, domain.ServiceStatusCompleted) {
		return nil, store.ErrInvalidStatusTransition
	}

	for _, part := range o.PartsUsed {
		rec, exists := s.stockByKey[stockKey(part.ProductID, o.BranchID)]
		if !exists {
			return nil, store.ErrNotFound
		}
		if rec.Quantity-rec.ReservedQty < part.Quantity {
			return nil, store.ErrInsufficientStock
		}
	}

	now := time.Now().UTC()
	ref := &domain.MovementReference{Kind: domain.ReferenceServiceOrder, ID: o.ID}
	totalParts := decimal.Zero
	for _, part := range o.PartsUsed {
		rec, err := s.consumeLocked(part.ProductID, o.BranchID, part.Quantity)
		if err != nil {
			return nil, err
		}
		s.appendMovementLocked(domain.StockMovement{
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
		})
		totalParts = totalParts.Add(part.Total)
	}

	o.TotalParts = totalParts
	o.TotalAmount = totalParts.Add(o.LaborCost).Add(o.OtherCharges)
	status, change := domain.ComputePayment(o.Payment.AmountPaid, o.TotalAmount)
	o.Payment.Status = status
	o.Payment.Change = change
	if status == domain.PaymentStatusPaid && o.Payment.PaidAt == nil {
		o.Payment.PaidAt = &now
	}
	o.Status = domain.ServiceStatusCompleted
	o.CompletedAt = &now
	o.UpdatedAt = now
	return cloneServiceOrder(o), nil
}

func (s *Store) UpdateServiceParts(_ context.Context, id string, parts []domain.ServicePart) (*domain.ServiceOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.servicesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if o.Status == domain.ServiceStatusCompleted || o.Status == domain.ServiceStatusCancelled {
		return nil, store.ErrInvalidStatusTransition
	}

	o.PartsUsed = append([]domain.ServicePart(nil), parts...)
	totalParts := decimal.Zero
	for _, p := range parts {
		totalParts = totalParts.Add(p.Total)
	}
	o.TotalParts = totalParts
	o.TotalAmount = totalParts.Add(o.LaborCost).Add(o.OtherCharges)
	o.UpdatedAt = time.Now().UTC()
	return cloneServiceOrder(o), nil
}

func (s *Store) AssignServiceOrder(_ context.Context, id, mechanic string) (*domain.ServiceOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.servicesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	o.AssignedTo = mechanic
	o.UpdatedAt = time.Now().UTC()
	return cloneServiceOrder(o), nil
}

func (s *Store) UpdateServiceDetails(_ context.Context, id string, req domain.ServiceUpdateRequest) (*domain.ServiceOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.servicesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}

	if req.Diagnosis != nil {
		o.Diagnosis = *req.Diagnosis
	}
	if req.Priority != nil {
		o.Priority = *req.Priority
	}
	if req.LaborCost != nil {
		o.LaborCost = *req.LaborCost
	}
	if req.OtherCharges != nil {
		o.OtherCharges = *req.OtherCharges
	}
	o.TotalAmount = o.TotalParts.Add(o.LaborCost).Add(o.OtherCharges)
	o.UpdatedAt = time.Now().UTC()
	return cloneServiceOrder(o), nil
}

func (s *Store) UpdateServicePayment(_ context.Context, id string, p domain.Payment) (*domain.ServiceOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.servicesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	o.Payment = p
	o.UpdatedAt = time.Now().UTC()
	return cloneServiceOrder(o), nil
}
