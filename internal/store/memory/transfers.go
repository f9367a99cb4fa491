package memory

import (
	"context"
	"sort"
	"time"

	"bengkelpos/internal/domain"
	"bengkelpos/internal/store"
	"bengkelpos/internal/xid"
)

func (s *Store) CreateTransfer(_ context.Context, t domain.StockTransfer) (*domain.StockTransfer, error) {
	if t.ID == "" {
		t.ID = xid.New("trf")
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	t.Status = domain.TransferStatusPending

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.reserveLocked(t.ProductID, t.FromBranchID, t.Quantity); err != nil {
		return nil, err
	}
	stored := t
	s.transfersByID[t.ID] = &stored
	copied := stored
	return &copied, nil
}

func (s *Store) GetTransfer(_ context.Context, id string) (*domain.StockTransfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.transfersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *t
	return &copied, nil
}

func (s *Store) ListTransfers(_ context.Context, f store.TransferFilter) ([]domain.StockTransfer, error) {
	if f.Limit < 1 {
		f.Limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	transfers := make([]domain.StockTransfer, 0, len(s.transfersByID))
	for _, t := range s.transfersByID {
		if f.ProductID != "" && t.ProductID != f.ProductID {
			continue
		}
		if f.BranchID != "" && t.FromBranchID != f.BranchID && t.ToBranchID != f.BranchID {
			continue
		}
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		transfers = append(transfers, *t)
	}
	sort.Slice(transfers, func(i, j int) bool {
		return transfers[i].CreatedAt.After(transfers[j].CreatedAt)
	})
	return page(transfers, f.Offset, f.Limit), nil
}

func (s *Store) MarkTransferInTransit(_ context.Context, id string) (*domain.StockTransfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transfersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if t.Status != domain.TransferStatusPending {
		return nil, store.ErrInvalidStatusTransition
	}
	t.Status = domain.TransferStatusInTransit
	t.UpdatedAt = time.Now().UTC()
	copied := *t
	return &copied, nil
}

func (s *Store) CompleteTransfer(_ context.Context, id, performedBy string) (*domain.StockTransfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transfersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if t.Status != domain.TransferStatusInTransit {
		return nil, store.ErrInvalidStatusTransition
	}

	source, err := s.fulfillLocked(t.ProductID, t.FromBranchID, t.Quantity)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	ref := &domain.MovementReference{Kind: domain.ReferenceTransfer, ID: t.ID}
	s.appendMovementLocked(domain.StockMovement{
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
	})

	dest, exists := s.stockByKey[stockKey(t.ProductID, t.ToBranchID)]
	if exists {
		dest.Quantity += t.Quantity
		dest.UpdatedAt = now
	} else {
		// Destination record inherits the source's prices and reorder
		// thresholds.
		dest = &domain.StockRecord{
			ID:           xid.New("stk"),
			ProductID:    t.ProductID,
			BranchID:     t.ToBranchID,
			Quantity:     t.Quantity,
			CostPrice:    source.CostPrice,
			SellingPrice: source.SellingPrice,
			ReorderPoint: source.ReorderPoint,
			ReorderQty:   source.ReorderQty,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		s.stockByKey[stockKey(t.ProductID, t.ToBranchID)] = dest
		s.stockByID[dest.ID] = dest
	}
	s.appendMovementLocked(domain.StockMovement{
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
	})

	t.Status = domain.TransferStatusCompleted
	t.UpdatedAt = now
	t.CompletedAt = &now
	copied := *t
	return &copied, nil
}

func (s *Store) CancelTransfer(_ context.Context, id string) (*domain.StockTransfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transfersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !domain.ValidTransferTransition(t.Status, domain.TransferStatusCancelled) {
		return nil, store.ErrInvalidStatusTransition
	}

	if _, err := s.releaseLocked(t.ProductID, t.FromBranchID, t.Quantity); err != nil {
		return nil, err
	}
	t.Status = domain.TransferStatusCancelled
	t.UpdatedAt = time.Now().UTC()
	copied := *t
	return &copied, nil
}
