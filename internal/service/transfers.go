package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"bengkelpos/internal/domain"
	"bengkelpos/internal/store"
	"bengkelpos/internal/xid"
)

// CreateTransfer opens a branch-to-branch transfer. The source branch's
// units are reserved for as long as the transfer stays open.
func (s *Service) CreateTransfer(ctx context.Context, req domain.TransferCreateRequest) (*domain.StockTransfer, error) {
	actor, err := s.requireRole(ctx, domain.RoleAdmin)
	if err != nil {
		return nil, err
	}

	req.ProductID = strings.TrimSpace(req.ProductID)
	req.FromBranchID = strings.TrimSpace(req.FromBranchID)
	req.ToBranchID = strings.TrimSpace(req.ToBranchID)
	if req.ProductID == "" || req.FromBranchID == "" || req.ToBranchID == "" {
		return nil, validationErr("product_id, from_branch_id and to_branch_id are required")
	}
	if req.FromBranchID == req.ToBranchID {
		return nil, validationErr("source and destination branches must differ")
	}
	if req.Quantity < 1 {
		return nil, validationErr("quantity must be positive")
	}

	now := time.Now().UTC()
	transfer, err := s.repo.CreateTransfer(ctx, domain.StockTransfer{
		ID:           xid.New("trf"),
		ProductID:    req.ProductID,
		FromBranchID: req.FromBranchID,
		ToBranchID:   req.ToBranchID,
		Quantity:     req.Quantity,
		Status:       domain.TransferStatusPending,
		Notes:        strings.TrimSpace(req.Notes),
		CreatedBy:    actor.ID,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return nil, err
	}

	s.invalidateBranch(ctx, transfer.FromBranchID)
	s.log.Info("transfer created",
		zap.String("transfer_id", transfer.ID),
		zap.String("product_id", transfer.ProductID),
		zap.String("from", transfer.FromBranchID),
		zap.String("to", transfer.ToBranchID),
		zap.Int("quantity", transfer.Quantity),
	)
	return transfer, nil
}

func (s *Service) GetTransfer(ctx context.Context, id string) (*domain.StockTransfer, error) {
	if _, err := s.requireRole(ctx, domain.RoleAdmin); err != nil {
		return nil, err
	}
	return s.repo.GetTransfer(ctx, id)
}

func (s *Service) ListTransfers(ctx context.Context, f store.TransferFilter) ([]domain.StockTransfer, error) {
	if _, err := s.requireRole(ctx, domain.RoleAdmin); err != nil {
		return nil, err
	}
	if f.Status != "" && !domain.IsTransferStatus(f.Status) {
		return nil, validationErr("unknown transfer status %q", f.Status)
	}
	return s.repo.ListTransfers(ctx, f)
}

// UpdateTransferStatus drives the transfer state machine. Completing a
// transfer moves the reserved units out of the source and into the
// destination, creating the destination record on first arrival.
func (s *Service) UpdateTransferStatus(ctx context.Context, id, status string) (*domain.StockTransfer, error) {
	actor, err := s.requireRole(ctx, domain.RoleAdmin)
	if err != nil {
		return nil, err
	}
	if !domain.IsTransferStatus(status) {
		return nil, validationErr("unknown transfer status %q", status)
	}

	var transfer *domain.StockTransfer
	switch status {
	case domain.TransferStatusInTransit:
		transfer, err = s.repo.MarkTransferInTransit(ctx, id)
	case domain.TransferStatusCompleted:
		transfer, err = s.repo.CompleteTransfer(ctx, id, actor.ID)
	case domain.TransferStatusCancelled:
		transfer, err = s.repo.CancelTransfer(ctx, id)
	default:
		return nil, store.ErrInvalidStatusTransition
	}
	if err != nil {
		return nil, err
	}

	s.invalidateBranch(ctx, transfer.FromBranchID)
	if status == domain.TransferStatusCompleted {
		s.invalidateBranch(ctx, transfer.ToBranchID)
	}
	s.log.Info("transfer status changed",
		zap.String("transfer_id", transfer.ID),
		zap.String("status", transfer.Status),
		zap.String("performed_by", actor.ID),
	)
	return transfer, nil
}
