package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"bengkelpos/internal/domain"
	"bengkelpos/internal/store"
	"bengkelpos/internal/xid"
)

// buildServiceParts snapshots the requested parts against the branch's
// stock records and the catalog. Prices and sku/name are captured at
// snapshot time; stock is only consumed when the job completes.
func (s *Service) buildServiceParts(ctx context.Context, branchID string, reqs []domain.ServicePartRequest) ([]domain.ServicePart, decimal.Decimal, error) {
	parts := make([]domain.ServicePart, 0, len(reqs))
	total := decimal.Zero
	for _, part := range reqs {
		productID := strings.TrimSpace(part.ProductID)
		if productID == "" {
			return nil, decimal.Zero, validationErr("part product_id is required")
		}
		if part.Quantity < 1 {
			return nil, decimal.Zero, validationErr("part quantity must be positive")
		}
		rec, err := s.repo.GetStock(ctx, productID, branchID)
		if err != nil {
			return nil, decimal.Zero, err
		}
		lineTotal := rec.SellingPrice.Mul(decimal.NewFromInt(int64(part.Quantity)))
		snapshot := domain.ServicePart{
			ProductID: productID,
			Quantity:  part.Quantity,
			UnitPrice: rec.SellingPrice,
			Total:     lineTotal,
		}
		// Stock can exist for products the catalog has not registered;
		// sku/name stay empty then.
		switch prod, err := s.repo.GetProduct(ctx, productID); {
		case err == nil:
			snapshot.SKU = prod.SKU
			snapshot.Name = prod.Name
		case !errors.Is(err, store.ErrNotFound):
			return nil, decimal.Zero, err
		}
		parts = append(parts, snapshot)
		total = total.Add(lineTotal)
	}
	return parts, total, nil
}

// CreateServiceOrder opens a workshop job. Parts listed at creation are
// priced immediately but deducted from stock only at completion.
func (s *Service) CreateServiceOrder(ctx context.Context, req domain.ServiceOrderCreateRequest) (*domain.ServiceOrder, error) {
	actor, err := s.requireRole(ctx, domain.RoleAdmin, domain.RoleMechanic)
	if err != nil {
		return nil, err
	}
	req.BranchID = strings.TrimSpace(req.BranchID)
	if req.BranchID == "" {
		return nil, validationErr("branch_id is required")
	}
	if err := s.requireBranch(actor, req.BranchID); err != nil {
		return nil, err
	}
	req.Description = strings.TrimSpace(req.Description)
	if req.Description == "" {
		return nil, validationErr("description is required")
	}
	priority := strings.TrimSpace(req.Priority)
	if priority == "" {
		priority = domain.PriorityNormal
	}
	if !domain.IsPriority(priority) {
		return nil, validationErr("unknown priority %q", priority)
	}
	if req.LaborCost.Sign() < 0 || req.OtherCharges.Sign() < 0 {
		return nil, validationErr("labor_cost and other_charges cannot be negative")
	}

	parts, totalParts, err := s.buildServiceParts(ctx, req.BranchID, req.Parts)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	order := domain.ServiceOrder{
		ID:           xid.New("svc"),
		JobNumber:    xid.Number("JOB"),
		BranchID:     req.BranchID,
		Customer:     req.Customer,
		Vehicle:      req.Vehicle,
		Description:  req.Description,
		AssignedTo:   strings.TrimSpace(req.AssignedTo),
		PartsUsed:    parts,
		TotalParts:   totalParts,
		LaborCost:    req.LaborCost,
		OtherCharges: req.OtherCharges,
		TotalAmount:  totalParts.Add(req.LaborCost).Add(req.OtherCharges),
		Payment:      domain.Payment{Method: "cash", Status: domain.PaymentStatusPending},
		Status:       domain.ServiceStatusPending,
		Priority:     priority,
		CreatedBy:    actor.ID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	created, err := s.repo.CreateServiceOrder(ctx, order)
	if err != nil {
		return nil, err
	}
	s.log.Info("service order created",
		zap.String("order_id", created.ID),
		zap.String("job_number", created.JobNumber),
		zap.String("branch_id", created.BranchID),
		zap.String("priority", created.Priority),
	)
	return created, nil
}

func (s *Service) GetServiceOrder(ctx context.Context, id string) (*domain.ServiceOrder, error) {
	actor, err := s.requireRole(ctx, domain.RoleAdmin, domain.RoleMechanic)
	if err != nil {
		return nil, err
	}
	order, err := s.repo.GetServiceOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.requireBranch(actor, order.BranchID); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *Service) ListServiceOrders(ctx context.Context, f store.ServiceFilter) ([]domain.ServiceOrder, error) {
	actor, err := s.requireRole(ctx, domain.RoleAdmin, domain.RoleMechanic)
	if err != nil {
		return nil, err
	}
	if actor.Role != domain.RoleAdmin {
		f.BranchID = actor.BranchID
	}
	if f.Status != "" && !domain.IsServiceStatus(f.Status) {
		return nil, validationErr("unknown service status %q", f.Status)
	}
	return s.repo.ListServiceOrders(ctx, f)
}

// UpdateServiceOrderStatus drives the workshop state machine.
// Completion consumes every snapshotted part from unreserved stock and
// re-derives totals and payment in one storage transaction.
func (s *Service) UpdateServiceOrderStatus(ctx context.Context, id, status string) (*domain.ServiceOrder, error) {
	actor, err := s.requireRole(ctx, domain.RoleAdmin, domain.RoleMechanic)
	if err != nil {
		return nil, err
	}
	if !domain.IsServiceStatus(status) {
		return nil, validationErr("unknown service status %q", status)
	}

	existing, err := s.repo.GetServiceOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.requireBranch(actor, existing.BranchID); err != nil {
		return nil, err
	}
	if !domain.ValidServiceTransition(existing.Status, status) {
		return nil, store.ErrInvalidStatusTransition
	}

	var order *domain.ServiceOrder
	if status == domain.ServiceStatusCompleted {
		order, err = s.repo.CompleteServiceOrder(ctx, id, actor.ID)
	} else {
		order, err = s.repo.UpdateServiceOrderStatus(ctx, id, existing.Status, status)
	}
	if err != nil {
		return nil, err
	}

	if status == domain.ServiceStatusCompleted {
		s.invalidateBranch(ctx, order.BranchID)
	}
	s.log.Info("service order status changed",
		zap.String("order_id", order.ID),
		zap.String("status", order.Status),
		zap.String("performed_by", actor.ID),
	)
	return order, nil
}

// CancelServiceOrder backs the DELETE endpoint. Service parts never
// reserve stock, so cancellation has no ledger effect.
func (s *Service) CancelServiceOrder(ctx context.Context, id string) (*domain.ServiceOrder, error) {
	return s.UpdateServiceOrderStatus(ctx, id, domain.ServiceStatusCancelled)
}

// UpdateServiceParts replaces the job's parts snapshot and recomputes
// totals. Rejected once the job is completed or cancelled.
func (s *Service) UpdateServiceParts(ctx context.Context, id string, req domain.ServicePartsUpdateRequest) (*domain.ServiceOrder, error) {
	actor, err := s.requireRole(ctx, domain.RoleAdmin, domain.RoleMechanic)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.GetServiceOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.requireBranch(actor, existing.BranchID); err != nil {
		return nil, err
	}

	parts, _, err := s.buildServiceParts(ctx, existing.BranchID, req.Parts)
	if err != nil {
		return nil, err
	}

	order, err := s.repo.UpdateServiceParts(ctx, id, parts)
	if err != nil {
		return nil, err
	}
	s.log.Info("service parts updated",
		zap.String("order_id", order.ID),
		zap.Int("parts", len(order.PartsUsed)),
	)
	return order, nil
}

func (s *Service) AssignServiceOrder(ctx context.Context, id string, req domain.ServiceAssignRequest) (*domain.ServiceOrder, error) {
	actor, err := s.requireRole(ctx, domain.RoleAdmin, domain.RoleMechanic)
	if err != nil {
		return nil, err
	}
	mechanic := strings.TrimSpace(req.AssignedTo)
	if mechanic == "" {
		return nil, validationErr("assigned_to is required")
	}

	existing, err := s.repo.GetServiceOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.requireBranch(actor, existing.BranchID); err != nil {
		return nil, err
	}
	if existing.Status == domain.ServiceStatusCompleted || existing.Status == domain.ServiceStatusCancelled {
		return nil, store.ErrInvalidStatusTransition
	}

	return s.repo.AssignServiceOrder(ctx, id, mechanic)
}

func (s *Service) UpdateServiceDetails(ctx context.Context, id string, req domain.ServiceUpdateRequest) (*domain.ServiceOrder, error) {
	actor, err := s.requireRole(ctx, domain.RoleAdmin, domain.RoleMechanic)
	if err != nil {
		return nil, err
	}
	if req.Priority != nil && !domain.IsPriority(*req.Priority) {
		return nil, validationErr("unknown priority %q", *req.Priority)
	}
	if req.LaborCost != nil && req.LaborCost.Sign() < 0 {
		return nil, validationErr("labor_cost cannot be negative")
	}
	if req.OtherCharges != nil && req.OtherCharges.Sign() < 0 {
		return nil, validationErr("other_charges cannot be negative")
	}

	existing, err := s.repo.GetServiceOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.requireBranch(actor, existing.BranchID); err != nil {
		return nil, err
	}
	if existing.Status == domain.ServiceStatusCompleted || existing.Status == domain.ServiceStatusCancelled {
		return nil, store.ErrInvalidStatusTransition
	}

	return s.repo.UpdateServiceDetails(ctx, id, req)
}

// UpdateServicePayment records a payment against the job and re-derives
// payment status and change from the current total.
func (s *Service) UpdateServicePayment(ctx context.Context, id string, req domain.PaymentUpdateRequest) (*domain.ServiceOrder, error) {
	actor, err := s.requireRole(ctx, domain.RoleAdmin, domain.RoleMechanic)
	if err != nil {
		return nil, err
	}
	if req.AmountPaid.Sign() < 0 {
		return nil, validationErr("amount_paid cannot be negative")
	}

	existing, err := s.repo.GetServiceOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.requireBranch(actor, existing.BranchID); err != nil {
		return nil, err
	}
	if existing.Status == domain.ServiceStatusCancelled {
		return nil, store.ErrInvalidStatusTransition
	}

	payment := existing.Payment
	if m := strings.TrimSpace(req.Method); m != "" {
		payment.Method = m
	}
	payment.AmountPaid = req.AmountPaid
	payment.Status, payment.Change = domain.ComputePayment(req.AmountPaid, existing.TotalAmount)
	if payment.Status == domain.PaymentStatusPaid && payment.PaidAt == nil {
		now := time.Now().UTC()
		payment.PaidAt = &now
	}

	order, err := s.repo.UpdateServicePayment(ctx, id, payment)
	if err != nil {
		return nil, err
	}
	s.log.Info("service payment updated",
		zap.String("order_id", order.ID),
		zap.String("payment_status", order.Payment.Status),
	)
	return order, nil
}
