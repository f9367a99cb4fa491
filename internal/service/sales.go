package service

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"bengkelpos/internal/domain"
	"bengkelpos/internal/store"
	"bengkelpos/internal/xid"
)

// CreateSalesOrder prices and reserves every line, then persists the
// order as pending. Unit prices come from the stock record, never from
// the client. If any line cannot be reserved, reservations already
// taken for earlier lines are released and the whole request fails.
func (s *Service) CreateSalesOrder(ctx context.Context, req domain.SalesOrderCreateRequest) (*domain.SalesOrder, error) {
	actor, err := s.requireRole(ctx, domain.RoleAdmin, domain.RoleSalesperson)
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
	if len(req.Items) == 0 {
		return nil, validationErr("order needs at least one item")
	}
	if req.TaxRate.Sign() < 0 || req.TaxRate.GreaterThan(decimal.NewFromInt(1)) {
		return nil, validationErr("tax_rate must be within [0, 1]")
	}
	if req.Discount.Sign() < 0 {
		return nil, validationErr("discount cannot be negative")
	}
	if req.AmountPaid.Sign() < 0 {
		return nil, validationErr("amount_paid cannot be negative")
	}
	for _, item := range req.Items {
		if strings.TrimSpace(item.ProductID) == "" {
			return nil, validationErr("item product_id is required")
		}
		if item.Quantity < 1 {
			return nil, validationErr("item quantity must be positive")
		}
		if item.Discount.Sign() < 0 {
			return nil, validationErr("item discount cannot be negative")
		}
	}

	// Price every line up front so a validation failure touches no stock.
	items := make([]domain.SalesOrderItem, 0, len(req.Items))
	subtotal := decimal.Zero
	for _, item := range req.Items {
		productID := strings.TrimSpace(item.ProductID)
		rec, err := s.repo.GetStock(ctx, productID, req.BranchID)
		if err != nil {
			return nil, err
		}
		lineTotal := rec.SellingPrice.Mul(decimal.NewFromInt(int64(item.Quantity))).Sub(item.Discount)
		if lineTotal.Sign() < 0 {
			lineTotal = decimal.Zero
		}
		items = append(items, domain.SalesOrderItem{
			ProductID: productID,
			Quantity:  item.Quantity,
			UnitPrice: rec.SellingPrice,
			Discount:  item.Discount,
			Total:     lineTotal,
		})
		subtotal = subtotal.Add(lineTotal)
	}

	taxAmount := subtotal.Mul(req.TaxRate)
	total := subtotal.Add(taxAmount).Sub(req.Discount)
	if total.Sign() < 0 {
		total = decimal.Zero
	}

	reserved := make([]domain.SalesOrderItem, 0, len(items))
	releaseAll := func() {
		// Compensation must run even when the request context died.
		cleanup := context.WithoutCancel(ctx)
		for _, item := range reserved {
			if _, err := s.repo.Release(cleanup, item.ProductID, req.BranchID, item.Quantity); err != nil {
				s.log.Error("compensating release failed",
					zap.String("product_id", item.ProductID),
					zap.String("branch_id", req.BranchID),
					zap.Int("quantity", item.Quantity),
					zap.Error(err),
				)
			}
		}
	}
	for _, item := range items {
		if _, err := s.repo.Reserve(ctx, item.ProductID, req.BranchID, item.Quantity); err != nil {
			releaseAll()
			return nil, err
		}
		reserved = append(reserved, item)
	}

	method := strings.TrimSpace(req.Method)
	if method == "" {
		method = "cash"
	}
	paymentStatus, change := domain.ComputePayment(req.AmountPaid, total)
	payment := domain.Payment{
		Method:     method,
		AmountPaid: req.AmountPaid,
		Status:     paymentStatus,
		Change:     change,
	}
	now := time.Now().UTC()
	if paymentStatus == domain.PaymentStatusPaid {
		payment.PaidAt = &now
	}

	order := domain.SalesOrder{
		ID:          xid.New("so"),
		OrderNumber: xid.Number("SO"),
		BranchID:    req.BranchID,
		Customer:    req.Customer,
		Items:       items,
		Subtotal:    subtotal,
		Tax:         domain.Tax{Rate: req.TaxRate, Amount: taxAmount},
		Discount:    req.Discount,
		Total:       total,
		Payment:     payment,
		Status:      domain.SalesStatusPending,
		ProcessedBy: actor.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	created, err := s.repo.CreateSalesOrder(ctx, order)
	if err != nil {
		releaseAll()
		return nil, err
	}

	s.invalidateBranch(ctx, created.BranchID)
	s.log.Info("sales order created",
		zap.String("order_id", created.ID),
		zap.String("order_number", created.OrderNumber),
		zap.String("branch_id", created.BranchID),
		zap.Int("items", len(created.Items)),
		zap.String("total", created.Total.String()),
	)
	return created, nil
}

func (s *Service) GetSalesOrder(ctx context.Context, id string) (*domain.SalesOrder, error) {
	actor, err := s.requireRole(ctx, domain.RoleAdmin, domain.RoleSalesperson)
	if err != nil {
		return nil, err
	}
	order, err := s.repo.GetSalesOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.requireBranch(actor, order.BranchID); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *Service) ListSalesOrders(ctx context.Context, f store.SalesFilter) ([]domain.SalesOrder, error) {
	actor, err := s.requireRole(ctx, domain.RoleAdmin, domain.RoleSalesperson)
	if err != nil {
		return nil, err
	}
	if actor.Role != domain.RoleAdmin {
		f.BranchID = actor.BranchID
	}
	if f.Status != "" && !domain.IsSalesStatus(f.Status) {
		return nil, validationErr("unknown sales status %q", f.Status)
	}
	return s.repo.ListSalesOrders(ctx, f)
}

// UpdateSalesOrderStatus drives the sales state machine. Completion
// fulfills every reserved line in one storage transaction; cancellation
// releases the reservations.
func (s *Service) UpdateSalesOrderStatus(ctx context.Context, id, status string) (*domain.SalesOrder, error) {
	actor, err := s.requireRole(ctx, domain.RoleAdmin, domain.RoleSalesperson)
	if err != nil {
		return nil, err
	}
	if !domain.IsSalesStatus(status) {
		return nil, validationErr("unknown sales status %q", status)
	}

	existing, err := s.repo.GetSalesOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.requireBranch(actor, existing.BranchID); err != nil {
		return nil, err
	}
	if !domain.ValidSalesTransition(existing.Status, status) {
		return nil, store.ErrInvalidStatusTransition
	}

	var order *domain.SalesOrder
	switch status {
	case domain.SalesStatusProcessing:
		order, err = s.repo.SetSalesOrderProcessing(ctx, id)
	case domain.SalesStatusCompleted:
		order, err = s.repo.CompleteSalesOrder(ctx, id, actor.ID)
	case domain.SalesStatusCancelled:
		order, err = s.repo.CancelSalesOrder(ctx, id, actor.ID)
	default:
		return nil, store.ErrInvalidStatusTransition
	}
	if err != nil {
		return nil, err
	}

	s.invalidateBranch(ctx, order.BranchID)
	s.log.Info("sales order status changed",
		zap.String("order_id", order.ID),
		zap.String("status", order.Status),
		zap.String("performed_by", actor.ID),
	)
	return order, nil
}

// CancelSalesOrder backs the DELETE endpoint; it is the cancelled
// transition by another name.
func (s *Service) CancelSalesOrder(ctx context.Context, id string) (*domain.SalesOrder, error) {
	return s.UpdateSalesOrderStatus(ctx, id, domain.SalesStatusCancelled)
}

// UpdateSalesPayment records a (further) payment against the order and
// re-derives the payment status and change from the order total.
func (s *Service) UpdateSalesPayment(ctx context.Context, id string, req domain.PaymentUpdateRequest) (*domain.SalesOrder, error) {
	actor, err := s.requireRole(ctx, domain.RoleAdmin, domain.RoleSalesperson)
	if err != nil {
		return nil, err
	}
	if req.AmountPaid.Sign() < 0 {
		return nil, validationErr("amount_paid cannot be negative")
	}

	existing, err := s.repo.GetSalesOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.requireBranch(actor, existing.BranchID); err != nil {
		return nil, err
	}
	if existing.Status == domain.SalesStatusCancelled {
		return nil, store.ErrInvalidStatusTransition
	}

	payment := existing.Payment
	if m := strings.TrimSpace(req.Method); m != "" {
		payment.Method = m
	}
	payment.AmountPaid = req.AmountPaid
	payment.Status, payment.Change = domain.ComputePayment(req.AmountPaid, existing.Total)
	if payment.Status == domain.PaymentStatusPaid && payment.PaidAt == nil {
		now := time.Now().UTC()
		payment.PaidAt = &now
	}

	order, err := s.repo.UpdateSalesPayment(ctx, id, payment)
	if err != nil {
		return nil, err
	}
	s.log.Info("sales payment updated",
		zap.String("order_id", order.ID),
		zap.String("payment_status", order.Payment.Status),
	)
	return order, nil
}
