package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"bengkelpos/internal/cache"
	"bengkelpos/internal/domain"
	"bengkelpos/internal/reorder"
	"bengkelpos/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// Service implements the inventory ledger and both order engines on top
// of a store.Repository. All mutating calls require an Actor in context;
// non-admin actors are confined to their own branch.
type Service struct {
	repo            store.Repository
	cache           cache.StockCache
	log             *zap.Logger
	defaultBranchID string
	cacheTTL        time.Duration
	planner         *reorder.Planner
}

func New(repo store.Repository, stockCache cache.StockCache, log *zap.Logger, defaultBranchID string, cacheTTL time.Duration) *Service {
	if stockCache == nil {
		stockCache = cache.NoopStockCache{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	if defaultBranchID == "" {
		defaultBranchID = "branch-main"
	}
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}

	return &Service{
		repo:            repo,
		cache:           stockCache,
		log:             log,
		defaultBranchID: defaultBranchID,
		cacheTTL:        cacheTTL,
		planner:         reorder.NewPlanner(),
	}
}

func (s *Service) requireRole(ctx context.Context, roles ...string) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Actor{}, store.ErrForbidden
	}
	for _, role := range roles {
		if actor.Role == role {
			return actor, nil
		}
	}
	return domain.Actor{}, store.ErrForbidden
}

func (s *Service) requireBranch(actor domain.Actor, branchID string) error {
	if !actor.CanActOnBranch(branchID) {
		return store.ErrForbidden
	}
	return nil
}

func (s *Service) invalidateBranch(ctx context.Context, branchID string) {
	if err := s.cache.InvalidateBranch(ctx, branchID); err != nil {
		s.log.Warn("stock cache invalidation failed", zap.String("branch_id", branchID), zap.Error(err))
	}
}

func validationErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", store.ErrValidation, fmt.Sprintf(format, args...))
}

// Restock adds units for a product at a branch, creating the stock
// record on first stock-in.
func (s *Service) Restock(ctx context.Context, req domain.RestockRequest) (*domain.StockRecord, error) {
	actor, err := s.requireRole(ctx, domain.RoleAdmin)
	if err != nil {
		return nil, err
	}

	req.ProductID = strings.TrimSpace(req.ProductID)
	req.BranchID = strings.TrimSpace(req.BranchID)
	if req.ProductID == "" || req.BranchID == "" {
		return nil, validationErr("product_id and branch_id are required")
	}
	if req.Quantity < 1 {
		return nil, validationErr("quantity must be positive")
	}
	if req.CostPrice.Sign() < 0 || req.SellingPrice.Sign() < 0 {
		return nil, validationErr("prices cannot be negative")
	}
	if req.ReorderPoint != nil && *req.ReorderPoint < 0 {
		return nil, validationErr("reorder_point cannot be negative")
	}
	if req.ReorderQty != nil && *req.ReorderQty < 0 {
		return nil, validationErr("reorder_quantity cannot be negative")
	}

	rec, err := s.repo.Restock(ctx, store.RestockParams{
		ProductID:    req.ProductID,
		BranchID:     req.BranchID,
		Quantity:     req.Quantity,
		CostPrice:    req.CostPrice,
		SellingPrice: req.SellingPrice,
		ReorderPoint: req.ReorderPoint,
		ReorderQty:   req.ReorderQty,
		SupplierID:   strings.TrimSpace(req.SupplierID),
		Location:     strings.TrimSpace(req.Location),
		Notes:        strings.TrimSpace(req.Notes),
		PerformedBy:  actor.ID,
	})
	if err != nil {
		return nil, err
	}

	s.invalidateBranch(ctx, rec.BranchID)
	s.log.Info("stock restocked",
		zap.String("product_id", rec.ProductID),
		zap.String("branch_id", rec.BranchID),
		zap.Int("quantity", req.Quantity),
		zap.String("performed_by", actor.ID),
	)
	return rec, nil
}

// RestockByID restocks through a stock record id instead of a
// (product, branch) pair. Unset prices keep the record's current ones.
func (s *Service) RestockByID(ctx context.Context, id string, req domain.RestockByIDRequest) (*domain.StockRecord, error) {
	if _, err := s.requireRole(ctx, domain.RoleAdmin); err != nil {
		return nil, err
	}

	existing, err := s.repo.GetStockRecord(ctx, id)
	if err != nil {
		return nil, err
	}

	full := domain.RestockRequest{
		ProductID:    existing.ProductID,
		BranchID:     existing.BranchID,
		Quantity:     req.Quantity,
		CostPrice:    existing.CostPrice,
		SellingPrice: existing.SellingPrice,
		Notes:        req.Notes,
	}
	if req.CostPrice != nil {
		full.CostPrice = *req.CostPrice
	}
	if req.SellingPrice != nil {
		full.SellingPrice = *req.SellingPrice
	}
	return s.Restock(ctx, full)
}

// Adjust applies a signed correction. The quantity can never drop below
// the reserved count, and every adjustment carries a reason.
func (s *Service) Adjust(ctx context.Context, req domain.AdjustRequest) (*domain.StockRecord, error) {
	actor, err := s.requireRole(ctx, domain.RoleAdmin)
	if err != nil {
		return nil, err
	}

	req.ProductID = strings.TrimSpace(req.ProductID)
	req.BranchID = strings.TrimSpace(req.BranchID)
	req.Reason = strings.TrimSpace(req.Reason)
	if req.ProductID == "" || req.BranchID == "" {
		return nil, validationErr("product_id and branch_id are required")
	}
	if req.Delta == 0 {
		return nil, validationErr("delta cannot be zero")
	}
	if len(req.Reason) < 5 || len(req.Reason) > 500 {
		return nil, validationErr("reason must be 5..500 characters")
	}

	rec, err := s.repo.Adjust(ctx, req.ProductID, req.BranchID, req.Delta, req.Reason, actor.ID)
	if err != nil {
		return nil, err
	}

	s.invalidateBranch(ctx, rec.BranchID)
	s.log.Info("stock adjusted",
		zap.String("product_id", rec.ProductID),
		zap.String("branch_id", rec.BranchID),
		zap.Int("delta", req.Delta),
		zap.String("performed_by", actor.ID),
	)
	return rec, nil
}

func (s *Service) AdjustByID(ctx context.Context, id string, req domain.AdjustByIDRequest) (*domain.StockRecord, error) {
	if _, err := s.requireRole(ctx, domain.RoleAdmin); err != nil {
		return nil, err
	}

	existing, err := s.repo.GetStockRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.Adjust(ctx, domain.AdjustRequest{
		ProductID: existing.ProductID,
		BranchID:  existing.BranchID,
		Delta:     req.Delta,
		Reason:    req.Reason,
	})
}

func (s *Service) GetStockRecord(ctx context.Context, id string) (*domain.StockRecord, error) {
	if _, err := s.requireRole(ctx, domain.RoleAdmin, domain.RoleSalesperson, domain.RoleMechanic); err != nil {
		return nil, err
	}
	return s.repo.GetStockRecord(ctx, id)
}

func (s *Service) GetStock(ctx context.Context, productID, branchID string) (*domain.StockRecord, error) {
	if _, err := s.requireRole(ctx, domain.RoleAdmin, domain.RoleSalesperson, domain.RoleMechanic); err != nil {
		return nil, err
	}
	return s.repo.GetStock(ctx, strings.TrimSpace(productID), strings.TrimSpace(branchID))
}

// ListStock serves stock projections. Whole-branch listings (no product
// filter, no paging) go through the branch cache.
func (s *Service) ListStock(ctx context.Context, f store.StockFilter) ([]domain.StockRecord, error) {
	if _, err := s.requireRole(ctx, domain.RoleAdmin, domain.RoleSalesperson, domain.RoleMechanic); err != nil {
		return nil, err
	}

	cacheable := f.BranchID != "" && f.ProductID == "" && f.Offset == 0 && f.Limit == 0
	if cacheable {
		key := cache.BranchStockKey(f.BranchID, f.LowOnly)
		if records, hit, err := s.cache.GetBranchStock(ctx, key); err == nil && hit {
			return records, nil
		} else if err != nil {
			s.log.Warn("stock cache read failed", zap.String("key", key), zap.Error(err))
		}
	}

	records, err := s.repo.ListStock(ctx, f)
	if err != nil {
		return nil, err
	}

	if cacheable {
		key := cache.BranchStockKey(f.BranchID, f.LowOnly)
		if err := s.cache.SetBranchStock(ctx, key, records, s.cacheTTL); err != nil {
			s.log.Warn("stock cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return records, nil
}

// ListReorderSuggestions plans purchases for every stock record in the
// branch that sits at or below its reorder point.
func (s *Service) ListReorderSuggestions(ctx context.Context, branchID string) ([]reorder.Suggestion, error) {
	if _, err := s.requireRole(ctx, domain.RoleAdmin); err != nil {
		return nil, err
	}
	branchID = strings.TrimSpace(branchID)
	if branchID == "" {
		branchID = s.defaultBranchID
	}
	records, err := s.ListStock(ctx, store.StockFilter{BranchID: branchID, LowOnly: true})
	if err != nil {
		return nil, err
	}
	return s.planner.Plan(records), nil
}

func (s *Service) ListMovements(ctx context.Context, f domain.MovementFilter) ([]domain.StockMovement, error) {
	if _, err := s.requireRole(ctx, domain.RoleAdmin, domain.RoleSalesperson, domain.RoleMechanic); err != nil {
		return nil, err
	}
	if f.Type != "" && !validMovementType(f.Type) {
		return nil, validationErr("unknown movement type %q", f.Type)
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return nil, validationErr("movement window ends before it starts")
	}
	return s.repo.ListMovements(ctx, f)
}

func validMovementType(t string) bool {
	switch t {
	case domain.MovementInitial, domain.MovementRestock,
		domain.MovementAdjustmentAdd, domain.MovementAdjustmentRemove,
		domain.MovementSale, domain.MovementSaleCancel, domain.MovementServiceUse,
		domain.MovementTransferOut, domain.MovementTransferIn:
		return true
	}
	return false
}
