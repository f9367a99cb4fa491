package cache

import (
	"context"
	"time"

	"bengkelpos/internal/domain"
)

// StockCache holds per-branch read projections of the stock ledger: the
// full branch listing and the low-stock subset. Every ledger write for a
// branch must invalidate that branch's entries.
type StockCache interface {
	GetBranchStock(ctx context.Context, key string) ([]domain.StockRecord, bool, error)
	SetBranchStock(ctx context.Context, key string, records []domain.StockRecord, ttl time.Duration) error
	InvalidateBranch(ctx context.Context, branchID string) error
}

type NoopStockCache struct{}

func (NoopStockCache) GetBranchStock(_ context.Context, _ string) ([]domain.StockRecord, bool, error) {
	return nil, false, nil
}

func (NoopStockCache) SetBranchStock(_ context.Context, _ string, _ []domain.StockRecord, _ time.Duration) error {
	return nil
}

func (NoopStockCache) InvalidateBranch(_ context.Context, _ string) error {
	return nil
}

// BranchStockKey builds the cache key for one branch projection. lowOnly
// selects the low-stock subset.
func BranchStockKey(branchID string, lowOnly bool) string {
	if lowOnly {
		return "stock:low:" + branchID
	}
	return "stock:all:" + branchID
}
