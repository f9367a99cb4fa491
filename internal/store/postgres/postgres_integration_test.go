package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"bengkelpos/internal/domain"
	"bengkelpos/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	databaseURL := os.Getenv("BENGKELPOS_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set BENGKELPOS_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func cleanupStock(t *testing.T, s *Store, productID string) {
	t.Helper()
	ctx := context.Background()
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM stock_movements WHERE product_id = $1`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM stock_transfers WHERE product_id = $1`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM stock_records WHERE product_id = $1`, productID)
	})
}

func TestTransferLifecycleMovesStockBetweenBranches(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	stamp := time.Now().UnixNano()
	productID := fmt.Sprintf("prd-it-%d", stamp)
	fromBranch := fmt.Sprintf("br-src-%d", stamp)
	toBranch := fmt.Sprintf("br-dst-%d", stamp)
	cleanupStock(t, s, productID)

	_, err := s.Restock(ctx, store.RestockParams{
		ProductID:    productID,
		BranchID:     fromBranch,
		Quantity:     5,
		CostPrice:    decimal.NewFromInt(70000),
		SellingPrice: decimal.NewFromInt(95000),
		PerformedBy:  "usr-it",
	})
	if err != nil {
		t.Fatalf("restock: %v", err)
	}

	transfer, err := s.CreateTransfer(ctx, domain.StockTransfer{
		ProductID:    productID,
		FromBranchID: fromBranch,
		ToBranchID:   toBranch,
		Quantity:     4,
		CreatedBy:    "usr-it",
	})
	if err != nil {
		t.Fatalf("create transfer: %v", err)
	}

	source, err := s.GetStock(ctx, productID, fromBranch)
	if err != nil {
		t.Fatalf("get source stock: %v", err)
	}
	if source.ReservedQty != 4 || source.Quantity != 5 {
		t.Fatalf("after create: quantity=%d reserved=%d", source.Quantity, source.ReservedQty)
	}

	if _, err := s.MarkTransferInTransit(ctx, transfer.ID); err != nil {
		t.Fatalf("mark in-transit: %v", err)
	}
	completed, err := s.CompleteTransfer(ctx, transfer.ID, "usr-it")
	if err != nil {
		t.Fatalf("complete transfer: %v", err)
	}
	if completed.Status != domain.TransferStatusCompleted || completed.CompletedAt == nil {
		t.Fatalf("unexpected transfer after completion: %+v", completed)
	}

	source, err = s.GetStock(ctx, productID, fromBranch)
	if err != nil {
		t.Fatalf("get source stock: %v", err)
	}
	if source.Quantity != 1 || source.ReservedQty != 0 {
		t.Fatalf("source after completion: quantity=%d reserved=%d", source.Quantity, source.ReservedQty)
	}

	dest, err := s.GetStock(ctx, productID, toBranch)
	if err != nil {
		t.Fatalf("get destination stock: %v", err)
	}
	if dest.Quantity != 4 {
		t.Fatalf("destination quantity = %d, want 4", dest.Quantity)
	}
	if !dest.SellingPrice.Equal(source.SellingPrice) {
		t.Fatalf("destination selling price %s, want %s", dest.SellingPrice, source.SellingPrice)
	}

	movements, err := s.ListMovements(ctx, domain.MovementFilter{ProductID: productID})
	if err != nil {
		t.Fatalf("list movements: %v", err)
	}
	var outs, ins int
	for _, m := range movements {
		switch m.Type {
		case domain.MovementTransferOut:
			outs++
			if m.Reference == nil || m.Reference.ID != transfer.ID {
				t.Fatalf("transfer_out missing reference: %+v", m)
			}
		case domain.MovementTransferIn:
			ins++
		}
	}
	if outs != 1 || ins != 1 {
		t.Fatalf("expected one transfer_out and one transfer_in, got %d/%d", outs, ins)
	}
}

func TestReserveGuardsAvailableBoundary(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	stamp := time.Now().UnixNano()
	productID := fmt.Sprintf("prd-it-res-%d", stamp)
	branchID := fmt.Sprintf("br-it-res-%d", stamp)
	cleanupStock(t, s, productID)

	_, err := s.Restock(ctx, store.RestockParams{
		ProductID:    productID,
		BranchID:     branchID,
		Quantity:     3,
		CostPrice:    decimal.NewFromInt(10000),
		SellingPrice: decimal.NewFromInt(15000),
		PerformedBy:  "usr-it",
	})
	if err != nil {
		t.Fatalf("restock: %v", err)
	}

	if _, err := s.Reserve(ctx, productID, branchID, 2); err != nil {
		t.Fatalf("first reserve: %v", err)
	}
	if _, err := s.Reserve(ctx, productID, branchID, 2); err != store.ErrInsufficientStock {
		t.Fatalf("second reserve: got %v, want ErrInsufficientStock", err)
	}

	rec, err := s.GetStock(ctx, productID, branchID)
	if err != nil {
		t.Fatalf("get stock: %v", err)
	}
	if rec.ReservedQty != 2 {
		t.Fatalf("reserved = %d, want 2", rec.ReservedQty)
	}
}
