package reorder

import (
	"testing"

	"github.com/shopspring/decimal"

	"bengkelpos/internal/domain"
)

func TestPlanOrdersMostUrgentFirst(t *testing.T) {
	planner := NewPlanner()

	suggestions := planner.Plan([]domain.StockRecord{
		{
			ID: "stk-low", ProductID: "prd-brake-pad", BranchID: "branch-main",
			Quantity: 4, ReservedQty: 0, ReorderPoint: 10, ReorderQty: 20,
			CostPrice: decimal.NewFromInt(120000),
		},
		{
			ID: "stk-out", ProductID: "prd-spark-plug", BranchID: "branch-main",
			Quantity: 0, ReservedQty: 0, ReorderPoint: 8, ReorderQty: 0,
			CostPrice: decimal.NewFromInt(25000),
		},
		{
			ID: "stk-healthy", ProductID: "prd-engine-oil", BranchID: "branch-main",
			Quantity: 60, ReservedQty: 2, ReorderPoint: 15, ReorderQty: 30,
		},
		{
			ID: "stk-untracked", ProductID: "prd-misc", BranchID: "branch-main",
			Quantity: 0, ReorderPoint: 0,
		},
	})

	if len(suggestions) != 2 {
		t.Fatalf("expected 2 suggestions, got %d", len(suggestions))
	}
	if suggestions[0].ProductID != "prd-spark-plug" {
		t.Fatalf("out-of-stock record should rank first, got %s", suggestions[0].ProductID)
	}
	if suggestions[0].ReasonCode != "out_of_stock" && suggestions[0].ReasonCode != "below_reorder_point" {
		t.Fatalf("unexpected reason %s", suggestions[0].ReasonCode)
	}
	// No reorder quantity configured: fall back to twice the reorder point.
	if suggestions[0].SuggestedQty != 16 {
		t.Fatalf("suggested qty = %d, want 16", suggestions[0].SuggestedQty)
	}
	if suggestions[1].StockRecordID != "stk-low" || suggestions[1].SuggestedQty != 20 {
		t.Fatalf("second suggestion = %+v", suggestions[1])
	}
	want := decimal.NewFromInt(2400000)
	if !suggestions[1].EstimatedCost.Equal(want) {
		t.Fatalf("estimated cost = %s, want %s", suggestions[1].EstimatedCost, want)
	}
}

func TestPlanReservedStockRaisesUrgency(t *testing.T) {
	planner := NewPlanner()

	suggestions := planner.Plan([]domain.StockRecord{
		{
			ID: "stk-reserved", ProductID: "prd-a", BranchID: "branch-main",
			Quantity: 10, ReservedQty: 8, ReorderPoint: 5, ReorderQty: 10,
		},
		{
			ID: "stk-free", ProductID: "prd-b", BranchID: "branch-main",
			Quantity: 2, ReservedQty: 0, ReorderPoint: 5, ReorderQty: 10,
		},
	})

	if len(suggestions) != 2 {
		t.Fatalf("expected 2 suggestions, got %d", len(suggestions))
	}
	for _, s := range suggestions {
		if s.Urgency <= 0 || s.Urgency > 1 {
			t.Fatalf("urgency %f out of range for %s", s.Urgency, s.ProductID)
		}
	}
}
