package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"bengkelpos/internal/domain"
	"bengkelpos/internal/store"
	"bengkelpos/internal/xid"
)

func restock(t *testing.T, s *Store, productID, branchID string, qty int, sellingPrice int64) *domain.StockRecord {
	t.Helper()
	rec, err := s.Restock(context.Background(), store.RestockParams{
		ProductID:    productID,
		BranchID:     branchID,
		Quantity:     qty,
		CostPrice:    decimal.NewFromInt(sellingPrice / 2),
		SellingPrice: decimal.NewFromInt(sellingPrice),
		PerformedBy:  "tester",
	})
	if err != nil {
		t.Fatalf("Restock(%s, %s, %d): %v", productID, branchID, qty, err)
	}
	return rec
}

func TestRestockCreatesThenTopsUp(t *testing.T) {
	s := New()
	ctx := context.Background()

	first := restock(t, s, "prd-1", "branch-a", 10, 50000)
	if first.Quantity != 10 || first.ReservedQty != 0 {
		t.Fatalf("after first restock got quantity=%d reserved=%d", first.Quantity, first.ReservedQty)
	}

	second := restock(t, s, "prd-1", "branch-a", 5, 50000)
	if second.ID != first.ID {
		t.Fatalf("second restock created a new record: %s != %s", second.ID, first.ID)
	}
	if second.Quantity != 15 {
		t.Fatalf("after top-up got quantity=%d, want 15", second.Quantity)
	}

	moves, err := s.ListMovements(ctx, domain.MovementFilter{ProductID: "prd-1", BranchID: "branch-a"})
	if err != nil {
		t.Fatalf("ListMovements: %v", err)
	}
	if len(moves) != 2 {
		t.Fatalf("got %d movements, want 2", len(moves))
	}
	// Newest first.
	if moves[0].Type != domain.MovementRestock || moves[1].Type != domain.MovementInitial {
		t.Fatalf("got movement types %s, %s", moves[0].Type, moves[1].Type)
	}
	if moves[0].QuantityBefore != 10 || moves[0].QuantityAfter != 15 {
		t.Fatalf("restock movement before/after = %d/%d", moves[0].QuantityBefore, moves[0].QuantityAfter)
	}
}

func TestAdjustRejectsDropBelowReserved(t *testing.T) {
	s := New()
	ctx := context.Background()
	restock(t, s, "prd-1", "branch-a", 10, 50000)
	if _, err := s.Reserve(ctx, "prd-1", "branch-a", 6); err != nil {
		t.Fatalf("Reserve: %v", err)
	}

	if _, err := s.Adjust(ctx, "prd-1", "branch-a", -5, "stocktake correction", "tester"); !errors.Is(err, store.ErrInvalidAdjustment) {
		t.Fatalf("Adjust below reserved floor: got %v, want ErrInvalidAdjustment", err)
	}

	rec, err := s.GetStock(ctx, "prd-1", "branch-a")
	if err != nil {
		t.Fatalf("GetStock: %v", err)
	}
	if rec.Quantity != 10 || rec.ReservedQty != 6 {
		t.Fatalf("failed adjust mutated record: quantity=%d reserved=%d", rec.Quantity, rec.ReservedQty)
	}

	adjusted, err := s.Adjust(ctx, "prd-1", "branch-a", -4, "stocktake correction", "tester")
	if err != nil {
		t.Fatalf("Adjust to reserved floor: %v", err)
	}
	if adjusted.Quantity != 6 || adjusted.Available() != 0 {
		t.Fatalf("after adjust quantity=%d available=%d", adjusted.Quantity, adjusted.Available())
	}
}

func TestReserveGuardsAvailable(t *testing.T) {
	s := New()
	ctx := context.Background()
	restock(t, s, "prd-1", "branch-a", 3, 50000)

	if _, err := s.Reserve(ctx, "prd-1", "branch-a", 2); err != nil {
		t.Fatalf("first Reserve: %v", err)
	}
	if _, err := s.Reserve(ctx, "prd-1", "branch-a", 2); !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("over-reserve: got %v, want ErrInsufficientStock", err)
	}
	if _, err := s.Reserve(ctx, "missing", "branch-a", 1); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("reserve on missing record: got %v, want ErrNotFound", err)
	}

	rec, _ := s.GetStock(ctx, "prd-1", "branch-a")
	if rec.ReservedQty != 2 {
		t.Fatalf("reserved=%d after failed reserve, want 2", rec.ReservedQty)
	}

	released, err := s.Release(ctx, "prd-1", "branch-a", 5)
	if err != nil {
		t.Fatalf("Release: %v", err)
	}
	if released.ReservedQty != 0 {
		t.Fatalf("Release floors at zero, got reserved=%d", released.ReservedQty)
	}
}

func TestConcurrentReservesNeverOversell(t *testing.T) {
	s := New()
	ctx := context.Background()
	restock(t, s, "prd-1", "branch-a", 10, 50000)

	var wg sync.WaitGroup
	wins := make(chan struct{}, 25)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Reserve(ctx, "prd-1", "branch-a", 1); err == nil {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	won := 0
	for range wins {
		won++
	}
	if won != 10 {
		t.Fatalf("%d reserves succeeded against 10 available units", won)
	}
	rec, _ := s.GetStock(ctx, "prd-1", "branch-a")
	if rec.ReservedQty != 10 || rec.Available() != 0 {
		t.Fatalf("reserved=%d available=%d after race", rec.ReservedQty, rec.Available())
	}
}

func TestMovementLedgerReconciles(t *testing.T) {
	s := New()
	ctx := context.Background()

	restock(t, s, "prd-1", "branch-a", 20, 50000)
	restock(t, s, "prd-1", "branch-a", 10, 50000)
	if _, err := s.Adjust(ctx, "prd-1", "branch-a", -3, "damaged in storage", "tester"); err != nil {
		t.Fatalf("Adjust: %v", err)
	}

	rec, _ := s.GetStock(ctx, "prd-1", "branch-a")
	moves, err := s.ListMovements(ctx, domain.MovementFilter{ProductID: "prd-1", BranchID: "branch-a"})
	if err != nil {
		t.Fatalf("ListMovements: %v", err)
	}

	sum := 0
	for _, m := range moves {
		sum += m.QuantityChange
		if m.QuantityBefore+m.QuantityChange != m.QuantityAfter {
			t.Fatalf("movement %s: before %d + change %d != after %d", m.ID, m.QuantityBefore, m.QuantityChange, m.QuantityAfter)
		}
	}
	if sum != rec.Quantity {
		t.Fatalf("movement sum %d != current quantity %d", sum, rec.Quantity)
	}
}

func newPendingSalesOrder(branchID string, items ...domain.SalesOrderItem) domain.SalesOrder {
	subtotal := decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(it.Total)
	}
	return domain.SalesOrder{
		ID:          xid.New("so"),
		OrderNumber: xid.New("SO"),
		BranchID:    branchID,
		Customer:    domain.Customer{Name: "Walk-in"},
		Items:       items,
		Subtotal:    subtotal,
		Total:       subtotal,
		Payment:     domain.Payment{Method: "cash", Status: domain.PaymentStatusPending},
		Status:      domain.SalesStatusPending,
		ProcessedBy: "tester",
	}
}

func TestSalesOrderFulfillmentFlow(t *testing.T) {
	s := New()
	ctx := context.Background()
	restock(t, s, "prd-1", "branch-a", 10, 50000)

	if _, err := s.Reserve(ctx, "prd-1", "branch-a", 4); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	order := newPendingSalesOrder("branch-a", domain.SalesOrderItem{
		ProductID: "prd-1",
		Quantity:  4,
		UnitPrice: decimal.NewFromInt(50000),
		Total:     decimal.NewFromInt(200000),
	})
	if _, err := s.CreateSalesOrder(ctx, order); err != nil {
		t.Fatalf("CreateSalesOrder: %v", err)
	}

	// Completing straight from pending is rejected.
	if _, err := s.CompleteSalesOrder(ctx, order.ID, "tester"); !errors.Is(err, store.ErrInvalidStatusTransition) {
		t.Fatalf("complete from pending: got %v, want ErrInvalidStatusTransition", err)
	}
	if _, err := s.SetSalesOrderProcessing(ctx, order.ID); err != nil {
		t.Fatalf("SetSalesOrderProcessing: %v", err)
	}

	done, err := s.CompleteSalesOrder(ctx, order.ID, "tester")
	if err != nil {
		t.Fatalf("CompleteSalesOrder: %v", err)
	}
	if done.Status != domain.SalesStatusCompleted || done.CompletedAt == nil {
		t.Fatalf("completed order status=%s completedAt=%v", done.Status, done.CompletedAt)
	}

	rec, _ := s.GetStock(ctx, "prd-1", "branch-a")
	if rec.Quantity != 6 || rec.ReservedQty != 0 {
		t.Fatalf("after fulfillment quantity=%d reserved=%d, want 6/0", rec.Quantity, rec.ReservedQty)
	}

	moves, _ := s.ListMovements(ctx, domain.MovementFilter{Type: domain.MovementSale})
	if len(moves) != 1 {
		t.Fatalf("got %d sale movements, want 1", len(moves))
	}
	if moves[0].Reference == nil || moves[0].Reference.Kind != domain.ReferenceSalesOrder || moves[0].Reference.ID != order.ID {
		t.Fatalf("sale movement reference = %+v", moves[0].Reference)
	}
	if moves[0].QuantityChange != -4 {
		t.Fatalf("sale movement change = %d, want -4", moves[0].QuantityChange)
	}
}

func TestCompleteSalesOrderAllOrNothing(t *testing.T) {
	s := New()
	ctx := context.Background()
	restock(t, s, "prd-1", "branch-a", 10, 50000)
	restock(t, s, "prd-2", "branch-a", 10, 30000)

	if _, err := s.Reserve(ctx, "prd-1", "branch-a", 3); err != nil {
		t.Fatalf("Reserve prd-1: %v", err)
	}
	// prd-2 deliberately left unreserved so fulfillment fails on it.
	order := newPendingSalesOrder("branch-a",
		domain.SalesOrderItem{ProductID: "prd-1", Quantity: 3, UnitPrice: decimal.NewFromInt(50000), Total: decimal.NewFromInt(150000)},
		domain.SalesOrderItem{ProductID: "prd-2", Quantity: 3, UnitPrice: decimal.NewFromInt(30000), Total: decimal.NewFromInt(90000)},
	)
	if _, err := s.CreateSalesOrder(ctx, order); err != nil {
		t.Fatalf("CreateSalesOrder: %v", err)
	}
	if _, err := s.SetSalesOrderProcessing(ctx, order.ID); err != nil {
		t.Fatalf("SetSalesOrderProcessing: %v", err)
	}

	if _, err := s.CompleteSalesOrder(ctx, order.ID, "tester"); !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("partial completion: got %v, want ErrInsufficientStock", err)
	}

	rec1, _ := s.GetStock(ctx, "prd-1", "branch-a")
	if rec1.Quantity != 10 || rec1.ReservedQty != 3 {
		t.Fatalf("prd-1 touched by failed completion: quantity=%d reserved=%d", rec1.Quantity, rec1.ReservedQty)
	}
	if moves, _ := s.ListMovements(ctx, domain.MovementFilter{Type: domain.MovementSale}); len(moves) != 0 {
		t.Fatalf("failed completion wrote %d sale movements", len(moves))
	}
	got, _ := s.GetSalesOrder(ctx, order.ID)
	if got.Status != domain.SalesStatusProcessing {
		t.Fatalf("failed completion flipped status to %s", got.Status)
	}
}

func TestCancelSalesOrderReleasesReservations(t *testing.T) {
	s := New()
	ctx := context.Background()
	restock(t, s, "prd-1", "branch-a", 10, 50000)
	if _, err := s.Reserve(ctx, "prd-1", "branch-a", 4); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	order := newPendingSalesOrder("branch-a", domain.SalesOrderItem{
		ProductID: "prd-1", Quantity: 4, UnitPrice: decimal.NewFromInt(50000), Total: decimal.NewFromInt(200000),
	})
	if _, err := s.CreateSalesOrder(ctx, order); err != nil {
		t.Fatalf("CreateSalesOrder: %v", err)
	}

	cancelled, err := s.CancelSalesOrder(ctx, order.ID, "tester")
	if err != nil {
		t.Fatalf("CancelSalesOrder: %v", err)
	}
	if cancelled.Status != domain.SalesStatusCancelled {
		t.Fatalf("status=%s after cancel", cancelled.Status)
	}

	rec, _ := s.GetStock(ctx, "prd-1", "branch-a")
	if rec.Quantity != 10 || rec.ReservedQty != 0 {
		t.Fatalf("after cancel quantity=%d reserved=%d, want 10/0", rec.Quantity, rec.ReservedQty)
	}

	moves, _ := s.ListMovements(ctx, domain.MovementFilter{Type: domain.MovementSaleCancel})
	if len(moves) != 1 || moves[0].QuantityChange != 0 {
		t.Fatalf("cancel movement: %+v", moves)
	}

	if _, err := s.CancelSalesOrder(ctx, order.ID, "tester"); !errors.Is(err, store.ErrInvalidStatusTransition) {
		t.Fatalf("double cancel: got %v, want ErrInvalidStatusTransition", err)
	}
}

func TestTransferLifecycle(t *testing.T) {
	s := New()
	ctx := context.Background()
	src := restock(t, s, "prd-1", "branch-a", 5, 50000)

	tr, err := s.CreateTransfer(ctx, domain.StockTransfer{
		ProductID:    "prd-1",
		FromBranchID: "branch-a",
		ToBranchID:   "branch-b",
		Quantity:     4,
		CreatedBy:    "tester",
	})
	if err != nil {
		t.Fatalf("CreateTransfer: %v", err)
	}
	if tr.Status != domain.TransferStatusPending {
		t.Fatalf("new transfer status=%s", tr.Status)
	}
	rec, _ := s.GetStock(ctx, "prd-1", "branch-a")
	if rec.ReservedQty != 4 {
		t.Fatalf("transfer did not reserve at source: reserved=%d", rec.ReservedQty)
	}

	if _, err := s.CompleteTransfer(ctx, tr.ID, "tester"); !errors.Is(err, store.ErrInvalidStatusTransition) {
		t.Fatalf("complete before in-transit: got %v, want ErrInvalidStatusTransition", err)
	}
	if _, err := s.MarkTransferInTransit(ctx, tr.ID); err != nil {
		t.Fatalf("MarkTransferInTransit: %v", err)
	}
	done, err := s.CompleteTransfer(ctx, tr.ID, "tester")
	if err != nil {
		t.Fatalf("CompleteTransfer: %v", err)
	}
	if done.Status != domain.TransferStatusCompleted || done.CompletedAt == nil {
		t.Fatalf("completed transfer status=%s completedAt=%v", done.Status, done.CompletedAt)
	}

	srcAfter, _ := s.GetStock(ctx, "prd-1", "branch-a")
	if srcAfter.Quantity != 1 || srcAfter.ReservedQty != 0 {
		t.Fatalf("source after transfer: quantity=%d reserved=%d, want 1/0", srcAfter.Quantity, srcAfter.ReservedQty)
	}
	dst, err := s.GetStock(ctx, "prd-1", "branch-b")
	if err != nil {
		t.Fatalf("destination record not created: %v", err)
	}
	if dst.Quantity != 4 {
		t.Fatalf("destination quantity=%d, want 4", dst.Quantity)
	}
	if !dst.SellingPrice.Equal(src.SellingPrice) {
		t.Fatalf("destination selling price %s, want inherited %s", dst.SellingPrice, src.SellingPrice)
	}

	outs, _ := s.ListMovements(ctx, domain.MovementFilter{Type: domain.MovementTransferOut})
	ins, _ := s.ListMovements(ctx, domain.MovementFilter{Type: domain.MovementTransferIn})
	if len(outs) != 1 || len(ins) != 1 {
		t.Fatalf("got %d transfer_out and %d transfer_in movements", len(outs), len(ins))
	}
	if outs[0].Reference == nil || outs[0].Reference.ID != tr.ID {
		t.Fatalf("transfer_out reference = %+v", outs[0].Reference)
	}
}

func TestCancelTransferReleasesWithoutMovements(t *testing.T) {
	s := New()
	ctx := context.Background()
	restock(t, s, "prd-1", "branch-a", 5, 50000)

	tr, err := s.CreateTransfer(ctx, domain.StockTransfer{
		ProductID: "prd-1", FromBranchID: "branch-a", ToBranchID: "branch-b", Quantity: 2, CreatedBy: "tester",
	})
	if err != nil {
		t.Fatalf("CreateTransfer: %v", err)
	}
	if _, err := s.CancelTransfer(ctx, tr.ID); err != nil {
		t.Fatalf("CancelTransfer: %v", err)
	}

	rec, _ := s.GetStock(ctx, "prd-1", "branch-a")
	if rec.Quantity != 5 || rec.ReservedQty != 0 {
		t.Fatalf("after cancel quantity=%d reserved=%d", rec.Quantity, rec.ReservedQty)
	}
	moves, _ := s.ListMovements(ctx, domain.MovementFilter{ProductID: "prd-1"})
	for _, m := range moves {
		if m.Type == domain.MovementTransferOut || m.Type == domain.MovementTransferIn {
			t.Fatalf("cancelled transfer wrote movement %s", m.Type)
		}
	}
}

func TestServiceOrderCompletionConsumesParts(t *testing.T) {
	s := New()
	ctx := context.Background()
	restock(t, s, "prd-filter", "branch-a", 8, 55000)

	order := domain.ServiceOrder{
		ID:        xid.New("svc"),
		JobNumber: xid.New("JOB"),
		BranchID:  "branch-a",
		Customer:  domain.Customer{Name: "Budi"},
		Vehicle:   domain.Vehicle{Make: "Toyota", Model: "Avanza", Plate: "B 1234 XYZ"},
		PartsUsed: []domain.ServicePart{{
			ProductID: "prd-filter",
			Quantity:  2,
			UnitPrice: decimal.NewFromInt(55000),
			Total:     decimal.NewFromInt(110000),
		}},
		TotalParts:   decimal.NewFromInt(110000),
		LaborCost:    decimal.NewFromInt(150000),
		OtherCharges: decimal.NewFromInt(10000),
		TotalAmount:  decimal.NewFromInt(270000),
		Payment:      domain.Payment{Method: "cash", AmountPaid: decimal.NewFromInt(300000), Status: domain.PaymentStatusPending},
		Status:       domain.ServiceStatusPending,
		Priority:     domain.PriorityNormal,
		CreatedBy:    "tester",
	}
	if _, err := s.CreateServiceOrder(ctx, order); err != nil {
		t.Fatalf("CreateServiceOrder: %v", err)
	}

	if _, err := s.UpdateServiceOrderStatus(ctx, order.ID, domain.ServiceStatusPending, domain.ServiceStatusCompleted); !errors.Is(err, store.ErrInvalidStatusTransition) {
		t.Fatalf("status update to completed: got %v, want ErrInvalidStatusTransition", err)
	}
	if _, err := s.UpdateServiceOrderStatus(ctx, order.ID, domain.ServiceStatusPending, domain.ServiceStatusInProgress); !errors.Is(err, store.ErrInvalidStatusTransition) {
		t.Fatalf("pending straight to in-progress: got %v, want ErrInvalidStatusTransition", err)
	}
	scheduled, err := s.UpdateServiceOrderStatus(ctx, order.ID, domain.ServiceStatusPending, domain.ServiceStatusScheduled)
	if err != nil {
		t.Fatalf("UpdateServiceOrderStatus: %v", err)
	}
	if scheduled.ScheduledAt == nil {
		t.Fatal("ScheduledAt not set on scheduled transition")
	}
	started, err := s.UpdateServiceOrderStatus(ctx, order.ID, domain.ServiceStatusScheduled, domain.ServiceStatusInProgress)
	if err != nil {
		t.Fatalf("UpdateServiceOrderStatus: %v", err)
	}
	if started.StartedAt == nil {
		t.Fatal("StartedAt not set on in-progress transition")
	}

	done, err := s.CompleteServiceOrder(ctx, order.ID, "tester")
	if err != nil {
		t.Fatalf("CompleteServiceOrder: %v", err)
	}
	if done.Status != domain.ServiceStatusCompleted || done.CompletedAt == nil {
		t.Fatalf("completed service status=%s completedAt=%v", done.Status, done.CompletedAt)
	}
	if !done.TotalAmount.Equal(decimal.NewFromInt(270000)) {
		t.Fatalf("total amount %s, want 270000", done.TotalAmount)
	}
	if done.Payment.Status != domain.PaymentStatusPaid || !done.Payment.Change.Equal(decimal.NewFromInt(30000)) {
		t.Fatalf("payment status=%s change=%s", done.Payment.Status, done.Payment.Change)
	}
	if done.Payment.PaidAt == nil {
		t.Fatal("PaidAt not set when payment became paid")
	}

	rec, _ := s.GetStock(ctx, "prd-filter", "branch-a")
	if rec.Quantity != 6 || rec.ReservedQty != 0 {
		t.Fatalf("after part consumption quantity=%d reserved=%d, want 6/0", rec.Quantity, rec.ReservedQty)
	}
	moves, _ := s.ListMovements(ctx, domain.MovementFilter{Type: domain.MovementServiceUse})
	if len(moves) != 1 || moves[0].QuantityChange != -2 {
		t.Fatalf("service_use movements: %+v", moves)
	}
	if moves[0].Reference == nil || moves[0].Reference.Kind != domain.ReferenceServiceOrder {
		t.Fatalf("service_use reference = %+v", moves[0].Reference)
	}
}

func TestUpdateServicePartsRecomputesTotalsAndGuardsTerminal(t *testing.T) {
	s := New()
	ctx := context.Background()
	restock(t, s, "prd-filter", "branch-a", 8, 55000)

	order := domain.ServiceOrder{
		ID:        xid.New("svc"),
		JobNumber: xid.New("JOB"),
		BranchID:  "branch-a",
		Customer:  domain.Customer{Name: "Sari"},
		LaborCost: decimal.NewFromInt(100000),
		Status:    domain.ServiceStatusPending,
		Priority:  domain.PriorityHigh,
		CreatedBy: "tester",
	}
	if _, err := s.CreateServiceOrder(ctx, order); err != nil {
		t.Fatalf("CreateServiceOrder: %v", err)
	}

	updated, err := s.UpdateServiceParts(ctx, order.ID, []domain.ServicePart{{
		ProductID: "prd-filter",
		Quantity:  1,
		UnitPrice: decimal.NewFromInt(55000),
		Total:     decimal.NewFromInt(55000),
	}})
	if err != nil {
		t.Fatalf("UpdateServiceParts: %v", err)
	}
	if !updated.TotalParts.Equal(decimal.NewFromInt(55000)) {
		t.Fatalf("total parts %s, want 55000", updated.TotalParts)
	}
	if !updated.TotalAmount.Equal(decimal.NewFromInt(155000)) {
		t.Fatalf("total amount %s, want 155000", updated.TotalAmount)
	}

	if _, err := s.UpdateServiceOrderStatus(ctx, order.ID, domain.ServiceStatusPending, domain.ServiceStatusScheduled); err != nil {
		t.Fatalf("UpdateServiceOrderStatus: %v", err)
	}
	if _, err := s.UpdateServiceOrderStatus(ctx, order.ID, domain.ServiceStatusScheduled, domain.ServiceStatusInProgress); err != nil {
		t.Fatalf("UpdateServiceOrderStatus: %v", err)
	}
	if _, err := s.CompleteServiceOrder(ctx, order.ID, "tester"); err != nil {
		t.Fatalf("CompleteServiceOrder: %v", err)
	}
	if _, err := s.UpdateServiceParts(ctx, order.ID, nil); !errors.Is(err, store.ErrInvalidStatusTransition) {
		t.Fatalf("parts update on completed order: got %v, want ErrInvalidStatusTransition", err)
	}
}

func TestServiceCompletionInsufficientPartsLeavesOrderOpen(t *testing.T) {
	s := New()
	ctx := context.Background()
	restock(t, s, "prd-filter", "branch-a", 1, 55000)

	order := domain.ServiceOrder{
		ID:        xid.New("svc"),
		JobNumber: xid.New("JOB"),
		BranchID:  "branch-a",
		Customer:  domain.Customer{Name: "Andi"},
		PartsUsed: []domain.ServicePart{{
			ProductID: "prd-filter",
			Quantity:  3,
			UnitPrice: decimal.NewFromInt(55000),
			Total:     decimal.NewFromInt(165000),
		}},
		Status:    domain.ServiceStatusInProgress,
		Priority:  domain.PriorityNormal,
		CreatedBy: "tester",
	}
	if _, err := s.CreateServiceOrder(ctx, order); err != nil {
		t.Fatalf("CreateServiceOrder: %v", err)
	}

	if _, err := s.CompleteServiceOrder(ctx, order.ID, "tester"); !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("completion with short stock: got %v, want ErrInsufficientStock", err)
	}
	got, _ := s.GetServiceOrder(ctx, order.ID)
	if got.Status != domain.ServiceStatusInProgress {
		t.Fatalf("failed completion flipped status to %s", got.Status)
	}
	rec, _ := s.GetStock(ctx, "prd-filter", "branch-a")
	if rec.Quantity != 1 {
		t.Fatalf("failed completion consumed stock: quantity=%d", rec.Quantity)
	}
}

func TestSeededStoreHasStockAndUsers(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	records, err := s.ListStock(ctx, store.StockFilter{})
	if err != nil {
		t.Fatalf("ListStock: %v", err)
	}
	if len(records) == 0 {
		t.Fatal("seeded store has no stock records")
	}
	for _, rec := range records {
		moves, err := s.ListMovements(ctx, domain.MovementFilter{StockRecordID: rec.ID})
		if err != nil {
			t.Fatalf("ListMovements: %v", err)
		}
		if len(moves) != 1 || moves[0].Type != domain.MovementInitial {
			t.Fatalf("record %s: seed movements = %+v", rec.ID, moves)
		}
	}

	// Every seeded stock record has a catalog entry behind it.
	for _, rec := range records {
		prod, err := s.GetProduct(ctx, rec.ProductID)
		if err != nil {
			t.Fatalf("GetProduct %s: %v", rec.ProductID, err)
		}
		if prod.SKU == "" || prod.Name == "" {
			t.Fatalf("catalog entry %s missing sku/name: %+v", rec.ProductID, prod)
		}
	}
	if _, err := s.GetProduct(ctx, "prd-ghost"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("unknown product: got %v, want ErrNotFound", err)
	}

	admin, err := s.GetUserByUsername(ctx, "admin")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if admin.Role != domain.RoleAdmin || !admin.Active {
		t.Fatalf("seed admin: role=%s active=%v", admin.Role, admin.Active)
	}
}
