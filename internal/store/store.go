package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"bengkelpos/internal/domain"
)

var (
	ErrValidation              = errors.New("invalid input")
	ErrNotFound                = errors.New("not found")
	ErrInsufficientStock       = errors.New("insufficient stock")
	ErrInvalidAdjustment       = errors.New("invalid adjustment")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrForbidden               = errors.New("forbidden")
	ErrConflict                = errors.New("conflict")
	ErrDuplicate               = errors.New("duplicate")
)

// RestockParams describes a restock (or first stock-in) of one product
// at one branch.
type RestockParams struct {
	ProductID    string
	BranchID     string
	Quantity     int
	CostPrice    decimal.Decimal
	SellingPrice decimal.Decimal
	ReorderPoint *int
	ReorderQty   *int
	SupplierID   string
	Location     string
	Notes        string
	PerformedBy  string
}

type StockFilter struct {
	BranchID  string
	ProductID string
	LowOnly   bool
	Limit     int
	Offset    int
}

type TransferFilter struct {
	ProductID string
	BranchID  string
	Status    string
	Limit     int
	Offset    int
}

type SalesFilter struct {
	BranchID string
	Status   string
	Limit    int
	Offset   int
}

type ServiceFilter struct {
	BranchID   string
	Status     string
	AssignedTo string
	Limit      int
	Offset     int
}

// Repository is the storage contract for the ledger and the order
// engines. Stock-affecting operations are atomic: the stock record
// mutation, its movement rows and any status flip commit together or
// not at all. Counter updates are conditional writes, so concurrent
// callers cannot both pass the available-stock boundary.
type Repository interface {
	// Stock ledger.
	Restock(ctx context.Context, p RestockParams) (*domain.StockRecord, error)
	Adjust(ctx context.Context, productID, branchID string, delta int, reason, performedBy string) (*domain.StockRecord, error)
	Reserve(ctx context.Context, productID, branchID string, qty int) (*domain.StockRecord, error)
	Release(ctx context.Context, productID, branchID string, qty int) (*domain.StockRecord, error)
	GetStockRecord(ctx context.Context, id string) (*domain.StockRecord, error)
	GetStock(ctx context.Context, productID, branchID string) (*domain.StockRecord, error)
	ListStock(ctx context.Context, f StockFilter) ([]domain.StockRecord, error)
	ListMovements(ctx context.Context, f domain.MovementFilter) ([]domain.StockMovement, error)

	// Transfers. CreateTransfer reserves at the source branch in the
	// same atomic unit as the transfer row insert.
	CreateTransfer(ctx context.Context, t domain.StockTransfer) (*domain.StockTransfer, error)
	GetTransfer(ctx context.Context, id string) (*domain.StockTransfer, error)
	ListTransfers(ctx context.Context, f TransferFilter) ([]domain.StockTransfer, error)
	MarkTransferInTransit(ctx context.Context, id string) (*domain.StockTransfer, error)
	CompleteTransfer(ctx context.Context, id, performedBy string) (*domain.StockTransfer, error)
	CancelTransfer(ctx context.Context, id string) (*domain.StockTransfer, error)

	// Sales orders. Reservations for a new order are taken by the
	// caller through Reserve and compensated with Release; the order
	// document itself is persisted here.
	CreateSalesOrder(ctx context.Context, o domain.SalesOrder) (*domain.SalesOrder, error)
	GetSalesOrder(ctx context.Context, id string) (*domain.SalesOrder, error)
	ListSalesOrders(ctx context.Context, f SalesFilter) ([]domain.SalesOrder, error)
	SetSalesOrderProcessing(ctx context.Context, id string) (*domain.SalesOrder, error)
	CompleteSalesOrder(ctx context.Context, id, performedBy string) (*domain.SalesOrder, error)
	CancelSalesOrder(ctx context.Context, id, performedBy string) (*domain.SalesOrder, error)
	UpdateSalesPayment(ctx context.Context, id string, p domain.Payment) (*domain.SalesOrder, error)

	// Service orders.
	CreateServiceOrder(ctx context.Context, o domain.ServiceOrder) (*domain.ServiceOrder, error)
	GetServiceOrder(ctx context.Context, id string) (*domain.ServiceOrder, error)
	ListServiceOrders(ctx context.Context, f ServiceFilter) ([]domain.ServiceOrder, error)
	UpdateServiceOrderStatus(ctx context.Context, id, from, to string) (*domain.ServiceOrder, error)
	CompleteServiceOrder(ctx context.Context, id, performedBy string) (*domain.ServiceOrder, error)
	UpdateServiceParts(ctx context.Context, id string, parts []domain.ServicePart) (*domain.ServiceOrder, error)
	AssignServiceOrder(ctx context.Context, id, mechanic string) (*domain.ServiceOrder, error)
	UpdateServiceDetails(ctx context.Context, id string, req domain.ServiceUpdateRequest) (*domain.ServiceOrder, error)
	UpdateServicePayment(ctx context.Context, id string, p domain.Payment) (*domain.ServiceOrder, error)

	// Catalog collaborator.
	GetProduct(ctx context.Context, id string) (*domain.Product, error)

	// Auth collaborators.
	CreateUser(ctx context.Context, u domain.UserAccount) error
	GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error)
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
}
