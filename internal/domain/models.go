package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// StockRecord tracks on-hand and reserved units for one product at one
// branch. There is at most one record per (product, branch) pair.
type StockRecord struct {
	ID           string          `json:"id"`
	ProductID    string          `json:"product_id"`
	BranchID     string          `json:"branch_id"`
	Quantity     int             `json:"quantity"`
	ReservedQty  int             `json:"reserved_quantity"`
	CostPrice    decimal.Decimal `json:"cost_price"`
	SellingPrice decimal.Decimal `json:"selling_price"`
	ReorderPoint int             `json:"reorder_point"`
	ReorderQty   int             `json:"reorder_quantity"`
	SupplierID   string          `json:"supplier_id,omitempty"`
	Location     string          `json:"location,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Available is the number of units a new order may still claim.
func (r StockRecord) Available() int {
	return r.Quantity - r.ReservedQty
}

// BelowReorderPoint reports whether available stock has fallen to or
// under the record's reorder threshold.
func (r StockRecord) BelowReorderPoint() bool {
	return r.Available() <= r.ReorderPoint
}

const (
	MovementInitial          = "initial"
	MovementRestock          = "restock"
	MovementAdjustmentAdd    = "adjustment_add"
	MovementAdjustmentRemove = "adjustment_remove"
	MovementSale             = "sale"
	MovementSaleCancel       = "sale_cancel"
	MovementServiceUse       = "service_use"
	MovementTransferOut      = "transfer_out"
	MovementTransferIn       = "transfer_in"
)

const (
	ReferenceSalesOrder   = "sales_order"
	ReferenceServiceOrder = "service_order"
	ReferenceTransfer     = "transfer"
)

// MovementReference points at the order or transfer that caused a
// movement. Kind is one of the Reference* constants.
type MovementReference struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

// StockMovement is one immutable row of the audit ledger.
type StockMovement struct {
	ID             string             `json:"id"`
	StockRecordID  string             `json:"stock_record_id"`
	ProductID      string             `json:"product_id"`
	BranchID       string             `json:"branch_id"`
	Type           string             `json:"type"`
	QuantityChange int                `json:"quantity_change"`
	QuantityBefore int                `json:"quantity_before"`
	QuantityAfter  int                `json:"quantity_after"`
	Reference      *MovementReference `json:"reference,omitempty"`
	PerformedBy    string             `json:"performed_by"`
	Notes          string             `json:"notes,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
}

const (
	TransferStatusPending   = "pending"
	TransferStatusInTransit = "in-transit"
	TransferStatusCompleted = "completed"
	TransferStatusCancelled = "cancelled"
)

type StockTransfer struct {
	ID           string     `json:"id"`
	ProductID    string     `json:"product_id"`
	FromBranchID string     `json:"from_branch_id"`
	ToBranchID   string     `json:"to_branch_id"`
	Quantity     int        `json:"quantity"`
	Status       string     `json:"status"`
	Notes        string     `json:"notes,omitempty"`
	CreatedBy    string     `json:"created_by"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

type Customer struct {
	Name    string `json:"name"`
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
	Address string `json:"address,omitempty"`
}

const (
	PaymentStatusPending = "pending"
	PaymentStatusPartial = "partial"
	PaymentStatusPaid    = "paid"
)

type Payment struct {
	Method     string          `json:"method"`
	AmountPaid decimal.Decimal `json:"amount_paid"`
	Status     string          `json:"status"`
	Change     decimal.Decimal `json:"change"`
	PaidAt     *time.Time      `json:"paid_at,omitempty"`
}

type Tax struct {
	Rate   decimal.Decimal `json:"rate"`
	Amount decimal.Decimal `json:"amount"`
}

const (
	SalesStatusPending    = "pending"
	SalesStatusProcessing = "processing"
	SalesStatusCompleted  = "completed"
	SalesStatusCancelled  = "cancelled"
)

// SalesOrderItem is a point-in-time snapshot; UnitPrice is captured from
// the stock record at order creation and never supplied by the client.
type SalesOrderItem struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Discount  decimal.Decimal `json:"discount"`
	Total     decimal.Decimal `json:"total"`
}

type SalesOrder struct {
	ID          string           `json:"id"`
	OrderNumber string           `json:"order_number"`
	BranchID    string           `json:"branch_id"`
	Customer    Customer         `json:"customer"`
	Items       []SalesOrderItem `json:"items"`
	Subtotal    decimal.Decimal  `json:"subtotal"`
	Tax         Tax              `json:"tax"`
	Discount    decimal.Decimal  `json:"discount"`
	Total       decimal.Decimal  `json:"total"`
	Payment     Payment          `json:"payment"`
	Status      string           `json:"status"`
	ProcessedBy string           `json:"processed_by"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

const (
	ServiceStatusPending    = "pending"
	ServiceStatusScheduled  = "scheduled"
	ServiceStatusInProgress = "in-progress"
	ServiceStatusCompleted  = "completed"
	ServiceStatusCancelled  = "cancelled"
)

const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

type Vehicle struct {
	Make    string `json:"make,omitempty"`
	Model   string `json:"model,omitempty"`
	Year    int    `json:"year,omitempty"`
	Plate   string `json:"plate,omitempty"`
	VIN     string `json:"vin,omitempty"`
	Mileage int    `json:"mileage,omitempty"`
}

// ServicePart is a point-in-time copy of a consumed part, independent of
// later product catalog edits.
type ServicePart struct {
	ProductID string          `json:"product_id"`
	SKU       string          `json:"sku,omitempty"`
	Name      string          `json:"name,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Total     decimal.Decimal `json:"total"`
}

type ServiceOrder struct {
	ID           string          `json:"id"`
	JobNumber    string          `json:"job_number"`
	BranchID     string          `json:"branch_id"`
	Customer     Customer        `json:"customer"`
	Vehicle      Vehicle         `json:"vehicle"`
	Description  string          `json:"description"`
	Diagnosis    string          `json:"diagnosis,omitempty"`
	AssignedTo   string          `json:"assigned_to,omitempty"`
	PartsUsed    []ServicePart   `json:"parts_used"`
	TotalParts   decimal.Decimal `json:"total_parts"`
	LaborCost    decimal.Decimal `json:"labor_cost"`
	OtherCharges decimal.Decimal `json:"other_charges"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	Payment      Payment         `json:"payment"`
	Status       string          `json:"status"`
	Priority     string          `json:"priority"`
	ScheduledAt  *time.Time      `json:"scheduled_at,omitempty"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	CreatedBy    string          `json:"created_by"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

const (
	RoleAdmin       = "admin"
	RoleSalesperson = "salesperson"
	RoleMechanic    = "mechanic"
)

// Actor identifies the authenticated user performing an engine call.
type Actor struct {
	ID       string
	Username string
	Role     string
	BranchID string
}

// CanActOnBranch reports whether the actor may mutate state owned by
// the given branch. Admins act across branches.
func (a Actor) CanActOnBranch(branchID string) bool {
	return a.Role == RoleAdmin || a.BranchID == branchID
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	BranchID    string `json:"branch_id,omitempty"`
	ExpiresAt   string `json:"expires_at"`
}

// UserAccount is an internal persistence model for auth credentials.
// Product is a read-only catalog collaborator. The engines only check
// existence and snapshot sku/name onto order lines; catalog maintenance
// lives outside this system.
type Product struct {
	ID       string `json:"id"`
	SKU      string `json:"sku"`
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
	Active   bool   `json:"active"`
}

type UserAccount struct {
	ID        string
	Username  string
	Password  string
	Role      string
	BranchID  string
	Active    bool
	CreatedAt time.Time
}
