package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type RestockRequest struct {
	ProductID    string          `json:"product_id" binding:"required"`
	BranchID     string          `json:"branch_id" binding:"required"`
	Quantity     int             `json:"quantity" binding:"required,gt=0"`
	CostPrice    decimal.Decimal `json:"cost_price"`
	SellingPrice decimal.Decimal `json:"selling_price"`
	ReorderPoint *int            `json:"reorder_point,omitempty"`
	ReorderQty   *int            `json:"reorder_quantity,omitempty"`
	SupplierID   string          `json:"supplier_id,omitempty"`
	Location     string          `json:"location,omitempty"`
	Notes        string          `json:"notes,omitempty"`
}

type RestockByIDRequest struct {
	Quantity     int              `json:"quantity" binding:"required,gt=0"`
	CostPrice    *decimal.Decimal `json:"cost_price,omitempty"`
	SellingPrice *decimal.Decimal `json:"selling_price,omitempty"`
	Notes        string           `json:"notes,omitempty"`
}

type AdjustRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	BranchID  string `json:"branch_id" binding:"required"`
	Delta     int    `json:"delta" binding:"required"`
	Reason    string `json:"reason" binding:"required,min=5,max=500"`
}

type AdjustByIDRequest struct {
	Delta  int    `json:"delta" binding:"required"`
	Reason string `json:"reason" binding:"required,min=5,max=500"`
}

type TransferCreateRequest struct {
	ProductID    string `json:"product_id" binding:"required"`
	FromBranchID string `json:"from_branch_id" binding:"required"`
	ToBranchID   string `json:"to_branch_id" binding:"required"`
	Quantity     int    `json:"quantity" binding:"required,gt=0"`
	Notes        string `json:"notes,omitempty"`
}

type TransferStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type SalesItemRequest struct {
	ProductID string          `json:"product_id" binding:"required"`
	Quantity  int             `json:"quantity" binding:"required,gt=0"`
	Discount  decimal.Decimal `json:"discount"`
}

type SalesOrderCreateRequest struct {
	BranchID   string             `json:"branch_id" binding:"required"`
	Customer   Customer           `json:"customer"`
	Items      []SalesItemRequest `json:"items" binding:"required,min=1,dive"`
	TaxRate    decimal.Decimal    `json:"tax_rate"`
	Discount   decimal.Decimal    `json:"discount"`
	Method     string             `json:"payment_method"`
	AmountPaid decimal.Decimal    `json:"amount_paid"`
}

type OrderStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type PaymentUpdateRequest struct {
	Method     string          `json:"method,omitempty"`
	AmountPaid decimal.Decimal `json:"amount_paid"`
}

type ServicePartRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,gt=0"`
}

type ServiceOrderCreateRequest struct {
	BranchID     string               `json:"branch_id" binding:"required"`
	Customer     Customer             `json:"customer"`
	Vehicle      Vehicle              `json:"vehicle"`
	Description  string               `json:"description" binding:"required"`
	Priority     string               `json:"priority,omitempty"`
	AssignedTo   string               `json:"assigned_to,omitempty"`
	Parts        []ServicePartRequest `json:"parts,omitempty"`
	LaborCost    decimal.Decimal      `json:"labor_cost"`
	OtherCharges decimal.Decimal      `json:"other_charges"`
}

type ServicePartsUpdateRequest struct {
	Parts []ServicePartRequest `json:"parts" binding:"dive"`
}

type ServiceAssignRequest struct {
	AssignedTo string `json:"assigned_to" binding:"required"`
}

type ServiceUpdateRequest struct {
	Diagnosis    *string          `json:"diagnosis,omitempty"`
	Priority     *string          `json:"priority,omitempty"`
	LaborCost    *decimal.Decimal `json:"labor_cost,omitempty"`
	OtherCharges *decimal.Decimal `json:"other_charges,omitempty"`
}

// MovementFilter narrows audit log queries. Zero values mean "any".
type MovementFilter struct {
	StockRecordID string
	ProductID     string
	BranchID      string
	Type          string
	From          *time.Time
	To            *time.Time
	Limit         int
	Offset        int
}
