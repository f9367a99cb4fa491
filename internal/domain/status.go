package domain

import (
	"github.com/shopspring/decimal"
)

var salesTransitions = map[string][]string{
	SalesStatusPending:    {SalesStatusProcessing, SalesStatusCancelled},
	SalesStatusProcessing: {SalesStatusCompleted, SalesStatusCancelled},
	SalesStatusCompleted:  {},
	SalesStatusCancelled:  {},
}

var serviceTransitions = map[string][]string{
	ServiceStatusPending:    {ServiceStatusScheduled, ServiceStatusCancelled},
	ServiceStatusScheduled:  {ServiceStatusInProgress, ServiceStatusCancelled},
	ServiceStatusInProgress: {ServiceStatusCompleted, ServiceStatusCancelled},
	ServiceStatusCompleted:  {},
	ServiceStatusCancelled:  {},
}

var transferTransitions = map[string][]string{
	TransferStatusPending:   {TransferStatusInTransit, TransferStatusCancelled},
	TransferStatusInTransit: {TransferStatusCompleted, TransferStatusCancelled},
	TransferStatusCompleted: {},
	TransferStatusCancelled: {},
}

func allowed(table map[string][]string, from, to string) bool {
	for _, t := range table[from] {
		if t == to {
			return true
		}
	}
	return false
}

func ValidSalesTransition(from, to string) bool {
	return allowed(salesTransitions, from, to)
}

func ValidServiceTransition(from, to string) bool {
	return allowed(serviceTransitions, from, to)
}

func ValidTransferTransition(from, to string) bool {
	return allowed(transferTransitions, from, to)
}

func IsSalesStatus(s string) bool {
	_, ok := salesTransitions[s]
	return ok
}

func IsServiceStatus(s string) bool {
	_, ok := serviceTransitions[s]
	return ok
}

func IsTransferStatus(s string) bool {
	_, ok := transferTransitions[s]
	return ok
}

func IsPriority(p string) bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// ComputePayment derives a payment status and change amount from what
// has been paid against a total. It is a pure function: callers may
// re-run it on every payment update without side effects.
func ComputePayment(amountPaid, total decimal.Decimal) (status string, change decimal.Decimal) {
	switch {
	case amountPaid.Sign() <= 0:
		return PaymentStatusPending, decimal.Zero
	case amountPaid.LessThan(total):
		return PaymentStatusPartial, decimal.Zero
	default:
		return PaymentStatusPaid, amountPaid.Sub(total)
	}
}
