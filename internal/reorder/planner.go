package reorder

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"bengkelpos/internal/domain"
)

// Suggestion is a purchase proposal for one stock record that has
// fallen to or below its reorder point.
type Suggestion struct {
	StockRecordID string          `json:"stock_record_id"`
	ProductID     string          `json:"product_id"`
	BranchID      string          `json:"branch_id"`
	Available     int             `json:"available"`
	ReorderPoint  int             `json:"reorder_point"`
	SuggestedQty  int             `json:"suggested_quantity"`
	Urgency       float64         `json:"urgency"`
	ReasonCode    string          `json:"reason_code"`
	EstimatedCost decimal.Decimal `json:"estimated_cost"`
}

type Planner struct {
	minUrgency float64
}

func NewPlanner() *Planner {
	return &Planner{minUrgency: 0.05}
}

// Plan scores the given records and returns suggestions ordered most
// urgent first. Records above their reorder point, or with no reorder
// point configured, produce nothing.
func (p *Planner) Plan(records []domain.StockRecord) []Suggestion {
	suggestions := make([]Suggestion, 0, len(records))

	for _, rec := range records {
		if rec.ReorderPoint <= 0 {
			continue
		}
		available := rec.Available()
		if available > rec.ReorderPoint {
			continue
		}

		depletion := clamp(1-float64(available)/float64(rec.ReorderPoint), 0, 1)
		stockout := 0.0
		if available <= 0 {
			stockout = 1.0
		}
		reservedPressure := 0.0
		if rec.Quantity > 0 {
			reservedPressure = clamp(float64(rec.ReservedQty)/float64(rec.Quantity), 0, 1)
		}

		urgency := 0.55*depletion + 0.30*stockout + 0.15*reservedPressure
		if urgency < p.minUrgency {
			continue
		}

		qty := rec.ReorderQty
		if qty <= 0 {
			qty = rec.ReorderPoint * 2
		}
		if shortfall := rec.ReorderPoint - available; qty < shortfall {
			qty = shortfall
		}

		suggestions = append(suggestions, Suggestion{
			StockRecordID: rec.ID,
			ProductID:     rec.ProductID,
			BranchID:      rec.BranchID,
			Available:     available,
			ReorderPoint:  rec.ReorderPoint,
			SuggestedQty:  qty,
			Urgency:       round2(urgency),
			ReasonCode:    deriveReason(depletion, stockout, reservedPressure),
			EstimatedCost: rec.CostPrice.Mul(decimal.NewFromInt(int64(qty))),
		})
	}

	sort.Slice(suggestions, func(i, j int) bool {
		if suggestions[i].Urgency != suggestions[j].Urgency {
			return suggestions[i].Urgency > suggestions[j].Urgency
		}
		return suggestions[i].ProductID < suggestions[j].ProductID
	})
	return suggestions
}

func deriveReason(depletion float64, stockout float64, reservedPressure float64) string {
	type reasonWeight struct {
		code  string
		value float64
	}

	reasons := []reasonWeight{
		{code: "below_reorder_point", value: depletion},
		{code: "out_of_stock", value: stockout},
		{code: "reserved_pressure", value: reservedPressure},
	}

	sort.Slice(reasons, func(i, j int) bool {
		return reasons[i].value > reasons[j].value
	})
	return reasons[0].code
}

func clamp(val float64, minVal float64, maxVal float64) float64 {
	if val < minVal {
		return minVal
	}
	if val > maxVal {
		return maxVal
	}
	return val
}

func round2(val float64) float64 {
	return math.Round(val*100) / 100
}
