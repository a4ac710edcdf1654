package service

import (
	"math"

	"github.com/shopspring/decimal"
	"github.com/stockflow/stockflow-bom/internal/model/entity"
)

// StockSource supplies current on-hand quantities. Injected so the calculator
// stays a pure function over its inputs and can be tested with synthetic maps.
type StockSource interface {
	GetStock(productID string) float64
}

// CostSource supplies component unit prices for cost rollups.
type CostSource interface {
	GetUnitCost(productID string) (purchasePrice, salePrice float64)
}

// StockMap is an in-memory StockSource. Missing products read as zero stock.
type StockMap map[string]float64

func (m StockMap) GetStock(productID string) float64 {
	return m[productID]
}

// LineBuildable is the per-line diagnostic of a buildable computation.
type LineBuildable struct {
	LineItemID                string  `json:"line_item_id"`
	ComponentProductID        string  `json:"component_product_id"`
	ComponentName             string  `json:"component_name,omitempty"`
	EffectiveQuantityRequired float64 `json:"effective_quantity_required"`
	ComponentAvailable        float64 `json:"component_available"`
	BuildableQty              int64   `json:"buildable_qty"`
}

// BuildableResult is the outcome of a buildable computation for one recipe.
type BuildableResult struct {
	BuildableQuantity int64           `json:"buildable_quantity"`
	PerLine           []LineBuildable `json:"per_line"`
}

// ComputeBuildable computes how many whole parent units can be assembled from
// current component stock. Each line limits the total to
// floor(available / effective requirement); the overall result is the minimum
// across lines. A recipe with no lines builds nothing, and a line with a
// non-positive effective requirement is invalid input and builds nothing
// rather than dividing by it.
func ComputeBuildable(lines []entity.BOMLineItem, stock StockSource) BuildableResult {
	result := BuildableResult{PerLine: make([]LineBuildable, 0, len(lines))}
	if len(lines) == 0 {
		return result
	}

	overall := int64(math.MaxInt64)
	for _, line := range lines {
		effective := line.EffectiveQuantity()
		available := stock.GetStock(line.ComponentProductID)

		var forLine int64
		if effective > 0 {
			// The epsilon absorbs float64 noise in the effective requirement,
			// so 33/(1*2*1.1) floors to 15 and not 14.
			forLine = int64(math.Floor(available/effective + 1e-9))
		}
		if forLine < overall {
			overall = forLine
		}

		lb := LineBuildable{
			LineItemID:                line.ID,
			ComponentProductID:        line.ComponentProductID,
			EffectiveQuantityRequired: effective,
			ComponentAvailable:        available,
			BuildableQty:              forLine,
		}
		if line.Component != nil {
			lb.ComponentName = line.Component.Name
		}
		result.PerLine = append(result.PerLine, lb)
	}

	result.BuildableQuantity = overall
	return result
}

// ComputeCost rolls up the estimated cost of building one parent unit:
// sum of unit cost times effective quantity across lines. Unit cost prefers
// the component's purchase price and falls back to its sale price.
func ComputeCost(lines []entity.BOMLineItem, costs CostSource) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		purchase, sale := costs.GetUnitCost(line.ComponentProductID)
		unit := purchase
		if unit == 0 {
			unit = sale
		}
		lineCost := decimal.NewFromFloat(unit).
			Mul(decimal.NewFromFloat(line.EffectiveQuantity()))
		total = total.Add(lineCost)
	}
	return total
}
