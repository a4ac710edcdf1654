package service

import (
	"math"
	"testing"

	"github.com/stockflow/stockflow-bom/internal/model/entity"
)

func line(id, component string, qty, conversion, scrap float64) entity.BOMLineItem {
	return entity.BOMLineItem{
		ID:                 id,
		ComponentProductID: component,
		QuantityRequired:   qty,
		ConversionFactor:   conversion,
		ScrapFactor:        scrap,
	}
}

func TestComputeBuildableBasic(t *testing.T) {
	lines := []entity.BOMLineItem{line("l1", "c1", 2, 1, 0)}
	stock := StockMap{"c1": 10}

	result := ComputeBuildable(lines, stock)
	if result.BuildableQuantity != 5 {
		t.Errorf("BuildableQuantity = %d, want 5", result.BuildableQuantity)
	}
	if len(result.PerLine) != 1 {
		t.Fatalf("PerLine count = %d, want 1", len(result.PerLine))
	}
	if result.PerLine[0].EffectiveQuantityRequired != 2 {
		t.Errorf("effective = %v, want 2", result.PerLine[0].EffectiveQuantityRequired)
	}
}

func TestComputeBuildableScrapAndConversion(t *testing.T) {
	lines := []entity.BOMLineItem{line("l1", "c1", 1, 2, 0.1)}
	stock := StockMap{"c1": 33}

	result := ComputeBuildable(lines, stock)
	effective := result.PerLine[0].EffectiveQuantityRequired
	if math.Abs(effective-2.2) > 1e-9 {
		t.Errorf("effective = %v, want 2.2", effective)
	}
	if result.BuildableQuantity != 15 {
		t.Errorf("BuildableQuantity = %d, want 15", result.BuildableQuantity)
	}
}

func TestComputeBuildableFloatNoise(t *testing.T) {
	// Divisions that land exactly on a whole number must not lose a unit to
	// float64 representation error.
	cases := []struct {
		qty, conversion, scrap, stock float64
		want                          int64
	}{
		{1, 2, 0.1, 33, 15}, // 33 / 2.2
		{0.3, 1, 0, 3, 10},  // 3 / 0.3
		{0.1, 1, 0, 1, 10},  // 1 / 0.1
		{1, 1, 0.2, 6, 5},   // 6 / 1.2
	}
	for _, tc := range cases {
		lines := []entity.BOMLineItem{line("l1", "c1", tc.qty, tc.conversion, tc.scrap)}
		got := ComputeBuildable(lines, StockMap{"c1": tc.stock}).BuildableQuantity
		if got != tc.want {
			t.Errorf("qty=%v conv=%v scrap=%v stock=%v: buildable = %d, want %d",
				tc.qty, tc.conversion, tc.scrap, tc.stock, got, tc.want)
		}
	}
}

func TestComputeBuildableMultiComponentMinimum(t *testing.T) {
	lines := []entity.BOMLineItem{
		line("l1", "c1", 2, 1, 0), // 10/2 = 5
		line("l2", "c2", 3, 1, 0), // 9/3 = 3
	}
	stock := StockMap{"c1": 10, "c2": 9}

	result := ComputeBuildable(lines, stock)
	if result.BuildableQuantity != 3 {
		t.Errorf("BuildableQuantity = %d, want 3", result.BuildableQuantity)
	}
	if result.PerLine[0].BuildableQty != 5 || result.PerLine[1].BuildableQty != 3 {
		t.Errorf("per-line = %d, %d, want 5, 3",
			result.PerLine[0].BuildableQty, result.PerLine[1].BuildableQty)
	}
}

func TestComputeBuildableEmptyBOM(t *testing.T) {
	result := ComputeBuildable(nil, StockMap{})
	if result.BuildableQuantity != 0 {
		t.Errorf("BuildableQuantity = %d, want 0 for empty recipe", result.BuildableQuantity)
	}
}

func TestComputeBuildableMissingStock(t *testing.T) {
	lines := []entity.BOMLineItem{line("l1", "unknown", 1, 1, 0)}
	result := ComputeBuildable(lines, StockMap{})
	if result.BuildableQuantity != 0 {
		t.Errorf("BuildableQuantity = %d, want 0 with no stock", result.BuildableQuantity)
	}
}

type costMap map[string][2]float64

func (m costMap) GetUnitCost(productID string) (float64, float64) {
	c := m[productID]
	return c[0], c[1]
}

func TestComputeCostPrefersPurchasePrice(t *testing.T) {
	lines := []entity.BOMLineItem{
		line("l1", "c1", 2, 1, 0),   // 2 * 3.50 = 7.00
		line("l2", "c2", 1, 1, 0.5), // 1.5 * 10 = 15.00 (sale price fallback)
	}
	costs := costMap{
		"c1": {3.50, 5.00},
		"c2": {0, 10.00},
	}

	total := ComputeCost(lines, costs)
	if total.InexactFloat64() != 22.0 {
		t.Errorf("total cost = %v, want 22", total)
	}
}

func TestComputeCostEmpty(t *testing.T) {
	total := ComputeCost(nil, costMap{})
	if !total.IsZero() {
		t.Errorf("total cost = %v, want 0", total)
	}
}
