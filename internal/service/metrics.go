package service

import (
	"stockledger/internal/dto"
	"stockledger/internal/model"

	"github.com/shopspring/decimal"
)

// ── Derived metrics ──────────────────────────────────────────────────────────
// Every screen, report and cache entry derives product metrics through these
// functions, so identical product state always yields identical numbers.

const (
	StatusOutOfStock = "out_of_stock"
	StatusLowStock   = "low_stock"
	StatusInStock    = "in_stock"
)

var (
	hundred         = decimal.NewFromInt(100)
	displayTrendMin = decimal.NewFromInt(-100)
	displayTrendMax = decimal.NewFromInt(1000)
)

// InventoryValue is price × max(quantity, 0); zero when no price is set.
func InventoryValue(price decimal.NullDecimal, quantity int) decimal.Decimal {
	if !price.Valid || quantity <= 0 {
		return decimal.Zero
	}
	return price.Decimal.Mul(decimal.NewFromInt(int64(quantity))).Round(2)
}

// ComputeStockTrend is the percentage change from previous to next, rounded
// to 2 decimals. A previous quantity of zero yields 0.
func ComputeStockTrend(previous, next int) decimal.Decimal {
	if previous == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(next - previous)).
		Mul(hundred).
		Div(decimal.NewFromInt(int64(previous))).
		Round(2)
}

// StockTrend surfaces the trend stored by the last mutation.
func StockTrend(p *model.Product) decimal.Decimal { return p.StockTrend }

// DisplayTrend clamps the stored trend to [-100, 1000] for presentation.
func DisplayTrend(p *model.Product) decimal.Decimal {
	t := p.StockTrend
	if t.LessThan(displayTrendMin) {
		return displayTrendMin
	}
	if t.GreaterThan(displayTrendMax) {
		return displayTrendMax
	}
	return t
}

// IsLowStock is true at or below the minimum, so a product with min 0 and
// quantity 0 is both low and out of stock.
func IsLowStock(p *model.Product) bool { return p.StockQuantity <= p.MinStock }

func IsOutOfStock(p *model.Product) bool { return p.StockQuantity <= 0 }

// StockPercentage is quantity / maxStock as a whole percentage in [0, 100].
func StockPercentage(p *model.Product) int {
	if p.MaxStock <= 0 {
		return 0
	}
	ratio := decimal.NewFromInt(int64(p.StockQuantity)).Div(decimal.NewFromInt(int64(p.MaxStock)))
	if ratio.IsNegative() {
		ratio = decimal.Zero
	}
	if ratio.GreaterThan(decimal.NewFromInt(1)) {
		ratio = decimal.NewFromInt(1)
	}
	return int(ratio.Mul(hundred).Round(0).IntPart())
}

func StockStatus(p *model.Product) string {
	switch {
	case IsOutOfStock(p):
		return StatusOutOfStock
	case IsLowStock(p):
		return StatusLowStock
	default:
		return StatusInStock
	}
}

// GetDerivedMetrics bundles the metrics above for one product.
func GetDerivedMetrics(p *model.Product) dto.MetricsResponse {
	return dto.MetricsResponse{
		ProductID:       p.ID.String(),
		StockQuantity:   p.StockQuantity,
		InventoryValue:  InventoryValue(p.Price, p.StockQuantity),
		StockTrend:      StockTrend(p),
		DisplayTrend:    DisplayTrend(p),
		IsLowStock:      IsLowStock(p),
		IsOutOfStock:    IsOutOfStock(p),
		StockPercentage: StockPercentage(p),
		StockStatus:     StockStatus(p),
	}
}
