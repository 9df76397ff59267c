package dto

import "github.com/shopspring/decimal"

// MetricsResponse bundles the read-side metrics of one product.
type MetricsResponse struct {
	ProductID       string          `json:"product_id"`
	StockQuantity   int             `json:"stock_quantity"`
	InventoryValue  decimal.Decimal `json:"inventory_value"`
	StockTrend      decimal.Decimal `json:"stock_trend"`
	DisplayTrend    decimal.Decimal `json:"display_trend"`
	IsLowStock      bool            `json:"is_low_stock"`
	IsOutOfStock    bool            `json:"is_out_of_stock"`
	StockPercentage int             `json:"stock_percentage"`
	StockStatus     string          `json:"stock_status"` // out_of_stock | low_stock | in_stock
}

type StockAlertResponse struct {
	ProductID     string `json:"product_id"`
	Name          string `json:"name"`
	Type          string `json:"type"`
	StockQuantity int    `json:"stock_quantity"`
	MinStock      int    `json:"min_stock"`
	Shortfall     int    `json:"shortfall"` // units needed to get back above min_stock
	StockStatus   string `json:"stock_status"`
}

type InventorySummaryResponse struct {
	Products        int             `json:"products"`
	UnitsOnHand     int             `json:"units_on_hand"`
	InventoryValue  decimal.Decimal `json:"inventory_value"`
	LowStockCount   int             `json:"low_stock_count"`
	OutOfStockCount int             `json:"out_of_stock_count"`
	ByType          []TypeSummary   `json:"by_type"`
}

type TypeSummary struct {
	Type           string          `json:"type"`
	Products       int             `json:"products"`
	UnitsOnHand    int             `json:"units_on_hand"`
	InventoryValue decimal.Decimal `json:"inventory_value"`
}
