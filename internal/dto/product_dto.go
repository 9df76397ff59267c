package dto

import "github.com/shopspring/decimal"

// ─── Request DTOs ────────────────────────────────────────────────────────────

// CreateProductRequest inserts a catalog item with its opening stock.
// Price is a pointer so that a missing price can be told apart from zero.
type CreateProductRequest struct {
	Name          string           `json:"name"           validate:"required,max=120"`
	Type          string           `json:"type"           validate:"required,max=60"`
	Price         *decimal.Decimal `json:"price"`
	Unit          string           `json:"unit"           validate:"max=20"`
	StockQuantity int              `json:"stock_quantity" validate:"min=0,max=1000000"`
	MinStock      int              `json:"min_stock"      validate:"min=0,max=1000000"`
	MaxStock      int              `json:"max_stock"      validate:"min=1,max=1000000"`
}

// ─── Filter / Pagination ─────────────────────────────────────────────────────

type ProductFilter struct {
	Status   string `form:"status"` // active (default) | archived | inactive | all
	Type     string `form:"type"`
	LowStock bool   `form:"low_stock"`
	Page     int    `form:"page,default=1"   validate:"min=1"`
	Limit    int    `form:"limit,default=50" validate:"min=1,max=200"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type ProductResponse struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Type           string          `json:"type"`
	Price          *string         `json:"price"`
	Unit           string          `json:"unit"`
	StockQuantity  int             `json:"stock_quantity"`
	MinStock       int             `json:"min_stock"`
	MaxStock       int             `json:"max_stock"`
	InventoryValue decimal.Decimal `json:"inventory_value"`
	StockTrend     decimal.Decimal `json:"stock_trend"`
	Status         string          `json:"status"`
	Metrics        MetricsResponse `json:"metrics"`
	CreatedAt      string          `json:"created_at"`
	UpdatedAt      string          `json:"updated_at"`
}

type ProductListResponse struct {
	Data       []ProductResponse `json:"data"`
	Total      int64             `json:"total"`
	Page       int               `json:"page"`
	Limit      int               `json:"limit"`
	TotalPages int               `json:"total_pages"`
}

// RemoveProductResponse tells the caller whether the product was archived
// (it has sales on record) or physically deleted.
type RemoveProductResponse struct {
	ID      string `json:"id"`
	Outcome string `json:"outcome"` // archived | deleted
}
