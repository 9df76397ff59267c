package dto

import "github.com/shopspring/decimal"

// MaxQuantity bounds every quantity a request may carry, so sums of lines and
// stock plus delta stay far from integer overflow.
const MaxQuantity = 1_000_000

// ─── Request DTOs ────────────────────────────────────────────────────────────

type SaleLineRequest struct {
	ProductID     string          `json:"product_id"     validate:"required,uuid"`
	CustomerLabel string          `json:"customer_label" validate:"required,max=120"`
	Quantity      int             `json:"quantity"       validate:"gt=0,max=1000000"`
	UnitPrice     decimal.Decimal `json:"unit_price"     validate:"gt=0"`
}

// RecordSaleRequest is one multi-line sale. Salesperson is filled from the
// caller identity when the body leaves it empty.
type RecordSaleRequest struct {
	Salesperson string            `json:"salesperson"     validate:"required,max=120"`
	Lines       []SaleLineRequest `json:"lines"           validate:"required,min=1,dive"`
	// IdempotencyKey makes client retries safe: a second call with the same
	// key returns the first result and debits nothing.
	IdempotencyKey *string `json:"idempotency_key" validate:"omitempty,min=1,max=100"`
}

type EditSaleLineRequest struct {
	CustomerLabel *string         `json:"customer_label" validate:"omitempty,min=1,max=120"`
	Quantity      int             `json:"quantity"       validate:"gt=0,max=1000000"`
	UnitPrice     decimal.Decimal `json:"unit_price"     validate:"gt=0"`
}

// ─── Filter / List ──────────────────────────────────────────────────────────

// SaleFilter is bound from the query string of GET /v1/sales.
type SaleFilter struct {
	Salesperson string `form:"salesperson"`
	ProductID   string `form:"product_id" validate:"omitempty,uuid"`
	Date        string `form:"date"` // YYYY-MM-DD; empty = all dates
	Page        int    `form:"page,default=1"   validate:"min=1"`
	Limit       int    `form:"limit,default=50" validate:"min=1,max=200"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type SaleLineResponse struct {
	ID            string          `json:"id"`
	TransactionID string          `json:"transaction_id"`
	LineNo        int             `json:"line_no"`
	ProductID     *string         `json:"product_id"`
	ProductName   string          `json:"product_name"`
	ProductType   string          `json:"product_type"`
	CustomerLabel string          `json:"customer_label"`
	Quantity      int             `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	Total         decimal.Decimal `json:"total"`
	Salesperson   string          `json:"salesperson"`
	PreviousStock int             `json:"previous_stock"`
	NewStock      int             `json:"new_stock"`
	Status        string          `json:"status"`
	CreatedAt     string          `json:"created_at"`
}

type SaleResponse struct {
	TransactionID string             `json:"transaction_id"`
	SaleIDs       []string           `json:"sale_ids"`
	TotalAmount   decimal.Decimal    `json:"total_amount"`
	Lines         []SaleLineResponse `json:"lines"`
	// Replayed is true when the response comes from an earlier call with the
	// same idempotency key.
	Replayed  bool   `json:"replayed"`
	CreatedAt string `json:"created_at"`
}

type SaleListResponse struct {
	Data  []SaleLineResponse `json:"data"`
	Total int64              `json:"total"`
	Page  int                `json:"page"`
	Limit int                `json:"limit"`
}
