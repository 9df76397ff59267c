package dto

// AdjustStockRequest is the body of PATCH /v1/products/:id/stock.
// Exactly one of Target or Delta must be present.
type AdjustStockRequest struct {
	Target *int   `json:"target" validate:"omitempty,min=0,max=1000000"`
	Delta  *int   `json:"delta"  validate:"omitempty,min=-1000000,max=1000000"`
	Reason string `json:"reason" validate:"required,max=60"`
}

type StockMutationResponse struct {
	ProductID        string `json:"product_id"`
	PreviousQuantity int    `json:"previous_quantity"`
	NewQuantity      int    `json:"new_quantity"`
	Delta            int    `json:"delta"`
}

type HistoryFilter struct {
	Limit int `form:"limit,default=100" validate:"min=1"`
}

type StockHistoryItem struct {
	ID               string  `json:"id"`
	ProductID        string  `json:"product_id"`
	PreviousQuantity int     `json:"previous_quantity"`
	NewQuantity      int     `json:"new_quantity"`
	Delta            int     `json:"delta"`
	Reason           string  `json:"reason"`
	Actor            *string `json:"actor"`
	ReferenceID      *string `json:"reference_id,omitempty"`
	CreatedAt        string  `json:"created_at"`
}

type StockHistoryResponse struct {
	ProductID string             `json:"product_id"`
	Data      []StockHistoryItem `json:"data"`
	Limit     int                `json:"limit"`
}
