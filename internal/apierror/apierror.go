// Package apierror provides standardized error response structures for the API.
// All errors returned to clients go through this package to ensure consistency
// and to prevent leaking internal details (stack traces, DB errors, etc.).
package apierror

// APIError is the canonical error envelope for all 4xx/5xx HTTP responses.
type APIError struct {
	Detail string `json:"detail"`
}

func New(msg string) *APIError {
	return &APIError{Detail: msg}
}

// Validation wraps multiple field errors.
type ValidationError struct {
	Detail string            `json:"detail"`
	Fields map[string]string `json:"fields"`
}

func NewValidation(fields map[string]string) *ValidationError {
	return &ValidationError{Detail: "validation failed", Fields: fields}
}

// Shortfall is one product a sale or stock debit could not cover.
type Shortfall struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Requested   int    `json:"requested"`
	Available   int    `json:"available"`
	Shortfall   int    `json:"shortfall"`
}

// StockError is returned with 409 when stock does not cover a request.
type StockError struct {
	Detail     string      `json:"detail"`
	Shortfalls []Shortfall `json:"shortfalls"`
}

func NewStock(detail string, shortfalls []Shortfall) *StockError {
	if shortfalls == nil {
		shortfalls = []Shortfall{}
	}
	return &StockError{Detail: detail, Shortfalls: shortfalls}
}
