package repository

import (
	"context"

	"stockledger/internal/dto"
	"stockledger/internal/model"

	"github.com/google/uuid"
)

// Store is the persistence contract of the ledger. Services depend on this
// interface, not on a concrete backend: the GORM store serves production and
// the in-memory store serves local development and unit tests.
type Store interface {
	Products() ProductRepository
	History() StockHistoryRepository
	Sales() SaleLineRepository

	// Transact runs fn inside one serializable transaction. fn's writes are
	// committed together when it returns nil and discarded otherwise.
	// Conflicts surface as ErrConflict; the caller decides whether to retry.
	Transact(ctx context.Context, fn func(tx Tx) error) error

	Ping(ctx context.Context) error
}

// ProductRepository holds the non-locking product reads.
type ProductRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.Product, error)
	// FindByIDs returns the products that exist among ids; missing ids are omitted.
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Product, error)
	// List applies filter; a Limit <= 0 returns every matching row.
	List(ctx context.Context, filter dto.ProductFilter) ([]model.Product, int64, error)
}

type StockHistoryRepository interface {
	// ListByProduct returns the newest entries first.
	ListByProduct(ctx context.Context, productID uuid.UUID, limit int) ([]model.StockHistoryEntry, error)
}

type SaleLineRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.SaleLine, error)
	// FindByIdempotencyKey returns the lines of the sale committed under key,
	// ordered by line number, or an empty slice.
	FindByIdempotencyKey(ctx context.Context, key string) ([]model.SaleLine, error)
	List(ctx context.Context, filter dto.SaleFilter) ([]model.SaleLine, int64, error)
}

// Tx is the set of reads and writes available inside Store.Transact.
type Tx interface {
	// LockProducts reads and row-locks the given products in ascending id
	// order. Missing ids are omitted from the result.
	LockProducts(ids []uuid.UUID) ([]model.Product, error)
	CreateProduct(p *model.Product) error
	// UpdateStock persists stock_quantity, inventory_value, stock_trend and updated_at.
	UpdateStock(p *model.Product) error
	UpdateStatus(p *model.Product) error
	// DeleteProduct removes the product and its history and detaches its sale lines.
	DeleteProduct(id uuid.UUID) error

	AppendHistory(entries []model.StockHistoryEntry) error

	CountSaleLines(productID uuid.UUID) (int64, error)
	AppendSaleLines(lines []model.SaleLine) error
	LockSaleLine(id uuid.UUID) (*model.SaleLine, error)
	UpdateSaleLine(l *model.SaleLine) error
}
