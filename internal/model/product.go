package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	ProductActive   = "active"
	ProductArchived = "archived"
	ProductInactive = "inactive"
)

// Product is the stock record of one catalog item.
// InventoryValue and StockTrend are denormalized and rewritten by every stock mutation.
type Product struct {
	ID             uuid.UUID           `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Name           string              `gorm:"index;not null"`
	Type           string              `gorm:"index;not null"`
	Price          decimal.NullDecimal `gorm:"type:decimal(12,2)"`
	Unit           string              `gorm:"not null;default:'unit'"`
	StockQuantity  int                 `gorm:"not null;default:0;check:chk_products_stock_non_negative,stock_quantity >= 0"`
	MinStock       int                 `gorm:"not null;default:0"`
	MaxStock       int                 `gorm:"not null;default:0"`
	InventoryValue decimal.Decimal     `gorm:"type:decimal(14,2);not null;default:0"`
	StockTrend     decimal.Decimal     `gorm:"type:decimal(12,2);not null;default:0"`
	Status         string              `gorm:"index;not null;default:'active'"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsArchived reports whether the product can no longer be sold.
func (p *Product) IsArchived() bool { return p.Status == ProductArchived }
