package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	ReasonInitialStock     = "initial-stock"
	ReasonSale             = "sale"
	ReasonRestock          = "restock"
	ReasonManualAdjustment = "manual-adjustment"
	ReasonSaleCorrection   = "sale-correction"
)

// StockHistoryEntry records one change of a product's stock quantity.
// Entries are append-only; Delta always equals NewQuantity - PreviousQuantity.
type StockHistoryEntry struct {
	ID               uuid.UUID  `gorm:"type:uuid;primaryKey"`
	ProductID        uuid.UUID  `gorm:"type:uuid;not null;index:idx_stock_history_product_created,priority:1"`
	PreviousQuantity int        `gorm:"not null"`
	NewQuantity      int        `gorm:"not null"`
	Delta            int        `gorm:"not null"`
	Reason           string     `gorm:"not null"`
	Actor            *string
	ReferenceID      *uuid.UUID `gorm:"type:uuid;index"` // sale transaction id for sale debits
	CreatedAt        time.Time  `gorm:"index:idx_stock_history_product_created,priority:2,sort:desc"`

	Product *Product `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
}

func (StockHistoryEntry) TableName() string { return "stock_history" }
