package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const SaleCompleted = "completed"

// SaleLine is one committed line of a sale. Lines written by the same
// RecordSale call share TransactionID. ProductID is nulled when the product
// is deleted; ProductName and ProductType keep the snapshot.
type SaleLine struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey"`
	TransactionID  uuid.UUID       `gorm:"type:uuid;not null;index"`
	LineNo         int             `gorm:"not null;uniqueIndex:idx_sale_lines_idempotency,priority:2"`
	IdempotencyKey *string         `gorm:"uniqueIndex:idx_sale_lines_idempotency,priority:1"`
	ProductID      *uuid.UUID      `gorm:"type:uuid;index"`
	ProductName    string          `gorm:"not null"`
	ProductType    string          `gorm:"not null"`
	CustomerLabel  string          `gorm:"not null"`
	Quantity       int             `gorm:"not null"`
	UnitPrice      decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Total          decimal.Decimal `gorm:"type:decimal(14,2);not null"`
	Salesperson    string          `gorm:"index;not null"`
	PreviousStock  int             `gorm:"not null"`
	NewStock       int             `gorm:"not null"`
	Status         string          `gorm:"not null;default:'completed'"`
	CreatedAt      time.Time       `gorm:"index"`
	UpdatedAt      time.Time

	Product *Product `gorm:"foreignKey:ProductID;constraint:OnDelete:SET NULL"`
}
