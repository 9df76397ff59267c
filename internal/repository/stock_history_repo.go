package repository

import (
	"context"

	"stockledger/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type stockHistoryRepo struct{ db *gorm.DB }

func (r *stockHistoryRepo) ListByProduct(ctx context.Context, productID uuid.UUID, limit int) ([]model.StockHistoryEntry, error) {
	var entries []model.StockHistoryEntry
	q := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("created_at DESC").
		Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&entries).Error
	return entries, classify(err)
}

// ── Tx: history ──────────────────────────────────────────────────────────────

func (t *gormTx) AppendHistory(entries []model.StockHistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return t.db.Omit("Product").Create(&entries).Error
}
