package repository

import (
	"context"
	"fmt"

	"stockledger/internal/dto"
	"stockledger/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type saleLineRepo struct{ db *gorm.DB }

func (r *saleLineRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.SaleLine, error) {
	var l model.SaleLine
	if err := r.db.WithContext(ctx).First(&l, "id = ?", id).Error; err != nil {
		return nil, classify(err)
	}
	return &l, nil
}

func (r *saleLineRepo) FindByIdempotencyKey(ctx context.Context, key string) ([]model.SaleLine, error) {
	var lines []model.SaleLine
	err := r.db.WithContext(ctx).
		Where("idempotency_key = ?", key).
		Order("line_no ASC").
		Find(&lines).Error
	return lines, classify(err)
}

func (r *saleLineRepo) List(ctx context.Context, filter dto.SaleFilter) ([]model.SaleLine, int64, error) {
	var lines []model.SaleLine
	var total int64

	q := r.db.WithContext(ctx).Model(&model.SaleLine{})
	if filter.Salesperson != "" {
		q = q.Where("salesperson = ?", filter.Salesperson)
	}
	if filter.ProductID != "" {
		q = q.Where("product_id = ?", filter.ProductID)
	}
	if filter.Date != "" {
		q = q.Where("DATE(created_at) = ?", filter.Date)
	}

	if err := q.Count(&total).Error; err != nil {
		return nil, 0, classify(err)
	}

	q = q.Order("created_at DESC").Order("transaction_id ASC").Order("line_no ASC")
	if filter.Limit > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		q = q.Limit(filter.Limit).Offset((page - 1) * filter.Limit)
	}
	err := q.Find(&lines).Error
	return lines, total, classify(err)
}

// ── Tx: sale lines ───────────────────────────────────────────────────────────

func (t *gormTx) CountSaleLines(productID uuid.UUID) (int64, error) {
	var n int64
	err := t.db.Model(&model.SaleLine{}).Where("product_id = ?", productID).Count(&n).Error
	return n, err
}

func (t *gormTx) AppendSaleLines(lines []model.SaleLine) error {
	if len(lines) == 0 {
		return nil
	}
	return t.db.Omit("Product").Create(&lines).Error
}

func (t *gormTx) LockSaleLine(id uuid.UUID) (*model.SaleLine, error) {
	var l model.SaleLine
	err := t.db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&l, "id = ?", id).Error
	if err != nil {
		return nil, classify(err)
	}
	return &l, nil
}

func (t *gormTx) UpdateSaleLine(l *model.SaleLine) error {
	res := t.db.Model(&model.SaleLine{}).Where("id = ?", l.ID).Updates(map[string]interface{}{
		"customer_label": l.CustomerLabel,
		"quantity":       l.Quantity,
		"unit_price":     l.UnitPrice,
		"total":          l.Total,
		"updated_at":     l.UpdatedAt,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: sale line %s", ErrNotFound, l.ID)
	}
	return nil
}
