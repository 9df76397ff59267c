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

type productRepo struct{ db *gorm.DB }

func (r *productRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	var p model.Product
	if err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, classify(err)
	}
	return &p, nil
}

func (r *productRepo) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Product, error) {
	var products []model.Product
	if len(ids) == 0 {
		return products, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Order("id ASC").Find(&products).Error
	return products, classify(err)
}

func (r *productRepo) List(ctx context.Context, filter dto.ProductFilter) ([]model.Product, int64, error) {
	var products []model.Product
	var total int64

	q := r.db.WithContext(ctx).Model(&model.Product{})

	// Status filter: "all" = every product, empty = active only
	switch filter.Status {
	case "all":
	case "":
		q = q.Where("status = ?", model.ProductActive)
	default:
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Type != "" {
		q = q.Where("type = ?", filter.Type)
	}
	if filter.LowStock {
		q = q.Where("stock_quantity <= min_stock")
	}

	if err := q.Count(&total).Error; err != nil {
		return nil, 0, classify(err)
	}

	q = q.Order("name ASC").Order("id ASC")
	if filter.Limit > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		q = q.Limit(filter.Limit).Offset((page - 1) * filter.Limit)
	}
	err := q.Find(&products).Error
	return products, total, classify(err)
}

// ── Tx: products ─────────────────────────────────────────────────────────────

func (t *gormTx) LockProducts(ids []uuid.UUID) ([]model.Product, error) {
	var products []model.Product
	if len(ids) == 0 {
		return products, nil
	}
	// One statement locks every row in id order so concurrent sales over
	// overlapping products cannot deadlock on lock ordering.
	err := t.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", ids).
		Order("id ASC").
		Find(&products).Error
	return products, err
}

func (t *gormTx) CreateProduct(p *model.Product) error {
	return t.db.Create(p).Error
}

func (t *gormTx) UpdateStock(p *model.Product) error {
	res := t.db.Model(&model.Product{}).Where("id = ?", p.ID).Updates(map[string]interface{}{
		"stock_quantity":  p.StockQuantity,
		"inventory_value": p.InventoryValue,
		"stock_trend":     p.StockTrend,
		"updated_at":      p.UpdatedAt,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: product %s", ErrNotFound, p.ID)
	}
	return nil
}

func (t *gormTx) UpdateStatus(p *model.Product) error {
	res := t.db.Model(&model.Product{}).Where("id = ?", p.ID).Updates(map[string]interface{}{
		"status":     p.Status,
		"updated_at": p.UpdatedAt,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: product %s", ErrNotFound, p.ID)
	}
	return nil
}

func (t *gormTx) DeleteProduct(id uuid.UUID) error {
	if err := t.db.Where("product_id = ?", id).Delete(&model.StockHistoryEntry{}).Error; err != nil {
		return err
	}
	if err := t.db.Model(&model.SaleLine{}).Where("product_id = ?", id).
		Update("product_id", gorm.Expr("NULL")).Error; err != nil {
		return err
	}
	res := t.db.Delete(&model.Product{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: product %s", ErrNotFound, id)
	}
	return nil
}
