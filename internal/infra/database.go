package infra

import (
	"fmt"
	"time"

	"stockledger/internal/model"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabase establishes a GORM connection backed by pgx, migrates the ledger
// tables and applies the idempotent SQL patches GORM cannot express.
func NewDatabase(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := RunMigrations(db); err != nil {
		return nil, err
	}
	return db, nil
}

// RunMigrations creates or updates the ledger schema. Safe to run on every
// start; integration tests call it directly against a fresh container.
func RunMigrations(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.Product{},
		&model.StockHistoryEntry{},
		&model.SaleLine{},
	); err != nil {
		return fmt.Errorf("AutoMigrate: %w", err)
	}
	if err := applySchemaPatches(db); err != nil {
		return fmt.Errorf("schema patches: %w", err)
	}
	return nil
}

// applySchemaPatches runs idempotent DDL that AutoMigrate cannot express
// (partial indexes, cross-column checks). Each statement is guarded so
// re-running on an already-patched DB is a no-op.
func applySchemaPatches(db *gorm.DB) error {
	patches := []struct{ descr, sql string }{
		{"products min/max check", `
DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_products_min_below_max') THEN
    ALTER TABLE products ADD CONSTRAINT chk_products_min_below_max
      CHECK (min_stock >= 0 AND max_stock > min_stock);
  END IF;
END $$`},
		{"products price check", `
DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_products_price_non_negative') THEN
    ALTER TABLE products ADD CONSTRAINT chk_products_price_non_negative
      CHECK (price IS NULL OR price >= 0);
  END IF;
END $$`},
		// alerts endpoint and the low-stock sweep only look at active products under min
		{"low stock partial index", `
CREATE INDEX IF NOT EXISTS idx_products_low_stock
    ON products (stock_quantity)
    WHERE status = 'active' AND stock_quantity <= min_stock`},
		{"stock history delta check", `
DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_stock_history_delta') THEN
    ALTER TABLE stock_history ADD CONSTRAINT chk_stock_history_delta
      CHECK (delta = new_quantity - previous_quantity AND new_quantity >= 0);
  END IF;
END $$`},
		{"sale lines positive quantity", `
DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_sale_lines_quantity_positive') THEN
    ALTER TABLE sale_lines ADD CONSTRAINT chk_sale_lines_quantity_positive CHECK (quantity > 0);
  END IF;
END $$`},
	}
	for _, p := range patches {
		if err := db.Exec(p.sql).Error; err != nil {
			return fmt.Errorf("patch %q: %w", p.descr, err)
		}
	}
	return nil
}
