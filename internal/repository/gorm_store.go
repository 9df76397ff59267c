package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"gorm.io/gorm"
)

type gormStore struct {
	db          *gorm.DB
	lockTimeout time.Duration
	products    *productRepo
	history     *stockHistoryRepo
	sales       *saleLineRepo
}

// NewGormStore returns a Store backed by PostgreSQL through GORM.
// lockTimeout bounds how long a transaction waits on a row lock; waiting
// longer aborts it with ErrConflict. Zero keeps the server default.
func NewGormStore(db *gorm.DB, lockTimeout time.Duration) Store {
	return &gormStore{
		db:          db,
		lockTimeout: lockTimeout,
		products:    &productRepo{db: db},
		history:     &stockHistoryRepo{db: db},
		sales:       &saleLineRepo{db: db},
	}
}

func (s *gormStore) Products() ProductRepository     { return s.products }
func (s *gormStore) History() StockHistoryRepository { return s.history }
func (s *gormStore) Sales() SaleLineRepository       { return s.sales }

func (s *gormStore) Transact(ctx context.Context, fn func(tx Tx) error) error {
	err := s.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
		if s.lockTimeout > 0 {
			// SET does not take bind parameters.
			stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
			if err := gtx.Exec(stmt).Error; err != nil {
				return err
			}
		}
		return fn(&gormTx{db: gtx})
	}, &sql.TxOptions{Isolation: sql.LevelSerializable})
	return classify(err)
}

func (s *gormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// gormTx implements Tx on a live *gorm.DB transaction. The product, history
// and sale line halves live next to their read repositories.
type gormTx struct{ db *gorm.DB }

var _ Tx = (*gormTx)(nil)
