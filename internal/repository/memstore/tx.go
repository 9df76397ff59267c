package memstore

import (
	"errors"
	"fmt"

	"stockledger/internal/model"
	"stockledger/internal/repository"

	"github.com/google/uuid"
)

var errNegativeStock = errors.New("memstore: stock_quantity must be >= 0")

// tx mutates a private copy of the state; Store.Transact publishes it on success.
type tx struct{ st *state }

var _ repository.Tx = (*tx)(nil)

func (t *tx) LockProducts(ids []uuid.UUID) ([]model.Product, error) {
	return lockOrder(t.st, ids), nil
}

func (t *tx) CreateProduct(p *model.Product) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if _, exists := t.st.products[p.ID]; exists {
		return fmt.Errorf("%w: product %s already exists", repository.ErrConflict, p.ID)
	}
	if p.StockQuantity < 0 {
		return errNegativeStock
	}
	t.st.products[p.ID] = *p
	return nil
}

func (t *tx) UpdateStock(p *model.Product) error {
	cur, ok := t.st.products[p.ID]
	if !ok {
		return fmt.Errorf("%w: product %s", repository.ErrNotFound, p.ID)
	}
	if p.StockQuantity < 0 {
		return errNegativeStock
	}
	cur.StockQuantity = p.StockQuantity
	cur.InventoryValue = p.InventoryValue
	cur.StockTrend = p.StockTrend
	cur.UpdatedAt = p.UpdatedAt
	t.st.products[p.ID] = cur
	return nil
}

func (t *tx) UpdateStatus(p *model.Product) error {
	cur, ok := t.st.products[p.ID]
	if !ok {
		return fmt.Errorf("%w: product %s", repository.ErrNotFound, p.ID)
	}
	cur.Status = p.Status
	cur.UpdatedAt = p.UpdatedAt
	t.st.products[p.ID] = cur
	return nil
}

func (t *tx) DeleteProduct(id uuid.UUID) error {
	if _, ok := t.st.products[id]; !ok {
		return fmt.Errorf("%w: product %s", repository.ErrNotFound, id)
	}
	delete(t.st.products, id)

	kept := t.st.history[:0]
	for _, e := range t.st.history {
		if e.ProductID != id {
			kept = append(kept, e)
		}
	}
	t.st.history = kept

	for i := range t.st.sales {
		if pid := t.st.sales[i].ProductID; pid != nil && *pid == id {
			t.st.sales[i].ProductID = nil
		}
	}
	return nil
}

func (t *tx) AppendHistory(entries []model.StockHistoryEntry) error {
	for _, e := range entries {
		if _, ok := t.st.products[e.ProductID]; !ok {
			return fmt.Errorf("%w: product %s", repository.ErrNotFound, e.ProductID)
		}
	}
	t.st.history = append(t.st.history, entries...)
	return nil
}

func (t *tx) CountSaleLines(productID uuid.UUID) (int64, error) {
	var n int64
	for _, l := range t.st.sales {
		if l.ProductID != nil && *l.ProductID == productID {
			n++
		}
	}
	return n, nil
}

func (t *tx) AppendSaleLines(lines []model.SaleLine) error {
	for _, l := range lines {
		if l.IdempotencyKey == nil {
			continue
		}
		for _, existing := range t.st.sales {
			if existing.IdempotencyKey != nil && *existing.IdempotencyKey == *l.IdempotencyKey && existing.LineNo == l.LineNo {
				return fmt.Errorf("%w: duplicate idempotency key %q", repository.ErrConflict, *l.IdempotencyKey)
			}
		}
	}
	t.st.sales = append(t.st.sales, lines...)
	return nil
}

func (t *tx) LockSaleLine(id uuid.UUID) (*model.SaleLine, error) {
	for _, l := range t.st.sales {
		if l.ID == id {
			return &l, nil
		}
	}
	return nil, fmt.Errorf("%w: sale line %s", repository.ErrNotFound, id)
}

func (t *tx) UpdateSaleLine(l *model.SaleLine) error {
	for i := range t.st.sales {
		if t.st.sales[i].ID != l.ID {
			continue
		}
		cur := &t.st.sales[i]
		cur.CustomerLabel = l.CustomerLabel
		cur.Quantity = l.Quantity
		cur.UnitPrice = l.UnitPrice
		cur.Total = l.Total
		cur.UpdatedAt = l.UpdatedAt
		return nil
	}
	return fmt.Errorf("%w: sale line %s", repository.ErrNotFound, l.ID)
}
