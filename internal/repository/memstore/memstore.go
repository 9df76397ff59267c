// Package memstore is an in-process repository.Store. Transactions run one at
// a time against a private copy of the data and replace the committed state
// in one step on success, so a failed transaction leaves no trace.
package memstore

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"stockledger/internal/dto"
	"stockledger/internal/model"
	"stockledger/internal/repository"

	"github.com/google/uuid"
)

type state struct {
	products map[uuid.UUID]model.Product
	history  []model.StockHistoryEntry // commit order
	sales    []model.SaleLine          // commit order
}

func (s *state) clone() *state {
	products := make(map[uuid.UUID]model.Product, len(s.products))
	for id, p := range s.products {
		products[id] = p
	}
	return &state{
		products: products,
		history:  slices.Clone(s.history),
		sales:    slices.Clone(s.sales),
	}
}

// Store keeps committed state behind an RWMutex. Committed states are never
// mutated, so readers may keep using a snapshot after releasing the lock.
type Store struct {
	writer chan struct{} // single-writer semaphore, cancellable through ctx
	mu     sync.RWMutex
	cur    *state
}

var _ repository.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		writer: make(chan struct{}, 1),
		cur:    &state{products: make(map[uuid.UUID]model.Product)},
	}
}

func (s *Store) snapshot() *state {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

func (s *Store) Products() repository.ProductRepository     { return productReader{s} }
func (s *Store) History() repository.StockHistoryRepository { return historyReader{s} }
func (s *Store) Sales() repository.SaleLineRepository       { return saleReader{s} }

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Transact(ctx context.Context, fn func(tx repository.Tx) error) error {
	select {
	case s.writer <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-s.writer }()

	work := s.snapshot().clone()
	if err := fn(&tx{st: work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.cur = work
	s.mu.Unlock()
	return nil
}

// ── Reads ────────────────────────────────────────────────────────────────────

type productReader struct{ s *Store }

func (r productReader) FindByID(_ context.Context, id uuid.UUID) (*model.Product, error) {
	p, ok := r.s.snapshot().products[id]
	if !ok {
		return nil, fmt.Errorf("%w: product %s", repository.ErrNotFound, id)
	}
	return &p, nil
}

func (r productReader) FindByIDs(_ context.Context, ids []uuid.UUID) ([]model.Product, error) {
	return lockOrder(r.s.snapshot(), ids), nil
}

func (r productReader) List(_ context.Context, filter dto.ProductFilter) ([]model.Product, int64, error) {
	st := r.s.snapshot()
	var out []model.Product
	for _, p := range st.products {
		switch filter.Status {
		case "all":
		case "":
			if p.Status != model.ProductActive {
				continue
			}
		default:
			if p.Status != filter.Status {
				continue
			}
		}
		if filter.Type != "" && p.Type != filter.Type {
			continue
		}
		if filter.LowStock && p.StockQuantity > p.MinStock {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return strings.Compare(out[i].ID.String(), out[j].ID.String()) < 0
	})
	total := int64(len(out))
	return paginate(out, filter.Page, filter.Limit), total, nil
}

type historyReader struct{ s *Store }

func (r historyReader) ListByProduct(_ context.Context, productID uuid.UUID, limit int) ([]model.StockHistoryEntry, error) {
	st := r.s.snapshot()
	var out []model.StockHistoryEntry
	for i := len(st.history) - 1; i >= 0; i-- {
		if st.history[i].ProductID != productID {
			continue
		}
		out = append(out, st.history[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

type saleReader struct{ s *Store }

func (r saleReader) FindByID(_ context.Context, id uuid.UUID) (*model.SaleLine, error) {
	for _, l := range r.s.snapshot().sales {
		if l.ID == id {
			return &l, nil
		}
	}
	return nil, fmt.Errorf("%w: sale line %s", repository.ErrNotFound, id)
}

func (r saleReader) FindByIdempotencyKey(_ context.Context, key string) ([]model.SaleLine, error) {
	out := []model.SaleLine{}
	for _, l := range r.s.snapshot().sales {
		if l.IdempotencyKey != nil && *l.IdempotencyKey == key {
			out = append(out, l)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].LineNo < out[j].LineNo })
	return out, nil
}

func (r saleReader) List(_ context.Context, filter dto.SaleFilter) ([]model.SaleLine, int64, error) {
	st := r.s.snapshot()
	out := []model.SaleLine{}
	// Lines of one transaction are stored contiguously: walk the runs from
	// newest to oldest and keep line order inside each run.
	end := len(st.sales)
	for end > 0 {
		start := end - 1
		for start > 0 && st.sales[start-1].TransactionID == st.sales[end-1].TransactionID {
			start--
		}
		for _, l := range st.sales[start:end] {
			if filter.Salesperson != "" && l.Salesperson != filter.Salesperson {
				continue
			}
			if filter.ProductID != "" && (l.ProductID == nil || l.ProductID.String() != filter.ProductID) {
				continue
			}
			if filter.Date != "" && l.CreatedAt.Format("2006-01-02") != filter.Date {
				continue
			}
			out = append(out, l)
		}
		end = start
	}
	total := int64(len(out))
	return paginate(out, filter.Page, filter.Limit), total, nil
}

// ── Helpers ──────────────────────────────────────────────────────────────────

func lockOrder(st *state, ids []uuid.UUID) []model.Product {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := []model.Product{}
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if p, ok := st.products[id]; ok {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.Compare(out[i].ID.String(), out[j].ID.String()) < 0
	})
	return out
}

func paginate[T any](rows []T, page, limit int) []T {
	if limit <= 0 {
		return rows
	}
	if page < 1 {
		page = 1
	}
	start := (page - 1) * limit
	if start >= len(rows) {
		return []T{}
	}
	end := start + limit
	if end > len(rows) {
		end = len(rows)
	}
	return rows[start:end]
}
