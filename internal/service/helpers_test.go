package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"stockledger/internal/dto"
	"stockledger/internal/model"
	"stockledger/internal/repository"
	"stockledger/internal/repository/memstore"
	"stockledger/internal/service"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// ── Fixtures ─────────────────────────────────────────────────────────────────

var testPolicy = service.RetryPolicy{MaxAttempts: 3, Backoff: time.Millisecond, Timeout: 2 * time.Second}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var testClock = fixedClock{t: time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)}

func ptr[T any](v T) *T { return &v }

// seedProduct creates an active product through ProductService so that its
// initial-stock history entry exists, exactly like production data.
func seedProduct(t *testing.T, store repository.Store, name string, qty int) model.Product {
	t.Helper()
	svc := service.NewProductService(store, testClock, testPolicy, nil)
	resp, err := svc.Create(context.Background(), dto.CreateProductRequest{
		Name:          name,
		Type:          "feed",
		Price:         ptr(decimal.RequireFromString("12.50")),
		Unit:          "bag",
		StockQuantity: qty,
		MinStock:      2,
		MaxStock:      50,
	}, ptr("seed"))
	require.NoError(t, err)
	p, err := store.Products().FindByID(context.Background(), uuid.MustParse(resp.ID))
	require.NoError(t, err)
	return *p
}

// seedRaw inserts a product as-is, bypassing validation (for integrity tests).
func seedRaw(t *testing.T, store repository.Store, p model.Product) {
	t.Helper()
	require.NoError(t, store.Transact(context.Background(), func(tx repository.Tx) error {
		return tx.CreateProduct(&p)
	}))
}

func stockOf(t *testing.T, store repository.Store, id uuid.UUID) int {
	t.Helper()
	p, err := store.Products().FindByID(context.Background(), id)
	require.NoError(t, err)
	return p.StockQuantity
}

func historyOf(t *testing.T, store repository.Store, id uuid.UUID) []model.StockHistoryEntry {
	t.Helper()
	entries, err := store.History().ListByProduct(context.Background(), id, 0)
	require.NoError(t, err)
	return entries
}

func allSales(t *testing.T, store repository.Store) []model.SaleLine {
	t.Helper()
	lines, _, err := store.Sales().List(context.Background(), dto.SaleFilter{})
	require.NoError(t, err)
	return lines
}

// ── Fault injection ──────────────────────────────────────────────────────────

// faultStore wraps a real store and lets a test tamper with each attempt.
type faultStore struct {
	repository.Store

	mu       sync.Mutex
	attempts int
	// before runs ahead of the attempt; a non-nil error aborts it.
	before func(attempt int) error
	// wrap decorates the transaction handed to the ledger code.
	wrap func(attempt int, tx repository.Tx) repository.Tx
}

func (s *faultStore) Transact(ctx context.Context, fn func(tx repository.Tx) error) error {
	s.mu.Lock()
	s.attempts++
	attempt := s.attempts
	s.mu.Unlock()

	if s.before != nil {
		if err := s.before(attempt); err != nil {
			return err
		}
	}
	return s.Store.Transact(ctx, func(tx repository.Tx) error {
		if s.wrap != nil {
			tx = s.wrap(attempt, tx)
		}
		return fn(tx)
	})
}

func (s *faultStore) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// failingTx fails one write with err after the real write has been staged,
// so the test proves the staged write is rolled back.
type failingTx struct {
	repository.Tx
	failHistory   error
	failSaleLines error
}

func (t failingTx) AppendHistory(entries []model.StockHistoryEntry) error {
	if err := t.Tx.AppendHistory(entries); err != nil {
		return err
	}
	return t.failHistory
}

func (t failingTx) AppendSaleLines(lines []model.SaleLine) error {
	if err := t.Tx.AppendSaleLines(lines); err != nil {
		return err
	}
	return t.failSaleLines
}

// hidingTx makes LockProducts behave as if the given product was deleted.
type hidingTx struct {
	repository.Tx
	hidden uuid.UUID
}

func (t hidingTx) LockProducts(ids []uuid.UUID) ([]model.Product, error) {
	products, err := t.Tx.LockProducts(ids)
	if err != nil {
		return nil, err
	}
	out := products[:0]
	for _, p := range products {
		if p.ID != t.hidden {
			out = append(out, p)
		}
	}
	return out, nil
}

// recordingNotifier captures post-commit events.
type recordingNotifier struct {
	mu     sync.Mutex
	events []service.StockChangedEvent
}

func (n *recordingNotifier) StockChanged(_ context.Context, ev service.StockChangedEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *recordingNotifier) Events() []service.StockChangedEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]service.StockChangedEvent(nil), n.events...)
}

func newStore() *memstore.Store { return memstore.New() }
