package service_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"

	"stockledger/internal/dto"
	"stockledger/internal/model"
	"stockledger/internal/repository"
	"stockledger/internal/service"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSaleService(store repository.Store, n service.StockNotifier) service.SaleService {
	return service.NewSaleService(store, testClock, testPolicy, n)
}

func line(p model.Product, qty int, price string) dto.SaleLineRequest {
	return dto.SaleLineRequest{
		ProductID:     p.ID.String(),
		CustomerLabel: "Walk-in",
		Quantity:      qty,
		UnitPrice:     decimal.RequireFromString(price),
	}
}

func TestRecordSale_SumsLinesOfSameProductBeforeChecking(t *testing.T) {
	store := newStore()
	p := seedProduct(t, store, "Layer mash", 6)
	svc := newSaleService(store, nil)

	_, err := svc.RecordSale(context.Background(), dto.RecordSaleRequest{
		Salesperson: "kojo",
		Lines:       []dto.SaleLineRequest{line(p, 3, "15.00"), line(p, 4, "15.00")},
	})
	require.ErrorIs(t, err, service.ErrInsufficientStock)

	var le *service.LedgerError
	require.True(t, errors.As(err, &le))
	require.Len(t, le.Shortfalls, 1)
	assert.Equal(t, p.ID, le.Shortfalls[0].ProductID)
	assert.Equal(t, 7, le.Shortfalls[0].Requested)
	assert.Equal(t, 6, le.Shortfalls[0].Available)
	assert.Equal(t, 1, le.Shortfalls[0].Missing)

	assert.Equal(t, 6, stockOf(t, store, p.ID))
	assert.Empty(t, allSales(t, store))
	assert.Len(t, historyOf(t, store, p.ID), 1)
}

func TestRecordSale_OneAggregateDebitPerProduct(t *testing.T) {
	store := newStore()
	p := seedProduct(t, store, "Layer mash", 10)
	notifier := &recordingNotifier{}
	svc := newSaleService(store, notifier)

	resp, err := svc.RecordSale(context.Background(), dto.RecordSaleRequest{
		Salesperson: "kojo",
		Lines:       []dto.SaleLineRequest{line(p, 3, "15.00"), line(p, 4, "14.50")},
	})
	require.NoError(t, err)
	assert.False(t, resp.Replayed)
	require.Len(t, resp.SaleIDs, 2)
	require.Len(t, resp.Lines, 2)
	assert.True(t, resp.TotalAmount.Equal(decimal.RequireFromString("103.00")), resp.TotalAmount.String())

	assert.Equal(t, 10, resp.Lines[0].PreviousStock)
	assert.Equal(t, 7, resp.Lines[0].NewStock)
	assert.Equal(t, 7, resp.Lines[1].PreviousStock)
	assert.Equal(t, 3, resp.Lines[1].NewStock)
	assert.True(t, resp.Lines[1].Total.Equal(decimal.RequireFromString("58.00")))

	assert.Equal(t, 3, stockOf(t, store, p.ID))
	hist := historyOf(t, store, p.ID)
	require.Len(t, hist, 2)
	assert.Equal(t, model.ReasonSale, hist[0].Reason)
	assert.Equal(t, -7, hist[0].Delta)
	require.NotNil(t, hist[0].ReferenceID)
	assert.Equal(t, resp.TransactionID, hist[0].ReferenceID.String())

	sales := allSales(t, store)
	require.Len(t, sales, 2)
	for _, s := range sales {
		assert.Equal(t, resp.TransactionID, s.TransactionID.String())
		assert.Equal(t, "kojo", s.Salesperson)
		assert.Equal(t, "Layer mash", s.ProductName)
		assert.Equal(t, model.SaleCompleted, s.Status)
	}

	require.Len(t, notifier.Events(), 1)
	assert.Equal(t, model.ReasonSale, notifier.Events()[0].Reason)
}

func TestRecordSale_ReportsEveryShortProduct(t *testing.T) {
	store := newStore()
	a := seedProduct(t, store, "Mash", 2)
	b := seedProduct(t, store, "Pellets", 50)
	c := seedProduct(t, store, "Crumbs", 1)
	svc := newSaleService(store, nil)

	_, err := svc.RecordSale(context.Background(), dto.RecordSaleRequest{
		Salesperson: "kojo",
		Lines:       []dto.SaleLineRequest{line(c, 2, "1.00"), line(b, 5, "1.00"), line(a, 3, "1.00")},
	})
	var le *service.LedgerError
	require.True(t, errors.As(err, &le))
	require.Equal(t, service.KindInsufficientStock, le.Kind)
	require.Len(t, le.Shortfalls, 2)
	assert.Equal(t, c.ID, le.Shortfalls[0].ProductID, "first appearance order")
	assert.Equal(t, a.ID, le.Shortfalls[1].ProductID)
	assert.ElementsMatch(t, []uuid.UUID{a.ID, c.ID}, le.ProductIDs)
	assert.Equal(t, 50, stockOf(t, store, b.ID))
}

func TestRecordSale_AggregatesValidationErrors(t *testing.T) {
	store := &faultStore{Store: newStore()}
	svc := newSaleService(store, nil)

	_, err := svc.RecordSale(context.Background(), dto.RecordSaleRequest{
		Salesperson: "   ",
		Lines: []dto.SaleLineRequest{
			{ProductID: "not-a-uuid", CustomerLabel: "A", Quantity: 1, UnitPrice: decimal.NewFromInt(1)},
			{ProductID: uuid.NewString(), CustomerLabel: " ", Quantity: 0, UnitPrice: decimal.NewFromInt(-2)},
			{ProductID: uuid.NewString(), CustomerLabel: "B", Quantity: 1, UnitPrice: decimal.RequireFromString("1.005")},
		},
	})
	var le *service.LedgerError
	require.True(t, errors.As(err, &le))
	require.Equal(t, service.KindValidationFailed, le.Kind)
	assert.Contains(t, le.Fields, "salesperson")
	assert.Contains(t, le.Fields, "lines[0].product_id")
	assert.Contains(t, le.Fields, "lines[1].customer_label")
	assert.Contains(t, le.Fields, "lines[1].quantity")
	assert.Contains(t, le.Fields, "lines[1].unit_price")
	assert.Equal(t, "max_decimals=2", le.Fields["lines[2].unit_price"])
	assert.Zero(t, store.Attempts())

	_, err = svc.RecordSale(context.Background(), dto.RecordSaleRequest{Salesperson: "kojo"})
	require.True(t, errors.As(err, &le))
	assert.Contains(t, le.Fields, "lines")
}

func TestRecordSale_UnknownAndArchivedProductsFailValidation(t *testing.T) {
	store := newStore()
	ctx := context.Background()
	products := service.NewProductService(store, testClock, testPolicy, nil)
	svc := newSaleService(store, nil)

	// never sold: Remove deletes it outright
	gone := seedProduct(t, store, "Old feed", 10)
	out, err := products.Remove(ctx, gone.ID)
	require.NoError(t, err)
	require.Equal(t, service.OutcomeDeleted, out.Outcome)

	// sold once: Remove archives it
	sold := seedProduct(t, store, "Sold feed", 10)
	_, err = svc.RecordSale(ctx, dto.RecordSaleRequest{Salesperson: "kojo", Lines: []dto.SaleLineRequest{line(sold, 1, "2.00")}})
	require.NoError(t, err)
	out, err = products.Remove(ctx, sold.ID)
	require.NoError(t, err)
	require.Equal(t, service.OutcomeArchived, out.Outcome)

	_, err = svc.RecordSale(ctx, dto.RecordSaleRequest{
		Salesperson: "kojo",
		Lines:       []dto.SaleLineRequest{line(gone, 1, "2.00"), line(sold, 1, "2.00")},
	})
	var le *service.LedgerError
	require.True(t, errors.As(err, &le))
	require.Equal(t, service.KindValidationFailed, le.Kind)
	assert.Equal(t, "not_found", le.Fields["lines[0].product_id"])
	assert.Equal(t, "archived", le.Fields["lines[1].product_id"])
	assert.Equal(t, 9, stockOf(t, store, sold.ID))
}

func TestRecordSale_FailureAfterDebitLeavesNoTrace(t *testing.T) {
	base := newStore()
	a := seedProduct(t, base, "Mash", 10)
	b := seedProduct(t, base, "Pellets", 10)
	store := &faultStore{Store: base, wrap: func(_ int, tx repository.Tx) repository.Tx {
		return failingTx{Tx: tx, failSaleLines: errors.New("connection reset")}
	}}
	svc := newSaleService(store, nil)

	_, err := svc.RecordSale(context.Background(), dto.RecordSaleRequest{
		Salesperson: "kojo",
		Lines:       []dto.SaleLineRequest{line(a, 2, "1.00"), line(b, 3, "1.00")},
	})
	require.Error(t, err)
	assert.Equal(t, 10, stockOf(t, base, a.ID))
	assert.Equal(t, 10, stockOf(t, base, b.ID))
	assert.Len(t, historyOf(t, base, a.ID), 1)
	assert.Len(t, historyOf(t, base, b.ID), 1)
	assert.Empty(t, allSales(t, base))
}

func TestRecordSale_RetryAfterAbortDebitsOnce(t *testing.T) {
	base := newStore()
	p := seedProduct(t, base, "Mash", 10)
	conflict := fmt.Errorf("%w: could not serialize access", repository.ErrConflict)
	store := &faultStore{Store: base, wrap: func(attempt int, tx repository.Tx) repository.Tx {
		if attempt == 1 {
			return failingTx{Tx: tx, failSaleLines: conflict}
		}
		return tx
	}}
	svc := newSaleService(store, nil)

	resp, err := svc.RecordSale(context.Background(), dto.RecordSaleRequest{
		Salesperson: "kojo",
		Lines:       []dto.SaleLineRequest{line(p, 4, "1.00")},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, store.Attempts())
	assert.Equal(t, 6, stockOf(t, base, p.ID))
	assert.Len(t, allSales(t, base), 1)
	assert.Len(t, historyOf(t, base, p.ID), 2)
	assert.Equal(t, 10, resp.Lines[0].PreviousStock)
}

func TestRecordSale_IdempotencyKeyReplaysResult(t *testing.T) {
	store := newStore()
	p := seedProduct(t, store, "Mash", 10)
	svc := newSaleService(store, nil)
	req := dto.RecordSaleRequest{
		Salesperson:    "kojo",
		Lines:          []dto.SaleLineRequest{line(p, 2, "3.00"), line(p, 1, "3.00")},
		IdempotencyKey: ptr("till-1-0007"),
	}

	first, err := svc.RecordSale(context.Background(), req)
	require.NoError(t, err)
	second, err := svc.RecordSale(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, second.Replayed)
	assert.Equal(t, first.TransactionID, second.TransactionID)
	assert.Equal(t, first.SaleIDs, second.SaleIDs)
	assert.True(t, first.TotalAmount.Equal(second.TotalAmount))
	assert.Equal(t, 7, stockOf(t, store, p.ID))
	assert.Len(t, allSales(t, store), 2)
}

func TestRecordSale_ReusedKeyWithDifferentSaleIsRejected(t *testing.T) {
	store := newStore()
	p := seedProduct(t, store, "Mash", 10)
	other := seedProduct(t, store, "Pellets", 10)
	svc := newSaleService(store, nil)
	ctx := context.Background()
	key := ptr("till-1-0008")

	_, err := svc.RecordSale(ctx, dto.RecordSaleRequest{Salesperson: "kojo", IdempotencyKey: key,
		Lines: []dto.SaleLineRequest{line(p, 2, "3.00")}})
	require.NoError(t, err)

	changed := []dto.RecordSaleRequest{
		{Salesperson: "kojo", IdempotencyKey: key, Lines: []dto.SaleLineRequest{line(p, 5, "3.00")}},
		{Salesperson: "kojo", IdempotencyKey: key, Lines: []dto.SaleLineRequest{line(other, 2, "3.00")}},
		{Salesperson: "kojo", IdempotencyKey: key, Lines: []dto.SaleLineRequest{line(p, 2, "4.00")}},
		{Salesperson: "esi", IdempotencyKey: key, Lines: []dto.SaleLineRequest{line(p, 2, "3.00")}},
		{Salesperson: "kojo", IdempotencyKey: key, Lines: []dto.SaleLineRequest{line(p, 2, "3.00"), line(p, 1, "3.00")}},
	}
	for i, req := range changed {
		_, err := svc.RecordSale(ctx, req)
		require.ErrorIs(t, err, service.ErrValidationFailed, "request %d", i)
		var le *service.LedgerError
		require.True(t, errors.As(err, &le))
		assert.Contains(t, le.Fields, "idempotency_key")
	}

	assert.Equal(t, 8, stockOf(t, store, p.ID))
	assert.Equal(t, 10, stockOf(t, store, other.ID))
	assert.Len(t, allSales(t, store), 1)
}

func TestRecordSale_OversizedQuantitiesAreRejected(t *testing.T) {
	store := newStore()
	p := seedProduct(t, store, "Mash", 10)
	svc := newSaleService(store, nil)

	_, err := svc.RecordSale(context.Background(), dto.RecordSaleRequest{
		Salesperson: "kojo",
		Lines:       []dto.SaleLineRequest{line(p, math.MaxInt, "1.00"), line(p, math.MaxInt, "1.00")},
	})
	require.ErrorIs(t, err, service.ErrValidationFailed)
	var le *service.LedgerError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, "max", le.Fields["lines[0].quantity"])
	assert.Equal(t, "max", le.Fields["lines[1].quantity"])

	assert.Equal(t, 10, stockOf(t, store, p.ID))
	assert.Empty(t, allSales(t, store))
	assert.Len(t, historyOf(t, store, p.ID), 1)

	_, err = svc.RecordSale(context.Background(), dto.RecordSaleRequest{
		Salesperson: "kojo",
		Lines:       []dto.SaleLineRequest{line(p, dto.MaxQuantity, "1.00"), line(p, dto.MaxQuantity, "1.00")},
	})
	require.ErrorIs(t, err, service.ErrInsufficientStock)
	require.True(t, errors.As(err, &le))
	assert.Equal(t, 2*dto.MaxQuantity, le.Shortfalls[0].Requested)
	assert.Equal(t, 10, stockOf(t, store, p.ID))
}

func TestRecordSale_VanishedProductIsRetriedThenNotFound(t *testing.T) {
	base := newStore()
	p := seedProduct(t, base, "Mash", 10)
	store := &faultStore{Store: base, wrap: func(_ int, tx repository.Tx) repository.Tx {
		return hidingTx{Tx: tx, hidden: p.ID}
	}}
	svc := newSaleService(store, nil)

	_, err := svc.RecordSale(context.Background(), dto.RecordSaleRequest{
		Salesperson: "kojo",
		Lines:       []dto.SaleLineRequest{line(p, 1, "1.00")},
	})
	require.ErrorIs(t, err, service.ErrNotFound)
	assert.Equal(t, testPolicy.MaxAttempts, store.Attempts())
	assert.Equal(t, 10, stockOf(t, base, p.ID))
}

func TestRecordSale_VanishedProductReappearsOnRetry(t *testing.T) {
	base := newStore()
	p := seedProduct(t, base, "Mash", 10)
	store := &faultStore{Store: base, wrap: func(attempt int, tx repository.Tx) repository.Tx {
		if attempt == 1 {
			return hidingTx{Tx: tx, hidden: p.ID}
		}
		return tx
	}}
	svc := newSaleService(store, nil)

	_, err := svc.RecordSale(context.Background(), dto.RecordSaleRequest{
		Salesperson: "kojo",
		Lines:       []dto.SaleLineRequest{line(p, 1, "1.00")},
	})
	require.NoError(t, err)
	assert.Equal(t, 9, stockOf(t, base, p.ID))
}

func TestRecordSale_ConcurrentSalesNeverOversell(t *testing.T) {
	store := newStore()
	p := seedProduct(t, store, "Mash", 10)
	svc := newSaleService(store, nil)

	const buyers = 25
	var wg sync.WaitGroup
	var mu sync.Mutex
	sold, rejected := 0, 0
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.RecordSale(context.Background(), dto.RecordSaleRequest{
				Salesperson: "kojo",
				Lines:       []dto.SaleLineRequest{line(p, 1, "1.00")},
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				sold++
			} else if errors.Is(err, service.ErrInsufficientStock) {
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, sold)
	assert.Equal(t, buyers-10, rejected)
	assert.Equal(t, 0, stockOf(t, store, p.ID))
	assert.Len(t, historyOf(t, store, p.ID), 11)
}

func TestEditSaleLine_MovesStockByDifference(t *testing.T) {
	store := newStore()
	p := seedProduct(t, store, "Mash", 10)
	svc := newSaleService(store, nil)
	ctx := context.Background()

	sale, err := svc.RecordSale(ctx, dto.RecordSaleRequest{Salesperson: "kojo", Lines: []dto.SaleLineRequest{line(p, 4, "2.50")}})
	require.NoError(t, err)
	lineID := uuid.MustParse(sale.SaleIDs[0])

	edited, err := svc.EditSaleLine(ctx, lineID, dto.EditSaleLineRequest{Quantity: 1, UnitPrice: decimal.RequireFromString("3.00"), CustomerLabel: ptr("Mrs. Boateng")}, ptr("kojo"))
	require.NoError(t, err)
	assert.Equal(t, 1, edited.Quantity)
	assert.True(t, edited.Total.Equal(decimal.RequireFromString("3.00")))
	assert.Equal(t, "Mrs. Boateng", edited.CustomerLabel)
	assert.Equal(t, 9, stockOf(t, store, p.ID))

	hist := historyOf(t, store, p.ID)
	assert.Equal(t, model.ReasonSaleCorrection, hist[0].Reason)
	assert.Equal(t, 3, hist[0].Delta)

	_, err = svc.EditSaleLine(ctx, lineID, dto.EditSaleLineRequest{Quantity: 20, UnitPrice: decimal.NewFromInt(3)}, nil)
	require.ErrorIs(t, err, service.ErrInsufficientStock)
	assert.Equal(t, 9, stockOf(t, store, p.ID))

	_, err = svc.EditSaleLine(ctx, uuid.New(), dto.EditSaleLineRequest{Quantity: 1, UnitPrice: decimal.NewFromInt(3)}, nil)
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestListSales_FiltersAndPaginates(t *testing.T) {
	store := newStore()
	a := seedProduct(t, store, "Mash", 30)
	b := seedProduct(t, store, "Pellets", 30)
	svc := newSaleService(store, nil)
	ctx := context.Background()

	_, err := svc.RecordSale(ctx, dto.RecordSaleRequest{Salesperson: "kojo", Lines: []dto.SaleLineRequest{line(a, 1, "1.00"), line(b, 1, "1.00")}})
	require.NoError(t, err)
	_, err = svc.RecordSale(ctx, dto.RecordSaleRequest{Salesperson: "esi", Lines: []dto.SaleLineRequest{line(a, 2, "1.00")}})
	require.NoError(t, err)

	all, err := svc.ListSales(ctx, dto.SaleFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 3, all.Total)
	assert.Equal(t, "esi", all.Data[0].Salesperson, "newest sale first")

	byKojo, err := svc.ListSales(ctx, dto.SaleFilter{Salesperson: "kojo"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, byKojo.Total)
	assert.Equal(t, 1, byKojo.Data[0].LineNo)

	byProduct, err := svc.ListSales(ctx, dto.SaleFilter{ProductID: a.ID.String(), Limit: 1})
	require.NoError(t, err)
	assert.EqualValues(t, 2, byProduct.Total)
	assert.Len(t, byProduct.Data, 1)

	_, err = svc.ListSales(ctx, dto.SaleFilter{Date: "01/05/2024"})
	assert.ErrorIs(t, err, service.ErrValidationFailed)
}
