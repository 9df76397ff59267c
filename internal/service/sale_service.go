package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"stockledger/internal/dto"
	"stockledger/internal/model"
	"stockledger/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

type SaleService interface {
	RecordSale(ctx context.Context, req dto.RecordSaleRequest) (*dto.SaleResponse, error)
	EditSaleLine(ctx context.Context, lineID uuid.UUID, req dto.EditSaleLineRequest, actor *string) (*dto.SaleLineResponse, error)
	ListSales(ctx context.Context, filter dto.SaleFilter) (*dto.SaleListResponse, error)
}

type saleService struct {
	store    repository.Store
	clock    Clock
	policy   RetryPolicy
	notifier StockNotifier
}

func NewSaleService(store repository.Store, clock Clock, policy RetryPolicy, notifier StockNotifier) SaleService {
	if clock == nil {
		clock = SystemClock{}
	}
	return &saleService{store: store, clock: clock, policy: policy, notifier: notifier}
}

// ── RecordSale ───────────────────────────────────────────────────────────────
//   1. Validate every line; report all bad fields at once
//   2. Replay an earlier sale committed under the same idempotency key
//   3. Pre-flight: every product exists and is not archived (one batched read)
//   4. BEGIN TX: lock all products in id order, allocate against that one read,
//      one aggregate debit per product, write every sale line
//   5. COMMIT (conflicts retried per policy)
//   6. Notify (best effort)

func (s *saleService) RecordSale(ctx context.Context, req dto.RecordSaleRequest) (*dto.SaleResponse, error) {
	demands, fields := validateSale(&req)
	if fields != nil {
		return nil, validationError(fields)
	}
	salesperson := strings.TrimSpace(req.Salesperson)

	if req.IdempotencyKey != nil {
		if resp, err := s.replay(ctx, &req, demands); err != nil || resp != nil {
			return resp, err
		}
	}

	ids := uniqueProductIDs(demands)
	found, err := s.store.Products().FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	if fields := checkSellable(demands, indexProducts(found)); fields != nil {
		return nil, validationError(fields)
	}

	txID := newID()
	var committed []model.SaleLine
	var replayed *dto.SaleResponse
	err = runLedgerTx(ctx, s.store, s.policy, "record_sale", func(tx repository.Tx) error {
		committed, replayed = nil, nil
		if req.IdempotencyKey != nil {
			// a concurrent call with the same key may have committed since step 2
			resp, err := s.replay(ctx, &req, demands)
			if err != nil {
				return err
			}
			if resp != nil {
				replayed = resp
				return nil
			}
		}

		locked, err := tx.LockProducts(ids)
		if err != nil {
			return err
		}
		stock := indexProducts(locked)
		for _, id := range ids {
			if _, ok := stock[id]; !ok {
				return errRetry{notFound("product", id)}
			}
		}
		if fields := checkSellable(demands, stock); fields != nil {
			return validationError(fields)
		}

		alloc, err := allocate(demands, stock)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		for _, d := range alloc.Debits {
			p := stock[d.ProductID]
			if _, err := applyDelta(tx, &p, -d.Requested, model.ReasonSale, &salesperson, &txID, now); err != nil {
				return err
			}
		}

		lines := make([]model.SaleLine, len(req.Lines))
		for i, in := range req.Lines {
			p := stock[demands[i].ProductID]
			pid := p.ID
			lines[i] = model.SaleLine{
				ID:             newID(),
				TransactionID:  txID,
				LineNo:         i + 1,
				IdempotencyKey: req.IdempotencyKey,
				ProductID:      &pid,
				ProductName:    p.Name,
				ProductType:    p.Type,
				CustomerLabel:  strings.TrimSpace(in.CustomerLabel),
				Quantity:       in.Quantity,
				UnitPrice:      in.UnitPrice,
				Total:          lineTotal(in.UnitPrice, in.Quantity),
				Salesperson:    salesperson,
				PreviousStock:  alloc.Snapshots[i].Previous,
				NewStock:       alloc.Snapshots[i].New,
				Status:         model.SaleCompleted,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
		}
		if err := tx.AppendSaleLines(lines); err != nil {
			return err
		}
		committed = lines
		return nil
	})
	if err != nil {
		return nil, err
	}
	if replayed != nil {
		return replayed, nil
	}

	resp := saleToResponse(committed)
	log.Info().
		Str("transaction_id", resp.TransactionID).
		Str("salesperson", salesperson).
		Int("lines", len(committed)).
		Str("total", resp.TotalAmount.StringFixed(2)).
		Msg("sale committed")
	s.notify(ctx, StockChangedEvent{ProductIDs: ids, Reason: model.ReasonSale, ReferenceID: &txID})
	return resp, nil
}

// validateSale checks the request shape and returns one demand per line.
func validateSale(req *dto.RecordSaleRequest) ([]lineDemand, map[string]string) {
	fields := dto.Validate(req)
	if fields == nil {
		fields = map[string]string{}
	}
	if _, bad := fields["salesperson"]; !bad && strings.TrimSpace(req.Salesperson) == "" {
		fields["salesperson"] = "required"
	}
	demands := make([]lineDemand, len(req.Lines))
	for i, l := range req.Lines {
		prefix := fmt.Sprintf("lines[%d].", i)
		if _, bad := fields[prefix+"customer_label"]; !bad && strings.TrimSpace(l.CustomerLabel) == "" {
			fields[prefix+"customer_label"] = "required"
		}
		if _, bad := fields[prefix+"unit_price"]; !bad && !l.UnitPrice.Equal(l.UnitPrice.Round(2)) {
			fields[prefix+"unit_price"] = "max_decimals=2"
		}
		if _, bad := fields[prefix+"product_id"]; bad {
			continue
		}
		id, err := uuid.Parse(l.ProductID)
		if err != nil || id == uuid.Nil {
			fields[prefix+"product_id"] = "uuid"
			continue
		}
		demands[i] = lineDemand{ProductID: id, Quantity: l.Quantity}
	}
	if len(fields) > 0 {
		return nil, fields
	}
	return demands, nil
}

// checkSellable reports lines whose product is missing or archived.
func checkSellable(demands []lineDemand, products map[uuid.UUID]model.Product) map[string]string {
	fields := map[string]string{}
	for i, d := range demands {
		p, ok := products[d.ProductID]
		switch {
		case !ok:
			fields[fmt.Sprintf("lines[%d].product_id", i)] = "not_found"
		case p.IsArchived():
			fields[fmt.Sprintf("lines[%d].product_id", i)] = "archived"
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}

// replay returns the sale committed under req's idempotency key, or nil when
// there is none. A key reused for a different sale is a validation error.
func (s *saleService) replay(ctx context.Context, req *dto.RecordSaleRequest, demands []lineDemand) (*dto.SaleResponse, error) {
	lines, err := s.store.Sales().FindByIdempotencyKey(ctx, *req.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, nil
	}
	if !sameSale(lines, req, demands) {
		return nil, validationFailed("idempotency_key", "reused_with_different_request")
	}
	resp := saleToResponse(lines)
	resp.Replayed = true
	return resp, nil
}

// sameSale compares committed lines with a request line by line. A line whose
// product was deleted skips the product check; a corrected line only checks
// the product.
func sameSale(lines []model.SaleLine, req *dto.RecordSaleRequest, demands []lineDemand) bool {
	if len(lines) != len(req.Lines) {
		return false
	}
	salesperson := strings.TrimSpace(req.Salesperson)
	for i, l := range lines {
		in := req.Lines[i]
		if l.ProductID != nil && *l.ProductID != demands[i].ProductID {
			return false
		}
		if l.UpdatedAt.After(l.CreatedAt) {
			continue // corrected through EditSaleLine
		}
		switch {
		case l.Salesperson != salesperson,
			l.Quantity != in.Quantity,
			!l.UnitPrice.Equal(in.UnitPrice),
			l.CustomerLabel != strings.TrimSpace(in.CustomerLabel):
			return false
		}
	}
	return true
}

// ── EditSaleLine ─────────────────────────────────────────────────────────────
// Quantity changes move stock by the difference through the same write path
// as any other mutation, with reason sale-correction.

func (s *saleService) EditSaleLine(ctx context.Context, lineID uuid.UUID, req dto.EditSaleLineRequest, actor *string) (*dto.SaleLineResponse, error) {
	fields := dto.Validate(&req)
	if fields == nil {
		fields = map[string]string{}
	}
	if lineID == uuid.Nil {
		fields["id"] = "required"
	}
	if req.CustomerLabel != nil && strings.TrimSpace(*req.CustomerLabel) == "" {
		fields["customer_label"] = "required"
	}
	if _, bad := fields["unit_price"]; !bad && !req.UnitPrice.Equal(req.UnitPrice.Round(2)) {
		fields["unit_price"] = "max_decimals=2"
	}
	if len(fields) > 0 {
		return nil, validationError(fields)
	}

	var updated model.SaleLine
	var stockMoved bool
	err := runLedgerTx(ctx, s.store, s.policy, "edit_sale_line", func(tx repository.Tx) error {
		stockMoved = false
		l, err := tx.LockSaleLine(lineID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return notFound("sale line", lineID)
			}
			return err
		}

		now := s.clock.Now()
		diff := l.Quantity - req.Quantity // positive returns stock to the shelf
		if diff != 0 && l.ProductID != nil {
			locked, err := tx.LockProducts([]uuid.UUID{*l.ProductID})
			if err != nil {
				return err
			}
			// a deleted product keeps its history nowhere; only the line changes
			if len(locked) > 0 {
				ref := l.TransactionID
				if _, err := applyDelta(tx, &locked[0], diff, model.ReasonSaleCorrection, actor, &ref, now); err != nil {
					return err
				}
				stockMoved = true
			}
		}

		l.Quantity = req.Quantity
		l.UnitPrice = req.UnitPrice
		l.Total = lineTotal(req.UnitPrice, req.Quantity)
		if req.CustomerLabel != nil {
			l.CustomerLabel = strings.TrimSpace(*req.CustomerLabel)
		}
		l.UpdatedAt = now
		if err := tx.UpdateSaleLine(l); err != nil {
			return err
		}
		updated = *l
		return nil
	})
	if err != nil {
		return nil, err
	}

	if stockMoved {
		ref := updated.TransactionID
		s.notify(ctx, StockChangedEvent{ProductIDs: []uuid.UUID{*updated.ProductID}, Reason: model.ReasonSaleCorrection, ReferenceID: &ref})
	}
	resp := saleLineToResponse(&updated)
	return &resp, nil
}

// ── ListSales ────────────────────────────────────────────────────────────────

func (s *saleService) ListSales(ctx context.Context, filter dto.SaleFilter) (*dto.SaleListResponse, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = 50
	}
	if filter.Date != "" {
		if _, err := time.Parse("2006-01-02", filter.Date); err != nil {
			return nil, validationFailed("date", "datetime=2006-01-02")
		}
	}
	lines, total, err := s.store.Sales().List(ctx, filter)
	if err != nil {
		return nil, err
	}
	data := make([]dto.SaleLineResponse, 0, len(lines))
	for i := range lines {
		data = append(data, saleLineToResponse(&lines[i]))
	}
	return &dto.SaleListResponse{Data: data, Total: total, Page: filter.Page, Limit: filter.Limit}, nil
}

func (s *saleService) notify(ctx context.Context, ev StockChangedEvent) {
	if s.notifier != nil {
		s.notifier.StockChanged(ctx, ev)
	}
}

// ── Helpers ──────────────────────────────────────────────────────────────────

func lineTotal(unitPrice decimal.Decimal, quantity int) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
}

func uniqueProductIDs(demands []lineDemand) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(demands))
	ids := make([]uuid.UUID, 0, len(demands))
	for _, d := range demands {
		if !seen[d.ProductID] {
			seen[d.ProductID] = true
			ids = append(ids, d.ProductID)
		}
	}
	return ids
}

func indexProducts(products []model.Product) map[uuid.UUID]model.Product {
	m := make(map[uuid.UUID]model.Product, len(products))
	for _, p := range products {
		m[p.ID] = p
	}
	return m
}

func saleToResponse(lines []model.SaleLine) *dto.SaleResponse {
	resp := &dto.SaleResponse{
		SaleIDs:     make([]string, 0, len(lines)),
		TotalAmount: decimal.Zero,
		Lines:       make([]dto.SaleLineResponse, 0, len(lines)),
	}
	if len(lines) > 0 {
		resp.TransactionID = lines[0].TransactionID.String()
		resp.CreatedAt = lines[0].CreatedAt.Format(time.RFC3339)
	}
	for i := range lines {
		resp.SaleIDs = append(resp.SaleIDs, lines[i].ID.String())
		resp.TotalAmount = resp.TotalAmount.Add(lines[i].Total)
		resp.Lines = append(resp.Lines, saleLineToResponse(&lines[i]))
	}
	return resp
}

func saleLineToResponse(l *model.SaleLine) dto.SaleLineResponse {
	var pid *string
	if l.ProductID != nil {
		s := l.ProductID.String()
		pid = &s
	}
	return dto.SaleLineResponse{
		ID:            l.ID.String(),
		TransactionID: l.TransactionID.String(),
		LineNo:        l.LineNo,
		ProductID:     pid,
		ProductName:   l.ProductName,
		ProductType:   l.ProductType,
		CustomerLabel: l.CustomerLabel,
		Quantity:      l.Quantity,
		UnitPrice:     l.UnitPrice,
		Total:         l.Total,
		Salesperson:   l.Salesperson,
		PreviousStock: l.PreviousStock,
		NewStock:      l.NewStock,
		Status:        l.Status,
		CreatedAt:     l.CreatedAt.Format(time.RFC3339),
	}
}
