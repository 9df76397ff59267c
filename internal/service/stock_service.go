package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"stockledger/internal/dto"
	"stockledger/internal/model"
	"stockledger/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	DefaultHistoryLimit = 100
	MaxHistoryLimit     = 500
)

// StockChange carries exactly one of an absolute target or a signed delta.
type StockChange struct {
	Target *int
	Delta  *int
}

func TargetQuantity(q int) StockChange { return StockChange{Target: &q} }
func DeltaQuantity(d int) StockChange  { return StockChange{Delta: &d} }

// StockChangedEvent is published after a stock mutation commits.
type StockChangedEvent struct {
	ProductIDs  []uuid.UUID
	Reason      string
	ReferenceID *uuid.UUID
}

// StockNotifier receives committed stock changes. Delivery is best effort and
// never affects the outcome of the mutation that triggered it.
type StockNotifier interface {
	StockChanged(ctx context.Context, ev StockChangedEvent)
}

// StockService owns single-product stock mutations and the history log reads.
type StockService interface {
	ApplyStockDelta(ctx context.Context, productID uuid.UUID, change StockChange, reason string, actor *string) (*dto.StockMutationResponse, error)
	GetStockHistory(ctx context.Context, productID uuid.UUID, limit int) (*dto.StockHistoryResponse, error)
}

type stockService struct {
	store    repository.Store
	clock    Clock
	policy   RetryPolicy
	notifier StockNotifier
}

func NewStockService(store repository.Store, clock Clock, policy RetryPolicy, notifier StockNotifier) StockService {
	if clock == nil {
		clock = SystemClock{}
	}
	return &stockService{store: store, clock: clock, policy: policy, notifier: notifier}
}

// ── ApplyStockDelta ──────────────────────────────────────────────────────────
//   1. Validate the request shape (no store access)
//   2. BEGIN TX: lock product, normalize target/delta against the locked quantity
//   3. Write quantity + derived fields and append one history entry
//   4. COMMIT (conflicts retried per policy)
//   5. Notify (best effort)

func (s *stockService) ApplyStockDelta(ctx context.Context, productID uuid.UUID, change StockChange, reason string, actor *string) (*dto.StockMutationResponse, error) {
	if fields := validateStockChange(productID, change, reason); fields != nil {
		return nil, validationError(fields)
	}
	reason = strings.TrimSpace(reason)

	var result dto.StockMutationResponse
	err := runLedgerTx(ctx, s.store, s.policy, "apply_stock_delta", func(tx repository.Tx) error {
		locked, err := tx.LockProducts([]uuid.UUID{productID})
		if err != nil {
			return err
		}
		if len(locked) == 0 {
			return notFound("product", productID)
		}
		p := &locked[0]

		delta := 0
		if change.Target != nil {
			delta = *change.Target - p.StockQuantity
		} else {
			delta = *change.Delta
		}
		if delta == 0 {
			// target equals the current quantity: nothing to record
			result = dto.StockMutationResponse{
				ProductID:        productID.String(),
				PreviousQuantity: p.StockQuantity,
				NewQuantity:      p.StockQuantity,
			}
			return nil
		}

		entry, err := applyDelta(tx, p, delta, reason, actor, nil, s.clock.Now())
		if err != nil {
			return err
		}
		result = dto.StockMutationResponse{
			ProductID:        productID.String(),
			PreviousQuantity: entry.PreviousQuantity,
			NewQuantity:      entry.NewQuantity,
			Delta:            entry.Delta,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Delta != 0 {
		log.Info().
			Str("product_id", result.ProductID).
			Int("previous", result.PreviousQuantity).
			Int("new", result.NewQuantity).
			Str("reason", reason).
			Msg("stock mutation committed")
		s.notify(ctx, StockChangedEvent{ProductIDs: []uuid.UUID{productID}, Reason: reason})
	}
	return &result, nil
}

func validateStockChange(productID uuid.UUID, change StockChange, reason string) map[string]string {
	fields := map[string]string{}
	if productID == uuid.Nil {
		fields["product_id"] = "required"
	}
	if strings.TrimSpace(reason) == "" {
		fields["reason"] = "required"
	}
	switch {
	case change.Target == nil && change.Delta == nil:
		fields["target"] = "required_without=delta"
	case change.Target != nil && change.Delta != nil:
		fields["target"] = "excluded_with=delta"
	case change.Target != nil && *change.Target < 0:
		fields["target"] = "min=0"
	case change.Target != nil && *change.Target > dto.MaxQuantity:
		fields["target"] = "max=1000000"
	case change.Delta != nil && *change.Delta == 0:
		fields["delta"] = "ne=0"
	case change.Delta != nil && (*change.Delta > dto.MaxQuantity || *change.Delta < -dto.MaxQuantity):
		fields["delta"] = "max=1000000"
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}

// applyDelta is the only code path that writes a product's stock. p must have
// been locked in tx. It never clamps: a result below zero is reported as
// InsufficientStock and nothing is written.
func applyDelta(tx repository.Tx, p *model.Product, delta int, reason string, actor *string, ref *uuid.UUID, now time.Time) (model.StockHistoryEntry, error) {
	if !p.Price.Valid || p.Price.Decimal.IsNegative() {
		return model.StockHistoryEntry{}, invalidState(p.ID, "product "+p.ID.String()+" has no valid price")
	}
	previous := p.StockQuantity
	if delta > 0 && delta > math.MaxInt-previous {
		return model.StockHistoryEntry{}, validationFailed("delta", "overflow")
	}
	next := previous + delta
	if next < 0 {
		return model.StockHistoryEntry{}, insufficientStock([]Shortfall{{
			ProductID:   p.ID,
			ProductName: p.Name,
			Requested:   -delta,
			Available:   previous,
			Missing:     -next,
		}})
	}

	p.StockQuantity = next
	p.InventoryValue = InventoryValue(p.Price, next)
	p.StockTrend = ComputeStockTrend(previous, next)
	p.UpdatedAt = now
	if err := tx.UpdateStock(p); err != nil {
		return model.StockHistoryEntry{}, err
	}

	entry := model.StockHistoryEntry{
		ID:               newID(),
		ProductID:        p.ID,
		PreviousQuantity: previous,
		NewQuantity:      next,
		Delta:            delta,
		Reason:           reason,
		Actor:            actor,
		ReferenceID:      ref,
		CreatedAt:        now,
	}
	if err := tx.AppendHistory([]model.StockHistoryEntry{entry}); err != nil {
		return model.StockHistoryEntry{}, err
	}
	return entry, nil
}

// ── GetStockHistory ──────────────────────────────────────────────────────────

func (s *stockService) GetStockHistory(ctx context.Context, productID uuid.UUID, limit int) (*dto.StockHistoryResponse, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	if _, err := s.store.Products().FindByID(ctx, productID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound("product", productID)
		}
		return nil, err
	}
	entries, err := s.store.History().ListByProduct(ctx, productID, limit)
	if err != nil {
		return nil, err
	}
	items := make([]dto.StockHistoryItem, 0, len(entries))
	for i := range entries {
		items = append(items, historyToItem(&entries[i]))
	}
	return &dto.StockHistoryResponse{ProductID: productID.String(), Data: items, Limit: limit}, nil
}

func (s *stockService) notify(ctx context.Context, ev StockChangedEvent) {
	if s.notifier != nil {
		s.notifier.StockChanged(ctx, ev)
	}
}

func historyToItem(e *model.StockHistoryEntry) dto.StockHistoryItem {
	item := dto.StockHistoryItem{
		ID:               e.ID.String(),
		ProductID:        e.ProductID.String(),
		PreviousQuantity: e.PreviousQuantity,
		NewQuantity:      e.NewQuantity,
		Delta:            e.Delta,
		Reason:           e.Reason,
		Actor:            e.Actor,
		CreatedAt:        e.CreatedAt.Format(time.RFC3339Nano),
	}
	if e.ReferenceID != nil {
		ref := e.ReferenceID.String()
		item.ReferenceID = &ref
	}
	return item
}

// newID returns a time-ordered id so history and sale rows written in the
// same instant still sort in write order.
func newID() uuid.UUID { return uuid.Must(uuid.NewV7()) }
