package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"stockledger/internal/dto"
	"stockledger/internal/model"
	"stockledger/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const (
	OutcomeArchived = "archived"
	OutcomeDeleted  = "deleted"
)

// ProductService manages the catalog side of the ledger: creation with
// opening stock, removal, and the read models built on derived metrics.
type ProductService interface {
	Create(ctx context.Context, req dto.CreateProductRequest, actor *string) (*dto.ProductResponse, error)
	Get(ctx context.Context, id uuid.UUID) (*dto.ProductResponse, error)
	List(ctx context.Context, filter dto.ProductFilter) (*dto.ProductListResponse, error)
	Metrics(ctx context.Context, id uuid.UUID) (*dto.MetricsResponse, error)
	Remove(ctx context.Context, id uuid.UUID) (*dto.RemoveProductResponse, error)
	Alerts(ctx context.Context) ([]dto.StockAlertResponse, error)
	Summary(ctx context.Context) (*dto.InventorySummaryResponse, error)
}

type productService struct {
	store    repository.Store
	clock    Clock
	policy   RetryPolicy
	notifier StockNotifier
}

func NewProductService(store repository.Store, clock Clock, policy RetryPolicy, notifier StockNotifier) ProductService {
	if clock == nil {
		clock = SystemClock{}
	}
	return &productService{store: store, clock: clock, policy: policy, notifier: notifier}
}

// Create writes the product and its initial-stock history entry in one
// transaction, so replaying history from zero always reproduces stock.
func (s *productService) Create(ctx context.Context, req dto.CreateProductRequest, actor *string) (*dto.ProductResponse, error) {
	if fields := validateCreateProduct(&req); fields != nil {
		return nil, validationError(fields)
	}

	now := s.clock.Now()
	price := decimal.NewNullDecimal(*req.Price)
	unit := strings.TrimSpace(req.Unit)
	if unit == "" {
		unit = "unit"
	}
	p := model.Product{
		ID:             uuid.New(),
		Name:           strings.TrimSpace(req.Name),
		Type:           strings.TrimSpace(req.Type),
		Price:          price,
		Unit:           unit,
		StockQuantity:  req.StockQuantity,
		MinStock:       req.MinStock,
		MaxStock:       req.MaxStock,
		InventoryValue: InventoryValue(price, req.StockQuantity),
		StockTrend:     decimal.Zero,
		Status:         model.ProductActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err := runLedgerTx(ctx, s.store, s.policy, "create_product", func(tx repository.Tx) error {
		created := p
		if err := tx.CreateProduct(&created); err != nil {
			return err
		}
		return tx.AppendHistory([]model.StockHistoryEntry{{
			ID:               newID(),
			ProductID:        p.ID,
			PreviousQuantity: 0,
			NewQuantity:      p.StockQuantity,
			Delta:            p.StockQuantity,
			Reason:           model.ReasonInitialStock,
			Actor:            actor,
			CreatedAt:        now,
		}})
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("product_id", p.ID.String()).Str("name", p.Name).Int("stock", p.StockQuantity).Msg("product created")
	resp := productToResponse(&p)
	return &resp, nil
}

func validateCreateProduct(req *dto.CreateProductRequest) map[string]string {
	fields := dto.Validate(req)
	if fields == nil {
		fields = map[string]string{}
	}
	if _, bad := fields["name"]; !bad && strings.TrimSpace(req.Name) == "" {
		fields["name"] = "required"
	}
	if _, bad := fields["type"]; !bad && strings.TrimSpace(req.Type) == "" {
		fields["type"] = "required"
	}
	switch {
	case req.Price == nil:
		fields["price"] = "required"
	case req.Price.IsNegative():
		fields["price"] = "min=0"
	case !req.Price.Equal(req.Price.Round(2)):
		fields["price"] = "max_decimals=2"
	}
	_, badMin := fields["min_stock"]
	_, badMax := fields["max_stock"]
	if !badMin && !badMax && req.MaxStock <= req.MinStock {
		fields["max_stock"] = "gtfield=min_stock"
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}

func (s *productService) Get(ctx context.Context, id uuid.UUID) (*dto.ProductResponse, error) {
	p, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := productToResponse(p)
	return &resp, nil
}

func (s *productService) Metrics(ctx context.Context, id uuid.UUID) (*dto.MetricsResponse, error) {
	p, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	m := GetDerivedMetrics(p)
	return &m, nil
}

func (s *productService) List(ctx context.Context, filter dto.ProductFilter) (*dto.ProductListResponse, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = 50
	}
	products, total, err := s.store.Products().List(ctx, filter)
	if err != nil {
		return nil, err
	}
	data := make([]dto.ProductResponse, 0, len(products))
	for i := range products {
		data = append(data, productToResponse(&products[i]))
	}
	return &dto.ProductListResponse{
		Data:       data,
		Total:      total,
		Page:       filter.Page,
		Limit:      filter.Limit,
		TotalPages: int((total + int64(filter.Limit) - 1) / int64(filter.Limit)),
	}, nil
}

// Remove archives a product that appears on sale lines and deletes it (with
// its history) otherwise.
func (s *productService) Remove(ctx context.Context, id uuid.UUID) (*dto.RemoveProductResponse, error) {
	outcome := ""
	err := runLedgerTx(ctx, s.store, s.policy, "remove_product", func(tx repository.Tx) error {
		locked, err := tx.LockProducts([]uuid.UUID{id})
		if err != nil {
			return err
		}
		if len(locked) == 0 {
			return notFound("product", id)
		}
		p := &locked[0]

		sold, err := tx.CountSaleLines(id)
		if err != nil {
			return err
		}
		if sold == 0 {
			outcome = OutcomeDeleted
			return tx.DeleteProduct(id)
		}
		outcome = OutcomeArchived
		if p.IsArchived() {
			return nil
		}
		p.Status = model.ProductArchived
		p.UpdatedAt = s.clock.Now()
		return tx.UpdateStatus(p)
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("product_id", id.String()).Str("outcome", outcome).Msg("product removed")
	if s.notifier != nil {
		s.notifier.StockChanged(ctx, StockChangedEvent{ProductIDs: []uuid.UUID{id}, Reason: outcome})
	}
	return &dto.RemoveProductResponse{ID: id.String(), Outcome: outcome}, nil
}

// Alerts lists active products at or below their minimum, emptiest first.
func (s *productService) Alerts(ctx context.Context) ([]dto.StockAlertResponse, error) {
	products, _, err := s.store.Products().List(ctx, dto.ProductFilter{Status: model.ProductActive, LowStock: true})
	if err != nil {
		return nil, err
	}
	alerts := make([]dto.StockAlertResponse, 0, len(products))
	for i := range products {
		p := &products[i]
		if !IsLowStock(p) {
			continue
		}
		alerts = append(alerts, dto.StockAlertResponse{
			ProductID:     p.ID.String(),
			Name:          p.Name,
			Type:          p.Type,
			StockQuantity: p.StockQuantity,
			MinStock:      p.MinStock,
			Shortfall:     p.MinStock - p.StockQuantity + 1,
			StockStatus:   StockStatus(p),
		})
	}
	sort.SliceStable(alerts, func(i, j int) bool { return alerts[i].StockQuantity < alerts[j].StockQuantity })
	return alerts, nil
}

// Summary aggregates the active catalog with the same metric functions the
// product screens use.
func (s *productService) Summary(ctx context.Context) (*dto.InventorySummaryResponse, error) {
	products, _, err := s.store.Products().List(ctx, dto.ProductFilter{Status: model.ProductActive})
	if err != nil {
		return nil, err
	}
	sum := &dto.InventorySummaryResponse{InventoryValue: decimal.Zero, ByType: []dto.TypeSummary{}}
	byType := map[string]*dto.TypeSummary{}
	for i := range products {
		p := &products[i]
		value := InventoryValue(p.Price, p.StockQuantity)
		sum.Products++
		sum.UnitsOnHand += p.StockQuantity
		sum.InventoryValue = sum.InventoryValue.Add(value)
		if IsOutOfStock(p) {
			sum.OutOfStockCount++
		}
		if IsLowStock(p) {
			sum.LowStockCount++
		}
		t, ok := byType[p.Type]
		if !ok {
			t = &dto.TypeSummary{Type: p.Type, InventoryValue: decimal.Zero}
			byType[p.Type] = t
		}
		t.Products++
		t.UnitsOnHand += p.StockQuantity
		t.InventoryValue = t.InventoryValue.Add(value)
	}
	for _, t := range byType {
		sum.ByType = append(sum.ByType, *t)
	}
	sort.Slice(sum.ByType, func(i, j int) bool { return sum.ByType[i].Type < sum.ByType[j].Type })
	return sum, nil
}

func (s *productService) find(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	p, err := s.store.Products().FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound("product", id)
		}
		return nil, err
	}
	return p, nil
}

func productToResponse(p *model.Product) dto.ProductResponse {
	var price *string
	if p.Price.Valid {
		s := p.Price.Decimal.StringFixed(2)
		price = &s
	}
	return dto.ProductResponse{
		ID:             p.ID.String(),
		Name:           p.Name,
		Type:           p.Type,
		Price:          price,
		Unit:           p.Unit,
		StockQuantity:  p.StockQuantity,
		MinStock:       p.MinStock,
		MaxStock:       p.MaxStock,
		InventoryValue: p.InventoryValue,
		StockTrend:     p.StockTrend,
		Status:         p.Status,
		Metrics:        GetDerivedMetrics(p),
		CreatedAt:      p.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      p.UpdatedAt.Format(time.RFC3339),
	}
}
