package worker

// stock_worker.go
// Processes stock_changed jobs: drops the cached metrics of every touched
// product and raises a low-stock alert for those now at or below minimum.

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"stockledger/internal/infra"
	"stockledger/internal/model"
	"stockledger/internal/repository"
	"stockledger/internal/service"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	AlertsKey       = "alerts:low_stock"
	maxStoredAlerts = 1000
)

// StockJobPayload is the job envelope sent to QueueStock.
type StockJobPayload struct {
	ProductIDs  []string  `json:"product_ids"`
	Reason      string    `json:"reason"`
	ReferenceID *string   `json:"reference_id,omitempty"`
	ChangedAt   time.Time `json:"changed_at"`
}

func NewStockJobPayload(ev service.StockChangedEvent, at time.Time) StockJobPayload {
	p := StockJobPayload{ProductIDs: make([]string, 0, len(ev.ProductIDs)), Reason: ev.Reason, ChangedAt: at.UTC()}
	for _, id := range ev.ProductIDs {
		p.ProductIDs = append(p.ProductIDs, id.String())
	}
	if ev.ReferenceID != nil {
		ref := ev.ReferenceID.String()
		p.ReferenceID = &ref
	}
	return p
}

// LowStockAlert is one entry of the alerts list.
type LowStockAlert struct {
	ProductID     string    `json:"product_id"`
	Name          string    `json:"name"`
	StockQuantity int       `json:"stock_quantity"`
	MinStock      int       `json:"min_stock"`
	StockStatus   string    `json:"stock_status"`
	Source        string    `json:"source"` // stock reason, or "sweep"
	RaisedAt      time.Time `json:"raised_at"`
}

// MetricsInvalidator drops cached metrics entries.
type MetricsInvalidator interface {
	Delete(ctx context.Context, keys ...string) error
}

// AlertSink receives low-stock alerts.
type AlertSink interface {
	PushLowStock(ctx context.Context, alerts []LowStockAlert) error
}

// StockWorker processes stock_changed jobs.
type StockWorker struct {
	products repository.ProductRepository
	cache    MetricsInvalidator
	alerts   AlertSink
	now      func() time.Time
}

func NewStockWorker(products repository.ProductRepository, cache MetricsInvalidator, alerts AlertSink) *StockWorker {
	return &StockWorker{products: products, cache: cache, alerts: alerts, now: time.Now}
}

// Process implements Processor. An error makes the pool retry the job.
func (w *StockWorker) Process(ctx context.Context, raw json.RawMessage) error {
	var payload StockJobPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		// retrying cannot fix a bad payload
		log.Error().Err(err).Msg("stock_worker: invalid payload")
		return nil
	}
	ids := make([]uuid.UUID, 0, len(payload.ProductIDs))
	keys := make([]string, 0, len(payload.ProductIDs))
	for _, s := range payload.ProductIDs {
		id, err := uuid.Parse(s)
		if err != nil {
			continue
		}
		ids = append(ids, id)
		keys = append(keys, infra.MetricsKey(id.String()))
	}
	if len(ids) == 0 {
		return nil
	}

	if w.cache != nil {
		if err := w.cache.Delete(ctx, keys...); err != nil {
			return fmt.Errorf("invalidate metrics: %w", err)
		}
	}

	products, err := w.products.FindByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("load products: %w", err)
	}
	alerts := lowStockAlerts(products, payload.Reason, w.now())
	if len(alerts) == 0 || w.alerts == nil {
		return nil
	}
	if err := w.alerts.PushLowStock(ctx, alerts); err != nil {
		return fmt.Errorf("push alerts: %w", err)
	}
	log.Info().Int("alerts", len(alerts)).Str("reason", payload.Reason).Msg("stock_worker: low stock alerts raised")
	return nil
}

func lowStockAlerts(products []model.Product, source string, at time.Time) []LowStockAlert {
	var alerts []LowStockAlert
	for i := range products {
		p := &products[i]
		if p.Status != model.ProductActive || !service.IsLowStock(p) {
			continue
		}
		alerts = append(alerts, LowStockAlert{
			ProductID:     p.ID.String(),
			Name:          p.Name,
			StockQuantity: p.StockQuantity,
			MinStock:      p.MinStock,
			StockStatus:   service.StockStatus(p),
			Source:        source,
			RaisedAt:      at.UTC(),
		})
	}
	return alerts
}

// ── Redis alert sink ─────────────────────────────────────────────────────────

// RedisAlertSink keeps the most recent alerts in a capped Redis list.
type RedisAlertSink struct {
	rdb *redis.Client
	cb  *infra.CircuitBreaker
}

func NewRedisAlertSink(rdb *redis.Client, cb *infra.CircuitBreaker) *RedisAlertSink {
	return &RedisAlertSink{rdb: rdb, cb: cb}
}

func (s *RedisAlertSink) PushLowStock(ctx context.Context, alerts []LowStockAlert) error {
	values := make([]interface{}, 0, len(alerts))
	for _, a := range alerts {
		b, err := json.Marshal(a)
		if err != nil {
			return err
		}
		values = append(values, b)
	}
	return s.cb.Execute(func() error {
		_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.LPush(ctx, AlertsKey, values...)
			pipe.LTrim(ctx, AlertsKey, 0, maxStoredAlerts-1)
			return nil
		})
		return err
	})
}

// RecentAlerts returns up to n of the newest alerts.
func (s *RedisAlertSink) RecentAlerts(ctx context.Context, n int64) ([]LowStockAlert, error) {
	var raw []string
	err := s.cb.Execute(func() error {
		var err error
		raw, err = s.rdb.LRange(ctx, AlertsKey, 0, n-1).Result()
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make([]LowStockAlert, 0, len(raw))
	for _, r := range raw {
		var a LowStockAlert
		if json.Unmarshal([]byte(r), &a) == nil {
			out = append(out, a)
		}
	}
	return out, nil
}
