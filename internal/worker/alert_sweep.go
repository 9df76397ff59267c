package worker

// alert_sweep.go
// Background goroutine that periodically re-raises alerts for every active
// product at or below minimum, so alerts lost to a Redis outage or a dropped
// job reappear. Skips ticks while the Redis circuit breaker is open.

import (
	"context"
	"time"

	"stockledger/internal/dto"
	"stockledger/internal/infra"
	"stockledger/internal/model"
	"stockledger/internal/repository"

	"github.com/rs/zerolog/log"
)

const defaultSweepInterval = 10 * time.Minute

// AlertSweepConfig holds all dependencies for the sweep goroutine.
type AlertSweepConfig struct {
	Products repository.ProductRepository
	Sink     AlertSink
	CB       *infra.CircuitBreaker
	Interval time.Duration
}

// StartAlertSweep launches the sweep goroutine. It stops when ctx is done.
func StartAlertSweep(ctx context.Context, cfg AlertSweepConfig) {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		log.Info().Dur("interval", interval).Msg("alert_sweep: started")

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("alert_sweep: shutting down")
				return
			case <-ticker.C:
				if _, err := sweepLowStock(ctx, cfg, time.Now()); err != nil {
					log.Error().Err(err).Msg("alert_sweep: tick failed")
				}
			}
		}
	}()
}

// sweepLowStock raises one alert per low-stock product and returns how many.
func sweepLowStock(ctx context.Context, cfg AlertSweepConfig, now time.Time) (int, error) {
	if cfg.CB != nil && cfg.CB.State() == infra.CBOpen {
		log.Debug().Msg("alert_sweep: circuit breaker is open, skipping tick")
		return 0, nil
	}

	products, _, err := cfg.Products.List(ctx, dto.ProductFilter{Status: model.ProductActive, LowStock: true})
	if err != nil {
		return 0, err
	}
	alerts := lowStockAlerts(products, "sweep", now)
	if len(alerts) == 0 {
		return 0, nil
	}
	if err := cfg.Sink.PushLowStock(ctx, alerts); err != nil {
		return 0, err
	}
	log.Info().Int("count", len(alerts)).Msg("alert_sweep: low stock alerts raised")
	return len(alerts), nil
}
