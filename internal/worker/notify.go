package worker

import (
	"context"

	"stockledger/internal/infra"
	"stockledger/internal/service"

	"github.com/rs/zerolog/log"
)

// invalidatingNotifier drops cached metrics synchronously, then hands the
// event on. The worker invalidates again when it runs the job, which covers a
// read that repopulated the entry in between.
type invalidatingNotifier struct {
	cache MetricsInvalidator
	next  service.StockNotifier
}

// InvalidateThen wraps next so committed changes evict cached metrics before
// the call returns to the client.
func InvalidateThen(cache MetricsInvalidator, next service.StockNotifier) service.StockNotifier {
	return &invalidatingNotifier{cache: cache, next: next}
}

func (n *invalidatingNotifier) StockChanged(ctx context.Context, ev service.StockChangedEvent) {
	if n.cache != nil && len(ev.ProductIDs) > 0 {
		keys := make([]string, 0, len(ev.ProductIDs))
		for _, id := range ev.ProductIDs {
			keys = append(keys, infra.MetricsKey(id.String()))
		}
		if err := n.cache.Delete(context.WithoutCancel(ctx), keys...); err != nil {
			log.Debug().Err(err).Msg("metrics cache eviction skipped")
		}
	}
	if n.next != nil {
		n.next.StockChanged(ctx, ev)
	}
}
