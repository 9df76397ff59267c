// Seeds a small demo catalog through ProductService, so every product gets
// its initial-stock history entry.
// Usage: go run ./cmd/seedcatalog
package main

import (
	"context"
	"errors"
	"os"
	"time"

	"stockledger/internal/config"
	"stockledger/internal/dto"
	"stockledger/internal/infra"
	"stockledger/internal/repository"
	"stockledger/internal/router"
	"stockledger/internal/service"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

var catalog = []struct {
	name, kind, price, unit string
	stock, min, max         int
}{
	{"Layer mash 50kg", "feed", "38.50", "bag", 40, 10, 120},
	{"Grower pellets 25kg", "feed", "21.00", "bag", 25, 8, 80},
	{"Starter crumbs 25kg", "feed", "24.75", "bag", 6, 8, 60},
	{"Oyster shell 10kg", "supplement", "9.90", "bag", 15, 5, 40},
	{"Vitamin premix 1kg", "supplement", "14.20", "pack", 0, 3, 20},
	{"Drinker 5L", "equipment", "7.45", "unit", 12, 4, 30},
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	db, err := infra.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	store := repository.NewGormStore(db, cfg.LedgerLockTimeout)
	svc := service.NewProductService(store, service.SystemClock{}, router.LedgerPolicy(cfg), nil)

	ctx := context.Background()
	actor := "seedcatalog"
	created := 0
	for _, item := range catalog {
		price := decimal.RequireFromString(item.price)
		resp, err := svc.Create(ctx, dto.CreateProductRequest{
			Name:          item.name,
			Type:          item.kind,
			Price:         &price,
			Unit:          item.unit,
			StockQuantity: item.stock,
			MinStock:      item.min,
			MaxStock:      item.max,
		}, &actor)
		if err != nil {
			var le *service.LedgerError
			if errors.As(err, &le) {
				log.Error().Str("product", item.name).Interface("fields", le.Fields).Msg("rejected")
				continue
			}
			log.Fatal().Err(err).Str("product", item.name).Msg("seed failed")
		}
		created++
		log.Info().Str("id", resp.ID).Str("product", item.name).Int("stock", item.stock).Msg("seeded")
	}
	log.Info().Int("created", created).Int("total", len(catalog)).Msg("catalog seeded")
}
