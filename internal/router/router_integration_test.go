//go:build integration

package router_test

// Runs the HTTP surface against real Postgres and Redis.
// go test -tags integration ./internal/router/... -v

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"stockledger/internal/config"
	"stockledger/internal/dto"
	"stockledger/internal/infra"
	"stockledger/internal/repository"
	"stockledger/internal/router"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcRedis "github.com/testcontainers/testcontainers-go/modules/redis"
	"gorm.io/gorm"
)

type testEnv struct {
	engine *gin.Engine
	db     *gorm.DB
	rdb    *redis.Client
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	pgC, err := tcPostgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:15-alpine"),
		tcPostgres.WithDatabase("stockledger_test"),
		tcPostgres.WithUsername("stockledger"),
		tcPostgres.WithPassword("stockledger"),
		tcPostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })

	pgURL, err := pgC.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	rdC, err := tcRedis.RunContainer(ctx, testcontainers.WithImage("redis:7-alpine"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdC.Terminate(ctx) })

	rdURL, err := rdC.ConnectionString(ctx)
	require.NoError(t, err)

	cfg := newTestCfg()
	cfg.StoreDriver = config.DriverPostgres
	cfg.DatabaseURL = pgURL
	cfg.RedisURL = rdURL
	cfg.MetricsCacheTTL = time.Minute
	cfg.LedgerMaxAttempts = 5
	cfg.LedgerTxTimeout = 10 * time.Second
	cfg.LedgerLockTimeout = 5 * time.Second

	db, err := infra.NewDatabase(cfg.DatabaseURL)
	require.NoError(t, err)

	rdb, err := infra.NewRedis(cfg.RedisURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })

	gin.SetMode(gin.TestMode)
	store := repository.NewGormStore(db, cfg.LedgerLockTimeout)
	cb := infra.NewCircuitBreaker("redis", infra.DefaultCBConfig())
	return &testEnv{engine: router.New(cfg, store, rdb, cb), db: db, rdb: rdb}
}

func TestIntegration_SaleCycle(t *testing.T) {
	env := setupTestEnv(t)
	r := env.engine
	p := createProduct(t, r, "Layer mash", 10)

	w := do(t, r, call{method: http.MethodPost, path: "/v1/sales",
		body:    map[string]any{"salesperson": "kojo", "lines": []any{sale(p.ID, 3), sale(p.ID, 4)}},
		headers: map[string]string{"Idempotency-Key": "e2e-1"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	first := decode[dto.SaleResponse](t, w)
	assert.Equal(t, 10, first.Lines[0].PreviousStock)
	assert.Equal(t, 3, first.Lines[1].NewStock)

	w = do(t, r, call{method: http.MethodPost, path: "/v1/sales",
		body:    map[string]any{"salesperson": "kojo", "lines": []any{sale(p.ID, 3), sale(p.ID, 4)}},
		headers: map[string]string{"Idempotency-Key": "e2e-1"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, first.TransactionID, decode[dto.SaleResponse](t, w).TransactionID)

	w = do(t, r, call{method: http.MethodGet, path: "/v1/products/" + p.ID + "/history"})
	require.Equal(t, http.StatusOK, w.Code)
	hist := decode[dto.StockHistoryResponse](t, w)
	require.Len(t, hist.Data, 2)
	assert.Equal(t, -7, hist.Data[0].Delta)
	require.NotNil(t, hist.Data[0].ReferenceID)
	assert.Equal(t, first.TransactionID, *hist.Data[0].ReferenceID)

	w = do(t, r, call{method: http.MethodDelete, path: "/v1/products/" + p.ID})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "archived", decode[dto.RemoveProductResponse](t, w).Outcome)
}

func TestIntegration_MetricsAreCachedAndEvicted(t *testing.T) {
	env := setupTestEnv(t)
	r := env.engine
	p := createProduct(t, r, "Grower pellets", 10)
	path := "/v1/products/" + p.ID + "/metrics"

	assert.Equal(t, "MISS", do(t, r, call{method: http.MethodGet, path: path}).Header().Get("X-Cache"))
	assert.Equal(t, "HIT", do(t, r, call{method: http.MethodGet, path: path}).Header().Get("X-Cache"))

	w := do(t, r, call{method: http.MethodPatch, path: "/v1/products/" + p.ID + "/stock", body: map[string]any{"delta": -9, "reason": "manual-adjustment"}})
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, r, call{method: http.MethodGet, path: path})
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
	m := decode[dto.MetricsResponse](t, w)
	assert.Equal(t, 1, m.StockQuantity)
	assert.True(t, m.IsLowStock)
}

func TestIntegration_ConcurrentSalesNeverOversell(t *testing.T) {
	env := setupTestEnv(t)
	r := env.engine
	p := createProduct(t, r, "Oyster shell", 10)

	var wg sync.WaitGroup
	codes := make([]int, 20)
	for i := range codes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w := do(t, r, call{method: http.MethodPost, path: "/v1/sales", body: map[string]any{
				"salesperson": fmt.Sprintf("till-%d", i), "lines": []any{sale(p.ID, 1)},
			}})
			codes[i] = w.Code
		}(i)
	}
	wg.Wait()

	created := 0
	for _, c := range codes {
		switch c {
		case http.StatusCreated:
			created++
		case http.StatusConflict, http.StatusServiceUnavailable:
		default:
			t.Fatalf("unexpected status %d", c)
		}
	}
	assert.LessOrEqual(t, created, 10)

	w := do(t, r, call{method: http.MethodGet, path: "/v1/products/" + p.ID})
	assert.Equal(t, 10-created, decode[dto.ProductResponse](t, w).StockQuantity)

	var lines int64
	require.NoError(t, env.db.Table("sale_lines").Count(&lines).Error)
	assert.EqualValues(t, created, lines)
}

func TestIntegration_HealthReportsRedis(t *testing.T) {
	env := setupTestEnv(t)
	w := do(t, env.engine, call{method: http.MethodGet, path: "/health"})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]any](t, w)
	assert.Equal(t, "connected", body["db"])
	assert.Equal(t, "connected", body["redis"])
	assert.Equal(t, "closed", body["redis_breaker"].(map[string]any)["state"])
}
