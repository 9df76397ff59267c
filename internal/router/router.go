package router

import (
	"time"

	"stockledger/internal/config"
	"stockledger/internal/handler"
	"stockledger/internal/infra"
	"stockledger/internal/middleware"
	"stockledger/internal/repository"
	"stockledger/internal/service"
	"stockledger/internal/worker"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// New wires all dependencies and returns a configured Gin engine.
// Dependency graph: Handler ← Service ← Store ← DB; Redis is optional (nil
// disables the metrics cache and the stock job queue).
func New(cfg *config.Config, store repository.Store, rdb *redis.Client, redisCB *infra.CircuitBreaker) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Global middleware chain (order matters)
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.CORS(cfg.AllowedOrigins()))
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.RateLimiter(cfg.RateLimitPerMinute, time.Minute))

	// ── Infrastructure ───────────────────────────────────────────────────────
	cache := infra.NewJSONCache(rdb, redisCB, cfg.MetricsCacheTTL)
	notifier := worker.InvalidateThen(cache, worker.NewDispatcher(rdb, redisCB))

	// ── Services ─────────────────────────────────────────────────────────────
	policy := LedgerPolicy(cfg)
	clock := service.SystemClock{}
	productSvc := service.NewProductService(store, clock, policy, notifier)
	stockSvc := service.NewStockService(store, clock, policy, notifier)
	saleSvc := service.NewSaleService(store, clock, policy, notifier)

	// ── Handlers ─────────────────────────────────────────────────────────────
	productsH := handler.NewProductsHandler(productSvc, stockSvc, cache)
	salesH := handler.NewSalesHandler(saleSvc)
	inventoryH := handler.NewInventoryHandler(productSvc)

	// ── Routes ───────────────────────────────────────────────────────────────

	r.GET("/health", handler.Health(store, rdb, redisCB))

	// Identity is optional: anonymous calls are allowed, a bad token is not.
	v1 := r.Group("/v1", middleware.Identity(cfg.JWTSecret))
	{
		products := v1.Group("/products")
		{
			products.POST("", productsH.Create)
			products.GET("", productsH.List)
			products.GET("/:id", productsH.Get)
			products.DELETE("/:id", productsH.Remove)
			products.PATCH("/:id/stock", productsH.AdjustStock)
			products.GET("/:id/history", productsH.History)
			products.GET("/:id/metrics", productsH.Metrics)
		}

		sales := v1.Group("/sales")
		{
			sales.POST("", salesH.Record)
			sales.GET("", salesH.List)
			sales.PUT("/:id", salesH.EditLine)
		}

		inv := v1.Group("/inventory")
		{
			inv.GET("/alerts", inventoryH.Alerts)
			inv.GET("/summary", inventoryH.Summary)
		}
	}

	// Swagger UI, only enabled outside production
	if !cfg.IsProduction() {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	return r
}

// LedgerPolicy builds the transaction retry policy from configuration.
func LedgerPolicy(cfg *config.Config) service.RetryPolicy {
	p := service.DefaultRetryPolicy()
	if cfg.LedgerMaxAttempts > 0 {
		p.MaxAttempts = cfg.LedgerMaxAttempts
	}
	if cfg.LedgerRetryBackoff > 0 {
		p.Backoff = cfg.LedgerRetryBackoff
	}
	if cfg.LedgerTxTimeout > 0 {
		p.Timeout = cfg.LedgerTxTimeout
	}
	return p
}
