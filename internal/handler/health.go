package handler

import (
	"context"
	"net/http"
	"time"

	"stockledger/internal/infra"
	"stockledger/internal/repository"
	"stockledger/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Health returns a JSON health check response.
// The store must answer for a 200; Redis is optional and only reported.
// Never exposes credentials or internals.
func Health(store repository.Store, rdb *redis.Client, redisCB *infra.CircuitBreaker) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		dbStatus := "connected"
		if store.Ping(ctx) != nil {
			dbStatus = "error"
		}

		body := gin.H{"db": dbStatus}
		switch {
		case rdb == nil:
			body["redis"] = "disabled"
		case rdb.Ping(ctx).Err() != nil:
			body["redis"] = "error"
		default:
			body["redis"] = "connected"
			if n, err := worker.DLQLength(ctx, rdb, worker.QueueStock); err == nil {
				body["dead_letter_jobs"] = n
			}
		}
		if redisCB != nil {
			body["redis_breaker"] = redisCB.Snapshot()
		}

		status := http.StatusOK
		if dbStatus != "connected" {
			status = http.StatusServiceUnavailable
		}
		body["ok"] = status == http.StatusOK
		c.JSON(status, body)
	}
}
