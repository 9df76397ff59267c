package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"stockledger/internal/infra"
	"stockledger/internal/service"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	QueueStock      = "jobs:stock"
	JobStockChanged = "stock_changed"

	// MaxJobAttempts is how many times a job is tried before it is dead-lettered.
	MaxJobAttempts = 3

	enqueueTimeout = 2 * time.Second
)

// Job is the generic envelope for all async tasks.
type Job struct {
	Type     string          `json:"type"`
	Payload  json.RawMessage `json:"payload"`
	Attempts int             `json:"attempts"`
}

// Dispatcher enqueues async jobs into Redis lists.
// The worker pool dequeues them via BRPOP.
type Dispatcher struct {
	rdb *redis.Client
	cb  *infra.CircuitBreaker
}

func NewDispatcher(rdb *redis.Client, cb *infra.CircuitBreaker) *Dispatcher {
	return &Dispatcher{rdb: rdb, cb: cb}
}

var _ service.StockNotifier = (*Dispatcher)(nil)

// StockChanged implements service.StockNotifier. It runs after the ledger
// transaction has committed: failures are logged and swallowed, and the
// caller's cancellation does not drop the job.
func (d *Dispatcher) StockChanged(ctx context.Context, ev service.StockChangedEvent) {
	if d == nil || d.rdb == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), enqueueTimeout)
	defer cancel()

	if err := d.EnqueueStockChanged(ctx, NewStockJobPayload(ev, time.Now())); err != nil {
		log.Warn().Err(err).Str("reason", ev.Reason).Int("products", len(ev.ProductIDs)).Msg("stock_changed job not enqueued")
	}
}

// EnqueueStockChanged pushes a stock_changed job to Redis.
func (d *Dispatcher) EnqueueStockChanged(ctx context.Context, payload StockJobPayload) error {
	return d.enqueue(ctx, QueueStock, JobStockChanged, payload)
}

func (d *Dispatcher) enqueue(ctx context.Context, queue, jobType string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(Job{Type: jobType, Payload: data})
	if err != nil {
		return err
	}
	push := func() error { return d.rdb.LPush(ctx, queue, encoded).Err() }
	if d.cb == nil {
		return push()
	}
	return d.cb.Execute(push)
}

// ── Pool ─────────────────────────────────────────────────────────────────────

// Processor handles the payload of one job type.
type Processor interface {
	Process(ctx context.Context, payload json.RawMessage) error
}

// Pool consumes QueueStock with a fixed number of goroutines.
type Pool struct {
	rdb        *redis.Client
	processors map[string]Processor
}

func NewPool(rdb *redis.Client, stock Processor) *Pool {
	return &Pool{rdb: rdb, processors: map[string]Processor{JobStockChanged: stock}}
}

// Start launches numWorkers goroutines consuming the queue.
// Each goroutine blocks on BRPOP, so idle workers cost no CPU.
func (p *Pool) Start(ctx context.Context, numWorkers int) {
	if numWorkers < 1 {
		numWorkers = 1
	}
	for i := 0; i < numWorkers; i++ {
		go p.runWorker(ctx, i)
	}
	log.Info().Msgf("worker pool started with %d workers", numWorkers)
}

func (p *Pool) runWorker(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			log.Info().Msgf("worker %d shutting down", id)
			return
		default:
			// Blocking pop: waits up to 5s then loops to check ctx
			result, err := p.rdb.BRPop(ctx, 5*time.Second, QueueStock).Result()
			if err != nil {
				if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
					log.Debug().Err(err).Int("worker", id).Msg("brpop failed")
					time.Sleep(time.Second)
				}
				continue
			}
			if len(result) < 2 {
				continue
			}
			p.processJob(ctx, result[0], result[1])
		}
	}
}

// processJob runs one job. A failed job goes back on its queue until it has
// been tried MaxJobAttempts times, then to the dead-letter queue.
func (p *Pool) processJob(ctx context.Context, queue, raw string) {
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		log.Error().Str("queue", queue).Err(err).Msg("failed to unmarshal job")
		_ = SendToDLQ(ctx, p.rdb, queue, Job{Type: "unknown", Payload: json.RawMessage(`null`)}, "undecodable job: "+err.Error())
		return
	}
	proc, ok := p.processors[job.Type]
	if !ok {
		_ = SendToDLQ(ctx, p.rdb, queue, job, "no processor for job type")
		return
	}

	err := proc.Process(ctx, job.Payload)
	if err == nil {
		return
	}
	job.Attempts++
	if job.Attempts >= MaxJobAttempts {
		_ = SendToDLQ(ctx, p.rdb, queue, job, err.Error())
		return
	}
	log.Warn().Err(err).Str("type", job.Type).Int("attempt", job.Attempts).Msg("job failed, requeueing")
	encoded, mErr := json.Marshal(job)
	if mErr != nil {
		return
	}
	if pErr := p.rdb.LPush(ctx, queue, encoded).Err(); pErr != nil {
		log.Error().Err(pErr).Str("queue", queue).Msg("requeue failed")
	}
}
