package infra

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ── Circuit Breaker ───────────────────────────────────────────────────────────
// Guards every Redis call made from the request path and the stock worker.
// After FailureThreshold consecutive failures the breaker opens and calls fail
// with ErrCircuitOpen without touching Redis; once OpenTimeout has passed it
// lets calls through again (half-open) and closes after SuccessThreshold
// successes in a row. The ledger itself never goes through a breaker.

type CBState int

const (
	CBClosed CBState = iota
	CBOpen
	CBHalfOpen
)

func (s CBState) String() string {
	switch s {
	case CBClosed:
		return "closed"
	case CBOpen:
		return "open"
	case CBHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

var ErrCircuitOpen = errors.New("circuit breaker is open")

type CircuitBreakerConfig struct {
	FailureThreshold int           // consecutive failures that open the breaker
	SuccessThreshold int           // consecutive half-open successes that close it
	OpenTimeout      time.Duration // time spent open before a trial call
}

// DefaultCBConfig is tuned for a local Redis: five misses in a row open the
// breaker for 30s.
func DefaultCBConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{FailureThreshold: 5, SuccessThreshold: 2, OpenTimeout: 30 * time.Second}
}

// BreakerStats is a point-in-time view for the health endpoint.
type BreakerStats struct {
	Name     string     `json:"name"`
	State    string     `json:"state"`
	Failures int        `json:"consecutive_failures"`
	OpenedAt *time.Time `json:"opened_at,omitempty"`
}

type CircuitBreaker struct {
	name string
	cfg  CircuitBreakerConfig
	now  func() time.Time

	mu        sync.Mutex
	state     CBState
	failures  int // consecutive, closed state
	successes int // consecutive, half-open state
	openedAt  time.Time
}

// NewCircuitBreaker returns a closed breaker. name labels its log lines and
// health output; zero config values fall back to DefaultCBConfig.
func NewCircuitBreaker(name string, cfg CircuitBreakerConfig) *CircuitBreaker {
	def := DefaultCBConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = def.SuccessThreshold
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = def.OpenTimeout
	}
	return &CircuitBreaker{name: name, cfg: cfg, now: time.Now}
}

func (cb *CircuitBreaker) State() CBState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.currentLocked()
}

// Snapshot reports the state together with the failure streak.
func (cb *CircuitBreaker) Snapshot() BreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	st := BreakerStats{Name: cb.name, State: cb.currentLocked().String(), Failures: cb.failures}
	if cb.state != CBClosed {
		at := cb.openedAt
		st.OpenedAt = &at
	}
	return st
}

// Execute runs fn unless the breaker is open. A context cancellation or
// deadline from the caller is returned as-is and not held against Redis.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if cb.State() == CBOpen {
		return ErrCircuitOpen
	}
	err := fn()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err != nil {
		cb.recordFailureLocked()
	} else {
		cb.recordSuccessLocked()
	}
	return err
}

// currentLocked moves an expired open breaker to half-open.
func (cb *CircuitBreaker) currentLocked() CBState {
	if cb.state == CBOpen && cb.now().Sub(cb.openedAt) >= cb.cfg.OpenTimeout {
		cb.setStateLocked(CBHalfOpen)
	}
	return cb.state
}

func (cb *CircuitBreaker) recordFailureLocked() {
	switch cb.state {
	case CBClosed:
		cb.failures++
		if cb.failures >= cb.cfg.FailureThreshold {
			cb.setStateLocked(CBOpen)
		}
	case CBHalfOpen:
		cb.setStateLocked(CBOpen)
	}
}

func (cb *CircuitBreaker) recordSuccessLocked() {
	switch cb.state {
	case CBClosed:
		cb.failures = 0
	case CBHalfOpen:
		cb.successes++
		if cb.successes >= cb.cfg.SuccessThreshold {
			cb.setStateLocked(CBClosed)
		}
	}
}

func (cb *CircuitBreaker) setStateLocked(to CBState) {
	if cb.state == to {
		return
	}
	from := cb.state
	cb.state = to
	cb.successes = 0
	switch to {
	case CBOpen:
		cb.openedAt = cb.now()
	case CBClosed:
		cb.failures = 0
	}

	ev := log.Info()
	if to == CBOpen {
		ev = log.Warn().Int("failures", cb.failures)
	}
	ev.Str("breaker", cb.name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
}
