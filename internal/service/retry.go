package service

import (
	"context"
	"errors"
	"time"

	"stockledger/internal/repository"

	"github.com/rs/zerolog/log"
)

// RetryPolicy bounds how hard a ledger command fights for its transaction.
type RetryPolicy struct {
	MaxAttempts int           // total attempts, first one included
	Backoff     time.Duration // wait before the 2nd attempt; doubles afterwards
	Timeout     time.Duration // whole-command deadline, retries included; 0 = none
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Backoff: 50 * time.Millisecond, Timeout: 5 * time.Second}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.Backoff < 0 {
		p.Backoff = 0
	}
	return p
}

// errRetry marks an error raised inside a transaction body that should abort
// the attempt and be retried like a store conflict (e.g. a product vanished
// between validation and commit).
type errRetry struct{ err error }

func (e errRetry) Error() string { return e.err.Error() }
func (e errRetry) Unwrap() error { return e.err }

func retryable(err error) bool {
	var r errRetry
	return repository.IsRetryable(err) || errors.As(err, &r)
}

// withRetry calls fn up to maxAttempts times while it fails with a retryable
// error, sleeping backoff, 2×backoff, … between attempts. It returns the
// number of attempts made and fn's last error.
func withRetry(ctx context.Context, maxAttempts int, backoff time.Duration, fn func(attempt int) error) (int, error) {
	var lastErr error
	for i := 0; i < maxAttempts; i++ {
		if i > 0 {
			wait := backoff << uint(i-1)
			select {
			case <-ctx.Done():
				return i, ctx.Err()
			case <-time.After(wait):
			}
		}
		lastErr = fn(i)
		if lastErr == nil || !retryable(lastErr) {
			return i + 1, lastErr
		}
	}
	return maxAttempts, lastErr
}

// runLedgerTx runs body in one store transaction under policy. Conflicts are
// retried; an exhausted budget or a deadline becomes ConflictAborted. Errors
// raised by body that are not retryable are returned unchanged.
func runLedgerTx(ctx context.Context, store repository.Store, policy RetryPolicy, op string, body func(tx repository.Tx) error) error {
	policy = policy.normalized()
	if policy.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, policy.Timeout)
		defer cancel()
	}

	attempts, err := withRetry(ctx, policy.MaxAttempts, policy.Backoff, func(attempt int) error {
		err := store.Transact(ctx, body)
		if err != nil && retryable(err) {
			log.Warn().Err(err).Str("op", op).Int("attempt", attempt+1).Msg("ledger transaction aborted, retrying")
		}
		return err
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		return conflictAborted(err, attempts)
	case retryable(err):
		var r errRetry
		if errors.As(err, &r) {
			// the cause outlived the retry budget, e.g. a product that stayed missing
			var le *LedgerError
			if errors.As(r.err, &le) {
				return le
			}
		}
		return conflictAborted(err, attempts)
	}
	return err
}
