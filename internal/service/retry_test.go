package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"stockledger/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithRetry_StopsOnSuccessOrPermanentError(t *testing.T) {
	calls := 0
	attempts, err := withRetry(context.Background(), 5, time.Millisecond, func(int) error {
		calls++
		if calls < 2 {
			return repository.ErrConflict
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)

	boom := errors.New("boom")
	attempts, err = withRetry(context.Background(), 5, time.Millisecond, func(int) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, attempts)
}

func TestWithRetry_HonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts, err := withRetry(ctx, 5, time.Hour, func(int) error {
		cancel()
		return repository.ErrConflict
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

type stubStore struct {
	repository.Store
	transact func(ctx context.Context) error
}

func (s stubStore) Transact(ctx context.Context, _ func(repository.Tx) error) error {
	return s.transact(ctx)
}

func TestRunLedgerTx_MapsOutcomes(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 2, Backoff: time.Millisecond, Timeout: time.Second}
	noop := func(repository.Tx) error { return nil }

	conflict := stubStore{transact: func(context.Context) error {
		return fmt.Errorf("%w: 40001", repository.ErrConflict)
	}}
	err := runLedgerTx(context.Background(), conflict, policy, "test", noop)
	assert.Equal(t, KindConflictAborted, KindOf(err))
	assert.ErrorIs(t, err, repository.ErrConflict)

	id := uuid.New()
	missing := stubStore{transact: func(context.Context) error { return errRetry{notFound("product", id)} }}
	err = runLedgerTx(context.Background(), missing, policy, "test", noop)
	assert.Equal(t, KindNotFound, KindOf(err))

	slow := stubStore{transact: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	err = runLedgerTx(context.Background(), slow, RetryPolicy{MaxAttempts: 1, Timeout: 5 * time.Millisecond}, "test", noop)
	assert.Equal(t, KindConflictAborted, KindOf(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	plain := errors.New("disk")
	failing := stubStore{transact: func(context.Context) error { return plain }}
	assert.Same(t, plain, runLedgerTx(context.Background(), failing, policy, "test", noop))
}
