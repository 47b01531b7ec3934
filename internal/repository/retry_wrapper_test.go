package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 4, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Jitter: 0}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(errors.New("database is locked")))
	assert.True(t, IsRetryable(errors.New("SQLITE_BUSY: database table is locked")))
	assert.True(t, IsRetryable(errors.New("Error 1213: Deadlock found when trying to get lock")))
	assert.False(t, IsRetryable(errors.New("record not found")))
	assert.False(t, IsRetryable(nil))
}

func TestExecute_SucceedsWithoutRetry(t *testing.T) {
	calls := 0
	w := NewRetryWrapper(fastRetryConfig())
	result, err := Execute(context.Background(), w, func(ctx context.Context) (int, error) {
		calls++
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, 1, calls)
}

func TestExecute_RetriesTransientFailureThenSucceeds(t *testing.T) {
	calls := 0
	w := NewRetryWrapper(fastRetryConfig())
	result, err := Execute(context.Background(), w, func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("database is locked")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, calls)
}

func TestExecute_DoesNotRetryPermanentError(t *testing.T) {
	calls := 0
	w := NewRetryWrapper(fastRetryConfig())
	_, err := Execute(context.Background(), w, func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("record not found")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestExecute_ExhaustsAttempts(t *testing.T) {
	calls := 0
	cfg := fastRetryConfig()
	cfg.MaxAttempts = 3
	w := NewRetryWrapper(cfg)
	_, err := Execute(context.Background(), w, func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("database is locked")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestExecute_StopsOnContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{MaxAttempts: 10, BaseDelay: 20 * time.Millisecond, MaxDelay: time.Second, Jitter: 0}
	w := NewRetryWrapper(cfg)

	calls := 0
	cancel()
	_, err := Execute(ctx, w, func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("database is locked")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestForReadsForWritesForCritical(t *testing.T) {
	ctx := context.Background()

	result, err := ForReads(ctx, func(ctx context.Context) (int, error) { return 1, nil })
	require.NoError(t, err)
	assert.Equal(t, 1, result)

	result, err = ForWrites(ctx, func(ctx context.Context) (int, error) { return 2, nil })
	require.NoError(t, err)
	assert.Equal(t, 2, result)

	result, err = ForCritical(ctx, func(ctx context.Context) (int, error) { return 3, nil })
	require.NoError(t, err)
	assert.Equal(t, 3, result)
}
