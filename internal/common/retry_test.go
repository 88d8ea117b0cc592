package common

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoff_Schedule(t *testing.T) {
	b := DefaultBackoff()

	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second, 30 * time.Second}
	for i, expected := range want {
		attempt := i + 1
		assert.Equal(t, expected, b.Delay(attempt), "attempt %d", attempt)
		assert.False(t, b.Exhausted(attempt))
	}
	assert.True(t, b.Exhausted(6), "no sixth attempt")
	assert.Equal(t, 30*time.Second, b.Delay(40), "large attempts stay capped")
}

func TestWithRetry(t *testing.T) {
	opts := RetryOptions{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}

	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), func() error {
			calls++
			if calls < 3 {
				return &RetryableError{Err: errors.New("transient"), Retryable: true}
			}
			return nil
		}, opts)
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("stops on non-retryable error", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), func() error {
			calls++
			return &RetryableError{Err: errors.New("bad request"), Retryable: false}
		}, opts)
		require.Error(t, err)
		assert.Equal(t, 1, calls)
		assert.False(t, IsRetryable(err))
	})

	t.Run("returns unclassified errors at once", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), func() error {
			calls++
			return errors.New("invalid range")
		}, opts)
		require.EqualError(t, err, "invalid range")
		assert.Equal(t, 1, calls)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		err := WithRetry(context.Background(), func() error { return fmt.Errorf("quota: %w", ErrRateLimit) }, opts)
		assert.ErrorIs(t, err, ErrMaxRetries)
	})
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limit", fmt.Errorf("sheets: %w", ErrRateLimit), true},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"network", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, true},
		{"marked retryable", &RetryableError{Err: errors.New("503"), Retryable: true}, true},
		{"marked permanent rate limit", &RetryableError{Err: ErrRateLimit, Retryable: false}, false},
		{"plain", errors.New("bad request"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "abc...", Truncate("abcdef", 3))
	assert.Equal(t, "äöü...", Truncate("äöüß", 3))
	assert.Equal(t, "anything", Truncate("anything", 0))
}
