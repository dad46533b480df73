package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/absherpay/absher-bfa-go/internal/infra/resilience"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUpstream = errors.New("upstream unavailable")

func TestRetryWithBackoff(t *testing.T) {
	cfg := resilience.Config{MaxRetries: 3, InitialBackoff: 5 * time.Millisecond}

	t.Run("first attempt succeeds", func(t *testing.T) {
		calls := 0
		err := resilience.RetryWithBackoff(context.Background(), cfg, func() error {
			calls++
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("recovers within the retry budget", func(t *testing.T) {
		calls := 0
		err := resilience.RetryWithBackoff(context.Background(), cfg, func() error {
			calls++
			if calls < 3 {
				return errUpstream
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("returns the last error when exhausted", func(t *testing.T) {
		calls := 0
		err := resilience.RetryWithBackoff(context.Background(), cfg, func() error {
			calls++
			return errUpstream
		})
		require.ErrorIs(t, err, errUpstream)
		assert.Equal(t, cfg.MaxRetries+1, calls)
	})

	t.Run("cancelled context stops retrying", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := resilience.RetryWithBackoff(ctx, resilience.Config{
			MaxRetries:     5,
			InitialBackoff: time.Second,
		}, func() error {
			return errUpstream
		})
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestBulkhead(t *testing.T) {
	bh := resilience.NewBulkhead(2)

	require.NoError(t, bh.Acquire(context.Background()))
	require.NoError(t, bh.Acquire(context.Background()))

	// Both slots held: the next acquire must wait until one is released.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, bh.Acquire(ctx), context.DeadlineExceeded)

	bh.Release()
	require.NoError(t, bh.Acquire(context.Background()))
}
