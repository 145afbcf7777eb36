package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errThrottled = errors.New("429 too many requests")

func fastConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestDo_SucceedsAfterRetry(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ReturnsLastError(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(), func() error {
		calls++
		return errThrottled
	})

	assert.ErrorIs(t, err, errThrottled)
	assert.Equal(t, 3, calls)
}

func TestDo_ShouldRetryStopsEarly(t *testing.T) {
	permanent := errors.New("bad request")
	cfg := fastConfig()
	cfg.ShouldRetry = func(err error) bool { return !errors.Is(err, permanent) }

	calls := 0
	err := Do(context.Background(), cfg, func() error {
		calls++
		return permanent
	})

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Do(ctx, fastConfig(), func() error {
		calls++
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestBackoff_RateLimitedUsesLongerBase(t *testing.T) {
	cfg := Config{
		InitialDelay:   500 * time.Millisecond,
		RateLimitDelay: 3 * time.Second,
		MaxDelay:       time.Minute,
		Multiplier:     2,
		RateLimited:    func(err error) bool { return errors.Is(err, errThrottled) },
	}

	assert.Equal(t, 500*time.Millisecond, cfg.backoff(1, errors.New("boom")))
	assert.Equal(t, time.Second, cfg.backoff(2, errors.New("boom")))
	assert.Equal(t, 3*time.Second, cfg.backoff(1, errThrottled))
	assert.Equal(t, 6*time.Second, cfg.backoff(2, errThrottled))
}

func TestBackoff_CappedAtMaxDelay(t *testing.T) {
	cfg := Config{InitialDelay: time.Second, MaxDelay: 2 * time.Second, Multiplier: 10}
	assert.Equal(t, 2*time.Second, cfg.backoff(3, errors.New("boom")))
}

func TestDoWithResult(t *testing.T) {
	v, err := DoWithResult(context.Background(), fastConfig(), func() (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}
