package github

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-github/v66/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(cfg *RateLimiterConfig, now time.Time) (*RateLimiter, *time.Time) {
	rl := NewRateLimiter(cfg)
	clock := now
	rl.now = func() time.Time { return clock }
	return rl, &clock
}

func responseWithRate(limit, remaining int, reset time.Time) *github.Response {
	return &github.Response{Rate: github.Rate{
		Limit:     limit,
		Remaining: remaining,
		Reset:     github.Timestamp{Time: reset},
	}}
}

func TestDefaultRateLimiterConfig(t *testing.T) {
	config := DefaultRateLimiterConfig()

	assert.Equal(t, 50*time.Millisecond, config.BaseDelay)
	assert.Equal(t, time.Minute, config.MaxDelay)
	assert.Equal(t, 100, config.MinRemainingRequests)
}

func TestRateLimiter_Delay(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	cfg := &RateLimiterConfig{BaseDelay: 100 * time.Millisecond, MaxDelay: 10 * time.Second, MinRemainingRequests: 10}

	t.Run("first call does not wait", func(t *testing.T) {
		rl, _ := newTestLimiter(cfg, start)
		assert.Zero(t, rl.Delay())
	})

	t.Run("calls are spaced by the base delay", func(t *testing.T) {
		rl, clock := newTestLimiter(cfg, start)
		rl.lastCall = start
		*clock = start.Add(30 * time.Millisecond)

		assert.Equal(t, 70*time.Millisecond, rl.Delay())
	})

	t.Run("low remaining spreads requests until reset", func(t *testing.T) {
		rl, _ := newTestLimiter(cfg, start)
		rl.Observe(responseWithRate(5000, 4, start.Add(8*time.Second)))

		assert.Equal(t, 2*time.Second, rl.Delay())
	})

	t.Run("exhausted limit waits until reset, capped", func(t *testing.T) {
		rl, _ := newTestLimiter(cfg, start)
		rl.Observe(responseWithRate(5000, 0, start.Add(time.Hour)))

		assert.Equal(t, 10*time.Second, rl.Delay())
	})

	t.Run("plenty remaining only uses base spacing", func(t *testing.T) {
		rl, _ := newTestLimiter(cfg, start)
		rl.Observe(responseWithRate(5000, 4000, start.Add(time.Hour)))

		assert.Zero(t, rl.Delay())
	})

	t.Run("reset in the past is ignored", func(t *testing.T) {
		rl, _ := newTestLimiter(cfg, start)
		rl.Observe(responseWithRate(5000, 0, start.Add(-time.Second)))

		assert.Zero(t, rl.Delay())
	})
}

func TestRateLimiter_Observe(t *testing.T) {
	reset := time.Now().Add(time.Hour)
	rl := NewRateLimiter(nil)

	rl.Observe(nil)
	rl.Observe(&github.Response{})
	assert.Zero(t, rl.Stats().RemainingRequests)

	rl.Observe(responseWithRate(5000, 4321, reset))
	stats := rl.Stats()
	assert.Equal(t, 4321, stats.RemainingRequests)
	assert.True(t, stats.ResetTime.Equal(reset))
}

func TestClient_RateLimit(t *testing.T) {
	reset := time.Now().Add(time.Hour)
	client := NewClient("test-token")
	client.limiter.Observe(responseWithRate(5000, 1234, reset))

	stats, next := client.RateLimit()
	assert.Equal(t, 1234, stats.RemainingRequests)
	assert.True(t, stats.ResetTime.Equal(reset))
	assert.Zero(t, next)

	client.limiter = nil
	stats, next = client.RateLimit()
	assert.Equal(t, RateLimiterStats{}, stats)
	assert.Zero(t, next)
}

func TestRateLimiter_Wait(t *testing.T) {
	t.Run("nil limiter never waits", func(t *testing.T) {
		var rl *RateLimiter
		assert.NoError(t, rl.Wait(context.Background()))
	})

	t.Run("records waits", func(t *testing.T) {
		rl := NewRateLimiter(&RateLimiterConfig{BaseDelay: 50 * time.Millisecond, MaxDelay: time.Second, MinRemainingRequests: 1})

		require.NoError(t, rl.Wait(context.Background()))
		require.NoError(t, rl.Wait(context.Background()))

		stats := rl.Stats()
		assert.Equal(t, int64(1), stats.TotalWaits)
		assert.Positive(t, stats.TotalDelayTime)
	})

	t.Run("cancelled context aborts the wait", func(t *testing.T) {
		rl := NewRateLimiter(&RateLimiterConfig{BaseDelay: time.Hour, MaxDelay: time.Hour})
		require.NoError(t, rl.Wait(context.Background()))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, rl.Wait(ctx), context.Canceled)
	})
}
