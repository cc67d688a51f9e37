package github

import (
	"context"
	"sync"
	"time"

	"github.com/google/go-github/v66/github"
)

// RateLimiterConfig configures request pacing.
type RateLimiterConfig struct {
	// BaseDelay is the minimum spacing between requests
	BaseDelay time.Duration

	// MaxDelay caps any single wait
	MaxDelay time.Duration

	// MinRemainingRequests is the threshold below which requests are spread
	// evenly over the time left until the limit resets
	MinRemainingRequests int
}

// DefaultRateLimiterConfig returns a default rate limiter configuration
func DefaultRateLimiterConfig() *RateLimiterConfig {
	return &RateLimiterConfig{
		BaseDelay:            50 * time.Millisecond,
		MaxDelay:             time.Minute,
		MinRemainingRequests: 100,
	}
}

// RateLimiterStats provides statistics about rate limiter usage
type RateLimiterStats struct {
	RemainingRequests int           `json:"remaining_requests"`
	ResetTime         time.Time     `json:"reset_time"`
	TotalWaits        int64         `json:"total_waits"`
	TotalDelayTime    time.Duration `json:"total_delay_time"`
}

// RateLimitReporter is implemented by clients that pace their requests.
type RateLimitReporter interface {
	RateLimit() (RateLimiterStats, time.Duration)
}

// RateLimiter paces sequential API calls using the rate limit headers of the
// previous response.
type RateLimiter struct {
	config *RateLimiterConfig
	now    func() time.Time

	mu        sync.Mutex
	remaining int
	resetTime time.Time
	lastCall  time.Time
	stats     RateLimiterStats
}

// NewRateLimiter creates a rate limiter; a nil config uses the defaults.
func NewRateLimiter(config *RateLimiterConfig) *RateLimiter {
	if config == nil {
		config = DefaultRateLimiterConfig()
	}
	return &RateLimiter{
		config:    config,
		now:       time.Now,
		remaining: 5000,
	}
}

// Wait blocks until it is safe to make the next API call.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if rl == nil {
		return nil
	}

	rl.mu.Lock()
	delay := rl.delayLocked()
	if delay > 0 {
		rl.stats.TotalWaits++
		rl.stats.TotalDelayTime += delay
	}
	rl.mu.Unlock()

	if err := sleep(ctx, delay); err != nil {
		return err
	}

	rl.mu.Lock()
	rl.lastCall = rl.now()
	rl.mu.Unlock()
	return nil
}

// Observe records the rate limit reported by a response.
func (rl *RateLimiter) Observe(resp *github.Response) {
	if rl == nil || resp == nil || resp.Rate.Limit == 0 {
		return
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.remaining = resp.Rate.Remaining
	rl.resetTime = resp.Rate.Reset.Time
	rl.stats.RemainingRequests = rl.remaining
	rl.stats.ResetTime = rl.resetTime
}

// Stats returns current rate limiter statistics
func (rl *RateLimiter) Stats() RateLimiterStats {
	if rl == nil {
		return RateLimiterStats{}
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.stats
}

// Delay returns the wait the next call would incur.
func (rl *RateLimiter) Delay() time.Duration {
	if rl == nil {
		return 0
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.delayLocked()
}

func (rl *RateLimiter) delayLocked() time.Duration {
	now := rl.now()
	var delay time.Duration

	if !rl.lastCall.IsZero() {
		if since := now.Sub(rl.lastCall); since < rl.config.BaseDelay {
			delay = rl.config.BaseDelay - since
		}
	}

	if !rl.resetTime.IsZero() && now.Before(rl.resetTime) && rl.remaining < rl.config.MinRemainingRequests {
		untilReset := rl.resetTime.Sub(now)
		var spread time.Duration
		if rl.remaining <= 0 {
			spread = untilReset
		} else {
			spread = untilReset / time.Duration(rl.remaining)
		}
		if spread > delay {
			delay = spread
		}
	}

	if delay > rl.config.MaxDelay {
		delay = rl.config.MaxDelay
	}
	return delay
}
