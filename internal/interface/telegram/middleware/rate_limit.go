// Package middleware contains the bot's update-processing middlewares.
package middleware

import (
	"fmt"
	"sync"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMITER MIDDLEWARE
// Token bucket per user. A double-tapped button stays within the burst;
// sustained flooding earns a temporary ban.
// ══════════════════════════════════════════════════════════════════════════════

// RateLimitConfig tunes the per-user limiter.
type RateLimitConfig struct {
	// RequestsPerMinute is the sustained per-user budget.
	RequestsPerMinute int

	// BurstSize is how many requests may arrive back to back.
	BurstSize int

	// CleanupInterval is how often idle state is evicted.
	CleanupInterval time.Duration

	// BanDuration is how long a ban lasts.
	BanDuration time.Duration

	// BanThreshold is the number of violations that triggers a ban.
	BanThreshold int

	// WhitelistedUsers bypass the limiter entirely, admins typically.
	WhitelistedUsers map[int64]bool

	// OnRateLimited renders the reply sent to a throttled user.
	OnRateLimited func(telegramID int64, retryAfter time.Duration) string
}

// DefaultRateLimitConfig returns the standard settings.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 20,
		BurstSize:         5,
		CleanupInterval:   5 * time.Minute,
		BanDuration:       10 * time.Minute,
		BanThreshold:      3,
		WhitelistedUsers:  make(map[int64]bool),
		OnRateLimited: func(telegramID int64, retryAfter time.Duration) string {
			seconds := int(retryAfter.Seconds())
			if seconds < 60 {
				return fmt.Sprintf(
					"⏳ Too many requests!\n\nPlease wait %d seconds and try again.",
					seconds,
				)
			}
			return fmt.Sprintf(
				"⏳ Too many requests!\n\nPlease wait %d minutes and try again.",
				seconds/60,
			)
		},
	}
}

// RateLimiter throttles per-user request rates.
type RateLimiter struct {
	config RateLimitConfig

	mu      sync.Mutex
	buckets map[int64]*bucket
	bans    map[int64]time.Time
}

// bucket is the token bucket state of one user.
type bucket struct {
	tokens       float64
	lastRefill   time.Time
	violations   int
	lastViolated time.Time
}

// NewRateLimiter creates a rate limiter and starts its cleanup loop.
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	rl := &RateLimiter{
		config:  config,
		buckets: make(map[int64]*bucket),
		bans:    make(map[int64]time.Time),
	}

	go rl.cleanupLoop()
	return rl
}

// RateLimitResult is the outcome of one rate limit check.
type RateLimitResult struct {
	// Allowed is true when the update may proceed.
	Allowed bool

	// RetryAfter is the wait before the next attempt may pass.
	RetryAfter time.Duration

	// IsBanned is true while a temporary ban is active.
	IsBanned bool

	// ResponseMessage is the throttle notice to send, when any.
	ResponseMessage string
}

// Check consumes one token for the user and reports whether the request
// may proceed.
func (rl *RateLimiter) Check(telegramID int64) *RateLimitResult {
	if rl.config.WhitelistedUsers[telegramID] {
		return &RateLimitResult{Allowed: true}
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()

	if until, banned := rl.bans[telegramID]; banned {
		if now.Before(until) {
			retryAfter := until.Sub(now)
			return &RateLimitResult{
				Allowed:         false,
				IsBanned:        true,
				RetryAfter:      retryAfter,
				ResponseMessage: rl.config.OnRateLimited(telegramID, retryAfter),
			}
		}
		delete(rl.bans, telegramID)
	}

	b := rl.buckets[telegramID]
	if b == nil {
		b = &bucket{tokens: float64(rl.config.BurstSize), lastRefill: now}
		rl.buckets[telegramID] = b
	}

	// Refill for the time elapsed since the last check, capped at the
	// burst size.
	refillRate := float64(rl.config.RequestsPerMinute) / 60.0
	b.tokens += now.Sub(b.lastRefill).Seconds() * refillRate
	if max := float64(rl.config.BurstSize); b.tokens > max {
		b.tokens = max
	}
	b.lastRefill = now

	if b.tokens >= 1.0 {
		b.tokens--
		return &RateLimitResult{Allowed: true}
	}

	retryAfter := time.Duration((1.0 - b.tokens) / refillRate * float64(time.Second))

	if rl.violate(b, now) >= rl.config.BanThreshold {
		rl.bans[telegramID] = now.Add(rl.config.BanDuration)
	}

	return &RateLimitResult{
		Allowed:         false,
		RetryAfter:      retryAfter,
		ResponseMessage: rl.config.OnRateLimited(telegramID, retryAfter),
	}
}

// violate bumps the violation counter, restarting the count after a
// quiet five minutes.
func (rl *RateLimiter) violate(b *bucket, now time.Time) int {
	if now.Sub(b.lastViolated) > 5*time.Minute {
		b.violations = 0
	}

	b.violations++
	b.lastViolated = now
	return b.violations
}

// cleanupLoop evicts idle state on the configured interval.
func (rl *RateLimiter) cleanupLoop() {
	interval := rl.config.CleanupInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		rl.cleanup()
	}
}

// cleanup drops buckets idle for ten minutes and expired bans.
func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()

	for id, b := range rl.buckets {
		if now.Sub(b.lastRefill) > 10*time.Minute {
			delete(rl.buckets, id)
		}
	}
	for id, until := range rl.bans {
		if now.After(until) {
			delete(rl.bans, id)
		}
	}
}
