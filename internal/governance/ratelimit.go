package governance

import (
	"sync"
	"time"
)

// RateLimiterConfig defines token bucket settings for the caller boundary.
// A zero RequestsPerSecond disables limiting.
type RateLimiterConfig struct {
	RequestsPerSecond int
	BurstSize         int
}

// RateLimiter implements token bucket rate limiting for evaluation
// submissions. Audit and statistics reads are never limited.
type RateLimiter struct {
	mu       sync.Mutex
	rate     float64
	burst    float64
	tokens   float64
	last     time.Time
	rejected uint64
	allowed  uint64
}

// NewRateLimiter creates a rate limiter with the provided configuration.
// Returns nil when limiting is disabled; a nil limiter allows everything.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	if cfg.RequestsPerSecond <= 0 {
		return nil
	}
	burst := cfg.BurstSize
	if burst <= 0 {
		burst = cfg.RequestsPerSecond
	}
	return &RateLimiter{
		rate:   float64(cfg.RequestsPerSecond),
		burst:  float64(burst),
		tokens: float64(burst),
		last:   time.Now(),
	}
}

// Allow reports whether one submission may proceed now.
func (rl *RateLimiter) Allow() bool {
	if rl == nil {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(rl.last).Seconds()
	rl.last = now
	rl.tokens += elapsed * rl.rate
	if rl.tokens > rl.burst {
		rl.tokens = rl.burst
	}

	if rl.tokens < 1 {
		rl.rejected++
		return false
	}
	rl.tokens--
	rl.allowed++
	return true
}

// RateLimitStats exposes current state of the rate limit bucket.
type RateLimitStats struct {
	Limit     float64 `json:"limit"`
	BurstSize float64 `json:"burstSize"`
	Available float64 `json:"available"`
	Allowed   uint64  `json:"allowed"`
	Rejected  uint64  `json:"rejected"`
}

// Stats returns current rate limiter statistics.
func (rl *RateLimiter) Stats() RateLimitStats {
	if rl == nil {
		return RateLimitStats{}
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return RateLimitStats{
		Limit:     rl.rate,
		BurstSize: rl.burst,
		Available: rl.tokens,
		Allowed:   rl.allowed,
		Rejected:  rl.rejected,
	}
}
