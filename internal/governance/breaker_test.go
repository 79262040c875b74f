package governance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbiterai/arbiter-oss/pkg/domain"
)

func newTestBreaker(cfg BreakerConfig) (*Breaker, *time.Time) {
	b := NewBreaker(cfg)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }
	return b, &now
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b, _ := newTestBreaker(BreakerConfig{FailureThreshold: 3, Window: 30 * time.Second, Cooldown: 10 * time.Second})

	for i := 0; i < 2; i++ {
		require.NoError(t, b.Allow())
		b.Record(domain.StatusTimeout)
		assert.Equal(t, StateClosed, b.State())
	}

	require.NoError(t, b.Allow())
	b.Record(domain.StatusTransportError)
	assert.Equal(t, StateOpen, b.State())
	assert.ErrorIs(t, b.Allow(), ErrBreakerOpen)
}

func TestBreakerSuccessResetsStreak(t *testing.T) {
	b, _ := newTestBreaker(BreakerConfig{FailureThreshold: 2, Window: 30 * time.Second, Cooldown: time.Second})

	b.Record(domain.StatusTimeout)
	b.Record(domain.StatusOK)
	b.Record(domain.StatusTimeout)
	assert.Equal(t, StateClosed, b.State())

	b.Record(domain.StatusTimeout)
	assert.Equal(t, StateOpen, b.State())
}

func TestBreakerWindowExpiresStreak(t *testing.T) {
	b, now := newTestBreaker(BreakerConfig{FailureThreshold: 2, Window: 10 * time.Second, Cooldown: time.Second})

	b.Record(domain.StatusTimeout)
	*now = now.Add(11 * time.Second)
	// The earlier failure is outside the window, so this is a streak of one.
	b.Record(domain.StatusTimeout)
	assert.Equal(t, StateClosed, b.State())

	b.Record(domain.StatusTimeout)
	assert.Equal(t, StateOpen, b.State())
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	b, now := newTestBreaker(BreakerConfig{FailureThreshold: 1, Window: 30 * time.Second, Cooldown: 5 * time.Second})

	b.Record(domain.StatusTransportError)
	require.Equal(t, StateOpen, b.State())
	require.ErrorIs(t, b.Allow(), ErrBreakerOpen)

	*now = now.Add(5 * time.Second)

	// Cooldown elapsed: exactly one probe passes.
	require.NoError(t, b.Allow())
	assert.Equal(t, StateHalfOpen, b.State())
	assert.ErrorIs(t, b.Allow(), ErrBreakerOpen)

	b.Record(domain.StatusOK)
	assert.Equal(t, StateClosed, b.State())
	assert.NoError(t, b.Allow())
}

func TestBreakerHalfOpenProbeFailureReopens(t *testing.T) {
	b, now := newTestBreaker(BreakerConfig{FailureThreshold: 1, Window: 30 * time.Second, Cooldown: 5 * time.Second})

	b.Record(domain.StatusTimeout)
	*now = now.Add(5 * time.Second)
	require.NoError(t, b.Allow())

	b.Record(domain.StatusTimeout)
	assert.Equal(t, StateOpen, b.State())
	assert.ErrorIs(t, b.Allow(), ErrBreakerOpen)
}

func TestBreakerSetSharedPerRole(t *testing.T) {
	set := NewBreakerSet(DefaultBreakerConfig())

	legal := set.For(domain.RoleLegal)
	assert.Same(t, legal, set.For(domain.RoleLegal))
	assert.NotSame(t, legal, set.For(domain.RoleFairness))

	stats := set.Stats()
	assert.Len(t, stats, 2)
	assert.Equal(t, string(StateClosed), stats[domain.RoleLegal].State)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{RequestsPerSecond: 1000, BurstSize: 2})
	assert.True(t, rl.Allow())
	assert.True(t, rl.Allow())
	// Burst exhausted; refill at this rate takes about a millisecond, so an
	// immediate third call is rejected.
	assert.False(t, rl.Allow())

	var disabled *RateLimiter
	assert.True(t, disabled.Allow())
}
