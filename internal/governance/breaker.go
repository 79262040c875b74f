package governance

import (
	"errors"
	"sync"
	"time"

	"github.com/arbiterai/arbiter-oss/pkg/domain"
)

// ErrBreakerOpen is returned when a call is short-circuited because the
// breaker is in the open state.
var ErrBreakerOpen = errors.New("circuit breaker is open")

// BreakerState represents the state of a circuit breaker.
type BreakerState string

const (
	// StateClosed indicates calls pass through to the evaluator.
	StateClosed BreakerState = "closed"
	// StateOpen indicates calls short-circuit without a network attempt.
	StateOpen BreakerState = "open"
	// StateHalfOpen indicates a single probe call is allowed through.
	StateHalfOpen BreakerState = "half-open"
)

// BreakerConfig defines the thresholds for one evaluator's breaker.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures within the
	// sliding window that opens the breaker.
	FailureThreshold int
	// Window bounds the failure streak: a failure older than Window no
	// longer counts toward the consecutive total.
	Window time.Duration
	// Cooldown is how long the breaker stays open before allowing a probe.
	Cooldown time.Duration
}

// DefaultBreakerConfig returns sensible defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 3,
		Window:           30 * time.Second,
		Cooldown:         10 * time.Second,
	}
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	d := DefaultBreakerConfig()
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.Window <= 0 {
		c.Window = d.Window
	}
	if c.Cooldown <= 0 {
		c.Cooldown = d.Cooldown
	}
	return c
}

// Breaker tracks recent failure history for one evaluator and suppresses
// calls while the failure streak is excessive.
//
// Transitions: CLOSED to OPEN after FailureThreshold consecutive failures
// inside the window; OPEN to HALF_OPEN once the cooldown elapses; HALF_OPEN
// to CLOSED on one probe success, back to OPEN on one probe failure.
type Breaker struct {
	mu     sync.Mutex
	config BreakerConfig
	state  BreakerState

	consecutive int
	lastFailure time.Time
	openedAt    time.Time
	probing     bool

	totalFailures  uint64
	totalSuccesses uint64
	totalRejected  uint64
	lastTransition time.Time

	now func() time.Time // injectable for tests
}

// NewBreaker creates a breaker with the provided configuration.
func NewBreaker(config BreakerConfig) *Breaker {
	return &Breaker{
		config:         config.withDefaults(),
		state:          StateClosed,
		now:            time.Now,
		lastTransition: time.Now(),
	}
}

// Allow reports whether a call may proceed. In the open state it returns
// ErrBreakerOpen until the cooldown elapses, at which point exactly one
// probe is let through in the half-open state.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if now.Sub(b.openedAt) >= b.config.Cooldown {
			b.transitionLocked(StateHalfOpen, now)
			b.probing = true
			return nil
		}
		b.totalRejected++
		return ErrBreakerOpen
	case StateHalfOpen:
		if !b.probing {
			b.probing = true
			return nil
		}
		b.totalRejected++
		return ErrBreakerOpen
	}
	return nil
}

// Record reports the outcome of an attempt. Every attempt that passed Allow
// must be recorded exactly once, success or failure.
func (b *Breaker) Record(status domain.EvaluatorStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	failed := status == domain.StatusTimeout || status == domain.StatusTransportError

	if failed {
		b.totalFailures++
	} else {
		b.totalSuccesses++
	}

	switch b.state {
	case StateHalfOpen:
		b.probing = false
		if failed {
			b.transitionLocked(StateOpen, now)
		} else {
			b.transitionLocked(StateClosed, now)
		}
	case StateClosed:
		if !failed {
			b.consecutive = 0
			return
		}
		// Failures outside the window no longer count toward the streak.
		if !b.lastFailure.IsZero() && now.Sub(b.lastFailure) > b.config.Window {
			b.consecutive = 0
		}
		b.consecutive++
		b.lastFailure = now
		if b.consecutive >= b.config.FailureThreshold {
			b.transitionLocked(StateOpen, now)
		}
	case StateOpen:
		// A failure recorded while open (a late in-flight call) keeps the
		// breaker open; a success is ignored until the next probe.
	}
}

func (b *Breaker) transitionLocked(state BreakerState, now time.Time) {
	if b.state == state {
		return
	}
	b.state = state
	b.lastTransition = now
	b.consecutive = 0
	b.lastFailure = time.Time{}
	switch state {
	case StateOpen:
		b.openedAt = now
		b.probing = false
	case StateClosed, StateHalfOpen:
		b.openedAt = time.Time{}
	}
}

// State returns the current breaker state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// BreakerStats exposes breaker status for the admin surface.
type BreakerStats struct {
	State          string `json:"state"`
	Failures       uint64 `json:"failures"`
	Successes      uint64 `json:"successes"`
	Rejected       uint64 `json:"rejected"`
	LastTransition string `json:"last_transition"`
}

// Stats returns current breaker statistics.
func (b *Breaker) Stats() BreakerStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerStats{
		State:          string(b.state),
		Failures:       b.totalFailures,
		Successes:      b.totalSuccesses,
		Rejected:       b.totalRejected,
		LastTransition: b.lastTransition.Format(time.RFC3339),
	}
}

// BreakerSet manages one breaker per evaluator role.
type BreakerSet struct {
	mu       sync.RWMutex
	breakers map[domain.EvaluatorRole]*Breaker
	config   BreakerConfig
}

// NewBreakerSet creates a set that lazily builds breakers with the given
// configuration.
func NewBreakerSet(config BreakerConfig) *BreakerSet {
	return &BreakerSet{
		breakers: make(map[domain.EvaluatorRole]*Breaker),
		config:   config,
	}
}

// For returns the breaker for a role, creating one if needed.
func (s *BreakerSet) For(role domain.EvaluatorRole) *Breaker {
	s.mu.RLock()
	b, ok := s.breakers[role]
	s.mu.RUnlock()
	if ok {
		return b
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.breakers[role]; ok {
		return b
	}
	b = NewBreaker(s.config)
	s.breakers[role] = b
	return b
}

// Stats returns statistics for every breaker in the set.
func (s *BreakerSet) Stats() map[domain.EvaluatorRole]BreakerStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := make(map[domain.EvaluatorRole]BreakerStats, len(s.breakers))
	for role, b := range s.breakers {
		stats[role] = b.Stats()
	}
	return stats
}
