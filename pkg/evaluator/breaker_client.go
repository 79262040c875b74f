package evaluator

import (
	"context"

	"github.com/arbiterai/arbiter-oss/internal/governance"
	"github.com/arbiterai/arbiter-oss/pkg/domain"
)

// BreakerClient wraps a Client with that evaluator's circuit breaker. When
// the breaker is open the call short-circuits immediately with status
// BREAKER_OPEN and no network attempt; every attempt that does go through
// is reported to the breaker, success or failure.
type BreakerClient struct {
	inner   Client
	breaker *governance.Breaker
}

// NewBreakerClient wraps inner with the given breaker.
func NewBreakerClient(inner Client, breaker *governance.Breaker) *BreakerClient {
	return &BreakerClient{inner: inner, breaker: breaker}
}

// Spec returns the wrapped client's specification.
func (c *BreakerClient) Spec() domain.EvaluatorSpec { return c.inner.Spec() }

// Evaluate consults the breaker, delegates, and records the outcome.
func (c *BreakerClient) Evaluate(ctx context.Context, req *domain.EvaluationRequest) domain.EvaluatorResult {
	if err := c.breaker.Allow(); err != nil {
		return failure(c.inner.Spec(), domain.StatusBreakerOpen, domain.StatusBreakerOpen.Describe(), 0)
	}

	res := c.inner.Evaluate(ctx, req)
	c.breaker.Record(res.Status)
	return res
}
