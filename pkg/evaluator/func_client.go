package evaluator

import (
	"context"
	"time"

	"github.com/arbiterai/arbiter-oss/pkg/domain"
)

// EvalFunc produces a raw evaluator response for one request. An error is
// treated as a transport failure.
type EvalFunc func(ctx context.Context, req *domain.EvaluationRequest) (Response, error)

// funcClient adapts an in-process scoring function to the Client contract.
// It applies the same deadline, domain validation, and verdict derivation
// as the HTTP client, so local and remote evaluators are interchangeable.
type funcClient struct {
	spec domain.EvaluatorSpec
	fn   EvalFunc
}

// NewFuncClient builds a Client from an in-process scoring function.
func NewFuncClient(spec domain.EvaluatorSpec, fn EvalFunc) Client {
	return &funcClient{spec: spec, fn: fn}
}

func (c *funcClient) Spec() domain.EvaluatorSpec { return c.spec }

func (c *funcClient) Evaluate(ctx context.Context, req *domain.EvaluationRequest) domain.EvaluatorResult {
	start := time.Now()

	if c.spec.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.spec.Timeout)
		defer cancel()
	}

	type outcome struct {
		resp Response
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		resp, err := c.fn(ctx, req)
		done <- outcome{resp, err}
	}()

	select {
	case <-ctx.Done():
		return failure(c.spec, domain.StatusTimeout, domain.StatusTimeout.Describe(), time.Since(start))
	case out := <-done:
		if out.err != nil {
			return failure(c.spec, domain.StatusTransportError, out.err.Error(), time.Since(start))
		}
		return finalize(c.spec, out.resp, time.Since(start))
	}
}
