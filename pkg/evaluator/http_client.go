package evaluator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/arbiterai/arbiter-oss/pkg/domain"
)

// maxResponseBytes caps how much of an evaluator response is read; a metric
// payload is tiny and anything larger is malformed.
const maxResponseBytes = 1 << 20

// evaluateRequest is the wire payload sent to an evaluator.
type evaluateRequest struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// HTTPClient calls one evaluator over HTTP. The evaluator exposes a single
// synchronous POST {address}/evaluate accepting narrative content plus
// metadata and returning a metric or risk level.
type HTTPClient struct {
	spec   domain.EvaluatorSpec
	client *http.Client
	logger *slog.Logger
}

// NewHTTPClient builds a client for the given spec. The per-call deadline
// comes from spec.Timeout; the underlying http.Client carries no timeout of
// its own so context cancellation is the single source of truth.
func NewHTTPClient(spec domain.EvaluatorSpec, logger *slog.Logger) *HTTPClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPClient{
		spec:   spec,
		client: &http.Client{},
		logger: logger.With("evaluator", string(spec.Role)),
	}
}

// Spec returns the evaluator specification.
func (c *HTTPClient) Spec() domain.EvaluatorSpec { return c.spec }

// Evaluate issues the call. It never blocks past the per-evaluator deadline:
// on expiry the result status is TIMEOUT. Transport failures (connection
// refused, bad status, malformed or out-of-domain response) map to
// TRANSPORT_ERROR; the raw error is logged here and never propagated.
func (c *HTTPClient) Evaluate(ctx context.Context, req *domain.EvaluationRequest) domain.EvaluatorResult {
	start := time.Now()

	if c.spec.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.spec.Timeout)
		defer cancel()
	}

	body, err := json.Marshal(evaluateRequest{Content: req.Content, Metadata: req.Metadata})
	if err != nil {
		return c.fail(domain.StatusTransportError, fmt.Errorf("encode request: %w", err), start)
	}

	url := strings.TrimSuffix(c.spec.Address, "/") + "/evaluate"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return c.fail(domain.StatusTransportError, fmt.Errorf("build request: %w", err), start)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return c.fail(domain.StatusTimeout, err, start)
		}
		if errors.Is(err, context.Canceled) {
			// The coordinator abandoned this call at the global deadline.
			return c.fail(domain.StatusTimeout, err, start)
		}
		return c.fail(domain.StatusTransportError, err, start)
	}
	defer func() { _ = httpResp.Body.Close() }()

	if httpResp.StatusCode != http.StatusOK {
		return c.fail(domain.StatusTransportError,
			fmt.Errorf("unexpected status %d", httpResp.StatusCode), start)
	}

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return c.fail(domain.StatusTimeout, err, start)
		}
		return c.fail(domain.StatusTransportError, fmt.Errorf("read response: %w", err), start)
	}

	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return c.fail(domain.StatusTransportError, fmt.Errorf("decode response: %w", err), start)
	}

	return finalize(c.spec, resp, time.Since(start))
}

func (c *HTTPClient) fail(status domain.EvaluatorStatus, err error, start time.Time) domain.EvaluatorResult {
	latency := time.Since(start)
	c.logger.Warn("evaluator call failed", "status", string(status), "error", err, "latency", latency)
	return failure(c.spec, status, status.Describe(), latency)
}
