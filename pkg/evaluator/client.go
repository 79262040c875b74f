// Package evaluator provides the uniform client capability wrapping one
// content evaluator: issue an evaluation call, enforce a deadline, and map
// transport failures to a typed result status. All five evaluator roles are
// instances of the same client keyed by their EvaluatorSpec.
package evaluator

import (
	"context"
	"fmt"
	"time"

	"github.com/arbiterai/arbiter-oss/pkg/domain"
)

// Client issues one evaluation call against a single evaluator. Evaluate
// never returns an error: evaluator-local failures are recovered into the
// result's status and must not propagate to the caller.
type Client interface {
	// Spec returns the immutable configuration this client was built with.
	Spec() domain.EvaluatorSpec

	// Evaluate runs one evaluation bounded by the per-evaluator deadline
	// (and any earlier deadline already on ctx).
	Evaluate(ctx context.Context, req *domain.EvaluationRequest) domain.EvaluatorResult
}

// Response is the raw payload an evaluator returns for one call: a numeric
// metric for the four scored roles, or a categorical risk level for the
// legal-risk role.
type Response struct {
	Metric float64          `json:"metric"`
	Risk   domain.RiskLevel `json:"risk_level,omitempty"`
	Detail string           `json:"detail,omitempty"`
}

// finalize derives a verdict from a raw evaluator response against the
// spec's threshold, validating the metric domain first. A metric outside
// its declared domain, or an unknown risk level, is a malformed response.
func finalize(spec domain.EvaluatorSpec, resp Response, latency time.Duration) domain.EvaluatorResult {
	res := domain.EvaluatorResult{
		Role:    spec.Role,
		Status:  domain.StatusOK,
		Detail:  resp.Detail,
		Latency: latency,
	}

	if spec.Role == domain.RoleLegal {
		if !domain.ValidRiskLevel(resp.Risk) {
			return failure(spec, domain.StatusTransportError,
				fmt.Sprintf("malformed response: unknown risk level %q", resp.Risk), latency)
		}
		res.Risk = resp.Risk
		if resp.Risk.Blocking() {
			res.Verdict = domain.VerdictVeto
		} else {
			res.Verdict = domain.VerdictPass
		}
		return res
	}

	if spec.Domain.Max > spec.Domain.Min && !spec.Domain.Contains(resp.Metric) {
		return failure(spec, domain.StatusTransportError,
			fmt.Sprintf("malformed response: metric %.4f outside domain [%.2f, %.2f]",
				resp.Metric, spec.Domain.Min, spec.Domain.Max), latency)
	}

	res.Metric = resp.Metric
	if resp.Metric >= spec.Threshold {
		res.Verdict = domain.VerdictPass
	} else {
		res.Verdict = domain.VerdictVeto
	}
	return res
}

// failure builds a non-OK result for the given status.
func failure(spec domain.EvaluatorSpec, status domain.EvaluatorStatus, detail string, latency time.Duration) domain.EvaluatorResult {
	return domain.EvaluatorResult{
		Role:    spec.Role,
		Status:  status,
		Detail:  detail,
		Latency: latency,
	}
}
