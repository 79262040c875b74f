package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"time"
)

// EvaluatorRole identifies one of the five fixed governance dimensions.
type EvaluatorRole string

const (
	// RoleCoherence judges narrative coherence against a numeric score.
	RoleCoherence EvaluatorRole = "narrative-coherence"
	// RoleFactuality judges factual accuracy against a numeric index.
	RoleFactuality EvaluatorRole = "truth-safety"
	// RoleFairness judges fairness and representation against a numeric score.
	RoleFairness EvaluatorRole = "fairness"
	// RoleLegal assesses legal exposure as a categorical risk level.
	RoleLegal EvaluatorRole = "legal-risk"
	// RoleTransparency judges submission completeness for the audit trail.
	RoleTransparency EvaluatorRole = "transparency"
)

// Roles returns all evaluator roles in their canonical order. The order is
// used for stable presentation only; decision fusion is order-independent.
func Roles() []EvaluatorRole {
	return []EvaluatorRole{
		RoleCoherence,
		RoleFactuality,
		RoleFairness,
		RoleLegal,
		RoleTransparency,
	}
}

// ValidRole reports whether r is one of the five configured roles.
func ValidRole(r EvaluatorRole) bool {
	switch r {
	case RoleCoherence, RoleFactuality, RoleFairness, RoleLegal, RoleTransparency:
		return true
	}
	return false
}

// EvaluationRequest carries one narrative submission through the engine.
// It is immutable once created; the engine retains only its content digest
// after the request completes.
type EvaluationRequest struct {
	ID       string            `json:"id"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ContentDigest returns the SHA-256 digest of the request content plus its
// metadata, folded in sorted key order so the digest is deterministic.
func (r *EvaluationRequest) ContentDigest() string {
	h := sha256.New()
	h.Write([]byte(r.Content))

	keys := make([]string, 0, len(r.Metadata))
	for k := range r.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.Write([]byte{0})
		h.Write([]byte(k))
		h.Write([]byte{'='})
		h.Write([]byte(r.Metadata[k]))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// MetricDomain bounds the valid metric range an evaluator may report.
// Values outside the domain are treated as malformed responses.
type MetricDomain struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// Contains reports whether v lies inside the domain (inclusive).
func (d MetricDomain) Contains(v float64) bool {
	return v >= d.Min && v <= d.Max
}

// EvaluatorSpec is the immutable startup configuration for one evaluator.
type EvaluatorSpec struct {
	Role      EvaluatorRole `json:"role" yaml:"role"`
	Name      string        `json:"name" yaml:"name"`
	Address   string        `json:"address" yaml:"address"`
	Threshold float64       `json:"threshold" yaml:"threshold"`
	Domain    MetricDomain  `json:"domain" yaml:"domain"`
	Timeout   time.Duration `json:"timeout" yaml:"timeout"`
}

// EvaluatorStatus tags how an evaluator call concluded.
type EvaluatorStatus string

const (
	// StatusOK means the evaluator returned a usable metric.
	StatusOK EvaluatorStatus = "OK"
	// StatusTimeout means the call exceeded its deadline.
	StatusTimeout EvaluatorStatus = "TIMEOUT"
	// StatusTransportError means the call failed at the transport layer or
	// the response was malformed (including out-of-domain metrics).
	StatusTransportError EvaluatorStatus = "TRANSPORT_ERROR"
	// StatusBreakerOpen means the call was short-circuited without a
	// network attempt because the evaluator's circuit breaker is open.
	StatusBreakerOpen EvaluatorStatus = "BREAKER_OPEN"
)

// Describe returns a short human-readable description of the status,
// suitable for the result detail and decision reasons.
func (s EvaluatorStatus) Describe() string {
	switch s {
	case StatusOK:
		return "evaluation completed"
	case StatusTimeout:
		return "evaluation deadline exceeded"
	case StatusTransportError:
		return "evaluator unreachable or response malformed"
	case StatusBreakerOpen:
		return "circuit breaker open, call suppressed"
	}
	return string(s)
}

// Verdict is an evaluator's pass/fail judgement derived from its metric.
type Verdict string

const (
	// VerdictPass means the metric met the configured threshold.
	VerdictPass Verdict = "PASS"
	// VerdictVeto means the metric fell below the configured threshold.
	VerdictVeto Verdict = "VETO"
)

// RiskLevel is the categorical legal exposure reported by the legal-risk
// evaluator, ordered LOW < MEDIUM < HIGH < CRITICAL.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// ValidRiskLevel reports whether l is a known risk level.
func ValidRiskLevel(l RiskLevel) bool {
	switch l {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return true
	}
	return false
}

// Blocking reports whether the level is a hard legal stop.
func (l RiskLevel) Blocking() bool {
	return l == RiskHigh || l == RiskCritical
}

// EvaluatorResult is the normalized outcome of one evaluator call. Exactly
// one result per configured evaluator reaches decision fusion, whatever the
// status. Metric and Verdict are meaningful only when Status is OK; Risk is
// meaningful only for the legal-risk role.
type EvaluatorResult struct {
	Role    EvaluatorRole   `json:"role"`
	Status  EvaluatorStatus `json:"status"`
	Metric  float64         `json:"metric,omitempty"`
	Verdict Verdict         `json:"verdict,omitempty"`
	Risk    RiskLevel       `json:"risk,omitempty"`
	Detail  string          `json:"detail,omitempty"`
	Latency time.Duration   `json:"latency_ns"`
}

// OK reports whether the evaluator produced a usable metric.
func (r EvaluatorResult) OK() bool {
	return r.Status == StatusOK
}
