package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/arbiterai/arbiter-oss/pkg/domain"
)

var (
	metricsOnce           sync.Once
	metricsInitErr        error
	decisionCounter       metric.Int64Counter
	decisionLatency       metric.Float64Histogram
	evaluatorCallCounter  metric.Int64Counter
	evaluatorCallLatency  metric.Float64Histogram
	evaluatorVetoCounter  metric.Int64Counter
	ledgerRefusalsCounter metric.Int64Counter
)

// DecisionMetrics captures one fused governance decision.
type DecisionMetrics struct {
	Outcome  domain.Outcome
	Duration time.Duration
}

// RecordDecision emits the counters and histogram describing one decision.
func RecordDecision(ctx context.Context, m DecisionMetrics) {
	if err := ensureMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String("governance.outcome", string(m.Outcome)))
	decisionCounter.Add(ctx, 1, attrs)
	if m.Duration > 0 {
		decisionLatency.Record(ctx, float64(m.Duration)/float64(time.Millisecond), attrs)
	}
}

// EvaluatorCallMetrics captures one evaluator call as seen by the fan-out.
type EvaluatorCallMetrics struct {
	Role    domain.EvaluatorRole
	Status  domain.EvaluatorStatus
	Verdict domain.Verdict
	Latency time.Duration
}

// RecordEvaluatorCall emits per-evaluator call telemetry.
func RecordEvaluatorCall(ctx context.Context, m EvaluatorCallMetrics) {
	if err := ensureMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("evaluator.role", string(m.Role)),
		attribute.String("evaluator.status", string(m.Status)),
	)
	evaluatorCallCounter.Add(ctx, 1, attrs)
	if m.Latency > 0 {
		evaluatorCallLatency.Record(ctx, float64(m.Latency)/float64(time.Millisecond), attrs)
	}
	if m.Verdict == domain.VerdictVeto {
		evaluatorVetoCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("evaluator.role", string(m.Role))))
	}
}

// RecordLedgerRefusal counts appends refused because the chain is poisoned.
func RecordLedgerRefusal(ctx context.Context) {
	if err := ensureMetrics(); err != nil {
		return
	}
	ledgerRefusalsCounter.Add(ctx, 1)
}

func ensureMetrics() error {
	metricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter("arbiter.governance")

		decisionCounter, metricsInitErr = meter.Int64Counter(
			"governance.decisions_total",
			metric.WithDescription("Governance decisions partitioned by outcome"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		decisionLatency, metricsInitErr = meter.Float64Histogram(
			"governance.decision_duration",
			metric.WithDescription("End-to-end duration of one governance decision"),
			metric.WithUnit("ms"),
		)
		if metricsInitErr != nil {
			return
		}

		evaluatorCallCounter, metricsInitErr = meter.Int64Counter(
			"governance.evaluator.calls_total",
			metric.WithDescription("Evaluator calls partitioned by role and status"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		evaluatorCallLatency, metricsInitErr = meter.Float64Histogram(
			"governance.evaluator.call_duration",
			metric.WithDescription("Latency of individual evaluator calls"),
			metric.WithUnit("ms"),
		)
		if metricsInitErr != nil {
			return
		}

		evaluatorVetoCounter, metricsInitErr = meter.Int64Counter(
			"governance.evaluator.vetoes_total",
			metric.WithDescription("Veto verdicts partitioned by evaluator role"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		ledgerRefusalsCounter, metricsInitErr = meter.Int64Counter(
			"governance.ledger.refusals_total",
			metric.WithDescription("Appends refused because the attestation chain is poisoned"),
			metric.WithUnit("{count}"),
		)
	})
	return metricsInitErr
}
