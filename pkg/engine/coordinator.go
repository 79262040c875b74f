package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/arbiterai/arbiter-oss/pkg/archive"
	"github.com/arbiterai/arbiter-oss/pkg/domain"
	"github.com/arbiterai/arbiter-oss/pkg/evaluator"
	"github.com/arbiterai/arbiter-oss/pkg/ledger"
	"github.com/arbiterai/arbiter-oss/pkg/telemetry"
)

const (
	defaultGlobalDeadline = 5 * time.Second
	archiveTimeout        = 10 * time.Second
)

// Config holds coordinator settings.
type Config struct {
	// GlobalDeadline bounds the whole fan-out. It is independent of, and
	// typically larger than, the per-evaluator deadlines so stragglers are
	// excluded cleanly rather than truncating healthy calls.
	GlobalDeadline time.Duration
	// Archive, when set, receives every appended record fire-and-forget.
	Archive archive.Sink
	Logger  *slog.Logger
}

// Coordinator fans one evaluation request out to all configured evaluators
// concurrently, fans results back in under the global deadline, fuses them,
// and appends the decision to the ledger exactly once, synchronously,
// before returning. The caller never observes a decision that is not yet
// durably recorded.
type Coordinator struct {
	clients []evaluator.Client
	ledger  *ledger.Ledger
	sink    archive.Sink
	logger  *slog.Logger
	global  time.Duration
	tracer  trace.Tracer

	archiveWG sync.WaitGroup
}

// New builds a coordinator over the given evaluator clients and ledger.
func New(clients []evaluator.Client, led *ledger.Ledger, cfg Config) *Coordinator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	global := cfg.GlobalDeadline
	if global <= 0 {
		global = defaultGlobalDeadline
	}
	return &Coordinator{
		clients: clients,
		ledger:  led,
		sink:    cfg.Archive,
		logger:  logger,
		global:  global,
		tracer:  otel.Tracer("arbiter.engine"),
	}
}

// Ledger exposes the coordinator's ledger for the read-only query surfaces.
func (c *Coordinator) Ledger() *ledger.Ledger { return c.ledger }

// Process runs one request through the full pipeline. Evaluator-local
// failures never surface as errors; the only error a caller can see is a
// ledger integrity failure, in which case no decision is returned at all.
func (c *Coordinator) Process(ctx context.Context, req *domain.EvaluationRequest) (*domain.GovernanceDecision, *domain.AttestationRecord, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	ctx, span := c.tracer.Start(ctx, "governance.process",
		trace.WithAttributes(attribute.String("request.id", req.ID)))
	defer span.End()

	start := time.Now()
	results := c.fanOut(ctx, req)
	decision := Fuse(req.ID, results)

	rec, err := c.ledger.Append(ctx, req.ContentDigest(), decision)
	if err != nil {
		telemetry.RecordLedgerRefusal(ctx)
		c.logger.Error("ledger append refused", "request_id", req.ID, "error", err)
		return nil, nil, err
	}

	telemetry.RecordDecision(ctx, telemetry.DecisionMetrics{
		Outcome:  decision.Outcome,
		Duration: time.Since(start),
	})
	span.SetAttributes(
		attribute.String("governance.outcome", string(decision.Outcome)),
		attribute.Int64("ledger.sequence", int64(rec.Sequence)), // #nosec G115 -- sequence fits well under int64
	)
	c.logger.Info("governance decision recorded",
		"request_id", req.ID,
		"outcome", string(decision.Outcome),
		"sequence", rec.Sequence,
		"duration", time.Since(start))

	c.archiveAsync(rec)
	return &decision, rec, nil
}

// BatchItem is the per-item result of a batch run: exactly one of Record
// or Err is set.
type BatchItem struct {
	Decision *domain.GovernanceDecision
	Record   *domain.AttestationRecord
	Err      error
}

// ProcessBatch applies Process independently to each item, preserving
// per-item isolation: one item's failure or veto never affects another's
// outcome or ledger entry. Items are processed in order so ledger sequence
// follows batch order.
func (c *Coordinator) ProcessBatch(ctx context.Context, reqs []*domain.EvaluationRequest) []BatchItem {
	items := make([]BatchItem, len(reqs))
	for i, req := range reqs {
		decision, rec, err := c.Process(ctx, req)
		items[i] = BatchItem{Decision: decision, Record: rec, Err: err}
	}
	return items
}

// fanOut dispatches one call per configured evaluator concurrently and
// collects results until all respond or the global deadline fires.
// Exactly one result per evaluator is returned: evaluators that have not
// responded in time are recorded with status TIMEOUT and their outstanding
// calls abandoned via context cancellation, without waiting for them to
// unwind.
func (c *Coordinator) fanOut(ctx context.Context, req *domain.EvaluationRequest) []domain.EvaluatorResult {
	ctx, cancel := context.WithTimeout(ctx, c.global)
	defer cancel()

	// Buffered so abandoned calls can still deliver without leaking their
	// goroutines.
	ch := make(chan domain.EvaluatorResult, len(c.clients))
	for _, client := range c.clients {
		go func(client evaluator.Client) {
			ch <- client.Evaluate(ctx, req)
		}(client)
	}

	collected := make(map[domain.EvaluatorRole]domain.EvaluatorResult, len(c.clients))
	deadline := ctx.Done()
	for len(collected) < len(c.clients) {
		select {
		case res := <-ch:
			collected[res.Role] = res
		case <-deadline:
			// Stop waiting; everything still outstanding is a timeout.
			deadline = nil
		}
		if deadline == nil {
			break
		}
	}

	results := make([]domain.EvaluatorResult, 0, len(c.clients))
	for _, client := range c.clients {
		spec := client.Spec()
		res, ok := collected[spec.Role]
		if !ok {
			res = domain.EvaluatorResult{
				Role:    spec.Role,
				Status:  domain.StatusTimeout,
				Detail:  "global evaluation deadline exceeded",
				Latency: c.global,
			}
		}
		telemetry.RecordEvaluatorCall(ctx, telemetry.EvaluatorCallMetrics{
			Role:    spec.Role,
			Status:  res.Status,
			Verdict: res.Verdict,
			Latency: res.Latency,
		})
		results = append(results, res)
	}
	return results
}

// archiveAsync forwards a committed record to the archival sink without
// blocking the decision path. Failures are logged and dropped; the append
// has already been acknowledged.
func (c *Coordinator) archiveAsync(rec *domain.AttestationRecord) {
	if c.sink == nil {
		return
	}
	c.archiveWG.Add(1)
	go func() {
		defer c.archiveWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()
		addr, err := c.sink.Store(ctx, rec)
		if err != nil {
			c.logger.Warn("archival failed", "sequence", rec.Sequence, "error", err)
			return
		}
		c.logger.Debug("record archived", "sequence", rec.Sequence, "address", addr)
	}()
}

// Close waits for outstanding archival deliveries to settle.
func (c *Coordinator) Close() {
	c.archiveWG.Wait()
}
