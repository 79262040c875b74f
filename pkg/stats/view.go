// Package stats derives the aggregate governance view by folding over the
// attestation ledger. The ledger is the single source of truth; the view
// keeps no counters of its own, only a cache invalidated by ledger growth,
// so the aggregates can never drift from the records.
package stats

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/arbiterai/arbiter-oss/pkg/domain"
	"github.com/arbiterai/arbiter-oss/pkg/ledger"
)

// EvaluatorStats aggregates one evaluator's behaviour across all records.
type EvaluatorStats struct {
	Calls           uint64  `json:"calls"`
	OK              uint64  `json:"ok"`
	Passes          uint64  `json:"passes"`
	Vetoes          uint64  `json:"vetoes"`
	Timeouts        uint64  `json:"timeouts"`
	TransportErrors uint64  `json:"transport_errors"`
	BreakerOpen     uint64  `json:"breaker_open"`
	MeanLatencyMS   float64 `json:"mean_latency_ms"`
}

// LatencyStats summarizes the distribution of evaluator call latencies.
type LatencyStats struct {
	MinMS  float64 `json:"min_ms"`
	MeanMS float64 `json:"mean_ms"`
	P95MS  float64 `json:"p95_ms"`
	MaxMS  float64 `json:"max_ms"`
}

// Report is the aggregate governance view at one ledger generation.
type Report struct {
	Total        uint64                                  `json:"total"`
	Outcomes     map[domain.Outcome]uint64               `json:"outcomes"`
	ApprovalRate float64                                 `json:"approval_rate"`
	Evaluators   map[domain.EvaluatorRole]EvaluatorStats `json:"evaluators"`
	Latency      LatencyStats                            `json:"latency"`
	GeneratedAt  time.Time                               `json:"generated_at"`
}

// View folds the ledger into a Report on demand.
type View struct {
	led *ledger.Ledger

	mu       sync.Mutex
	cached   Report
	cachedAt uint64
	valid    bool
}

// New creates a view over the given ledger.
func New(led *ledger.Ledger) *View {
	return &View{led: led}
}

// Report returns the aggregate view for the current ledger state. The fold
// is recomputed only when the ledger has grown since the cached pass; the
// ledger being append-only makes record count a sufficient generation tag.
func (v *View) Report(ctx context.Context) (Report, error) {
	count, err := v.led.Count(ctx)
	if err != nil {
		return Report{}, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.valid && v.cachedAt == count {
		return v.cached, nil
	}

	report, err := v.fold(ctx)
	if err != nil {
		return Report{}, err
	}
	v.cached = report
	v.cachedAt = count
	v.valid = true
	return report, nil
}

func (v *View) fold(ctx context.Context) (Report, error) {
	report := Report{
		Outcomes:    make(map[domain.Outcome]uint64),
		Evaluators:  make(map[domain.EvaluatorRole]EvaluatorStats),
		GeneratedAt: time.Now().UTC(),
	}
	latencySums := make(map[domain.EvaluatorRole]time.Duration)
	var latencies []float64

	it := v.led.Iterate()
	for it.Next(ctx) {
		rec := it.Record()
		report.Total++
		report.Outcomes[rec.Decision.Outcome]++

		for _, res := range rec.Decision.Results {
			s := report.Evaluators[res.Role]
			s.Calls++
			switch res.Status {
			case domain.StatusOK:
				s.OK++
				if res.Verdict == domain.VerdictVeto {
					s.Vetoes++
				} else {
					s.Passes++
				}
			case domain.StatusTimeout:
				s.Timeouts++
			case domain.StatusTransportError:
				s.TransportErrors++
			case domain.StatusBreakerOpen:
				s.BreakerOpen++
			}
			report.Evaluators[res.Role] = s
			latencySums[res.Role] += res.Latency
			latencies = append(latencies, float64(res.Latency)/float64(time.Millisecond))
		}
	}
	if err := it.Err(); err != nil {
		return Report{}, err
	}

	for role, s := range report.Evaluators {
		if s.Calls > 0 {
			s.MeanLatencyMS = float64(latencySums[role]) / float64(time.Millisecond) / float64(s.Calls)
			report.Evaluators[role] = s
		}
	}
	if report.Total > 0 {
		report.ApprovalRate = float64(report.Outcomes[domain.OutcomeApproved]) / float64(report.Total)
	}
	report.Latency = summarize(latencies)
	return report, nil
}

func summarize(ms []float64) LatencyStats {
	if len(ms) == 0 {
		return LatencyStats{}
	}
	sort.Float64s(ms)
	sum := 0.0
	for _, v := range ms {
		sum += v
	}
	idx := (len(ms) * 95) / 100
	if idx >= len(ms) {
		idx = len(ms) - 1
	}
	return LatencyStats{
		MinMS:  ms[0],
		MeanMS: sum / float64(len(ms)),
		P95MS:  ms[idx],
		MaxMS:  ms[len(ms)-1],
	}
}
