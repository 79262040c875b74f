// Package service exposes the governance engine over HTTP: submission,
// batch submission, the paginated audit trail, the aggregate statistics
// view, and ledger integrity operations.
package service

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/arbiterai/arbiter-oss/internal/governance"
	"github.com/arbiterai/arbiter-oss/pkg/domain"
	"github.com/arbiterai/arbiter-oss/pkg/engine"
	"github.com/arbiterai/arbiter-oss/pkg/stats"
)

const (
	maxContentBytes  = 1 << 20
	defaultAuditPage = 50
	maxAuditPage     = 500
	maxBatchItems    = 100
)

// Service is the HTTP surface over one coordinator.
type Service struct {
	coord   *engine.Coordinator
	view    *stats.View
	metrics *Metrics
	limiter *governance.RateLimiter
	logger  *slog.Logger
}

// New builds the service. limiter may be nil to disable submission rate
// limiting; metrics may be nil to disable Prometheus instrumentation.
func New(coord *engine.Coordinator, view *stats.View, metrics *Metrics, limiter *governance.RateLimiter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		coord:   coord,
		view:    view,
		metrics: metrics,
		limiter: limiter,
		logger:  logger,
	}
}

// Handler returns the routed HTTP handler for the service.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/evaluations", s.handleEvaluate)
	mux.HandleFunc("POST /v1/evaluations/batch", s.handleEvaluateBatch)
	mux.HandleFunc("GET /v1/audit", s.handleAudit)
	mux.HandleFunc("GET /v1/stats", s.handleStats)
	mux.HandleFunc("GET /v1/verify", s.handleVerify)
	mux.HandleFunc("POST /v1/verify/acknowledge", s.handleAcknowledge)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
		return s.metrics.Middleware(mux)
	}
	return mux
}

// evaluationResponse pairs the fused decision with its attestation record.
type evaluationResponse struct {
	Decision *domain.GovernanceDecision `json:"decision"`
	Record   *domain.AttestationRecord  `json:"record"`
}

func (s *Service) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	if !s.allowSubmission() {
		s.writeError(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "submission rate limit exceeded")
		return
	}

	var req domain.EvaluationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "MALFORMED_REQUEST", err.Error())
		return
	}
	if req.Content == "" {
		s.writeError(w, r, http.StatusBadRequest, "EMPTY_CONTENT", domain.ErrEmptyContent.Error())
		return
	}

	start := time.Now()
	decision, rec, err := s.coord.Process(r.Context(), &req)
	if err != nil {
		s.writeProcessError(w, r, err)
		return
	}
	if s.metrics != nil {
		s.metrics.RecordDecision(decision, time.Since(start))
		s.metrics.SetLedgerRecords(rec.Sequence)
	}

	s.writeJSON(w, http.StatusOK, evaluationResponse{Decision: decision, Record: rec})
}

type batchRequest struct {
	Items []domain.EvaluationRequest `json:"items"`
}

type batchItemResponse struct {
	Decision *domain.GovernanceDecision `json:"decision,omitempty"`
	Record   *domain.AttestationRecord  `json:"record,omitempty"`
	Error    *domain.ErrorResponse      `json:"error,omitempty"`
}

func (s *Service) handleEvaluateBatch(w http.ResponseWriter, r *http.Request) {
	if !s.allowSubmission() {
		s.writeError(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "submission rate limit exceeded")
		return
	}

	var batch batchRequest
	if err := decodeJSON(w, r, &batch); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "MALFORMED_REQUEST", err.Error())
		return
	}
	if len(batch.Items) == 0 {
		s.writeError(w, r, http.StatusBadRequest, "MALFORMED_REQUEST", "batch contains no items")
		return
	}
	if len(batch.Items) > maxBatchItems {
		s.writeError(w, r, http.StatusBadRequest, "MALFORMED_REQUEST", "batch exceeds "+strconv.Itoa(maxBatchItems)+" items")
		return
	}

	// Each item is processed in isolation: a veto, rejection or failure on
	// one never touches another's outcome or ledger entry.
	items := make([]batchItemResponse, len(batch.Items))
	for i := range batch.Items {
		req := &batch.Items[i]
		if req.Content == "" {
			items[i] = batchItemResponse{Error: &domain.ErrorResponse{
				Code:    "EMPTY_CONTENT",
				Message: domain.ErrEmptyContent.Error(),
			}}
			continue
		}
		itemStart := time.Now()
		decision, rec, err := s.coord.Process(r.Context(), req)
		if err != nil {
			items[i] = batchItemResponse{Error: s.errorBody(r, err)}
			continue
		}
		items[i] = batchItemResponse{Decision: decision, Record: rec}
		if s.metrics != nil {
			s.metrics.RecordDecision(decision, time.Since(itemStart))
			s.metrics.SetLedgerRecords(rec.Sequence)
		}
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

type auditResponse struct {
	Records []*domain.AttestationRecord `json:"records"`
	Next    uint64                      `json:"next,omitempty"`
}

func (s *Service) handleAudit(w http.ResponseWriter, r *http.Request) {
	from := uint64(1)
	if v := r.URL.Query().Get("from"); v != "" {
		parsed, err := strconv.ParseUint(v, 10, 64)
		if err != nil || parsed == 0 {
			s.writeError(w, r, http.StatusBadRequest, "MALFORMED_REQUEST", "from must be a positive sequence number")
			return
		}
		from = parsed
	}
	limit := defaultAuditPage
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			s.writeError(w, r, http.StatusBadRequest, "MALFORMED_REQUEST", "limit must be a positive integer")
			return
		}
		if parsed > maxAuditPage {
			parsed = maxAuditPage
		}
		limit = parsed
	}

	records, err := s.coord.Ledger().Records(r.Context(), from, limit)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, "INTERNAL", "failed to read audit records")
		s.logger.Error("audit read failed", "from", from, "error", err)
		return
	}

	resp := auditResponse{Records: records}
	if len(records) == limit {
		resp.Next = records[len(records)-1].Sequence + 1
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Service) handleStats(w http.ResponseWriter, r *http.Request) {
	report, err := s.view.Report(r.Context())
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, "INTERNAL", "failed to compute statistics")
		s.logger.Error("stats fold failed", "error", err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Service) handleVerify(w http.ResponseWriter, r *http.Request) {
	report, err := s.coord.Ledger().Verify(r.Context())
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, "INTERNAL", "integrity check failed")
		s.logger.Error("ledger verify failed", "error", err)
		return
	}
	status := http.StatusOK
	if !report.OK {
		status = http.StatusConflict
	}
	s.writeJSON(w, status, report)
}

func (s *Service) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	if err := s.coord.Ledger().Acknowledge(r.Context()); err != nil {
		if errors.Is(err, domain.ErrLedgerCorrupt) {
			s.writeError(w, r, http.StatusConflict, "LEDGER_CORRUPT", err.Error())
			return
		}
		s.writeError(w, r, http.StatusInternalServerError, "INTERNAL", "acknowledge failed")
		s.logger.Error("ledger acknowledge failed", "error", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "acknowledged"})
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Service) allowSubmission() bool {
	if s.limiter.Allow() {
		return true
	}
	if s.metrics != nil {
		s.metrics.RecordRateLimited()
	}
	return false
}

// writeProcessError maps coordinator errors onto the HTTP error model. The
// only error Process can surface is a ledger integrity refusal; anything
// else is unexpected.
func (s *Service) writeProcessError(w http.ResponseWriter, r *http.Request, err error) {
	body := s.errorBody(r, err)
	status := http.StatusInternalServerError
	if body.Code == "LEDGER_CORRUPT" {
		status = http.StatusServiceUnavailable
	} else {
		s.logger.Error("evaluation failed", "error", err)
	}
	s.writeJSON(w, status, body)
}

func (s *Service) errorBody(r *http.Request, err error) *domain.ErrorResponse {
	code := "INTERNAL"
	message := "evaluation failed"
	if errors.Is(err, domain.ErrLedgerCorrupt) {
		code = "LEDGER_CORRUPT"
		message = err.Error()
	}
	body := &domain.ErrorResponse{Code: code, Message: message}
	if sc := trace.SpanContextFromContext(r.Context()); sc.IsValid() {
		body.TraceID = sc.TraceID().String()
	}
	return body
}

func (s *Service) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	body := domain.ErrorResponse{Code: code, Message: message}
	if sc := trace.SpanContextFromContext(r.Context()); sc.IsValid() {
		body.TraceID = sc.TraceID().String()
	}
	s.writeJSON(w, status, body)
}

func (s *Service) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to write response", "error", err)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxContentBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
