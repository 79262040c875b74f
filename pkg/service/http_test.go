package service

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbiterai/arbiter-oss/internal/governance"
	"github.com/arbiterai/arbiter-oss/pkg/config"
	"github.com/arbiterai/arbiter-oss/pkg/domain"
	"github.com/arbiterai/arbiter-oss/pkg/engine"
	"github.com/arbiterai/arbiter-oss/pkg/evaluator"
	"github.com/arbiterai/arbiter-oss/pkg/ledger"
	"github.com/arbiterai/arbiter-oss/pkg/stats"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// passingClients builds an all-pass evaluator panel with fixed metrics so
// test outcomes do not depend on the scoring heuristics.
func passingClients() []evaluator.Client {
	metrics := map[domain.EvaluatorRole]float64{
		domain.RoleCoherence:    4.5,
		domain.RoleFactuality:   2.5,
		domain.RoleFairness:     1.0,
		domain.RoleTransparency: 0.9,
	}
	clients := make([]evaluator.Client, 0, 5)
	for _, spec := range config.DefaultSpecs() {
		spec := spec
		if spec.Role == domain.RoleLegal {
			clients = append(clients, evaluator.NewFuncClient(spec, func(context.Context, *domain.EvaluationRequest) (evaluator.Response, error) {
				return evaluator.Response{Risk: domain.RiskLow}, nil
			}))
			continue
		}
		metric := metrics[spec.Role]
		clients = append(clients, evaluator.NewFuncClient(spec, func(context.Context, *domain.EvaluationRequest) (evaluator.Response, error) {
			return evaluator.Response{Metric: metric}, nil
		}))
	}
	return clients
}

func newTestService(t *testing.T, limiter *governance.RateLimiter) (*Service, *ledger.MemoryStore) {
	t.Helper()
	store := ledger.NewMemoryStore()
	led, err := ledger.Open(store, discardLogger())
	require.NoError(t, err)

	coord := engine.New(passingClients(), led, engine.Config{Logger: discardLogger()})
	t.Cleanup(coord.Close)

	svc := New(coord, stats.New(led), NewMetrics(), limiter, discardLogger())
	return svc, store
}

func postJSON(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func getPath(h http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestEvaluateApproved(t *testing.T) {
	svc, _ := newTestService(t, nil)
	h := svc.Handler()

	rec := postJSON(t, h, "/v1/evaluations", domain.EvaluationRequest{Content: "a perfectly fine narrative"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp evaluationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, domain.OutcomeApproved, resp.Decision.Outcome)
	assert.Equal(t, uint64(1), resp.Record.Sequence)
	assert.Len(t, resp.Decision.Results, 5)
	assert.NotEmpty(t, resp.Decision.RequestID)
}

func TestEvaluateEmptyContent(t *testing.T) {
	svc, _ := newTestService(t, nil)
	h := svc.Handler()

	rec := postJSON(t, h, "/v1/evaluations", domain.EvaluationRequest{Content: ""})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var errResp domain.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.Equal(t, "EMPTY_CONTENT", errResp.Code)
}

func TestEvaluateMalformedBody(t *testing.T) {
	svc, _ := newTestService(t, nil)
	h := svc.Handler()

	req := httptest.NewRequest(http.MethodPost, "/v1/evaluations", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var errResp domain.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.Equal(t, "MALFORMED_REQUEST", errResp.Code)
}

func TestEvaluateRateLimited(t *testing.T) {
	limiter := governance.NewRateLimiter(governance.RateLimiterConfig{RequestsPerSecond: 1, BurstSize: 1})
	svc, _ := newTestService(t, limiter)
	h := svc.Handler()

	first := postJSON(t, h, "/v1/evaluations", domain.EvaluationRequest{Content: "one"})
	require.Equal(t, http.StatusOK, first.Code)

	second := postJSON(t, h, "/v1/evaluations", domain.EvaluationRequest{Content: "two"})
	require.Equal(t, http.StatusTooManyRequests, second.Code)

	var errResp domain.ErrorResponse
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &errResp))
	assert.Equal(t, "RATE_LIMITED", errResp.Code)
}

func TestBatchItemIsolation(t *testing.T) {
	svc, _ := newTestService(t, nil)
	h := svc.Handler()

	rec := postJSON(t, h, "/v1/evaluations/batch", batchRequest{Items: []domain.EvaluationRequest{
		{Content: "first"},
		{Content: ""},
		{Content: "third"},
	}})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Items []batchItemResponse `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 3)

	require.NotNil(t, resp.Items[0].Decision)
	assert.Equal(t, uint64(1), resp.Items[0].Record.Sequence)

	require.NotNil(t, resp.Items[1].Error)
	assert.Equal(t, "EMPTY_CONTENT", resp.Items[1].Error.Code)
	assert.Nil(t, resp.Items[1].Decision)

	// The failed second item does not disturb the third's ledger entry.
	require.NotNil(t, resp.Items[2].Decision)
	assert.Equal(t, uint64(2), resp.Items[2].Record.Sequence)
}

func TestBatchRejectsEmpty(t *testing.T) {
	svc, _ := newTestService(t, nil)
	h := svc.Handler()

	rec := postJSON(t, h, "/v1/evaluations/batch", batchRequest{})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuditPagination(t *testing.T) {
	svc, _ := newTestService(t, nil)
	h := svc.Handler()

	for i := 0; i < 5; i++ {
		rec := postJSON(t, h, "/v1/evaluations", domain.EvaluationRequest{Content: "entry"})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := getPath(h, "/v1/audit?from=2&limit=2")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp auditResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Records, 2)
	assert.Equal(t, uint64(2), resp.Records[0].Sequence)
	assert.Equal(t, uint64(3), resp.Records[1].Sequence)
	assert.Equal(t, uint64(4), resp.Next)
}

func TestAuditRejectsBadParams(t *testing.T) {
	svc, _ := newTestService(t, nil)
	h := svc.Handler()

	assert.Equal(t, http.StatusBadRequest, getPath(h, "/v1/audit?from=0").Code)
	assert.Equal(t, http.StatusBadRequest, getPath(h, "/v1/audit?limit=-1").Code)
}

func TestStatsEndpoint(t *testing.T) {
	svc, _ := newTestService(t, nil)
	h := svc.Handler()

	rec := postJSON(t, h, "/v1/evaluations", domain.EvaluationRequest{Content: "entry"})
	require.Equal(t, http.StatusOK, rec.Code)

	statsRec := getPath(h, "/v1/stats")
	require.Equal(t, http.StatusOK, statsRec.Code)

	var report stats.Report
	require.NoError(t, json.Unmarshal(statsRec.Body.Bytes(), &report))
	assert.Equal(t, uint64(1), report.Total)
	assert.Equal(t, uint64(1), report.Outcomes[domain.OutcomeApproved])
	assert.InDelta(t, 1.0, report.ApprovalRate, 1e-9)
}

func TestVerifyCleanChain(t *testing.T) {
	svc, _ := newTestService(t, nil)
	h := svc.Handler()

	postJSON(t, h, "/v1/evaluations", domain.EvaluationRequest{Content: "entry"})

	rec := getPath(h, "/v1/verify")
	require.Equal(t, http.StatusOK, rec.Code)

	var report ledger.VerifyReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.True(t, report.OK)
	assert.Equal(t, uint64(1), report.Records)
}

func TestCorruptChainRefusesSubmissions(t *testing.T) {
	svc, store := newTestService(t, nil)
	h := svc.Handler()

	for i := 0; i < 3; i++ {
		rec := postJSON(t, h, "/v1/evaluations", domain.EvaluationRequest{Content: "entry"})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	// Tamper with a stored record behind the ledger's back.
	tampered, err := store.Record(context.Background(), 2)
	require.NoError(t, err)
	tampered.ContentDigest = "0000"

	verifyRec := getPath(h, "/v1/verify")
	require.Equal(t, http.StatusConflict, verifyRec.Code)

	var report ledger.VerifyReport
	require.NoError(t, json.Unmarshal(verifyRec.Body.Bytes(), &report))
	assert.False(t, report.OK)
	assert.Equal(t, uint64(2), report.BrokenSequence)

	// The poisoned ledger refuses new submissions with a typed error.
	submit := postJSON(t, h, "/v1/evaluations", domain.EvaluationRequest{Content: "after the break"})
	require.Equal(t, http.StatusServiceUnavailable, submit.Code)

	var errResp domain.ErrorResponse
	require.NoError(t, json.Unmarshal(submit.Body.Bytes(), &errResp))
	assert.Equal(t, "LEDGER_CORRUPT", errResp.Code)

	// Acknowledge fails while the chain is still broken.
	ackRec := postJSON(t, h, "/v1/verify/acknowledge", struct{}{})
	require.Equal(t, http.StatusConflict, ackRec.Code)
}

func TestAcknowledgeAfterRepair(t *testing.T) {
	svc, store := newTestService(t, nil)
	h := svc.Handler()

	rec := postJSON(t, h, "/v1/evaluations", domain.EvaluationRequest{Content: "entry"})
	require.Equal(t, http.StatusOK, rec.Code)

	// Break and then restore the record in place.
	stored, err := store.Record(context.Background(), 1)
	require.NoError(t, err)
	original := stored.ContentDigest
	stored.ContentDigest = "0000"

	require.Equal(t, http.StatusConflict, getPath(h, "/v1/verify").Code)

	stored.ContentDigest = original
	ackRec := postJSON(t, h, "/v1/verify/acknowledge", struct{}{})
	require.Equal(t, http.StatusOK, ackRec.Code)

	// Appends work again after acknowledgement.
	after := postJSON(t, h, "/v1/evaluations", domain.EvaluationRequest{Content: "after repair"})
	require.Equal(t, http.StatusOK, after.Code)
}

func TestHealthz(t *testing.T) {
	svc, _ := newTestService(t, nil)
	assert.Equal(t, http.StatusOK, getPath(svc.Handler(), "/healthz").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	svc, _ := newTestService(t, nil)
	h := svc.Handler()

	postJSON(t, h, "/v1/evaluations", domain.EvaluationRequest{Content: "entry"})

	rec := getPath(h, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "arbiter_decisions_total")
}
