package local

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/arbiterai/arbiter-oss/pkg/domain"
	"github.com/arbiterai/arbiter-oss/pkg/evaluator"
)

// scorerFor returns the in-process scoring function for a role.
func scorerFor(role domain.EvaluatorRole) (evaluator.EvalFunc, error) {
	switch role {
	case domain.RoleCoherence:
		return ScoreCoherence, nil
	case domain.RoleFactuality:
		return ScoreFactuality, nil
	case domain.RoleFairness:
		return ScoreFairness, nil
	case domain.RoleLegal:
		return ScoreLegal, nil
	case domain.RoleTransparency:
		return ScoreTransparency, nil
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrUnknownEvaluator, role)
}

// NewClient builds an in-process evaluator client for the given spec.
func NewClient(spec domain.EvaluatorSpec) (evaluator.Client, error) {
	fn, err := scorerFor(spec.Role)
	if err != nil {
		return nil, err
	}
	return evaluator.NewFuncClient(spec, fn), nil
}

// Clients builds in-process clients for all given specs.
func Clients(specs []domain.EvaluatorSpec) (map[domain.EvaluatorRole]evaluator.Client, error) {
	clients := make(map[domain.EvaluatorRole]evaluator.Client, len(specs))
	for _, spec := range specs {
		c, err := NewClient(spec)
		if err != nil {
			return nil, err
		}
		clients[spec.Role] = c
	}
	return clients, nil
}

// NewHandler serves one role's scorer over the evaluator wire protocol:
// POST /evaluate with {content, metadata} returning {metric|risk_level,
// detail}. Used to run reference evaluators as standalone services and in
// integration tests.
func NewHandler(role domain.EvaluatorRole) (http.Handler, error) {
	fn, err := scorerFor(role)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /evaluate", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Content  string            `json:"content"`
			Metadata map[string]string `json:"metadata"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "malformed request body", http.StatusBadRequest)
			return
		}

		resp, err := fn(r.Context(), &domain.EvaluationRequest{
			Content:  req.Content,
			Metadata: req.Metadata,
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})
	return mux, nil
}
