package domain

import "errors"

// Common domain errors
var (
	ErrConfigInvalid    = errors.New("invalid configuration")
	ErrEmptyContent     = errors.New("request content is empty")
	ErrUnknownEvaluator = errors.New("unknown evaluator role")
	// ErrLedgerCorrupt is returned instead of a governance decision when a
	// hash-chain break has been detected. The engine refuses to extend a
	// corrupted chain until an operator acknowledges the break.
	ErrLedgerCorrupt = errors.New("attestation ledger integrity failure")
	ErrRecordNotFound = errors.New("attestation record not found")
)

// ErrorResponse is the standard JSON error model returned by the HTTP API.
// Code is stable and machine-readable; Message is safe for logs.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	TraceID string `json:"trace_id,omitempty"`
}
