// Package archive provides the optional content-addressed archival sink.
// Records are forwarded after a committed ledger append, fire-and-forget:
// archival failure never affects governance correctness, and nothing in
// the decision path waits on it.
package archive

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"

	"github.com/arbiterai/arbiter-oss/pkg/domain"
)

// Sink stores one attestation record in a content-addressed archive and
// returns its content address.
type Sink interface {
	Store(ctx context.Context, rec *domain.AttestationRecord) (string, error)
}

// ContentAddress derives the archive address for a record: a CID-style
// handle over the record's canonical JSON encoding.
func ContentAddress(rec *domain.AttestationRecord) (string, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return "Qm" + hex.EncodeToString(sum[:])[:44], nil
}

// MemorySink is an in-process stand-in for a real content-addressed store.
type MemorySink struct {
	mu      sync.RWMutex
	records map[string]*domain.AttestationRecord
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{records: make(map[string]*domain.AttestationRecord)}
}

// Store archives the record under its content address.
func (s *MemorySink) Store(_ context.Context, rec *domain.AttestationRecord) (string, error) {
	addr, err := ContentAddress(rec)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[addr] = rec
	return addr, nil
}

// Get returns an archived record by content address.
func (s *MemorySink) Get(addr string) (*domain.AttestationRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[addr]
	return rec, ok
}

// Len returns the number of archived records.
func (s *MemorySink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
