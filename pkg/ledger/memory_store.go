package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/arbiterai/arbiter-oss/pkg/domain"
)

// MemoryStore is an in-memory Store. Records live only for the process
// lifetime; production deployments use the JSONL FileStore.
type MemoryStore struct {
	mu      sync.RWMutex
	records []*domain.AttestationRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Append stores a record in memory.
func (s *MemoryStore) Append(_ context.Context, rec *domain.AttestationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

// Record returns the record with the given sequence number.
func (s *MemoryStore) Record(_ context.Context, seq uint64) (*domain.AttestationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if seq < 1 || seq > uint64(len(s.records)) {
		return nil, fmt.Errorf("%w: sequence %d", domain.ErrRecordNotFound, seq)
	}
	return s.records[seq-1], nil
}

// Records returns up to limit records starting at sequence from.
func (s *MemoryStore) Records(_ context.Context, from uint64, limit int) ([]*domain.AttestationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if from < 1 {
		from = 1
	}
	if from > uint64(len(s.records)) {
		return nil, nil
	}
	end := from - 1 + uint64(limit)
	if limit <= 0 || end > uint64(len(s.records)) {
		end = uint64(len(s.records))
	}
	out := make([]*domain.AttestationRecord, end-(from-1))
	copy(out, s.records[from-1:end])
	return out, nil
}

// Count returns the number of stored records.
func (s *MemoryStore) Count(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.records)), nil
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error { return nil }
