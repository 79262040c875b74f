package ledger

import (
	"context"

	"github.com/arbiterai/arbiter-oss/pkg/domain"
)

// Store persists attestation records. Implementations only need to be safe
// for concurrent reads; the Ledger serializes all writes.
type Store interface {
	// Append durably stores a record. The ledger guarantees records arrive
	// in sequence order with no gaps.
	Append(ctx context.Context, rec *domain.AttestationRecord) error

	// Record returns the record with the given sequence number.
	Record(ctx context.Context, seq uint64) (*domain.AttestationRecord, error)

	// Records returns up to limit records starting at sequence from.
	Records(ctx context.Context, from uint64, limit int) ([]*domain.AttestationRecord, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (uint64, error)

	Close() error
}
