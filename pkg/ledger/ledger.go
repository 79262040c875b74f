// Package ledger implements the tamper-evident attestation ledger: an
// append-only, hash-chained sequence of governance decision records with
// integrity verification and read-only iteration.
//
// Appends are serialized behind a single-writer lock. Once a chain break is
// detected the ledger latches into a poisoned state and refuses further
// appends until an operator acknowledges the break; silently continuing
// would extend a corrupted chain.
package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arbiterai/arbiter-oss/pkg/domain"
)

// GenesisDigest is the fixed previous-link of the first record. A named
// genesis digest makes an empty chain distinguishable from a truncated one.
var GenesisDigest = func() string {
	sum := sha256.Sum256([]byte("arbiter attestation chain genesis"))
	return hex.EncodeToString(sum[:])
}()

// Ledger is the single writer over a Store.
type Ledger struct {
	mu       sync.Mutex
	store    Store
	logger   *slog.Logger
	lastHash string
	nextSeq  uint64
	poisoned bool
	brokenAt uint64

	now func() time.Time
}

// Open wires a ledger over the given store, replaying existing records to
// re-anchor the chain head. A chain break found during replay poisons the
// ledger immediately: reads and Verify still work, appends are refused.
func Open(store Store, logger *slog.Logger) (*Ledger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Ledger{
		store:    store,
		logger:   logger,
		lastHash: GenesisDigest,
		nextSeq:  1,
		now:      time.Now,
	}

	report, err := l.verifyChain(context.Background())
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if !report.OK {
		l.poisoned = true
		l.brokenAt = report.BrokenSequence
		l.logger.Error("attestation chain broken at open, appends disabled",
			"sequence", report.BrokenSequence)
	} else {
		l.lastHash = report.headDigest
		l.nextSeq = report.Records + 1
	}
	return l, nil
}

// Append creates the next record in the chain: previous-link set to the
// digest of the prior record (or genesis), the next gap-free sequence
// number, and the record's own digest over its canonical encoding. Appends
// across concurrent requests are strictly serialized; append order is the
// chain order.
func (l *Ledger) Append(ctx context.Context, contentDigest string, decision domain.GovernanceDecision) (*domain.AttestationRecord, error) {
	return l.append(ctx, contentDigest, decision, "")
}

// Amend appends a correction record referencing an earlier record by id.
// The original record is never edited or removed.
func (l *Ledger) Amend(ctx context.Context, contentDigest string, decision domain.GovernanceDecision, amendsRecordID string) (*domain.AttestationRecord, error) {
	if amendsRecordID == "" {
		return nil, fmt.Errorf("%w: amended record id is empty", domain.ErrConfigInvalid)
	}
	return l.append(ctx, contentDigest, decision, amendsRecordID)
}

func (l *Ledger) append(ctx context.Context, contentDigest string, decision domain.GovernanceDecision, amends string) (*domain.AttestationRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.poisoned {
		return nil, fmt.Errorf("%w: chain broken at sequence %d", domain.ErrLedgerCorrupt, l.brokenAt)
	}

	rec := &domain.AttestationRecord{
		Sequence:       l.nextSeq,
		RecordID:       uuid.NewString(),
		ContentDigest:  contentDigest,
		PrevDigest:     l.lastHash,
		Decision:       decision,
		CreatedAt:      l.now().UTC(),
		AmendsRecordID: amends,
	}
	digest, err := recordDigest(rec)
	if err != nil {
		return nil, fmt.Errorf("compute record digest: %w", err)
	}
	rec.Digest = digest

	if err := l.store.Append(ctx, rec); err != nil {
		// The store refused the write; the chain head is unchanged, so the
		// next append may retry with the same sequence.
		return nil, fmt.Errorf("append attestation record: %w", err)
	}

	l.lastHash = rec.Digest
	l.nextSeq++
	return rec, nil
}

// VerifyReport describes the outcome of an integrity check.
type VerifyReport struct {
	OK bool `json:"ok"`
	// Records is the number of records checked.
	Records uint64 `json:"records"`
	// BrokenSequence is the first sequence whose digest or previous-link
	// did not verify. Records after it are unverifiable. Zero when OK.
	BrokenSequence uint64 `json:"broken_sequence,omitempty"`

	headDigest string
}

// Verify recomputes every record's digest and expected previous-link. On
// the first mismatch it reports the offending sequence number and latches
// the ledger against further appends.
func (l *Ledger) Verify(ctx context.Context) (VerifyReport, error) {
	report, err := l.verifyChain(ctx)
	if err != nil {
		return VerifyReport{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if !report.OK && !l.poisoned {
		l.poisoned = true
		l.brokenAt = report.BrokenSequence
		l.logger.Error("attestation chain break detected, appends disabled",
			"sequence", report.BrokenSequence)
	}
	return report, nil
}

// Acknowledge lets an operator clear the poisoned latch after a detected
// break. The chain is re-verified first: if it still fails, the ledger
// stays poisoned and the error names the broken sequence. The store must
// be repaired out of band before acknowledgement can succeed.
func (l *Ledger) Acknowledge(ctx context.Context) error {
	report, err := l.verifyChain(ctx)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if !report.OK {
		l.poisoned = true
		l.brokenAt = report.BrokenSequence
		return fmt.Errorf("%w: chain still broken at sequence %d", domain.ErrLedgerCorrupt, report.BrokenSequence)
	}
	l.poisoned = false
	l.brokenAt = 0
	l.lastHash = report.headDigest
	l.nextSeq = report.Records + 1
	l.logger.Info("attestation chain break acknowledged, appends re-enabled")
	return nil
}

const verifyPageSize = 256

func (l *Ledger) verifyChain(ctx context.Context) (VerifyReport, error) {
	report := VerifyReport{OK: true, headDigest: GenesisDigest}
	prev := GenesisDigest
	next := uint64(1)

	for {
		page, err := l.store.Records(ctx, next, verifyPageSize)
		if err != nil {
			return VerifyReport{}, fmt.Errorf("read records from %d: %w", next, err)
		}
		if len(page) == 0 {
			return report, nil
		}
		for _, rec := range page {
			if rec.Sequence != next || rec.PrevDigest != prev {
				report.OK = false
				report.BrokenSequence = rec.Sequence
				return report, nil
			}
			digest, err := recordDigest(rec)
			if err != nil {
				return VerifyReport{}, fmt.Errorf("recompute digest at %d: %w", rec.Sequence, err)
			}
			if digest != rec.Digest {
				report.OK = false
				report.BrokenSequence = rec.Sequence
				return report, nil
			}
			prev = rec.Digest
			report.headDigest = rec.Digest
			report.Records++
			next++
		}
	}
}

// Records returns up to limit records starting at sequence from, for the
// paginated audit query.
func (l *Ledger) Records(ctx context.Context, from uint64, limit int) ([]*domain.AttestationRecord, error) {
	return l.store.Records(ctx, from, limit)
}

// Count returns the number of appended records.
func (l *Ledger) Count(ctx context.Context) (uint64, error) {
	return l.store.Count(ctx)
}

// Iterate returns a restartable iterator over the full record sequence.
// Each call starts a fresh pass from the first record.
func (l *Ledger) Iterate() *Iterator {
	return &Iterator{ledger: l, next: 1}
}

// Iterator walks the ledger lazily in sequence order.
type Iterator struct {
	ledger *Ledger
	next   uint64
	buf    []*domain.AttestationRecord
	cur    *domain.AttestationRecord
	err    error
}

// Next advances to the next record, fetching lazily from the store.
// It returns false at the end of the sequence or on error.
func (it *Iterator) Next(ctx context.Context) bool {
	if it.err != nil {
		return false
	}
	if len(it.buf) == 0 {
		page, err := it.ledger.store.Records(ctx, it.next, verifyPageSize)
		if err != nil {
			it.err = err
			return false
		}
		if len(page) == 0 {
			return false
		}
		it.buf = page
	}
	it.cur = it.buf[0]
	it.buf = it.buf[1:]
	it.next = it.cur.Sequence + 1
	return true
}

// Record returns the record the iterator is positioned on.
func (it *Iterator) Record() *domain.AttestationRecord { return it.cur }

// Err returns the first error encountered, if any.
func (it *Iterator) Err() error { return it.err }

// recordDigest computes the SHA-256 digest of a record's canonical JSON
// encoding, excluding the Digest field itself.
func recordDigest(rec *domain.AttestationRecord) (string, error) {
	env := struct {
		Sequence       uint64                    `json:"sequence"`
		RecordID       string                    `json:"record_id"`
		ContentDigest  string                    `json:"content_digest"`
		PrevDigest     string                    `json:"prev_digest"`
		Decision       domain.GovernanceDecision `json:"decision"`
		CreatedAt      time.Time                 `json:"created_at"`
		AmendsRecordID string                    `json:"amends_record_id,omitempty"`
	}{
		Sequence:       rec.Sequence,
		RecordID:       rec.RecordID,
		ContentDigest:  rec.ContentDigest,
		PrevDigest:     rec.PrevDigest,
		Decision:       rec.Decision,
		CreatedAt:      rec.CreatedAt,
		AmendsRecordID: rec.AmendsRecordID,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
