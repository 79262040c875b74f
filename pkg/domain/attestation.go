package domain

import "time"

// AttestationRecord is one immutable entry in the hash-chained ledger.
// Sequence numbers are strictly increasing and gap-free; PrevDigest links
// each record to the digest of its predecessor (or the genesis digest for
// the first record). Records are owned exclusively by the ledger once
// appended.
type AttestationRecord struct {
	Sequence      uint64             `json:"sequence"`
	RecordID      string             `json:"record_id"`
	ContentDigest string             `json:"content_digest"`
	PrevDigest    string             `json:"prev_digest"`
	Digest        string             `json:"digest"`
	Decision      GovernanceDecision `json:"decision"`
	CreatedAt     time.Time          `json:"created_at"`
	// AmendsRecordID references an earlier record this one corrects.
	// The ledger never edits records in place.
	AmendsRecordID string `json:"amends_record_id,omitempty"`
}
