// Package domain defines the core data model of the governance engine:
// evaluation requests, evaluator specifications and results, fused
// governance decisions, and hash-chained attestation records.
//
// Types in this package are plain values with no behaviour beyond
// derivation helpers. All mutation happens in the packages that own the
// respective lifecycle (engine, ledger).
package domain
