// Package engine contains the governance coordinator and the decision
// fusion policy. The coordinator fans one evaluation request out to all
// configured evaluators concurrently, collects whatever results are
// available under the global deadline, fuses them into exactly one
// governance outcome, and appends the decision to the attestation ledger
// before returning to the caller.
package engine
