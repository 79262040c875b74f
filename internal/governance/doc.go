// Package governance hosts the runtime safety controls shared across
// concurrent evaluation requests: the per-evaluator circuit breakers that
// isolate persistently failing evaluators, and the rate limiter guarding
// the caller-facing API.
//
// Breaker state is shared across requests for the same evaluator and every
// transition is a single atomic step under the breaker's lock. The
// coordinator depends on these primitives to keep one misbehaving
// evaluator from stalling or poisoning decisions for healthy ones.
package governance
