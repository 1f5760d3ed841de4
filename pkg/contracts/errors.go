package contracts

import "errors"

// Error taxonomy of the ledger + deliberation core.
//
// Conflicts and evaluator timeouts are recovered locally (retry, degrade to
// abstain). Tampering and immutability violations are integrity breaches and
// are always surfaced, never retried or auto-corrected.
var (
	// ErrNotFound: record, anchor or case does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict: optimistic append race: the caller's assumed tail was no
	// longer the actual tail at commit time. Retryable after re-reading.
	ErrConflict = errors.New("ledger tail conflict")

	// ErrImmutabilityViolation: attempted mutation or deletion of a committed
	// record. Always fatal; indicates a programming error upstream.
	ErrImmutabilityViolation = errors.New("immutability violation")

	// ErrTamperDetected: chain-link or content hash mismatch found during
	// verification. The record stays in place as immutable evidence.
	ErrTamperDetected = errors.New("tamper detected")

	// ErrEvaluatorTimeout: one evaluator failed to respond within its window.
	// Degrades that vote to abstain; never fails the case.
	ErrEvaluatorTimeout = errors.New("evaluator timeout")

	// ErrAnchorSubmission: the external witness was unreachable or rejected
	// the submission. Retried with backoff; never blocks ledger writes.
	ErrAnchorSubmission = errors.New("anchor submission failed")

	// ErrDeliberationHalted: the operator kill-switch cancelled voting before
	// synthesis. Nothing was written to the ledger.
	ErrDeliberationHalted = errors.New("deliberation halted by operator")
)
