// Package ledger implements the Truth Chain store: an append-only, hash-linked
// sequence of records with single-writer ordering.
//
// Append is the only serialization point in the whole core: sequence and
// previous_hash are derived from the current tail, so two concurrent appends
// against the same tail would create two successors to one parent. Every
// implementation must make Append behave as a critical section. All reads are
// safely concurrent.
//
// There are no mutation or deletion operations in this contract; the explicit
// Mutate and Delete methods exist only to fail with ErrImmutabilityViolation.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Vorion-Labs/cognigate/pkg/canonicalize"
	"github.com/Vorion-Labs/cognigate/pkg/contracts"
	"github.com/Vorion-Labs/cognigate/pkg/crypto"
)

// Ledger is the durable Truth Chain contract.
type Ledger interface {
	// Append seals a candidate onto the chain tail: assigns the next sequence,
	// links previous_hash, computes the content hash, signs and persists it
	// atomically. Returns contracts.ErrConflict if the tail moved under an
	// optimistic commit and retries were exhausted.
	Append(ctx context.Context, cand contracts.Candidate) (contracts.Record, error)

	// Get retrieves a record by ID.
	Get(ctx context.Context, id string) (contracts.Record, error)

	// GetBySequence retrieves a record by chain position.
	GetBySequence(ctx context.Context, seq uint64) (contracts.Record, error)

	// Range returns records with first <= sequence <= last, in order.
	Range(ctx context.Context, first, last uint64) ([]contracts.Record, error)

	// BySubject returns all records about a subject, in chain order.
	BySubject(ctx context.Context, subjectID string) ([]contracts.Record, error)

	// Head returns the current tail record, or contracts.ErrNotFound if the
	// chain is empty.
	Head(ctx context.Context) (contracts.Record, error)

	// VerifyChainIntegrity recomputes the record's content hash and its link
	// to the predecessor. A mismatch is contracts.ErrTamperDetected, an
	// integrity breach distinct from not-found or any transient error.
	VerifyChainIntegrity(ctx context.Context, rec contracts.Record) error

	// Mutate and Delete do not exist in the chain's public contract. They
	// always fail with contracts.ErrImmutabilityViolation.
	Mutate(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// seal turns a candidate into a committed record linked to the given tail.
// The ledger implementation is responsible for holding the tail stable while
// this runs.
func seal(cand contracts.Candidate, tailSeq uint64, tailHash string, empty bool, signer crypto.Signer, now time.Time) (contracts.Record, error) {
	rec := contracts.Record{
		ID:           uuid.Must(uuid.NewV7()).String(),
		RecordType:   cand.RecordType,
		Subject:      cand.Subject,
		Payload:      cand.Payload,
		Provenance:   cand.Provenance,
		EventTime:    cand.EventTime.UTC(),
		RecordedTime: now.UTC(),
		PreviousHash: contracts.GenesisHash,
	}
	if rec.EventTime.IsZero() {
		rec.EventTime = rec.RecordedTime
	}
	if !empty {
		rec.Sequence = tailSeq + 1
		rec.PreviousHash = tailHash
	}

	hash, err := canonicalize.RecordHash(rec)
	if err != nil {
		return contracts.Record{}, fmt.Errorf("seal record: %w", err)
	}
	rec.Hash = hash

	if err := signer.SignRecord(&rec); err != nil {
		return contracts.Record{}, fmt.Errorf("sign record: %w", err)
	}
	return rec, nil
}

// verifyChain is the shared integrity check over any Ledger.
func verifyChain(ctx context.Context, l Ledger, rec contracts.Record) error {
	recomputed, err := canonicalize.RecordHash(rec)
	if err != nil {
		return fmt.Errorf("recompute hash: %w", err)
	}
	if recomputed != rec.Hash {
		return fmt.Errorf("record %s content hash mismatch: %w", rec.ID, contracts.ErrTamperDetected)
	}

	if rec.Sequence == 0 {
		if rec.PreviousHash != contracts.GenesisHash {
			return fmt.Errorf("record %s genesis link mismatch: %w", rec.ID, contracts.ErrTamperDetected)
		}
		return nil
	}

	prev, err := l.GetBySequence(ctx, rec.Sequence-1)
	if err != nil {
		if errors.Is(err, contracts.ErrNotFound) {
			return fmt.Errorf("record %s predecessor missing: %w", rec.ID, contracts.ErrTamperDetected)
		}
		return err
	}
	if rec.PreviousHash != prev.Hash {
		return fmt.Errorf("record %s chain link mismatch: %w", rec.ID, contracts.ErrTamperDetected)
	}
	return nil
}
