// Package anchor persists Merkle batch anchors: which contiguous chain ranges
// have been published to the external witness, and the receipts that prove it.
package anchor

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Vorion-Labs/cognigate/pkg/contracts"
)

// Store is the anchor persistence contract. Ranges are unique and
// non-overlapping; the witness transaction reference is unique.
type Store interface {
	// Save persists a newly confirmed anchor.
	Save(ctx context.Context, a contracts.Anchor) error

	// ForSequence returns the confirmed anchor covering a chain position, or
	// contracts.ErrNotFound if the position is not yet anchored.
	ForSequence(ctx context.Context, seq uint64) (contracts.Anchor, error)

	// LastAnchoredSequence returns the highest anchored sequence and whether
	// any anchor exists at all.
	LastAnchoredSequence(ctx context.Context) (uint64, bool, error)

	// List returns all anchors ordered by range.
	List(ctx context.Context) ([]contracts.Anchor, error)
}

// MemoryStore keeps anchors in memory. Tests and single-process deployments.
type MemoryStore struct {
	mu      sync.RWMutex
	anchors []contracts.Anchor
}

// NewMemoryStore creates an empty anchor store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Save(ctx context.Context, a contracts.Anchor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.anchors {
		if a.FirstSequence <= existing.LastSequence && existing.FirstSequence <= a.LastSequence {
			return contracts.ErrConflict
		}
	}
	s.anchors = append(s.anchors, a)
	sort.Slice(s.anchors, func(i, j int) bool {
		return s.anchors[i].FirstSequence < s.anchors[j].FirstSequence
	})
	return nil
}

func (s *MemoryStore) ForSequence(ctx context.Context, seq uint64) (contracts.Anchor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.anchors {
		if a.Covers(seq) {
			return a, nil
		}
	}
	return contracts.Anchor{}, contracts.ErrNotFound
}

func (s *MemoryStore) LastAnchoredSequence(ctx context.Context) (uint64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.anchors) == 0 {
		return 0, false, nil
	}
	return s.anchors[len(s.anchors)-1].LastSequence, true, nil
}

func (s *MemoryStore) List(ctx context.Context) ([]contracts.Anchor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]contracts.Anchor, len(s.anchors))
	copy(out, s.anchors)
	return out, nil
}

var _ Store = (*MemoryStore)(nil)

// now is split out so SQL scan code can share formatting with the ledger.
func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }
