package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/Vorion-Labs/cognigate/pkg/contracts"
	"github.com/Vorion-Labs/cognigate/pkg/crypto"
)

// MemoryLedger is the in-process implementation: a mutex-guarded slice acting
// as a single-writer actor over the chain tail. Used for tests and as the
// reference semantics for the SQL implementation.
type MemoryLedger struct {
	mu      sync.RWMutex
	records []contracts.Record
	byID    map[string]int
	signer  crypto.Signer
	clock   func() time.Time
}

// NewMemoryLedger creates an empty in-memory chain.
func NewMemoryLedger(signer crypto.Signer) *MemoryLedger {
	return &MemoryLedger{
		byID:   make(map[string]int),
		signer: signer,
		clock:  time.Now,
	}
}

// WithClock overrides the clock for deterministic testing.
func (l *MemoryLedger) WithClock(clock func() time.Time) *MemoryLedger {
	l.clock = clock
	return l
}

func (l *MemoryLedger) Append(ctx context.Context, cand contracts.Candidate) (contracts.Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var (
		tailSeq  uint64
		tailHash string
	)
	empty := len(l.records) == 0
	if !empty {
		tail := l.records[len(l.records)-1]
		tailSeq, tailHash = tail.Sequence, tail.Hash
	}

	rec, err := seal(cand, tailSeq, tailHash, empty, l.signer, l.clock())
	if err != nil {
		return contracts.Record{}, err
	}

	l.records = append(l.records, rec)
	l.byID[rec.ID] = len(l.records) - 1
	return rec, nil
}

func (l *MemoryLedger) Get(ctx context.Context, id string) (contracts.Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	idx, ok := l.byID[id]
	if !ok {
		return contracts.Record{}, contracts.ErrNotFound
	}
	return l.records[idx], nil
}

func (l *MemoryLedger) GetBySequence(ctx context.Context, seq uint64) (contracts.Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if seq >= uint64(len(l.records)) {
		return contracts.Record{}, contracts.ErrNotFound
	}
	return l.records[seq], nil
}

func (l *MemoryLedger) Range(ctx context.Context, first, last uint64) ([]contracts.Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if first > last || first >= uint64(len(l.records)) {
		return nil, nil
	}
	if last >= uint64(len(l.records)) {
		last = uint64(len(l.records)) - 1
	}
	out := make([]contracts.Record, last-first+1)
	copy(out, l.records[first:last+1])
	return out, nil
}

func (l *MemoryLedger) BySubject(ctx context.Context, subjectID string) ([]contracts.Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []contracts.Record
	for _, rec := range l.records {
		if rec.Subject.ID == subjectID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (l *MemoryLedger) Head(ctx context.Context) (contracts.Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.records) == 0 {
		return contracts.Record{}, contracts.ErrNotFound
	}
	return l.records[len(l.records)-1], nil
}

func (l *MemoryLedger) VerifyChainIntegrity(ctx context.Context, rec contracts.Record) error {
	return verifyChain(ctx, l, rec)
}

func (l *MemoryLedger) Mutate(ctx context.Context, id string) error {
	return contracts.ErrImmutabilityViolation
}

func (l *MemoryLedger) Delete(ctx context.Context, id string) error {
	return contracts.ErrImmutabilityViolation
}

// corrupt overwrites a stored record in place. Test-only back door for tamper
// detection scenarios; production code has no mutation path.
func (l *MemoryLedger) corrupt(seq uint64, mutate func(*contracts.Record)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	mutate(&l.records[seq])
}
