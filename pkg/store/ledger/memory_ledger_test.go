package ledger

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vorion-Labs/cognigate/pkg/canonicalize"
	"github.com/Vorion-Labs/cognigate/pkg/contracts"
	"github.com/Vorion-Labs/cognigate/pkg/crypto"
)

func newTestLedger(t *testing.T) *MemoryLedger {
	t.Helper()
	signer, err := crypto.NewEd25519Signer("test-key")
	require.NoError(t, err)
	return NewMemoryLedger(signer)
}

func milestoneCandidate(subjectID, name string) contracts.Candidate {
	return contracts.Candidate{
		RecordType: contracts.RecordTypeMilestone,
		Subject:    contracts.Subject{Type: "agent", ID: subjectID},
		Payload:    &contracts.MilestonePayload{Name: name},
		Provenance: contracts.Provenance{SourceSystem: "lifecycle", ActorID: "tester"},
	}
}

func TestAppendLinksChain(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	first, err := l.Append(ctx, milestoneCandidate("agent-1", "created"))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), first.Sequence)
	assert.Equal(t, contracts.GenesisHash, first.PreviousHash)
	assert.NotEmpty(t, first.Hash)
	assert.NotEmpty(t, first.Signature)

	second, err := l.Append(ctx, milestoneCandidate("agent-1", "deployed"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), second.Sequence)
	assert.Equal(t, first.Hash, second.PreviousHash)

	head, err := l.Head(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, head.ID)
}

func TestConcurrentAppendsAreGapFree(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	const n = 100
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = l.Append(ctx, milestoneCandidate("agent-1", fmt.Sprintf("m-%d", i)))
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	recs, err := l.Range(ctx, 0, n-1)
	require.NoError(t, err)
	require.Len(t, recs, n)

	seenPrev := map[string]bool{}
	for i, rec := range recs {
		assert.Equal(t, uint64(i), rec.Sequence)
		if i > 0 {
			assert.Equal(t, recs[i-1].Hash, rec.PreviousHash)
		}
		assert.False(t, seenPrev[rec.PreviousHash], "previous_hash reused at seq %d", i)
		seenPrev[rec.PreviousHash] = true
	}
}

func TestGetAndBySubject(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	a, err := l.Append(ctx, milestoneCandidate("agent-a", "one"))
	require.NoError(t, err)
	_, err = l.Append(ctx, milestoneCandidate("agent-b", "two"))
	require.NoError(t, err)
	_, err = l.Append(ctx, milestoneCandidate("agent-a", "three"))
	require.NoError(t, err)

	got, err := l.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.Hash, got.Hash)

	_, err = l.Get(ctx, "nope")
	assert.ErrorIs(t, err, contracts.ErrNotFound)

	byA, err := l.BySubject(ctx, "agent-a")
	require.NoError(t, err)
	require.Len(t, byA, 2)
	assert.Equal(t, uint64(0), byA[0].Sequence)
	assert.Equal(t, uint64(2), byA[1].Sequence)
}

func TestHeadEmptyChain(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.Head(context.Background())
	assert.ErrorIs(t, err, contracts.ErrNotFound)
}

func TestMutateAndDeleteAlwaysRefused(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	rec, err := l.Append(ctx, milestoneCandidate("agent-1", "created"))
	require.NoError(t, err)

	assert.ErrorIs(t, l.Mutate(ctx, rec.ID), contracts.ErrImmutabilityViolation)
	assert.ErrorIs(t, l.Delete(ctx, rec.ID), contracts.ErrImmutabilityViolation)
}

func TestVerifyChainIntegrity(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := l.Append(ctx, milestoneCandidate("agent-1", fmt.Sprintf("m-%d", i)))
		require.NoError(t, err)
	}
	for i := uint64(0); i < 5; i++ {
		rec, err := l.GetBySequence(ctx, i)
		require.NoError(t, err)
		assert.NoError(t, l.VerifyChainIntegrity(ctx, rec))
	}
}

func TestTamperedPayloadIsDetected(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := l.Append(ctx, milestoneCandidate("agent-1", fmt.Sprintf("m-%d", i)))
		require.NoError(t, err)
	}

	l.corrupt(1, func(r *contracts.Record) {
		r.Payload = &contracts.MilestonePayload{Name: "forged"}
	})

	rec, err := l.GetBySequence(ctx, 1)
	require.NoError(t, err)
	err = l.VerifyChainIntegrity(ctx, rec)
	assert.ErrorIs(t, err, contracts.ErrTamperDetected)
}

func TestRewrittenHistoryBreaksSuccessorLink(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := l.Append(ctx, milestoneCandidate("agent-1", fmt.Sprintf("m-%d", i)))
		require.NoError(t, err)
	}

	// An attacker rewrites record 1 wholesale, recomputing its hash so the
	// record itself looks self-consistent. The successor's link exposes it.
	l.corrupt(1, func(r *contracts.Record) {
		r.Payload = &contracts.MilestonePayload{Name: "forged"}
		hash, err := canonicalize.RecordHash(*r)
		require.NoError(t, err)
		r.Hash = hash
	})

	forged, err := l.GetBySequence(ctx, 1)
	require.NoError(t, err)
	assert.NoError(t, l.VerifyChainIntegrity(ctx, forged), "forged record is self-consistent on purpose")

	successor, err := l.GetBySequence(ctx, 2)
	require.NoError(t, err)
	err = l.VerifyChainIntegrity(ctx, successor)
	assert.ErrorIs(t, err, contracts.ErrTamperDetected)
}

func TestRangeClamping(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := l.Append(ctx, milestoneCandidate("agent-1", fmt.Sprintf("m-%d", i)))
		require.NoError(t, err)
	}

	recs, err := l.Range(ctx, 2, 100)
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	recs, err = l.Range(ctx, 10, 20)
	require.NoError(t, err)
	assert.Empty(t, recs)

	recs, err = l.Range(ctx, 3, 1)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestEventTimeDefaultsToRecordedTime(t *testing.T) {
	l := newTestLedger(t)
	rec, err := l.Append(context.Background(), milestoneCandidate("agent-1", "created"))
	require.NoError(t, err)
	assert.False(t, rec.EventTime.IsZero())
	assert.Equal(t, rec.RecordedTime, rec.EventTime)
}
