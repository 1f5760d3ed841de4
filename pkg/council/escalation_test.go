package council

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vorion-Labs/cognigate/pkg/contracts"
)

func TestEscalationPendingOldestFirst(t *testing.T) {
	chain := newTestLedger(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := NewEscalationManager(chain, quietLogger(), WithEscalationClock(func() time.Time {
		now = now.Add(time.Minute)
		return now
	}))

	m.Register("case-b", "agent-1", "rec-b")
	m.Register("case-a", "agent-2", "rec-a")
	m.Register("case-c", "agent-1", "rec-c")

	pending := m.Pending()
	require.Len(t, pending, 3)
	assert.Equal(t, "case-b", pending[0].CaseID)
	assert.Equal(t, "case-a", pending[1].CaseID)
	assert.Equal(t, "case-c", pending[2].CaseID)
}

func TestResolveCommitsResolutionRecord(t *testing.T) {
	chain := newTestLedger(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := NewEscalationManager(chain, quietLogger(), WithEscalationClock(func() time.Time { return now }))

	m.Register("case-1", "agent-1", "rec-1")
	now = now.Add(90 * time.Second)

	rec, err := m.Resolve(context.Background(), "case-1", contracts.VerdictApproved, "reviewer@vorion.dev", "manual audit passed")
	require.NoError(t, err)
	assert.Equal(t, contracts.RecordTypeEscalation, rec.RecordType)
	assert.Equal(t, "reviewer@vorion.dev", rec.Provenance.ActorID)

	payload, ok := rec.Payload.(*contracts.EscalationPayload)
	require.True(t, ok)
	assert.Equal(t, "case-1", payload.CaseID)
	assert.Equal(t, "rec-1", payload.EscalatedRecord)
	assert.Equal(t, contracts.VerdictApproved, payload.Verdict)
	assert.Equal(t, int64(90), payload.ResolutionLagSec)

	assert.Empty(t, m.Pending())
}

func TestResolveRejectsBadInput(t *testing.T) {
	chain := newTestLedger(t)
	m := NewEscalationManager(chain, quietLogger())
	m.Register("case-1", "agent-1", "rec-1")

	_, err := m.Resolve(context.Background(), "case-1", contracts.VerdictEscalated, "reviewer", "")
	assert.ErrorContains(t, err, "not a resolution")

	_, err = m.Resolve(context.Background(), "case-1", contracts.VerdictDenied, "", "")
	assert.ErrorContains(t, err, "decided_by is required")

	_, err = m.Resolve(context.Background(), "case-unknown", contracts.VerdictDenied, "reviewer", "")
	assert.ErrorIs(t, err, contracts.ErrNotFound)

	// Rejected attempts leave the escalation pending.
	assert.Len(t, m.Pending(), 1)
}

func TestCheckTimeoutsDeniesExpiredEscalations(t *testing.T) {
	chain := newTestLedger(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := NewEscalationManager(chain, quietLogger(),
		WithEscalationWindow(time.Hour),
		WithEscalationClock(func() time.Time { return now }))

	m.Register("case-old", "agent-1", "rec-old")
	now = now.Add(30 * time.Minute)
	m.Register("case-fresh", "agent-2", "rec-fresh")

	// Nothing has expired yet.
	assert.Empty(t, m.CheckTimeouts(context.Background()))

	now = now.Add(45 * time.Minute)
	resolved := m.CheckTimeouts(context.Background())
	require.Len(t, resolved, 1)

	payload, ok := resolved[0].Payload.(*contracts.EscalationPayload)
	require.True(t, ok)
	assert.Equal(t, "case-old", payload.CaseID)
	assert.Equal(t, contracts.VerdictDenied, payload.Verdict)
	assert.Equal(t, "system:timeout", payload.DecidedBy)

	pending := m.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, "case-fresh", pending[0].CaseID)
}
