package anchor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vorion-Labs/cognigate/pkg/contracts"
)

func confirmedAnchor(id string, first, last uint64) contracts.Anchor {
	now := time.Now().UTC()
	return contracts.Anchor{
		ID:            id,
		FirstSequence: first,
		LastSequence:  last,
		MerkleRoot:    "root-" + id,
		Status:        contracts.AnchorConfirmed,
		WitnessTxRef:  "tx-" + id,
		CreatedAt:     now,
		ConfirmedAt:   &now,
	}
}

func TestSaveAndLookup(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, confirmedAnchor("a1", 0, 9)))
	require.NoError(t, s.Save(ctx, confirmedAnchor("a2", 10, 19)))

	a, err := s.ForSequence(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, "a1", a.ID)

	a, err = s.ForSequence(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, "a2", a.ID)

	_, err = s.ForSequence(ctx, 20)
	assert.ErrorIs(t, err, contracts.ErrNotFound)
}

func TestSaveRejectsOverlap(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, confirmedAnchor("a1", 0, 9)))

	assert.ErrorIs(t, s.Save(ctx, confirmedAnchor("dup", 0, 9)), contracts.ErrConflict)
	assert.ErrorIs(t, s.Save(ctx, confirmedAnchor("tail", 9, 12)), contracts.ErrConflict)
	assert.ErrorIs(t, s.Save(ctx, confirmedAnchor("inside", 3, 5)), contracts.ErrConflict)
	assert.ErrorIs(t, s.Save(ctx, confirmedAnchor("spanning", 0, 30)), contracts.ErrConflict)

	// Adjacent, non-overlapping ranges are fine.
	assert.NoError(t, s.Save(ctx, confirmedAnchor("next", 10, 19)))
}

func TestLastAnchoredSequence(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, ok, err := s.LastAnchoredSequence(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Save(ctx, confirmedAnchor("a2", 10, 19)))
	require.NoError(t, s.Save(ctx, confirmedAnchor("a1", 0, 9)))

	last, ok, err := s.LastAnchoredSequence(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(19), last)
}

func TestListOrderedByRange(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, confirmedAnchor("b", 10, 19)))
	require.NoError(t, s.Save(ctx, confirmedAnchor("a", 0, 9)))

	anchors, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, anchors, 2)
	assert.Equal(t, "a", anchors[0].ID)
	assert.Equal(t, "b", anchors[1].ID)
}
