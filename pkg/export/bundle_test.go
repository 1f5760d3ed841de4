package export

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vorion-Labs/cognigate/pkg/contracts"
	"github.com/Vorion-Labs/cognigate/pkg/crypto"
	"github.com/Vorion-Labs/cognigate/pkg/merkle"
	"github.com/Vorion-Labs/cognigate/pkg/store/anchor"
	"github.com/Vorion-Labs/cognigate/pkg/store/ledger"
	"github.com/Vorion-Labs/cognigate/pkg/verify"
)

type fixture struct {
	chain   *ledger.MemoryLedger
	anchors *anchor.MemoryStore
	builder *Builder
	recs    []contracts.Record
}

func newFixture(t *testing.T, n int) *fixture {
	t.Helper()
	signer, err := crypto.NewEd25519Signer("issuer-1")
	require.NoError(t, err)

	chain := ledger.NewMemoryLedger(signer)
	anchors := anchor.NewMemoryStore()

	f := &fixture{
		chain:   chain,
		anchors: anchors,
		builder: NewBuilder(chain, anchors, map[string]string{"issuer-1": signer.PublicKey()}),
	}
	for i := 0; i < n; i++ {
		rec, err := chain.Append(context.Background(), contracts.Candidate{
			RecordType: contracts.RecordTypeMilestone,
			Subject:    contracts.Subject{Type: "agent", ID: "agent-1"},
			Payload:    &contracts.MilestonePayload{Name: "milestone"},
			Provenance: contracts.Provenance{SourceSystem: "test", ActorID: "tester"},
		})
		require.NoError(t, err)
		f.recs = append(f.recs, rec)
	}
	return f
}

func (f *fixture) confirmAnchor(t *testing.T, first, last uint64) {
	t.Helper()
	recs, err := f.chain.Range(context.Background(), first, last)
	require.NoError(t, err)
	leaves := make([]string, len(recs))
	for i, r := range recs {
		leaves[i] = r.Hash
	}
	now := time.Now().UTC()
	require.NoError(t, f.anchors.Save(context.Background(), contracts.Anchor{
		ID:            "anchor-1",
		FirstSequence: first,
		LastSequence:  last,
		MerkleRoot:    merkle.BuildTree(leaves).Root,
		Status:        contracts.AnchorConfirmed,
		WitnessTxRef:  "tx-1",
		CreatedAt:     now,
		ConfirmedAt:   &now,
	}))
}

func TestBuildBundleForAnchoredRecord(t *testing.T) {
	f := newFixture(t, 4)
	f.confirmAnchor(t, 0, 3)

	bundle, err := f.builder.Build(context.Background(), f.recs[1].ID)
	require.NoError(t, err)

	assert.Equal(t, BundleFormatVersion, bundle.FormatVersion)
	assert.Equal(t, f.recs[1].ID, bundle.Record.ID)
	assert.Equal(t, "tx-1", bundle.Anchor.WitnessTxRef)
	assert.Contains(t, bundle.IssuerKeys, "issuer-1")

	// The packed proof must stand on its own.
	assert.Equal(t, f.recs[1].Hash, bundle.Proof.LeafHash)
	assert.Equal(t, 1, bundle.Proof.Index)
	assert.True(t, verify.CheckProof(bundle.Proof))
}

func TestBuildRefusesUnanchoredRecord(t *testing.T) {
	f := newFixture(t, 2)

	_, err := f.builder.Build(context.Background(), f.recs[0].ID)
	require.ErrorIs(t, err, contracts.ErrNotFound)
	assert.ErrorContains(t, err, "not yet anchored")
}

func TestBuildUnknownRecord(t *testing.T) {
	f := newFixture(t, 1)
	_, err := f.builder.Build(context.Background(), "no-such-record")
	assert.ErrorIs(t, err, contracts.ErrNotFound)
}

// memStore is an in-memory BundleStore with the same content addressing as
// the S3 implementation.
type memStore struct {
	objects map[string][]byte
}

func (m *memStore) Put(ctx context.Context, data []byte) (string, error) {
	sum := sha256.Sum256(data)
	ref := "sha256:" + hex.EncodeToString(sum[:])
	m.objects[ref] = data
	return ref, nil
}

func (m *memStore) Get(ctx context.Context, hash string) ([]byte, error) {
	data, ok := m.objects[hash]
	if !ok {
		return nil, contracts.ErrNotFound
	}
	return data, nil
}

func TestPublishStoresCanonicalBundle(t *testing.T) {
	f := newFixture(t, 3)
	f.confirmAnchor(t, 0, 2)

	store := &memStore{objects: make(map[string][]byte)}
	builder := NewBuilder(f.chain, f.anchors, map[string]string{"issuer-1": "unused"}, WithStore(store))

	bundle, ref, err := builder.Publish(context.Background(), f.recs[0].ID)
	require.NoError(t, err)
	assert.Regexp(t, "^sha256:[0-9a-f]{64}$", ref)

	stored, err := store.Get(context.Background(), ref)
	require.NoError(t, err)
	canonical, err := builder.Canonical(bundle)
	require.NoError(t, err)
	assert.Equal(t, canonical, stored)
}

func TestPublishWithoutStore(t *testing.T) {
	f := newFixture(t, 1)
	_, _, err := f.builder.Publish(context.Background(), f.recs[0].ID)
	assert.ErrorIs(t, err, ErrNoStore)
}

func TestCanonicalBundleRoundtrips(t *testing.T) {
	f := newFixture(t, 3)
	f.confirmAnchor(t, 0, 2)

	bundle, err := f.builder.Build(context.Background(), f.recs[2].ID)
	require.NoError(t, err)

	data, err := f.builder.Canonical(bundle)
	require.NoError(t, err)

	again, err := f.builder.Canonical(bundle)
	require.NoError(t, err)
	assert.Equal(t, data, again)

	var decoded Bundle
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, bundle.Record.Hash, decoded.Record.Hash)
	assert.Equal(t, bundle.Proof, decoded.Proof)
	assert.True(t, verify.CheckProof(decoded.Proof))
}
