package verify

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vorion-Labs/cognigate/pkg/contracts"
	"github.com/Vorion-Labs/cognigate/pkg/crypto"
	"github.com/Vorion-Labs/cognigate/pkg/merkle"
	"github.com/Vorion-Labs/cognigate/pkg/store/anchor"
	"github.com/Vorion-Labs/cognigate/pkg/store/ledger"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	chain   *ledger.MemoryLedger
	anchors *anchor.MemoryStore
	signer  *crypto.Ed25519Signer
	svc     *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	signer, err := crypto.NewEd25519Signer("issuer-1")
	require.NoError(t, err)

	chain := ledger.NewMemoryLedger(signer)
	anchors := anchor.NewMemoryStore()
	keyring := NewKeyring()
	keyring.Register("issuer-1", signer.PublicKey())

	return &fixture{
		chain:   chain,
		anchors: anchors,
		signer:  signer,
		svc:     NewService(chain, anchors, keyring, quietLogger()),
	}
}

func (f *fixture) append(t *testing.T, subjectID, name string) contracts.Record {
	t.Helper()
	rec, err := f.chain.Append(context.Background(), contracts.Candidate{
		RecordType: contracts.RecordTypeMilestone,
		Subject:    contracts.Subject{Type: "agent", ID: subjectID},
		Payload:    &contracts.MilestonePayload{Name: name},
		Provenance: contracts.Provenance{SourceSystem: "test", ActorID: "tester"},
	})
	require.NoError(t, err)
	return rec
}

// anchorRange confirms an anchor over [first, last] with the real Merkle root
// of the stored records.
func (f *fixture) anchorRange(t *testing.T, first, last uint64) contracts.Anchor {
	t.Helper()
	recs, err := f.chain.Range(context.Background(), first, last)
	require.NoError(t, err)

	leaves := make([]string, len(recs))
	for i, r := range recs {
		leaves[i] = r.Hash
	}
	confirmed := time.Now().UTC()
	a := contracts.Anchor{
		ID:            "anchor-test",
		FirstSequence: first,
		LastSequence:  last,
		MerkleRoot:    merkle.BuildTree(leaves).Root,
		Status:        contracts.AnchorConfirmed,
		WitnessTxRef:  "tx-abc",
		CreatedAt:     confirmed,
		ConfirmedAt:   &confirmed,
	}
	require.NoError(t, f.anchors.Save(context.Background(), a))
	return a
}

func TestVerifyRecordAnchored(t *testing.T) {
	f := newFixture(t)
	var recs []contracts.Record
	for i := 0; i < 5; i++ {
		recs = append(recs, f.append(t, "agent-1", "milestone"))
	}
	f.anchorRange(t, 0, 4)

	report, err := f.svc.VerifyRecord(context.Background(), recs[2].ID)
	require.NoError(t, err)
	assert.True(t, report.Valid())
	assert.True(t, report.Verified)
	assert.True(t, report.ChainValid)
	assert.True(t, report.SignatureValid)
	assert.True(t, report.Anchored)
	assert.Empty(t, report.Problems)

	// The report carries the record itself, so a consumer can re-derive the
	// chain link without a second lookup.
	require.NotNil(t, report.Record)
	assert.Equal(t, recs[2].Hash, report.Record.Hash)
	assert.Equal(t, recs[1].Hash, report.Record.PreviousHash)

	require.NotNil(t, report.Proof)
	assert.Equal(t, recs[2].Hash, report.Proof.LeafHash)
	assert.Equal(t, 2, report.Proof.Index)
	assert.True(t, CheckProof(*report.Proof))

	require.NotNil(t, report.Anchor)
	assert.Equal(t, uint64(0), report.Anchor.FirstSequence)
	assert.Equal(t, uint64(4), report.Anchor.LastSequence)
	assert.Equal(t, "tx-abc", report.Anchor.WitnessTxRef)
}

func TestVerifyRecordSingleLeafAnchorHasEmptyProofPath(t *testing.T) {
	f := newFixture(t)
	rec := f.append(t, "agent-1", "created")
	f.anchorRange(t, 0, 0)

	report, err := f.svc.VerifyRecord(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.True(t, report.Anchored)
	require.NotNil(t, report.Proof)
	require.NotNil(t, report.Proof.Path, "empty proof must be [], not null")
	assert.Empty(t, report.Proof.Path)
	assert.True(t, CheckProof(*report.Proof))
}

func TestVerifyRecordUnanchoredIsStillValid(t *testing.T) {
	f := newFixture(t)
	rec := f.append(t, "agent-1", "created")

	report, err := f.svc.VerifyRecord(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.True(t, report.Valid())
	assert.True(t, report.Verified)
	assert.False(t, report.Anchored)
	assert.Nil(t, report.Proof)
	assert.Empty(t, report.Problems)
}

func TestVerifyRecordUnknownID(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.VerifyRecord(context.Background(), "no-such-record")
	assert.ErrorIs(t, err, contracts.ErrNotFound)
}

func TestVerifyRecordUnknownIssuerKey(t *testing.T) {
	f := newFixture(t)
	rec := f.append(t, "agent-1", "created")

	svc := NewService(f.chain, f.anchors, NewKeyring(), quietLogger())
	report, err := svc.VerifyRecord(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.False(t, report.Valid())
	assert.False(t, report.Verified)
	assert.True(t, report.ChainValid)
	assert.False(t, report.SignatureValid)
	require.NotEmpty(t, report.Problems)
	assert.Contains(t, report.Problems[0], `unknown issuer key "issuer-1"`)
}

func TestVerifyRecordWrongIssuerKey(t *testing.T) {
	f := newFixture(t)
	rec := f.append(t, "agent-1", "created")

	other, err := crypto.NewEd25519Signer("issuer-1")
	require.NoError(t, err)
	keyring := NewKeyring()
	keyring.Register("issuer-1", other.PublicKey())

	svc := NewService(f.chain, f.anchors, keyring, quietLogger())
	report, err := svc.VerifyRecord(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.False(t, report.SignatureValid)
	assert.Contains(t, report.Problems, "issuer signature does not match")
}

func TestVerifyRecordRootMismatchDetectsTampering(t *testing.T) {
	f := newFixture(t)
	var recs []contracts.Record
	for i := 0; i < 3; i++ {
		recs = append(recs, f.append(t, "agent-1", "milestone"))
	}

	// Anchor claims a root the stored records do not hash to.
	confirmed := time.Now().UTC()
	bogus := contracts.Anchor{
		ID:            "anchor-bogus",
		FirstSequence: 0,
		LastSequence:  2,
		MerkleRoot:    "1111111111111111111111111111111111111111111111111111111111111111",
		Status:        contracts.AnchorConfirmed,
		WitnessTxRef:  "tx-bogus",
		CreatedAt:     confirmed,
		ConfirmedAt:   &confirmed,
	}
	require.NoError(t, f.anchors.Save(context.Background(), bogus))

	report, err := f.svc.VerifyRecord(context.Background(), recs[0].ID)
	require.NoError(t, err)
	assert.True(t, report.Valid()) // the chain itself is intact
	assert.False(t, report.Anchored)
	require.NotEmpty(t, report.Problems)
	assert.Contains(t, report.Problems[0], contracts.ErrTamperDetected.Error())
}

func TestVerifySubject(t *testing.T) {
	f := newFixture(t)
	f.append(t, "agent-1", "created")
	f.append(t, "agent-2", "created")
	f.append(t, "agent-1", "certified")
	f.anchorRange(t, 0, 2)

	report, err := f.svc.VerifySubject(context.Background(), "agent-1")
	require.NoError(t, err)
	assert.Equal(t, 2, report.RecordCount)
	assert.True(t, report.AllValid)
	assert.True(t, report.AllAnchored)
	require.Len(t, report.Records, 2)
	assert.Equal(t, uint64(0), report.Records[0].Sequence)
	assert.Equal(t, uint64(2), report.Records[1].Sequence)
}

func TestVerifySubjectPartiallyAnchored(t *testing.T) {
	f := newFixture(t)
	f.append(t, "agent-1", "created")
	f.append(t, "agent-1", "certified")
	f.anchorRange(t, 0, 0)

	report, err := f.svc.VerifySubject(context.Background(), "agent-1")
	require.NoError(t, err)
	assert.True(t, report.AllValid)
	assert.False(t, report.AllAnchored)
}

func TestVerifySubjectNoHistory(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.VerifySubject(context.Background(), "agent-ghost")
	assert.ErrorIs(t, err, contracts.ErrNotFound)
}
