// Package export builds and publishes portable proof bundles: everything an
// auditor needs to verify a record with no access to the running service.
package export

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Vorion-Labs/cognigate/pkg/canonicalize"
	"github.com/Vorion-Labs/cognigate/pkg/contracts"
	"github.com/Vorion-Labs/cognigate/pkg/merkle"
	"github.com/Vorion-Labs/cognigate/pkg/store/anchor"
	"github.com/Vorion-Labs/cognigate/pkg/store/ledger"
	"github.com/Vorion-Labs/cognigate/pkg/verify"
)

// Bundle is the self-contained verification package for one record.
type Bundle struct {
	FormatVersion string            `json:"format_version"`
	Record        contracts.Record  `json:"record"`
	Proof         verify.Proof      `json:"proof"`
	Anchor        contracts.Anchor  `json:"anchor"`
	IssuerKeys    map[string]string `json:"issuer_keys"` // key ID -> hex public key
	ExportedAt    time.Time         `json:"exported_at"`
}

// BundleFormatVersion changes only when the bundle layout changes.
const BundleFormatVersion = "1"

// Builder assembles proof bundles from chain state.
type Builder struct {
	ledger  ledger.Ledger
	anchors anchor.Store
	keys    map[string]string
	store   BundleStore
	clock   func() time.Time
}

// BuilderOption configures the builder.
type BuilderOption func(*Builder)

// WithStore attaches a bundle store so built bundles can be published.
func WithStore(store BundleStore) BuilderOption {
	return func(b *Builder) { b.store = store }
}

// NewBuilder wires the bundle builder. keys maps issuer key IDs to their hex
// public keys so bundles can be checked against the right signer.
func NewBuilder(l ledger.Ledger, anchors anchor.Store, keys map[string]string, opts ...BuilderOption) *Builder {
	b := &Builder{ledger: l, anchors: anchors, keys: keys, clock: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build assembles the bundle for a record. Only anchored records can be
// bundled: without a witnessed root there is nothing external to verify
// against.
func (b *Builder) Build(ctx context.Context, recordID string) (*Bundle, error) {
	rec, err := b.ledger.Get(ctx, recordID)
	if err != nil {
		return nil, fmt.Errorf("bundle record %s: %w", recordID, err)
	}

	a, err := b.anchors.ForSequence(ctx, rec.Sequence)
	if err != nil {
		if errors.Is(err, contracts.ErrNotFound) {
			return nil, fmt.Errorf("bundle record %s: not yet anchored: %w", recordID, err)
		}
		return nil, fmt.Errorf("bundle record %s: %w", recordID, err)
	}
	if a.Status != contracts.AnchorConfirmed {
		return nil, fmt.Errorf("bundle record %s: anchor not confirmed: %w", recordID, contracts.ErrNotFound)
	}

	proof, err := b.proof(ctx, rec, a)
	if err != nil {
		return nil, fmt.Errorf("bundle record %s: %w", recordID, err)
	}

	return &Bundle{
		FormatVersion: BundleFormatVersion,
		Record:        rec,
		Proof:         *proof,
		Anchor:        a,
		IssuerKeys:    b.keys,
		ExportedAt:    b.clock().UTC(),
	}, nil
}

// Canonical serializes the bundle in its canonical JSON form, which is also
// the form that gets content-addressed in the bundle store.
func (b *Builder) Canonical(bundle *Bundle) ([]byte, error) {
	return canonicalize.JCS(bundle)
}

// ErrNoStore is returned by Publish when no bundle store is attached.
var ErrNoStore = errors.New("export: no bundle store configured")

// Publish builds the bundle and writes its canonical form to the attached
// store, returning the bundle and its content-addressed storage reference.
func (b *Builder) Publish(ctx context.Context, recordID string) (*Bundle, string, error) {
	if b.store == nil {
		return nil, "", ErrNoStore
	}
	bundle, err := b.Build(ctx, recordID)
	if err != nil {
		return nil, "", err
	}
	data, err := b.Canonical(bundle)
	if err != nil {
		return nil, "", fmt.Errorf("publish bundle for %s: %w", recordID, err)
	}
	ref, err := b.store.Put(ctx, data)
	if err != nil {
		return nil, "", fmt.Errorf("publish bundle for %s: %w", recordID, err)
	}
	return bundle, ref, nil
}

func (b *Builder) proof(ctx context.Context, rec contracts.Record, a contracts.Anchor) (*verify.Proof, error) {
	recs, err := b.ledger.Range(ctx, a.FirstSequence, a.LastSequence)
	if err != nil {
		return nil, err
	}
	leaves := make([]string, len(recs))
	for i, r := range recs {
		leaves[i] = r.Hash
	}

	tree := merkle.BuildTree(leaves)
	index := int(rec.Sequence - a.FirstSequence)
	path, err := tree.Proof(index)
	if err != nil {
		return nil, err
	}
	return &verify.Proof{
		LeafHash: rec.Hash,
		Root:     a.MerkleRoot,
		Path:     path,
		Index:    index,
	}, nil
}
