package anchor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/Vorion-Labs/cognigate/pkg/contracts"
	"github.com/Vorion-Labs/cognigate/pkg/merkle"
	anchorstore "github.com/Vorion-Labs/cognigate/pkg/store/anchor"
	"github.com/Vorion-Labs/cognigate/pkg/store/ledger"
)

// PublisherConfig tunes the anchoring schedule.
type PublisherConfig struct {
	// MaxBatchSize caps how many records one anchor covers.
	MaxBatchSize uint64

	// MaxWait is the flush interval: a non-empty pending range is anchored at
	// least this often even when the batch is not full.
	MaxWait time.Duration

	// ImmediateTypes lists record types that kick an anchor cycle as soon as
	// they are appended instead of waiting for the next tick.
	ImmediateTypes []contracts.RecordType

	// SubmitsPerMinute paces submissions toward the witness.
	SubmitsPerMinute int

	Backoff BackoffPolicy
}

// Publisher drives the anchor cycle. Anchoring is strictly downstream of the
// ledger: a stuck anchor range never causes Append to block, and a failed
// submission is retried on the SAME range until it succeeds or an operator
// steps in.
type Publisher struct {
	ledger  ledger.Ledger
	anchors anchorstore.Store
	witness Witness
	cfg     PublisherConfig
	limiter *rate.Limiter
	logger  *slog.Logger
	clock   func() time.Time
	kick    chan struct{}

	// pendingFirst/pendingLast hold the last range PublishNext attempted, so
	// retry jitter is keyed on the stuck range. Only touched from the Run
	// goroutine and direct PublishNext callers.
	pendingFirst uint64
	pendingLast  uint64
}

// NewPublisher wires the anchor cycle.
func NewPublisher(l ledger.Ledger, store anchorstore.Store, w Witness, cfg PublisherConfig, logger *slog.Logger) *Publisher {
	if cfg.MaxBatchSize == 0 {
		cfg.MaxBatchSize = 64
	}
	if cfg.MaxWait == 0 {
		cfg.MaxWait = time.Minute
	}
	if cfg.SubmitsPerMinute == 0 {
		cfg.SubmitsPerMinute = 30
	}
	if cfg.Backoff == (BackoffPolicy{}) {
		cfg.Backoff = DefaultBackoff
	}
	return &Publisher{
		ledger:  l,
		anchors: store,
		witness: w,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(float64(cfg.SubmitsPerMinute)/60.0), 1),
		logger:  logger.With("component", "anchor.publisher"),
		clock:   time.Now,
		kick:    make(chan struct{}, 1),
	}
}

// NotifyAppend lets the ledger's callers request immediate anchoring for
// high-severity record types. Non-blocking; coalesces with a pending kick.
func (p *Publisher) NotifyAppend(rec contracts.Record) {
	for _, rt := range p.cfg.ImmediateTypes {
		if rec.RecordType == rt {
			select {
			case p.kick <- struct{}{}:
			default:
			}
			return
		}
	}
}

// Run drives the schedule until ctx is cancelled. Failures back off on the
// pending range without ever advancing past it.
func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.MaxWait)
	defer ticker.Stop()

	attempt := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-p.kick:
		}

		for {
			a, err := p.PublishNext(ctx)
			if err != nil {
				attempt++
				delay := ComputeBackoff(p.pendingFirst, p.pendingLast, attempt, p.cfg.Backoff)
				p.logger.Warn("anchor cycle failed, retrying same range",
					"error", err, "attempt", attempt, "backoff", delay)
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(delay):
				}
				continue
			}
			attempt = 0
			if a == nil {
				break // nothing pending
			}
			p.logger.Info("anchor published",
				"first", a.FirstSequence, "last", a.LastSequence,
				"root", a.MerkleRoot, "tx_ref", a.WitnessTxRef)
			// Drain: keep going while full batches are waiting.
			if a.LastSequence-a.FirstSequence+1 < p.cfg.MaxBatchSize {
				break
			}
		}
	}
}

// PublishNext anchors the next contiguous un-anchored range, if any. Returns
// (nil, nil) when the chain is fully anchored.
func (p *Publisher) PublishNext(ctx context.Context) (*contracts.Anchor, error) {
	first := uint64(0)
	if last, ok, err := p.anchors.LastAnchoredSequence(ctx); err != nil {
		return nil, err
	} else if ok {
		first = last + 1
	}

	head, err := p.ledger.Head(ctx)
	if err != nil {
		if errors.Is(err, contracts.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if head.Sequence < first {
		return nil, nil
	}

	last := head.Sequence
	if last-first+1 > p.cfg.MaxBatchSize {
		last = first + p.cfg.MaxBatchSize - 1
	}
	p.pendingFirst, p.pendingLast = first, last

	records, err := p.ledger.Range(ctx, first, last)
	if err != nil {
		return nil, err
	}
	hashes := make([]string, len(records))
	for i, rec := range records {
		hashes[i] = rec.Hash
	}
	tree := merkle.BuildTree(hashes)

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	receipt, err := p.witness.Submit(ctx, tree.Root, first, last)
	if err != nil {
		return nil, fmt.Errorf("range [%d,%d]: %w", first, last, err)
	}

	now := p.clock().UTC()
	a := contracts.Anchor{
		ID:            uuid.Must(uuid.NewV7()).String(),
		FirstSequence: first,
		LastSequence:  last,
		MerkleRoot:    tree.Root,
		Status:        contracts.AnchorConfirmed,
		WitnessTxRef:  receipt.TxRef,
		LogIndex:      receipt.LogIndex,
		BlockRef:      receipt.BlockRef,
		CreatedAt:     now,
		ConfirmedAt:   &now,
	}
	if err := p.anchors.Save(ctx, a); err != nil {
		return nil, fmt.Errorf("persist anchor [%d,%d]: %w", first, last, err)
	}

	// The anchor itself becomes a chain record, so anchoring is auditable
	// through the same verification surface as everything else.
	_, err = p.ledger.Append(ctx, contracts.Candidate{
		RecordType: contracts.RecordTypeAnchor,
		Subject:    contracts.Subject{Type: "anchor", ID: a.ID},
		Payload: &contracts.AnchorPayload{
			FirstSequence: a.FirstSequence,
			LastSequence:  a.LastSequence,
			MerkleRoot:    a.MerkleRoot,
			WitnessTxRef:  a.WitnessTxRef,
			BlockRef:      a.BlockRef,
		},
		Provenance: contracts.Provenance{SourceSystem: "anchor-publisher", ActorID: "system"},
		EventTime:  now,
	})
	if err != nil {
		// The anchor is already durable and confirmed; a failed meta-record
		// append must not unwind it.
		p.logger.Error("anchor meta-record append failed", "anchor_id", a.ID, "error", err)
	}

	return &a, nil
}
