// Package anchor publishes Merkle roots over contiguous Truth Chain ranges to
// an external verifiable witness, on a schedule that never blocks ledger
// writers.
package anchor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Vorion-Labs/cognigate/pkg/contracts"
)

// Witness is the external verifiable store the chain anchors to. The core is
// agnostic to what backs it: a transparency log, a public blockchain gateway,
// anything that returns a durable receipt.
type Witness interface {
	// Submit publishes a Merkle root and returns the witness receipt once the
	// entry is integrated. Errors wrap contracts.ErrAnchorSubmission.
	Submit(ctx context.Context, root string, first, last uint64) (contracts.WitnessReceipt, error)
}

// ErrFeeCeiling marks a submission refused by the cost gate. It wraps
// contracts.ErrAnchorSubmission so the publisher's retry policy applies.
var ErrFeeCeiling = fmt.Errorf("witness fee above ceiling: %w", contracts.ErrAnchorSubmission)

// LogWitnessConfig configures the transparency-log witness client.
type LogWitnessConfig struct {
	BaseURL string
	LogID   string

	// FeeCeilingMicros caps the externally quoted submission fee. Zero
	// disables the gate.
	FeeCeilingMicros int64

	HTTPTimeout time.Duration
}

// LogWitness submits roots to an RFC 6962-style transparency log over HTTP.
type LogWitness struct {
	cfg    LogWitnessConfig
	client *http.Client
}

// NewLogWitness creates the transparency-log client.
func NewLogWitness(cfg LogWitnessConfig) (*LogWitness, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("witness base URL is required")
	}
	timeout := cfg.HTTPTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &LogWitness{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}, nil
}

type logSubmission struct {
	Kind          string `json:"kind"`
	LogID         string `json:"log_id"`
	MerkleRoot    string `json:"merkle_root"`
	FirstSequence uint64 `json:"first_sequence"`
	LastSequence  uint64 `json:"last_sequence"`
}

type logReceipt struct {
	TxRef          string `json:"tx_ref"`
	LogIndex       int64  `json:"log_index"`
	BlockRef       string `json:"block_ref"`
	IntegratedTime int64  `json:"integrated_time"`
	QuotedFee      int64  `json:"quoted_fee_micros"`
}

func (w *LogWitness) Submit(ctx context.Context, root string, first, last uint64) (contracts.WitnessReceipt, error) {
	// Fee gate first: a quote above the ceiling is a submission failure, not
	// a reason to skip the range.
	if w.cfg.FeeCeilingMicros > 0 {
		fee, err := w.quoteFee(ctx)
		if err != nil {
			return contracts.WitnessReceipt{}, err
		}
		if fee > w.cfg.FeeCeilingMicros {
			return contracts.WitnessReceipt{}, fmt.Errorf("quoted %d > ceiling %d: %w",
				fee, w.cfg.FeeCeilingMicros, ErrFeeCeiling)
		}
	}

	body, err := json.Marshal(logSubmission{
		Kind:          "cognigate/anchor/v1",
		LogID:         w.cfg.LogID,
		MerkleRoot:    root,
		FirstSequence: first,
		LastSequence:  last,
	})
	if err != nil {
		return contracts.WitnessReceipt{}, fmt.Errorf("encode submission: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.BaseURL+"/api/v1/entries", bytes.NewReader(body))
	if err != nil {
		return contracts.WitnessReceipt{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return contracts.WitnessReceipt{}, fmt.Errorf("witness unreachable: %w: %w", err, contracts.ErrAnchorSubmission)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return contracts.WitnessReceipt{}, fmt.Errorf("witness returned %d: %w", resp.StatusCode, contracts.ErrAnchorSubmission)
	}

	var receipt logReceipt
	if err := json.NewDecoder(resp.Body).Decode(&receipt); err != nil {
		return contracts.WitnessReceipt{}, fmt.Errorf("decode receipt: %w: %w", err, contracts.ErrAnchorSubmission)
	}
	return contracts.WitnessReceipt{
		TxRef:          receipt.TxRef,
		LogIndex:       receipt.LogIndex,
		BlockRef:       receipt.BlockRef,
		IntegratedTime: time.Unix(receipt.IntegratedTime, 0).UTC(),
	}, nil
}

func (w *LogWitness) quoteFee(ctx context.Context) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.cfg.BaseURL+"/api/v1/fee", nil)
	if err != nil {
		return 0, fmt.Errorf("build fee request: %w", err)
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fee quote unreachable: %w: %w", err, contracts.ErrAnchorSubmission)
	}
	defer func() { _ = resp.Body.Close() }()

	var quote struct {
		FeeMicros int64 `json:"fee_micros"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&quote); err != nil {
		return 0, fmt.Errorf("decode fee quote: %w: %w", err, contracts.ErrAnchorSubmission)
	}
	return quote.FeeMicros, nil
}

var _ Witness = (*LogWitness)(nil)
