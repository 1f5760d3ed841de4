package contracts

import "time"

// AnchorStatus is the lifecycle of a Merkle batch anchor.
type AnchorStatus string

const (
	AnchorPending   AnchorStatus = "PENDING"
	AnchorConfirmed AnchorStatus = "CONFIRMED"
)

// WitnessReceipt is the external witness's confirmation of a published root.
type WitnessReceipt struct {
	TxRef          string    `json:"tx_ref"`
	LogIndex       int64     `json:"log_index"`
	BlockRef       string    `json:"block_ref,omitempty"`
	IntegratedTime time.Time `json:"integrated_time"`
}

// Anchor links a contiguous ledger range [FirstSequence, LastSequence] to the
// Merkle root published for it and, once confirmed, to the witness receipt.
//
// Invariant: ranges are contiguous and non-overlapping across the full record
// history; every record belongs to at most one anchor.
type Anchor struct {
	ID            string       `json:"id"`
	FirstSequence uint64       `json:"first_sequence"`
	LastSequence  uint64       `json:"last_sequence"`
	MerkleRoot    string       `json:"merkle_root"`
	Status        AnchorStatus `json:"status"`
	WitnessTxRef  string       `json:"witness_tx_ref,omitempty"`
	LogIndex      int64        `json:"log_index,omitempty"`
	BlockRef      string       `json:"block_ref,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	ConfirmedAt   *time.Time   `json:"confirmed_at,omitempty"`
}

// Covers reports whether the anchor's range includes the given sequence.
func (a Anchor) Covers(seq uint64) bool {
	return seq >= a.FirstSequence && seq <= a.LastSequence
}
