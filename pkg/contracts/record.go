// Package contracts defines the shared data contracts of the Cognigate core:
// Truth Chain records, Council cases/votes/decisions, and anchor receipts.
//
// Everything here is plain data. Records are create-once, read-forever; once a
// Record has been committed to the chain no code path may mutate it.
package contracts

import "time"

// RecordType discriminates the payload variant carried by a Record.
type RecordType string

const (
	RecordTypeDecision      RecordType = "decision.committed"
	RecordTypeCertification RecordType = "certification.issued"
	RecordTypeOwnership     RecordType = "ownership.transferred"
	RecordTypeOverride      RecordType = "override.applied"
	RecordTypeMilestone     RecordType = "milestone.reached"
	RecordTypeEscalation    RecordType = "escalation.resolved"
	RecordTypeAnchor        RecordType = "anchor.published"
)

// GenesisHash is the previous_hash of the record at sequence 0.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Subject identifies the entity a record is about.
type Subject struct {
	Type string `json:"type"` // e.g. "agent", "case", "anchor"
	ID   string `json:"id"`
}

// Provenance records who or what produced a record.
type Provenance struct {
	SourceSystem string   `json:"source_system"`
	ActorID      string   `json:"actor_id"`
	WitnessIDs   []string `json:"witness_ids,omitempty"` // evaluator IDs that witnessed the decision
}

// Record is one immutable fact on the Truth Chain.
//
// Invariant: for every record at sequence n (n>0),
// record(n).PreviousHash == record(n-1).Hash; sequence 0 links to GenesisHash.
type Record struct {
	ID           string     `json:"id"`       // time-ordered (UUIDv7)
	Sequence     uint64     `json:"sequence"` // gap-free, monotonically increasing
	RecordType   RecordType `json:"record_type"`
	Subject      Subject    `json:"subject"`
	Payload      Payload    `json:"payload"`
	Provenance   Provenance `json:"provenance"`
	EventTime    time.Time  `json:"event_time"`
	RecordedTime time.Time  `json:"recorded_time"`
	PreviousHash string     `json:"previous_hash"`

	// Hash covers the canonical form of all fields above; Signature covers Hash.
	// Neither participates in its own computation.
	Hash          string `json:"hash"`
	Signature     string `json:"signature"`
	SignatureType string `json:"signature_type"` // e.g. "ed25519:chain-key-1"
}

// Candidate is the write contract consumed by the ledger: everything an
// upstream event source supplies. Sequence, hashes and signature are assigned
// by the ledger at commit time.
type Candidate struct {
	RecordType RecordType `json:"record_type"`
	Subject    Subject    `json:"subject"`
	Payload    Payload    `json:"payload"`
	Provenance Provenance `json:"provenance"`
	EventTime  time.Time  `json:"event_time"`
}
