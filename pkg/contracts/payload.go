package contracts

import "time"

// Payload is the typed, record-type specific content of a Record.
// Modeled as a tagged union (RecordType discriminant + concrete variant) so
// canonical serialization is exhaustive and reproducible by any verifier.
type Payload interface {
	Kind() RecordType
}

// DecisionPayload carries a terminal Council decision. Minority votes are
// preserved verbatim for precedent traceability, never discarded.
type DecisionPayload struct {
	CaseID             string         `json:"case_id"`
	SubjectID          string         `json:"subject_id"`
	ActionType         string         `json:"action_type"`
	ActionDetails      map[string]any `json:"action_details,omitempty"`
	RiskLevel          int            `json:"risk_level"`
	Verdict            CaseVerdict    `json:"verdict"`
	Tally              Tally          `json:"tally"`
	Votes              []Vote         `json:"votes"`
	Dissent            []Vote         `json:"dissent,omitempty"`
	SynthesisRationale string         `json:"synthesis_rationale"`
}

func (DecisionPayload) Kind() RecordType { return RecordTypeDecision }

// CertificationPayload attests that a subject reached a certification level.
type CertificationPayload struct {
	CertificationID string         `json:"certification_id"`
	Level           string         `json:"level"`
	IssuedBy        string         `json:"issued_by"`
	ValidUntil      *time.Time     `json:"valid_until,omitempty"`
	Details         map[string]any `json:"details,omitempty"`
}

func (CertificationPayload) Kind() RecordType { return RecordTypeCertification }

// OwnershipPayload records a transfer of subject ownership.
type OwnershipPayload struct {
	FromOwner string `json:"from_owner"`
	ToOwner   string `json:"to_owner"`
	Reason    string `json:"reason,omitempty"`
}

func (OwnershipPayload) Kind() RecordType { return RecordTypeOwnership }

// OverridePayload records an operator override of an earlier record. The
// earlier record stays on the chain untouched; this record supersedes it.
type OverridePayload struct {
	TargetRecordID string `json:"target_record_id"`
	OperatorID     string `json:"operator_id"`
	Reason         string `json:"reason"`
}

func (OverridePayload) Kind() RecordType { return RecordTypeOverride }

// MilestonePayload records a lifecycle milestone for a subject.
type MilestonePayload struct {
	Name    string         `json:"name"`
	Details map[string]any `json:"details,omitempty"`
}

func (MilestonePayload) Kind() RecordType { return RecordTypeMilestone }

// EscalationPayload records the human resolution of an escalated case.
// The escalated decision record is never mutated; resolution is a new record.
type EscalationPayload struct {
	CaseID           string      `json:"case_id"`
	EscalatedRecord  string      `json:"escalated_record_id"`
	Verdict          CaseVerdict `json:"verdict"`
	DecidedBy        string      `json:"decided_by"`
	Rationale        string      `json:"rationale"`
	ResolutionLagSec int64       `json:"resolution_lag_sec"`
}

func (EscalationPayload) Kind() RecordType { return RecordTypeEscalation }

// AnchorPayload is the meta-record appended after a batch anchor is confirmed
// by the external witness, making anchoring itself part of the audit trail.
type AnchorPayload struct {
	FirstSequence uint64 `json:"first_sequence"`
	LastSequence  uint64 `json:"last_sequence"`
	MerkleRoot    string `json:"merkle_root"`
	WitnessTxRef  string `json:"witness_tx_ref"`
	BlockRef      string `json:"block_ref,omitempty"`
}

func (AnchorPayload) Kind() RecordType { return RecordTypeAnchor }
