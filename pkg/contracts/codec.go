package contracts

import (
	"encoding/json"
	"fmt"
)

// DecodePayload unmarshals raw payload JSON into the concrete variant for the
// given record type. Unknown types are rejected so the union stays exhaustive.
func DecodePayload(rt RecordType, raw json.RawMessage) (Payload, error) {
	var p Payload
	switch rt {
	case RecordTypeDecision:
		p = &DecisionPayload{}
	case RecordTypeCertification:
		p = &CertificationPayload{}
	case RecordTypeOwnership:
		p = &OwnershipPayload{}
	case RecordTypeOverride:
		p = &OverridePayload{}
	case RecordTypeMilestone:
		p = &MilestonePayload{}
	case RecordTypeEscalation:
		p = &EscalationPayload{}
	case RecordTypeAnchor:
		p = &AnchorPayload{}
	default:
		return nil, fmt.Errorf("unknown record type %q", rt)
	}
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", rt, err)
	}
	return p, nil
}

// EncodePayload marshals a payload variant to JSON.
func EncodePayload(p Payload) (json.RawMessage, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", p.Kind(), err)
	}
	return raw, nil
}

type recordAlias Record

type recordWire struct {
	recordAlias
	Payload json.RawMessage `json:"payload"`
}

// UnmarshalJSON decodes a record, dispatching the payload on record_type.
func (r *Record) UnmarshalJSON(data []byte) error {
	var w recordWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	rec := Record(w.recordAlias)
	if len(w.Payload) > 0 {
		p, err := DecodePayload(rec.RecordType, w.Payload)
		if err != nil {
			return err
		}
		rec.Payload = p
	}
	*r = rec
	return nil
}

type candidateAlias Candidate

type candidateWire struct {
	candidateAlias
	Payload json.RawMessage `json:"payload"`
}

// UnmarshalJSON decodes a candidate, dispatching the payload on record_type.
func (c *Candidate) UnmarshalJSON(data []byte) error {
	var w candidateWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	cand := Candidate(w.candidateAlias)
	if len(w.Payload) > 0 {
		p, err := DecodePayload(cand.RecordType, w.Payload)
		if err != nil {
			return err
		}
		cand.Payload = p
	}
	*c = cand
	return nil
}
