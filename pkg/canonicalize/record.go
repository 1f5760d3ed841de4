package canonicalize

import (
	"time"

	"github.com/Vorion-Labs/cognigate/pkg/contracts"
)

// recordHashView is exactly the set of record fields that participate in
// hashing. The record's own hash and its signature are excluded from what
// they cover. Field order is irrelevant; JCS sorts keys.
type recordHashView struct {
	ID           string               `json:"id"`
	Sequence     uint64               `json:"sequence"`
	RecordType   contracts.RecordType `json:"record_type"`
	Subject      contracts.Subject    `json:"subject"`
	Payload      contracts.Payload    `json:"payload"`
	Provenance   contracts.Provenance `json:"provenance"`
	EventTime    string               `json:"event_time"`
	RecordedTime string               `json:"recorded_time"`
	PreviousHash string               `json:"previous_hash"`
}

// RecordHash computes the content hash of a record. Reproducible by any
// third party holding the record's published fields.
func RecordHash(r contracts.Record) (string, error) {
	view := recordHashView{
		ID:           r.ID,
		Sequence:     r.Sequence,
		RecordType:   r.RecordType,
		Subject:      r.Subject,
		Payload:      r.Payload,
		Provenance:   r.Provenance,
		EventTime:    r.EventTime.UTC().Format(time.RFC3339Nano),
		RecordedTime: r.RecordedTime.UTC().Format(time.RFC3339Nano),
		PreviousHash: r.PreviousHash,
	}
	return Hash(view)
}
