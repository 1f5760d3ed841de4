package api

import (
	"encoding/json"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Request schemas are compiled once at startup; a panic here is a programming
// error, not an input error.
var (
	caseRequestSchema = jsonschema.MustCompileString("case_request.json", `{
		"type": "object",
		"required": ["subject_id", "action_type", "risk_level"],
		"properties": {
			"subject_id":        {"type": "string", "minLength": 1},
			"action_type":       {"type": "string", "minLength": 1},
			"action_details":    {"type": "object"},
			"risk_level":        {"type": "integer", "minimum": 1, "maximum": 5},
			"human_confirmed_by": {"type": "string"}
		},
		"additionalProperties": false
	}`)

	recordRequestSchema = jsonschema.MustCompileString("record_request.json", `{
		"type": "object",
		"required": ["record_type", "subject", "payload"],
		"properties": {
			"record_type": {
				"type": "string",
				"enum": [
					"certification.issued",
					"ownership.transferred",
					"override.applied",
					"milestone.reached"
				]
			},
			"subject": {
				"type": "object",
				"required": ["type", "id"],
				"properties": {
					"type": {"type": "string", "minLength": 1},
					"id":   {"type": "string", "minLength": 1}
				}
			},
			"payload":    {"type": "object"},
			"provenance": {"type": "object"},
			"event_time": {"type": "string"}
		}
	}`)

	// The sibling list is accepted under either key: "path" (what GET /verify
	// emits) or "proof" (the published third-party contract). witness_tx_ref
	// is informational; proof checking needs only the root.
	proofRequestSchema = jsonschema.MustCompileString("proof_request.json", `{
		"type": "object",
		"required": ["leaf_hash", "root", "index"],
		"anyOf": [
			{"required": ["path"]},
			{"required": ["proof"]}
		],
		"properties": {
			"leaf_hash":      {"type": "string", "pattern": "^[0-9a-f]{64}$"},
			"root":           {"type": "string", "pattern": "^[0-9a-f]{64}$"},
			"path":           {"type": "array", "items": {"type": "string", "pattern": "^[0-9a-f]{64}$"}},
			"proof":          {"type": "array", "items": {"type": "string", "pattern": "^[0-9a-f]{64}$"}},
			"index":          {"type": "integer", "minimum": 0},
			"witness_tx_ref": {"type": "string"}
		},
		"additionalProperties": false
	}`)
)

// validateSchema checks raw JSON against a compiled schema before any domain
// decoding happens.
func validateSchema(sch *jsonschema.Schema, raw []byte) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	return sch.Validate(v)
}
