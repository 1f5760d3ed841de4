package evaluator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Vorion-Labs/cognigate/pkg/contracts"
)

// HTTPEvaluator addresses a remote reasoning service over a narrow JSON
// contract: POST the case, get back a verdict. Works against anything that
// honors the shape: an LLM gateway, a rules service, a human console.
type HTTPEvaluator struct {
	id     string
	url    string
	client *http.Client
}

// NewHTTPEvaluator creates an evaluator backed by a remote endpoint. The
// gateway's per-call context carries the deadline, so no client timeout is
// set here.
func NewHTTPEvaluator(id, url string) *HTTPEvaluator {
	return &HTTPEvaluator{id: id, url: url, client: &http.Client{}}
}

func (e *HTTPEvaluator) ID() string { return e.id }

type evaluateRequest struct {
	CaseID        string         `json:"case_id"`
	SubjectID     string         `json:"subject_id"`
	ActionType    string         `json:"action_type"`
	ActionDetails map[string]any `json:"action_details,omitempty"`
	RiskLevel     int            `json:"risk_level"`
}

type evaluateResponse struct {
	Verdict    string `json:"verdict"`
	Confidence int    `json:"confidence"`
	Rationale  string `json:"rationale"`
}

func (e *HTTPEvaluator) Evaluate(ctx context.Context, c contracts.Case) (contracts.Vote, error) {
	body, err := json.Marshal(evaluateRequest{
		CaseID:        c.ID,
		SubjectID:     c.SubjectID,
		ActionType:    c.ActionType,
		ActionDetails: c.ActionDetails,
		RiskLevel:     c.RiskLevel,
	})
	if err != nil {
		return contracts.Vote{}, fmt.Errorf("encode case: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return contracts.Vote{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return contracts.Vote{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return contracts.Vote{}, fmt.Errorf("evaluator %s returned %d", e.id, resp.StatusCode)
	}

	var out evaluateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return contracts.Vote{}, fmt.Errorf("decode verdict: %w", err)
	}
	return contracts.Vote{
		Verdict:    contracts.VoteVerdict(out.Verdict),
		Confidence: out.Confidence,
		Rationale:  out.Rationale,
	}, nil
}

var _ Evaluator = (*HTTPEvaluator)(nil)
