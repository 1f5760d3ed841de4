package contracts

import "time"

// CaseState is the deliberation lifecycle of a Case.
type CaseState string

const (
	CaseOpened        CaseState = "OPENED"
	CaseAdvisoryInput CaseState = "ADVISORY_INPUT"
	CaseVoting        CaseState = "VOTING"
	CaseSynthesizing  CaseState = "SYNTHESIZING"
	CaseApproved      CaseState = "APPROVED"
	CaseDenied        CaseState = "DENIED"
	CaseEscalated     CaseState = "ESCALATED"
)

// Terminal reports whether the state ends the deliberation.
func (s CaseState) Terminal() bool {
	return s == CaseApproved || s == CaseDenied || s == CaseEscalated
}

// VoteVerdict is one evaluator's position on a case.
type VoteVerdict string

const (
	VoteApprove VoteVerdict = "approve"
	VoteDeny    VoteVerdict = "deny"
	VoteAbstain VoteVerdict = "abstain"
)

// CaseVerdict is the synthesized outcome of a case.
type CaseVerdict string

const (
	VerdictApproved  CaseVerdict = "approved"
	VerdictDenied    CaseVerdict = "denied"
	VerdictEscalated CaseVerdict = "escalated"
)

// Advisory is a non-binding annotation attached before voting. It never gates
// progress and never counts toward quorum.
type Advisory struct {
	AdvisorID string         `json:"advisor_id"`
	Summary   string         `json:"summary"`
	Details   map[string]any `json:"details,omitempty"`
	IssuedAt  time.Time      `json:"issued_at"`
}

// Case is one proposed action under deliberation. The Council engine owns it
// exclusively until the terminal decision is committed to the ledger.
type Case struct {
	ID            string         `json:"id"`
	SubjectID     string         `json:"subject_id"`
	ActionType    string         `json:"action_type"`
	ActionDetails map[string]any `json:"action_details,omitempty"`
	RiskLevel     int            `json:"risk_level"` // ordinal severity, externally classified
	Advisories    []Advisory     `json:"advisories,omitempty"`
	State         CaseState      `json:"state"`
	OpenedAt      time.Time      `json:"opened_at"`

	// HumanConfirmedBy is the external human confirmation identity required
	// for approval at the highest risk tier. Empty means not confirmed.
	HumanConfirmedBy string `json:"human_confirmed_by,omitempty"`
}

// Vote is one evaluator's verdict on a case. An evaluator that failed or
// timed out yields an abstain vote with FailureReason set; the case always
// completes within one timeout window regardless of evaluator health.
type Vote struct {
	CaseID        string      `json:"case_id"`
	EvaluatorID   string      `json:"evaluator_id"`
	Verdict       VoteVerdict `json:"verdict"`
	Confidence    int         `json:"confidence"` // 0-100
	Rationale     string      `json:"rationale,omitempty"`
	FailureReason string      `json:"failure_reason,omitempty"`
	CastAt        time.Time   `json:"cast_at"`
}

// Failed reports whether this is an abstain-due-to-failure vote.
func (v Vote) Failed() bool { return v.FailureReason != "" }

// Tally is the vote count over a case.
type Tally struct {
	Approve int `json:"approve"`
	Deny    int `json:"deny"`
	Abstain int `json:"abstain"`
}

// Voting returns the number of non-abstaining votes.
func (t Tally) Voting() int { return t.Approve + t.Deny }

// Decision is the synthesized outcome of all votes for a case. It has no
// existence independent of its ledger record once committed.
type Decision struct {
	CaseID             string      `json:"case_id"`
	Verdict            CaseVerdict `json:"verdict"`
	Tally              Tally       `json:"tally"`
	Votes              []Vote      `json:"votes"`
	Dissent            []Vote      `json:"dissent,omitempty"`
	SynthesisRationale string      `json:"synthesis_rationale"`
	DecidedAt          time.Time   `json:"decided_at"`
}

// CaseRequest is the upstream contract for proposing an action.
type CaseRequest struct {
	SubjectID        string         `json:"subject_id"`
	ActionType       string         `json:"action_type"`
	ActionDetails    map[string]any `json:"action_details,omitempty"`
	RiskLevel        int            `json:"risk_level"`
	HumanConfirmedBy string         `json:"human_confirmed_by,omitempty"`
}

// CaseResult is the response returned to the proposing caller.
type CaseResult struct {
	CaseID             string      `json:"case_id"`
	Verdict            CaseVerdict `json:"verdict"`
	Votes              []Vote      `json:"votes"`
	Dissent            []Vote      `json:"dissent,omitempty"`
	SynthesisRationale string      `json:"synthesis_rationale"`
	LedgerRecordID     string      `json:"ledger_record_id"`
}
