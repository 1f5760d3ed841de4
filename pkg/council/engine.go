package council

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Vorion-Labs/cognigate/pkg/contracts"
	"github.com/Vorion-Labs/cognigate/pkg/council/evaluator"
	"github.com/Vorion-Labs/cognigate/pkg/store/ledger"
)

// Advisor attaches a non-binding annotation to a case before voting. Advisory
// input never gates progress and never counts toward quorum.
type Advisor interface {
	Name() string
	Advise(ctx context.Context, c contracts.Case) (contracts.Advisory, error)
}

// Engine owns in-flight cases exclusively: until Synthesizing completes and
// the decision record is appended, nothing about a case is durable.
type Engine struct {
	ledger     ledger.Ledger
	gateway    *evaluator.Gateway
	evaluators []evaluator.Evaluator
	advisors   []Advisor
	policy     QuorumPolicy
	escalation *EscalationManager
	logger     *slog.Logger
	clock      func() time.Time

	// onCommit, when set, is notified after each decision record lands; the
	// anchor publisher uses it for immediate-anchor record types. One-way:
	// the observer only receives, it can never call back into the engine.
	onCommit func(contracts.Record)

	mu     sync.Mutex
	halted bool
	haltCh chan struct{}
}

// EngineOption configures the engine.
type EngineOption func(*Engine)

// WithAdvisors registers advisory annotators.
func WithAdvisors(advisors ...Advisor) EngineOption {
	return func(e *Engine) { e.advisors = append(e.advisors, advisors...) }
}

// WithEscalations routes escalated cases into the human-review tracker.
func WithEscalations(m *EscalationManager) EngineOption {
	return func(e *Engine) { e.escalation = m }
}

// WithCommitObserver registers the one-way commit notification channel.
func WithCommitObserver(fn func(contracts.Record)) EngineOption {
	return func(e *Engine) { e.onCommit = fn }
}

// WithClock overrides the clock for deterministic testing.
func WithClock(clock func() time.Time) EngineOption {
	return func(e *Engine) { e.clock = clock }
}

// NewEngine wires the deliberation engine.
func NewEngine(l ledger.Ledger, gw *evaluator.Gateway, evs []evaluator.Evaluator, policy QuorumPolicy, logger *slog.Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		ledger:     l,
		gateway:    gw,
		evaluators: evs,
		policy:     policy,
		logger:     logger.With("component", "council.engine"),
		clock:      time.Now,
		haltCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Halt is the operator kill-switch: it cancels every in-flight voting phase.
// Ledger state is unaffected because nothing is written before Synthesizing.
func (e *Engine) Halt() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.halted {
		e.halted = true
		close(e.haltCh)
	}
}

// Resume lifts the kill-switch for new cases.
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.halted {
		e.halted = false
		e.haltCh = make(chan struct{})
	}
}

func (e *Engine) haltState() (bool, chan struct{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.halted, e.haltCh
}

// Deliberate drives one case to a terminal state and commits the decision.
// Every terminal transition produces exactly one Decision, converted 1:1 into
// a ledger record.
func (e *Engine) Deliberate(ctx context.Context, req contracts.CaseRequest) (*contracts.CaseResult, error) {
	halted, haltCh := e.haltState()
	if halted {
		return nil, contracts.ErrDeliberationHalted
	}

	c := contracts.Case{
		ID:               uuid.Must(uuid.NewV7()).String(),
		SubjectID:        req.SubjectID,
		ActionType:       req.ActionType,
		ActionDetails:    req.ActionDetails,
		RiskLevel:        req.RiskLevel,
		HumanConfirmedBy: req.HumanConfirmedBy,
		State:            contracts.CaseOpened,
		OpenedAt:         e.clock().UTC(),
	}
	e.logger.Info("case opened", "case", c.ID, "subject", c.SubjectID,
		"action", c.ActionType, "risk", c.RiskLevel)

	// Opened -> AdvisoryInput. Best effort; a failing advisor is skipped.
	c.State = contracts.CaseAdvisoryInput
	for _, adv := range e.advisors {
		note, err := adv.Advise(ctx, c)
		if err != nil {
			e.logger.Warn("advisor failed", "advisor", adv.Name(), "case", c.ID, "error", err)
			continue
		}
		note.AdvisorID = adv.Name()
		note.IssuedAt = e.clock().UTC()
		c.Advisories = append(c.Advisories, note)
	}

	// AdvisoryInput -> Voting: parallel fan-out, cancellable by the
	// kill-switch without durable side effects.
	c.State = contracts.CaseVoting
	voteCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-haltCh:
			cancel()
		case <-voteCtx.Done():
		}
	}()

	votes := e.gateway.Evaluate(voteCtx, c, e.evaluators)

	if halted, _ := e.haltState(); halted {
		e.logger.Warn("voting cancelled by operator kill-switch", "case", c.ID)
		return nil, contracts.ErrDeliberationHalted
	}

	// Voting -> Synthesizing.
	c.State = contracts.CaseSynthesizing
	tally := contracts.Tally{}
	for _, v := range votes {
		switch v.Verdict {
		case contracts.VoteApprove:
			tally.Approve++
		case contracts.VoteDeny:
			tally.Deny++
		default:
			tally.Abstain++
		}
	}

	th := e.policy.ThresholdFor(c.RiskLevel)
	verdict, rationale := synthesize(tally, th, c.HumanConfirmedBy != "")

	decision := contracts.Decision{
		CaseID:             c.ID,
		Verdict:            verdict,
		Tally:              tally,
		Votes:              votes,
		Dissent:            dissent(votes, verdict),
		SynthesisRationale: rationale,
		DecidedAt:          e.clock().UTC(),
	}

	rec, err := e.commit(ctx, c, decision)
	if err != nil {
		return nil, err
	}

	switch verdict {
	case contracts.VerdictApproved:
		c.State = contracts.CaseApproved
	case contracts.VerdictDenied:
		c.State = contracts.CaseDenied
	default:
		c.State = contracts.CaseEscalated
		if e.escalation != nil {
			e.escalation.Register(c.ID, c.SubjectID, rec.ID)
		}
	}
	e.logger.Info("case decided", "case", c.ID, "verdict", verdict,
		"approve", tally.Approve, "deny", tally.Deny, "abstain", tally.Abstain,
		"record", rec.ID)

	return &contracts.CaseResult{
		CaseID:             c.ID,
		Verdict:            verdict,
		Votes:              votes,
		Dissent:            decision.Dissent,
		SynthesisRationale: rationale,
		LedgerRecordID:     rec.ID,
	}, nil
}

// commit converts the decision into its chain record.
func (e *Engine) commit(ctx context.Context, c contracts.Case, d contracts.Decision) (contracts.Record, error) {
	witnesses := make([]string, 0, len(d.Votes))
	for _, v := range d.Votes {
		if !v.Failed() {
			witnesses = append(witnesses, v.EvaluatorID)
		}
	}

	rec, err := e.ledger.Append(ctx, contracts.Candidate{
		RecordType: contracts.RecordTypeDecision,
		Subject:    contracts.Subject{Type: "agent", ID: c.SubjectID},
		Payload: &contracts.DecisionPayload{
			CaseID:             c.ID,
			SubjectID:          c.SubjectID,
			ActionType:         c.ActionType,
			ActionDetails:      c.ActionDetails,
			RiskLevel:          c.RiskLevel,
			Verdict:            d.Verdict,
			Tally:              d.Tally,
			Votes:              d.Votes,
			Dissent:            d.Dissent,
			SynthesisRationale: d.SynthesisRationale,
		},
		Provenance: contracts.Provenance{
			SourceSystem: "council",
			ActorID:      "council-engine",
			WitnessIDs:   witnesses,
		},
		EventTime: d.DecidedAt,
	})
	if err != nil {
		return contracts.Record{}, fmt.Errorf("commit decision for case %s: %w", c.ID, err)
	}

	if e.onCommit != nil {
		e.onCommit(rec)
	}
	return rec, nil
}

// dissent preserves minority binding votes verbatim for precedent
// traceability. Escalated cases carry no dissent: no side won.
func dissent(votes []contracts.Vote, verdict contracts.CaseVerdict) []contracts.Vote {
	var minority contracts.VoteVerdict
	switch verdict {
	case contracts.VerdictApproved:
		minority = contracts.VoteDeny
	case contracts.VerdictDenied:
		minority = contracts.VoteApprove
	default:
		return nil
	}

	var out []contracts.Vote
	for _, v := range votes {
		if v.Verdict == minority {
			out = append(out, v)
		}
	}
	return out
}
