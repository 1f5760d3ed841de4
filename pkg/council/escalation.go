package council

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Vorion-Labs/cognigate/pkg/contracts"
	"github.com/Vorion-Labs/cognigate/pkg/store/ledger"
)

// DefaultEscalationWindow is how long a human reviewer has before an
// escalated case is resolved as denied by timeout.
const DefaultEscalationWindow = 24 * time.Hour

// Escalation is a case awaiting human resolution. The escalated decision
// record stays on the chain untouched; resolution appends a new record.
type Escalation struct {
	CaseID          string    `json:"case_id"`
	SubjectID       string    `json:"subject_id"`
	EscalatedRecord string    `json:"escalated_record_id"`
	EscalatedAt     time.Time `json:"escalated_at"`
	Deadline        time.Time `json:"deadline"`
}

// EscalationManager tracks escalated cases and commits their resolutions.
type EscalationManager struct {
	ledger ledger.Ledger
	window time.Duration
	logger *slog.Logger
	clock  func() time.Time

	mu      sync.Mutex
	pending map[string]Escalation
}

// EscalationOption configures the manager.
type EscalationOption func(*EscalationManager)

// WithEscalationWindow overrides the resolution deadline window.
func WithEscalationWindow(d time.Duration) EscalationOption {
	return func(m *EscalationManager) { m.window = d }
}

// WithEscalationClock overrides the clock for deterministic testing.
func WithEscalationClock(clock func() time.Time) EscalationOption {
	return func(m *EscalationManager) { m.clock = clock }
}

// NewEscalationManager wires the escalation tracker.
func NewEscalationManager(l ledger.Ledger, logger *slog.Logger, opts ...EscalationOption) *EscalationManager {
	m := &EscalationManager{
		ledger:  l,
		window:  DefaultEscalationWindow,
		logger:  logger.With("component", "council.escalation"),
		clock:   time.Now,
		pending: make(map[string]Escalation),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register tracks an escalated case for human resolution.
func (m *EscalationManager) Register(caseID, subjectID, recordID string) Escalation {
	now := m.clock().UTC()
	esc := Escalation{
		CaseID:          caseID,
		SubjectID:       subjectID,
		EscalatedRecord: recordID,
		EscalatedAt:     now,
		Deadline:        now.Add(m.window),
	}
	m.mu.Lock()
	m.pending[caseID] = esc
	m.mu.Unlock()
	m.logger.Info("case escalated to human review", "case", caseID,
		"subject", subjectID, "deadline", esc.Deadline)
	return esc
}

// Pending lists escalations awaiting resolution, oldest first.
func (m *EscalationManager) Pending() []Escalation {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Escalation, 0, len(m.pending))
	for _, esc := range m.pending {
		out = append(out, esc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EscalatedAt.Before(out[j].EscalatedAt) })
	return out
}

// Resolve commits a human verdict on an escalated case. The verdict must be
// approved or denied; escalating an escalation is not a resolution.
func (m *EscalationManager) Resolve(ctx context.Context, caseID string, verdict contracts.CaseVerdict, decidedBy, rationale string) (contracts.Record, error) {
	if verdict != contracts.VerdictApproved && verdict != contracts.VerdictDenied {
		return contracts.Record{}, fmt.Errorf("resolve case %s: verdict %q is not a resolution", caseID, verdict)
	}
	if decidedBy == "" {
		return contracts.Record{}, fmt.Errorf("resolve case %s: decided_by is required", caseID)
	}

	m.mu.Lock()
	esc, ok := m.pending[caseID]
	if ok {
		delete(m.pending, caseID)
	}
	m.mu.Unlock()
	if !ok {
		return contracts.Record{}, fmt.Errorf("resolve case %s: %w", caseID, contracts.ErrNotFound)
	}

	rec, err := m.commit(ctx, esc, verdict, decidedBy, rationale)
	if err != nil {
		// Put the intent back so the resolution can be retried.
		m.mu.Lock()
		m.pending[caseID] = esc
		m.mu.Unlock()
		return contracts.Record{}, err
	}
	m.logger.Info("escalation resolved", "case", caseID, "verdict", verdict,
		"decided_by", decidedBy, "record", rec.ID)
	return rec, nil
}

// CheckTimeouts resolves every escalation past its deadline as denied. Silence
// is never consent at the risk tiers that escalate.
func (m *EscalationManager) CheckTimeouts(ctx context.Context) []contracts.Record {
	now := m.clock().UTC()

	m.mu.Lock()
	var expired []Escalation
	for id, esc := range m.pending {
		if now.After(esc.Deadline) {
			expired = append(expired, esc)
			delete(m.pending, id)
		}
	}
	m.mu.Unlock()

	var out []contracts.Record
	for _, esc := range expired {
		rec, err := m.commit(ctx, esc, contracts.VerdictDenied, "system:timeout",
			"escalation window expired without human resolution")
		if err != nil {
			m.logger.Error("timeout resolution failed", "case", esc.CaseID, "error", err)
			m.mu.Lock()
			m.pending[esc.CaseID] = esc
			m.mu.Unlock()
			continue
		}
		m.logger.Warn("escalation timed out, denied", "case", esc.CaseID, "record", rec.ID)
		out = append(out, rec)
	}
	return out
}

func (m *EscalationManager) commit(ctx context.Context, esc Escalation, verdict contracts.CaseVerdict, decidedBy, rationale string) (contracts.Record, error) {
	now := m.clock().UTC()
	rec, err := m.ledger.Append(ctx, contracts.Candidate{
		RecordType: contracts.RecordTypeEscalation,
		Subject:    contracts.Subject{Type: "agent", ID: esc.SubjectID},
		Payload: &contracts.EscalationPayload{
			CaseID:           esc.CaseID,
			EscalatedRecord:  esc.EscalatedRecord,
			Verdict:          verdict,
			DecidedBy:        decidedBy,
			Rationale:        rationale,
			ResolutionLagSec: int64(now.Sub(esc.EscalatedAt) / time.Second),
		},
		Provenance: contracts.Provenance{
			SourceSystem: "council",
			ActorID:      decidedBy,
		},
		EventTime: now,
	})
	if err != nil {
		return contracts.Record{}, fmt.Errorf("commit escalation resolution for case %s: %w", esc.CaseID, err)
	}
	return rec, nil
}
