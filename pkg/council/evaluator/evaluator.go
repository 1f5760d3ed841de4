// Package evaluator defines the Council's validator capability and the
// gateway that fans a case out to every configured evaluator.
//
// An evaluator is opaque: the gateway never inspects what reasoning backs it.
package evaluator

import (
	"context"
	"fmt"
	"time"

	"github.com/Vorion-Labs/cognigate/pkg/contracts"
)

// Evaluator is one pluggable validator.
type Evaluator interface {
	// ID identifies the evaluator in provenance and dissent records.
	ID() string

	// Evaluate returns the evaluator's vote on a case. The context carries
	// the per-evaluator deadline; implementations must respect it.
	Evaluate(ctx context.Context, c contracts.Case) (contracts.Vote, error)
}

// Func adapts a plain function to the Evaluator interface.
type Func struct {
	Name string
	Fn   func(ctx context.Context, c contracts.Case) (contracts.Vote, error)
}

func (f Func) ID() string { return f.Name }

func (f Func) Evaluate(ctx context.Context, c contracts.Case) (contracts.Vote, error) {
	return f.Fn(ctx, c)
}

// normalize coerces a raw evaluator result into a well-formed vote.
func normalize(v contracts.Vote, c contracts.Case, evaluatorID string, now time.Time) contracts.Vote {
	v.CaseID = c.ID
	v.EvaluatorID = evaluatorID
	v.CastAt = now

	if v.Confidence < 0 {
		v.Confidence = 0
	}
	if v.Confidence > 100 {
		v.Confidence = 100
	}

	switch v.Verdict {
	case contracts.VoteApprove, contracts.VoteDeny, contracts.VoteAbstain:
	default:
		v = failureVote(c, evaluatorID, fmt.Sprintf("invalid verdict %q", v.Verdict), now)
	}
	return v
}

// failureVote is the abstain-due-to-failure shape recorded when an evaluator
// errors, times out, or returns garbage.
func failureVote(c contracts.Case, evaluatorID, reason string, now time.Time) contracts.Vote {
	return contracts.Vote{
		CaseID:        c.ID,
		EvaluatorID:   evaluatorID,
		Verdict:       contracts.VoteAbstain,
		Confidence:    0,
		FailureReason: reason,
		CastAt:        now,
	}
}
