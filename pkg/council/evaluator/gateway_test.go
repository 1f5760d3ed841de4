package evaluator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vorion-Labs/cognigate/pkg/contracts"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixedVote(verdict contracts.VoteVerdict, confidence int) Func {
	return Func{
		Name: "fixed-" + string(verdict),
		Fn: func(ctx context.Context, c contracts.Case) (contracts.Vote, error) {
			return contracts.Vote{Verdict: verdict, Confidence: confidence}, nil
		},
	}
}

func TestGatewayCollectsOneVotePerEvaluator(t *testing.T) {
	g := NewGateway(time.Second, quietLogger())
	c := contracts.Case{ID: "case-1", SubjectID: "agent-1"}

	votes := g.Evaluate(context.Background(), c, []Evaluator{
		fixedVote(contracts.VoteApprove, 80),
		fixedVote(contracts.VoteDeny, 60),
		fixedVote(contracts.VoteAbstain, 0),
	})

	require.Len(t, votes, 3)
	assert.Equal(t, contracts.VoteApprove, votes[0].Verdict)
	assert.Equal(t, contracts.VoteDeny, votes[1].Verdict)
	assert.Equal(t, contracts.VoteAbstain, votes[2].Verdict)
	for _, v := range votes {
		assert.Equal(t, "case-1", v.CaseID)
		assert.NotEmpty(t, v.EvaluatorID)
		assert.False(t, v.CastAt.IsZero())
	}
}

func TestGatewayTimeoutDegradesToAbstain(t *testing.T) {
	g := NewGateway(50*time.Millisecond, quietLogger())
	c := contracts.Case{ID: "case-1"}

	hung := Func{Name: "hung", Fn: func(ctx context.Context, _ contracts.Case) (contracts.Vote, error) {
		<-ctx.Done()
		return contracts.Vote{}, ctx.Err()
	}}

	start := time.Now()
	votes := g.Evaluate(context.Background(), c, []Evaluator{
		fixedVote(contracts.VoteApprove, 90),
		hung,
		hung,
	})
	elapsed := time.Since(start)

	require.Len(t, votes, 3)
	assert.Equal(t, contracts.VoteApprove, votes[0].Verdict)
	for _, v := range votes[1:] {
		assert.Equal(t, contracts.VoteAbstain, v.Verdict)
		assert.Equal(t, contracts.ErrEvaluatorTimeout.Error(), v.FailureReason)
		assert.True(t, v.Failed())
	}

	// Hung evaluators run in parallel: the whole round stays within one
	// timeout window, not one per evaluator.
	assert.Less(t, elapsed, 500*time.Millisecond)
}

func TestGatewayEvaluatorErrorDegradesToAbstain(t *testing.T) {
	g := NewGateway(time.Second, quietLogger())

	broken := Func{Name: "broken", Fn: func(ctx context.Context, _ contracts.Case) (contracts.Vote, error) {
		return contracts.Vote{}, errors.New("model backend exploded")
	}}

	votes := g.Evaluate(context.Background(), contracts.Case{ID: "c"}, []Evaluator{broken})
	require.Len(t, votes, 1)
	assert.Equal(t, contracts.VoteAbstain, votes[0].Verdict)
	assert.Equal(t, "model backend exploded", votes[0].FailureReason)
}

func TestNormalizeClampsAndValidates(t *testing.T) {
	g := NewGateway(time.Second, quietLogger())

	overconfident := Func{Name: "over", Fn: func(ctx context.Context, _ contracts.Case) (contracts.Vote, error) {
		return contracts.Vote{Verdict: contracts.VoteApprove, Confidence: 5000}, nil
	}}
	garbage := Func{Name: "garbage", Fn: func(ctx context.Context, _ contracts.Case) (contracts.Vote, error) {
		return contracts.Vote{Verdict: "maybe", Confidence: -3}, nil
	}}

	votes := g.Evaluate(context.Background(), contracts.Case{ID: "c"}, []Evaluator{overconfident, garbage})
	require.Len(t, votes, 2)

	assert.Equal(t, 100, votes[0].Confidence)

	assert.Equal(t, contracts.VoteAbstain, votes[1].Verdict)
	assert.Contains(t, votes[1].FailureReason, "invalid verdict")
}

func TestGatewayNoEvaluators(t *testing.T) {
	g := NewGateway(time.Second, quietLogger())
	votes := g.Evaluate(context.Background(), contracts.Case{ID: "c"}, nil)
	assert.Empty(t, votes)
}
