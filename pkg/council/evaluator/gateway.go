package evaluator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Vorion-Labs/cognigate/pkg/contracts"
)

// Gateway fans a case out to every evaluator in parallel, each call bounded
// by one timeout. A failing or non-responding evaluator degrades to an
// abstain-due-to-failure vote, so deliberation always completes within one
// timeout window regardless of individual evaluator health.
type Gateway struct {
	timeout time.Duration
	logger  *slog.Logger
	clock   func() time.Time
}

// NewGateway creates the gateway with a per-evaluator timeout.
func NewGateway(timeout time.Duration, logger *slog.Logger) *Gateway {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Gateway{
		timeout: timeout,
		logger:  logger.With("component", "council.gateway"),
		clock:   time.Now,
	}
}

// WithClock overrides the clock for deterministic testing.
func (g *Gateway) WithClock(clock func() time.Time) *Gateway {
	g.clock = clock
	return g
}

// Timeout returns the per-evaluator window.
func (g *Gateway) Timeout() time.Duration { return g.timeout }

// Evaluate collects exactly one vote per evaluator. The returned slice is
// indexed like evs; no ordering is guaranteed between evaluators' completion.
func (g *Gateway) Evaluate(ctx context.Context, c contracts.Case, evs []Evaluator) []contracts.Vote {
	votes := make([]contracts.Vote, len(evs))

	grp, grpCtx := errgroup.WithContext(ctx)
	for i, ev := range evs {
		grp.Go(func() error {
			callCtx, cancel := context.WithTimeout(grpCtx, g.timeout)
			defer cancel()

			vote, err := ev.Evaluate(callCtx, c)
			now := g.clock()
			switch {
			case err == nil:
				votes[i] = normalize(vote, c, ev.ID(), now)
			case errors.Is(err, context.DeadlineExceeded):
				g.logger.Warn("evaluator timed out", "evaluator", ev.ID(), "case", c.ID)
				votes[i] = failureVote(c, ev.ID(), contracts.ErrEvaluatorTimeout.Error(), now)
			default:
				g.logger.Warn("evaluator failed", "evaluator", ev.ID(), "case", c.ID, "error", err)
				votes[i] = failureVote(c, ev.ID(), err.Error(), now)
			}
			return nil // a bad evaluator never fails the case
		})
	}
	_ = grp.Wait()

	return votes
}
