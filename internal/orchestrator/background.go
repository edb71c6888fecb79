package orchestrator

import (
	"context"
	"errors"
	"log/slog"
)

// ErrAccurateNotEligible is returned when the preconditions for accepting
// an accurate-response request are not met: the query must exist for this
// user, its fast tier must be populated, and its accurate tier must not be.
var ErrAccurateNotEligible = errors.New("orchestrator: query is not eligible for an accurate response")

// DispatchAccurateBackground validates the preconditions for an accurate
// response request (query exists for userID, fast populated, accurate not)
// and, if met, schedules ProcessAccurate on the background worker pool. It
// returns immediately; the background run's outcome is only observable via
// the metrics collector and the Query Store, matching the "swallow all
// exceptions, log them, never propagate" background-task contract.
func (o *Orchestrator) DispatchAccurateBackground(ctx context.Context, queryID, userID, question string) error {
	rec, err := o.store.GetByID(ctx, queryID, userID)
	if err != nil {
		return newPipelineError(KindUnavailable, "DispatchAccurateBackground.GetByID", err)
	}
	if rec == nil || rec.Fast == nil || rec.Accurate != nil {
		return ErrAccurateNotEligible
	}

	o.pool.submit(func() {
		bgCtx := context.Background()
		if _, err := o.ProcessAccurate(bgCtx, queryID, question); err != nil {
			slog.Error("[orchestrator] background accurate pipeline failed",
				"query_id", queryID, "error", err.Error())
		}
	})

	return nil
}

// ProcessFastBackground is the background-dispatch wrapper for the fast
// pipeline: it runs ProcessFast and swallows all errors (logging them),
// recording the outcome in the metrics collector via ProcessFast itself.
func (o *Orchestrator) ProcessFastBackground(userID, question string) {
	o.pool.submit(func() {
		bgCtx := context.Background()
		if _, err := o.ProcessFast(bgCtx, userID, question); err != nil {
			slog.Error("[orchestrator] background fast pipeline failed",
				"user_id", userID, "error", err.Error())
		}
	})
}
