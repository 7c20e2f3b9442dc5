package workflow

import (
	"context"
	"time"

	"github.com/clcummin/threat-designer/internal/apperr"
	"github.com/clcummin/threat-designer/internal/graph"
	"github.com/clcummin/threat-designer/internal/store"
)

// nodeFinalize is the graph's sole terminal node. It persists a normalized
// results record, waits a short synthetic delay (spec.md §4.1's last
// suspension point before COMPLETE), re-checks cancellation, and transitions
// to COMPLETE — or to CANCELLED if the job was interrupted during the wait.
func nodeFinalize(deps Deps) graph.Node[State] {
	return func(ctx context.Context, s State) (graph.Result[State], error) {
		deps.Store.PutStatus(s.JobID, store.JobStatus{State: store.StateFinalize, Retry: s.Retry})

		_ = deps.Store.MutateResults(s.JobID, func(prev store.JobResults) (store.JobResults, error) {
			prev.Title = s.Title
			prev.Description = s.Description
			prev.Assumptions = s.Assumptions
			prev.Assets = s.Assets
			prev.SystemArchitecture = s.Flows
			prev.ThreatList = s.Threats
			prev.Retry = s.Retry
			return prev, nil
		})

		select {
		case <-time.After(deps.finalizeDelay()):
		case <-ctx.Done():
		}

		if err := checkCancellation(ctx, deps, s.JobID); err != nil {
			now := time.Now()
			_ = deps.Store.MutateResults(s.JobID, func(prev store.JobResults) (store.JobResults, error) {
				prev.CancelledAt = &now
				prev.CancellationReason = "interrupted while finalizing"
				return prev, nil
			})
			deps.Store.PutStatus(s.JobID, store.JobStatus{State: store.StateCancelled, Retry: s.Retry})
			return graph.Result[State]{}, apperr.Cancelled
		}

		now := time.Now()
		_ = deps.Store.MutateResults(s.JobID, func(prev store.JobResults) (store.JobResults, error) {
			prev.CompletedAt = &now
			return prev, nil
		})
		deps.Store.PutStatus(s.JobID, store.JobStatus{State: store.StateComplete, Retry: s.Retry})

		return graph.Update(s), nil
	}
}
