package workflow

import (
	"context"

	"go.uber.org/zap"

	"github.com/clcummin/threat-designer/internal/graph"
	"github.com/clcummin/threat-designer/internal/modelconfig"
	"github.com/clcummin/threat-designer/internal/prompt"
	"github.com/clcummin/threat-designer/internal/schema"
	"github.com/clcummin/threat-designer/internal/store"
)

// nodeGenerateSummary is the graph entry point. On a fresh (non-replay) run
// it produces the system summary and proceeds to define_assets. On replay
// it skips straight to threats_router: assets/flows already exist from the
// prior run, the trail's accumulated gaps/threats text is stale and must be
// cleared, and (see DESIGN.md's open-question resolution) assets/flows are
// refreshed from the pre-replay backup snapshot while the starred-only
// threat list the executor already seeded into State is left untouched.
func nodeGenerateSummary(deps Deps) graph.Node[State] {
	return func(ctx context.Context, s State) (graph.Result[State], error) {
		if err := checkCancellation(ctx, deps, s.JobID); err != nil {
			return graph.Result[State]{}, err
		}
		deps.Store.PutStatus(s.JobID, store.JobStatus{State: store.StateStart, Retry: s.Retry})

		if s.Replay {
			deps.Store.ResetTrailThreadsAndGaps(s.JobID)
			next := s
			if results, ok := deps.Store.GetResults(s.JobID); ok && results.Backup != nil {
				next.Assets = results.Backup.Assets
				next.Flows = results.Backup.SystemArchitecture
			}
			return graph.Goto(NodeThreatsRouter, next, true), nil
		}

		human := prompt.BuildSummaryPrompt(s.Diagram, s.Description, s.Assumptions, s.SupportsCaching)
		result, _, err := invokeStage[schema.SummaryResult](ctx, deps, s.JobID, modelconfig.StageSummary,
			"record_summary", "Record the system summary.", prompt.SummarySystemPrompt(), human, s.ReasoningLevel)
		if err != nil {
			return graph.Result[State]{}, err
		}

		next := s
		next.Summary = result.Summary
		deps.logger().Debug("generated system summary", zap.String("job_id", s.JobID))
		return graph.Goto(NodeDefineAssets, next, true), nil
	}
}

func nodeDefineAssets(deps Deps) graph.Node[State] {
	return func(ctx context.Context, s State) (graph.Result[State], error) {
		if err := checkCancellation(ctx, deps, s.JobID); err != nil {
			return graph.Result[State]{}, err
		}
		deps.Store.PutStatus(s.JobID, store.JobStatus{State: store.StateAssets, Retry: s.Retry})

		human := prompt.BuildAssetsPrompt(s.Diagram, s.Description, s.Assumptions, s.Summary, s.SupportsCaching)
		result, reasoning, err := invokeStage[schema.AssetsList](ctx, deps, s.JobID, modelconfig.StageAssets,
			"record_assets", "Record the identified assets and entities.", prompt.AssetsSystemPrompt(), human, s.ReasoningLevel)
		if err != nil {
			return graph.Result[State]{}, err
		}

		next := s
		next.Assets = result
		if reasoning != "" {
			deps.Store.UpdateTrail(s.JobID, store.TrailUpdate{Assets: &reasoning})
		}
		return graph.Goto(NodeDefineFlows, next, true), nil
	}
}

func nodeDefineFlows(deps Deps) graph.Node[State] {
	return func(ctx context.Context, s State) (graph.Result[State], error) {
		if err := checkCancellation(ctx, deps, s.JobID); err != nil {
			return graph.Result[State]{}, err
		}
		deps.Store.PutStatus(s.JobID, store.JobStatus{State: store.StateFlow, Retry: s.Retry})

		human := prompt.BuildFlowsPrompt(s.Diagram, s.Description, s.Assumptions, s.Assets, s.SupportsCaching)
		result, reasoning, err := invokeStage[schema.FlowsList](ctx, deps, s.JobID, modelconfig.StageFlows,
			"record_flows", "Record the data flows, trust boundaries, and threat sources.", prompt.FlowsSystemPrompt(), human, s.ReasoningLevel)
		if err != nil {
			return graph.Result[State]{}, err
		}

		next := s
		next.Flows = result
		if reasoning != "" {
			deps.Store.UpdateTrail(s.JobID, store.TrailUpdate{Flows: &reasoning})
		}
		return graph.Goto(NodeThreatsRouter, next, true), nil
	}
}
