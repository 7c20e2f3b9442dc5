package workflow

import (
	"context"

	"github.com/clcummin/threat-designer/internal/graph"
	"github.com/clcummin/threat-designer/internal/modelconfig"
	"github.com/clcummin/threat-designer/internal/prompt"
	"github.com/clcummin/threat-designer/internal/schema"
	"github.com/clcummin/threat-designer/internal/store"
)

// nodeThreatsRouter dispatches on iteration alone: 0 selects the autonomous
// agent sub-graph (C6); any positive count selects the fixed-iteration
// define_threats/gap_analysis loop below. Pure routing, no model call, so
// unlike the generative nodes it has no suspension point to guard.
func nodeThreatsRouter(deps Deps) graph.Node[State] {
	return func(ctx context.Context, s State) (graph.Result[State], error) {
		if s.Iteration == 0 {
			return graph.Goto(NodeThreatsSubgraph, s, true), nil
		}
		return graph.Goto(NodeDefineThreats, s, true), nil
	}
}

// evaluateIterationPolicy implements spec.md §4.1's iteration policy,
// checked BEFORE incrementing retry on every pass (DESIGN.md's Open
// Question resolution #3): the final pass that reaches either ceiling
// finalizes without generating again.
func evaluateIterationPolicy(retry, iteration, maxRetry int) bool {
	maxRetriesReached := retry >= maxRetry
	iterationLimitReached := iteration != 0 && retry >= iteration
	return maxRetriesReached || iterationLimitReached
}

// nodeDefineThreats is the fixed-iteration threat generation pass. Each
// successful call replaces the catalog outright (the prompt hands the
// model the full existing catalog and instructs it to refine, not append —
// see prompt.BuildThreatsPrompt): this is deliberately the opposite merge
// semantics from the agent's add_threats tool, which unions by name.
//
// The "if iteration == 0, go to gap_analysis" branch spec.md §4.1 describes
// after a successful generation is unreachable by construction: iteration
// == 0 is exhaustively diverted to threats_subgraph by the router above
// before define_threats is ever entered, exactly as scenario 1 in spec.md
// §8 traces (two fixed passes straight to FINALIZE, no gap_analysis visit).
// It is implemented below for fidelity to the node contract anyway, as dead
// code by construction — unlike the source's unreachable compatibility
// router, which is not ported at all (DESIGN.md's Open Question resolution
// #2).
func nodeDefineThreats(deps Deps) graph.Node[State] {
	return func(ctx context.Context, s State) (graph.Result[State], error) {
		if err := checkCancellation(ctx, deps, s.JobID); err != nil {
			return graph.Result[State]{}, err
		}

		if evaluateIterationPolicy(s.Retry, s.Iteration, s.EffectiveMaxRetry()) {
			return graph.Goto(NodeFinalize, s, true), nil
		}

		threatState := store.StateThreat
		if s.Retry > 0 {
			threatState = store.StateThreatRetry
		}
		deps.Store.PutStatus(s.JobID, store.JobStatus{State: threatState, Retry: s.Retry})

		variant := prompt.ResolveThreatsVariant(s.Retry, s.threatsEmpty())
		human := prompt.BuildThreatsPrompt(s.Diagram, s.Description, s.Assumptions, s.Assets, s.Flows, s.Threats, variant, s.SupportsCaching)
		result, reasoning, err := invokeStage[schema.ThreatsList](ctx, deps, s.JobID, modelconfig.StageThreats,
			"record_threats", "Record the updated threat catalog.", prompt.ThreatsSystemPrompt(variant), human, s.ReasoningLevel)
		if err != nil {
			return graph.Result[State]{}, err
		}

		next := s
		next.Threats = result
		next.Retry = s.Retry + 1
		if reasoning != "" {
			deps.Store.UpdateTrail(s.JobID, store.TrailUpdate{Threats: []string{reasoning}})
		}

		if next.Iteration == 0 {
			return graph.Goto(NodeGapAnalysis, next, true), nil
		}
		return graph.Goto(NodeDefineThreats, next, true), nil
	}
}

// nodeGapAnalysis is the main graph's standalone gap-analysis stage node
// (distinct from the agent sub-graph's identically-named tool in
// internal/agent, which has its own quota and reset semantics). Per the
// dead-code analysis above, the live fixed-iteration path never reaches
// this node; it is built to satisfy spec.md §4.1's node list and the
// "Gap analysis routing" contract it describes.
func nodeGapAnalysis(deps Deps) graph.Node[State] {
	return func(ctx context.Context, s State) (graph.Result[State], error) {
		if err := checkCancellation(ctx, deps, s.JobID); err != nil {
			return graph.Result[State]{}, err
		}

		human := prompt.BuildGapAnalysisPrompt(s.Diagram, s.Description, s.Assumptions, s.Assets, s.Flows, s.Threats, s.SupportsCaching)
		result, reasoning, err := invokeStage[schema.GapDecision](ctx, deps, s.JobID, modelconfig.StageGaps,
			"record_gap_decision", "Record whether the catalog is sufficiently complete.", prompt.GapSystemPrompt(), human, s.ReasoningLevel)
		if err != nil {
			return graph.Result[State]{}, err
		}

		next := s
		if reasoning != "" {
			deps.Store.UpdateTrail(s.JobID, store.TrailUpdate{Gaps: []string{reasoning}})
		}

		if result.Stop {
			return graph.Goto(NodeFinalize, next, true), nil
		}

		gaps := make([]string, len(s.Gaps), len(s.Gaps)+1)
		copy(gaps, s.Gaps)
		next.Gaps = append(gaps, result.Gap)
		return graph.Goto(NodeDefineThreats, next, true), nil
	}
}

// nodeThreatsSubgraph bridges into the agent sub-graph (C6). The bridge's
// Run method resolves the sub-graph's own PARENT-graph Command internally
// (see ThreatsSubgraphRunner's doc comment) and hands back a plain
// ThreatsSubgraphOutput; from the main graph's point of view this node is
// indistinguishable from any other generative stage that ends by routing to
// finalize.
func nodeThreatsSubgraph(deps Deps) graph.Node[State] {
	return func(ctx context.Context, s State) (graph.Result[State], error) {
		if err := checkCancellation(ctx, deps, s.JobID); err != nil {
			return graph.Result[State]{}, err
		}
		deps.Store.PutStatus(s.JobID, store.JobStatus{State: store.StateThreat, Retry: s.Retry, Detail: "Running autonomous threat agent"})

		out, err := deps.Runner.Run(ctx, ThreatsSubgraphInput{
			JobID:           s.JobID,
			Title:           s.Title,
			Description:     s.Description,
			Assumptions:     s.Assumptions,
			Instructions:    s.Instructions,
			Diagram:         s.Diagram,
			SupportsCaching: s.SupportsCaching,
			Assets:          s.Assets,
			Flows:           s.Flows,
			Starred:         s.Starred,
			ReasoningLevel:  s.ReasoningLevel,
		})
		if err != nil {
			return graph.Result[State]{}, err
		}

		next := s
		next.Threats = out.Threats
		return graph.Goto(NodeFinalize, next, true), nil
	}
}
