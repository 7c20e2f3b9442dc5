package workflow

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/clcummin/threat-designer/internal/graph"
	"github.com/clcummin/threat-designer/internal/llmprovider"
	"github.com/clcummin/threat-designer/internal/store"
)

// DefaultFinalizeDelay is the finalize node's short synthetic delay
// (spec.md §4.1's "wait a short synthetic delay, re-check cancellation"),
// the last suspension point a job passes through before COMPLETE.
const DefaultFinalizeDelay = 200 * time.Millisecond

// Deps are the collaborators every node closure needs: the state store
// (C2), the model factory (C3), and the agent sub-graph bridge (C6). Owned
// by the executor (C7), which constructs one Deps per runtime configuration
// and reuses it across jobs.
type Deps struct {
	Store         *store.Store
	Factory       *llmprovider.Factory
	Runner        ThreatsSubgraphRunner
	Logger        *zap.Logger
	FinalizeDelay time.Duration
}

func (d Deps) logger() *zap.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return zap.NewNop()
}

func (d Deps) finalizeDelay() time.Duration {
	if d.FinalizeDelay > 0 {
		return d.FinalizeDelay
	}
	return DefaultFinalizeDelay
}

// NewEngine builds the main graph of spec.md §4.1: generate_summary →
// (define_assets → define_flows → threats_router) or (replay short-circuit
// to threats_router) → threats_router → {threats_subgraph | define_threats}
// → {define_threats ⇄ gap_analysis} → finalize. Every transition is
// Command-driven rather than a static edge, since nearly every one of them
// is conditional on job state (replay, iteration, retry policy).
func NewEngine(deps Deps) *graph.Engine[State] {
	e := graph.New(Reducer)

	e.Add(NodeGenerateSummary, nodeGenerateSummary(deps))
	e.Add(NodeDefineAssets, nodeDefineAssets(deps))
	e.Add(NodeDefineFlows, nodeDefineFlows(deps))
	e.Add(NodeThreatsRouter, nodeThreatsRouter(deps))
	e.Add(NodeDefineThreats, nodeDefineThreats(deps))
	e.Add(NodeGapAnalysis, nodeGapAnalysis(deps))
	e.Add(NodeThreatsSubgraph, nodeThreatsSubgraph(deps))
	e.Add(NodeFinalize, nodeFinalize(deps))

	e.StartAt(NodeGenerateSummary)
	return e
}

// Run executes the main graph to completion. The main graph is the
// outermost graph in this process (internal/agent's sub-graph is nested
// underneath it, bridged via Deps.Runner), so a non-nil bubbled Command
// here would indicate a node incorrectly emitted a ParentGraph Command and
// is treated as a programming error.
func Run(ctx context.Context, deps Deps, initial State) (State, error) {
	final, bubbled, err := NewEngine(deps).Run(ctx, initial)
	if err != nil {
		return final, err
	}
	if bubbled != nil {
		return final, fmt.Errorf("workflow: main graph received an unexpected parent-graph command %q", bubbled.Goto)
	}
	return final, nil
}
