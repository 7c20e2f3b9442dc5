// Package workflow is the main directed graph engine (C5): the sequence of
// generative stages spec.md §4.1 describes — generate_summary, define_assets,
// define_flows, a threats_router, define_threats, gap_analysis, the
// threats_subgraph bridge into internal/agent's ReAct loop, and finalize —
// built on top of the shared internal/graph engine. Its staged-orchestration
// shape (narrated status updates between stages, a typed accumulating state
// object) is grounded on the teacher's internal/llm/detective_flow.go.
package workflow

import (
	"context"

	"github.com/clcummin/threat-designer/internal/modelconfig"
	"github.com/clcummin/threat-designer/internal/prompt"
	"github.com/clcummin/threat-designer/internal/schema"
)

// Node ids, exported so callers (the executor, tests) can refer to them
// without magic strings.
const (
	NodeGenerateSummary = "generate_summary"
	NodeDefineAssets    = "define_assets"
	NodeDefineFlows     = "define_flows"
	NodeThreatsRouter   = "threats_router"
	NodeDefineThreats   = "define_threats"
	NodeGapAnalysis     = "gap_analysis"
	NodeThreatsSubgraph = "threats_subgraph"
	NodeFinalize        = "finalize"
)

// DefaultMaxRetry is the fixed-iteration mode's hard retry ceiling
// (spec.md §4.1's "max_retries_reached := retry ≥ max_retry (default 15)").
const DefaultMaxRetry = 15

// State is the job-level state threaded through the main graph. Unlike a
// field-level reducer that merges partial updates generically, each node
// here receives the previous State by value, copies it, mutates only the
// fields its stage owns (applying spec.md's domain-specific merge rules —
// union-by-name for the agent's incremental adds, overwrite for a fresh
// fixed-iteration pass, append for accumulated gap findings — itself), and
// returns the result as the full next State. Reducer is therefore the
// identity function: the node's returned delta already IS the next state,
// not a partial one a generic merge would need to reconcile.
type State struct {
	JobID string

	// Static input, set once at job start and never mutated by a node.
	Title           string
	Description     string
	Assumptions     []string
	Instructions    string
	Diagram         *prompt.Diagram
	SupportsCaching bool
	Iteration       int // 0 selects the agent sub-graph; >0 is a fixed pass count
	MaxRetry        int // 0 means DefaultMaxRetry
	ReasoningLevel  modelconfig.ReasoningLevel
	Replay          bool
	Starred         []schema.Threat // replay-only: threats to preserve into the agent sub-graph

	// Node-owned, evolving state.
	Retry   int
	Summary string
	Assets  *schema.AssetsList
	Flows   *schema.FlowsList
	Threats *schema.ThreatsList
	Gaps    []string // accumulated gap_analysis findings, fed back into later threats prompts
}

// EffectiveMaxRetry returns s.MaxRetry or DefaultMaxRetry if unset.
func (s State) EffectiveMaxRetry() int {
	if s.MaxRetry <= 0 {
		return DefaultMaxRetry
	}
	return s.MaxRetry
}

func (s State) threatsEmpty() bool {
	return s.Threats == nil || len(s.Threats.Threats) == 0
}

// Reducer is the graph.Reducer for State: see the State doc comment for why
// this is the identity function rather than a field-merging implementation.
func Reducer(_, delta State) State { return delta }

// ThreatsSubgraphInput is what the threats_subgraph node hands to the agent
// sub-graph (C6) when iteration == 0.
type ThreatsSubgraphInput struct {
	JobID           string
	Title           string
	Description     string
	Assumptions     []string
	Instructions    string
	Diagram         *prompt.Diagram
	SupportsCaching bool
	Assets          *schema.AssetsList
	Flows           *schema.FlowsList
	Starred         []schema.Threat
	ReasoningLevel  modelconfig.ReasoningLevel
}

// ThreatsSubgraphOutput is the agent sub-graph's final catalog, handed back
// to the threats_subgraph node to forward into finalize.
type ThreatsSubgraphOutput struct {
	Threats *schema.ThreatsList
}

// ThreatsSubgraphRunner is the narrow seam between the main graph and
// internal/agent's ReAct sub-graph. internal/agent cannot import workflow
// (it would cycle back through this interface), so the concrete
// implementation is wired in by the caller that constructs both packages
// (the executor). From the sub-graph's own perspective, its `continue` node
// emits a graph.GotoParent Command targeting "finalize" — Run is where that
// bubbled Command is resolved into this plain return value, satisfying
// spec.md §4.1/§4.2's "PARENT-graph Command" without workflow ever needing
// to know the sub-graph's internal node structure.
type ThreatsSubgraphRunner interface {
	Run(ctx context.Context, in ThreatsSubgraphInput) (ThreatsSubgraphOutput, error)
}
