package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/clcummin/threat-designer/internal/apperr"
	"github.com/clcummin/threat-designer/internal/graph"
	"github.com/clcummin/threat-designer/internal/llmprovider"
	"github.com/clcummin/threat-designer/internal/modelconfig"
	"github.com/clcummin/threat-designer/internal/prompt"
	"github.com/clcummin/threat-designer/internal/schema"
	"github.com/clcummin/threat-designer/internal/store"
	"github.com/clcummin/threat-designer/internal/workflow"
)

// Deps are the agent sub-graph's collaborators, mirroring
// internal/workflow.Deps but scoped to what the ReAct loop needs.
type Deps struct {
	Store   *store.Store
	Factory *llmprovider.Factory
	Logger  *zap.Logger
}

func (d Deps) logger() *zap.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return zap.NewNop()
}

func checkCancellation(ctx context.Context, deps Deps, jobID string) error {
	if err := ctx.Err(); err != nil {
		return apperr.Cancelled
	}
	if status, ok := deps.Store.GetStatus(jobID); ok && status.State == store.StateCancelled {
		return apperr.Cancelled
	}
	return nil
}

// NewEngine builds the three-node ReAct sub-graph: agent chooses one
// action, tools applies it, continue checks the completion gate and either
// bubbles to the parent graph or loops back to agent.
func NewEngine(deps Deps) *graph.Engine[SubState] {
	e := graph.New(Reducer)
	e.Add(NodeAgent, nodeAgent(deps))
	e.Add(NodeTools, nodeTools(deps))
	e.Add(NodeContinue, nodeContinue(deps))
	e.StartAt(NodeAgent)
	return e
}

// nodeAgent asks the model to choose exactly one tool action for this turn,
// using the same "bind one tool schema, extract first tool-call arguments"
// contract internal/workflow's invokeStage uses for every generative stage.
func nodeAgent(deps Deps) graph.Node[SubState] {
	return func(ctx context.Context, s SubState) (graph.Result[SubState], error) {
		if err := checkCancellation(ctx, deps, s.JobID); err != nil {
			return graph.Result[SubState]{}, err
		}
		if s.Turn >= MaxTurns {
			next := s
			next.PendingAction = &AgentAction{Tool: ToolFinish}
			return graph.Goto(NodeTools, next, true), nil
		}

		system := prompt.BuildAgentSystemPrompt(s.Assumptions, s.Assets, s.Flows, s.Instructions)
		human := buildTurnMessage(s)

		timeout, err := deps.Factory.Timeout(modelconfig.StageThreatsAgent)
		if err != nil {
			return graph.Result[SubState]{}, apperr.Wrap(apperr.KindInternal, "resolve agent stage timeout", err)
		}
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		resp, err := deps.Factory.Generate(callCtx, llmprovider.StageRequest{
			Stage:    modelconfig.StageThreatsAgent,
			System:   system,
			Messages: []llmprovider.Message{human},
			Tools: []llmprovider.ToolSpec{{
				Name:        ToolChooseAction,
				Description: "Record the single tool action to take this turn.",
				Schema:      schema.JSONSchemaFor[AgentAction](),
			}},
			ToolName:  ToolChooseAction,
			BindTool:  true,
			Reasoning: s.ReasoningLevel,
		})
		if err != nil {
			return graph.Result[SubState]{}, err
		}
		if err := checkCancellation(ctx, deps, s.JobID); err != nil {
			return graph.Result[SubState]{}, err
		}
		if len(resp.ToolCalls) == 0 {
			return graph.Result[SubState]{}, apperr.New(apperr.KindModelError, "threats agent turn returned no structured action").WithJobID(s.JobID)
		}

		var action AgentAction
		if err := json.Unmarshal(resp.ToolCalls[0].Args, &action); err != nil {
			return graph.Result[SubState]{}, apperr.Wrap(apperr.KindModelError, "threats agent turn returned unparseable action", err).WithJobID(s.JobID)
		}
		if err := schema.Validate(action); err != nil {
			return graph.Result[SubState]{}, apperr.Wrap(apperr.KindModelError, "threats agent turn action failed validation", err).WithJobID(s.JobID)
		}

		next := s
		next.Turn = s.Turn + 1
		next.PendingAction = &action
		deps.Store.UpdateDetail(s.JobID, fmt.Sprintf("threat agent: %s (turn %d)", action.Tool, next.Turn))
		return graph.Goto(NodeTools, next, true), nil
	}
}

// nodeTools applies the pending action's effect on the catalog/gaps/quotas.
func nodeTools(deps Deps) graph.Node[SubState] {
	return func(ctx context.Context, s SubState) (graph.Result[SubState], error) {
		if err := checkCancellation(ctx, deps, s.JobID); err != nil {
			return graph.Result[SubState]{}, err
		}
		if s.PendingAction == nil {
			return graph.Result[SubState]{}, apperr.New(apperr.KindInternal, "tools node entered with no pending action").WithJobID(s.JobID)
		}

		next := applyAction(s, *s.PendingAction)
		return graph.Goto(NodeContinue, next, true), nil
	}
}

// nodeContinue is the completion gate: a finish request is honored once
// every STRIDE category is represented and gap_analysis has run at least
// once (spec.md §4.2), or once Turn has reached MaxTurns, in which case the
// catalog is handed back even if it still misses STRIDE categories or no
// gap_analysis has run; otherwise the loop returns to agent with a
// corrective note.
func nodeContinue(deps Deps) graph.Node[SubState] {
	return func(ctx context.Context, s SubState) (graph.Result[SubState], error) {
		if err := checkCancellation(ctx, deps, s.JobID); err != nil {
			return graph.Result[SubState]{}, err
		}

		action := s.PendingAction
		next := s
		next.PendingAction = nil

		if action != nil && action.Tool == ToolFinish {
			if next.coverageSatisfied() || next.Turn >= MaxTurns {
				next.RejectionNote = ""
				return graph.GotoParent(NodeDone, next, true), nil
			}
			missing := schema.MissingStrideCategories(next.threatsOrEmpty())
			note := "finish was rejected: "
			if len(missing) > 0 {
				note += fmt.Sprintf("the catalog is still missing coverage for %v", missing)
			} else {
				note += "gap_analysis has not been performed yet"
			}
			next.RejectionNote = note
			return graph.Goto(NodeAgent, next, true), nil
		}

		next.RejectionNote = ""
		return graph.Goto(NodeAgent, next, true), nil
	}
}

// Agent executes the sub-graph to completion and adapts its bubbled Command
// into the plain workflow.ThreatsSubgraphOutput shape the main graph's
// nodeThreatsSubgraph consumes. Agent implements
// workflow.ThreatsSubgraphRunner.
type Agent struct {
	Deps Deps
}

func New(deps Deps) *Agent {
	return &Agent{Deps: deps}
}

func (a *Agent) Run(ctx context.Context, in workflow.ThreatsSubgraphInput) (workflow.ThreatsSubgraphOutput, error) {
	initial := SubState{
		JobID:           in.JobID,
		Title:           in.Title,
		Description:     in.Description,
		Assumptions:     in.Assumptions,
		Instructions:    in.Instructions,
		Diagram:         in.Diagram,
		SupportsCaching: in.SupportsCaching,
		ReasoningLevel:  in.ReasoningLevel,
		Assets:          in.Assets,
		Flows:           in.Flows,
		Threats:         &schema.ThreatsList{Threats: in.Starred},
	}

	final, bubbled, err := NewEngine(a.Deps).Run(ctx, initial)
	if err != nil {
		return workflow.ThreatsSubgraphOutput{}, err
	}
	if bubbled == nil {
		return workflow.ThreatsSubgraphOutput{}, fmt.Errorf("agent: sub-graph terminated without bubbling to the parent graph")
	}

	state := final
	if bubbled.HasUpdate {
		state = bubbled.Update
	}
	a.Deps.logger().Debug("threats agent sub-graph complete", zap.String("job_id", in.JobID), zap.Int("turns", state.Turn))
	return workflow.ThreatsSubgraphOutput{Threats: state.Threats}, nil
}
