// Package agent implements the autonomous threats sub-graph (C6): a
// ReAct-style agent/tools/continue loop over internal/graph.Engine[SubState]
// that builds the STRIDE threat catalog for the iteration==0 "autonomous"
// path (spec.md §4.2), in contrast to C5's fixed-iteration
// define_threats/gap_analysis loop.
//
// Unlike a conversational tool-calling agent, each turn is a fresh
// structured call: the model picks exactly one action (add_threats,
// remove_threat, read_threat_catalog, gap_analysis, or finish) via the same
// "bind one tool schema, extract first tool-call arguments" contract
// internal/workflow's stages use, with the live catalog/gaps/quota status
// re-embedded in that turn's human message. internal/llmprovider's Message
// type has no slot for replaying an assistant's prior tool-use blocks
// (C5 never needed one), so full transcript replay was not an option;
// re-deriving the turn's context from SubState each call keeps every turn
// self-contained, exactly as nodeDefineThreats re-sends the full existing
// catalog each pass instead of an incremental diff.
package agent

import (
	"github.com/clcummin/threat-designer/internal/modelconfig"
	"github.com/clcummin/threat-designer/internal/prompt"
	"github.com/clcummin/threat-designer/internal/schema"
)

const (
	NodeAgent    = "agent"
	NodeTools    = "tools"
	NodeContinue = "continue"

	// NodeDone is the bubbled-to-parent target signaling the sub-graph has
	// satisfied its completion gate. It names no real node in any parent
	// graph; Engine.Run's caller (Run, in engine.go) only checks that it was
	// a ParentGraph bubble, never dispatches on the string itself.
	NodeDone = "done"
)

const (
	ToolAddThreats        = "add_threats"
	ToolRemoveThreat      = "remove_threat"
	ToolReadThreatCatalog = "read_threat_catalog"
	ToolGapAnalysis       = "gap_analysis"
	ToolFinish            = "finish"

	ToolChooseAction = "choose_action"
)

// MaxAddThreatsUses and MaxGapAnalysisUses are the per-tool call quotas
// spec.md §4.2 enforces against runaway tool loops: once exhausted, further
// calls of that tool are accepted but have no effect on the catalog, which
// in practice pushes the model toward finish.
const (
	MaxAddThreatsUses  = 3
	MaxGapAnalysisUses = 3
)

// MaxTurns is a defensive backstop distinct from the per-tool quotas above:
// it bounds read_threat_catalog/remove_threat calls, which carry no quota
// of their own, so a model that never calls gap_analysis or finish cannot
// loop the sub-graph forever.
const MaxTurns = 20

// SubState is the agent sub-graph's state: the read-only architecture
// context carried in from workflow.ThreatsSubgraphInput, plus the catalog,
// gaps, and per-tool quota counters the loop mutates turn by turn.
type SubState struct {
	JobID           string
	Title           string
	Description     string
	Assumptions     []string
	Instructions    string
	Diagram         *prompt.Diagram
	SupportsCaching bool
	ReasoningLevel  modelconfig.ReasoningLevel

	Assets *schema.AssetsList
	Flows  *schema.FlowsList

	Threats *schema.ThreatsList
	Gaps    []string

	AddThreatsUses  int
	GapAnalysisUses int
	GapPerformed    bool

	// PendingAction is the action chosen by the most recent agent turn,
	// consumed and cleared by the tools node.
	PendingAction *AgentAction

	// RejectionNote carries a one-turn corrective message back to the agent
	// after continue rejects a premature finish, then is cleared.
	RejectionNote string

	Turn int
}

func Reducer(_, delta SubState) SubState { return delta }

func (s SubState) threatsOrEmpty() []schema.Threat {
	if s.Threats == nil {
		return nil
	}
	return s.Threats.Threats
}

// coverageSatisfied reports whether spec.md §4.2's completion gate holds:
// all six STRIDE categories represented, and at least one gap_analysis call
// has been performed.
func (s SubState) coverageSatisfied() bool {
	return len(schema.MissingStrideCategories(s.threatsOrEmpty())) == 0 && s.GapPerformed
}

// AgentAction is the structured output of one agent turn: exactly one tool
// choice, with the matching input populated.
type AgentAction struct {
	Tool         string             `json:"tool" jsonschema:"description=Exactly one of add_threats, remove_threat, read_threat_catalog, gap_analysis, or finish" validate:"required,oneof=add_threats remove_threat read_threat_catalog gap_analysis finish"`
	AddThreats   *AddThreatsInput   `json:"add_threats,omitempty" jsonschema:"description=Required when tool is add_threats"`
	RemoveThreat *RemoveThreatInput `json:"remove_threat,omitempty" jsonschema:"description=Required when tool is remove_threat"`
	GapAnalysis  *GapAnalysisInput  `json:"gap_analysis,omitempty" jsonschema:"description=Required when tool is gap_analysis"`
}

// AddThreatsInput is the add_threats tool's argument: new or revised
// threats to union into the catalog by name (schema.MergeThreatsByName).
type AddThreatsInput struct {
	Threats []schema.Threat `json:"threats" jsonschema:"description=New or revised threats to union into the catalog by name" validate:"required,min=1,dive"`
}

// RemoveThreatInput is the remove_threat tool's argument.
type RemoveThreatInput struct {
	Name string `json:"name" jsonschema:"description=Exact name of the threat to remove" validate:"required,max=200"`
}

// GapAnalysisInput is the gap_analysis tool's argument, structurally
// identical to schema.GapDecision.
type GapAnalysisInput struct {
	Stop bool   `json:"stop" jsonschema:"description=Whether the catalog is sufficiently complete"`
	Gap  string `json:"gap,omitempty" jsonschema:"description=The identified gap, required when stop is false" validate:"required_if=Stop false"`
}
