package llmprovider

import "strings"

// Family groups models by the tool-binding quirks spec.md §4.1 step 5
// cares about, independent of the underlying provider package.
type Family string

const (
	// FamilyReasoningEffort is the OpenAI-class "reasoning.effort" model
	// family: tool_choice must always name a specific tool when any tool
	// is bound, because these models silently ignore a bare "auto" hint
	// once reasoning is engaged.
	FamilyReasoningEffort Family = "reasoning_effort"
	// FamilySonnetClass is the Bedrock/Anthropic flagship family. At
	// reasoning level 0 it accepts a forced "any" tool choice; once
	// extended thinking is enabled (level > 0) the API rejects a forced
	// choice outright, so tool_choice must be omitted and the model left
	// to decide.
	FamilySonnetClass Family = "sonnet_class"
	// FamilyGeneric covers every other registered model: tool_choice is
	// never forced, the prompt alone carries the instruction to respond
	// via the bound tool.
	FamilyGeneric Family = "generic"
)

// ClassifyFamily derives a binding-rule Family from a raw model id.
func ClassifyFamily(modelID string) Family {
	lower := strings.ToLower(modelID)
	switch {
	case strings.Contains(lower, "gpt-5") || strings.Contains(lower, "o1") || strings.Contains(lower, "o3") || strings.Contains(lower, "o4"):
		return FamilyReasoningEffort
	case strings.Contains(lower, "sonnet") || strings.Contains(lower, "opus"):
		return FamilySonnetClass
	default:
		return FamilyGeneric
	}
}

// ResolveToolChoice implements spec.md §4.1 step 5's binding decision table
// for a single bound tool named toolName.
func ResolveToolChoice(family Family, reasoning ReasoningLevelHint, toolName string) ToolChoice {
	switch family {
	case FamilyReasoningEffort:
		return ToolChoice{Mode: ToolChoiceNamed, ToolName: toolName}
	case FamilySonnetClass:
		if reasoning.Enabled {
			return ToolChoice{Mode: ToolChoiceOmit}
		}
		return ToolChoice{Mode: ToolChoiceAny}
	default:
		return ToolChoice{Mode: ToolChoiceOmit}
	}
}

// ReasoningLevelHint tells ResolveToolChoice whether the caller resolved a
// non-zero reasoning level for this request, without coupling this package
// to modelconfig's enum.
type ReasoningLevelHint struct {
	Enabled bool
}
