package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/clcummin/threat-designer/internal/llmprovider"
	"github.com/clcummin/threat-designer/internal/prompt"
	"github.com/clcummin/threat-designer/internal/schema"
)

func marshalIndent(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// applyAction mutates next per the chosen action's tool, enforcing the
// add_threats/gap_analysis quotas. read_threat_catalog and a rejected/quota-
// exhausted call are no-ops on the catalog: the model observes the result
// (or lack of one) via the next turn's re-embedded state.
func applyAction(next SubState, action AgentAction) SubState {
	switch action.Tool {
	case ToolAddThreats:
		if action.AddThreats == nil || next.AddThreatsUses >= MaxAddThreatsUses {
			return next
		}
		next.AddThreatsUses++
		merged := schema.MergeThreatsByName(next.threatsOrEmpty(), action.AddThreats.Threats)
		next.Threats = &schema.ThreatsList{Threats: merged}

	case ToolRemoveThreat:
		if action.RemoveThreat == nil {
			return next
		}
		kept := make([]schema.Threat, 0, len(next.threatsOrEmpty()))
		for _, t := range next.threatsOrEmpty() {
			if t.Name != action.RemoveThreat.Name {
				kept = append(kept, t)
			}
		}
		next.Threats = &schema.ThreatsList{Threats: kept}

	case ToolReadThreatCatalog:
		// Read-only; nothing to mutate.

	case ToolGapAnalysis:
		if action.GapAnalysis == nil || next.GapAnalysisUses >= MaxGapAnalysisUses {
			return next
		}
		next.GapAnalysisUses++
		next.GapPerformed = true
		next.AddThreatsUses = 0
		if !action.GapAnalysis.Stop && action.GapAnalysis.Gap != "" {
			gaps := make([]string, len(next.Gaps), len(next.Gaps)+1)
			copy(gaps, next.Gaps)
			next.Gaps = append(gaps, action.GapAnalysis.Gap)
		}

	case ToolFinish:
		// Handled entirely by the continue node's completion gate.
	}
	return next
}

// buildTurnMessage re-derives the current human message from SubState: the
// diagram, the starred threats to preserve, the live catalog/gaps/quota
// status, and (if the prior turn's finish was rejected) a corrective note.
func buildTurnMessage(s SubState) llmprovider.Message {
	tags := []prompt.Tag{
		{Name: "current_threat_catalog", Content: marshalIndent(s.Threats)},
		{Name: "gaps_identified_so_far", Content: strings.Join(s.Gaps, "\n")},
		{Name: "starred_threats", Content: marshalIndent(schema.FilterStarred(s.threatsOrEmpty()))},
		{Name: "tool_quota_status", Content: fmt.Sprintf(
			"add_threats used %d/%d, gap_analysis used %d/%d, gap_analysis performed at least once: %v",
			s.AddThreatsUses, MaxAddThreatsUses, s.GapAnalysisUses, MaxGapAnalysisUses, s.GapPerformed)},
	}
	if s.RejectionNote != "" {
		tags = append(tags, prompt.Tag{Name: "correction", Content: s.RejectionNote})
	}
	directive := "Choose exactly one tool action: add_threats, remove_threat, read_threat_catalog, or gap_analysis. " +
		"Only choose finish once every STRIDE category is represented in the catalog and gap_analysis has been performed at least once."
	return prompt.Build(prompt.BuildOptions{
		Diagram:         s.Diagram,
		PayloadTags:     tags,
		Directive:       directive,
		SupportsCaching: s.SupportsCaching,
	})
}
