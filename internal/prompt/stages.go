package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/clcummin/threat-designer/internal/llmprovider"
	"github.com/clcummin/threat-designer/internal/schema"
)

func marshalIndent(v any) string {
	if v == nil {
		return ""
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return ""
	}
	return string(b)
}

const summarySystemPrompt = `You are a senior application security architect. Read the submitted architecture diagram and context and produce a concise, neutral summary of the system: its purpose, major components, and trust boundaries as drawn. Do not speculate about vulnerabilities yet.`

// BuildSummaryPrompt composes the generate_summary stage message.
func BuildSummaryPrompt(diagram *Diagram, description string, assumptions []string, supportsCaching bool) llmprovider.Message {
	return Build(BuildOptions{
		Diagram:         diagram,
		Description:     description,
		Assumptions:     assumptions,
		Directive:       "Summarize the system shown in the diagram and context above.",
		SupportsCaching: supportsCaching,
	})
}

const assetsSystemPrompt = `You are a senior application security architect performing asset inventory for a STRIDE threat model. Identify every asset worth protecting: data stores, credentials, services, and the entities (users, systems, external actors) that interact with them. Be exhaustive but avoid duplicating the same asset under different names.`

// BuildAssetsPrompt composes the define_assets stage message.
func BuildAssetsPrompt(diagram *Diagram, description string, assumptions []string, summary string, supportsCaching bool) llmprovider.Message {
	tags := []Tag{{Name: "system_summary", Content: summary}}
	return Build(BuildOptions{
		Diagram:         diagram,
		Description:     description,
		Assumptions:     assumptions,
		PayloadTags:     tags,
		Directive:       "Identify Assets",
		SupportsCaching: supportsCaching,
	})
}

const flowsSystemPrompt = `You are a senior application security architect mapping data flows, trust boundaries, and threat sources for a STRIDE threat model. Use the identified assets and entities as the vocabulary for flow endpoints. Every flow must cross at least one identified entity.`

// BuildFlowsPrompt composes the define_flows stage message.
func BuildFlowsPrompt(diagram *Diagram, description string, assumptions []string, assets *schema.AssetsList, supportsCaching bool) llmprovider.Message {
	tags := []Tag{{Name: "identified_assets_and_entities", Content: marshalIndent(assets)}}
	return Build(BuildOptions{
		Diagram:         diagram,
		Description:     description,
		Assumptions:     assumptions,
		PayloadTags:     tags,
		Directive:       "Identify system flows",
		SupportsCaching: supportsCaching,
	})
}

// ThreatsVariant names the two threat-generation prompt branches. See
// DESIGN.md's Open Question resolution #1: this replaces an ambiguous
// unnamed condition in the system this was distilled from with an explicit,
// named selector.
type ThreatsVariant int

const (
	ThreatsVariantInitial ThreatsVariant = iota
	ThreatsVariantImprovement
)

// ResolveThreatsVariant selects the threat-generation system prompt
// variant: improvement whenever this is a refinement pass (retry > 0) or
// threats already exist to refine.
func ResolveThreatsVariant(retry int, existingThreatsEmpty bool) ThreatsVariant {
	if retry > 0 || !existingThreatsEmpty {
		return ThreatsVariantImprovement
	}
	return ThreatsVariantInitial
}

const threatsInitialSystemPrompt = `You are a senior application security architect producing the first pass of a STRIDE threat catalog. For every identified asset and data flow, consider each of the six STRIDE categories (Spoofing, Tampering, Repudiation, Information Disclosure, Denial of Service, Elevation of Privilege) and record every plausible threat, however minor. Do not omit a category just because no strong threat comes to mind — note the weakest plausible one instead.`

const threatsImprovePrompt = `You are a senior application security architect refining an existing STRIDE threat catalog. Review the current catalog against the assets and flows below. Add threats for any gaps, sharpen vague descriptions, and correct mitigations that don't match the described architecture. Do not discard existing threats unless they are clearly wrong for this architecture — prefer refining over replacing.`

// BuildThreatsPrompt composes the define_threats stage message for the
// fixed-iteration strategy.
func BuildThreatsPrompt(diagram *Diagram, description string, assumptions []string, assets *schema.AssetsList, flows *schema.FlowsList, existing *schema.ThreatsList, variant ThreatsVariant, supportsCaching bool) llmprovider.Message {
	tags := []Tag{
		{Name: "identified_assets_and_entities", Content: marshalIndent(assets)},
		{Name: "data_flow", Content: marshalIndent(flows)},
	}
	if variant == ThreatsVariantImprovement {
		tags = append(tags, Tag{Name: "threats", Content: marshalIndent(existing)})
	}
	return Build(BuildOptions{
		Diagram:         diagram,
		Description:     description,
		Assumptions:     assumptions,
		PayloadTags:     tags,
		Directive:       "Identify threats",
		SupportsCaching: supportsCaching,
	})
}

// ThreatsSystemPrompt returns the system prompt text for the resolved
// variant.
func ThreatsSystemPrompt(variant ThreatsVariant) string {
	if variant == ThreatsVariantImprovement {
		return threatsImprovePrompt
	}
	return threatsInitialSystemPrompt
}

// SummarySystemPrompt returns the generate_summary stage's system prompt.
func SummarySystemPrompt() string { return summarySystemPrompt }

// AssetsSystemPrompt returns the define_assets stage's system prompt.
func AssetsSystemPrompt() string { return assetsSystemPrompt }

// FlowsSystemPrompt returns the define_flows stage's system prompt.
func FlowsSystemPrompt() string { return flowsSystemPrompt }

// GapSystemPrompt returns the gap_analysis stage's system prompt.
func GapSystemPrompt() string { return gapSystemPrompt }

const gapSystemPrompt = `You are a senior application security architect performing gap analysis on a STRIDE threat catalog. Determine whether the catalog adequately covers the architecture's attack surface. If not, describe the single most significant gap in one or two sentences; if it is adequate, say so.`

// BuildGapAnalysisPrompt composes the gap_analysis stage message.
func BuildGapAnalysisPrompt(diagram *Diagram, description string, assumptions []string, assets *schema.AssetsList, flows *schema.FlowsList, threats *schema.ThreatsList, supportsCaching bool) llmprovider.Message {
	tags := []Tag{
		{Name: "identified_assets_and_entities", Content: marshalIndent(assets)},
		{Name: "data_flow", Content: marshalIndent(flows)},
		{Name: "threats", Content: marshalIndent(threats)},
		{Name: "valid_values_for_threats", Content: strings.Join(strideNames(), ", ")},
	}
	return Build(BuildOptions{
		Diagram:         diagram,
		Description:     description,
		Assumptions:     assumptions,
		PayloadTags:     tags,
		Directive:       "Review the catalog for gaps",
		SupportsCaching: supportsCaching,
	})
}

func strideNames() []string {
	cats := schema.AllStrideCategories
	out := make([]string, 0, len(cats))
	for _, c := range cats {
		out = append(out, string(c))
	}
	return out
}

const agentSystemPromptTemplate = `You are a senior application security architect operating autonomously to build a complete STRIDE threat catalog. You have four tools: add_threats, remove_threat, read_threat_catalog, and gap_analysis. Use them to build, prune, inspect, and validate the catalog until it covers all six STRIDE categories and at least one gap analysis pass has been performed.

Current assumptions:
%s

Current assets:
%s

Current flows:
%s

%s`

// BuildAgentSystemPrompt composes the threats_subgraph agent node's system
// prompt, embedding the live sub-state per spec.md §4.2.
func BuildAgentSystemPrompt(assumptions []string, assets *schema.AssetsList, flows *schema.FlowsList, instructions string) string {
	assumptionsText := "(none provided)"
	if len(assumptions) > 0 {
		assumptionsText = "- " + strings.Join(assumptions, "\n- ")
	}
	instructionsText := ""
	if instructions != "" {
		instructionsText = fmt.Sprintf("Additional operator instructions:\n%s", Clean(instructions))
	}
	return fmt.Sprintf(agentSystemPromptTemplate, assumptionsText, marshalIndent(assets), marshalIndent(flows), instructionsText)
}
