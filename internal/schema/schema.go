// Package schema declares the typed contracts exchanged between the
// workflow engine and the model layer: assets, flows, trust boundaries,
// threat sources, threats, and gap decisions. Every type doubles as a
// structured-output target (jsonschema tags) and a validation target
// (validate tags), following the convention set by the teacher's
// models.SiteContext.
package schema

// SummaryResult is the structured output of the generate_summary stage. A
// dedicated type keeps that stage on the same "bind one tool schema, extract
// first tool-call arguments" contract as every other generative stage (see
// spec.md §4.1 step 5 and §9's design note), rather than special-casing free
// text.
type SummaryResult struct {
	Summary string `json:"summary" jsonschema:"description=Concise neutral summary of the system's purpose, components, and trust boundaries" validate:"required,max=4000"`
}

// AssetType enumerates the two kinds of entries an AssetsList may contain.
type AssetType string

const (
	AssetTypeAsset  AssetType = "Asset"
	AssetTypeEntity AssetType = "Entity"
)

// Asset is a single identified asset or entity in the architecture.
type Asset struct {
	Type        AssetType `json:"type"        jsonschema:"description=Asset or Entity" validate:"required,oneof=Asset Entity"`
	Name        string    `json:"name"        jsonschema:"description=Short name of the asset or entity" validate:"required,max=200"`
	Description string    `json:"description" jsonschema:"description=What this asset or entity is and why it matters" validate:"required,max=2000"`
}

// AssetsList is the structured output of the define_assets stage.
type AssetsList struct {
	Assets []Asset `json:"assets" jsonschema:"description=All identified assets and entities" validate:"dive"`
}

// DataFlow describes one data flow between two entities.
type DataFlow struct {
	FlowDescription string `json:"flow_description" jsonschema:"description=What data moves and how"  validate:"required,max=2000"`
	SourceEntity    string `json:"source_entity"    jsonschema:"description=Entity the flow originates from" validate:"required,max=200"`
	TargetEntity    string `json:"target_entity"    jsonschema:"description=Entity the flow terminates at"   validate:"required,max=200"`
}

// TrustBoundary describes a boundary crossed by one or more data flows.
type TrustBoundary struct {
	Purpose      string `json:"purpose"       jsonschema:"description=Why this boundary exists" validate:"required,max=2000"`
	SourceEntity string `json:"source_entity" jsonschema:"description=Entity on the trusted side"   validate:"required,max=200"`
	TargetEntity string `json:"target_entity" jsonschema:"description=Entity on the untrusted side" validate:"required,max=200"`
}

// ThreatSource is a category of adversary relevant to this architecture.
type ThreatSource struct {
	Category    string `json:"category"    jsonschema:"description=Short category label (e.g. External Attacker, Malicious Insider)" validate:"required,max=200"`
	Description string `json:"description" jsonschema:"description=What this source is capable of" validate:"required,max=2000"`
	Example     string `json:"example"     jsonschema:"description=A concrete example specific to this architecture" validate:"required,max=2000"`
}

// FlowsList is the structured output of the define_flows stage.
type FlowsList struct {
	DataFlows       []DataFlow      `json:"data_flows"       jsonschema:"description=Identified data flows" validate:"dive"`
	TrustBoundaries []TrustBoundary `json:"trust_boundaries" jsonschema:"description=Identified trust boundaries" validate:"dive"`
	ThreatSources   []ThreatSource  `json:"threat_sources"   jsonschema:"description=Relevant threat sources" validate:"dive"`
}

// StrideCategory is one of the six fixed STRIDE categories.
type StrideCategory string

const (
	StrideSpoofing              StrideCategory = "Spoofing"
	StrideTampering              StrideCategory = "Tampering"
	StrideRepudiation            StrideCategory = "Repudiation"
	StrideInformationDisclosure  StrideCategory = "Information Disclosure"
	StrideDenialOfService        StrideCategory = "Denial of Service"
	StrideElevationOfPrivilege   StrideCategory = "Elevation of Privilege"
)

// AllStrideCategories is the fixed 6-element STRIDE set, in canonical order.
// Callers must not mutate the returned slice.
var AllStrideCategories = []StrideCategory{
	StrideSpoofing,
	StrideTampering,
	StrideRepudiation,
	StrideInformationDisclosure,
	StrideDenialOfService,
	StrideElevationOfPrivilege,
}

// Likelihood is a three-level qualitative likelihood rating.
type Likelihood string

const (
	LikelihoodLow    Likelihood = "Low"
	LikelihoodMedium Likelihood = "Medium"
	LikelihoodHigh   Likelihood = "High"
)

// Threat is a single catalogued threat. Description's wordcount parameter
// spells its comma as 0x2C, since validator splits tags on a literal comma.
type Threat struct {
	Name            string         `json:"name"            jsonschema:"description=Short descriptive name" validate:"required,max=200"`
	StrideCategory  StrideCategory `json:"stride_category"  jsonschema:"description=One of the six STRIDE categories" validate:"required,oneof='Spoofing' 'Tampering' 'Repudiation' 'Information Disclosure' 'Denial of Service' 'Elevation of Privilege'"`
	Description     string         `json:"description"      jsonschema:"description=35 to 50 word description of the threat" validate:"required,wordcount=350x2C50"`
	Target          string         `json:"target"           jsonschema:"description=The asset, entity, or flow targeted" validate:"required,max=200"`
	Impact          string         `json:"impact"           jsonschema:"description=Consequence if the threat is realized" validate:"required,max=2000"`
	Likelihood      Likelihood     `json:"likelihood"       jsonschema:"description=Low, Medium, or High" validate:"required,oneof=Low Medium High"`
	Mitigations     []string       `json:"mitigations"      jsonschema:"description=2 to 5 concrete mitigations" validate:"required,min=2,max=5,dive,max=500"`
	Source          string         `json:"source"           jsonschema:"description=Relevant threat source category" validate:"required,max=200"`
	Prerequisites   []string       `json:"prerequisites"    jsonschema:"description=Conditions that must hold for this threat to apply" validate:"omitempty,dive,max=500"`
	Vector          string         `json:"vector"           jsonschema:"description=How an attacker would exploit this" validate:"required,max=2000"`
	Starred         bool           `json:"starred"          jsonschema:"description=Whether the user has starred this threat for preservation across replays"`
}

// ThreatsList is the structured output of the define_threats stage and the
// add_threats / remove_threat agent tools.
type ThreatsList struct {
	Threats []Threat `json:"threats" jsonschema:"description=Catalogued threats" validate:"dive"`
}

// GapDecision is the structured output of the gap_analysis stage/tool.
type GapDecision struct {
	Stop bool   `json:"stop" jsonschema:"description=Whether the catalog is sufficiently complete"`
	Gap  string `json:"gap,omitempty" jsonschema:"description=The identified gap, required when stop is false" validate:"required_if=Stop false"`
}

// MissingStrideCategories returns the STRIDE categories not represented by
// any threat's StrideCategory field, in canonical order.
func MissingStrideCategories(threats []Threat) []StrideCategory {
	present := make(map[StrideCategory]bool, len(threats))
	for _, t := range threats {
		present[t.StrideCategory] = true
	}
	var missing []StrideCategory
	for _, c := range AllStrideCategories {
		if !present[c] {
			missing = append(missing, c)
		}
	}
	return missing
}

// MergeThreatsByName unions two threat lists by Name, with entries from b
// winning over entries from a on collision. The result preserves a's
// ordering for unchanged/overwritten entries, followed by b's genuinely new
// entries in b's order. This is the invariant behind spec.md's union-by-name
// merge rule: after merging, no two threats share a Name.
func MergeThreatsByName(a, b []Threat) []Threat {
	byName := make(map[string]Threat, len(a)+len(b))
	var order []string
	for _, t := range a {
		if _, ok := byName[t.Name]; !ok {
			order = append(order, t.Name)
		}
		byName[t.Name] = t
	}
	for _, t := range b {
		if _, ok := byName[t.Name]; !ok {
			order = append(order, t.Name)
		}
		byName[t.Name] = t
	}
	merged := make([]Threat, 0, len(order))
	for _, name := range order {
		merged = append(merged, byName[name])
	}
	return merged
}

// FilterStarred returns only the threats with Starred == true, preserving order.
func FilterStarred(threats []Threat) []Threat {
	var starred []Threat
	for _, t := range threats {
		if t.Starred {
			starred = append(starred, t)
		}
	}
	return starred
}
