// Package modelconfig holds the pure, SDK-free configuration and
// validation types for spec.md §4.5: provider selection, per-stage model
// configuration, and reasoning budget/effort tables. It has no dependency
// on any provider SDK — internal/llmprovider consumes it to build clients.
package modelconfig

import (
	"fmt"
	"time"
)

// ProviderKind is one of the two provider families spec.md §4.5 defines.
type ProviderKind string

const (
	ProviderBedrock ProviderKind = "bedrock"
	ProviderOpenAI  ProviderKind = "openai"
)

// ReasoningLevel is the 0..3 reasoning dial shared by both provider
// families; each family maps it to its own native units.
type ReasoningLevel int

const (
	ReasoningOff    ReasoningLevel = 0
	ReasoningLow    ReasoningLevel = 1
	ReasoningMedium ReasoningLevel = 2
	ReasoningHigh   ReasoningLevel = 3
)

func (r ReasoningLevel) valid() bool { return r >= ReasoningOff && r <= ReasoningHigh }

// Stage names the six generative stages whose model is independently
// configurable, plus "struct" for the generic structured-output model used
// when a stage-specific override is absent.
type Stage string

const (
	StageSummary      Stage = "summary"
	StageAssets       Stage = "assets"
	StageFlows        Stage = "flows"
	StageThreats      Stage = "threats"
	StageThreatsAgent Stage = "threats_agent"
	StageGaps         Stage = "gaps"
	StageStruct       Stage = "struct"
)

// RequiredStages is the full set of stage keys a valid RuntimeConfig must
// define, per spec.md §4.5's validation rules.
var RequiredStages = []Stage{
	StageAssets, StageFlows, StageThreats, StageThreatsAgent, StageGaps, StageSummary, StageStruct,
}

// BedrockBudgets maps reasoning level 1..3 to a positive thinking-token
// budget for the Bedrock/Anthropic family.
type BedrockBudgets map[ReasoningLevel]int

// OpenAIEfforts maps reasoning level 1..3 to one of OpenAI's named effort
// tiers.
type OpenAIEfforts map[ReasoningLevel]string

var validOpenAIEfforts = map[string]bool{
	"minimal": true, "low": true, "medium": true, "high": true,
}

// StageModelConfig is the per-stage model configuration. At most one of
// ReasoningBudgets (Bedrock-class) or ReasoningEfforts (OpenAI-class) may
// be set, and only the one matching the config's Provider; both may be nil.
type StageModelConfig struct {
	ModelID          string
	MaxTokens        int
	ReasoningBudgets BedrockBudgets
	ReasoningEfforts OpenAIEfforts
	// Timeout bounds an individual model call; zero means DefaultStageTimeout.
	Timeout time.Duration
}

// DefaultStageTimeout is applied when StageModelConfig.Timeout is zero
// (SPEC_FULL.md §10's per-stage invocation timeout).
const DefaultStageTimeout = 120 * time.Second

// EffectiveTimeout returns c.Timeout or DefaultStageTimeout if unset.
func (c StageModelConfig) EffectiveTimeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultStageTimeout
	}
	return c.Timeout
}

// openAIMaxTokensCeiling is the hard ceiling from spec.md §4.5.
const openAIMaxTokensCeiling = 128_000

// RuntimeConfig is the fully assembled per-provider configuration:
// provider identity plus one StageModelConfig per Stage.
type RuntimeConfig struct {
	Provider ProviderKind
	Stages   map[Stage]StageModelConfig
}

// Validate enforces spec.md §4.5's rules: known provider, all required
// stages present, and the budget/effort fields matching the provider.
func (c RuntimeConfig) Validate() error {
	switch c.Provider {
	case ProviderBedrock, ProviderOpenAI:
	default:
		return fmt.Errorf("modelconfig: unknown provider %q", c.Provider)
	}

	for _, stage := range RequiredStages {
		cfg, ok := c.Stages[stage]
		if !ok {
			return fmt.Errorf("modelconfig: missing required stage config %q", stage)
		}
		if err := c.validateStage(stage, cfg); err != nil {
			return err
		}
	}
	return nil
}

func (c RuntimeConfig) validateStage(stage Stage, cfg StageModelConfig) error {
	if cfg.ModelID == "" {
		return fmt.Errorf("modelconfig: stage %q has no model id", stage)
	}
	if cfg.MaxTokens <= 0 {
		return fmt.Errorf("modelconfig: stage %q has non-positive max_tokens", stage)
	}

	switch c.Provider {
	case ProviderBedrock:
		if cfg.ReasoningEfforts != nil {
			return fmt.Errorf("modelconfig: stage %q sets reasoning_effort on a bedrock-class config", stage)
		}
		for level, budget := range cfg.ReasoningBudgets {
			if !level.valid() || level == ReasoningOff {
				return fmt.Errorf("modelconfig: stage %q has an invalid reasoning level %d", stage, level)
			}
			if budget <= 0 {
				return fmt.Errorf("modelconfig: stage %q reasoning budget for level %d must be positive", stage, level)
			}
		}
	case ProviderOpenAI:
		if cfg.ReasoningBudgets != nil {
			return fmt.Errorf("modelconfig: stage %q sets reasoning_budget on an openai-class config", stage)
		}
		if cfg.MaxTokens > openAIMaxTokensCeiling {
			return fmt.Errorf("modelconfig: stage %q max_tokens %d exceeds openai ceiling %d", stage, cfg.MaxTokens, openAIMaxTokensCeiling)
		}
		for level, effort := range cfg.ReasoningEfforts {
			if !level.valid() || level == ReasoningOff {
				return fmt.Errorf("modelconfig: stage %q has an invalid reasoning level %d", stage, level)
			}
			if !validOpenAIEfforts[effort] {
				return fmt.Errorf("modelconfig: stage %q has an unknown reasoning effort %q", stage, effort)
			}
		}
	}
	return nil
}

// Stage returns the config for the given stage, falling back to the
// "struct" stage if no stage-specific override exists, matching spec.md
// §4.1 step 4's "fail with a configuration error if missing" contract when
// neither is present.
func (c RuntimeConfig) Stage(stage Stage) (StageModelConfig, error) {
	if cfg, ok := c.Stages[stage]; ok {
		return cfg, nil
	}
	if cfg, ok := c.Stages[StageStruct]; ok {
		return cfg, nil
	}
	return StageModelConfig{}, fmt.Errorf("modelconfig: no model configured for stage %q", stage)
}
