package modelconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validBedrockConfig() RuntimeConfig {
	stages := map[Stage]StageModelConfig{}
	for _, s := range RequiredStages {
		stages[s] = StageModelConfig{
			ModelID:   "anthropic.claude-sonnet",
			MaxTokens: 4096,
			ReasoningBudgets: BedrockBudgets{
				ReasoningLow:    1024,
				ReasoningMedium: 4096,
				ReasoningHigh:   16384,
			},
		}
	}
	return RuntimeConfig{Provider: ProviderBedrock, Stages: stages}
}

func validOpenAIConfig() RuntimeConfig {
	stages := map[Stage]StageModelConfig{}
	for _, s := range RequiredStages {
		stages[s] = StageModelConfig{
			ModelID:   "gpt-5",
			MaxTokens: 8192,
			ReasoningEfforts: OpenAIEfforts{
				ReasoningLow:    "low",
				ReasoningMedium: "medium",
				ReasoningHigh:   "high",
			},
		}
	}
	return RuntimeConfig{Provider: ProviderOpenAI, Stages: stages}
}

func TestValidate_AcceptsWellFormedBedrockConfig(t *testing.T) {
	assert.NoError(t, validBedrockConfig().Validate())
}

func TestValidate_AcceptsWellFormedOpenAIConfig(t *testing.T) {
	assert.NoError(t, validOpenAIConfig().Validate())
}

func TestValidate_RejectsUnknownProvider(t *testing.T) {
	cfg := validBedrockConfig()
	cfg.Provider = "gemini"
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsMissingRequiredStage(t *testing.T) {
	cfg := validBedrockConfig()
	delete(cfg.Stages, StageGaps)
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsReasoningBudgetOnOpenAIConfig(t *testing.T) {
	cfg := validOpenAIConfig()
	stage := cfg.Stages[StageThreats]
	stage.ReasoningBudgets = BedrockBudgets{ReasoningLow: 100}
	cfg.Stages[StageThreats] = stage

	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsReasoningEffortOnBedrockConfig(t *testing.T) {
	cfg := validBedrockConfig()
	stage := cfg.Stages[StageThreats]
	stage.ReasoningEfforts = OpenAIEfforts{ReasoningLow: "low"}
	cfg.Stages[StageThreats] = stage

	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsOpenAIMaxTokensOverCeiling(t *testing.T) {
	cfg := validOpenAIConfig()
	stage := cfg.Stages[StageThreats]
	stage.MaxTokens = 200_000
	cfg.Stages[StageThreats] = stage

	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsUnknownOpenAIEffort(t *testing.T) {
	cfg := validOpenAIConfig()
	stage := cfg.Stages[StageThreats]
	stage.ReasoningEfforts = OpenAIEfforts{ReasoningLow: "extreme"}
	cfg.Stages[StageThreats] = stage

	assert.Error(t, cfg.Validate())
}

func TestStage_FallsBackToStructStage(t *testing.T) {
	cfg := validBedrockConfig()
	delete(cfg.Stages, StageSummary)
	cfg.Stages[StageStruct] = StageModelConfig{ModelID: "fallback", MaxTokens: 1024}

	got, err := cfg.Stage(StageSummary)
	require.NoError(t, err)
	assert.Equal(t, "fallback", got.ModelID)
}

func TestStage_ErrorsWhenNeitherStageNorStructConfigured(t *testing.T) {
	cfg := RuntimeConfig{Provider: ProviderBedrock, Stages: map[Stage]StageModelConfig{}}
	_, err := cfg.Stage(StageSummary)
	assert.Error(t, err)
}

func TestEffectiveTimeout_DefaultsWhenUnset(t *testing.T) {
	var c StageModelConfig
	assert.Equal(t, DefaultStageTimeout, c.EffectiveTimeout())
}

func TestValidateBedrockCredentials(t *testing.T) {
	assert.NoError(t, ValidateBedrockCredentials(BedrockCredentials{
		AccessKey: "AKIA...", SecretKey: "secret", Region: "us-east-1",
	}))
	assert.Error(t, ValidateBedrockCredentials(BedrockCredentials{Region: "us-east-1"}))
}

func TestValidateOpenAICredentials(t *testing.T) {
	assert.NoError(t, ValidateOpenAICredentials(OpenAICredentials{APIKey: "sk-..."}))
	assert.Error(t, ValidateOpenAICredentials(OpenAICredentials{}))
}
