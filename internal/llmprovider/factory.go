package llmprovider

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/clcummin/threat-designer/internal/modelconfig"
)

// Factory turns a validated modelconfig.RuntimeConfig plus resolved
// credentials into the single Model shared by every stage. Each stage's
// StageModelConfig only ever changes which model id, token budget, and
// reasoning dial get passed on the per-call GenerateRequest: the Model
// implementation itself is chosen exactly once, at construction, by
// provider identity.
type Factory struct {
	provider modelconfig.ProviderKind
	model    Model
	cfg      modelconfig.RuntimeConfig
}

// NewFactory builds a Factory for the Bedrock-class provider.
func NewFactory(ctx context.Context, cfg modelconfig.RuntimeConfig, creds modelconfig.BedrockCredentials, log *zap.Logger) (*Factory, error) {
	if cfg.Provider != modelconfig.ProviderBedrock {
		return nil, fmt.Errorf("llmprovider: config provider %q does not match bedrock credentials", cfg.Provider)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	model, err := NewBedrockModel(ctx, creds, log)
	if err != nil {
		return nil, err
	}
	return &Factory{provider: cfg.Provider, model: model, cfg: cfg}, nil
}

// NewOpenAIFactory builds a Factory for the OpenAI-class provider.
func NewOpenAIFactory(cfg modelconfig.RuntimeConfig, creds modelconfig.OpenAICredentials, log *zap.Logger) (*Factory, error) {
	if cfg.Provider != modelconfig.ProviderOpenAI {
		return nil, fmt.Errorf("llmprovider: config provider %q does not match openai credentials", cfg.Provider)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	model, err := NewOpenAIModel(creds, log)
	if err != nil {
		return nil, err
	}
	return &Factory{provider: cfg.Provider, model: model, cfg: cfg}, nil
}

// NewFactoryWithModel builds a Factory around an already-constructed Model,
// bypassing the Bedrock/OpenAI SDK setup NewFactory/NewOpenAIFactory do.
// This is the seam internal/workflow and internal/agent's tests use to
// inject a fake Model instead of talking to a real provider.
func NewFactoryWithModel(cfg modelconfig.RuntimeConfig, model Model) (*Factory, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Factory{provider: cfg.Provider, model: model, cfg: cfg}, nil
}

// StageRequest is the per-stage description a caller (C5/C6) assembles; the
// Factory resolves it into a full GenerateRequest against the bound Model.
type StageRequest struct {
	Stage      modelconfig.Stage
	System     string
	Messages   []Message
	Tools      []ToolSpec
	ToolName   string // the single tool to force, when BindTool is true
	BindTool   bool
	Reasoning  modelconfig.ReasoningLevel
}

// Resolve assembles the provider-agnostic GenerateRequest for one stage
// call, applying spec.md §4.1 step 5's binding rules and §4.5's reasoning
// mapping.
func (f *Factory) Resolve(req StageRequest) (GenerateRequest, error) {
	stageCfg, err := f.cfg.Stage(req.Stage)
	if err != nil {
		return GenerateRequest{}, err
	}

	out := GenerateRequest{
		ModelID:   stageCfg.ModelID,
		MaxTokens: stageCfg.MaxTokens,
		System:    req.System,
		Messages:  req.Messages,
		Tools:     req.Tools,
	}

	switch f.provider {
	case modelconfig.ProviderBedrock:
		if budget, ok := stageCfg.ReasoningBudgets[req.Reasoning]; ok {
			out.Reasoning.ThinkingBudgetTokens = budget
		}
	case modelconfig.ProviderOpenAI:
		if effort, ok := stageCfg.ReasoningEfforts[req.Reasoning]; ok {
			out.Reasoning.Effort = effort
		}
	}

	if req.BindTool && len(req.Tools) > 0 {
		family := f.model.Family(stageCfg.ModelID)
		hint := ReasoningLevelHint{Enabled: out.Reasoning.enabled()}
		out.ToolChoice = ResolveToolChoice(family, hint, req.ToolName)
	}

	return out, nil
}

// Generate resolves req and invokes the bound Model.
func (f *Factory) Generate(ctx context.Context, req StageRequest) (*GenerateResponse, error) {
	genReq, err := f.Resolve(req)
	if err != nil {
		return nil, err
	}
	return f.model.Generate(ctx, genReq)
}

// Timeout returns the effective per-call timeout configured for a stage.
func (f *Factory) Timeout(stage modelconfig.Stage) (time.Duration, error) {
	cfg, err := f.cfg.Stage(stage)
	if err != nil {
		return 0, err
	}
	return cfg.EffectiveTimeout(), nil
}

