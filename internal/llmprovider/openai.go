package llmprovider

import (
	"context"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"go.uber.org/zap"

	"github.com/clcummin/threat-designer/internal/apperr"
	"github.com/clcummin/threat-designer/internal/modelconfig"
)

// OpenAIModel drives the OpenAI-class provider family, keyed on
// spec.md §4.5's {api_key} credential shape and the reasoning.effort /
// reasoning.summary=detailed request fields.
type OpenAIModel struct {
	client openai.Client
	log    *zap.Logger
}

// NewOpenAIModel builds an OpenAI-backed Model from an explicit, session-scoped
// API key.
func NewOpenAIModel(creds modelconfig.OpenAICredentials, log *zap.Logger) (*OpenAIModel, error) {
	if err := modelconfig.ValidateOpenAICredentials(creds); err != nil {
		return nil, err
	}
	client := openai.NewClient(option.WithAPIKey(creds.APIKey))
	return &OpenAIModel{client: client, log: log.With(zap.String("provider", "openai"))}, nil
}

func (m *OpenAIModel) Family(modelID string) Family { return ClassifyFamily(modelID) }

func (m *OpenAIModel) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	params := openai.ChatCompletionNewParams{
		Model:     openai.ChatModel(req.ModelID),
		MaxTokens: openai.Int(int64(req.MaxTokens)),
		Messages:  toOpenAIMessages(req.System, req.Messages),
	}

	if len(req.Tools) > 0 {
		params.Tools = toOpenAITools(req.Tools)
		switch req.ToolChoice.Mode {
		case ToolChoiceAny:
			params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{
				OfAuto: openai.String("required"),
			}
		case ToolChoiceNamed:
			params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{
				OfChatCompletionNamedToolChoice: &openai.ChatCompletionNamedToolChoiceParam{
					Function: openai.ChatCompletionNamedToolChoiceFunctionParam{Name: req.ToolChoice.ToolName},
				},
			}
		case ToolChoiceOmit:
			// leave unset
		}
	}

	if req.Reasoning.Effort != "" {
		params.ReasoningEffort = shared.ReasoningEffort(req.Reasoning.Effort)
		params.ReasoningSummary = openai.String("detailed")
	}

	completion, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, apperr.Remap(apperr.FromOpenAI(err))
	}
	if len(completion.Choices) == 0 {
		return nil, apperr.New(apperr.KindModelProvider, "openai response carried no choices").WithProvider("openai")
	}

	choice := completion.Choices[0]
	resp := &GenerateResponse{
		Text:       choice.Message.Content,
		StopReason: string(choice.FinishReason),
		// ReasoningText stays empty: reasoning tokens aren't echoed as text by this API.
	}
	for _, call := range choice.Message.ToolCalls {
		resp.ToolCalls = append(resp.ToolCalls, ToolCall{
			ID:   call.ID,
			Name: call.Function.Name,
			Args: []byte(call.Function.Arguments),
		})
	}
	return resp, nil
}

func toOpenAIMessages(system string, msgs []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs)+1)
	if system != "" {
		out = append(out, openai.SystemMessage(system))
	}
	for _, m := range msgs {
		text := joinTextParts(m.Parts)
		switch m.Role {
		case RoleUser:
			out = append(out, openai.UserMessage(text))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(text))
		case RoleTool:
			out = append(out, openai.ToolMessage(text, m.ToolCallID))
		}
	}
	return out
}

func joinTextParts(parts []Part) string {
	var out string
	for _, p := range parts {
		if p.Kind == PartText {
			out += p.Text
		}
	}
	return out
}

func toOpenAITools(tools []ToolSpec) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, 0, len(tools))
	for _, t := range tools {
		out = append(out, openai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters:  toOpenAIFunctionParameters(t.Schema),
			},
		})
	}
	return out
}

func toOpenAIFunctionParameters(schema any) shared.FunctionParameters {
	return shared.FunctionParameters(schemaToMap(schema))
}
