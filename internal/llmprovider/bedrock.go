package llmprovider

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"go.uber.org/zap"

	"github.com/clcummin/threat-designer/internal/apperr"
	"github.com/clcummin/threat-designer/internal/modelconfig"
)

// BedrockModel drives the Bedrock-class provider family: Anthropic's
// Messages API fronted by AWS Bedrock, configured per spec.md §4.5's
// {access_key, secret_key, session_token, region} credential shape.
type BedrockModel struct {
	client *anthropic.Client
	log    *zap.Logger
}

// NewBedrockModel builds a Bedrock-backed Model from explicit session
// credentials (never from ambient environment credentials — operators
// supply these per spec.md §6's credential-handling rule).
func NewBedrockModel(ctx context.Context, creds modelconfig.BedrockCredentials, log *zap.Logger) (*BedrockModel, error) {
	if err := modelconfig.ValidateBedrockCredentials(creds); err != nil {
		return nil, fmt.Errorf("llmprovider: invalid bedrock credentials: %w", err)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(creds.Region),
		awsconfig.WithCredentialsProvider(staticCredentials{creds: creds}),
	)
	if err != nil {
		return nil, fmt.Errorf("llmprovider: loading aws config: %w", err)
	}

	client := anthropic.NewClient(bedrock.WithConfig(awsCfg))
	return &BedrockModel{client: &client, log: log.With(zap.String("provider", "bedrock"))}, nil
}

func (m *BedrockModel) Family(modelID string) Family { return ClassifyFamily(modelID) }

// Generate issues one Bedrock Messages.New call, applying extended thinking
// when req.Reasoning carries a budget and the provider-aware tool_choice
// resolved by ResolveToolChoice.
func (m *BedrockModel) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.ModelID),
		MaxTokens: int64(req.MaxTokens),
		Messages:  toAnthropicMessages(req.Messages),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	if len(req.Tools) > 0 {
		params.Tools = toAnthropicTools(req.Tools)
		switch req.ToolChoice.Mode {
		case ToolChoiceAny:
			params.ToolChoice = anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{}}
		case ToolChoiceNamed:
			params.ToolChoice = anthropic.ToolChoiceUnionParam{
				OfTool: &anthropic.ToolChoiceToolParam{Name: req.ToolChoice.ToolName},
			}
		case ToolChoiceOmit:
			// leave unset: model decides
		}
	}

	if req.Reasoning.ThinkingBudgetTokens > 0 {
		params.Thinking = anthropic.ThinkingConfigParamUnion{
			OfEnabled: &anthropic.ThinkingConfigEnabledParam{BudgetTokens: int64(req.Reasoning.ThinkingBudgetTokens)},
		}
		// Anthropic rejects an explicit temperature alongside thinking, so
		// Temperature is deliberately left unset above.
	}

	msg, err := m.client.Messages.New(ctx, params)
	if err != nil {
		return nil, apperr.Remap(apperr.FromAnthropic(err))
	}

	resp := &GenerateResponse{StopReason: string(msg.StopReason)}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			resp.Text += block.Text
		case "thinking":
			resp.ReasoningText += block.Thinking
		case "tool_use":
			args, _ := json.Marshal(block.Input)
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{ID: block.ID, Name: block.Name, Args: args})
		}
	}
	return resp, nil
}

func toAnthropicMessages(msgs []Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(m.Parts))
		for _, p := range m.Parts {
			switch p.Kind {
			case PartText:
				blocks = append(blocks, anthropic.NewTextBlock(p.Text))
			case PartImage:
				blocks = append(blocks, anthropic.NewImageBlockBase64(p.MediaType, encodeBase64(p.Data)))
			}
		}
		switch m.Role {
		case RoleUser, RoleTool:
			out = append(out, anthropic.NewUserMessage(blocks...))
		case RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		}
	}
	return out
}

func toAnthropicTools(tools []ToolSpec) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: toAnthropicInputSchema(t.Schema),
			},
		})
	}
	return out
}
