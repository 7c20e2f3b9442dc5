// Package llmprovider is the concrete Credentials & Model Factory (C3):
// it turns a modelconfig.RuntimeConfig plus provider credentials into
// per-stage Model instances that the workflow (C5) and agent (C6) packages
// invoke without ever branching on provider identity themselves.
//
// Tool and structured-output schemas come from internal/schema's
// invopop/jsonschema reflection, not genkit's ai.DefineTool: the teacher's
// genkit.Init bootstrap (cmd/main.go) hid its tool-dispatch loop behind
// GenerateData, which can't express spec.md §4.1 step 5's binding rules
// (force tool by name vs "any" vs omit, depending on model family and
// reasoning level). This package talks to the provider SDKs directly so
// those rules stay under its control.
package llmprovider

import (
	"context"
)

// Role is a chat message role.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// PartKind distinguishes the kinds of content a Part may carry.
type PartKind string

const (
	PartText  PartKind = "text"
	PartImage PartKind = "image"
)

// Part is one piece of a multimodal message, per spec.md §4.6's canonical
// message ordering (text sections plus one base64 diagram image).
type Part struct {
	Kind      PartKind
	Text      string
	MediaType string // e.g. "image/png", set when Kind == PartImage
	Data      []byte // raw bytes, set when Kind == PartImage
}

// TextPart constructs a text Part.
func TextPart(text string) Part { return Part{Kind: PartText, Text: text} }

// ImagePart constructs an image Part.
func ImagePart(mediaType string, data []byte) Part {
	return Part{Kind: PartImage, MediaType: mediaType, Data: data}
}

// Message is one turn in the conversation sent to the model.
type Message struct {
	Role  Role
	Parts []Part
	// ToolCallID is set on RoleTool messages to correlate with the
	// assistant ToolCall that prompted them.
	ToolCallID string
}

// ToolSpec describes one callable tool bound to a generation request: its
// name, description, and JSON Schema for arguments (produced by
// schema.JSONSchemaFor).
type ToolSpec struct {
	Name        string
	Description string
	Schema      any // *jsonschema.Schema, kept as `any` to avoid a hard dependency cycle
}

// ToolChoiceMode implements the provider-aware binding rules of spec.md
// §4.1 step 5.
type ToolChoiceMode int

const (
	// ToolChoiceOmit lets the model decide whether to call a tool at all
	// (used for small models that reject tool_choice, and for
	// thinking-mode requests on the deep-reasoning flagship family).
	ToolChoiceOmit ToolChoiceMode = iota
	// ToolChoiceAny forces some tool call, without naming which.
	ToolChoiceAny
	// ToolChoiceNamed forces a specific named tool.
	ToolChoiceNamed
)

// ToolChoice is the resolved binding decision for one generation request.
type ToolChoice struct {
	Mode      ToolChoiceMode
	ToolName  string // set when Mode == ToolChoiceNamed
}

// ReasoningConfig carries the resolved, provider-native reasoning setting
// for one request: a Bedrock thinking budget or an OpenAI effort string,
// never both.
type ReasoningConfig struct {
	ThinkingBudgetTokens int    // > 0 enables Bedrock/Anthropic extended thinking
	Effort               string // non-empty enables OpenAI reasoning.effort
}

func (r ReasoningConfig) enabled() bool {
	return r.ThinkingBudgetTokens > 0 || r.Effort != ""
}

// GenerateRequest is the provider-agnostic request shared by both Model
// implementations.
type GenerateRequest struct {
	ModelID    string
	MaxTokens  int
	System     string
	Messages   []Message
	Tools      []ToolSpec
	ToolChoice ToolChoice
	Reasoning  ReasoningConfig
}

// ToolCall is one tool invocation the model asked for.
type ToolCall struct {
	ID   string
	Name string
	Args []byte // raw JSON arguments
}

// GenerateResponse is the provider-agnostic response shared by both Model
// implementations.
type GenerateResponse struct {
	Text        string
	ToolCalls   []ToolCall
	// ReasoningText is the extracted chain-of-thought text, per spec.md
	// §4.1's provider-agnostic reasoning extraction rule. Empty when
	// reasoning was not requested or the provider returned none.
	ReasoningText string
	StopReason    string
}

// Model is the provider-agnostic generation surface consumed by the
// workflow (C5) and agent (C6) packages.
type Model interface {
	// Generate performs one structured-output or tool-using call.
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
	// Family identifies the model's binding-rule family (see bindingrules.go).
	Family(modelID string) Family
}
