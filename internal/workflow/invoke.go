package workflow

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/clcummin/threat-designer/internal/apperr"
	"github.com/clcummin/threat-designer/internal/llmprovider"
	"github.com/clcummin/threat-designer/internal/modelconfig"
	"github.com/clcummin/threat-designer/internal/schema"
	"github.com/clcummin/threat-designer/internal/store"
)

// checkCancellation implements spec.md §5's cancellation duality: the
// context-based token (covers an in-flight await) and the persisted status
// (covers an orphaned job whose token was lost). Re-checked at every
// suspension point per node.
func checkCancellation(ctx context.Context, deps Deps, jobID string) error {
	if err := ctx.Err(); err != nil {
		return apperr.Cancelled
	}
	if status, ok := deps.Store.GetStatus(jobID); ok && status.State == store.StateCancelled {
		return apperr.Cancelled
	}
	return nil
}

// invokeStage implements the generative-stage node contract of spec.md
// §4.1: resolve the stage's timeout, bind a single structured-output tool
// named toolName, invoke the model, re-check cancellation, extract and
// validate the first tool call's arguments into T.
func invokeStage[T any](ctx context.Context, deps Deps, jobID string, stage modelconfig.Stage, toolName, toolDescription, system string, human llmprovider.Message, reasoning modelconfig.ReasoningLevel) (*T, string, error) {
	if err := checkCancellation(ctx, deps, jobID); err != nil {
		return nil, "", err
	}

	timeout, err := deps.Factory.Timeout(stage)
	if err != nil {
		return nil, "", apperr.Wrap(apperr.KindInternal, fmt.Sprintf("resolve timeout for stage %q", stage), err)
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := deps.Factory.Generate(callCtx, llmprovider.StageRequest{
		Stage:    stage,
		System:   system,
		Messages: []llmprovider.Message{human},
		Tools: []llmprovider.ToolSpec{{
			Name:        toolName,
			Description: toolDescription,
			Schema:      schema.JSONSchemaFor[T](),
		}},
		ToolName:  toolName,
		BindTool:  true,
		Reasoning: reasoning,
	})
	if err != nil {
		return nil, "", err
	}

	if err := checkCancellation(ctx, deps, jobID); err != nil {
		return nil, "", err
	}

	if len(resp.ToolCalls) == 0 {
		return nil, "", apperr.New(apperr.KindModelError, fmt.Sprintf("stage %q returned no structured tool call", stage)).WithJobID(jobID)
	}

	var out T
	if err := json.Unmarshal(resp.ToolCalls[0].Args, &out); err != nil {
		return nil, "", apperr.Wrap(apperr.KindModelError, fmt.Sprintf("stage %q returned unparseable structured output", stage), err).WithJobID(jobID)
	}
	if err := schema.Validate(out); err != nil {
		return nil, "", apperr.Wrap(apperr.KindModelError, fmt.Sprintf("stage %q structured output failed validation", stage), err).WithJobID(jobID)
	}

	return &out, resp.ReasoningText, nil
}
