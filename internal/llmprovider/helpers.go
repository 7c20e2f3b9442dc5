package llmprovider

import (
	"context"
	"encoding/base64"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/invopop/jsonschema"

	"github.com/clcummin/threat-designer/internal/modelconfig"
)

func encodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// staticCredentials adapts an already-resolved, session-scoped credential
// set (see internal/store's credential TTL slot) into an aws.CredentialsProvider
// without ever touching the ambient environment or shared config files.
type staticCredentials struct {
	creds modelconfig.BedrockCredentials
}

func (s staticCredentials) Retrieve(ctx context.Context) (aws.Credentials, error) {
	return aws.Credentials{
		AccessKeyID:     s.creds.AccessKey,
		SecretAccessKey: s.creds.SecretKey,
		SessionToken:    s.creds.SessionToken,
	}, nil
}

// schemaToMap flattens a reflected jsonschema.Schema (as produced by
// internal/schema.JSONSchemaFor) into the plain {type, properties,
// required} map shape both provider tool-parameter fields expect.
func schemaToMap(schema any) map[string]any {
	s, ok := schema.(*jsonschema.Schema)
	if !ok || s == nil {
		return map[string]any{"type": "object"}
	}

	props := make(map[string]any, s.Properties.Len())
	for pair := s.Properties.Oldest(); pair != nil; pair = pair.Next() {
		props[pair.Key] = pair.Value
	}

	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   s.Required,
	}
}

// toAnthropicInputSchema converts a reflected jsonschema.Schema into the
// Anthropic tool input_schema field shape.
func toAnthropicInputSchema(schema any) anthropic.ToolInputSchemaParam {
	m := schemaToMap(schema)
	return anthropic.ToolInputSchemaParam{
		Type:       "object",
		Properties: m["properties"],
		Required:   toStringSlice(m["required"]),
	}
}

func toStringSlice(v any) []string {
	ss, _ := v.([]string)
	return ss
}
