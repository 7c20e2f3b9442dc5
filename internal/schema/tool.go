package schema

import "github.com/invopop/jsonschema"

// reflector is shared across calls; invopop/jsonschema reflectors are safe
// for concurrent read-only use once configured.
var reflector = &jsonschema.Reflector{
	DoNotReference:            true,
	ExpandedStruct:            true,
	AllowAdditionalProperties: false,
}

// JSONSchemaFor reflects the jsonschema tags on T into a JSON Schema
// document, used to bind a Go type as a model tool's argument schema. This
// is the "schema tool" abstraction named in the design notes: every
// provider-agnostic structured-output contract in this repo is "bind one
// tool schema, extract first tool-call arguments", and this function
// produces the schema half of that contract from a plain Go type.
func JSONSchemaFor[T any]() *jsonschema.Schema {
	var zero T
	return reflector.Reflect(zero)
}
