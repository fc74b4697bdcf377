package agent

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// reflector carries the defaults we need for response schemas: inline
// definitions, required-by-default, no $ref indirection the models would
// have to chase.
var reflector = jsonschema.Reflector{
	RequiredFromJSONSchemaTags: true,
	ExpandedStruct:             true,
	AllowAdditionalProperties:  true,
	DoNotReference:             true,
}

// Reflect returns the JSON schema descriptor for the provided value.
func Reflect(v any) *jsonschema.Schema {
	return reflector.Reflect(v)
}

// ReflectType allocates a zero value of T and reflects it to a schema.
func ReflectType[T any]() *jsonschema.Schema {
	var zero T
	return Reflect(&zero)
}

// SchemaJSON renders a schema as compact JSON for embedding in a prompt.
func SchemaJSON(s *jsonschema.Schema) string {
	if s == nil {
		return ""
	}
	data, err := json.Marshal(s)
	if err != nil {
		return ""
	}
	return string(data)
}
