package llm

import "github.com/invopop/jsonschema"

// GenerateSchema reflects a Go type into a JSON Schema usable as a
// schema_hint for structured Worker calls, exactly as the teacher's
// common/llm.GenerateSchema[T]().
func GenerateSchema[T any]() any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}
