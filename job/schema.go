package job

import (
	"bytes"
	"encoding/json"
	"fmt"

	invopop "github.com/invopop/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

const schemaResource = "payload.schema.json"

// Schema is a compiled JSON Schema for job payloads.
type Schema struct {
	raw      json.RawMessage
	compiled *jsonschema.Schema
}

// CompileSchema compiles a JSON Schema document.
func CompileSchema(raw []byte) (*Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaResource, doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	compiled, err := c.Compile(schemaResource)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	return &Schema{raw: append(json.RawMessage(nil), raw...), compiled: compiled}, nil
}

// ReflectSchema derives a schema from the Go type of v. Struct fields
// without omitempty are required and unknown properties are rejected.
func ReflectSchema(v any) (*Schema, error) {
	r := invopop.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		Anonymous:                 true,
	}
	raw, err := json.Marshal(r.Reflect(v))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	return CompileSchema(raw)
}

// Validate checks a JSON payload. An empty payload validates as null.
func (s *Schema) Validate(payload json.RawMessage) error {
	if len(bytes.TrimSpace(payload)) == 0 {
		payload = json.RawMessage("null")
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := s.compiled.Validate(inst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

// MarshalJSON returns the schema document.
func (s *Schema) MarshalJSON() ([]byte, error) {
	return s.raw, nil
}
