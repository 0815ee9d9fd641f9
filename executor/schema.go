package executor

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ValidateArgs compiles schemaDoc (a JSON Schema document) and validates
// args against it. Grounded on the teacher's registry service payload
// validation path.
func ValidateArgs(schemaDoc []byte, args map[string]any) error {
	compiler := jsonschema.NewCompiler()
	resource, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaDoc))
	if err != nil {
		return fmt.Errorf("parse schema: %w", err)
	}
	const resourceURL = "mem://tool-args-schema.json"
	if err := compiler.AddResource(resourceURL, resource); err != nil {
		return fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := compiler.Compile(resourceURL)
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	// Round-trip args through JSON so the validator sees the same shapes
	// (numbers, nested maps) it would see over the wire.
	buf, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("marshal args: %w", err)
	}
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("unmarshal args: %w", err)
	}

	if err := schema.Validate(instance); err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	return nil
}
