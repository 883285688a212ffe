package streamhost

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// SchemaValidator validates tool parameters against the JSON Schemas the
// backend declared in its catalog. Compilation happens lazily per tool and is
// cached; a tool without a schema (or with an empty one) always passes.
//
// Safe for concurrent use.
type SchemaValidator struct {
	mu       sync.Mutex
	schemas  map[string]map[string]any
	compiled map[string]*jsonschema.Schema
}

// NewSchemaValidator builds a validator over a tool catalog.
func NewSchemaValidator(tools []ToolInfo) *SchemaValidator {
	schemas := make(map[string]map[string]any, len(tools))
	for _, t := range tools {
		if len(t.InputSchema) > 0 {
			schemas[t.Name] = t.InputSchema
		}
	}
	return &SchemaValidator{
		schemas:  schemas,
		compiled: make(map[string]*jsonschema.Schema),
	}
}

// Validate checks params against the declared schema for the named tool.
// Unknown tools and tools without a schema pass; the backend is the authority
// on existence.
func (v *SchemaValidator) Validate(name string, params json.RawMessage) error {
	sch, err := v.schemaFor(name)
	if err != nil {
		return err
	}
	if sch == nil {
		return nil
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(params))
	if err != nil {
		return fmt.Errorf("tool %q: params are not valid JSON: %w", name, err)
	}
	if err := sch.Validate(inst); err != nil {
		return fmt.Errorf("tool %q: %w", name, err)
	}
	return nil
}

func (v *SchemaValidator) schemaFor(name string) (*jsonschema.Schema, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if sch, ok := v.compiled[name]; ok {
		return sch, nil
	}
	raw, ok := v.schemas[name]
	if !ok {
		return nil, nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("tool %q: schema not serializable: %w", name, err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("tool %q: invalid schema: %w", name, err)
	}
	compiler := jsonschema.NewCompiler()
	url := name + ".schema.json"
	if err := compiler.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("tool %q: %w", name, err)
	}
	sch, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("tool %q: schema does not compile: %w", name, err)
	}
	v.compiled[name] = sch
	return sch, nil
}
