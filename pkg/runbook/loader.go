package runbook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// Loader parses and validates runbook documents. A single loader can be
// reused; the compiled JSON Schema and the struct validator are shared.
type Loader struct {
	schema   *jsonschema.Schema
	validate *validator.Validate
}

// NewLoader compiles the runbook document schema and creates a loader.
func NewLoader() (*Loader, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("runbook.schema.json", strings.NewReader(documentSchema)); err != nil {
		return nil, fmt.Errorf("failed to add runbook schema: %w", err)
	}
	schema, err := compiler.Compile("runbook.schema.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile runbook schema: %w", err)
	}
	return &Loader{
		schema:   schema,
		validate: validator.New(),
	}, nil
}

// LoadFile reads and parses a runbook from a YAML file.
func (l *Loader) LoadFile(path string) (*Runbook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read runbook %s: %w", path, err)
	}
	rb, err := l.Load(data)
	if err != nil {
		return nil, fmt.Errorf("runbook %s: %w", path, err)
	}
	return rb, nil
}

// Load parses a runbook from YAML bytes. The document is validated against
// the JSON Schema before decoding, then the typed model is validated and
// defaulted.
func (l *Loader) Load(data []byte) (*Runbook, error) {
	// Decode once to a generic tree for schema validation. YAML maps decode
	// to map[string]interface{} with yaml.v3, which the validator accepts
	// after a JSON round-trip normalises the numeric types.
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	normalised, err := normaliseForSchema(raw)
	if err != nil {
		return nil, err
	}
	if err := l.schema.Validate(normalised); err != nil {
		return nil, fmt.Errorf("runbook does not match schema: %w", err)
	}

	var rb Runbook
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&rb); err != nil {
		return nil, fmt.Errorf("failed to decode runbook: %w", err)
	}

	rb.Normalize()
	if err := l.validate.Struct(&rb); err != nil {
		return nil, fmt.Errorf("runbook validation failed: %w", err)
	}
	return &rb, nil
}

// normaliseForSchema round-trips the YAML tree through JSON so the schema
// validator sees json.Number-free plain types with string keys.
func normaliseForSchema(raw interface{}) (interface{}, error) {
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to normalise document: %w", err)
	}
	var out interface{}
	if err := json.Unmarshal(encoded, &out); err != nil {
		return nil, fmt.Errorf("failed to normalise document: %w", err)
	}
	return out, nil
}
