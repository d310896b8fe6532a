package connectors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/veriflow/veriflow/pkg/engine"
)

// Content shapes shared by the built-in connectors.
const (
	// SchemaSourceFiles is the file-content schema name.
	SchemaSourceFiles = "source.files"

	// SchemaDBTables is the database-content schema name.
	SchemaDBTables = "db.tables"
)

// sourceEntry builds one entry of the "sources" content list. Entries use
// plain maps so messages survive a JSON round trip through the artifact
// store unchanged.
func sourceEntry(id, content string, metadata map[string]interface{}) map[string]interface{} {
	entry := map[string]interface{}{
		"id":      id,
		"content": content,
	}
	if len(metadata) > 0 {
		entry["metadata"] = metadata
	}
	return entry
}

// sourcesContent wraps entries into the message content shape.
func sourcesContent(entries []interface{}) map[string]interface{} {
	return map[string]interface{}{"sources": entries}
}

// decodeOptions converts declarative properties into a typed options struct
// via a JSON round trip, then validates it.
func decodeOptions(config engine.ComponentConfig, out interface{}) error {
	raw, err := json.Marshal(config)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	return validator.New().Struct(out)
}

// StaticOptions configures the static connector.
type StaticOptions struct {
	// Content maps source IDs to inline content.
	Content map[string]string `json:"content" validate:"required,min=1"`
}

// StaticConnector emits inline content verbatim. It is primarily used in
// tests and fixture runbooks where no external system is wanted.
type StaticConnector struct {
	opts StaticOptions
}

// NewStaticConnector creates a static connector from validated options.
func NewStaticConnector(opts StaticOptions) *StaticConnector {
	return &StaticConnector{opts: opts}
}

// Name implements engine.Connector.
func (c *StaticConnector) Name() string { return "static" }

// SupportedOutputSchemas implements engine.Connector.
func (c *StaticConnector) SupportedOutputSchemas() []engine.Schema {
	return []engine.Schema{
		engine.NewSchema(SchemaSourceFiles, 1, 0, 0),
		engine.NewSchema(SchemaDBTables, 1, 0, 0),
	}
}

// Extract implements engine.Connector. Source IDs are emitted in sorted
// order so output is deterministic.
func (c *StaticConnector) Extract(_ context.Context, output engine.Schema) (engine.Message, error) {
	if !schemaSupported(c.SupportedOutputSchemas(), output) {
		return engine.Message{}, engine.NewConnectorConfigError(
			fmt.Sprintf("static connector cannot emit schema %s", output), nil).
			WithComponent(c.Name())
	}

	ids := make([]string, 0, len(c.opts.Content))
	for id := range c.opts.Content {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	entries := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		entries = append(entries, sourceEntry(id, c.opts.Content[id], nil))
	}

	return engine.Message{
		ID:      uuid.NewString(),
		Schema:  output,
		Content: sourcesContent(entries),
		Source:  "static",
	}, nil
}

// StaticFactory builds static connectors.
type StaticFactory struct{}

// ComponentName implements engine.ConnectorFactory.
func (StaticFactory) ComponentName() string { return "static" }

// OutputSchemas implements engine.ConnectorFactory.
func (StaticFactory) OutputSchemas() []engine.Schema {
	return (&StaticConnector{}).SupportedOutputSchemas()
}

// CanCreate implements engine.ConnectorFactory.
func (StaticFactory) CanCreate(config engine.ComponentConfig) bool {
	content, ok := config["content"].(map[string]interface{})
	return ok && len(content) > 0
}

// Create implements engine.ConnectorFactory.
func (StaticFactory) Create(config engine.ComponentConfig) (engine.Connector, error) {
	var opts StaticOptions
	if err := decodeOptions(config, &opts); err != nil {
		return nil, engine.NewConnectorConfigError("invalid static connector config", err).
			WithComponent("static")
	}
	return NewStaticConnector(opts), nil
}

// ServiceDependencies implements engine.ConnectorFactory.
func (StaticFactory) ServiceDependencies() map[string]reflect.Type { return nil }

// schemaSupported reports whether want appears in the supported set.
func schemaSupported(supported []engine.Schema, want engine.Schema) bool {
	for _, s := range supported {
		if s == want {
			return true
		}
	}
	return false
}
