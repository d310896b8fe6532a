package engine

import (
	"context"
	"reflect"
)

// ComponentConfig carries the declarative properties of a connector or
// processor from the runbook. Factories validate and convert it into their
// typed option structs.
type ComponentConfig map[string]interface{}

// Connector produces a leaf message from an external source.
type Connector interface {
	// Name returns the component name.
	Name() string

	// SupportedOutputSchemas returns the schemas this connector can emit.
	SupportedOutputSchemas() []Schema

	// Extract produces a message conforming to the requested output schema.
	// It fails with a connector_config or connector_extraction error and no
	// other kind.
	Extract(ctx context.Context, output Schema) (Message, error)
}

// InputRequirement names one input schema a processor accepts.
type InputRequirement struct {
	// SchemaName is the required schema name.
	SchemaName string `json:"schema_name"`

	// Version is the required "major.minor.patch" version.
	Version string `json:"version"`
}

// Processor derives a message from one or more input messages.
type Processor interface {
	// Name returns the component name.
	Name() string

	// InputRequirements returns a disjunction of conjunctions: each inner
	// slice is one acceptable combination of input schemas.
	InputRequirements() [][]InputRequirement

	// SupportedOutputSchemas returns the schemas this processor can emit.
	SupportedOutputSchemas() []Schema

	// Process derives a message from the inputs. It fails with a processing
	// error.
	Process(ctx context.Context, inputs []Message, output Schema) (Message, error)
}

// ConnectorFactory builds connector instances from declarative config.
type ConnectorFactory interface {
	// ComponentName returns the registry name of the connector.
	ComponentName() string

	// OutputSchemas returns the schemas instances of this connector can emit.
	OutputSchemas() []Schema

	// CanCreate reports whether the config is acceptable. It never errors;
	// it is used for discovery and fallback.
	CanCreate(config ComponentConfig) bool

	// Create builds a connector, validating the config strictly.
	Create(config ComponentConfig) (Connector, error)

	// ServiceDependencies documents the services the factory consumes,
	// keyed by a human-readable name. Reserved for future auto-wiring.
	ServiceDependencies() map[string]reflect.Type
}

// ProcessorFactory builds processor instances from declarative config.
type ProcessorFactory interface {
	// ComponentName returns the registry name of the processor.
	ComponentName() string

	// InputSchemas returns the flattened set of schemas instances accept.
	InputSchemas() []Schema

	// OutputSchemas returns the schemas instances of this processor can emit.
	OutputSchemas() []Schema

	// CanCreate reports whether the config is acceptable. It never errors.
	CanCreate(config ComponentConfig) bool

	// Create builds a processor, validating the config strictly.
	Create(config ComponentConfig) (Processor, error)

	// ServiceDependencies documents the services the factory consumes.
	ServiceDependencies() map[string]reflect.Type
}

// ComponentRegistry resolves component type names to factories. It is
// constructed at startup and read-only during planning and execution.
type ComponentRegistry interface {
	// ConnectorFactory returns the factory registered under name.
	ConnectorFactory(name string) (ConnectorFactory, bool)

	// ProcessorFactory returns the factory registered under name.
	ProcessorFactory(name string) (ProcessorFactory, bool)
}

// ArtifactStore is the write-once, per-run key/value store of produced
// messages. Implementations must serialise concurrent writes to different
// keys; concurrent writes to the same key do not occur by construction.
type ArtifactStore interface {
	// Save persists a message under (runID, artifactID). It fails if the key
	// was already written within the run.
	Save(ctx context.Context, runID, artifactID string, msg Message) error

	// Get retrieves the message stored under (runID, artifactID).
	Get(ctx context.Context, runID, artifactID string) (Message, error)

	// List returns the artifact IDs stored for a run, in insertion order.
	List(ctx context.Context, runID string) ([]string, error)
}
