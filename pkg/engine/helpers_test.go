package engine_test

import (
	"context"
	"fmt"
	"reflect"

	"github.com/veriflow/veriflow/pkg/engine"
	"github.com/veriflow/veriflow/pkg/runbook"
)

// fakeConnector emits a canned message or fails.
type fakeConnector struct {
	name    string
	outputs []engine.Schema
	extract func(ctx context.Context, output engine.Schema) (engine.Message, error)
}

func (c *fakeConnector) Name() string                            { return c.name }
func (c *fakeConnector) SupportedOutputSchemas() []engine.Schema { return c.outputs }

func (c *fakeConnector) Extract(ctx context.Context, output engine.Schema) (engine.Message, error) {
	if c.extract != nil {
		return c.extract(ctx, output)
	}
	return engine.Message{
		ID:      "msg-" + c.name,
		Schema:  output,
		Content: map[string]interface{}{"from": c.name},
	}, nil
}

// fakeConnectorFactory builds fakeConnectors.
type fakeConnectorFactory struct {
	name      string
	outputs   []engine.Schema
	extract   func(ctx context.Context, output engine.Schema) (engine.Message, error)
	createErr error
}

func (f *fakeConnectorFactory) ComponentName() string                 { return f.name }
func (f *fakeConnectorFactory) OutputSchemas() []engine.Schema        { return f.outputs }
func (f *fakeConnectorFactory) CanCreate(engine.ComponentConfig) bool { return true }

func (f *fakeConnectorFactory) Create(engine.ComponentConfig) (engine.Connector, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &fakeConnector{name: f.name, outputs: f.outputs, extract: f.extract}, nil
}

func (f *fakeConnectorFactory) ServiceDependencies() map[string]reflect.Type { return nil }

// fakeProcessor derives a canned message or fails.
type fakeProcessor struct {
	name    string
	inputs  []engine.Schema
	outputs []engine.Schema
	process func(ctx context.Context, inputs []engine.Message, output engine.Schema) (engine.Message, error)
}

func (p *fakeProcessor) Name() string { return p.name }

func (p *fakeProcessor) InputRequirements() [][]engine.InputRequirement {
	var combos [][]engine.InputRequirement
	for _, s := range p.inputs {
		combos = append(combos, []engine.InputRequirement{{SchemaName: s.Name, Version: s.Version()}})
	}
	return combos
}

func (p *fakeProcessor) SupportedOutputSchemas() []engine.Schema { return p.outputs }

func (p *fakeProcessor) Process(ctx context.Context, inputs []engine.Message, output engine.Schema) (engine.Message, error) {
	if p.process != nil {
		return p.process(ctx, inputs, output)
	}
	return engine.Message{
		ID:      "msg-" + p.name,
		Schema:  output,
		Content: map[string]interface{}{"inputs": len(inputs)},
	}, nil
}

// fakeProcessorFactory builds fakeProcessors.
type fakeProcessorFactory struct {
	name      string
	inputs    []engine.Schema
	outputs   []engine.Schema
	process   func(ctx context.Context, inputs []engine.Message, output engine.Schema) (engine.Message, error)
	createErr error
}

func (f *fakeProcessorFactory) ComponentName() string                 { return f.name }
func (f *fakeProcessorFactory) InputSchemas() []engine.Schema         { return f.inputs }
func (f *fakeProcessorFactory) OutputSchemas() []engine.Schema        { return f.outputs }
func (f *fakeProcessorFactory) CanCreate(engine.ComponentConfig) bool { return true }

func (f *fakeProcessorFactory) Create(engine.ComponentConfig) (engine.Processor, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &fakeProcessor{name: f.name, inputs: f.inputs, outputs: f.outputs, process: f.process}, nil
}

func (f *fakeProcessorFactory) ServiceDependencies() map[string]reflect.Type { return nil }

// fakeRegistry resolves fakes by name.
type fakeRegistry struct {
	connectors map[string]engine.ConnectorFactory
	processors map[string]engine.ProcessorFactory
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		connectors: map[string]engine.ConnectorFactory{},
		processors: map[string]engine.ProcessorFactory{},
	}
}

func (r *fakeRegistry) addConnector(f *fakeConnectorFactory) *fakeRegistry {
	r.connectors[f.name] = f
	return r
}

func (r *fakeRegistry) addProcessor(f *fakeProcessorFactory) *fakeRegistry {
	r.processors[f.name] = f
	return r
}

func (r *fakeRegistry) ConnectorFactory(name string) (engine.ConnectorFactory, bool) {
	f, ok := r.connectors[name]
	return f, ok
}

func (r *fakeRegistry) ProcessorFactory(name string) (engine.ProcessorFactory, bool) {
	f, ok := r.processors[name]
	return f, ok
}

// schema is a shorthand constructor.
func schema(name string, major, minor, patch int) engine.Schema {
	return engine.NewSchema(name, major, minor, patch)
}

// leaf builds a leaf artifact definition.
func leaf(connectorType string) runbook.ArtifactDefinition {
	return runbook.ArtifactDefinition{
		Source: &runbook.ComponentSpec{Type: connectorType},
	}
}

// derived builds a processed artifact definition.
func derived(processorType string, inputs ...string) runbook.ArtifactDefinition {
	return runbook.ArtifactDefinition{
		Inputs:  runbook.StringList(inputs),
		Process: &runbook.ComponentSpec{Type: processorType},
	}
}

// passthrough builds a process-less derived artifact.
func passthrough(inputs ...string) runbook.ArtifactDefinition {
	return runbook.ArtifactDefinition{Inputs: runbook.StringList(inputs)}
}

// testRunbook wraps artifacts in a normalized runbook.
func testRunbook(artifacts map[string]runbook.ArtifactDefinition) *runbook.Runbook {
	rb := &runbook.Runbook{
		Name:      "test",
		Artifacts: artifacts,
	}
	rb.Normalize()
	return rb
}

// failErr is a reusable extraction failure.
var failErr = fmt.Errorf("backend unavailable")
