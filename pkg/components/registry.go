// Package components holds the registry that maps component type names to
// connector and processor factories. The registry is populated at startup
// and read-only during planning and execution.
package components

import (
	"fmt"
	"sort"

	"github.com/veriflow/veriflow/pkg/engine"
)

// Registry implements engine.ComponentRegistry.
type Registry struct {
	connectors map[string]engine.ConnectorFactory
	processors map[string]engine.ProcessorFactory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		connectors: make(map[string]engine.ConnectorFactory),
		processors: make(map[string]engine.ProcessorFactory),
	}
}

// RegisterConnector adds a connector factory under its component name.
func (r *Registry) RegisterConnector(factory engine.ConnectorFactory) error {
	name := factory.ComponentName()
	if _, exists := r.connectors[name]; exists {
		return engine.NewConfigurationError(
			fmt.Sprintf("connector %q is already registered", name), nil)
	}
	r.connectors[name] = factory
	return nil
}

// RegisterProcessor adds a processor factory under its component name.
func (r *Registry) RegisterProcessor(factory engine.ProcessorFactory) error {
	name := factory.ComponentName()
	if _, exists := r.processors[name]; exists {
		return engine.NewConfigurationError(
			fmt.Sprintf("processor %q is already registered", name), nil)
	}
	r.processors[name] = factory
	return nil
}

// ConnectorFactory returns the factory registered under name.
func (r *Registry) ConnectorFactory(name string) (engine.ConnectorFactory, bool) {
	f, ok := r.connectors[name]
	return f, ok
}

// ProcessorFactory returns the factory registered under name.
func (r *Registry) ProcessorFactory(name string) (engine.ProcessorFactory, bool) {
	f, ok := r.processors[name]
	return f, ok
}

// ConnectorNames returns the registered connector names in sorted order.
func (r *Registry) ConnectorNames() []string {
	return sortedNames(r.connectors)
}

// ProcessorNames returns the registered processor names in sorted order.
func (r *Registry) ProcessorNames() []string {
	return sortedNames(r.processors)
}

// CandidateConnectors returns the names of connectors whose CanCreate accepts
// the config, in sorted order. Used for discovery; CanCreate never errors.
func (r *Registry) CandidateConnectors(config engine.ComponentConfig) []string {
	var out []string
	for name, f := range r.connectors {
		if f.CanCreate(config) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
