package components_test

import (
	"reflect"
	"testing"

	"github.com/veriflow/veriflow/pkg/components"
	"github.com/veriflow/veriflow/pkg/engine"
)

type stubConnectorFactory struct {
	name      string
	canCreate func(engine.ComponentConfig) bool
}

func (f *stubConnectorFactory) ComponentName() string          { return f.name }
func (f *stubConnectorFactory) OutputSchemas() []engine.Schema { return nil }

func (f *stubConnectorFactory) CanCreate(config engine.ComponentConfig) bool {
	if f.canCreate != nil {
		return f.canCreate(config)
	}
	return true
}

func (f *stubConnectorFactory) Create(engine.ComponentConfig) (engine.Connector, error) {
	return nil, nil
}

func (f *stubConnectorFactory) ServiceDependencies() map[string]reflect.Type { return nil }

type stubProcessorFactory struct {
	name string
}

func (f *stubProcessorFactory) ComponentName() string                 { return f.name }
func (f *stubProcessorFactory) InputSchemas() []engine.Schema         { return nil }
func (f *stubProcessorFactory) OutputSchemas() []engine.Schema        { return nil }
func (f *stubProcessorFactory) CanCreate(engine.ComponentConfig) bool { return true }

func (f *stubProcessorFactory) Create(engine.ComponentConfig) (engine.Processor, error) {
	return nil, nil
}

func (f *stubProcessorFactory) ServiceDependencies() map[string]reflect.Type { return nil }

func TestRegisterAndLookup(t *testing.T) {
	r := components.NewRegistry()

	if err := r.RegisterConnector(&stubConnectorFactory{name: "filesystem"}); err != nil {
		t.Fatalf("RegisterConnector failed: %v", err)
	}
	if err := r.RegisterProcessor(&stubProcessorFactory{name: "pattern"}); err != nil {
		t.Fatalf("RegisterProcessor failed: %v", err)
	}

	if _, ok := r.ConnectorFactory("filesystem"); !ok {
		t.Error("connector lookup failed")
	}
	if _, ok := r.ProcessorFactory("pattern"); !ok {
		t.Error("processor lookup failed")
	}
	if _, ok := r.ConnectorFactory("pattern"); ok {
		t.Error("processor name resolved as a connector")
	}
	if _, ok := r.ProcessorFactory("filesystem"); ok {
		t.Error("connector name resolved as a processor")
	}
}

func TestDuplicateRegistrationRejected(t *testing.T) {
	r := components.NewRegistry()

	if err := r.RegisterConnector(&stubConnectorFactory{name: "static"}); err != nil {
		t.Fatalf("RegisterConnector failed: %v", err)
	}
	err := r.RegisterConnector(&stubConnectorFactory{name: "static"})
	if !engine.IsConfigurationError(err) {
		t.Errorf("expected a configuration error, got %v", err)
	}

	if err := r.RegisterProcessor(&stubProcessorFactory{name: "pattern"}); err != nil {
		t.Fatalf("RegisterProcessor failed: %v", err)
	}
	err = r.RegisterProcessor(&stubProcessorFactory{name: "pattern"})
	if !engine.IsConfigurationError(err) {
		t.Errorf("expected a configuration error, got %v", err)
	}
}

func TestNamesAreSorted(t *testing.T) {
	r := components.NewRegistry()
	for _, name := range []string{"sqlite", "filesystem", "static"} {
		if err := r.RegisterConnector(&stubConnectorFactory{name: name}); err != nil {
			t.Fatalf("RegisterConnector(%s) failed: %v", name, err)
		}
	}

	got := r.ConnectorNames()
	want := []string{"filesystem", "sqlite", "static"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ConnectorNames() = %v, want %v", got, want)
	}
}

func TestCandidateConnectors(t *testing.T) {
	r := components.NewRegistry()

	hasKey := func(key string) func(engine.ComponentConfig) bool {
		return func(config engine.ComponentConfig) bool {
			_, ok := config[key]
			return ok
		}
	}
	if err := r.RegisterConnector(&stubConnectorFactory{name: "static", canCreate: hasKey("content")}); err != nil {
		t.Fatal(err)
	}
	if err := r.RegisterConnector(&stubConnectorFactory{name: "filesystem", canCreate: hasKey("path")}); err != nil {
		t.Fatal(err)
	}
	if err := r.RegisterConnector(&stubConnectorFactory{name: "mirror", canCreate: hasKey("path")}); err != nil {
		t.Fatal(err)
	}

	got := r.CandidateConnectors(engine.ComponentConfig{"path": "/tmp"})
	want := []string{"filesystem", "mirror"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("CandidateConnectors = %v, want %v", got, want)
	}

	if got := r.CandidateConnectors(engine.ComponentConfig{"url": "x"}); len(got) != 0 {
		t.Errorf("expected no candidates, got %v", got)
	}
}
