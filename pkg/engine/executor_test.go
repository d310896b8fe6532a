package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/veriflow/veriflow/pkg/container"
	"github.com/veriflow/veriflow/pkg/engine"
	"github.com/veriflow/veriflow/pkg/runbook"
	"github.com/veriflow/veriflow/pkg/stores"
)

// newTestContainer registers a transient in-memory artifact store.
func newTestContainer() *container.Container {
	c := container.New()
	container.Register[engine.ArtifactStore](c, func(*container.Container) (engine.ArtifactStore, error) {
		return stores.NewMemoryStore(), nil
	}, container.Transient)
	return c
}

func mustPlan(t *testing.T, registry engine.ComponentRegistry, rb *runbook.Runbook) *engine.ExecutionPlan {
	t.Helper()
	plan, err := engine.NewPlanner(registry).BuildPlan(context.Background(), rb)
	if err != nil {
		t.Fatalf("BuildPlan failed: %v", err)
	}
	return plan
}

func TestExecuteLinearPipeline(t *testing.T) {
	registry := defaultRegistry()
	rb := testRunbook(map[string]runbook.ArtifactDefinition{
		"raw":      leaf("files"),
		"findings": derived("analyse", "raw"),
	})
	executor := engine.NewExecutor(registry, newTestContainer())

	result, err := executor.Execute(context.Background(), mustPlan(t, registry, rb))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if result.RunID == "" {
		t.Error("expected a run ID")
	}
	if len(result.Artifacts) != 2 || len(result.Skipped) != 0 {
		t.Fatalf("expected 2 produced and 0 skipped, got %d/%d", len(result.Artifacts), len(result.Skipped))
	}
	for id, msg := range result.Artifacts {
		if msg.Execution == nil || msg.Execution.Status != engine.ExecutionStatusSuccess {
			t.Errorf("artifact %s not annotated successful: %#v", id, msg.Execution)
		}
	}
	if result.Order[0] != "raw" || result.Order[1] != "findings" {
		t.Errorf("unexpected completion order: %v", result.Order)
	}

	s := result.Summarize()
	if s.Succeeded != 2 || s.Failed != 0 || s.Skipped != 0 {
		t.Errorf("unexpected summary: %+v", s)
	}
}

func TestExecuteFailureCascade(t *testing.T) {
	// broken -> mid -> sink cascades; independent keeps running.
	registry := defaultRegistry().
		addConnector(&fakeConnectorFactory{
			name:    "broken",
			outputs: []engine.Schema{schema("data", 1, 0, 0)},
			extract: func(context.Context, engine.Schema) (engine.Message, error) {
				return engine.Message{}, engine.NewConnectorExtractionError("boom", failErr)
			},
		})
	rb := testRunbook(map[string]runbook.ArtifactDefinition{
		"broken":      leaf("broken"),
		"mid":         derived("analyse", "broken"),
		"sink":        passthrough("mid"),
		"independent": leaf("files"),
	})
	executor := engine.NewExecutor(registry, newTestContainer())

	result, err := executor.Execute(context.Background(), mustPlan(t, registry, rb))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	brokenMsg := result.Artifacts["broken"]
	if brokenMsg.Execution == nil || brokenMsg.Execution.Status != engine.ExecutionStatusError {
		t.Fatalf("expected an error message for broken, got %#v", brokenMsg.Execution)
	}
	if brokenMsg.Execution.Error == "" {
		t.Error("expected the captured error string on the annotation")
	}
	if len(brokenMsg.Content) != 0 {
		t.Errorf("error message content must be empty, got %#v", brokenMsg.Content)
	}

	if !result.Skipped["mid"] || !result.Skipped["sink"] {
		t.Errorf("expected mid and sink skipped, got %v", result.Skipped)
	}
	if indep := result.Artifacts["independent"]; indep.Execution == nil || indep.Execution.Status != engine.ExecutionStatusSuccess {
		t.Errorf("independent branch should still succeed: %#v", indep.Execution)
	}

	if failed := result.FailedArtifacts(rb); len(failed) != 1 || failed[0] != "broken" {
		t.Errorf("unexpected failed set: %v", failed)
	}
}

func TestExecuteOptionalFailureStillCascades(t *testing.T) {
	registry := defaultRegistry().
		addConnector(&fakeConnectorFactory{
			name:    "broken",
			outputs: []engine.Schema{schema("data", 1, 0, 0)},
			extract: func(context.Context, engine.Schema) (engine.Message, error) {
				return engine.Message{}, engine.NewConnectorExtractionError("boom", failErr)
			},
		})
	optLeaf := leaf("broken")
	optLeaf.Optional = true
	rb := testRunbook(map[string]runbook.ArtifactDefinition{
		"maybe": optLeaf,
		"sink":  passthrough("maybe"),
	})
	executor := engine.NewExecutor(registry, newTestContainer())

	result, err := executor.Execute(context.Background(), mustPlan(t, registry, rb))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if !result.Skipped["sink"] {
		t.Error("optional failure must still cascade to dependents")
	}
	// Optional failures do not count as run failures.
	if failed := result.FailedArtifacts(rb); len(failed) != 0 {
		t.Errorf("optional failure leaked into the failed set: %v", failed)
	}
}

func TestExecutePassthrough(t *testing.T) {
	registry := defaultRegistry()
	rb := testRunbook(map[string]runbook.ArtifactDefinition{
		"raw":  leaf("files"),
		"copy": passthrough("raw"),
	})
	executor := engine.NewExecutor(registry, newTestContainer())

	result, err := executor.Execute(context.Background(), mustPlan(t, registry, rb))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	raw, copied := result.Artifacts["raw"], result.Artifacts["copy"]
	if copied.ID != raw.ID {
		t.Errorf("passthrough must forward the message verbatim: %s != %s", copied.ID, raw.ID)
	}
	if copied.Content["from"] != "files" {
		t.Errorf("unexpected passthrough content: %#v", copied.Content)
	}
}

func TestExecuteFanInPassthroughFails(t *testing.T) {
	registry := defaultRegistry()
	rb := testRunbook(map[string]runbook.ArtifactDefinition{
		"a":     leaf("files"),
		"b":     leaf("files"),
		"merge": passthrough("a", "b"),
	})
	executor := engine.NewExecutor(registry, newTestContainer())

	result, err := executor.Execute(context.Background(), mustPlan(t, registry, rb))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	msg := result.Artifacts["merge"]
	if msg.Execution == nil || msg.Execution.Status != engine.ExecutionStatusError {
		t.Fatalf("fan-in passthrough must fail, got %#v", msg.Execution)
	}
}

func TestExecuteRunDeadline(t *testing.T) {
	registry := defaultRegistry().
		addConnector(&fakeConnectorFactory{
			name:    "stuck",
			outputs: []engine.Schema{schema("data", 1, 0, 0)},
			extract: func(ctx context.Context, _ engine.Schema) (engine.Message, error) {
				<-ctx.Done()
				// Linger so the coordinator observes the deadline before this
				// worker's completion lands.
				time.Sleep(200 * time.Millisecond)
				return engine.Message{}, ctx.Err()
			},
		})
	rb := testRunbook(map[string]runbook.ArtifactDefinition{
		"slow": leaf("stuck"),
		"sink": passthrough("slow"),
	})
	rb.Config.TimeoutSeconds = 1
	executor := engine.NewExecutor(registry, newTestContainer())

	started := time.Now()
	result, err := executor.Execute(context.Background(), mustPlan(t, registry, rb))
	if err != nil {
		t.Fatalf("deadline must not surface as an error, got %v", err)
	}
	if time.Since(started) > 5*time.Second {
		t.Fatal("executor did not honour the run deadline")
	}

	if !result.Skipped["slow"] || !result.Skipped["sink"] {
		t.Errorf("expected both artifacts skipped on deadline, got %v", result.Skipped)
	}
	if len(result.Artifacts) != 0 {
		t.Errorf("no artifact should be recorded as produced, got %v", result.Artifacts)
	}
}

func TestExecutePanicIsProcessingError(t *testing.T) {
	registry := defaultRegistry().
		addProcessor(&fakeProcessorFactory{
			name:    "explode",
			inputs:  []engine.Schema{schema("data", 1, 0, 0), schema("data", 1, 1, 0)},
			outputs: []engine.Schema{schema("findings", 1, 0, 0)},
			process: func(context.Context, []engine.Message, engine.Schema) (engine.Message, error) {
				panic("unexpected state")
			},
		})
	rb := testRunbook(map[string]runbook.ArtifactDefinition{
		"raw":  leaf("files"),
		"boom": derived("explode", "raw"),
	})
	executor := engine.NewExecutor(registry, newTestContainer())

	result, err := executor.Execute(context.Background(), mustPlan(t, registry, rb))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	msg := result.Artifacts["boom"]
	if msg.Execution == nil || msg.Execution.Status != engine.ExecutionStatusError {
		t.Fatalf("expected the panic captured as an error message, got %#v", msg.Execution)
	}
}

func TestExecuteConcurrencyBound(t *testing.T) {
	// Track the peak number of concurrently running extractions.
	var (
		gate    = make(chan struct{})
		started = make(chan string, 8)
	)
	registry := defaultRegistry().
		addConnector(&fakeConnectorFactory{
			name:    "gated",
			outputs: []engine.Schema{schema("data", 1, 0, 0)},
			extract: func(ctx context.Context, output engine.Schema) (engine.Message, error) {
				started <- "x"
				select {
				case <-gate:
				case <-ctx.Done():
					return engine.Message{}, ctx.Err()
				}
				return engine.Message{ID: "m", Schema: output, Content: map[string]interface{}{}}, nil
			},
		})
	rb := testRunbook(map[string]runbook.ArtifactDefinition{
		"a": leaf("gated"),
		"b": leaf("gated"),
		"c": leaf("gated"),
		"d": leaf("gated"),
	})
	rb.Config.MaxConcurrency = 2
	executor := engine.NewExecutor(registry, newTestContainer())

	done := make(chan *engine.ExecutionResult, 1)
	go func() {
		result, err := executor.Execute(context.Background(), mustPlan(t, registry, rb))
		if err != nil {
			t.Errorf("Execute failed: %v", err)
		}
		done <- result
	}()

	// With concurrency 2, exactly two extractions may start before the gate
	// opens.
	<-started
	<-started
	select {
	case <-started:
		t.Error("a third extraction started despite maxConcurrency=2")
	case <-time.After(200 * time.Millisecond):
	}

	close(gate)
	result := <-done
	if len(result.Artifacts) != 4 {
		t.Errorf("expected all 4 artifacts produced, got %d", len(result.Artifacts))
	}
}

func TestExecuteAliasAnnotation(t *testing.T) {
	registry := defaultRegistry()
	rb := testRunbook(map[string]runbook.ArtifactDefinition{"raw": leaf("files")})
	rb.Aliases = map[string]string{"latest": "raw"}
	executor := engine.NewExecutor(registry, newTestContainer())

	result, err := executor.Execute(context.Background(), mustPlan(t, registry, rb))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	msg := result.Artifacts["raw"]
	if msg.Execution == nil || msg.Execution.Alias != "latest" {
		t.Errorf("expected the alias on the execution context, got %#v", msg.Execution)
	}
	if msg.Execution.Origin != "parent" {
		t.Errorf("expected parent origin, got %q", msg.Execution.Origin)
	}
}

type recordingPublisher struct {
	events []engine.ArtifactEvent
}

func (p *recordingPublisher) Publish(_ context.Context, event engine.ArtifactEvent) {
	p.events = append(p.events, event)
}

func TestExecutePublishesEvents(t *testing.T) {
	registry := defaultRegistry().
		addConnector(&fakeConnectorFactory{
			name:    "broken",
			outputs: []engine.Schema{schema("data", 1, 0, 0)},
			extract: func(context.Context, engine.Schema) (engine.Message, error) {
				return engine.Message{}, engine.NewConnectorExtractionError("boom", failErr)
			},
		})
	rb := testRunbook(map[string]runbook.ArtifactDefinition{
		"broken": leaf("broken"),
		"sink":   passthrough("broken"),
	})
	publisher := &recordingPublisher{}
	executor := engine.NewExecutor(registry, newTestContainer(), engine.WithEventPublisher(publisher))

	if _, err := executor.Execute(context.Background(), mustPlan(t, registry, rb)); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	var sawError, sawSkip bool
	for _, e := range publisher.events {
		if e.ArtifactID == "broken" && e.Status == engine.ExecutionStatusError {
			sawError = true
		}
		if e.ArtifactID == "sink" && e.Skipped {
			sawSkip = true
		}
	}
	if !sawError || !sawSkip {
		t.Errorf("expected error and skip events, got %#v", publisher.events)
	}
}
