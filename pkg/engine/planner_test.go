package engine_test

import (
	"context"
	"errors"
	"testing"

	"github.com/veriflow/veriflow/pkg/engine"
	"github.com/veriflow/veriflow/pkg/runbook"
)

// defaultRegistry wires a "files" connector offering data/1.0.0..2.0.0 and an
// "analyse" processor accepting data/1.0.0 and data/1.1.0, emitting
// findings/1.0.0.
func defaultRegistry() *fakeRegistry {
	return newFakeRegistry().
		addConnector(&fakeConnectorFactory{
			name: "files",
			outputs: []engine.Schema{
				schema("data", 1, 0, 0),
				schema("data", 1, 1, 0),
				schema("data", 2, 0, 0),
			},
		}).
		addProcessor(&fakeProcessorFactory{
			name: "analyse",
			inputs: []engine.Schema{
				schema("data", 1, 0, 0),
				schema("data", 1, 1, 0),
			},
			outputs: []engine.Schema{schema("findings", 1, 0, 0)},
		})
}

func TestBuildPlanLinear(t *testing.T) {
	planner := engine.NewPlanner(defaultRegistry())

	rb := testRunbook(map[string]runbook.ArtifactDefinition{
		"raw":      leaf("files"),
		"findings": derived("analyse", "raw"),
	})

	plan, err := planner.BuildPlan(context.Background(), rb)
	if err != nil {
		t.Fatalf("BuildPlan failed: %v", err)
	}

	if got := plan.DAG.Forward["raw"]; len(got) != 1 || got[0] != "findings" {
		t.Errorf("unexpected forward edges: %v", got)
	}
	if got := plan.DAG.Reverse["findings"]; len(got) != 1 || got[0] != "raw" {
		t.Errorf("unexpected reverse edges: %v", got)
	}
}

func TestBuildPlanResolvesHighestSharedVersion(t *testing.T) {
	planner := engine.NewPlanner(defaultRegistry())

	rb := testRunbook(map[string]runbook.ArtifactDefinition{
		"raw":      leaf("files"),
		"findings": derived("analyse", "raw"),
	})

	plan, err := planner.BuildPlan(context.Background(), rb)
	if err != nil {
		t.Fatalf("BuildPlan failed: %v", err)
	}

	// Offered 1.0.0/1.1.0/2.0.0 intersected with accepted 1.0.0/1.1.0
	// resolves to the highest shared version.
	want := schema("data", 1, 1, 0)
	if got := plan.Schemas["raw"].Output; got != want {
		t.Errorf("raw output = %s, want %s", got, want)
	}
	if got := plan.Schemas["findings"].Inputs["raw"]; got != want {
		t.Errorf("edge raw->findings = %s, want %s", got, want)
	}
	if got := plan.Schemas["findings"].Output; got != schema("findings", 1, 0, 0) {
		t.Errorf("findings output = %s", got)
	}
}

func TestBuildPlanHonoursVersionPin(t *testing.T) {
	planner := engine.NewPlanner(defaultRegistry())

	def := derived("analyse", "raw")
	def.InputVersions = map[string]string{"raw": "1.0.0"}
	rb := testRunbook(map[string]runbook.ArtifactDefinition{
		"raw":      leaf("files"),
		"findings": def,
	})

	plan, err := planner.BuildPlan(context.Background(), rb)
	if err != nil {
		t.Fatalf("BuildPlan failed: %v", err)
	}
	if got := plan.Schemas["raw"].Output; got != schema("data", 1, 0, 0) {
		t.Errorf("pinned edge resolved to %s, want data/1.0.0", got)
	}
}

func TestBuildPlanUnsatisfiablePin(t *testing.T) {
	planner := engine.NewPlanner(defaultRegistry())

	def := derived("analyse", "raw")
	def.InputVersions = map[string]string{"raw": "3.0.0"}
	rb := testRunbook(map[string]runbook.ArtifactDefinition{
		"raw":      leaf("files"),
		"findings": def,
	})

	_, err := planner.BuildPlan(context.Background(), rb)
	if !engine.IsKind(err, engine.ErrorKindSchemaVersionMismatch) {
		t.Errorf("expected schema_version_mismatch, got %v", err)
	}
}

func TestBuildPlanNoSharedSchemaName(t *testing.T) {
	registry := defaultRegistry().
		addProcessor(&fakeProcessorFactory{
			name:    "report",
			inputs:  []engine.Schema{schema("summary", 1, 0, 0)},
			outputs: []engine.Schema{schema("report", 1, 0, 0)},
		})
	planner := engine.NewPlanner(registry)

	rb := testRunbook(map[string]runbook.ArtifactDefinition{
		"raw":    leaf("files"),
		"report": derived("report", "raw"),
	})

	_, err := planner.BuildPlan(context.Background(), rb)
	if !engine.IsKind(err, engine.ErrorKindSchemaIncompatible) {
		t.Errorf("expected schema_incompatible, got %v", err)
	}
}

func TestBuildPlanVersionMismatch(t *testing.T) {
	registry := defaultRegistry().
		addProcessor(&fakeProcessorFactory{
			name:    "legacy",
			inputs:  []engine.Schema{schema("data", 0, 9, 0)},
			outputs: []engine.Schema{schema("findings", 1, 0, 0)},
		})
	planner := engine.NewPlanner(registry)

	rb := testRunbook(map[string]runbook.ArtifactDefinition{
		"raw":    leaf("files"),
		"legacy": derived("legacy", "raw"),
	})

	_, err := planner.BuildPlan(context.Background(), rb)
	if !engine.IsKind(err, engine.ErrorKindSchemaVersionMismatch) {
		t.Errorf("expected schema_version_mismatch, got %v", err)
	}
}

func TestBuildPlanPassthroughOffersPredecessorSchema(t *testing.T) {
	planner := engine.NewPlanner(defaultRegistry())

	rb := testRunbook(map[string]runbook.ArtifactDefinition{
		"raw":      leaf("files"),
		"copy":     passthrough("raw"),
		"findings": derived("analyse", "copy"),
	})

	plan, err := planner.BuildPlan(context.Background(), rb)
	if err != nil {
		t.Fatalf("BuildPlan failed: %v", err)
	}
	if got := plan.Schemas["copy"].Output; got != plan.Schemas["raw"].Output {
		t.Errorf("passthrough output %s differs from predecessor %s", got, plan.Schemas["raw"].Output)
	}
	// The consumer behind the passthrough accepts at most data/1.1.0, so raw
	// must not be pinned at its maximum data/2.0.0.
	want := schema("data", 1, 1, 0)
	if got := plan.Schemas["raw"].Output; got != want {
		t.Errorf("raw output = %s, want %s", got, want)
	}
	if got := plan.Schemas["findings"].Inputs["copy"]; got != want {
		t.Errorf("edge copy->findings = %s, want %s", got, want)
	}
}

func TestBuildPlanPassthroughChainForwardsConstraints(t *testing.T) {
	planner := engine.NewPlanner(defaultRegistry())

	rb := testRunbook(map[string]runbook.ArtifactDefinition{
		"raw":      leaf("files"),
		"hop1":     passthrough("raw"),
		"hop2":     passthrough("hop1"),
		"findings": derived("analyse", "hop2"),
	})

	plan, err := planner.BuildPlan(context.Background(), rb)
	if err != nil {
		t.Fatalf("BuildPlan failed: %v", err)
	}
	want := schema("data", 1, 1, 0)
	for _, id := range []string{"raw", "hop1", "hop2"} {
		if got := plan.Schemas[id].Output; got != want {
			t.Errorf("%s output = %s, want %s", id, got, want)
		}
	}
}

func TestBuildPlanPinAppliesThroughPassthrough(t *testing.T) {
	planner := engine.NewPlanner(defaultRegistry())

	def := derived("analyse", "copy")
	def.InputVersions = map[string]string{"copy": "1.0.0"}
	rb := testRunbook(map[string]runbook.ArtifactDefinition{
		"raw":      leaf("files"),
		"copy":     passthrough("raw"),
		"findings": def,
	})

	plan, err := planner.BuildPlan(context.Background(), rb)
	if err != nil {
		t.Fatalf("BuildPlan failed: %v", err)
	}
	if got := plan.Schemas["raw"].Output; got != schema("data", 1, 0, 0) {
		t.Errorf("pinned chain resolved raw to %s, want data/1.0.0", got)
	}
}

func TestBuildPlanPassthroughChainVersionMismatch(t *testing.T) {
	planner := engine.NewPlanner(defaultRegistry())

	def := derived("analyse", "copy")
	def.InputVersions = map[string]string{"copy": "3.0.0"}
	rb := testRunbook(map[string]runbook.ArtifactDefinition{
		"raw":      leaf("files"),
		"copy":     passthrough("raw"),
		"findings": def,
	})

	_, err := planner.BuildPlan(context.Background(), rb)
	if !engine.IsKind(err, engine.ErrorKindSchemaVersionMismatch) {
		t.Errorf("expected schema_version_mismatch, got %v", err)
	}
}

func TestBuildPlanDetectsCycle(t *testing.T) {
	planner := engine.NewPlanner(defaultRegistry())

	rb := testRunbook(map[string]runbook.ArtifactDefinition{
		"a": derived("analyse", "c"),
		"b": derived("analyse", "a"),
		"c": derived("analyse", "b"),
	})

	_, err := planner.BuildPlan(context.Background(), rb)
	if !engine.IsKind(err, engine.ErrorKindCycle) {
		t.Fatalf("expected a cycle error, got %v", err)
	}

	var pErr *engine.PipelineError
	if !errors.As(err, &pErr) {
		t.Fatal("expected a PipelineError")
	}
	cycle, ok := pErr.Details["cycle"].([]string)
	if !ok || len(cycle) < 3 {
		t.Errorf("expected the offending cycle in details, got %#v", pErr.Details["cycle"])
	}
}

func TestBuildPlanStructuralValidation(t *testing.T) {
	planner := engine.NewPlanner(defaultRegistry())

	cases := map[string]map[string]runbook.ArtifactDefinition{
		"both source and inputs": {
			"bad": {
				Source: &runbook.ComponentSpec{Type: "files"},
				Inputs: runbook.StringList{"raw"},
			},
			"raw": leaf("files"),
		},
		"neither source nor inputs": {
			"bad": {},
		},
		"unknown input": {
			"bad": derived("analyse", "ghost"),
		},
		"unknown connector": {
			"bad": leaf("teleport"),
		},
		"unknown processor": {
			"raw": leaf("files"),
			"bad": derived("transmogrify", "raw"),
		},
		"invalid artifact id": {
			"bad id!": leaf("files"),
		},
	}

	for name, artifacts := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := planner.BuildPlan(context.Background(), testRunbook(artifacts))
			if !engine.IsKind(err, engine.ErrorKindConfiguration) {
				t.Errorf("expected a configuration error, got %v", err)
			}
		})
	}
}

func TestBuildPlanAliasValidation(t *testing.T) {
	planner := engine.NewPlanner(defaultRegistry())

	rb := testRunbook(map[string]runbook.ArtifactDefinition{"raw": leaf("files")})
	rb.Aliases = map[string]string{"latest": "ghost"}

	_, err := planner.BuildPlan(context.Background(), rb)
	if !engine.IsKind(err, engine.ErrorKindConfiguration) {
		t.Errorf("expected a configuration error, got %v", err)
	}
}

func TestBuildPlanAliasCollision(t *testing.T) {
	planner := engine.NewPlanner(defaultRegistry())

	rb := testRunbook(map[string]runbook.ArtifactDefinition{"raw": leaf("files")})
	rb.Aliases = map[string]string{
		"zeta":  "raw",
		"alpha": "raw",
	}

	plan, err := planner.BuildPlan(context.Background(), rb)
	if err != nil {
		t.Fatalf("BuildPlan failed: %v", err)
	}
	// The lexicographically smallest alias wins.
	if got := plan.ReversedAliases["raw"]; got != "alpha" {
		t.Errorf("reversed alias = %q, want alpha", got)
	}
}
