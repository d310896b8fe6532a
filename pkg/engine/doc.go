// Package engine provides the core types and orchestration for the Veriflow
// compliance-analysis pipeline runtime.
//
// # Overview
//
// A declarative runbook names data sources, derivation steps, and outputs.
// The engine turns it into artifacts in three steps:
//
//  1. Plan - validate the runbook, build the artifact DAG, and pin one
//     schema version per edge (Planner)
//  2. Execute - walk the DAG with bounded parallelism, producing one
//     message per artifact (Executor)
//  3. Persist - store every produced message in the artifact store under
//     (runID, artifactID), annotated with an execution context
//
// # Core Domain Types
//
//   - Schema: the (name, version) identity of a message shape
//   - Message: the immutable typed envelope exchanged between components
//   - ExecutionContext: status, duration, origin, and alias annotations on a
//     stored message
//   - ExecutionPlan: the immutable product of planning
//   - ExecutionResult: produced artifacts, skipped set, and timings of a run
//
// # Component Model
//
// Connectors produce leaf messages from external sources; processors derive
// messages from input messages. Both are built by factories resolved through
// a ComponentRegistry, so a runbook's declarative config turns into component
// instances without the engine knowing any concrete type:
//
//	type Connector interface {
//	    Name() string
//	    SupportedOutputSchemas() []Schema
//	    Extract(ctx context.Context, output Schema) (Message, error)
//	}
//
// # Failure Semantics
//
// Per-artifact errors are captured, never raised: a failed artifact is
// recorded as a synthetic message with status=error and every transitive
// dependent is skipped. The run-wide deadline is the only escape hatch; on
// deadline the executor still returns a well-formed result with the
// unfinished artifacts in the skipped set.
//
// # Error Classification
//
// Errors carry an ErrorKind for reporting and propagation logic:
//
//	if engine.IsConfigurationError(err) {
//	    // reject before execution
//	}
//
// # Thread Safety
//
// The executor's coordinator goroutine owns all run bookkeeping; workers
// communicate over channels and never share mutable state. Plans are
// immutable and safe to execute concurrently; each execution creates a fresh
// run ID and resolves a fresh transient artifact store.
package engine
