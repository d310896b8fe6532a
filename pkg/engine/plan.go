package engine

import (
	"time"

	"github.com/veriflow/veriflow/pkg/runbook"
)

// ExecutionDAG holds the forward and reverse adjacency maps over artifact
// IDs. Forward edges point from an artifact to its dependents; reverse edges
// point to its predecessors.
type ExecutionDAG struct {
	// Forward maps an artifact ID to the artifacts that consume it.
	Forward map[string][]string `json:"forward"`

	// Reverse maps an artifact ID to its predecessors, in declared input
	// order.
	Reverse map[string][]string `json:"reverse"`
}

// ArtifactSchemas carries the schema versions pinned at plan time for one
// artifact.
type ArtifactSchemas struct {
	// Inputs maps each predecessor ID to the schema resolved on that edge.
	Inputs map[string]Schema `json:"inputs,omitempty"`

	// Output is the schema the artifact is produced with.
	Output Schema `json:"output"`
}

// ExecutionPlan is the immutable product of planning. It may be executed any
// number of times; each execution creates a fresh run ID.
type ExecutionPlan struct {
	// Runbook is the source document the plan was built from.
	Runbook *runbook.Runbook `json:"runbook"`

	// DAG is the artifact dependency graph.
	DAG ExecutionDAG `json:"dag"`

	// Schemas maps artifact IDs to their pinned schema versions.
	Schemas map[string]ArtifactSchemas `json:"schemas"`

	// ReversedAliases maps artifact IDs back to alias names. When several
	// aliases target one artifact the lexicographically smallest wins.
	ReversedAliases map[string]string `json:"reversed_aliases,omitempty"`
}

// ExecutionResult is the outcome of one run of a plan.
type ExecutionResult struct {
	// RunID is the unique identifier of this run.
	RunID string `json:"run_id"`

	// StartedAt is when the run started.
	StartedAt time.Time `json:"started_at"`

	// Artifacts maps produced artifact IDs to their stored messages,
	// including synthetic error messages for failed artifacts.
	Artifacts map[string]Message `json:"artifacts"`

	// Order lists artifact IDs in completion order. Useful only for
	// debugging; within a ready set the order is unspecified.
	Order []string `json:"order"`

	// Skipped is the set of artifacts not produced because a transitive
	// predecessor failed or the run deadline fired.
	Skipped map[string]bool `json:"skipped"`

	// DurationSeconds is the total wall-clock run time.
	DurationSeconds float64 `json:"duration_seconds"`
}

// Summary aggregates per-status counts for a run.
type Summary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// Summarize computes the per-status counts of the result.
func (r *ExecutionResult) Summarize() Summary {
	s := Summary{Skipped: len(r.Skipped)}
	for _, msg := range r.Artifacts {
		if msg.Execution != nil && msg.Execution.Status == ExecutionStatusError {
			s.Failed++
		} else {
			s.Succeeded++
		}
	}
	s.Total = len(r.Artifacts) + len(r.Skipped)
	return s
}

// FailedArtifacts returns the IDs of non-optional artifacts recorded with an
// error status, sorted by completion order.
func (r *ExecutionResult) FailedArtifacts(rb *runbook.Runbook) []string {
	var failed []string
	for _, id := range r.Order {
		msg, ok := r.Artifacts[id]
		if !ok || msg.Execution == nil || msg.Execution.Status != ExecutionStatusError {
			continue
		}
		if def, ok := rb.Artifacts[id]; ok && def.Optional {
			continue
		}
		failed = append(failed, id)
	}
	return failed
}
