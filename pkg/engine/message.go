package engine

import (
	"fmt"
	"strconv"
	"strings"
)

// Schema identifies a message shape by name and semantic version.
type Schema struct {
	// Name is the schema name (e.g. "source.files").
	Name string `json:"name"`

	// Major, Minor, and Patch are the integer version components.
	Major int `json:"major"`
	Minor int `json:"minor"`
	Patch int `json:"patch"`
}

// NewSchema creates a schema from a name and integer version components.
func NewSchema(name string, major, minor, patch int) Schema {
	return Schema{Name: name, Major: major, Minor: minor, Patch: patch}
}

// ParseSchema parses a schema from a name and a "major.minor.patch" string.
func ParseSchema(name, version string) (Schema, error) {
	parts := strings.Split(version, ".")
	if len(parts) != 3 {
		return Schema{}, NewConfigurationError(
			fmt.Sprintf("invalid schema version %q: expected major.minor.patch", version), nil)
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return Schema{}, NewConfigurationError(
				fmt.Sprintf("invalid schema version %q: component %q is not a non-negative integer", version, p), nil)
		}
		nums[i] = n
	}
	return Schema{Name: name, Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

// Version returns the "major.minor.patch" string form of the schema version.
func (s Schema) Version() string {
	return fmt.Sprintf("%d.%d.%d", s.Major, s.Minor, s.Patch)
}

// String returns the "name/major.minor.patch" form of the schema.
func (s Schema) String() string {
	return s.Name + "/" + s.Version()
}

// CompareVersion compares the version components of two schemas by
// (major, minor, patch) lexicographic order. It returns -1, 0, or 1.
// Schema names are not compared.
func (s Schema) CompareVersion(o Schema) int {
	if s.Major != o.Major {
		return compareInt(s.Major, o.Major)
	}
	if s.Minor != o.Minor {
		return compareInt(s.Minor, o.Minor)
	}
	return compareInt(s.Patch, o.Patch)
}

func compareInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// ExecutionStatus is the outcome of producing one artifact.
type ExecutionStatus string

const (
	// ExecutionStatusSuccess indicates the artifact was produced.
	ExecutionStatusSuccess ExecutionStatus = "success"

	// ExecutionStatusError indicates production failed and the message is a
	// synthetic error envelope.
	ExecutionStatusError ExecutionStatus = "error"
)

// ExecutionContext annotates a produced message with how it was produced.
type ExecutionContext struct {
	// Status is the production outcome.
	Status ExecutionStatus `json:"status"`

	// DurationSeconds is the wall-clock production time.
	DurationSeconds float64 `json:"duration_seconds"`

	// Origin is "parent" or "child:<runbookName>" for namespaced artifacts.
	Origin string `json:"origin"`

	// Alias is the alias bound to this artifact, if any.
	Alias string `json:"alias,omitempty"`

	// Error is the captured error string when Status is error.
	Error string `json:"error,omitempty"`
}

// Message is the immutable typed envelope exchanged between components.
// It is never mutated after creation; annotation produces a copy.
type Message struct {
	// ID is the stable identity of this message value.
	ID string `json:"id"`

	// Schema identifies the message shape.
	Schema Schema `json:"schema"`

	// Content is the structured payload: a tree of primitives, slices, and
	// string-keyed maps.
	Content map[string]interface{} `json:"content"`

	// Source is the human-readable origin, if any.
	Source string `json:"source,omitempty"`

	// Execution is populated by the executor on the stored copy.
	Execution *ExecutionContext `json:"execution,omitempty"`
}

// WithExecution returns a copy of the message with the execution context set.
// The receiver is left untouched.
func (m Message) WithExecution(exec ExecutionContext) Message {
	out := m
	out.Execution = &exec
	return out
}

// ErrorMessage builds a synthetic message with empty content for a failed
// artifact. The executor records these in place of a produced message.
func ErrorMessage(id string, schema Schema, exec ExecutionContext) Message {
	exec.Status = ExecutionStatusError
	return Message{
		ID:        id,
		Schema:    schema,
		Content:   map[string]interface{}{},
		Execution: &exec,
	}
}
