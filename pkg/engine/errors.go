package engine

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a pipeline error for propagation and reporting logic.
type ErrorKind string

const (
	// ErrorKindConfiguration indicates an invalid runbook, unknown component
	// type, malformed properties, or any other defect the planner surfaces
	// before execution starts.
	ErrorKindConfiguration ErrorKind = "configuration"

	// ErrorKindConnectorConfig indicates a connector rejected its
	// configuration (missing file, bad DSN, unsupported schema).
	ErrorKindConnectorConfig ErrorKind = "connector_config"

	// ErrorKindConnectorExtraction indicates a runtime failure during
	// extraction (I/O, decoding, data-shape mismatch).
	ErrorKindConnectorExtraction ErrorKind = "connector_extraction"

	// ErrorKindProcessing indicates a runtime failure in processor logic.
	ErrorKindProcessing ErrorKind = "processing"

	// ErrorKindServiceUnavailable indicates a requested service is not
	// registered in the container.
	ErrorKindServiceUnavailable ErrorKind = "service_unavailable"

	// ErrorKindCycle indicates the planner detected a dependency cycle.
	ErrorKindCycle ErrorKind = "cycle"

	// ErrorKindSchemaIncompatible indicates no shared schema name exists
	// between a producer and a consumer.
	ErrorKindSchemaIncompatible ErrorKind = "schema_incompatible"

	// ErrorKindSchemaVersionMismatch indicates the offered and accepted
	// version sets for a shared schema name do not intersect.
	ErrorKindSchemaVersionMismatch ErrorKind = "schema_version_mismatch"
)

// PipelineError is a classified error with structured context.
// nolint:revive // PipelineError is intentionally named to distinguish from standard errors
type PipelineError struct {
	// Kind is the error classification.
	Kind ErrorKind `json:"kind"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Artifact is the artifact ID that caused the error, if applicable.
	Artifact string `json:"artifact,omitempty"`

	// Component is the connector or processor name, if applicable.
	Component string `json:"component,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	if e.Artifact != "" {
		msg += fmt.Sprintf(" (artifact=%s)", e.Artifact)
	}
	if e.Component != "" {
		msg += fmt.Sprintf(" (component=%s)", e.Component)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *PipelineError) Is(target error) bool {
	t, ok := target.(*PipelineError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// NewConfigurationError creates a new configuration error.
func NewConfigurationError(message string, err error) *PipelineError {
	return &PipelineError{Kind: ErrorKindConfiguration, Message: message, Err: err}
}

// NewConnectorConfigError creates a new connector configuration error.
func NewConnectorConfigError(message string, err error) *PipelineError {
	return &PipelineError{Kind: ErrorKindConnectorConfig, Message: message, Err: err}
}

// NewConnectorExtractionError creates a new connector extraction error.
func NewConnectorExtractionError(message string, err error) *PipelineError {
	return &PipelineError{Kind: ErrorKindConnectorExtraction, Message: message, Err: err}
}

// NewProcessingError creates a new processing error.
func NewProcessingError(message string, err error) *PipelineError {
	return &PipelineError{Kind: ErrorKindProcessing, Message: message, Err: err}
}

// NewServiceUnavailableError creates a new service-unavailable error.
func NewServiceUnavailableError(message string, err error) *PipelineError {
	return &PipelineError{Kind: ErrorKindServiceUnavailable, Message: message, Err: err}
}

// NewCycleError creates a new cycle-detected error. The offending cycle is
// recorded under the "cycle" detail key.
func NewCycleError(message string, cycle []string) *PipelineError {
	return (&PipelineError{Kind: ErrorKindCycle, Message: message}).
		WithDetail("cycle", cycle)
}

// NewSchemaIncompatibleError creates a new schema-incompatible error.
func NewSchemaIncompatibleError(message string) *PipelineError {
	return &PipelineError{Kind: ErrorKindSchemaIncompatible, Message: message}
}

// NewSchemaVersionMismatchError creates a new schema-version-mismatch error.
func NewSchemaVersionMismatchError(message string) *PipelineError {
	return &PipelineError{Kind: ErrorKindSchemaVersionMismatch, Message: message}
}

// WithArtifact adds artifact context to an error.
func (e *PipelineError) WithArtifact(artifactID string) *PipelineError {
	e.Artifact = artifactID
	return e
}

// WithComponent adds component context to an error.
func (e *PipelineError) WithComponent(name string) *PipelineError {
	e.Component = name
	return e
}

// WithDetail adds a detail field to the error context.
func (e *PipelineError) WithDetail(key string, value interface{}) *PipelineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsKind returns true if err is a PipelineError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *PipelineError
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// IsConfigurationError returns true for planner-surfaced configuration
// defects, including cycles and schema resolution failures.
func IsConfigurationError(err error) bool {
	return IsKind(err, ErrorKindConfiguration) ||
		IsKind(err, ErrorKindCycle) ||
		IsKind(err, ErrorKindSchemaIncompatible) ||
		IsKind(err, ErrorKindSchemaVersionMismatch)
}

// IsConnectorError returns true for connector configuration or extraction
// failures.
func IsConnectorError(err error) bool {
	return IsKind(err, ErrorKindConnectorConfig) || IsKind(err, ErrorKindConnectorExtraction)
}

// IsServiceUnavailable returns true if a requested service is not registered.
func IsServiceUnavailable(err error) bool {
	return IsKind(err, ErrorKindServiceUnavailable)
}
