// Package runbook defines the declarative model of a compliance-analysis
// pipeline: named artifacts, their sources and derivations, aliases, and
// run-wide configuration. The model is pure data; planning and execution
// live in pkg/engine.
package runbook

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Default run configuration values applied when the runbook omits them.
const (
	DefaultMaxConcurrency = 4
	DefaultTimeoutSeconds = 3600
)

// ComponentSpec names a connector or processor type and its declarative
// properties.
type ComponentSpec struct {
	// Type is the registered component name (e.g. "filesystem", "pattern").
	Type string `yaml:"type" json:"type" validate:"required"`

	// Properties are the component-specific options, validated by the
	// component factory.
	Properties map[string]interface{} `yaml:"properties,omitempty" json:"properties,omitempty"`
}

// StringList unmarshals from either a YAML scalar or a YAML sequence, so a
// single input can be written without list syntax.
type StringList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *StringList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var single string
		if err := value.Decode(&single); err != nil {
			return err
		}
		*s = StringList{single}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		*s = StringList(list)
		return nil
	default:
		return fmt.Errorf("inputs must be a string or a list of strings")
	}
}

// ArtifactDefinition describes how one artifact is produced. Exactly one of
// Source (leaf) or Inputs (derived) must be set.
type ArtifactDefinition struct {
	// Source is the connector spec for a leaf artifact.
	Source *ComponentSpec `yaml:"source,omitempty" json:"source,omitempty"`

	// Inputs lists the predecessor artifact IDs of a derived artifact.
	Inputs StringList `yaml:"inputs,omitempty" json:"inputs,omitempty"`

	// Process is the processor spec for a derived artifact. Absent Process
	// with a single input means passthrough.
	Process *ComponentSpec `yaml:"process,omitempty" json:"process,omitempty"`

	// InputVersions pins the schema version resolved on the edge from a
	// predecessor, keyed by predecessor artifact ID.
	InputVersions map[string]string `yaml:"inputVersions,omitempty" json:"input_versions,omitempty"`

	// Output marks this artifact as user-visible output.
	Output bool `yaml:"output,omitempty" json:"output,omitempty"`

	// Optional lowers the log severity of a failure; it does not change
	// cascade behaviour.
	Optional bool `yaml:"optional,omitempty" json:"optional,omitempty"`
}

// IsLeaf reports whether the artifact is produced directly by a connector.
func (d ArtifactDefinition) IsLeaf() bool {
	return d.Source != nil
}

// RunConfig is the run-wide execution configuration.
type RunConfig struct {
	// MaxConcurrency bounds the number of artifacts in production at once.
	MaxConcurrency int `yaml:"maxConcurrency,omitempty" json:"max_concurrency" validate:"min=1"`

	// TimeoutSeconds is the run-wide deadline in seconds.
	TimeoutSeconds int `yaml:"timeout,omitempty" json:"timeout" validate:"min=1"`
}

// Timeout returns the run-wide deadline as a duration.
func (c RunConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Runbook is a declarative pipeline document.
type Runbook struct {
	// Name identifies the runbook.
	Name string `yaml:"name" json:"name" validate:"required"`

	// Description is optional human-readable documentation.
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Config is the run-wide execution configuration.
	Config RunConfig `yaml:"config,omitempty" json:"config"`

	// Artifacts maps artifact IDs to their definitions.
	Artifacts map[string]ArtifactDefinition `yaml:"artifacts" json:"artifacts" validate:"required,min=1"`

	// Aliases maps alias names to artifact IDs.
	Aliases map[string]string `yaml:"aliases,omitempty" json:"aliases,omitempty"`
}

// Normalize applies defaults for omitted configuration values.
func (r *Runbook) Normalize() {
	if r.Config.MaxConcurrency == 0 {
		r.Config.MaxConcurrency = DefaultMaxConcurrency
	}
	if r.Config.TimeoutSeconds == 0 {
		r.Config.TimeoutSeconds = DefaultTimeoutSeconds
	}
}
