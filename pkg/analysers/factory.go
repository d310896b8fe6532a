package analysers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/veriflow/veriflow/pkg/engine"
	"github.com/veriflow/veriflow/pkg/llm"
	"github.com/veriflow/veriflow/pkg/validation"
)

// NewPatternAnalyser creates a pattern analyser with compiled rules.
// service may be nil; the validation engine then keeps every finding and
// reports the degradation in its summary.
func NewPatternAnalyser(opts PatternOptions, cfg validation.Config, service llm.Service, logger zerolog.Logger) (*PatternAnalyser, error) {
	names := make([]string, 0, len(opts.Rules))
	for name := range opts.Rules {
		names = append(names, name)
	}
	sort.Strings(names)

	categories := make([]category, 0, len(names))
	for _, name := range names {
		cat := category{name: name}
		for _, pattern := range opts.Rules[name] {
			re, err := regexp.Compile(pattern)
			if err != nil {
				return nil, fmt.Errorf("category %q: invalid pattern %q: %w", name, pattern, err)
			}
			cat.patterns = append(cat.patterns, re)
		}
		if len(cat.patterns) == 0 {
			return nil, fmt.Errorf("category %q has no patterns", name)
		}
		categories = append(categories, cat)
	}

	return &PatternAnalyser{
		categories: categories,
		service:    service,
		cfg:        cfg,
		logger:     logger,
	}, nil
}

// PatternFactory builds pattern analysers. The LLM service is injected at
// registry construction and shared by all instances.
type PatternFactory struct {
	Service llm.Service
	Logger  zerolog.Logger
}

// ComponentName implements engine.ProcessorFactory.
func (PatternFactory) ComponentName() string { return "pattern" }

// InputSchemas implements engine.ProcessorFactory.
func (PatternFactory) InputSchemas() []engine.Schema {
	var schemas []engine.Schema
	for _, combo := range (&PatternAnalyser{}).InputRequirements() {
		for _, req := range combo {
			s, err := engine.ParseSchema(req.SchemaName, req.Version)
			if err != nil {
				continue
			}
			schemas = append(schemas, s)
		}
	}
	return schemas
}

// OutputSchemas implements engine.ProcessorFactory.
func (PatternFactory) OutputSchemas() []engine.Schema {
	return (&PatternAnalyser{}).SupportedOutputSchemas()
}

// CanCreate implements engine.ProcessorFactory.
func (PatternFactory) CanCreate(config engine.ComponentConfig) bool {
	rules, ok := config["rules"].(map[string]interface{})
	return ok && len(rules) > 0
}

// Create implements engine.ProcessorFactory.
func (f PatternFactory) Create(config engine.ComponentConfig) (engine.Processor, error) {
	var opts PatternOptions
	if err := decodePatternOptions(config, &opts); err != nil {
		return nil, engine.NewConfigurationError("invalid pattern analyser config", err).
			WithComponent("pattern")
	}

	cfg, err := validation.ParseConfig(config)
	if err != nil {
		return nil, engine.NewConfigurationError("invalid validation config", err).
			WithComponent("pattern")
	}

	analyser, err := NewPatternAnalyser(opts, cfg, f.Service, f.Logger)
	if err != nil {
		return nil, engine.NewConfigurationError("invalid pattern rules", err).
			WithComponent("pattern")
	}
	return analyser, nil
}

// ServiceDependencies implements engine.ProcessorFactory.
func (PatternFactory) ServiceDependencies() map[string]reflect.Type {
	return map[string]reflect.Type{
		"llm": reflect.TypeOf((*llm.Service)(nil)).Elem(),
	}
}

// decodePatternOptions extracts only the analyser's own keys; validation
// engine keys in the same property map are handled by validation.ParseConfig.
func decodePatternOptions(config engine.ComponentConfig, out *PatternOptions) error {
	rules, ok := config["rules"]
	if !ok {
		return fmt.Errorf("rules is required")
	}
	raw, err := json.Marshal(map[string]interface{}{"rules": rules})
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(out); err != nil {
		return err
	}
	return validator.New().Struct(out)
}
