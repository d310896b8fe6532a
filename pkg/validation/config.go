package validation

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// BatchMode selects how findings are grouped into LLM calls.
type BatchMode string

const (
	// BatchModeCountBased packs a fixed number of independent findings per
	// call.
	BatchModeCountBased BatchMode = "COUNT_BASED"

	// BatchModeExtendedContext groups findings by source and packs whole
	// sources whose combined content fits the model context window.
	BatchModeExtendedContext BatchMode = "EXTENDED_CONTEXT"
)

// Mode tunes how strictly LLM rejections are applied.
type Mode string

const (
	// ModeStandard applies every FALSE_POSITIVE verdict.
	ModeStandard Mode = "standard"

	// ModeConservative only applies FALSE_POSITIVE verdicts at or above the
	// confidence threshold; the rest are treated as not flagged and kept.
	ModeConservative Mode = "conservative"
)

// conservativeConfidenceThreshold gates removals in conservative mode.
const conservativeConfidenceThreshold = 0.8

// Defaults applied by ParseConfig when options are omitted.
const (
	DefaultBatchSize          = 10
	DefaultModelContextWindow = 128000
)

// Config is the validation engine configuration. Recognised runbook options:
// enableLlmValidation, llmBatchSize, llmValidationMode, and
// batching.modelContextWindow.
type Config struct {
	// EnableLLMValidation turns the engine on. When false, Validate returns
	// the input set unchanged with ValidationSucceeded=true.
	EnableLLMValidation bool `json:"enable_llm_validation"`

	// BatchSize is the findings-per-call cap in COUNT_BASED mode.
	BatchSize int `json:"llm_batch_size" validate:"min=1"`

	// ValidationMode is "standard" or "conservative".
	ValidationMode Mode `json:"llm_validation_mode" validate:"oneof=standard conservative"`

	// BatchingMode is COUNT_BASED or EXTENDED_CONTEXT.
	BatchingMode BatchMode `json:"batching_mode" validate:"oneof=COUNT_BASED EXTENDED_CONTEXT"`

	// ModelContextWindow is the token budget per LLM call in
	// EXTENDED_CONTEXT mode.
	ModelContextWindow int `json:"model_context_window" validate:"min=1"`

	// Model optionally names the model to use.
	Model string `json:"model,omitempty"`
}

// DefaultConfig returns the engine defaults: validation enabled, standard
// mode, count-based batching.
func DefaultConfig() Config {
	return Config{
		EnableLLMValidation: true,
		BatchSize:           DefaultBatchSize,
		ValidationMode:      ModeStandard,
		BatchingMode:        BatchModeCountBased,
		ModelContextWindow:  DefaultModelContextWindow,
	}
}

// ParseConfig builds a Config from declarative component properties,
// applying defaults and validating the result.
func ParseConfig(properties map[string]interface{}) (Config, error) {
	cfg := DefaultConfig()

	if v, ok := properties["enableLlmValidation"]; ok {
		b, ok := v.(bool)
		if !ok {
			return Config{}, fmt.Errorf("enableLlmValidation must be a boolean")
		}
		cfg.EnableLLMValidation = b
	}
	if v, ok := properties["llmBatchSize"]; ok {
		n, err := asInt(v)
		if err != nil {
			return Config{}, fmt.Errorf("llmBatchSize: %w", err)
		}
		cfg.BatchSize = n
	}
	if v, ok := properties["llmValidationMode"]; ok {
		s, ok := v.(string)
		if !ok {
			return Config{}, fmt.Errorf("llmValidationMode must be a string")
		}
		cfg.ValidationMode = Mode(s)
	}
	if v, ok := properties["batchingMode"]; ok {
		s, ok := v.(string)
		if !ok {
			return Config{}, fmt.Errorf("batchingMode must be a string")
		}
		cfg.BatchingMode = BatchMode(s)
	}
	if batching, ok := properties["batching"].(map[string]interface{}); ok {
		if v, ok := batching["modelContextWindow"]; ok {
			n, err := asInt(v)
			if err != nil {
				return Config{}, fmt.Errorf("batching.modelContextWindow: %w", err)
			}
			cfg.ModelContextWindow = n
		}
	}
	if v, ok := properties["model"]; ok {
		s, ok := v.(string)
		if !ok {
			return Config{}, fmt.Errorf("model must be a string")
		}
		cfg.Model = s
	}

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid validation config: %w", err)
	}
	return cfg, nil
}

// asInt accepts the integer shapes YAML and JSON decoding produce.
func asInt(v interface{}) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("%v is not an integer", v)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("%v is not an integer", v)
	}
}
