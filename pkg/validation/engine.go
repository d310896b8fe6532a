package validation

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/veriflow/veriflow/pkg/llm"
)

// responseSchema is the strict structured-output contract for validation
// calls. Entries naming findings outside the batch are discarded on parse.
const responseSchema = `{
  "type": "object",
  "required": ["results"],
  "additionalProperties": false,
  "properties": {
    "results": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["finding_id", "validation_result", "confidence", "reasoning", "recommended_action"],
        "additionalProperties": false,
        "properties": {
          "finding_id": {"type": "string"},
          "validation_result": {"enum": ["TRUE_POSITIVE", "FALSE_POSITIVE"]},
          "confidence": {"type": "number", "minimum": 0, "maximum": 1},
          "reasoning": {"type": "string"},
          "recommended_action": {"enum": ["keep", "discard", "flag_for_review"]}
        }
      }
    }
  }
}`

// response mirrors the structured-output contract.
type response struct {
	Results []Verdict `json:"results"`
}

// Engine refines pattern-matched findings through an LLM. It never raises
// past its boundary: batch failures and unbatchable findings are reflected
// in the outcome, and every finding without an explicit rejection is kept.
type Engine struct {
	cfg      Config
	service  llm.Service
	provider SourceProvider
	prompts  PromptBuilder
	logger   zerolog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithPromptBuilder overrides the default prompt builder.
func WithPromptBuilder(b PromptBuilder) EngineOption {
	return func(e *Engine) { e.prompts = b }
}

// WithEngineLogger sets the engine logger.
func WithEngineLogger(logger zerolog.Logger) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

// NewEngine creates a validation engine. A nil service is tolerated: when
// validation is enabled but no service is available the engine degrades to a
// no-op that keeps every finding and reports ValidationSucceeded=false.
func NewEngine(cfg Config, service llm.Service, provider SourceProvider, opts ...EngineOption) *Engine {
	e := &Engine{
		cfg:      cfg,
		service:  service,
		provider: provider,
		prompts:  DefaultPromptBuilder{},
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Validate runs the batching, LLM invocation, and fail-safe aggregation for
// a finding set.
func (e *Engine) Validate(ctx context.Context, findings []Finding) Outcome {
	if len(findings) == 0 {
		return Outcome{KeptFindings: []Finding{}, ValidationSucceeded: true}
	}

	if !e.cfg.EnableLLMValidation {
		return Outcome{KeptFindings: findings, ValidationSucceeded: true}
	}

	if e.service == nil {
		e.logger.Warn().Msg("llm validation requested but no llm service is available")
		return Outcome{KeptFindings: findings, ValidationSucceeded: false}
	}

	batches, skipped := buildBatches(ctx, e.cfg, e.provider, findings)

	verdicts := make(map[string]Verdict)
	for _, b := range batches {
		batchVerdicts, err := e.validateBatch(ctx, b)
		if err != nil {
			e.logger.Warn().Err(err).Int("findings", len(b.findings)).Msg("validation batch failed")
			for _, f := range b.findings {
				skipped = append(skipped, SkippedFinding{
					FindingID: f.ID,
					Reason:    SkipReasonBatchError,
					Detail:    err.Error(),
				})
			}
			continue
		}
		for id, v := range batchVerdicts {
			verdicts[id] = v
		}
	}

	return e.aggregate(findings, verdicts, skipped)
}

// validateBatch builds the prompt, invokes the LLM, and joins the verdicts
// back by finding ID. Verdicts for IDs outside the batch are dropped, a
// defence against model drift.
func (e *Engine) validateBatch(ctx context.Context, b batch) (map[string]Verdict, error) {
	prompt := e.prompts.Build(ctx, b.findings, e.provider)

	resp, err := e.service.Complete(ctx, llm.Request{
		Prompt:         prompt,
		ResponseSchema: json.RawMessage(responseSchema),
		Model:          e.cfg.Model,
	})
	if err != nil {
		return nil, err
	}

	var parsed response
	if err := json.Unmarshal([]byte(resp.Text), &parsed); err != nil {
		return nil, err
	}

	inBatch := make(map[string]bool, len(b.findings))
	for _, f := range b.findings {
		inBatch[f.ID] = true
	}

	verdicts := make(map[string]Verdict)
	for _, v := range parsed.Results {
		if !inBatch[v.FindingID] {
			e.logger.Debug().Str("finding_id", v.FindingID).Msg("dropping verdict for finding outside the batch")
			continue
		}
		verdicts[v.FindingID] = v
	}
	return verdicts, nil
}

// aggregate folds verdicts and skips into the fail-safe outcome, preserving
// input order in the kept set.
func (e *Engine) aggregate(findings []Finding, verdicts map[string]Verdict, skipped []SkippedFinding) Outcome {
	skippedByID := make(map[string]SkippedFinding, len(skipped))
	for _, s := range skipped {
		skippedByID[s.FindingID] = s
	}

	outcome := Outcome{
		KeptFindings:        make([]Finding, 0, len(findings)),
		ValidationSucceeded: len(skipped) == 0,
	}
	outcome.Skipped = skipped

	for _, f := range findings {
		if _, wasSkipped := skippedByID[f.ID]; wasSkipped {
			outcome.KeptFindings = append(outcome.KeptFindings, f)
			continue
		}

		v, mentioned := verdicts[f.ID]
		if !mentioned {
			// Fail-safe: omission is not rejection.
			outcome.LLMNotFlagged = append(outcome.LLMNotFlagged, f.ID)
			outcome.KeptFindings = append(outcome.KeptFindings, f)
			continue
		}

		if v.ValidationResult == ResultFalsePositive {
			if e.cfg.ValidationMode == ModeConservative && v.Confidence < conservativeConfidenceThreshold {
				outcome.LLMNotFlagged = append(outcome.LLMNotFlagged, f.ID)
				outcome.KeptFindings = append(outcome.KeptFindings, f)
				continue
			}
			outcome.LLMValidatedRemoved = append(outcome.LLMValidatedRemoved, f.ID)
			continue
		}

		outcome.LLMValidatedKept = append(outcome.LLMValidatedKept, f.ID)
		outcome.KeptFindings = append(outcome.KeptFindings,
			f.WithMetadata(f.Category+"_llm_validated", true))
	}

	return outcome
}
