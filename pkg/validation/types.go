// Package validation implements the LLM-backed refinement of pattern-matched
// findings. Findings are batched token-aware, sent to the LLM with a strict
// structured-output schema, and aggregated fail-safe: a finding the LLM did
// not explicitly reject is always kept.
package validation

import (
	"sort"
)

// Evidence is one matched location inside a source.
type Evidence struct {
	// Line is the 1-based line number of the match, when known.
	Line int `json:"line,omitempty"`

	// Excerpt is the matched text with minimal surrounding context.
	Excerpt string `json:"excerpt"`
}

// MatchedPattern records one pattern that fired and how often.
type MatchedPattern struct {
	Pattern string `json:"pattern"`
	Count   int    `json:"count"`
}

// Finding is a single unit of analyser output during pattern matching.
type Finding struct {
	// ID is the finding UUID, echoed through prompts so LLM results can be
	// joined back.
	ID string `json:"id"`

	// Source is the address of the content the finding was matched in, e.g.
	// a file path or db(table.column).
	Source string `json:"source"`

	// Category is the rule category that produced the finding.
	Category string `json:"category"`

	// Evidence lists the matched locations.
	Evidence []Evidence `json:"evidence,omitempty"`

	// MatchedPatterns lists the patterns that fired.
	MatchedPatterns []MatchedPattern `json:"matched_patterns,omitempty"`

	// Metadata carries analyser-specific annotations.
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// WithMetadata returns a copy of the finding with one metadata key set. The
// receiver's metadata map is not mutated.
func (f Finding) WithMetadata(key string, value interface{}) Finding {
	out := f
	out.Metadata = make(map[string]interface{}, len(f.Metadata)+1)
	for k, v := range f.Metadata {
		out.Metadata[k] = v
	}
	out.Metadata[key] = value
	return out
}

// SkipReason explains why a finding bypassed LLM validation.
type SkipReason string

const (
	// SkipReasonBatchError marks findings whose batch's LLM call failed.
	SkipReasonBatchError SkipReason = "batch_error"

	// SkipReasonOversizedSource marks findings whose source content alone
	// exceeds the model context window.
	SkipReasonOversizedSource SkipReason = "oversized_source"

	// SkipReasonMissingContent marks findings whose source content could not
	// be fetched.
	SkipReasonMissingContent SkipReason = "missing_content"
)

// SkippedFinding records one finding that bypassed validation.
type SkippedFinding struct {
	FindingID string     `json:"finding_id"`
	Reason    SkipReason `json:"reason"`
	Detail    string     `json:"detail,omitempty"`
}

// Result is the LLM's verdict on one finding.
type Result string

const (
	// ResultTruePositive confirms the finding.
	ResultTruePositive Result = "TRUE_POSITIVE"

	// ResultFalsePositive rejects the finding.
	ResultFalsePositive Result = "FALSE_POSITIVE"
)

// Action is the LLM's recommended follow-up.
type Action string

const (
	ActionKeep          Action = "keep"
	ActionDiscard       Action = "discard"
	ActionFlagForReview Action = "flag_for_review"
)

// Verdict is one entry of the LLM's structured response.
type Verdict struct {
	FindingID         string  `json:"finding_id"`
	ValidationResult  Result  `json:"validation_result"`
	Confidence        float64 `json:"confidence"`
	Reasoning         string  `json:"reasoning"`
	RecommendedAction Action  `json:"recommended_action"`
}

// Outcome is the aggregate result of validating a finding set.
type Outcome struct {
	// KeptFindings is the post-validation finding set, in input order.
	KeptFindings []Finding `json:"kept_findings"`

	// LLMValidatedKept lists finding IDs the LLM confirmed.
	LLMValidatedKept []string `json:"llm_validated_kept"`

	// LLMValidatedRemoved lists finding IDs the LLM rejected.
	LLMValidatedRemoved []string `json:"llm_validated_removed"`

	// LLMNotFlagged lists finding IDs the LLM response did not mention.
	// Omission is not rejection; these findings are kept.
	LLMNotFlagged []string `json:"llm_not_flagged"`

	// Skipped lists findings that bypassed validation and why. Skipped
	// findings are kept.
	Skipped []SkippedFinding `json:"skipped"`

	// ValidationSucceeded is false when any finding bypassed validation or
	// the LLM service was requested but absent.
	ValidationSucceeded bool `json:"validation_succeeded"`
}

// Summary renders deterministic counts and category breakdowns for embedding
// into an analyser's output metadata. ID lists are sorted.
func (o Outcome) Summary() map[string]interface{} {
	byCategory := make(map[string]int)
	for _, f := range o.KeptFindings {
		byCategory[f.Category]++
	}

	skippedIDs := make([]string, len(o.Skipped))
	for i, s := range o.Skipped {
		skippedIDs[i] = s.FindingID
	}

	return map[string]interface{}{
		"kept":                  len(o.KeptFindings),
		"kept_by_category":      byCategory,
		"llm_validated_kept":    sortedCopy(o.LLMValidatedKept),
		"llm_validated_removed": sortedCopy(o.LLMValidatedRemoved),
		"llm_not_flagged":       sortedCopy(o.LLMNotFlagged),
		"skipped":               sortedCopy(skippedIDs),
		"validation_succeeded":  o.ValidationSucceeded,
	}
}

func sortedCopy(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	sort.Strings(out)
	return out
}
