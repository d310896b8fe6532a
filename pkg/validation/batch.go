package validation

import (
	"context"
	"fmt"
	"sort"
)

// promptOverheadTokens is the fixed per-source prompt overhead added to the
// content token estimate in EXTENDED_CONTEXT batching.
const promptOverheadTokens = 500

// SourceProvider abstracts how source content is fetched for batching and
// prompt construction.
type SourceProvider interface {
	// SourceID returns the batching key of a finding, normally its Source.
	SourceID(f Finding) string

	// SourceContent fetches the content of a source. ok is false when the
	// content is unavailable.
	SourceContent(ctx context.Context, sourceID string) (content string, ok bool)

	// TokenEstimate estimates the token count of a source's content.
	TokenEstimate(ctx context.Context, sourceID string) int
}

// batch is one LLM call's worth of findings.
type batch struct {
	findings []Finding
}

// buildBatches groups findings into batches according to the configured
// mode. Findings that cannot be batched are returned as skipped and bypass
// validation entirely.
func buildBatches(ctx context.Context, cfg Config, provider SourceProvider, findings []Finding) ([]batch, []SkippedFinding) {
	switch cfg.BatchingMode {
	case BatchModeExtendedContext:
		return buildExtendedContextBatches(ctx, cfg, provider, findings)
	default:
		return buildCountBasedBatches(cfg, findings), nil
	}
}

// buildCountBasedBatches packs up to BatchSize independent findings per
// batch, preserving input order.
func buildCountBasedBatches(cfg Config, findings []Finding) []batch {
	var batches []batch
	for start := 0; start < len(findings); start += cfg.BatchSize {
		end := start + cfg.BatchSize
		if end > len(findings) {
			end = len(findings)
		}
		batches = append(batches, batch{findings: findings[start:end]})
	}
	return batches
}

// buildExtendedContextBatches groups findings by source and packs whole
// sources into batches whose combined estimate fits the context window.
// Sources whose single content exceeds the window are never batched; their
// findings are skipped as oversized.
func buildExtendedContextBatches(ctx context.Context, cfg Config, provider SourceProvider, findings []Finding) ([]batch, []SkippedFinding) {
	bySource := make(map[string][]Finding)
	for _, f := range findings {
		id := provider.SourceID(f)
		bySource[id] = append(bySource[id], f)
	}

	sourceIDs := make([]string, 0, len(bySource))
	for id := range bySource {
		sourceIDs = append(sourceIDs, id)
	}
	sort.Strings(sourceIDs)

	var (
		batches []batch
		skipped []SkippedFinding
		current batch
		used    int
	)

	flush := func() {
		if len(current.findings) > 0 {
			batches = append(batches, current)
			current = batch{}
			used = 0
		}
	}

	for _, sourceID := range sourceIDs {
		group := bySource[sourceID]

		if _, ok := provider.SourceContent(ctx, sourceID); !ok {
			for _, f := range group {
				skipped = append(skipped, SkippedFinding{
					FindingID: f.ID,
					Reason:    SkipReasonMissingContent,
					Detail:    fmt.Sprintf("no content for source %q", sourceID),
				})
			}
			continue
		}

		cost := provider.TokenEstimate(ctx, sourceID) + promptOverheadTokens
		if cost > cfg.ModelContextWindow {
			for _, f := range group {
				skipped = append(skipped, SkippedFinding{
					FindingID: f.ID,
					Reason:    SkipReasonOversizedSource,
					Detail:    fmt.Sprintf("source %q needs %d tokens, window is %d", sourceID, cost, cfg.ModelContextWindow),
				})
			}
			continue
		}

		if used+cost > cfg.ModelContextWindow {
			flush()
		}
		current.findings = append(current.findings, group...)
		used += cost
	}
	flush()

	return batches, skipped
}
