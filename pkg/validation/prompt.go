package validation

import (
	"context"
	"fmt"
	"strings"
)

// PromptBuilder produces the validation prompt for one batch. The prompt
// must echo each finding's UUID in a "Finding [<UUID>]:" line so results can
// be joined back by ID.
type PromptBuilder interface {
	Build(ctx context.Context, findings []Finding, provider SourceProvider) string
}

// DefaultPromptBuilder renders the instructions, each source's content (when
// the provider can fetch it), and one line per finding.
type DefaultPromptBuilder struct{}

// Build implements PromptBuilder.
func (DefaultPromptBuilder) Build(ctx context.Context, findings []Finding, provider SourceProvider) string {
	var sb strings.Builder

	sb.WriteString("You are reviewing pattern-matched compliance findings. ")
	sb.WriteString("For each finding, decide whether it is a TRUE_POSITIVE or a FALSE_POSITIVE, ")
	sb.WriteString("with a confidence in [0,1], a short reasoning, and a recommended action ")
	sb.WriteString("(keep, discard, or flag_for_review). Reference findings by their exact ID.\n\n")

	seen := make(map[string]bool)
	for _, f := range findings {
		sourceID := provider.SourceID(f)
		if seen[sourceID] {
			continue
		}
		seen[sourceID] = true
		if content, ok := provider.SourceContent(ctx, sourceID); ok {
			sb.WriteString(fmt.Sprintf("=== Source %s ===\n%s\n\n", sourceID, content))
		}
	}

	sb.WriteString("Findings under review:\n")
	for _, f := range findings {
		sb.WriteString(fmt.Sprintf("Finding [%s]: category=%s source=%s", f.ID, f.Category, f.Source))
		for _, p := range f.MatchedPatterns {
			sb.WriteString(fmt.Sprintf(" pattern=%q(x%d)", p.Pattern, p.Count))
		}
		sb.WriteString("\n")
		for _, ev := range f.Evidence {
			if ev.Line > 0 {
				sb.WriteString(fmt.Sprintf("  line %d: %s\n", ev.Line, ev.Excerpt))
			} else {
				sb.WriteString(fmt.Sprintf("  %s\n", ev.Excerpt))
			}
		}
	}

	return sb.String()
}
