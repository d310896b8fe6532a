// Package analysers provides the built-in processors that derive findings
// from connector output. The pattern analyser matches regex category rules
// over extracted sources and refines the matches through LLM validation.
package analysers

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/veriflow/veriflow/pkg/connectors"
	"github.com/veriflow/veriflow/pkg/engine"
	"github.com/veriflow/veriflow/pkg/llm"
	"github.com/veriflow/veriflow/pkg/validation"
)

// SchemaFindings is the analyser output schema name.
const SchemaFindings = "analysis.findings"

// maxExcerptLength bounds evidence excerpts.
const maxExcerptLength = 160

// PatternOptions configures the pattern analyser. Validation engine options
// (enableLlmValidation, llmBatchSize, llmValidationMode, batchingMode,
// batching.modelContextWindow, model) are read from the same property map.
type PatternOptions struct {
	// Rules maps category names to regex patterns. A source matching any
	// pattern of a category yields one finding for that (source, category)
	// pair.
	Rules map[string][]string `json:"rules" validate:"required,min=1"`
}

// category is one compiled rule set.
type category struct {
	name     string
	patterns []*regexp.Regexp
}

// PatternAnalyser matches category rules over the sources of its input
// message and emits a findings message. When LLM validation is enabled the
// raw findings are refined before emission and the outcome summary is
// embedded under "validation_summary".
type PatternAnalyser struct {
	categories []category
	service    llm.Service
	cfg        validation.Config
	logger     zerolog.Logger
}

// sourceSet holds one input's extracted sources, addressable by ID.
type sourceSet struct {
	content map[string]string
}

func (s sourceSet) SourceID(f validation.Finding) string { return f.Source }

func (s sourceSet) SourceContent(_ context.Context, sourceID string) (string, bool) {
	content, ok := s.content[sourceID]
	return content, ok
}

// TokenEstimate uses the common four-characters-per-token heuristic.
func (s sourceSet) TokenEstimate(_ context.Context, sourceID string) int {
	return len(s.content[sourceID]) / 4
}

// Name implements engine.Processor.
func (a *PatternAnalyser) Name() string { return "pattern" }

// InputRequirements implements engine.Processor. Each supported input schema
// is one acceptable single-input combination.
func (a *PatternAnalyser) InputRequirements() [][]engine.InputRequirement {
	return [][]engine.InputRequirement{
		{{SchemaName: connectors.SchemaSourceFiles, Version: "1.0.0"}},
		{{SchemaName: connectors.SchemaSourceFiles, Version: "1.1.0"}},
		{{SchemaName: connectors.SchemaDBTables, Version: "1.0.0"}},
	}
}

// SupportedOutputSchemas implements engine.Processor.
func (a *PatternAnalyser) SupportedOutputSchemas() []engine.Schema {
	return []engine.Schema{engine.NewSchema(SchemaFindings, 1, 0, 0)}
}

// Process implements engine.Processor.
func (a *PatternAnalyser) Process(ctx context.Context, inputs []engine.Message, output engine.Schema) (engine.Message, error) {
	if len(inputs) != 1 {
		return engine.Message{}, engine.NewProcessingError(
			fmt.Sprintf("pattern analyser takes exactly one input, got %d", len(inputs)), nil).
			WithComponent(a.Name())
	}

	sources, err := decodeSources(inputs[0])
	if err != nil {
		return engine.Message{}, engine.NewProcessingError("decoding input sources failed", err).
			WithComponent(a.Name())
	}

	findings := a.match(sources)
	a.logger.Debug().
		Int("sources", len(sources.content)).
		Int("findings", len(findings)).
		Msg("pattern matching complete")

	outcome := validation.NewEngine(a.cfg, a.service, sources,
		validation.WithEngineLogger(a.logger)).Validate(ctx, findings)

	content, err := findingsContent(outcome)
	if err != nil {
		return engine.Message{}, engine.NewProcessingError("encoding findings failed", err).
			WithComponent(a.Name())
	}

	return engine.Message{
		ID:      uuid.NewString(),
		Schema:  output,
		Content: content,
		Source:  inputs[0].Source,
	}, nil
}

// match runs every category over every source, in sorted source order.
func (a *PatternAnalyser) match(sources sourceSet) []validation.Finding {
	ids := make([]string, 0, len(sources.content))
	for id := range sources.content {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var findings []validation.Finding
	for _, id := range ids {
		content := sources.content[id]
		lines := lineStarts(content)
		for _, cat := range a.categories {
			var (
				evidence []validation.Evidence
				matched  []validation.MatchedPattern
			)
			for _, re := range cat.patterns {
				locs := re.FindAllStringIndex(content, -1)
				if len(locs) == 0 {
					continue
				}
				matched = append(matched, validation.MatchedPattern{
					Pattern: re.String(),
					Count:   len(locs),
				})
				for _, loc := range locs {
					line := lines.lineAt(loc[0])
					evidence = append(evidence, validation.Evidence{
						Line:    line,
						Excerpt: excerpt(lines.lineText(content, line)),
					})
				}
			}
			if len(matched) == 0 {
				continue
			}
			findings = append(findings, validation.Finding{
				ID:              uuid.NewString(),
				Source:          id,
				Category:        cat.name,
				Evidence:        evidence,
				MatchedPatterns: matched,
			})
		}
	}
	return findings
}

// decodeSources reads the "sources" list of a connector message.
func decodeSources(msg engine.Message) (sourceSet, error) {
	raw, ok := msg.Content["sources"]
	if !ok {
		return sourceSet{}, fmt.Errorf("message %s has no sources list", msg.ID)
	}
	list, ok := raw.([]interface{})
	if !ok {
		return sourceSet{}, fmt.Errorf("sources is %T, expected a list", raw)
	}

	set := sourceSet{content: make(map[string]string, len(list))}
	for i, e := range list {
		entry, ok := e.(map[string]interface{})
		if !ok {
			return sourceSet{}, fmt.Errorf("source %d is %T, expected an object", i, e)
		}
		id, _ := entry["id"].(string)
		content, _ := entry["content"].(string)
		if id == "" {
			return sourceSet{}, fmt.Errorf("source %d has no id", i)
		}
		set.content[id] = content
	}
	return set, nil
}

// findingsContent encodes the validation outcome into message content via a
// JSON round trip, so stored and in-memory messages have the same shape.
func findingsContent(outcome validation.Outcome) (map[string]interface{}, error) {
	raw, err := json.Marshal(outcome.KeptFindings)
	if err != nil {
		return nil, err
	}
	var findings []interface{}
	if err := json.Unmarshal(raw, &findings); err != nil {
		return nil, err
	}
	if findings == nil {
		findings = []interface{}{}
	}
	return map[string]interface{}{
		"findings":           findings,
		"validation_summary": outcome.Summary(),
	}, nil
}

// lineIndex maps byte offsets to 1-based line numbers.
type lineIndex []int

func lineStarts(content string) lineIndex {
	starts := lineIndex{0}
	for i := 0; i < len(content); i++ {
		if content[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

func (l lineIndex) lineAt(offset int) int {
	n := sort.Search(len(l), func(i int) bool { return l[i] > offset })
	return n
}

// lineText returns the text of a 1-based line without its trailing newline.
func (l lineIndex) lineText(content string, line int) string {
	start := l[line-1]
	end := len(content)
	if line < len(l) {
		end = l[line] - 1
	}
	return content[start:end]
}

func excerpt(line string) string {
	line = strings.TrimSpace(line)
	if len(line) > maxExcerptLength {
		return line[:maxExcerptLength] + "..."
	}
	return line
}
