// Package anthropic provides an llm.ProviderAdapter backed by the Anthropic
// Messages API via github.com/anthropics/anthropic-sdk-go.
package anthropic

import (
	"context"
	"errors"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/veriflow/veriflow/pkg/llm"
)

// MessagesClient captures the subset of the Anthropic SDK used by the
// adapter. It is satisfied by *sdk.MessageService so tests can pass a mock.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Options configures the adapter.
type Options struct {
	// DefaultModel is used when the request does not name a model.
	DefaultModel string

	// MaxTokens is the default completion cap when the request does not set
	// one.
	MaxTokens int
}

// Adapter implements llm.ProviderAdapter on top of Anthropic Messages.
type Adapter struct {
	msg          MessagesClient
	defaultModel string
	maxTokens    int
}

// New builds an adapter from a Messages client and options.
func New(msg MessagesClient, opts Options) (*Adapter, error) {
	if msg == nil {
		return nil, errors.New("anthropic messages client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("default model identifier is required")
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &Adapter{
		msg:          msg,
		defaultModel: opts.DefaultModel,
		maxTokens:    maxTokens,
	}, nil
}

// NewFromAPIKey constructs an adapter using the default Anthropic HTTP
// client.
func NewFromAPIKey(apiKey, defaultModel string) (*Adapter, error) {
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}
	client := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&client.Messages, Options{DefaultModel: defaultModel})
}

// Name implements llm.ProviderAdapter.
func (a *Adapter) Name() string { return "anthropic" }

// Complete issues a Messages.New request and concatenates the text blocks of
// the response.
func (a *Adapter) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	model := req.Model
	if model == "" {
		model = a.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = a.maxTokens
	}

	prompt := req.Prompt
	if len(req.ResponseSchema) > 0 {
		// Steer the model towards schema-conforming JSON; the client still
		// validates the result before handing it back.
		prompt += "\n\nRespond with a single JSON value that conforms to this JSON Schema, with no surrounding prose:\n" +
			string(req.ResponseSchema)
	}

	msg, err := a.msg.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(model),
		MaxTokens: int64(maxTokens),
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return llm.Response{}, &llm.ProviderError{Provider: a.Name(), Message: "messages request failed", Err: err}
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" && block.Text != "" {
			sb.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return llm.Response{}, &llm.ProviderError{Provider: a.Name(), Message: "response contained no text"}
	}

	return llm.Response{
		Text:         extractJSON(text, len(req.ResponseSchema) > 0),
		Model:        string(msg.Model),
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}, nil
}

// extractJSON strips a Markdown code fence when the model wraps structured
// output despite instructions.
func extractJSON(text string, structured bool) string {
	if !structured {
		return text
	}
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
			trimmed = trimmed[:idx]
		}
		return strings.TrimSpace(trimmed)
	}
	return trimmed
}
