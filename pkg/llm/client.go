// Package llm provides a provider-agnostic LLM completion client with
// structured-output enforcement. Providers are registered as adapters; a
// middleware chain wraps completion calls for caching and instrumentation.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Request is a single completion request.
type Request struct {
	// Prompt is the full prompt text.
	Prompt string

	// ResponseSchema, when set, is a JSON Schema the response must satisfy.
	// The client validates the response before returning it; violations are
	// provider-level errors.
	ResponseSchema json.RawMessage

	// Model names the model to use. Empty selects the adapter default.
	Model string

	// Provider names the adapter to use. Empty selects the client default.
	Provider string

	// MaxTokens caps the completion length. Zero selects the adapter default.
	MaxTokens int
}

// Validate checks the request is well-formed.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return &ConfigurationError{Message: "prompt is empty"}
	}
	return nil
}

// Response is a completion result.
type Response struct {
	// Text is the raw completion text. When the request carried a response
	// schema, Text is guaranteed to be JSON satisfying it.
	Text string

	// Model is the model that produced the completion.
	Model string

	// InputTokens and OutputTokens report usage when the provider exposes it.
	InputTokens  int
	OutputTokens int
}

// ConfigurationError indicates a misconfigured client or request.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string { return e.Message }

// ProviderError indicates the provider failed or returned output violating
// the response schema.
type ProviderError struct {
	Provider string
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Message, e.Err)
	}
	return fmt.Sprintf("provider %s: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ProviderAdapter translates requests into one provider's wire protocol.
type ProviderAdapter interface {
	Name() string
	Complete(ctx context.Context, req Request) (Response, error)
}

// CompleteFunc is the shape of a completion call for middleware chaining.
type CompleteFunc func(ctx context.Context, req Request) (Response, error)

// Middleware wraps a completion call. Middleware is applied in registration
// order for the request phase and reverse order for the response phase.
type Middleware interface {
	WrapComplete(next CompleteFunc) CompleteFunc
}

// Service is the completion surface the validation engine depends on.
type Service interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// Client routes completion requests to registered provider adapters.
type Client struct {
	providers       map[string]ProviderAdapter
	defaultProvider string
	middleware      []Middleware
}

// NewClient creates a client with no providers registered.
func NewClient() *Client {
	return &Client{providers: map[string]ProviderAdapter{}}
}

// Register adds a provider adapter. The first registered adapter becomes the
// default.
func (c *Client) Register(adapter ProviderAdapter) {
	if c.providers == nil {
		c.providers = map[string]ProviderAdapter{}
	}
	c.providers[adapter.Name()] = adapter
	if c.defaultProvider == "" {
		c.defaultProvider = adapter.Name()
	}
}

// SetDefaultProvider overrides the default provider.
func (c *Client) SetDefaultProvider(name string) {
	c.defaultProvider = name
}

// Use appends middleware to the client.
func (c *Client) Use(mw ...Middleware) {
	c.middleware = append(c.middleware, mw...)
}

// Complete routes the request through the middleware chain to the selected
// adapter and enforces the response schema, if any.
func (c *Client) Complete(ctx context.Context, req Request) (Response, error) {
	if err := req.Validate(); err != nil {
		return Response{}, err
	}
	prov := req.Provider
	if prov == "" {
		prov = c.defaultProvider
	}
	if prov == "" {
		return Response{}, &ConfigurationError{Message: "no provider specified and no default provider configured"}
	}
	adapter, ok := c.providers[prov]
	if !ok {
		return Response{}, &ConfigurationError{Message: fmt.Sprintf("unknown provider: %s", prov)}
	}
	req.Provider = prov

	base := func(ctx context.Context, req Request) (Response, error) {
		resp, err := adapter.Complete(ctx, req)
		if err != nil {
			return Response{}, err
		}
		if len(req.ResponseSchema) > 0 {
			if err := validateResponse(resp.Text, req.ResponseSchema); err != nil {
				return Response{}, &ProviderError{
					Provider: prov,
					Message:  "response violates the response schema",
					Err:      err,
				}
			}
		}
		return resp, nil
	}

	handler := base
	for i := len(c.middleware) - 1; i >= 0; i-- {
		handler = c.middleware[i].WrapComplete(handler)
	}
	return handler(ctx, req)
}

// validateResponse checks that text is JSON satisfying the schema.
func validateResponse(text string, schemaJSON json.RawMessage) error {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("response.schema.json", strings.NewReader(string(schemaJSON))); err != nil {
		return fmt.Errorf("invalid response schema: %w", err)
	}
	schema, err := compiler.Compile("response.schema.json")
	if err != nil {
		return fmt.Errorf("invalid response schema: %w", err)
	}

	var value interface{}
	if err := json.Unmarshal([]byte(text), &value); err != nil {
		return fmt.Errorf("response is not valid JSON: %w", err)
	}
	return schema.Validate(value)
}
