package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/veriflow/veriflow/pkg/llm"
)

// stubAdapter returns canned responses and records what it saw.
type stubAdapter struct {
	name     string
	response llm.Response
	err      error
	calls    int
	lastReq  llm.Request
}

func (a *stubAdapter) Name() string { return a.name }

func (a *stubAdapter) Complete(_ context.Context, req llm.Request) (llm.Response, error) {
	a.calls++
	a.lastReq = req
	if a.err != nil {
		return llm.Response{}, a.err
	}
	return a.response, nil
}

// tagMiddleware appends its tag on the way in, recording application order.
type tagMiddleware struct {
	tag   string
	trace *[]string
}

func (m *tagMiddleware) WrapComplete(next llm.CompleteFunc) llm.CompleteFunc {
	return func(ctx context.Context, req llm.Request) (llm.Response, error) {
		*m.trace = append(*m.trace, m.tag)
		return next(ctx, req)
	}
}

func TestCompleteRoutesToDefaultProvider(t *testing.T) {
	first := &stubAdapter{name: "anthropic", response: llm.Response{Text: "hello", Model: "m"}}
	second := &stubAdapter{name: "other", response: llm.Response{Text: "wrong"}}

	client := llm.NewClient()
	client.Register(first)
	client.Register(second)

	resp, err := client.Complete(context.Background(), llm.Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if resp.Text != "hello" {
		t.Errorf("Text = %q", resp.Text)
	}
	if first.calls != 1 || second.calls != 0 {
		t.Errorf("calls = %d/%d, the first registered adapter is the default", first.calls, second.calls)
	}
	if first.lastReq.Provider != "anthropic" {
		t.Errorf("adapter saw provider %q", first.lastReq.Provider)
	}
}

func TestCompleteExplicitProvider(t *testing.T) {
	first := &stubAdapter{name: "anthropic", response: llm.Response{Text: "a"}}
	second := &stubAdapter{name: "other", response: llm.Response{Text: "b"}}

	client := llm.NewClient()
	client.Register(first)
	client.Register(second)

	resp, err := client.Complete(context.Background(), llm.Request{Prompt: "hi", Provider: "other"})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if resp.Text != "b" || second.calls != 1 {
		t.Errorf("request not routed to the named provider")
	}
}

func TestCompleteConfigurationErrors(t *testing.T) {
	client := llm.NewClient()
	client.Register(&stubAdapter{name: "anthropic", response: llm.Response{Text: "x"}})

	cases := map[string]llm.Request{
		"empty prompt":     {Prompt: "   "},
		"unknown provider": {Prompt: "hi", Provider: "ghost"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := client.Complete(context.Background(), req)
			var cfgErr *llm.ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Errorf("expected a ConfigurationError, got %v", err)
			}
		})
	}
}

func TestCompleteNoProviderConfigured(t *testing.T) {
	client := llm.NewClient()

	_, err := client.Complete(context.Background(), llm.Request{Prompt: "hi"})
	var cfgErr *llm.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Errorf("expected a ConfigurationError, got %v", err)
	}
}

func TestCompleteEnforcesResponseSchema(t *testing.T) {
	schema := json.RawMessage(`{
		"type": "object",
		"required": ["ok"],
		"properties": {"ok": {"type": "boolean"}}
	}`)

	adapter := &stubAdapter{name: "anthropic", response: llm.Response{Text: `{"ok": true}`}}
	client := llm.NewClient()
	client.Register(adapter)

	resp, err := client.Complete(context.Background(), llm.Request{Prompt: "hi", ResponseSchema: schema})
	if err != nil {
		t.Fatalf("conforming response rejected: %v", err)
	}
	if resp.Text != `{"ok": true}` {
		t.Errorf("Text = %q", resp.Text)
	}

	for name, text := range map[string]string{
		"not json":         "sure, here you go",
		"schema violation": `{"ok": "yes"}`,
	} {
		t.Run(name, func(t *testing.T) {
			adapter.response = llm.Response{Text: text}
			_, err := client.Complete(context.Background(), llm.Request{Prompt: "hi", ResponseSchema: schema})
			var provErr *llm.ProviderError
			if !errors.As(err, &provErr) {
				t.Errorf("expected a ProviderError, got %v", err)
			}
		})
	}
}

func TestCompleteAdapterErrorPassesThrough(t *testing.T) {
	boom := &llm.ProviderError{Provider: "anthropic", Message: "rate limited"}
	client := llm.NewClient()
	client.Register(&stubAdapter{name: "anthropic", err: boom})

	_, err := client.Complete(context.Background(), llm.Request{Prompt: "hi"})
	if !errors.Is(err, boom) {
		t.Errorf("adapter error lost: %v", err)
	}
}

func TestMiddlewareAppliedInRegistrationOrder(t *testing.T) {
	var trace []string

	client := llm.NewClient()
	client.Register(&stubAdapter{name: "anthropic", response: llm.Response{Text: "x"}})
	client.Use(&tagMiddleware{tag: "outer", trace: &trace})
	client.Use(&tagMiddleware{tag: "inner", trace: &trace})

	if _, err := client.Complete(context.Background(), llm.Request{Prompt: "hi"}); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if len(trace) != 2 || trace[0] != "outer" || trace[1] != "inner" {
		t.Errorf("middleware order = %v", trace)
	}
}
