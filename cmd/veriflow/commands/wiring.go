package commands

import (
	"context"
	"os"

	"github.com/rs/zerolog"

	"github.com/veriflow/veriflow/pkg/analysers"
	"github.com/veriflow/veriflow/pkg/components"
	"github.com/veriflow/veriflow/pkg/connectors"
	"github.com/veriflow/veriflow/pkg/container"
	"github.com/veriflow/veriflow/pkg/engine"
	"github.com/veriflow/veriflow/pkg/llm"
	"github.com/veriflow/veriflow/pkg/llm/anthropic"
	"github.com/veriflow/veriflow/pkg/stores"
)

// defaultModel is used when no model is configured on the analyser.
const defaultModel = "claude-sonnet-4-5"

// buildLLMService wires the LLM client from the environment. Without an
// ANTHROPIC_API_KEY the service is nil; validation then degrades fail-safe
// and keeps every finding.
func buildLLMService(logger zerolog.Logger) llm.Service {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		logger.Debug().Msg("ANTHROPIC_API_KEY not set, llm validation unavailable")
		return nil
	}

	adapter, err := anthropic.NewFromAPIKey(apiKey, defaultModel)
	if err != nil {
		logger.Warn().Err(err).Msg("anthropic adapter setup failed, llm validation unavailable")
		return nil
	}

	client := llm.NewClient()
	client.Register(adapter)
	client.Use(llm.NewCompletionCache())
	return client
}

// buildRegistry registers the built-in connectors and processors.
func buildRegistry(service llm.Service, logger zerolog.Logger) (*components.Registry, error) {
	registry := components.NewRegistry()

	connectorFactories := []engine.ConnectorFactory{
		connectors.StaticFactory{},
		connectors.FilesystemFactory{},
		connectors.SQLiteFactory{},
	}
	for _, f := range connectorFactories {
		if err := registry.RegisterConnector(f); err != nil {
			return nil, err
		}
	}

	if err := registry.RegisterProcessor(analysers.PatternFactory{
		Service: service,
		Logger:  logger.With().Str("component", "pattern").Logger(),
	}); err != nil {
		return nil, err
	}

	return registry, nil
}

// buildContainer registers the artifact store. An empty path selects the
// transient in-memory store; a path selects a shared SQLite store.
func buildContainer(ctx context.Context, storePath string) (*container.Container, func(), error) {
	c := container.New()

	if storePath == "" {
		container.Register[engine.ArtifactStore](c, func(*container.Container) (engine.ArtifactStore, error) {
			return stores.NewMemoryStore(), nil
		}, container.Transient)
		return c, func() {}, nil
	}

	store, err := stores.NewSQLiteStore(stores.SQLiteConfig{Path: storePath})
	if err != nil {
		return nil, nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, nil, err
	}
	container.RegisterInstance[engine.ArtifactStore](c, store)
	return c, func() { _ = store.Close() }, nil
}
