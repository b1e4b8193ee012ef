package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/nocturnelabs/coderag/internal/chunk"
	"github.com/nocturnelabs/coderag/internal/config"
	"github.com/nocturnelabs/coderag/internal/embeddings"
	"github.com/nocturnelabs/coderag/internal/fetch"
	"github.com/nocturnelabs/coderag/internal/ghclient"
	"github.com/nocturnelabs/coderag/internal/jobs"
	"github.com/nocturnelabs/coderag/internal/llm"
	"github.com/nocturnelabs/coderag/internal/ragpipeline"
	"github.com/nocturnelabs/coderag/internal/retriever"
	"github.com/nocturnelabs/coderag/internal/store"
)

// createEmbedderFromConfig creates an embeddings.Embedder based on config.
// buildEngine calls it for the index, query, server, and serve commands.
func createEmbedderFromConfig(cfg *config.Config) (embeddings.Embedder, error) {
	provider := cfg.EmbeddingProvider
	if provider == "" {
		provider = cfg.Provider
	}
	model := cfg.EmbeddingModel
	if model == "" {
		preset := config.GetPreset(provider, cfg.Quality)
		model = preset.EmbeddingModel
	}

	switch provider {
	case config.ProviderOpenAI:
		apiKey := firstNonEmpty(cfg.EmbeddingAPIKey, os.Getenv(config.APIKeyEnvVar(config.ProviderOpenAI)))
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable is required for OpenAI embeddings")
		}
		return embeddings.NewOpenAIEmbedder(apiKey, embeddings.OpenAIModel(model)), nil
	case config.ProviderOllama:
		return embeddings.NewOllamaEmbedder(model, embeddings.RequiredDimensions, "")
	case config.ProviderGoogle:
		apiKey := firstNonEmpty(cfg.EmbeddingAPIKey, os.Getenv(config.APIKeyEnvVar(config.ProviderGoogle)))
		if apiKey == "" {
			return nil, fmt.Errorf("GOOGLE_API_KEY environment variable is required for Google embeddings")
		}
		return embeddings.NewGoogleEmbedder(apiKey, embeddings.GoogleModel(model)), nil
	default:
		// For providers without native embeddings, fall back to OpenAI.
		apiKey := firstNonEmpty(cfg.EmbeddingAPIKey, os.Getenv(config.APIKeyEnvVar(config.ProviderOpenAI)))
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required (used for embeddings when provider is %s)", provider)
		}
		return embeddings.NewOpenAIEmbedder(apiKey, embeddings.OpenAIModel(model)), nil
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// createLLMProviderFromConfig creates an LLM provider based on config settings.
func createLLMProviderFromConfig(cfg *config.Config) (llm.Provider, error) {
	return llm.NewProvider(string(cfg.Provider), cfg.Model)
}

// loadConfig loads and validates the config, providing a user-friendly error.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w\nRun `coderag init` to create a config file", err)
	}
	return cfg, nil
}

// engine bundles the RAG components shared by the server and stdio MCP
// commands: a Postgres-backed store, a job runner that indexes
// repositories into it, and a pipeline that answers questions against it.
type engine struct {
	store    *store.Store
	runner   *jobs.Runner
	pipeline *ragpipeline.Pipeline
}

// buildEngine wires the Fetcher, Chunker, Embedder, Store, Retriever, LLM
// provider, Job Runner, and Pipeline Streamer from config, the shared
// construction path for `coderag server` and `coderag serve`.
func buildEngine(ctx context.Context, cfg *config.Config) (*engine, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required to run the RAG engine")
	}

	st, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	embedder, err := createEmbedderFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	llmProvider, err := createLLMProviderFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating LLM provider: %w", err)
	}

	ghToken := firstNonEmpty(cfg.GitHostToken, os.Getenv("GIT_HOST_TOKEN"))
	fetcher := fetch.New(ghclient.New(ghToken))
	chunker := chunk.NewDefault()

	workerConcurrency := cfg.RAG.WorkerConcurrency
	runner := jobs.New(ctx, workerConcurrency, fetcher, chunker, embedder, st)

	rtr := retriever.New(embedder, st)
	pipeline := ragpipeline.New(rtr, llmProvider, cfg.Model, cfg.RAG.ContextCharBudget)

	return &engine{store: st, runner: runner, pipeline: pipeline}, nil
}
