package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// RunWizard runs a short interactive prompt sequence and returns the
// resulting Config. It also saves the config to .autodoc.yml.
func RunWizard() (*Config, error) {
	fmt.Println("Welcome to coderag! Let's configure your engine.")
	fmt.Println()

	reader := bufio.NewReader(os.Stdin)

	provider := ProviderType(promptChoice(reader, "LLM provider", []string{"anthropic", "openai", "google", "ollama"}, string(ProviderAnthropic)))
	quality := QualityTier(promptChoice(reader, "Quality tier (lite/normal/max)", []string{"lite", "normal", "max"}, string(QualityNormal)))

	preset := GetPreset(provider, quality)

	cfg := &Config{
		Provider:          provider,
		Model:             preset.Model,
		EmbeddingProvider: embeddingProviderFor(provider),
		EmbeddingModel:    preset.EmbeddingModel,
		Quality:           quality,
		OutputDir:         "docs",
		Include:           []string{"**"},
		Exclude:           DefaultExcludes,
		MaxConcurrency:    5,
		MaxCostUSD:        10.0,
		CI: CIConfig{
			AutoCommit:  false,
			FailOnError: true,
		},
		RAG: RAGConfig{
			TopK:                8,
			CandidateMultiplier: 3,
			MinScore:            0.3,
			MaxChunkChars:       8000,
			ContextCharBudget:   24000,
			WorkerConcurrency:   2,
		},
	}

	configPath := ".autodoc.yml"
	if err := cfg.Save(configPath); err != nil {
		return nil, fmt.Errorf("saving config: %w", err)
	}
	fmt.Printf("\nConfiguration saved to %s\n", configPath)

	fmt.Println("\nBefore running `coderag index` or `coderag server`, set:")
	if envVar := APIKeyEnvVar(provider); envVar != "" && os.Getenv(envVar) == "" {
		fmt.Printf("  %s        — your %s API key\n", envVar, provider)
	}
	fmt.Println("  DATABASE_URL       — Postgres connection string for the chunk store")
	fmt.Println("  GIT_HOST_TOKEN     — GitHub token for fetching private repositories (optional)")

	return cfg, nil
}

// embeddingProviderFor returns the default embedding provider for a given
// LLM provider. OpenAI embeddings are used for all cloud providers.
func embeddingProviderFor(p ProviderType) ProviderType {
	if p == ProviderOllama {
		return ProviderOllama
	}
	return ProviderOpenAI
}

// promptChoice reads a line from reader, echoing choices and falling back
// to def on empty input or a read error.
func promptChoice(reader *bufio.Reader, label string, choices []string, def string) string {
	fmt.Printf("%s [%s] (default %s): ", label, strings.Join(choices, "/"), def)
	line, err := reader.ReadString('\n')
	if err != nil {
		return def
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return def
	}
	for _, c := range choices {
		if strings.EqualFold(c, line) {
			return c
		}
	}
	return def
}
