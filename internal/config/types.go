package config

// QualityTier controls the model selection and trade-off between speed/cost and quality.
type QualityTier string

const (
	QualityLite   QualityTier = "lite"
	QualityNormal QualityTier = "normal"
	QualityMax    QualityTier = "max"
)

// ProviderType identifies an LLM provider.
type ProviderType string

const (
	ProviderAnthropic ProviderType = "anthropic"
	ProviderOpenAI    ProviderType = "openai"
	ProviderGoogle    ProviderType = "google"
	ProviderOllama    ProviderType = "ollama"
	ProviderMiniMax   ProviderType = "minimax"
	ProviderOpenRouter ProviderType = "openrouter"
)

// Config is the top-level coderag configuration, corresponding to .autodoc.yml.
type Config struct {
	Provider          ProviderType `yaml:"provider" koanf:"provider"`
	Model             string       `yaml:"model" koanf:"model"`
	EmbeddingProvider ProviderType `yaml:"embedding_provider" koanf:"embedding_provider"`
	EmbeddingModel    string       `yaml:"embedding_model" koanf:"embedding_model"`
	Quality           QualityTier  `yaml:"quality" koanf:"quality"`
	OutputDir         string       `yaml:"output_dir" koanf:"output_dir"`
	Logo              string       `yaml:"logo" koanf:"logo"`
	Include           []string     `yaml:"include" koanf:"include"`
	Exclude           []string     `yaml:"exclude" koanf:"exclude"`
	ContextFile       string       `yaml:"context_file" koanf:"context_file"`
	CI                CIConfig     `yaml:"ci" koanf:"ci"`
	MaxConcurrency    int          `yaml:"max_concurrency" koanf:"max_concurrency"`
	MaxCostUSD        float64      `yaml:"max_cost_usd" koanf:"max_cost_usd"`
	RAG               RAGConfig    `yaml:"rag" koanf:"rag"`

	// External system locations, conventionally supplied via env vars
	// rather than the YAML file: DatabaseURL from DATABASE_URL, QueueURL
	// from QUEUE_URL (reserved — unused until an external queue backs
	// the job runner), GitHostToken from GIT_HOST_TOKEN, LLMAPIKey from
	// LLM_API_KEY, EmbeddingAPIKey from EMBEDDING_API_KEY.
	DatabaseURL     string `yaml:"-" koanf:"-"`
	QueueURL        string `yaml:"-" koanf:"-"`
	GitHostToken    string `yaml:"-" koanf:"-"`
	LLMAPIKey       string `yaml:"-" koanf:"-"`
	EmbeddingAPIKey string `yaml:"-" koanf:"-"`
}

// CIConfig holds CI-specific settings.
type CIConfig struct {
	AutoCommit  bool `yaml:"auto_commit" koanf:"auto_commit"`
	FailOnError bool `yaml:"fail_on_error" koanf:"fail_on_error"`
}

// RAGConfig holds the retrieval-augmented generation settings. buildEngine
// applies ContextCharBudget (the context assembler's character budget) and
// WorkerConcurrency (the job runner's worker pool width). TopK,
// CandidateMultiplier, MinScore and MaxChunkChars are loaded but not passed
// on: the retriever and chunker use their own defaults (8, 3, 0.3, 8000).
type RAGConfig struct {
	TopK                int     `yaml:"top_k" koanf:"top_k"`
	CandidateMultiplier int     `yaml:"candidate_multiplier" koanf:"candidate_multiplier"`
	MinScore            float64 `yaml:"min_score" koanf:"min_score"`
	MaxChunkChars       int     `yaml:"max_chunk_chars" koanf:"max_chunk_chars"`
	ContextCharBudget   int     `yaml:"context_char_budget" koanf:"context_char_budget"`
	WorkerConcurrency   int     `yaml:"worker_concurrency" koanf:"worker_concurrency"`
}
