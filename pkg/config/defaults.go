package config

const (
	defaultStoreDriver = "sqlite"

	defaultLLMProvider = "ollama"
	defaultLLMTarget   = "http://localhost:11434"
	defaultLLMModel    = "llama3.1"
	defaultMaxTokens   = 4096

	defaultSearchTarget = "http://localhost:8888"

	defaultConfidenceThreshold = 0.5

	defaultRelevanceFloor  = 0.3
	defaultSearchDelayMs   = 1500
	defaultResultsPerQuery = 10

	defaultEpisodicProvider    = "sqlitevec"
	defaultQdrantHost          = "localhost"
	defaultQdrantPort          = 6334
	defaultEmbeddingTarget     = "http://localhost:11434"
	defaultEmbeddingModel      = "nomic-embed-text"
	defaultEmbeddingDimensions = 768

	defaultEventsProvider = "nop"
	defaultEventsTopic    = "quill.stage.completed"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Store: StoreConfig{
			Driver: defaultStoreDriver,
		},
		LLM: LLMConfig{
			Provider:  defaultLLMProvider,
			Target:    defaultLLMTarget,
			Model:     defaultLLMModel,
			MaxTokens: defaultMaxTokens,
		},
		Search: SearchConfig{
			Target: defaultSearchTarget,
		},
		Extraction: ExtractionConfig{
			ConfidenceThreshold: defaultConfidenceThreshold,
		},
		Research: ResearchConfig{
			RelevanceFloor:  defaultRelevanceFloor,
			SearchDelayMs:   defaultSearchDelayMs,
			ResultsPerQuery: defaultResultsPerQuery,
		},
		Memory: MemoryConfig{
			Enabled:          true,
			EpisodicProvider: defaultEpisodicProvider,
			QdrantHost:       defaultQdrantHost,
			QdrantPort:       defaultQdrantPort,
		},
		Embedding: EmbeddingConfig{
			Target:     defaultEmbeddingTarget,
			Model:      defaultEmbeddingModel,
			Dimensions: defaultEmbeddingDimensions,
		},
		Events: EventsConfig{
			Provider: defaultEventsProvider,
			Topic:    defaultEventsTopic,
		},
	}
}
