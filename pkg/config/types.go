package config

import (
	"fmt"
	"strconv"
)

// Config represents the persistent quill configuration stored as config.toml
// in the .quill/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version    int              `toml:"version"`
	Store      StoreConfig      `toml:"store"`
	LLM        LLMConfig        `toml:"llm"`
	Search     SearchConfig     `toml:"search"`
	Extraction ExtractionConfig `toml:"extraction"`
	Research   ResearchConfig   `toml:"research"`
	Memory     MemoryConfig     `toml:"memory"`
	Embedding  EmbeddingConfig  `toml:"embedding"`
	Events     EventsConfig     `toml:"events"`
}

// StoreConfig holds proposal record store settings.
type StoreConfig struct {
	// Driver selects the backend: "memory", "sqlite", or "postgres".
	Driver      string `toml:"driver,omitempty"`
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
}

// LLMConfig holds generation provider settings.
type LLMConfig struct {
	// Provider selects the backend: "ollama" or "anthropic".
	Provider string `toml:"provider,omitempty"`
	Target   string `toml:"target,omitempty"`
	Model    string `toml:"model,omitempty"`

	MaxTokens uint `toml:"max_tokens,omitempty"`

	// InputPerMTok and OutputPerMTok price tokens in USD per million.
	InputPerMTok  float64 `toml:"input_per_mtok,omitempty"`
	OutputPerMTok float64 `toml:"output_per_mtok,omitempty"`
}

// SearchConfig holds web search settings.
type SearchConfig struct {
	// Target is the SearxNG instance URL.
	Target string `toml:"target,omitempty"`
}

// ExtractionConfig holds metadata extraction settings.
type ExtractionConfig struct {
	ConfidenceThreshold float64 `toml:"confidence_threshold,omitempty"`
}

// ResearchConfig holds research execution settings.
type ResearchConfig struct {
	RelevanceFloor  float64 `toml:"relevance_floor,omitempty"`
	SearchDelayMs   uint    `toml:"search_delay_ms,omitempty"`
	ResultsPerQuery uint    `toml:"results_per_query,omitempty"`
}

// MemoryConfig holds memory tier settings.
type MemoryConfig struct {
	Enabled bool `toml:"enabled,omitempty"`

	// SQLitePath backs the persistent tier.
	SQLitePath string `toml:"sqlite_path,omitempty"`

	// EpisodicProvider selects the episodic backend: "sqlitevec" or "qdrant".
	EpisodicProvider string `toml:"episodic_provider,omitempty"`
	QdrantHost       string `toml:"qdrant_host,omitempty"`
	QdrantPort       uint   `toml:"qdrant_port,omitempty"`
}

// EmbeddingConfig holds embedding provider settings for the episodic tier.
type EmbeddingConfig struct {
	Target     string `toml:"target,omitempty"`
	Model      string `toml:"model,omitempty"`
	Dimensions uint   `toml:"dimensions,omitempty"`
}

// EventsConfig holds stage event publication settings.
type EventsConfig struct {
	// Provider selects the backend: "nop" or "kafka".
	Provider string `toml:"provider,omitempty"`

	// Brokers is a comma-separated Kafka broker list.
	Brokers string `toml:"brokers,omitempty"`
	Topic   string `toml:"topic,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func uintKey(get func(c *Config) *uint, name string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *get(c) == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(*get(c)), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*get(c) = uint(n)
			return nil
		},
	}
}

func floatKey(get func(c *Config) *float64, name string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *get(c) == 0 {
				return ""
			}
			return strconv.FormatFloat(*get(c), 'f', -1, 64)
		},
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*get(c) = f
			return nil
		},
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"store.driver": {
		get: func(c *Config) string { return c.Store.Driver },
		set: func(c *Config, v string) error { c.Store.Driver = v; return nil },
	},
	"store.sqlite_path": {
		get: func(c *Config) string { return c.Store.SQLitePath },
		set: func(c *Config, v string) error { c.Store.SQLitePath = v; return nil },
	},
	"store.postgres_dsn": {
		get: func(c *Config) string { return c.Store.PostgresDSN },
		set: func(c *Config, v string) error { c.Store.PostgresDSN = v; return nil },
	},
	"llm.provider": {
		get: func(c *Config) string { return c.LLM.Provider },
		set: func(c *Config, v string) error { c.LLM.Provider = v; return nil },
	},
	"llm.target": {
		get: func(c *Config) string { return c.LLM.Target },
		set: func(c *Config, v string) error { c.LLM.Target = v; return nil },
	},
	"llm.model": {
		get: func(c *Config) string { return c.LLM.Model },
		set: func(c *Config, v string) error { c.LLM.Model = v; return nil },
	},
	"llm.max_tokens":      uintKey(func(c *Config) *uint { return &c.LLM.MaxTokens }, "llm.max_tokens"),
	"llm.input_per_mtok":  floatKey(func(c *Config) *float64 { return &c.LLM.InputPerMTok }, "llm.input_per_mtok"),
	"llm.output_per_mtok": floatKey(func(c *Config) *float64 { return &c.LLM.OutputPerMTok }, "llm.output_per_mtok"),
	"search.target": {
		get: func(c *Config) string { return c.Search.Target },
		set: func(c *Config, v string) error { c.Search.Target = v; return nil },
	},
	"extraction.confidence_threshold": floatKey(
		func(c *Config) *float64 { return &c.Extraction.ConfidenceThreshold }, "extraction.confidence_threshold"),
	"research.relevance_floor": floatKey(
		func(c *Config) *float64 { return &c.Research.RelevanceFloor }, "research.relevance_floor"),
	"research.search_delay_ms": uintKey(
		func(c *Config) *uint { return &c.Research.SearchDelayMs }, "research.search_delay_ms"),
	"research.results_per_query": uintKey(
		func(c *Config) *uint { return &c.Research.ResultsPerQuery }, "research.results_per_query"),
	"memory.enabled": {
		get: func(c *Config) string { return strconv.FormatBool(c.Memory.Enabled) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for memory.enabled: %w", err)
			}
			c.Memory.Enabled = b
			return nil
		},
	},
	"memory.sqlite_path": {
		get: func(c *Config) string { return c.Memory.SQLitePath },
		set: func(c *Config, v string) error { c.Memory.SQLitePath = v; return nil },
	},
	"memory.episodic_provider": {
		get: func(c *Config) string { return c.Memory.EpisodicProvider },
		set: func(c *Config, v string) error { c.Memory.EpisodicProvider = v; return nil },
	},
	"memory.qdrant_host": {
		get: func(c *Config) string { return c.Memory.QdrantHost },
		set: func(c *Config, v string) error { c.Memory.QdrantHost = v; return nil },
	},
	"memory.qdrant_port": uintKey(func(c *Config) *uint { return &c.Memory.QdrantPort }, "memory.qdrant_port"),
	"embedding.target": {
		get: func(c *Config) string { return c.Embedding.Target },
		set: func(c *Config, v string) error { c.Embedding.Target = v; return nil },
	},
	"embedding.model": {
		get: func(c *Config) string { return c.Embedding.Model },
		set: func(c *Config, v string) error { c.Embedding.Model = v; return nil },
	},
	"embedding.dimensions": uintKey(func(c *Config) *uint { return &c.Embedding.Dimensions }, "embedding.dimensions"),
	"events.provider": {
		get: func(c *Config) string { return c.Events.Provider },
		set: func(c *Config, v string) error { c.Events.Provider = v; return nil },
	},
	"events.brokers": {
		get: func(c *Config) string { return c.Events.Brokers },
		set: func(c *Config, v string) error { c.Events.Brokers = v; return nil },
	},
	"events.topic": {
		get: func(c *Config) string { return c.Events.Topic },
		set: func(c *Config, v string) error { c.Events.Topic = v; return nil },
	},
}
