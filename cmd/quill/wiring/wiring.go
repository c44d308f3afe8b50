// Package wiring builds the proposal pipeline object graph from loaded
// configuration: record store, LLM generator, searcher, memory tiers, event
// publisher, worker pool, and the orchestrator on top of them.
package wiring

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/quillworks/quill/pkg/config"
	"github.com/quillworks/quill/pkg/credentials"
	"github.com/quillworks/quill/pkg/dotdir"
	embedollama "github.com/quillworks/quill/pkg/embeddings/ollama"
	"github.com/quillworks/quill/pkg/eventstream"
	"github.com/quillworks/quill/pkg/eventstream/kafka"
	"github.com/quillworks/quill/pkg/eventstream/nop"
	"github.com/quillworks/quill/pkg/extract"
	"github.com/quillworks/quill/pkg/llm"
	"github.com/quillworks/quill/pkg/llm/anthropic"
	"github.com/quillworks/quill/pkg/llm/ollama"
	"github.com/quillworks/quill/pkg/match"
	"github.com/quillworks/quill/pkg/memory"
	"github.com/quillworks/quill/pkg/memory/ephemeral"
	"github.com/quillworks/quill/pkg/memory/episodic/qdrant"
	"github.com/quillworks/quill/pkg/memory/episodic/sqlitevec"
	"github.com/quillworks/quill/pkg/memory/persistent"
	"github.com/quillworks/quill/pkg/pipeline"
	"github.com/quillworks/quill/pkg/pipeline/worker"
	"github.com/quillworks/quill/pkg/research"
	"github.com/quillworks/quill/pkg/search/searx"
	"github.com/quillworks/quill/pkg/store"
	"github.com/quillworks/quill/pkg/store/inmemory"
	"github.com/quillworks/quill/pkg/store/postgres"
	"github.com/quillworks/quill/pkg/store/sqlite"
	"github.com/quillworks/quill/pkg/tokens"
)

const (
	recordsDBFile = "quill.db"
	memoryDBFile  = "memory.db"
	episodesFile  = "episodes.db"
)

// Runtime is the assembled pipeline plus everything that needs closing when
// the command finishes.
type Runtime struct {
	Logger       *zap.Logger
	Config       *config.Config
	Store        store.Driver
	Memory       *memory.Facade
	Pool         *worker.Pool
	Orchestrator *pipeline.Orchestrator

	generator llm.Generator
	searcher  *searx.Searcher
	publisher eventstream.Publisher
}

// Build assembles a Runtime from the resolved configuration. Memory tiers
// that fail to initialize are logged and skipped; the pipeline runs without
// them. Everything else is required and fails the build.
func Build(ctx context.Context, configDir string, debug bool, logger *zap.Logger) (*Runtime, error) {
	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	cfg, err := cfger.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	rt := &Runtime{Logger: logger, Config: cfg}

	rt.Store, err = newStoreDriver(ctx, cfg, configDir, logger)
	if err != nil {
		return nil, err
	}

	rt.generator, err = newGenerator(cfg, configDir, logger)
	if err != nil {
		rt.Close()
		return nil, err
	}

	rt.searcher, err = searx.NewSearcher(searx.Config{URL: cfg.Search.Target}, logger)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("creating searcher: %w", err)
	}

	rt.Memory = newMemoryFacade(ctx, cfg, configDir, logger)

	rt.publisher, err = newPublisher(cfg, logger)
	if err != nil {
		rt.Close()
		return nil, err
	}

	rt.Pool, err = worker.NewPool(&worker.Config{
		Memory:    rt.Memory,
		Publisher: rt.publisher,
		Logger:    logger,
	})
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("creating worker pool: %w", err)
	}

	rates := tokens.Rates{
		InputPerMTok:  cfg.LLM.InputPerMTok,
		OutputPerMTok: cfg.LLM.OutputPerMTok,
	}
	maxTokens := int(cfg.LLM.MaxTokens)

	extractor := extract.NewEngine(rt.generator, rt.Memory, extract.Config{
		ConfidenceThreshold: cfg.Extraction.ConfidenceThreshold,
		MaxTokens:           maxTokens,
		Rates:               rates,
	}, logger)

	researcher := research.NewEngine(rt.generator, rt.searcher, rt.Memory, research.Config{
		RelevanceFloor:  cfg.Research.RelevanceFloor,
		SearchDelay:     time.Duration(cfg.Research.SearchDelayMs) * time.Millisecond,
		ResultsPerQuery: int(cfg.Research.ResultsPerQuery),
		MaxTokens:       maxTokens,
		Rates:           rates,
	}, logger)

	matcher, err := match.NewEngine(match.Config{})
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("creating matching engine: %w", err)
	}

	rt.Orchestrator = pipeline.New(rt.Store, extractor, researcher, rt.generator, rt.Pool, rt.Memory, matcher, pipeline.Config{
		MaxTokens: maxTokens,
		Rates:     rates,
	}, logger)

	return rt, nil
}

// Close drains the worker pool and releases every held resource.
func (rt *Runtime) Close() {
	if rt.Pool != nil {
		rt.Pool.Close()
	}
	if rt.publisher != nil {
		_ = rt.publisher.Close()
	}
	if rt.Memory != nil {
		_ = rt.Memory.Close()
	}
	if rt.searcher != nil {
		_ = rt.searcher.Close()
	}
	if rt.generator != nil {
		_ = rt.generator.Close()
	}
	if rt.Store != nil {
		_ = rt.Store.Close()
	}
}

// NewStoreDriver builds only the proposal store from configuration, for
// commands that read or create records without running the pipeline.
func NewStoreDriver(ctx context.Context, configDir string, logger *zap.Logger) (store.Driver, error) {
	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	cfg, err := cfger.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	return newStoreDriver(ctx, cfg, configDir, logger)
}

func newStoreDriver(ctx context.Context, cfg *config.Config, configDir string, logger *zap.Logger) (store.Driver, error) {
	switch cfg.Store.Driver {
	case "memory":
		logger.Info("using in-memory proposal store")
		return inmemory.NewDriver(), nil

	case "sqlite", "":
		path := cfg.Store.SQLitePath
		if path == "" {
			var err error
			path, err = defaultDBPath(configDir, recordsDBFile)
			if err != nil {
				return nil, err
			}
		}
		driver, err := sqlite.NewDriver(path)
		if err != nil {
			return nil, fmt.Errorf("creating SQLite proposal store: %w", err)
		}
		logger.Info("using SQLite proposal store", zap.String("path", path))
		return driver, nil

	case "postgres":
		if cfg.Store.PostgresDSN == "" {
			return nil, fmt.Errorf("store.postgres_dsn is required for the postgres driver")
		}
		driver, err := postgres.NewDriver(ctx, cfg.Store.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("creating Postgres proposal store: %w", err)
		}
		logger.Info("using Postgres proposal store")
		return driver, nil

	default:
		return nil, fmt.Errorf("unknown store driver: %q (available: memory, sqlite, postgres)", cfg.Store.Driver)
	}
}

func newGenerator(cfg *config.Config, configDir string, logger *zap.Logger) (llm.Generator, error) {
	var gen llm.Generator

	switch cfg.LLM.Provider {
	case "ollama", "":
		g, err := ollama.NewGenerator(ollama.Config{
			BaseURL: cfg.LLM.Target,
			Model:   cfg.LLM.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("creating ollama generator: %w", err)
		}
		gen = g

	case "anthropic":
		mgr, err := credentials.NewManager(configDir)
		if err != nil {
			return nil, fmt.Errorf("loading credentials: %w", err)
		}
		apiKey, err := mgr.ResolveKey("anthropic")
		if err != nil {
			return nil, fmt.Errorf("loading credentials: %w", err)
		}
		if apiKey == "" {
			return nil, fmt.Errorf("no Anthropic API key found; run 'quill auth anthropic' or set ANTHROPIC_API_KEY")
		}
		g, err := anthropic.NewGenerator(anthropic.Config{
			APIKey:  apiKey,
			Model:   cfg.LLM.Model,
			BaseURL: cfg.LLM.Target,
		})
		if err != nil {
			return nil, fmt.Errorf("creating anthropic generator: %w", err)
		}
		gen = g

	default:
		return nil, fmt.Errorf("unknown LLM provider: %q (available: ollama, anthropic)", cfg.LLM.Provider)
	}

	return llm.NewRetrying(gen, logger), nil
}

// newMemoryFacade builds whatever memory tiers come up. A tier that fails is
// a warning, never a build failure; the pipeline degrades to running without
// that tier.
func newMemoryFacade(ctx context.Context, cfg *config.Config, configDir string, logger *zap.Logger) *memory.Facade {
	if !cfg.Memory.Enabled {
		logger.Info("memory disabled by config")
		return nil
	}

	eph := ephemeral.New(ephemeral.Config{})

	var pers memory.PersistentTier
	persPath := cfg.Memory.SQLitePath
	if persPath == "" {
		var err error
		persPath, err = defaultDBPath(configDir, memoryDBFile)
		if err != nil {
			logger.Warn("persistent memory unavailable", zap.Error(err))
		}
	}
	if persPath != "" {
		p, err := persistent.New(persistent.Config{DBPath: persPath})
		if err != nil {
			logger.Warn("persistent memory unavailable", zap.Error(err))
		} else {
			pers = p
		}
	}

	epi := newEpisodicTier(ctx, cfg, configDir, logger)

	return memory.NewFacade(eph, pers, epi, logger)
}

func newEpisodicTier(ctx context.Context, cfg *config.Config, configDir string, logger *zap.Logger) memory.EpisodicTier {
	embedder, err := embedollama.NewEmbedder(embedollama.EmbedderConfig{
		BaseURL: cfg.Embedding.Target,
		Model:   cfg.Embedding.Model,
	})
	if err != nil {
		logger.Warn("episodic memory unavailable", zap.Error(err))
		return nil
	}

	switch cfg.Memory.EpisodicProvider {
	case "sqlitevec", "":
		path, err := defaultDBPath(configDir, episodesFile)
		if err != nil {
			logger.Warn("episodic memory unavailable", zap.Error(err))
			return nil
		}
		epi, err := sqlitevec.New(sqlitevec.Config{
			DBPath:     path,
			Dimensions: cfg.Embedding.Dimensions,
		}, embedder, logger)
		if err != nil {
			logger.Warn("episodic memory unavailable", zap.Error(err))
			return nil
		}
		return epi

	case "qdrant":
		epi, err := qdrant.New(ctx, qdrant.Config{
			Host:       cfg.Memory.QdrantHost,
			Port:       int(cfg.Memory.QdrantPort),
			Dimensions: uint64(cfg.Embedding.Dimensions),
		}, embedder, logger)
		if err != nil {
			logger.Warn("episodic memory unavailable", zap.Error(err))
			return nil
		}
		return epi

	default:
		logger.Warn("unknown episodic provider, episodic memory disabled",
			zap.String("provider", cfg.Memory.EpisodicProvider))
		return nil
	}
}

func newPublisher(cfg *config.Config, logger *zap.Logger) (eventstream.Publisher, error) {
	switch cfg.Events.Provider {
	case "nop", "":
		return nop.NewPublisher(), nil

	case "kafka":
		brokers := splitBrokers(cfg.Events.Brokers)
		pub, err := kafka.NewPublisher(kafka.Config{
			Brokers: brokers,
			Topic:   cfg.Events.Topic,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("creating kafka publisher: %w", err)
		}
		return pub, nil

	default:
		return nil, fmt.Errorf("unknown events provider: %q (available: nop, kafka)", cfg.Events.Provider)
	}
}

func splitBrokers(s string) []string {
	var brokers []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// defaultDBPath resolves a database file inside the .quill/ directory,
// creating ~/.quill/ when no directory exists yet.
func defaultDBPath(configDir, file string) (string, error) {
	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return "", fmt.Errorf("resolving quill dir: %w", err)
	}

	if target == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving home dir: %w", err)
		}
		target = filepath.Join(home, ".quill")
		if err := os.MkdirAll(target, 0o755); err != nil {
			return "", fmt.Errorf("creating quill dir: %w", err)
		}
	}

	return filepath.Join(target, file), nil
}
