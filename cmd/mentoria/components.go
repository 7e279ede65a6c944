package main

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"github.com/hyperjump/mentoria/internal/config"
	"github.com/hyperjump/mentoria/internal/embedding"
	"github.com/hyperjump/mentoria/internal/llm"
	"github.com/hyperjump/mentoria/internal/progress"
	"github.com/hyperjump/mentoria/internal/search"
	"github.com/hyperjump/mentoria/internal/storage"
	"github.com/hyperjump/mentoria/internal/tutor"
	"github.com/hyperjump/mentoria/internal/vector"
)

// Components holds the wired application services.
type Components struct {
	Storage   *storage.SQLiteStorage
	Pool      *embedding.Pool
	Corpora   *vector.Store
	Agents    *config.AgentRegistry
	Engine    *search.Engine
	Tracker   *progress.Tracker
	Completer llm.Completer
	Tutor     *tutor.Service
}

// Close releases every component that holds resources.
func (c *Components) Close() {
	if c.Corpora != nil {
		_ = c.Corpora.Close()
	}
	if c.Pool != nil {
		_ = c.Pool.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	c := &Components{}
	ok := false
	defer func() {
		if !ok {
			c.Close()
		}
	}()

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.Storage = store

	pool, err := embedding.NewPool(embedding.PoolOptions{
		Provider:          cfg.Embedding.Provider,
		DefaultModel:      cfg.Embedding.Model,
		APIKey:            cfg.APIKey,
		BaseURL:           cfg.BaseURL,
		Dimensions:        cfg.Embedding.Dimensions,
		BatchSize:         cfg.Embedding.BatchSize,
		CacheSize:         cfg.Embedding.CacheSize,
		RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
		ONNX: embedding.ONNXOptions{
			ModelPath:  cfg.Embedding.ModelPath,
			Dimensions: cfg.Embedding.Dimensions,
			MaxTokens:  cfg.Embedding.MaxTokens,
			CacheSize:  cfg.Embedding.CacheSize,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embeddings: %w", err)
	}
	c.Pool = pool
	if cfg.Embedding.Provider == embedding.ProviderOpenAI && cfg.APIKey == "" {
		logger.Warn("OPENAI_API_KEY is not set; retrieval will fail until it is configured")
	}

	opener, err := vector.NewOpener(ctx, cfg.Storage.IndexType, vector.QdrantOptions{
		Host:             cfg.Storage.Qdrant.Host,
		Port:             cfg.Storage.Qdrant.Port,
		CollectionPrefix: cfg.Storage.Qdrant.CollectionPrefix,
	})
	if err != nil {
		if cfg.Storage.IndexType == string(vector.IndexTypeMemory) {
			return nil, fmt.Errorf("failed to initialize vector index: %w", err)
		}
		// Fall back to memory index if configured type fails (e.g., FAISS not available)
		logger.Warn("failed to create vector index opener, falling back to memory",
			zap.String("requested_type", cfg.Storage.IndexType),
			zap.Error(err))
		opener, err = vector.NewOpener(ctx, string(vector.IndexTypeMemory), vector.QdrantOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize vector index: %w", err)
		}
	}
	c.Corpora = vector.NewStore(cfg.Storage.IndexDir, cfg.Storage.DefaultIndex, opener, vector.WithLogger(logger))
	logger.Info("vector store initialized",
		zap.String("type", cfg.Storage.IndexType),
		zap.String("index_dir", cfg.Storage.IndexDir),
		zap.Bool("faiss_available", vector.IsFAISSAvailable()))

	c.Agents = config.NewAgentRegistry(cfg)
	c.Engine = search.NewEngine(c.Corpora, c.Pool, c.Agents, search.Options{
		SnippetLength: cfg.Search.SnippetLength,
		MaxK:          cfg.Search.MaxK,
		EmbedTimeout:  cfg.Embedding.Timeout.Std(),
	}, logger)

	rules, err := progress.NewRules(cfg.Progress)
	if err != nil {
		return nil, fmt.Errorf("invalid progress rules: %w", err)
	}
	c.Tracker = progress.NewTracker(store, rules, progress.WithLogger(logger))

	completer, err := newCompleter(cfg, logger)
	if err != nil {
		return nil, err
	}
	c.Completer = completer
	c.Tutor = tutor.NewService(c.Engine, completer, c.Tracker, c.Agents, tutor.Options{
		CompletionTimeout: cfg.Completion.Timeout.Std(),
		ChatXP:            cfg.Progress.ChatXP,
	}, logger)

	ok = true
	return c, nil
}

func newCompleter(cfg *config.Config, logger *zap.Logger) (llm.Completer, error) {
	switch cfg.Completion.Provider {
	case llm.ProviderEcho:
		return llm.EchoCompleter{}, nil
	case llm.ProviderOpenAI, "":
		if cfg.APIKey == "" {
			logger.Warn("OPENAI_API_KEY is not set; chat and grading will fail until it is configured")
			return llm.Unavailable{Err: fmt.Errorf("%w: OPENAI_API_KEY is not set", llm.ErrNotConfigured)}, nil
		}
		opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
		if cfg.BaseURL != "" {
			opts = append(opts, option.WithBaseURL(cfg.BaseURL))
		}
		client := openai.NewClient(opts...)
		return llm.NewOpenAICompleter(&client, logger), nil
	default:
		return nil, fmt.Errorf("unknown completion provider: %s", cfg.Completion.Provider)
	}
}
