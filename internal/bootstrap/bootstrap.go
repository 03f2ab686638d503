// Package bootstrap wires configuration into the running components shared
// by the API server and the ingest CLI.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/reqanswer/backend/internal/answer"
	rediscache "github.com/reqanswer/backend/internal/cache/redis"
	"github.com/reqanswer/backend/internal/embedding"
	"github.com/reqanswer/backend/internal/graph"
	"github.com/reqanswer/backend/internal/index"
	"github.com/reqanswer/backend/internal/ingestion"
	"github.com/reqanswer/backend/internal/llm"
	"github.com/reqanswer/backend/internal/storage/sqlite"
	"github.com/reqanswer/backend/internal/vector"
	"github.com/reqanswer/backend/internal/vector/memory"
	"github.com/reqanswer/backend/internal/vector/milvus"
	"github.com/reqanswer/backend/pkg/config"
	"github.com/reqanswer/backend/pkg/logger"
)

type App struct {
	Config    *config.Config
	DB        *sqlite.Client
	Store     vector.Store
	Index     *index.Index
	Embedder  index.Embedder
	Completer answer.Completer
	Generator *answer.Generator
	Processor *ingestion.Processor

	// Optional; nil when disabled or unreachable.
	Graph *graph.Client
	Cache *rediscache.Client

	closers []func()
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{Config: cfg}

	db, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create SQLite client: %w", err)
	}
	app.onClose(func() { db.Close() })
	if err := db.InitSchema(ctx); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	app.DB = db

	store, err := app.openStore(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Store = store

	if cfg.Redis.Enabled {
		ttl := time.Duration(cfg.Redis.TTLHours) * time.Hour
		cache, err := rediscache.NewClient(ctx, cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB, ttl)
		if err != nil {
			logger.Warn("Redis unavailable, embedding cache disabled", zap.Error(err))
		} else {
			app.Cache = cache
			app.onClose(func() { cache.Close() })
		}
	}

	if err := app.buildLLM(); err != nil {
		app.Close()
		return nil, err
	}

	if cfg.Neo4j.Enabled {
		g, err := graph.NewClient(ctx, cfg.Neo4j.URI, cfg.Neo4j.Username, cfg.Neo4j.Password, cfg.Neo4j.Database)
		if err != nil {
			logger.Warn("Neo4j unavailable, provenance graph disabled", zap.Error(err))
		} else {
			app.Graph = g
			app.onClose(func() { g.Close(context.Background()) })
		}
	}

	app.Index = index.New(store, app.Embedder)
	app.Generator = answer.NewGenerator(app.Index, app.Completer, nil, answer.Config{
		NumSources:            cfg.Answer.NumSources,
		CategoryLimit:         cfg.Answer.CategoryLimit,
		SuggestionSources:     cfg.Answer.SuggestionSources,
		MaxTokens:             cfg.Answer.MaxTokens,
		Temperature:           cfg.Answer.Temperature,
		SuggestionMaxTokens:   cfg.Answer.SuggestionMaxTokens,
		SuggestionTemperature: cfg.Answer.SuggestionTemperature,
		BatchConcurrency:      cfg.Answer.BatchConcurrency,
	})

	var graphWriter ingestion.GraphWriter
	if app.Graph != nil {
		graphWriter = app.Graph
	}
	app.Processor = ingestion.NewProcessor(app.Index, graphWriter, db, int64(cfg.Ingestion.MaxFileSize))

	logger.Info("Components initialized",
		zap.String("vector_backend", cfg.Vector.Backend),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.Bool("graph", app.Graph != nil),
		zap.Bool("embedding_cache", app.Cache != nil),
	)
	return app, nil
}

func (a *App) openStore(ctx context.Context) (vector.Store, error) {
	cfg := a.Config
	switch cfg.Vector.Backend {
	case "memory":
		return memory.NewStore(), nil
	case "milvus":
		dim := cfg.Vector.Milvus.VectorDim
		if dim == 0 {
			dim = cfg.LLM.EmbeddingDim
		}
		store, err := milvus.NewStore(ctx, cfg.Vector.Milvus.Endpoint, cfg.Vector.Milvus.APIKey, cfg.Vector.Milvus.CollectionName, dim)
		if err != nil {
			return nil, fmt.Errorf("failed to open milvus store: %w", err)
		}
		a.onClose(func() { store.Close() })
		return store, nil
	default:
		client := a.DB
		if cfg.Vector.SQLitePath != cfg.SQLite.Path {
			var err error
			client, err = sqlite.NewClient(cfg.Vector.SQLitePath)
			if err != nil {
				return nil, fmt.Errorf("failed to open vector database: %w", err)
			}
			a.onClose(func() { client.Close() })
		}
		store, err := sqlite.NewVectorStore(ctx, client)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite vector store: %w", err)
		}
		return store, nil
	}
}

// buildLLM selects the completion provider and the embedder. Only the
// openai provider has a remote embedder; the others embed offline.
func (a *App) buildLLM() error {
	cfg := a.Config.LLM
	llmCfg := llm.Config{
		APIKey:         cfg.APIKey,
		BaseURL:        cfg.BaseURL,
		Model:          cfg.Model,
		EmbeddingModel: cfg.EmbeddingModel,
		Temperature:    cfg.Temperature,
		MaxTokens:      cfg.MaxTokens,
		Timeout:        time.Duration(cfg.TimeoutSec) * time.Second,
	}

	switch cfg.Provider {
	case "anthropic":
		client, err := llm.NewAnthropicClient(llmCfg)
		if err != nil {
			return fmt.Errorf("failed to create anthropic client: %w", err)
		}
		a.Completer = client
		a.Embedder = embedding.NewHashing(cfg.EmbeddingDim)
	case "local":
		a.Completer = llm.NewClient(llmCfg)
		a.Embedder = embedding.NewHashing(cfg.EmbeddingDim)
	default:
		client := llm.NewClient(llmCfg)
		a.Completer = client
		a.Embedder = client
		if a.Cache != nil {
			a.Embedder = embedding.NewCached(client, a.Cache, cfg.EmbeddingModel)
		}
	}
	return nil
}

// InvalidateEmbeddings drops every cached embedding and reports how many
// keys were removed. It is a no-op without a cache.
func (a *App) InvalidateEmbeddings(ctx context.Context) (int, error) {
	if a.Cache == nil {
		return 0, nil
	}
	return a.Cache.InvalidatePrefix(ctx, "embedding:")
}

// Clear empties the index and the provenance graph.
func (a *App) Clear(ctx context.Context) error {
	if err := a.Index.Clear(ctx); err != nil {
		return err
	}
	if a.Graph != nil {
		if err := a.Graph.Clear(ctx); err != nil {
			logger.Warn("Failed to clear graph", zap.Error(err))
		}
	}
	return nil
}

func (a *App) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
