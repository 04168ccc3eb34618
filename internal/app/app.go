// Package app wires configuration into the services shared by the server,
// the worker and docctl.
package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tgo/docqa/internal/chunker"
	"github.com/tgo/docqa/internal/config"
	"github.com/tgo/docqa/internal/database"
	"github.com/tgo/docqa/internal/embedding"
	"github.com/tgo/docqa/internal/extract"
	"github.com/tgo/docqa/internal/llm"
	"github.com/tgo/docqa/internal/queue"
	"github.com/tgo/docqa/internal/ratelimit"
	"github.com/tgo/docqa/internal/repository"
	"github.com/tgo/docqa/internal/service"
	"github.com/tgo/docqa/internal/storage"
)

type App struct {
	Config *config.Config
	Logger zerolog.Logger

	DB     *gorm.DB
	Redis  *redis.Client
	Store  storage.Store
	Queue  *queue.RedisQueue
	Lease  *queue.RedisLease
	Docs   *repository.DocumentRepository
	Chunks *repository.ChunkRepository

	Documents *service.DocumentService
	Pipeline  *service.PipelineService
	Retrieval *service.RetrievalService
	Answers   *service.AnswerService
}

// New connects to Postgres, Redis and the file store and builds every
// service. AI clients are created lazily by their providers, so a missing
// API key only fails the calls that need it.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	a.DB = db

	rdb, err := queue.NewRedisClient(cfg.RedisURL)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	a.Redis = rdb
	a.Queue = queue.NewRedisQueue(rdb)
	a.Lease = queue.NewRedisLease(rdb)

	store, err := storage.New(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init storage: %w", err)
	}
	a.Store = store

	limiter := ratelimit.New(ratelimit.Config{
		RequestsPerSecond: cfg.AIRateLimitRPS,
		BurstSize:         cfg.AIRateLimitBurst,
	})

	embedder, err := embedding.New(embedding.Config{
		Provider:   cfg.EmbeddingProvider,
		APIKey:     cfg.EmbeddingAPIKey,
		BaseURL:    cfg.EmbeddingBaseURL,
		Model:      cfg.EmbeddingModel,
		Dimensions: cfg.EmbeddingDimensions,
	}, limiter)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init embedder: %w", err)
	}

	factory := llm.NewFactory()
	answerModel, err := factory.CreateChatModel(ctx, &llm.ProviderConfig{
		Kind:    llm.ProviderKind(cfg.LLMProvider),
		APIKey:  cfg.LLMAPIKey,
		Model:   cfg.LLMModel,
		BaseURL: cfg.LLMBaseURL,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init chat model: %w", err)
	}
	extractModel, err := factory.CreateChatModel(ctx, &llm.ProviderConfig{
		Kind:    llm.ProviderKind(cfg.LLMProvider),
		APIKey:  cfg.LLMAPIKey,
		Model:   cfg.ExtractModel,
		BaseURL: cfg.LLMBaseURL,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init extraction model: %w", err)
	}

	a.Docs = repository.NewDocumentRepository(db)
	a.Chunks = repository.NewChunkRepository(db)

	extractor := extract.NewChain(logger,
		extract.NewAI(extractModel, extract.ExecRunner{}, limiter, extract.AIConfig{
			MaxAttempts:  cfg.EmbedMaxAttempts,
			BaseDelay:    cfg.EmbedRetryBaseDelay,
			PdftoppmPath: cfg.OCRPdftoppmPath,
			DPI:          cfg.ExtractDPI,
			MaxPages:     cfg.ExtractMaxPages,
		}, logger),
		extract.NewTextLayer(),
		extract.NewOCR(extract.OCRConfig{
			PdftoppmPath:  cfg.OCRPdftoppmPath,
			TesseractPath: cfg.OCRTesseractPath,
			DPI:           cfg.OCRDPI,
			Language:      cfg.OCRLanguage,
		}, extract.ExecRunner{}),
	)

	a.Documents = service.NewDocumentService(a.Docs, a.Chunks, store, a.Queue, cfg.MaxUploadSize, logger)
	a.Pipeline = service.NewPipelineService(
		a.Docs, a.Chunks, store, extractor,
		chunker.New(chunker.WithChunkSize(cfg.ChunkSize), chunker.WithOverlap(cfg.ChunkOverlap)),
		embedder, a.Lease,
		service.PipelineConfig{
			EmbedMaxAttempts:    cfg.EmbedMaxAttempts,
			EmbedRetryBaseDelay: cfg.EmbedRetryBaseDelay,
			LeaseTTL:            cfg.LeaseTTL,
		},
		logger,
	)
	a.Retrieval = service.NewRetrievalService(a.Chunks, embedder, cfg.RetrievalTopK, logger)
	a.Answers, err = service.NewAnswerService(ctx, a.Retrieval, answerModel, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	logger.Info().
		Strs("extractors", extractor.Strategies()).
		Str("embedding_provider", cfg.EmbeddingProvider).
		Str("storage", cfg.StorageBackend).
		Msg("services initialised")
	return a, nil
}

// Migrate brings the schema up to date.
func (a *App) Migrate() error {
	return database.AutoMigrate(a.DB)
}

// Ping checks the database.
func (a *App) Ping(ctx context.Context) error {
	sqlDB, err := a.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (a *App) Close() {
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}
