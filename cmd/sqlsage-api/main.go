package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/sqlsage/sqlsage/internal/api"
	"github.com/sqlsage/sqlsage/internal/archive"
	"github.com/sqlsage/sqlsage/internal/auth"
	"github.com/sqlsage/sqlsage/internal/cache"
	"github.com/sqlsage/sqlsage/internal/config"
	"github.com/sqlsage/sqlsage/internal/execute"
	"github.com/sqlsage/sqlsage/internal/generate"
	"github.com/sqlsage/sqlsage/internal/index"
	"github.com/sqlsage/sqlsage/internal/insight"
	"github.com/sqlsage/sqlsage/internal/llm"
	"github.com/sqlsage/sqlsage/internal/observability"
	"github.com/sqlsage/sqlsage/internal/prompt"
	"github.com/sqlsage/sqlsage/internal/repair"
	"github.com/sqlsage/sqlsage/internal/schema/discover"
	"github.com/sqlsage/sqlsage/internal/session"
	s3store "github.com/sqlsage/sqlsage/internal/storage/s3"
	"github.com/sqlsage/sqlsage/internal/validate"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv("sqlsage-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)

	ctx := context.Background()
	dialect, err := discover.ParseDialect(cfg.Backend.Driver)
	if err != nil {
		logger.Error("invalid backend driver", slog.Any("error", err))
		os.Exit(1)
	}

	db, err := execute.Open(ctx, execute.BackendConfig{
		Driver:          cfg.Backend.Driver,
		DSN:             cfg.Backend.DSN,
		MaxOpenConns:    cfg.Backend.MaxOpenConns,
		MaxIdleConns:    cfg.Backend.MaxIdleConns,
		ConnMaxIdleTime: cfg.Backend.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.Backend.ConnMaxLifetime,
	})
	if err != nil {
		logger.Error("failed to open backend", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	openaiClient, err := llm.NewOpenAIClient(llm.OpenAIConfig{
		BaseURL:    cfg.AI.BaseURL,
		APIKey:     cfg.AI.APIKey,
		ChatModel:  cfg.AI.ChatModel,
		EmbedModel: cfg.AI.EmbedModel,
		Timeout:    cfg.AI.Timeout,
	})
	if err != nil {
		logger.Error("failed to initialize model client", slog.Any("error", err))
		os.Exit(1)
	}

	var embedder llm.Embedder
	switch cfg.AI.EmbedProvider {
	case "openai":
		embedder = openaiClient
	default:
		embedder = llm.NewLocalEmbedder()
	}

	discoverer := discover.New(db, dialect, cfg.Index.SampleRows)
	current, err := discoverer.Discover(ctx)
	if err != nil {
		logger.Error("failed to discover backend schema", slog.Any("error", err))
		os.Exit(1)
	}

	schemaIndex, err := index.Build(ctx, current, embedder)
	if err != nil {
		logger.Error("failed to build schema index", slog.Any("error", err))
		os.Exit(1)
	}
	observability.SetIndexFragments(len(schemaIndex.Fragments()))
	logger.Info("schema index ready",
		slog.Int("tables", len(current.Tables)),
		slog.Int("fragments", len(schemaIndex.Fragments())),
	)

	loop := &repair.Loop{
		Retriever: schemaIndex,
		Assembler: &prompt.Assembler{
			Budget:  cfg.Index.PromptBudget,
			Dialect: cfg.Backend.Driver,
		},
		Generator: &generate.ModelGenerator{
			Client:      openaiClient,
			Temperature: cfg.AI.Temperature,
		},
		Validator:   validate.New(current),
		Executor:    execute.NewSQLExecutor(db, cfg.Repair.StatementTimeout, cfg.Repair.MaxRows),
		MaxAttempts: cfg.Repair.MaxAttempts,
		TopK:        cfg.Index.TopK,
		Logger:      logger,
	}
	if cfg.AI.ExpandEnabled {
		loop.Expander = &generate.Expander{Client: openaiClient}
	}

	var answerCache cache.Cache
	switch cfg.Cache.Backend {
	case "memory":
		answerCache = cache.NewMemory(cfg.Cache.TTL)
	case "redis":
		redisCache, err := cache.NewRedis(ctx, cache.RedisConfig{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
			TTL:      cfg.Cache.TTL,
		})
		if err != nil {
			logger.Error("failed to connect to redis cache", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() { _ = redisCache.Close() }()
		answerCache = redisCache
	}

	var archiver api.RecordArchiver
	if cfg.Archive.Enabled {
		store, err := s3store.New(ctx, s3store.Config{
			Endpoint:         cfg.Archive.Endpoint,
			Region:           cfg.Archive.Region,
			Bucket:           cfg.Archive.Bucket,
			AccessKeyID:      cfg.Archive.AccessKeyID,
			SecretAccessKey:  cfg.Archive.SecretAccessKey,
			UseSSL:           cfg.Archive.UseSSL,
			Prefix:           cfg.Archive.Prefix,
			AutoCreateBucket: cfg.Archive.AutoCreateBucket,
		})
		if err != nil {
			logger.Error("failed to initialize archive store", slog.Any("error", err))
			os.Exit(1)
		}
		archiver = &archive.Archiver{Store: store, Logger: logger}
	}

	deps := api.Dependencies{
		Logger:   logger,
		Loop:     loop,
		Sessions: session.NewStore(cfg.Session.MaxTurns),
		Cache:    answerCache,
		Archiver: archiver,
		Schema:   discoverer,
		Index:    schemaIndex,
		Readiness: api.CombineReadinessChecks(
			api.CheckBackendConfig(cfg),
			api.CheckAIConfig(cfg),
			api.CheckArchiveConfig(cfg),
			func(rctx context.Context) error { return db.PingContext(rctx) },
		),
		DependencyTimeout: time.Second,
		RequestTimeout:    cfg.Repair.RequestTimeout,
	}
	if cfg.AI.InsightEnabled {
		deps.Summarizer = &insight.Summarizer{Client: openaiClient}
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-runCtx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}
