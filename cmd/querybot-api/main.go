package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"syscall"
	"time"

	"github.com/querybot/querybot/internal/api"
	"github.com/querybot/querybot/internal/config"
	"github.com/querybot/querybot/internal/dataset"
	datasetpostgres "github.com/querybot/querybot/internal/dataset/postgres"
	historypostgres "github.com/querybot/querybot/internal/history/postgres"
	"github.com/querybot/querybot/internal/ingest"
	"github.com/querybot/querybot/internal/memory"
	"github.com/querybot/querybot/internal/nl2sql"
	"github.com/querybot/querybot/internal/observability"
	"github.com/querybot/querybot/internal/orchestrator"
	duckdbengine "github.com/querybot/querybot/internal/query/duckdb"
	s3store "github.com/querybot/querybot/internal/storage/s3"
)

func main() {
	cfg, err := config.LoadFromEnv("querybot-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	catalogDB, err := datasetpostgres.Open(context.Background(), datasetpostgres.DBConfig{
		DSN:             cfg.Catalog.DSN,
		MaxOpenConns:    cfg.Catalog.MaxOpenConns,
		MaxIdleConns:    cfg.Catalog.MaxIdleConns,
		ConnMaxIdleTime: cfg.Catalog.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.Catalog.ConnMaxLifetime,
	})
	if err != nil {
		logger.Error("failed to open metadata db", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = catalogDB.Close() }()

	datasetRepo := datasetpostgres.NewRepository(catalogDB)
	historyRepo := historypostgres.NewRepository(catalogDB)

	objectStore, err := s3store.New(context.Background(), s3store.Config{
		Endpoint:         cfg.ObjectStore.Endpoint,
		Region:           cfg.ObjectStore.Region,
		Bucket:           cfg.ObjectStore.Bucket,
		AccessKeyID:      cfg.ObjectStore.AccessKeyID,
		SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
		UseSSL:           cfg.ObjectStore.UseSSL,
		Prefix:           cfg.ObjectStore.Prefix,
		AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
	})
	if err != nil {
		logger.Error("failed to initialize object store", slog.Any("error", err))
		os.Exit(1)
	}

	queryEngine := duckdbengine.NewEngine(objectStore)

	var generator nl2sql.Generator
	if cfg.AI.APIKey != "" {
		openAI, err := nl2sql.NewOpenAIGenerator(nl2sql.OpenAIConfig{
			BaseURL:     cfg.AI.BaseURL,
			APIKey:      cfg.AI.APIKey,
			Model:       cfg.AI.Model,
			Temperature: cfg.AI.Temperature,
			Timeout:     cfg.AI.Timeout,
		})
		if err != nil {
			logger.Error("failed to initialize generator", slog.Any("error", err))
			os.Exit(1)
		}
		generator = openAI
	} else {
		logger.Warn("AI api key missing, queries will use deterministic fallbacks")
	}

	fallbackColumns, err := regexp.Compile(cfg.Query.FallbackColumnPattern)
	if err != nil {
		logger.Error("invalid fallback column pattern", slog.Any("error", err))
		os.Exit(1)
	}

	runner := orchestrator.New(
		dataset.NewResolver(datasetRepo),
		generator,
		queryEngine,
		historyRepo,
		memory.NewStore(),
		logger,
		orchestrator.Options{
			GenerateTimeout:       cfg.Query.GenerateTimeout,
			SummarizeTimeout:      cfg.Query.SummarizeTimeout,
			FallbackColumnPattern: fallbackColumns,
		},
	)

	importer := &ingest.Importer{
		Store:     objectStore,
		Registrar: datasetRepo,
		Logger:    logger,
	}

	deps := api.Dependencies{
		Logger:   logger,
		Runner:   runner,
		Importer: importer,
		Datasets: datasetRepo,
		Readiness: api.CombineReadinessChecks(
			datasetRepo.HealthCheck,
			api.CheckObjectStoreConfig(cfg),
		),
		DependencyTimeout: time.Second,
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}
