package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	csvadapter "github.com/couchcryptid/weather-indicator-etl/internal/adapter/csv"
	"github.com/couchcryptid/weather-indicator-etl/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/weather-indicator-etl/internal/adapter/kafka"
	"github.com/couchcryptid/weather-indicator-etl/internal/adapter/postgres"
	"github.com/couchcryptid/weather-indicator-etl/internal/cache"
	"github.com/couchcryptid/weather-indicator-etl/internal/config"
	"github.com/couchcryptid/weather-indicator-etl/internal/observability"
	"github.com/couchcryptid/weather-indicator-etl/internal/pipeline"
)

func main() {
	// A missing .env file is fine; the environment alone is enough.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, metrics); err != nil {
		logger.Error("indicator run failed", "error", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) error {
	provider, err := newCacheProvider(ctx, cfg)
	if err != nil {
		return err
	}
	store, err := cache.NewStore(provider, cfg.CachePolicy, logger)
	if err != nil {
		_ = provider.Close()
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("cache close error", "error", err)
		}
	}()
	logger.Info("cache ready", "backend", cfg.CacheBackend, "policy", store.Policy())

	reader := csvadapter.NewReader(cfg.Columns, logger)
	indicators := []pipeline.IndicatorLoader{csvadapter.NewWriter(cfg.OutputDir, cfg.ExportFormat, logger)}
	var aggregates []pipeline.AggregateLoader
	var archive httpadapter.AggregateArchive

	if cfg.DatabaseURL != "" {
		db, err := postgres.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return err
		}
		defer db.Close()
		indicators = append(indicators, db)
		aggregates = append(aggregates, db)
		archive = db
		logger.Info("postgres sink enabled")
	}
	if len(cfg.KafkaBrokers) > 0 {
		writer := kafkaadapter.NewWriter(cfg, logger)
		defer func() {
			if err := writer.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}()
		aggregates = append(aggregates, writer)
		logger.Info("kafka sink enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	processor := pipeline.NewProcessor(store, cfg.YearBatchSize, logger, metrics)
	runner := pipeline.NewRunner(reader, processor, indicators, aggregates, pipeline.AggregationConfig{
		Levels:  cfg.AggregationLevels,
		Columns: cfg.AggregationColumns,
		Scheme:  cfg.SeasonScheme,
	}, logger, metrics)

	if !cfg.Serve {
		_, err := runner.Run(ctx, cfg.Events)
		return err
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, runner, runner, archive, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Run the engine once; the results stay served until shutdown.
	runDone := runner.Start(ctx, cfg.Events)

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	// Sinks and the cache are closed by the deferred calls above; the run
	// must have stopped using them first.
	select {
	case <-runDone:
	case <-shutdownCtx.Done():
		logger.Warn("indicator run still active at shutdown timeout")
	}
	logger.Info("shutdown complete")
	return nil
}

func newCacheProvider(ctx context.Context, cfg *config.Config) (cache.Provider, error) {
	switch cfg.CacheBackend {
	case config.CacheFile:
		return cache.NewFileProvider(cfg.CacheDir)
	case config.CacheMemory:
		return cache.NewMemoryProvider(cfg.MemoryCacheSize), nil
	case config.CacheRedis:
		return cache.NewRedisProvider(ctx, cache.RedisConfig{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			KeyPrefix: "weather-indicators:",
		})
	case config.CacheNone:
		return cache.NoopProvider{}, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}
}
