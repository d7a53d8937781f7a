package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/lidar-raster-etl/internal/adapter/arcgis"
	"github.com/couchcryptid/lidar-raster-etl/internal/adapter/fetch"
	httpadapter "github.com/couchcryptid/lidar-raster-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/lidar-raster-etl/internal/adapter/kafka"
	"github.com/couchcryptid/lidar-raster-etl/internal/config"
	"github.com/couchcryptid/lidar-raster-etl/internal/observability"
	"github.com/couchcryptid/lidar-raster-etl/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	client := arcgis.NewClient(cfg.TileIndexURL, cfg.CatalogURL, cfg.RequestTimeout, cfg.LayerCacheSize, logger, metrics)
	fetcher := fetch.NewFetcher(cfg.RequestTimeout, logger, metrics)

	// Event publishing is feature-flagged via KAFKA_ENABLED / KAFKA_BROKERS.
	var publisher pipeline.EventPublisher
	var writer *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger)
		publisher = writer
		logger.Info("job event publishing enabled", "topic", cfg.KafkaTopic)
	} else {
		logger.Info("job event publishing disabled")
	}

	orchestrator, err := pipeline.New(cfg, client, client, fetcher, publisher, logger, metrics)
	if err != nil {
		slog.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, orchestrator, orchestrator, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
