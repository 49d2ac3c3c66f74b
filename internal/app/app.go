// Package app wires the backend from configuration. The API server and the
// CLI's local mode share it.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kurihiro0119/bili-comment/internal/bilibili"
	"github.com/kurihiro0119/bili-comment/internal/config"
	"github.com/kurihiro0119/bili-comment/internal/gateway"
	"github.com/kurihiro0119/bili-comment/internal/metrics"
	"github.com/kurihiro0119/bili-comment/internal/service"
	"github.com/kurihiro0119/bili-comment/internal/storage"
	"github.com/kurihiro0119/bili-comment/internal/storage/postgres"
	"github.com/kurihiro0119/bili-comment/internal/storage/sqlite"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

// SetupLogger builds the logger for env: text for local, JSON elsewhere.
func SetupLogger(env string, w io.Writer) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	}

	return log
}

// OpenStorage opens the storage selected by cfg.StorageType
func OpenStorage(cfg *config.Config) (storage.Storage, error) {
	switch cfg.StorageType {
	case "postgres":
		store, err := postgres.NewPostgresStorage(cfg.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize PostgreSQL storage: %w", err)
		}
		return store, nil
	default:
		store, err := sqlite.NewSQLiteStorage(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite storage: %w", err)
		}
		return store, nil
	}
}

// Backend is the in-process gateway together with the resources it owns
type Backend struct {
	Gateway gateway.Gateway
	Storage storage.Storage
}

// Close releases the storage
func (b *Backend) Close() error {
	return b.Storage.Close()
}

// NewBackend opens storage and builds the service. Counters are registered on reg.
func NewBackend(ctx context.Context, cfg *config.Config, reg prometheus.Registerer, logger *slog.Logger) (*Backend, error) {
	store, err := OpenStorage(cfg)
	if err != nil {
		return nil, err
	}

	client := bilibili.NewClient(bilibili.Options{
		Timeout: cfg.HTTPTimeout,
		Logger:  logger.With("component", "bilibili"),
	})

	gw, err := service.New(ctx, service.Options{
		Client:  client,
		Storage: store,
		Limiter: bilibili.NewRateLimiter(cfg.CommentInterval),
		Metrics: metrics.New(reg),
		Logger:  logger.With("component", "service"),
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	return &Backend{Gateway: gw, Storage: store}, nil
}
