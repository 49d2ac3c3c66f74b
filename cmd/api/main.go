package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kurihiro0119/bili-comment/internal/api"
	"github.com/kurihiro0119/bili-comment/internal/app"
	"github.com/kurihiro0119/bili-comment/internal/config"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_load_failed", slog.String("err", err.Error()))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("config_invalid", slog.String("err", err.Error()))
		os.Exit(1)
	}

	log := app.SetupLogger(cfg.Env, os.Stdout)
	if cfg.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}

	rootCtx, rootCancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer rootCancel()

	// Initialize backend
	backend, err := app.NewBackend(rootCtx, cfg, prometheus.DefaultRegisterer, log)
	if err != nil {
		log.Error("backend_init_failed", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer backend.Close()

	// Setup routes
	handler := api.NewHandler(backend.Gateway, log.With("component", "api"))
	router := api.SetupRoutes(handler, cfg.APIToken)

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.APIHost, cfg.APIPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrCh <- err
		}
		close(serveErrCh)
	}()
	log.Info("http_listen_start",
		slog.String("addr", srv.Addr),
		slog.String("storage", cfg.StorageType),
		slog.Bool("token_required", cfg.APIToken != ""),
	)

	select {
	case <-rootCtx.Done():
		log.Info("shutdown_requested")
	case err := <-serveErrCh:
		if err != nil {
			log.Error("http_serve_failed", slog.String("err", err.Error()))
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http_force_stop", slog.String("err", err.Error()))
	}

	log.Info("service_stopped")
}
