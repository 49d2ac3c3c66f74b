package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/kurihiro0119/bili-comment/internal/app"
	"github.com/kurihiro0119/bili-comment/internal/config"
	"github.com/kurihiro0119/bili-comment/internal/gateway"
	"github.com/kurihiro0119/bili-comment/pkg/client"
)

var (
	outputJSON bool
	localMode  bool
	verbose    bool
	endpoint   string
)

var rootCmd = &cobra.Command{
	Use:   "bili-comment",
	Short: "Search bilibili videos and post comments in batches",
	Long: `A CLI tool for logging in to bilibili with a QR code, searching videos
and posting a comment to many of them at a controlled pace.

Commands talk to a bili-comment API server (see API_ENDPOINT), or run the
backend in process with --local.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&localMode, "local", false, "run the backend in process instead of calling the API server")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log to stderr")
	rootCmd.PersistentFlags().StringVar(&endpoint, "endpoint", "", "API server URL (default is API_ENDPOINT)")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(commentCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(intervalCmd)
	rootCmd.AddCommand(templatesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// env is what every command needs: configuration, a logger and a gateway
type env struct {
	cfg    *config.Config
	logger *slog.Logger
	gw     gateway.Gateway
	close  func()
}

func setup(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	if verbose {
		logger = app.SetupLogger(cfg.Env, os.Stderr)
	}

	if localMode {
		backend, err := app.NewBackend(ctx, cfg, prometheus.NewRegistry(), logger)
		if err != nil {
			return nil, err
		}
		return &env{
			cfg:    cfg,
			logger: logger,
			gw:     backend.Gateway,
			close:  func() { backend.Close() },
		}, nil
	}

	baseURL := cfg.APIEndpoint
	if endpoint != "" {
		baseURL = endpoint
	}
	return &env{
		cfg:    cfg,
		logger: logger,
		gw: client.NewClient(baseURL, client.Options{
			Token:   cfg.APIToken,
			Timeout: cfg.HTTPTimeout,
			Logger:  logger.With("component", "client"),
		}),
		close: func() {},
	}, nil
}
