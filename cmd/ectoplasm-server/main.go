package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ectoplasm/dexclient/internal/casper/rpc"
	"github.com/ectoplasm/dexclient/internal/config"
	deploysDomain "github.com/ectoplasm/dexclient/internal/deploys/domain"
	"github.com/ectoplasm/dexclient/internal/dex"
	"github.com/ectoplasm/dexclient/internal/observability/metrics"
	"github.com/ectoplasm/dexclient/internal/server"
	"github.com/ectoplasm/dexclient/internal/storage"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "ectoplasm-server",
		Short:   "Ectoplasm DEX API - builds router deploys and tracks their execution",
		Version: version,
	}

	// Default behavior (no subcommand) is to serve
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runServe()
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newMigrateCmd())

	return rootCmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the deploy history schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			logger := setupLogger(cfg)

			store, err := storage.New(cfg.Storage, logger)
			if err != nil {
				return fmt.Errorf("initializing storage: %w", err)
			}
			defer store.Close()

			if err := store.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("running migrations: %w", err)
			}
			logger.Info("migrations applied", "storage", cfg.Storage.Type)
			return nil
		},
	}
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg)
	logger.Info("starting ectoplasm-server",
		"version", version,
		"chain", cfg.Chain.ChainName,
		"node", cfg.Chain.NodeAddress,
	)

	metrics.Init(cfg.Metrics.Enabled, cfg.Metrics.ServiceName)

	dexCfg, err := dex.NewConfig(cfg.Chain)
	if err != nil {
		return fmt.Errorf("invalid chain config: %w", err)
	}

	store, err := storage.New(cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}
	defer store.Close()

	if err := store.Migrate(context.Background()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	gateway := rpc.New(cfg.Chain.NodeAddress, rpc.WithLogger(logger))
	recorder := deploysDomain.NewRecorder(deploysDomain.NewService(store))
	impl := dex.New(dexCfg, gateway,
		dex.WithLogger(logger),
		dex.WithRecorder(recorder),
	)
	facade := dex.LoggingMiddleware(logger)(impl)

	checkNode(facade, logger)

	srv := server.New(cfg, store, facade, logger)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      srv.Handler(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// checkNode logs the node's status at startup. An unreachable node is not
// fatal; /readyz reports it until the node answers.
func checkNode(facade dex.Facade, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	st, err := facade.CheckNode(ctx)
	if err != nil {
		logger.Warn("node check failed", "error", err)
		return
	}
	logger.Info("node reachable",
		"api_version", st.APIVersion,
		"chainspec", st.ChainspecName,
		"build_version", st.BuildVersion,
	)
}

func setupLogger(cfg *config.Config) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Logging.Level),
	}

	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
