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
	"time"

	"github.com/kuhlman-labs/migration-tracker/internal/api"
	"github.com/kuhlman-labs/migration-tracker/internal/app"
	"github.com/kuhlman-labs/migration-tracker/internal/config"
	"github.com/kuhlman-labs/migration-tracker/internal/logging"
	"github.com/kuhlman-labs/migration-tracker/internal/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

const shutdownTimeout = 30 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup logging
	logger := logging.NewLogger(cfg.Logging)
	defer func() { _ = logger.Close() }()
	slog.SetDefault(logger.Logger)

	if err := run(cfg, logger.Logger); err != nil {
		slog.Error("Server exited with error", "error", err)
		_ = logger.Close()
		os.Exit(1)
	}
	slog.Info("Server exited")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracker, err := app.New(cfg, logger, app.Options{})
	if err != nil {
		return err
	}

	if err := tracker.Start(ctx); err != nil {
		shutdownApp(tracker)
		return err
	}

	// A nil *Registry inside the interface would still be routed
	var gatherer prometheus.Gatherer
	if tracker.Registry != nil {
		gatherer = tracker.Registry
	}
	server := api.NewServer(tracker.Service, tracker.DB, gatherer, logger)

	// Write timeout stays off so SSE streams are not cut
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	var mcpServer *mcp.Server
	if cfg.MCP.Enabled {
		mcpServer = mcp.NewServer(tracker.Service, logger, mcp.Config{
			Address: cfg.MCP.Address,
			Version: version,
		})
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("Starting server", "port", cfg.Server.Port, "version", version)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if mcpServer != nil {
		g.Go(func() error {
			return mcpServer.Start()
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("server forced to shutdown: %w", err))
		}
		if mcpServer != nil {
			if err := mcpServer.Stop(shutdownCtx); err != nil {
				errs = append(errs, err)
			}
		}
		if err := tracker.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}

func shutdownApp(tracker *app.App) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := tracker.Shutdown(ctx); err != nil {
		slog.Warn("Failed to shut down cleanly", "error", err)
	}
}
