package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/csvload/internal/config"
	"github.com/JonMunkholm/csvload/internal/core"
	"github.com/JonMunkholm/csvload/internal/logging"
	"github.com/JonMunkholm/csvload/internal/schema"
	"github.com/JonMunkholm/csvload/internal/store"
	"github.com/JonMunkholm/csvload/internal/upload"
	"github.com/JonMunkholm/csvload/internal/web"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("configuration loaded", "config", cfg.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer closeStore()
	logger.Info("connected to database", "driver", st.Dialect())

	uploads, err := upload.New(upload.Config{
		Dir:         cfg.Upload.Dir,
		MaxBytes:    cfg.Upload.MaxBytes(),
		PreviewRows: cfg.Upload.PreviewRows,
		CountRows:   cfg.Upload.CountRows,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	schemas, err := schema.New(cfg.Schema.Dir)
	if err != nil {
		return err
	}
	if names, err := schemas.List(); err == nil {
		logger.Info("schemas available", "dir", cfg.Schema.Dir, "count", len(names))
	}

	limiter := core.NewLoadLimiter(cfg.Load.MaxConcurrent, cfg.Load.MaxWait)
	service := core.NewService(st, schemas, uploads, limiter, core.ServiceConfig{
		Loader: core.LoaderConfig{
			ChunkSize: cfg.Load.ChunkSize,
			MaxErrors: cfg.Load.MaxErrors,
		},
		LoadTimeout: cfg.Load.Timeout,
		KeepFiles:   cfg.Upload.KeepFiles,
		Logger:      logger,
	})

	server := web.NewServer(cfg, service, uploads, schemas)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Stop accepting requests first, then let running loads commit.
		err := server.Shutdown(shutdownCtx)

		if status := limiter.Status(); status.Active > 0 {
			logger.Info("waiting for loads to complete", "active", status.Active)
			start := time.Now()
			if werr := limiter.WaitForDrain(shutdownCtx); werr != nil {
				logger.Warn("loads did not complete in time", "error", werr)
			} else {
				logger.Info("all loads completed", "waited", time.Since(start))
			}
		}
		return err
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("server stopped")
	return nil
}
