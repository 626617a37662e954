package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/edu-api/edu_auth/internal/config"
	"github.com/edu-api/edu_auth/internal/identity"
	"github.com/edu-api/edu_auth/internal/infra"
	"github.com/edu-api/edu_auth/internal/logging"
	"github.com/edu-api/edu_auth/internal/metrics"
	"github.com/edu-api/edu_auth/internal/server"
)

const startupTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	var backends server.Backends

	switch {
	case cfg.DatabaseURL != "":
		db, err := infra.NewPostgresPool(ctx, cfg.DatabaseURL, infra.PostgresOptions{ApplicationName: cfg.AppName})
		if err != nil {
			logger.Error("connect postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := identity.NewPostgresRepository(db).EnsureSchema(ctx); err != nil {
			logger.Error("migrate postgres", "error", err)
			os.Exit(1)
		}
		backends.DB = db
	case cfg.SQLitePath != "":
		db, err := infra.NewSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Error("open sqlite", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := identity.NewSQLiteRepository(db).Migrate(ctx); err != nil {
			logger.Error("migrate sqlite", "error", err)
			os.Exit(1)
		}
		backends.SQLite = db
	}

	if cfg.RedisURL != "" {
		cache, err := infra.NewRedisClient(ctx, cfg.RedisURL, infra.RedisOptions{ClientName: cfg.AppName})
		if err != nil {
			logger.Error("connect redis", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := cache.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		}()
		backends.Cache = cache
	}

	srv, err := server.New(cfg, backends, metrics.New(), logger)
	if err != nil {
		logger.Error("build server", "error", err)
		os.Exit(1)
	}

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()
	logger.Info("server listening", "addr", cfg.Address(), "env", cfg.AppEnv)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-srvErrCh:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server exited cleanly")
}
