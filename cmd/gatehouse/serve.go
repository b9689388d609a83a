// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/gatehouse/gatehouse/internal/auth"
	authpg "github.com/gatehouse/gatehouse/internal/auth/postgres"
	"github.com/gatehouse/gatehouse/internal/config"
	"github.com/gatehouse/gatehouse/internal/httpapi"
	"github.com/gatehouse/gatehouse/internal/logging"
	"github.com/gatehouse/gatehouse/internal/observability"
	"github.com/gatehouse/gatehouse/internal/store"
	"github.com/gatehouse/gatehouse/pkg/errutil"
)

// shutdownTimeout bounds graceful shutdown of the HTTP servers.
const shutdownTimeout = 10 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the authentication server",
		Long: `Start the Gatehouse HTTP API and observability servers, applying any
pending database migrations first.`,
		RunE: runServe,
	}
	config.RegisterFlags(cmd.Flags())
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("database URL is required (set DATABASE_URL or database_url)")
	}

	logging.SetDefault("gatehouse", version, cfg.LogFormat)
	logger := slog.Default()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Migrations run before the pool opens so the schema is always current.
	migrator, err := store.NewMigrator(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	if err := migrator.Up(); err != nil {
		return err
	}
	if err := migrator.Close(); err != nil {
		errutil.LogError(logger, "failed to close migrator", err)
	}

	db, err := store.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	service, err := auth.NewService(
		authpg.NewUserRepository(db.Pool()),
		authpg.NewSessionRepository(db.Pool()),
		authpg.NewPasswordResetRepository(db.Pool()),
		auth.NewArgon2idHasher(),
		auth.WithLogger(logger),
		auth.WithSessionTTL(cfg.SessionTTL),
		auth.WithResetTTL(cfg.ResetTTL),
	)
	if err != nil {
		return err
	}

	// Readiness flips once both servers are listening.
	var ready atomic.Bool
	obsServer := observability.NewServer(cfg.MetricsAddr, ready.Load)
	obsErrCh, err := obsServer.Start()
	if err != nil {
		return err
	}

	handler := httpapi.NewHandler(service, logger, obsServer.Metrics())
	apiServer := httpapi.NewServer(cfg.ListenAddr, handler, logger)
	apiErrCh, err := apiServer.Start()
	if err != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if stopErr := obsServer.Stop(stopCtx); stopErr != nil {
			errutil.LogError(logger, "failed to stop observability server", stopErr)
		}
		return err
	}

	// Periodic cleanup of expired sessions and reset tokens.
	go runPurgeLoop(ctx, service, logger)

	ready.Store(true)
	logger.Info("gatehouse started",
		"api_addr", apiServer.Addr(),
		"metrics_addr", obsServer.Addr(),
		"version", version)

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-apiErrCh:
		if err != nil {
			runErr = oops.With("server", "api").Wrap(err)
		}
	case err := <-obsErrCh:
		if err != nil {
			runErr = oops.With("server", "observability").Wrap(err)
		}
	}

	ready.Store(false)

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := apiServer.Stop(stopCtx); err != nil {
		errutil.LogError(logger, "failed to stop api server", err)
	}
	if err := obsServer.Stop(stopCtx); err != nil {
		errutil.LogError(logger, "failed to stop observability server", err)
	}

	logger.Info("gatehouse stopped")
	return runErr
}

// purgeInterval is how often expired sessions and reset tokens are swept.
const purgeInterval = time.Hour

func runPurgeLoop(ctx context.Context, service *auth.Service, logger *slog.Logger) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sessions, resets, err := service.PurgeExpired(ctx)
			if err != nil {
				errutil.LogError(logger, "purge of expired rows failed", err)
				continue
			}
			if sessions > 0 || resets > 0 {
				logger.Info("purged expired rows",
					"sessions", sessions, "resets", resets)
			}
		}
	}
}
