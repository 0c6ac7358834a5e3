package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hearthweave/geocass/internal/auth"
	"github.com/hearthweave/geocass/internal/config"
	"github.com/hearthweave/geocass/internal/database"
	"github.com/hearthweave/geocass/internal/directory"
	"github.com/hearthweave/geocass/internal/middleware"
	"github.com/hearthweave/geocass/internal/pages"
	"github.com/hearthweave/geocass/internal/profiles"
	"github.com/hearthweave/geocass/internal/ratelimit"
	"github.com/hearthweave/geocass/internal/repository"
	"github.com/hearthweave/geocass/internal/router"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Server stopped", "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.Debug {
		opts.Level = slog.LevelDebug
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	db, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info("Connected to database", "dialect", db.Dialect())

	if err := db.Migrate(ctx, logger); err != nil {
		return err
	}
	logger.Info("Migrations applied")

	limiter, closeLimiter, err := newLimiter(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeLimiter()

	accountRepo := repository.NewAccountRepo(db)
	keyRepo := repository.NewAPIKeyRepo(db)
	profileRepo := repository.NewProfileRepo(db)
	directoryRepo := repository.NewDirectoryRepo(db)

	authSvc := auth.NewService(accountRepo, keyRepo, auth.Options{
		KeyPrefix:   cfg.APIKeyPrefix,
		LoginKeyTTL: cfg.LoginKeyTTL,
	}, logger)
	profileSvc := profiles.NewService(profileRepo, directoryRepo, cfg.PublicURL, logger)
	directorySvc := directory.NewService(directoryRepo, logger)

	validator, err := profiles.NewValidator()
	if err != nil {
		return err
	}

	handler := router.New(router.Handlers{
		Auth:      auth.NewHandler(authSvc, logger),
		Profiles:  profiles.NewHandler(profileSvc, validator, int64(cfg.MaxHomepageSizeKB)<<10, logger),
		Directory: directory.NewHandler(directorySvc, cfg.PublicURL, logger),
		Pages:     pages.NewHandler(profileSvc, cfg.PublicURL, logger),
	}, authSvc, limiter, router.Options{
		Version:        cfg.AppVersion,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		SyncLimits: middleware.SyncLimits{
			PerMinute: cfg.MaxSyncPerMinute,
			PerDay:    cfg.MaxSyncPerDay,
		},
	}, logger)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", "addr", srv.Addr, "app", cfg.AppName, "version", cfg.AppVersion)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// newLimiter uses Redis when REDIS_URL is configured so quotas hold across
// replicas, and an in-process limiter otherwise.
func newLimiter(ctx context.Context, cfg *config.Config, logger *slog.Logger) (ratelimit.Limiter, func(), error) {
	if cfg.RedisURL == "" {
		logger.Info("Sync rate limiting in memory")
		return ratelimit.NewMemory(), func() {}, nil
	}
	client, err := ratelimit.Connect(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("Sync rate limiting in Redis")
	return ratelimit.NewRedis(client, "geocass"), func() { _ = client.Close() }, nil
}
