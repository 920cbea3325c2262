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

	"github.com/joho/godotenv"

	"github.com/thinkrealty/leadflow/internal/assign"
	"github.com/thinkrealty/leadflow/internal/cache"
	"github.com/thinkrealty/leadflow/internal/config"
	"github.com/thinkrealty/leadflow/internal/ratelimit"
	"github.com/thinkrealty/leadflow/internal/scoring"
	"github.com/thinkrealty/leadflow/internal/server"
	"github.com/thinkrealty/leadflow/internal/service/leads"
	"github.com/thinkrealty/leadflow/internal/storage"
	"github.com/thinkrealty/leadflow/internal/telemetry"
	"github.com/thinkrealty/leadflow/migrations"
)

// version is set at build time via -ldflags.
var version = "dev"

// maxRequestBodyBytes caps lead payloads; intake forms never legitimately
// approach this.
const maxRequestBodyBytes = 1 << 20

func main() {
	os.Exit(run0())
}

func run0() int {
	level := slog.LevelInfo
	if os.Getenv("LEADFLOW_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("leadflow starting", "version", version, "port", cfg.Port)

	// Initialize OpenTelemetry.
	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	// Connect to database and bring the schema up.
	db, err := storage.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer db.Close()

	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	if err := db.SeedDefaultRules(ctx); err != nil {
		return fmt.Errorf("seed rules: %w", err)
	}

	// Scoreboard / duplicate cache: Redis when configured, otherwise
	// in-process (round-robin fairness degrades to per-instance).
	var store cache.Store
	if cfg.RedisURL != "" {
		store, err = cache.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		logger.Info("cache: redis", "url", cfg.RedisURL)
	} else {
		store = cache.NewMemory()
		logger.Info("cache: in-memory (set REDIS_URL for cross-instance rotation)")
	}
	defer func() { _ = store.Close() }()

	// Wire the engines and the lead service.
	scorer := scoring.NewEngine(db, db, db, logger)
	assigner := assign.NewManager(db, db, db, store, cfg.CounterTTL, logger)
	leadSvc := leads.New(db, scorer, assigner, store, cfg.DuplicateWindow, logger)

	// Background sweep for stale assignments.
	reassigner := leads.NewReassigner(leadSvc, cfg.ReassignInterval, cfg.StaleAfter, logger)
	go func() {
		if err := reassigner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("reassigner exited", "error", err)
		}
	}()

	var limiter ratelimit.Limiter
	if cfg.CaptureRateRPS > 0 {
		ml := ratelimit.NewMemoryLimiter(cfg.CaptureRateRPS, cfg.CaptureRateBurst)
		defer func() { _ = ml.Close() }()
		limiter = ml
	}

	srv := server.New(server.ServerConfig{
		LeadSvc:             leadSvc,
		Pinger:              db,
		Logger:              logger,
		Limiter:             limiter,
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: maxRequestBodyBytes,
	})

	// Start HTTP server in background.
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	slog.Info("leadflow shutting down")

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer httpCancel()
	if err := srv.Shutdown(httpCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}

	slog.Info("leadflow stopped")
	return nil
}
