package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"

	"github.com/lumiprint/backend/internal/auth"
	"github.com/lumiprint/backend/internal/codes"
	"github.com/lumiprint/backend/internal/config"
	"github.com/lumiprint/backend/internal/dashboard"
	"github.com/lumiprint/backend/internal/execution"
	"github.com/lumiprint/backend/internal/ledger"
	"github.com/lumiprint/backend/internal/mailer"
	"github.com/lumiprint/backend/internal/photos"
	"github.com/lumiprint/backend/internal/pipeline"
	"github.com/lumiprint/backend/internal/remote"
	"github.com/lumiprint/backend/internal/router"
	"github.com/lumiprint/backend/internal/transform"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		slog.Error("Config load failed", "error", err)
		os.Exit(1)
	}
	if cfg.Auth.JWTSecret == "" {
		slog.Warn("JWT_SECRET not set, using insecure development secret")
		cfg.Auth.JWTSecret = "insecure-dev-secret"
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		slog.Error("Unable to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("Cannot reach PostgreSQL (connection refused or invalid). Ensure Postgres is running", "error", err)
		os.Exit(1)
	}
	slog.Info("Connected to PostgreSQL")

	if err := bootstrapSchema(ctx, pool); err != nil {
		slog.Error("Schema bootstrap failed", "error", err)
		os.Exit(1)
	}

	// River migrations
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		slog.Error("Failed to create River migrator", "error", err)
		os.Exit(1)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		slog.Error("River migrate up failed", "error", err)
		os.Exit(1)
	}
	slog.Info("River migrations applied")

	exec := remote.New(remote.Config{
		Timeout:     cfg.Remote.Timeout(),
		MaxAttempts: cfg.Remote.MaxAttempts,
		Backoff:     cfg.Remote.Backoff(),
		PoolSize:    cfg.Remote.PoolSize,
	}, logger)

	// Ledger
	ledgerRepo := ledger.NewRepository(pool)
	ledgerSvc := ledger.NewService(ledgerRepo, exec, logger)

	// Auth
	authRepo := auth.NewRepository(pool)
	authSvc := auth.NewService(authRepo, exec, cfg.Auth.JWTSecret)
	authHandler := auth.NewHandler(authSvc, logger)

	// Mailer: real SMTP when a relay is configured, log-only otherwise.
	var mail codes.Mailer
	if cfg.SMTP.Host != "" {
		mail = mailer.NewSMTP(mailer.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			From:     cfg.SMTP.From,
			Password: cfg.SMTP.Password,
		}, logger)
	} else {
		slog.Warn("No SMTP relay configured, codes are logged instead of mailed")
		mail = mailer.NewLogOnly(logger)
	}

	// Codes
	codesRepo := codes.NewRepository(pool)
	codesSvc := codes.NewService(codes.Config{
		VerificationLength: cfg.Codes.VerificationLength,
		VerificationTTL:    time.Duration(cfg.Codes.VerificationTTLMinutes) * time.Minute,
		ResetLength:        cfg.Codes.ResetLength,
		ResetTTL:           time.Duration(cfg.Codes.ResetTTLMinutes) * time.Minute,
		WelcomeBonus:       cfg.Codes.WelcomeBonus,
	}, codesRepo, exec, authSvc, ledgerSvc, mail, logger)
	authSvc.SetCodeIssuer(codesSvc)
	codesHandler := codes.NewHandler(codesSvc, authSvc, logger)

	// Pipeline
	transformer := transform.NewClient(cfg.Transform.Endpoint, exec, logger)
	runner := pipeline.NewRunner(ledgerSvc, transformer, cfg.Pipeline.OutputDir, logger)

	// Photos: insert func is set after the River client exists (breaks init
	// cycle)
	var insertMu sync.Mutex
	var insertFn photos.InsertProcessPhotosTxFunc
	insertProcessPhotos := func(ctx context.Context, tx pgx.Tx, args execution.ProcessPhotosArgs) error {
		insertMu.Lock()
		fn := insertFn
		insertMu.Unlock()
		if fn == nil {
			panic("river insert not wired")
		}
		return fn(ctx, tx, args)
	}

	photosRepo := photos.NewRepository(pool)
	photosSvc := photos.NewService(photosRepo, insertProcessPhotos)

	workers := river.NewWorkers()
	river.AddWorker(workers, execution.NewProcessPhotosWorker(photosSvc, runner, logger))

	// A single worker on the processing queue keeps debits strictly ordered.
	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			execution.QueueProcessing: {MaxWorkers: 1},
		},
		Workers: workers,
	})
	if err != nil {
		slog.Error("Failed to create River client", "error", err)
		os.Exit(1)
	}

	insertMu.Lock()
	insertFn = func(ctx context.Context, tx pgx.Tx, args execution.ProcessPhotosArgs) error {
		_, err := riverClient.InsertTx(ctx, tx, args, nil)
		return err
	}
	insertMu.Unlock()

	photosHandler := photos.NewHandler(photosSvc, authSvc, logger)
	dashHandler := dashboard.NewHandler(authSvc, ledgerSvc, logger)

	handler := router.New(authHandler, codesHandler, photosHandler, dashHandler, logger)

	// Expired unused codes are swept hourly.
	purgeCtx, stopPurge := context.WithCancel(ctx)
	defer stopPurge()
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n, err := codesSvc.PurgeExpired(purgeCtx); err != nil {
					slog.Error("Code purge failed", "error", err)
				} else if n > 0 {
					slog.Info("Purged expired codes", "count", n)
				}
			case <-purgeCtx.Done():
				return
			}
		}
	}()

	riverCtx, stopRiver := context.WithCancel(ctx)
	defer stopRiver()
	go func() {
		if err := riverClient.Start(riverCtx); err != nil && riverCtx.Err() == nil {
			slog.Error("River client stopped", "error", err)
		}
	}()

	slog.Info("Starting HTTP server", "addr", cfg.Server.Addr)
	if err := http.ListenAndServe(cfg.Server.Addr, handler); err != nil {
		slog.Error("HTTP server failed", "error", err)
		os.Exit(1)
	}
}
