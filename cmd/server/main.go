// Command server runs the MediScan HTTP API.
//
//	@title						MediScan API
//	@version					1.0
//	@description				Pharmacy assistant backend: chat with an AI pharmacist, keep conversation history and analyze prescription images.
//	@BasePath					/
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Type "Bearer" followed by a space and the access token.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/Em-Vi/MediScan/internal/ai"
	"github.com/Em-Vi/MediScan/internal/auth"
	"github.com/Em-Vi/MediScan/internal/blob"
	"github.com/Em-Vi/MediScan/internal/config"
	httpapi "github.com/Em-Vi/MediScan/internal/http"
	"github.com/Em-Vi/MediScan/internal/mailer"
	"github.com/Em-Vi/MediScan/internal/observability"
	"github.com/Em-Vi/MediScan/internal/ocr"
	"github.com/Em-Vi/MediScan/internal/repo"
	"github.com/Em-Vi/MediScan/internal/sysutil"
)

const (
	serviceName     = "mediscan-backend"
	version         = "1.0.0"
	shutdownTimeout = 15 * time.Second
	purgeInterval   = time.Hour
)

func main() {
	if err := run(); err != nil {
		log.Error().Err(err).Msg("server failed")
		os.Exit(1)
	}
}

// run wires the server and blocks until it stops. Every deferred cleanup has
// run by the time it returns.
func run() error {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	closer := sysutil.SetupLogger(sysutil.LogOptions{
		Level:   cfg.LogLevel,
		Service: sysutil.FirstNonEmpty(cfg.OTEL.ServiceName, serviceName),
		Pretty:  cfg.LogPretty,
		File:    cfg.LogFile,
	})
	defer closer.Close()
	log.Info().Str("version", version).Msg("starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		return fmt.Errorf("otel setup: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := repo.OpenSQLite(cfg.DBPath, repo.Options{Tracing: cfg.OTEL.Enabled})
	if err != nil {
		return fmt.Errorf("open database %s: %w", cfg.DBPath, err)
	}
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}()
	if err := repo.AutoMigrate(db); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	col, err := collaborators(ctx, cfg)
	if err != nil {
		return fmt.Errorf("collaborators: %w", err)
	}

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, db, cfg, col)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go purgeIdempotency(ctx, db)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("base_path", cfg.APIBasePath).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case serveErr = <-errCh:
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	log.Info().Msg("server exited")
	return serveErr
}

// collaborators builds the external systems. Missing credentials degrade to
// static stand-ins rather than failing startup.
func collaborators(ctx context.Context, cfg config.Config) (httpapi.Collaborators, error) {
	var col httpapi.Collaborators

	gen, degraded, err := ai.New(cfg.AI)
	if err != nil {
		return col, err
	}
	if degraded {
		log.Warn().Str("provider", cfg.AI.Provider).Msg("AI credentials missing, serving mock replies")
	}

	ext, degraded, err := ocr.New(cfg.OCR)
	if err != nil {
		return col, err
	}
	if degraded {
		log.Warn().Str("provider", cfg.OCR.Provider).Msg("OCR credentials missing, images will read as empty")
	}

	if cfg.Mail.Host == "" {
		log.Warn().Msg("SMTP_HOST not set, verification emails are only logged")
	}

	store, err := blob.New(ctx, cfg.Blob)
	if err != nil {
		return col, err
	}

	tokens, err := auth.NewJWTIssuer(cfg.Auth.JWTSecret, cfg.Auth.JWTExpiration)
	if err != nil {
		return col, err
	}

	return httpapi.Collaborators{
		AI:     gen,
		OCR:    ext,
		Mailer: mailer.New(cfg.Mail, log.Logger.With().Str("component", "mailer").Logger()),
		Blob:   store,
		Hasher: auth.NewBcryptHasher(0),
		Tokens: tokens,
	}, nil
}

// purgeIdempotency drops expired replay records until ctx is done.
func purgeIdempotency(ctx context.Context, db *gorm.DB) {
	t := time.NewTicker(purgeInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := repo.PurgeExpiredIdempotency(ctx, db, now.UTC())
			if err != nil {
				log.Warn().Err(err).Msg("purge idempotency keys")
				continue
			}
			if n > 0 {
				log.Debug().Int64("purged", n).Msg("expired idempotency keys removed")
			}
		}
	}
}
