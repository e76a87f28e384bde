// Command mailspend runs the email-to-ledger ingestion service: a recurring
// pipeline that scans an IMAP mailbox, extracts financial transactions with
// an AI model, persists them idempotently to SQLite, and serves a read-only
// dashboard API over the results.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mailspend/mailspend/internal/config"
	"github.com/mailspend/mailspend/internal/extract"
	httpapi "github.com/mailspend/mailspend/internal/http"
	"github.com/mailspend/mailspend/internal/mail"
	"github.com/mailspend/mailspend/internal/observability"
	"github.com/mailspend/mailspend/internal/repo"
	"github.com/mailspend/mailspend/internal/scheduler"
	"github.com/mailspend/mailspend/internal/sysutil"
)

func main() {
	// Local development convenience; a missing .env is not an error.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	version := sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), httpapi.Version)
	httpapi.Version = version

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Error().Err(err).Msg("otel shutdown failed")
		}
	}()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("db_path", cfg.DBPath).Msg("open database failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database failed")
	}

	mailbox := mail.NewIMAPClient(mail.IMAPConfig{
		Addr:       cfg.Mail.Addr,
		Username:   cfg.Mail.Username,
		Password:   cfg.Mail.Password,
		Folder:     cfg.Mail.Folder,
		Timeout:    cfg.Mail.Timeout,
		FetchChunk: cfg.Mail.FetchChunk,
	})
	defer func() {
		if err := mailbox.Close(); err != nil {
			log.Warn().Err(err).Msg("mailbox close failed")
		}
	}()

	model, err := extract.NewGeminiModel(ctx, cfg.AI.APIKey, cfg.AI.Model, cfg.AI.RateRPS, cfg.AI.Timeout)
	if err != nil {
		log.Fatal().Err(err).Msg("model client setup failed")
	}

	runner := &scheduler.Runner{
		DB:        db,
		Mailbox:   mailbox,
		Extractor: extract.New(model),
		Policy: scheduler.RetryPolicy{
			MaxRetries: cfg.Pipeline.MaxRetries,
			Delay:      cfg.Pipeline.RetryDelay,
			Backoff:    cfg.Pipeline.RetryBackoff,
		},
		Sender:   cfg.Mail.SenderFilter,
		Interval: cfg.Pipeline.PollInterval,
		Overlap:  cfg.Pipeline.Overlap,
		Lookback: cfg.Pipeline.Lookback,
	}

	runnerDone := make(chan struct{})
	go func() {
		defer close(runnerDone)
		runner.Start(ctx)
	}()

	gin.SetMode(cfg.GinMode)
	engine := gin.New()
	httpapi.RegisterRoutes(engine, db, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown failed")
	}

	// The runner drains between messages once its context is cancelled.
	select {
	case <-runnerDone:
	case <-shutdownCtx.Done():
		log.Warn().Msg("runner did not drain before shutdown deadline")
	}

	log.Info().Msg("service exited")
}
