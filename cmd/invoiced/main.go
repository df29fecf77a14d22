package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"invoiced/internal/amqp"
	"invoiced/internal/auth"
	"invoiced/internal/blob"
	"invoiced/internal/config"
	apphttp "invoiced/internal/http"
	"invoiced/internal/mail"
	"invoiced/internal/metrics"
	"invoiced/internal/services"
	"invoiced/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	blobs, err := blob.NewLocalStore(cfg.BlobDir)
	if err != nil {
		logger.Error("Failed to initialize blob store", "error", err, "dir", cfg.BlobDir)
		os.Exit(1)
	}

	// The queue is optional at startup: uploads still succeed without it
	// and the worker's catch-up pass covers missed extraction jobs.
	var publisher services.JobPublisher
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, extraction jobs will rely on worker catch-up", "error", err)
		} else {
			defer amqpClient.Close()
			publisher = amqpClient
		}
	}

	gmailCredentials, err := cfg.GmailClientCredentials()
	if err != nil {
		logger.Error("Failed to load Gmail OAuth client credentials", "error", err)
		os.Exit(1)
	}

	var verifier auth.Verifier
	if cfg.AuthServiceURL != "" {
		verifier = auth.NewRemoteVerifier(cfg.AuthServiceURL, 5*time.Second)
		logger.Info("Using remote auth service", "url", cfg.AuthServiceURL)
	} else {
		verifier = auth.StaticVerifier{cfg.AuthDevToken: cfg.AuthDevUser}
		logger.Warn("Using static dev token auth", "user", cfg.AuthDevUser)
	}

	srv := apphttp.NewServer(apphttp.Options{
		Addr:               ":" + cfg.Port,
		Verifier:           verifier,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		MaxUploadBytes:     cfg.MaxUploadBytes,
	}, repo,
		services.NewInvoiceService(repo, blobs, publisher),
		mail.NewSendService(repo, blobs, mail.NewSenderFactory(gmailCredentials)),
		blobs,
		metrics.New("api"))

	srv.ReadTimeout = 30 * time.Second
	srv.WriteTimeout = 60 * time.Second
	srv.IdleTimeout = 60 * time.Second

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cancel()
	}()

	logger.Info("Starting invoiced server", "port", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}
