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

	"invoiced/internal/amqp"
	"invoiced/internal/blob"
	"invoiced/internal/config"
	"invoiced/internal/extract"
	"invoiced/internal/resilience"
	"invoiced/internal/storage"
	"invoiced/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("Starting invoiced-worker")

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

	// The OCR service is optional; without it every document goes
	// straight to the local text fallback.
	var primary worker.Extractor
	if cfg.OCRBaseURL != "" {
		exec := resilience.NewExecutor(resilience.DefaultPolicy(), logger)
		primary = extract.NewClient(cfg.OCRBaseURL, cfg.OCRAPIKey, cfg.OCRTimeout, exec, logger)
		logger.Info("OCR extraction enabled", "base_url", cfg.OCRBaseURL)
	} else {
		logger.Info("OCR disabled - no OCR_BASE_URL provided, using local text extraction only")
	}

	extractionWorker := worker.NewExtractionWorker(repo, blobs, primary, extract.Fallback{}, cfg.WorkerBatchSize)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Catch anything uploaded while the worker was down.
	extractionWorker.StartupCatchUp(ctx)

	g, ctx := errgroup.WithContext(ctx)

	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		defer amqpClient.Close()

		g.Go(func() error {
			err := amqpClient.ConsumeExtractionJobs(ctx, func(job *amqp.ExtractionJob) error {
				return extractionWorker.HandleJob(ctx, job)
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	} else {
		logger.Info("AMQP disabled - relying on periodic sweep only")
	}

	// Periodic sweep for jobs the queue missed.
	g.Go(func() error {
		ticker := time.NewTicker(cfg.WorkerInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				n, err := extractionWorker.ProcessPending(ctx)
				if err != nil {
					logger.Error("Periodic extraction sweep failed", "error", err)
					continue
				}
				if n > 0 {
					logger.Info("Periodic extraction sweep completed", "processed", n)
				}
			}
		}
	})

	if err := g.Wait(); err != nil {
		logger.Error("Worker stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete")
}
