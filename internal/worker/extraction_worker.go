// Package worker runs document extraction for uploaded invoices. Jobs
// arrive over AMQP; a startup catch-up plus a periodic sweep cover
// anything that was queued while the broker or worker was down.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"invoiced/internal/amqp"
	"invoiced/internal/blob"
	"invoiced/internal/core"
	"invoiced/internal/extract"
	"invoiced/internal/storage"
)

// Extractor reads invoice fields out of a document. The OCR client is
// the primary implementation, the local PDF scan the fallback.
type Extractor interface {
	Extract(ctx context.Context, fileName string, content []byte) (extract.Result, error)
}

type ExtractionWorker struct {
	storage   *storage.SQLiteRepository
	blobs     blob.Store
	primary   Extractor
	fallback  Extractor
	batchSize int
}

func NewExtractionWorker(st *storage.SQLiteRepository, blobs blob.Store, primary, fallback Extractor, batchSize int) *ExtractionWorker {
	if batchSize <= 0 {
		batchSize = 25
	}
	return &ExtractionWorker{
		storage:   st,
		blobs:     blobs,
		primary:   primary,
		fallback:  fallback,
		batchSize: batchSize,
	}
}

// HandleJob processes one extraction job. It returns an error only for
// transient infrastructure failures, so the queue redelivers those; a
// document that genuinely cannot be read marks the invoice failed and
// consumes the message.
func (w *ExtractionWorker) HandleJob(ctx context.Context, job *amqp.ExtractionJob) error {
	slog.InfoContext(ctx, "processing extraction job",
		"invoice_id", job.InvoiceID,
		"file_id", job.FileID)

	invoice, userID, err := w.storage.GetInvoiceAny(ctx, job.InvoiceID)
	if errors.Is(err, storage.ErrNotFound) {
		slog.WarnContext(ctx, "invoice gone, dropping job", "invoice_id", job.InvoiceID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load invoice: %w", err)
	}
	if invoice.ExtractionStatus != storage.ExtractionPending {
		slog.InfoContext(ctx, "extraction no longer pending, dropping job",
			"invoice_id", job.InvoiceID, "status", invoice.ExtractionStatus)
		return nil
	}

	file, err := w.storage.GetInvoiceFile(ctx, job.InvoiceID, job.FileID)
	if errors.Is(err, storage.ErrNotFound) {
		slog.WarnContext(ctx, "file gone, dropping job", "file_id", job.FileID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load file: %w", err)
	}

	content, err := w.readBlob(ctx, file.BlobKey)
	if err != nil {
		return fmt.Errorf("read document: %w", err)
	}

	result, err := w.runExtraction(ctx, file.FileName, content)
	if err != nil {
		if errors.Is(err, extract.ErrUnreadable) {
			slog.WarnContext(ctx, "document not readable, marking extraction failed",
				"invoice_id", job.InvoiceID, "error", err)
			return w.markFailed(ctx, job.InvoiceID)
		}
		return fmt.Errorf("extract fields: %w", err)
	}

	eurCents := w.suggestEUR(ctx, userID, result)
	if err := w.storage.ApplyExtractionResult(ctx, job.InvoiceID, result.AmountCents, eurCents, result.Year, result.Month); err != nil {
		return fmt.Errorf("apply extraction result: %w", err)
	}

	slog.InfoContext(ctx, "extraction complete",
		"invoice_id", job.InvoiceID,
		"amount_cents", result.AmountCents,
		"currency", result.Currency,
		"year", result.Year,
		"month", result.Month)
	return nil
}

// runExtraction tries the OCR service first and falls back to the
// local text scan when the service is down, disabled or rejects the
// document.
func (w *ExtractionWorker) runExtraction(ctx context.Context, fileName string, content []byte) (extract.Result, error) {
	if w.primary == nil {
		return w.fallback.Extract(ctx, fileName, content)
	}

	result, err := w.primary.Extract(ctx, fileName, content)
	if err == nil {
		return result, nil
	}
	if w.fallback == nil {
		return extract.Result{}, err
	}

	slog.WarnContext(ctx, "ocr extraction failed, trying local fallback", "error", err)
	fbResult, fbErr := w.fallback.Extract(ctx, fileName, content)
	if fbErr != nil {
		// Report the primary failure; the fallback result is secondary.
		return extract.Result{}, err
	}
	return fbResult, nil
}

// suggestEUR converts a GBP amount using the user's configured rate so
// the invoice carries a pre-computed EUR value. EUR amounts need no
// conversion and other results leave the field empty.
func (w *ExtractionWorker) suggestEUR(ctx context.Context, userID string, result extract.Result) *int64 {
	if result.AmountCents <= 0 {
		return nil
	}
	switch result.Currency {
	case core.CurrencyEUR:
		cents := result.AmountCents
		return &cents
	case core.CurrencyGBP:
		raw, err := w.storage.GetConversionRate(ctx, userID)
		if err != nil {
			slog.ErrorContext(ctx, "failed to load conversion rate", "user_id", userID, "error", err)
			raw = ""
		}
		rate := core.ParseRate(raw)
		cents := core.Money{Cents: result.AmountCents}.MulRate(rate).Cents
		return &cents
	default:
		return nil
	}
}

func (w *ExtractionWorker) markFailed(ctx context.Context, invoiceID string) error {
	if err := w.storage.SetExtractionStatus(ctx, invoiceID, storage.ExtractionFailed); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("mark extraction failed: %w", err)
	}
	return nil
}

func (w *ExtractionWorker) readBlob(ctx context.Context, key string) ([]byte, error) {
	rc, err := w.blobs.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// ProcessPending sweeps invoices stuck in pending, covering jobs lost
// to broker outages. Individual failures are logged and skipped so one
// bad document never stalls the batch.
func (w *ExtractionWorker) ProcessPending(ctx context.Context) (int, error) {
	pending, err := w.storage.ListPendingExtractions(ctx, w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list pending extractions: %w", err)
	}

	processed := 0
	for _, p := range pending {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		job := &amqp.ExtractionJob{InvoiceID: p.InvoiceID, FileID: p.FileID}
		if err := w.HandleJob(ctx, job); err != nil {
			slog.ErrorContext(ctx, "catch-up extraction failed",
				"invoice_id", p.InvoiceID, "error", err)
			continue
		}
		processed++
	}
	return processed, nil
}

// StartupCatchUp drains the pending backlog once at boot.
func (w *ExtractionWorker) StartupCatchUp(ctx context.Context) {
	n, err := w.ProcessPending(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "startup catch-up failed", "error", err)
		return
	}
	if n > 0 {
		slog.InfoContext(ctx, "startup catch-up complete", "processed", n)
	}
}

var _ Extractor = (*extract.Client)(nil)
var _ Extractor = extract.Fallback{}
