// Package services orchestrates operations that span storage, blob
// files and the message queue.
package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"invoiced/internal/blob"
	"invoiced/internal/core"
	"invoiced/internal/storage"
)

// JobPublisher enqueues extraction work. The AMQP client implements
// it; tests substitute a fake.
type JobPublisher interface {
	PublishExtractionJob(ctx context.Context, invoiceID, fileID string) error
}

// InvoiceService ties uploads together: document bytes go to the blob
// store, metadata to SQLite, and an extraction job to the queue.
type InvoiceService struct {
	storage   *storage.SQLiteRepository
	blobs     blob.Store
	publisher JobPublisher
}

func NewInvoiceService(st *storage.SQLiteRepository, blobs blob.Store, publisher JobPublisher) *InvoiceService {
	return &InvoiceService{
		storage:   st,
		blobs:     blobs,
		publisher: publisher,
	}
}

// AttachFile stores an uploaded document and queues extraction for it.
// The upload succeeds even when the queue is down; the worker's
// catch-up pass picks the invoice up later.
func (s *InvoiceService) AttachFile(ctx context.Context, userID, invoiceID, fileName, contentType string, size int64, data io.Reader) (core.InvoiceFile, error) {
	if _, err := s.storage.GetInvoice(ctx, userID, invoiceID); err != nil {
		return core.InvoiceFile{}, err
	}

	key := uuid.NewString()
	if err := s.blobs.Save(ctx, key, data); err != nil {
		return core.InvoiceFile{}, fmt.Errorf("save document: %w", err)
	}

	file, err := s.storage.AddInvoiceFile(ctx, userID, core.InvoiceFile{
		InvoiceID:   invoiceID,
		FileName:    fileName,
		BlobKey:     key,
		ContentType: contentType,
		SizeBytes:   size,
	})
	if err != nil {
		if delErr := s.blobs.Delete(ctx, key); delErr != nil {
			slog.ErrorContext(ctx, "failed to clean up orphaned blob", "key", key, "error", delErr)
		}
		return core.InvoiceFile{}, fmt.Errorf("record document: %w", err)
	}

	if err := s.storage.SetExtractionStatus(ctx, invoiceID, storage.ExtractionPending); err != nil {
		slog.ErrorContext(ctx, "failed to mark extraction pending",
			"invoice_id", invoiceID, "error", err)
	}

	if err := s.publishJob(ctx, invoiceID, file.ID); err != nil {
		slog.ErrorContext(ctx, "failed to publish extraction job",
			"invoice_id", invoiceID, "file_id", file.ID, "error", err)
		// Upload already succeeded; the worker catch-up covers this.
	}

	return file, nil
}

// OpenFile returns the document bytes for a file the user owns.
func (s *InvoiceService) OpenFile(ctx context.Context, userID, invoiceID, fileID string) (core.InvoiceFile, io.ReadCloser, error) {
	if _, err := s.storage.GetInvoice(ctx, userID, invoiceID); err != nil {
		return core.InvoiceFile{}, nil, err
	}
	file, err := s.storage.GetInvoiceFile(ctx, invoiceID, fileID)
	if err != nil {
		return core.InvoiceFile{}, nil, err
	}
	rc, err := s.blobs.Open(ctx, file.BlobKey)
	if err != nil {
		return core.InvoiceFile{}, nil, fmt.Errorf("open document: %w", err)
	}
	return file, rc, nil
}

// DeleteInvoice removes the invoice row and its stored documents.
func (s *InvoiceService) DeleteInvoice(ctx context.Context, userID, invoiceID string) error {
	files, err := s.storage.ListInvoiceFiles(ctx, invoiceID)
	if err != nil {
		return err
	}
	if err := s.storage.DeleteInvoice(ctx, userID, invoiceID); err != nil {
		return err
	}
	for _, f := range files {
		if err := s.blobs.Delete(ctx, f.BlobKey); err != nil {
			slog.ErrorContext(ctx, "failed to delete blob", "key", f.BlobKey, "error", err)
		}
	}
	return nil
}

func (s *InvoiceService) publishJob(ctx context.Context, invoiceID, fileID string) error {
	if s.publisher == nil {
		slog.WarnContext(ctx, "queue not available, skipping extraction job")
		return nil
	}
	return s.publisher.PublishExtractionJob(ctx, invoiceID, fileID)
}
