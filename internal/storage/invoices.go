package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"invoiced/internal/core"
)

// Extraction lifecycle of an invoice's attached document.
const (
	ExtractionNone    = "none"
	ExtractionPending = "pending"
	ExtractionDone    = "done"
	ExtractionFailed  = "failed"
)

// FlagPatch carries a partial update of the three workflow booleans.
// A nil field leaves the flag untouched.
type FlagPatch struct {
	SentToClient     *bool
	SentToAccountant *bool
	PaymentReceived  *bool
}

// PendingExtraction identifies one queued OCR job for the worker's
// catch-up pass.
type PendingExtraction struct {
	InvoiceID string
	FileID    string
	UserID    string
}

const invoiceColumns = `id, client_id, amount_cents, amount_eur_cents, year, month,
	sent_to_client, sent_to_client_at, sent_to_accountant, sent_to_accountant_at,
	payment_received, payment_received_at, extraction_status`

func (r *SQLiteRepository) CreateInvoice(ctx context.Context, userID string, inv core.Invoice) (core.Invoice, error) {
	inv.ID = uuid.NewString()
	inv.ExtractionStatus = ExtractionNone
	now := nowStamp()
	var amountEUR any
	if inv.AmountEUR != nil {
		amountEUR = inv.AmountEUR.Cents
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO invoices (id, user_id, client_id, amount_cents, amount_eur_cents, year, month, extraction_status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, userID, inv.ClientID, inv.Amount.Cents, amountEUR, inv.Year, inv.Month, ExtractionNone, now, now)
	if err != nil {
		return core.Invoice{}, fmt.Errorf("insert invoice: %w", err)
	}
	return inv, nil
}

func (r *SQLiteRepository) GetInvoice(ctx context.Context, userID, id string) (core.Invoice, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE id = ? AND user_id = ?`, id, userID)
	return scanInvoice(row)
}

// GetInvoiceAny fetches an invoice without a user scope together with
// its owner. The extraction worker uses it when handling queue jobs.
func (r *SQLiteRepository) GetInvoiceAny(ctx context.Context, id string) (core.Invoice, string, error) {
	var userID string
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id FROM invoices WHERE id = ?`, id).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Invoice{}, "", ErrNotFound
	}
	if err != nil {
		return core.Invoice{}, "", fmt.Errorf("get invoice owner: %w", err)
	}
	inv, err := r.GetInvoice(ctx, userID, id)
	return inv, userID, err
}

func (r *SQLiteRepository) ListInvoices(ctx context.Context, userID string) ([]core.Invoice, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE user_id = ? ORDER BY year DESC, month DESC, created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	defer rows.Close()

	invoices := []core.Invoice{}
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

func (r *SQLiteRepository) UpdateInvoice(ctx context.Context, userID string, inv core.Invoice) error {
	var amountEUR any
	if inv.AmountEUR != nil {
		amountEUR = inv.AmountEUR.Cents
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE invoices SET client_id = ?, amount_cents = ?, amount_eur_cents = ?, year = ?, month = ?, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		inv.ClientID, inv.Amount.Cents, amountEUR, inv.Year, inv.Month, nowStamp(), inv.ID, userID)
	if err != nil {
		return fmt.Errorf("update invoice: %w", err)
	}
	return requireAffected(res)
}

func (r *SQLiteRepository) DeleteInvoice(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM invoices WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete invoice: %w", err)
	}
	return requireAffected(res)
}

// UpdateFlags applies a partial workflow-flag update. Flags are
// independent; setting one records the moment, clearing one drops it.
func (r *SQLiteRepository) UpdateFlags(ctx context.Context, userID, id string, patch FlagPatch) (core.Invoice, error) {
	inv, err := r.GetInvoice(ctx, userID, id)
	if err != nil {
		return core.Invoice{}, err
	}

	now := time.Now().UTC()
	apply := func(set *bool, flag *bool, at **time.Time) {
		if set == nil {
			return
		}
		*flag = *set
		if *set {
			*at = &now
		} else {
			*at = nil
		}
	}
	apply(patch.SentToClient, &inv.Flags.SentToClient, &inv.Flags.SentToClientAt)
	apply(patch.SentToAccountant, &inv.Flags.SentToAccountant, &inv.Flags.SentToAccountantAt)
	apply(patch.PaymentReceived, &inv.Flags.PaymentReceived, &inv.Flags.PaymentReceivedAt)

	_, err = r.db.ExecContext(ctx,
		`UPDATE invoices SET sent_to_client = ?, sent_to_client_at = ?,
		        sent_to_accountant = ?, sent_to_accountant_at = ?,
		        payment_received = ?, payment_received_at = ?, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		boolToInt(inv.Flags.SentToClient), stampOrNil(inv.Flags.SentToClientAt),
		boolToInt(inv.Flags.SentToAccountant), stampOrNil(inv.Flags.SentToAccountantAt),
		boolToInt(inv.Flags.PaymentReceived), stampOrNil(inv.Flags.PaymentReceivedAt),
		nowStamp(), id, userID)
	if err != nil {
		return core.Invoice{}, fmt.Errorf("update flags: %w", err)
	}
	return inv, nil
}

// ListInvoiceRecords returns the flattened rows the finance aggregator
// consumes, denormalizing client name and currency at read time.
func (r *SQLiteRepository) ListInvoiceRecords(ctx context.Context, userID string) ([]core.InvoiceRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT COALESCE(c.name, ''), COALESCE(c.currency, ''),
		        i.amount_cents, i.amount_eur_cents, i.year, i.month,
		        i.sent_to_client, i.sent_to_accountant, i.payment_received
		 FROM invoices i LEFT JOIN clients c ON c.id = i.client_id
		 WHERE i.user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("list invoice records: %w", err)
	}
	defer rows.Close()

	records := []core.InvoiceRecord{}
	for rows.Next() {
		var rec core.InvoiceRecord
		var amountEUR sql.NullInt64
		var sentToClient, sentToAccountant, paymentReceived int
		if err := rows.Scan(&rec.ClientName, &rec.ClientCurrency,
			&rec.Amount.Cents, &amountEUR, &rec.Year, &rec.Month,
			&sentToClient, &sentToAccountant, &paymentReceived); err != nil {
			return nil, fmt.Errorf("scan invoice record: %w", err)
		}
		if rec.ClientCurrency == "" {
			rec.ClientCurrency = core.CurrencyEUR
		}
		if amountEUR.Valid {
			rec.AmountEUR = &core.Money{Cents: amountEUR.Int64}
		}
		rec.SentToClient = sentToClient != 0
		rec.SentToAccountant = sentToAccountant != 0
		rec.PaymentReceived = paymentReceived != 0
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *SQLiteRepository) AddInvoiceFile(ctx context.Context, userID string, f core.InvoiceFile) (core.InvoiceFile, error) {
	// Ownership check before touching invoice_files.
	if _, err := r.GetInvoice(ctx, userID, f.InvoiceID); err != nil {
		return core.InvoiceFile{}, err
	}

	f.ID = uuid.NewString()
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position), -1) + 1 FROM invoice_files WHERE invoice_id = ?`, f.InvoiceID).
		Scan(&f.Position)
	if err != nil {
		return core.InvoiceFile{}, fmt.Errorf("next file position: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO invoice_files (id, invoice_id, file_name, blob_key, content_type, size_bytes, position, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.InvoiceID, f.FileName, f.BlobKey, f.ContentType, f.SizeBytes, f.Position, nowStamp())
	if err != nil {
		return core.InvoiceFile{}, fmt.Errorf("insert invoice file: %w", err)
	}
	return f, nil
}

func (r *SQLiteRepository) ListInvoiceFiles(ctx context.Context, invoiceID string) ([]core.InvoiceFile, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, invoice_id, file_name, blob_key, content_type, size_bytes, position
		 FROM invoice_files WHERE invoice_id = ? ORDER BY position`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("list invoice files: %w", err)
	}
	defer rows.Close()

	files := []core.InvoiceFile{}
	for rows.Next() {
		var f core.InvoiceFile
		if err := rows.Scan(&f.ID, &f.InvoiceID, &f.FileName, &f.BlobKey, &f.ContentType, &f.SizeBytes, &f.Position); err != nil {
			return nil, fmt.Errorf("scan invoice file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

func (r *SQLiteRepository) GetInvoiceFile(ctx context.Context, invoiceID, fileID string) (core.InvoiceFile, error) {
	var f core.InvoiceFile
	err := r.db.QueryRowContext(ctx,
		`SELECT id, invoice_id, file_name, blob_key, content_type, size_bytes, position
		 FROM invoice_files WHERE id = ? AND invoice_id = ?`, fileID, invoiceID).
		Scan(&f.ID, &f.InvoiceID, &f.FileName, &f.BlobKey, &f.ContentType, &f.SizeBytes, &f.Position)
	if errors.Is(err, sql.ErrNoRows) {
		return core.InvoiceFile{}, ErrNotFound
	}
	if err != nil {
		return core.InvoiceFile{}, fmt.Errorf("get invoice file: %w", err)
	}
	return f, nil
}

func (r *SQLiteRepository) SetExtractionStatus(ctx context.Context, invoiceID, status string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE invoices SET extraction_status = ?, updated_at = ? WHERE id = ?`,
		status, nowStamp(), invoiceID)
	if err != nil {
		return fmt.Errorf("set extraction status: %w", err)
	}
	return requireAffected(res)
}

// ApplyExtractionResult stores the extracted suggestion on the invoice
// and marks extraction done. A zero month/year leaves the stored period
// untouched; amounts overwrite only when the invoice still holds zero,
// so user-entered values are never clobbered by OCR.
func (r *SQLiteRepository) ApplyExtractionResult(ctx context.Context, invoiceID string, amountCents int64, amountEURCents *int64, year, month int) error {
	var amountEUR any
	if amountEURCents != nil {
		amountEUR = *amountEURCents
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE invoices SET
		    amount_cents = CASE WHEN amount_cents = 0 THEN ? ELSE amount_cents END,
		    amount_eur_cents = COALESCE(amount_eur_cents, ?),
		    year = CASE WHEN year = 0 THEN ? ELSE year END,
		    month = CASE WHEN month = 0 THEN ? ELSE month END,
		    extraction_status = ?, updated_at = ?
		 WHERE id = ?`,
		amountCents, amountEUR, year, month, ExtractionDone, nowStamp(), invoiceID)
	if err != nil {
		return fmt.Errorf("apply extraction result: %w", err)
	}
	return nil
}

// ListPendingExtractions returns queued jobs for the worker's periodic
// catch-up pass, oldest first. Each pending invoice reports its most
// recently attached file.
func (r *SQLiteRepository) ListPendingExtractions(ctx context.Context, limit int) ([]PendingExtraction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT i.id, i.user_id, f.id
		 FROM invoices i
		 JOIN invoice_files f ON f.invoice_id = i.id
		 WHERE i.extraction_status = ?
		   AND f.position = (SELECT MAX(position) FROM invoice_files WHERE invoice_id = i.id)
		 ORDER BY i.updated_at
		 LIMIT ?`, ExtractionPending, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending extractions: %w", err)
	}
	defer rows.Close()

	pending := []PendingExtraction{}
	for rows.Next() {
		var p PendingExtraction
		if err := rows.Scan(&p.InvoiceID, &p.UserID, &p.FileID); err != nil {
			return nil, fmt.Errorf("scan pending extraction: %w", err)
		}
		pending = append(pending, p)
	}
	return pending, rows.Err()
}

func scanInvoice(row rowScanner) (core.Invoice, error) {
	var inv core.Invoice
	var amountEUR sql.NullInt64
	var sentToClient, sentToAccountant, paymentReceived int
	var sentToClientAt, sentToAccountantAt, paymentReceivedAt sql.NullString

	err := row.Scan(&inv.ID, &inv.ClientID, &inv.Amount.Cents, &amountEUR, &inv.Year, &inv.Month,
		&sentToClient, &sentToClientAt, &sentToAccountant, &sentToAccountantAt,
		&paymentReceived, &paymentReceivedAt, &inv.ExtractionStatus)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Invoice{}, ErrNotFound
	}
	if err != nil {
		return core.Invoice{}, fmt.Errorf("scan invoice: %w", err)
	}

	if amountEUR.Valid {
		inv.AmountEUR = &core.Money{Cents: amountEUR.Int64}
	}
	inv.Flags.SentToClient = sentToClient != 0
	inv.Flags.SentToClientAt = parseStamp(sentToClientAt.String)
	inv.Flags.SentToAccountant = sentToAccountant != 0
	inv.Flags.SentToAccountantAt = parseStamp(sentToAccountantAt.String)
	inv.Flags.PaymentReceived = paymentReceived != 0
	inv.Flags.PaymentReceivedAt = parseStamp(paymentReceivedAt.String)
	return inv, nil
}

func stampOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}
