package mail

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"invoiced/internal/blob"
	"invoiced/internal/core"
	"invoiced/internal/storage"
)

var (
	// ErrNoAccount means the user has not configured outbound mail yet.
	ErrNoAccount = errors.New("no email account configured")
	// ErrNoRecipient means the client record has no email address.
	ErrNoRecipient = errors.New("client has no email address")
	// ErrTimesheetRequired blocks sending when the client demands a
	// timesheet and none of the attached files looks like one.
	ErrTimesheetRequired = errors.New("timesheet attachment required")
	// ErrNoAttachments blocks sending an invoice without documents.
	ErrNoAttachments = errors.New("invoice has no attached documents")
)

// SenderFactory builds a transport for the given account. Production
// wiring returns an SMTPSender or GmailSender; tests inject a fake.
type SenderFactory func(ctx context.Context, account core.EmailAccount) (Sender, error)

// SendService emails an invoice's documents to the client and flips
// the sent-to-client flag on success.
type SendService struct {
	storage *storage.SQLiteRepository
	blobs   blob.Store
	factory SenderFactory
}

func NewSendService(st *storage.SQLiteRepository, blobs blob.Store, factory SenderFactory) *SendService {
	return &SendService{storage: st, blobs: blobs, factory: factory}
}

// SendOptions overrides the default subject and body templates.
// Placeholders {{client}} and {{period}} are substituted in both.
type SendOptions struct {
	Subject string
	Body    string
}

func (s *SendService) SendInvoice(ctx context.Context, userID, invoiceID string, opts SendOptions) (core.Invoice, error) {
	account, err := s.storage.GetEmailAccount(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return core.Invoice{}, ErrNoAccount
	}
	if err != nil {
		return core.Invoice{}, err
	}

	invoice, err := s.storage.GetInvoice(ctx, userID, invoiceID)
	if err != nil {
		return core.Invoice{}, err
	}
	client, err := s.storage.GetClient(ctx, userID, invoice.ClientID)
	if err != nil {
		return core.Invoice{}, err
	}
	if client.Email == "" {
		return core.Invoice{}, ErrNoRecipient
	}

	files, err := s.storage.ListInvoiceFiles(ctx, invoiceID)
	if err != nil {
		return core.Invoice{}, err
	}
	if len(files) == 0 {
		return core.Invoice{}, ErrNoAttachments
	}
	if client.RequireTimesheet && !hasTimesheet(files) {
		return core.Invoice{}, ErrTimesheetRequired
	}

	attachments, err := s.loadAttachments(ctx, files)
	if err != nil {
		return core.Invoice{}, err
	}

	vars := map[string]string{
		"client": client.Name,
		"period": periodLabel(invoice.Year, invoice.Month),
	}
	subject := opts.Subject
	if subject == "" {
		subject = DefaultSubject
	}
	body := opts.Body
	if body == "" {
		body = DefaultBody
	}

	sender, err := s.factory(ctx, account)
	if err != nil {
		return core.Invoice{}, fmt.Errorf("build mail transport: %w", err)
	}

	msg := Message{
		From:        account.Address,
		To:          client.Email,
		CC:          client.CC,
		Subject:     Render(subject, vars),
		Body:        Render(body, vars),
		Attachments: attachments,
	}
	if err := sender.Send(msg); err != nil {
		return core.Invoice{}, fmt.Errorf("send invoice mail: %w", err)
	}

	slog.InfoContext(ctx, "invoice sent to client",
		"invoice_id", invoiceID,
		"client", client.Name,
		"to", client.Email,
		"attachments", len(attachments))

	sent := true
	updated, err := s.storage.UpdateFlags(ctx, userID, invoiceID, storage.FlagPatch{SentToClient: &sent})
	if err != nil {
		// The mail went out; report the invoice as it was.
		slog.ErrorContext(ctx, "failed to flag invoice as sent", "invoice_id", invoiceID, "error", err)
		return invoice, nil
	}
	return updated, nil
}

func (s *SendService) loadAttachments(ctx context.Context, files []core.InvoiceFile) ([]Attachment, error) {
	attachments := make([]Attachment, 0, len(files))
	for _, f := range files {
		rc, err := s.blobs.Open(ctx, f.BlobKey)
		if err != nil {
			return nil, fmt.Errorf("open attachment %s: %w", f.FileName, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read attachment %s: %w", f.FileName, err)
		}
		attachments = append(attachments, Attachment{
			FileName:    f.FileName,
			ContentType: f.ContentType,
			Data:        data,
		})
	}
	return attachments, nil
}

func hasTimesheet(files []core.InvoiceFile) bool {
	for _, f := range files {
		if strings.Contains(strings.ToLower(f.FileName), "timesheet") {
			return true
		}
	}
	return false
}

func periodLabel(year, month int) string {
	if year == 0 {
		return ""
	}
	if month == 0 {
		return fmt.Sprintf("%04d", year)
	}
	return fmt.Sprintf("%04d-%02d", year, month)
}

// NewSenderFactory returns the production transport factory.
// gmailClientCredentials is the OAuth client JSON used for gmail
// accounts; SMTP accounts carry their own settings.
func NewSenderFactory(gmailClientCredentials []byte) SenderFactory {
	return func(ctx context.Context, account core.EmailAccount) (Sender, error) {
		switch account.Kind {
		case core.EmailKindSMTP:
			return NewSMTPSender(account), nil
		case core.EmailKindGmail:
			if len(gmailClientCredentials) == 0 {
				return nil, errors.New("gmail account configured but no oauth client credentials loaded")
			}
			return NewGmailSender(ctx, gmailClientCredentials, account.TokenFile)
		default:
			return nil, fmt.Errorf("unsupported email account kind %q", account.Kind)
		}
	}
}
