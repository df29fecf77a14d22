package core

import (
	"errors"
	"net/mail"
	"strings"
	"time"
)

const (
	CurrencyEUR = "EUR"
	CurrencyGBP = "GBP"
)

type (
	Money struct {
		Cents int64
	}

	// Client is a billing counterparty. Currency is the client's native
	// invoicing currency; CC is an optional list of extra recipients.
	Client struct {
		ID               string
		Name             string
		Currency         string
		Email            string
		CC               []string
		RequireTimesheet bool
	}

	// WorkflowFlags are three independent booleans. There is no enforced
	// transition order; each carries the moment it was last set.
	WorkflowFlags struct {
		SentToClient       bool
		SentToClientAt     *time.Time
		SentToAccountant   bool
		SentToAccountantAt *time.Time
		PaymentReceived    bool
		PaymentReceivedAt  *time.Time
	}

	// Invoice is the stored record. Amount is in the client's native
	// currency; AmountEUR, when present, is the pre-converted value and
	// takes precedence everywhere amounts are aggregated.
	Invoice struct {
		ID               string
		ClientID         string
		Amount           Money
		AmountEUR        *Money
		Year             int // 0 = unknown
		Month            int // 1-12, 0 = unknown
		Flags            WorkflowFlags
		ExtractionStatus string
	}

	// InvoiceFile is one attached document, ordered by Position.
	InvoiceFile struct {
		ID          string
		InvoiceID   string
		FileName    string
		BlobKey     string
		ContentType string
		SizeBytes   int64
		Position    int
	}

	// EmailAccount is the per-user outbound mail configuration.
	EmailAccount struct {
		ID           string
		Kind         string // "smtp" or "gmail"
		Address      string
		SMTPHost     string
		SMTPPort     int
		SMTPUsername string
		SMTPPassword string
		TokenFile    string // gmail OAuth token file
	}
)

const (
	EmailKindSMTP  = "smtp"
	EmailKindGmail = "gmail"
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidCurrency = errors.New("invalid currency")
	ErrInvalidMonth    = errors.New("invalid month")
	ErrInvalidYear     = errors.New("invalid year")
	ErrEmptyName       = errors.New("empty client name")
	ErrInvalidEmail    = errors.New("invalid email address")
	ErrEmptyClientID   = errors.New("empty client reference")
)

func (c Client) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	if len(c.Name) > 200 {
		return errors.New("client name too long (max 200 characters)")
	}
	switch c.Currency {
	case CurrencyEUR, CurrencyGBP:
	default:
		return ErrInvalidCurrency
	}
	if c.Email != "" {
		if _, err := mail.ParseAddress(c.Email); err != nil {
			return ErrInvalidEmail
		}
	}
	for _, cc := range c.CC {
		if _, err := mail.ParseAddress(cc); err != nil {
			return ErrInvalidEmail
		}
	}
	return nil
}

func (i Invoice) Validate() error {
	if strings.TrimSpace(i.ClientID) == "" {
		return ErrEmptyClientID
	}
	// A zero amount is legal: uploaded invoices start at 0 until
	// extraction fills the suggested value in.
	if i.Amount.Cents < 0 {
		return ErrInvalidAmount
	}
	if i.AmountEUR != nil && i.AmountEUR.Cents < 0 {
		return ErrInvalidAmount
	}
	if i.Month < 0 || i.Month > 12 {
		return ErrInvalidMonth
	}
	if i.Year != 0 && (i.Year < 1970 || i.Year > 9999) {
		return ErrInvalidYear
	}
	if i.Month != 0 && i.Year == 0 {
		return ErrInvalidYear
	}
	return nil
}

func (a EmailAccount) Validate() error {
	if _, err := mail.ParseAddress(a.Address); err != nil {
		return ErrInvalidEmail
	}
	switch a.Kind {
	case EmailKindSMTP:
		if a.SMTPHost == "" || a.SMTPPort <= 0 || a.SMTPPort > 65535 {
			return errors.New("smtp account requires host and port")
		}
	case EmailKindGmail:
		if a.TokenFile == "" {
			return errors.New("gmail account requires a token file")
		}
	default:
		return errors.New("unsupported email account kind")
	}
	return nil
}
