package core

import (
	"errors"
	"testing"
)

func TestClientValidate(t *testing.T) {
	valid := Client{Name: "Acme", Currency: CurrencyEUR, Email: "billing@acme.example"}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid client rejected: %v", err)
	}

	tests := []struct {
		name    string
		mutate  func(*Client)
		wantErr error
	}{
		{"empty name", func(c *Client) { c.Name = "  " }, ErrEmptyName},
		{"bad currency", func(c *Client) { c.Currency = "USD" }, ErrInvalidCurrency},
		{"bad email", func(c *Client) { c.Email = "not-an-address" }, ErrInvalidEmail},
		{"bad cc", func(c *Client) { c.CC = []string{"nope"} }, ErrInvalidEmail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			if err := c.Validate(); !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestInvoiceValidate(t *testing.T) {
	valid := Invoice{ClientID: "c1", Amount: Money{Cents: 1000}, Year: 2025, Month: 3}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid invoice rejected: %v", err)
	}

	zeroAmount := Invoice{ClientID: "c1"}
	if err := zeroAmount.Validate(); err != nil {
		t.Fatalf("zero-amount invoice must be accepted: %v", err)
	}

	tests := []struct {
		name    string
		inv     Invoice
		wantErr error
	}{
		{"missing client", Invoice{Amount: Money{Cents: 1}}, ErrEmptyClientID},
		{"negative amount", Invoice{ClientID: "c1", Amount: Money{Cents: -1}}, ErrInvalidAmount},
		{"negative eur amount", Invoice{ClientID: "c1", AmountEUR: &Money{Cents: -1}}, ErrInvalidAmount},
		{"month out of range", Invoice{ClientID: "c1", Year: 2025, Month: 13}, ErrInvalidMonth},
		{"month without year", Invoice{ClientID: "c1", Month: 4}, ErrInvalidYear},
		{"implausible year", Invoice{ClientID: "c1", Year: 12}, ErrInvalidYear},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.inv.Validate(); !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestEmailAccountValidate(t *testing.T) {
	smtp := EmailAccount{Kind: EmailKindSMTP, Address: "me@example.com", SMTPHost: "smtp.example.com", SMTPPort: 587}
	if err := smtp.Validate(); err != nil {
		t.Fatalf("valid smtp account rejected: %v", err)
	}
	gmail := EmailAccount{Kind: EmailKindGmail, Address: "me@gmail.com", TokenFile: "token.json"}
	if err := gmail.Validate(); err != nil {
		t.Fatalf("valid gmail account rejected: %v", err)
	}
	if err := (EmailAccount{Kind: "pigeon", Address: "me@example.com"}).Validate(); err == nil {
		t.Fatal("unknown kind must be rejected")
	}
	if err := (EmailAccount{Kind: EmailKindSMTP, Address: "me@example.com"}).Validate(); err == nil {
		t.Fatal("smtp without host must be rejected")
	}
}
