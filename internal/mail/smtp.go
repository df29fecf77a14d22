package mail

import (
	"fmt"
	"net/smtp"

	"invoiced/internal/core"
)

// SMTPSender delivers mail through a plain SMTP submission endpoint
// with PLAIN authentication.
type SMTPSender struct {
	host     string
	port     int
	username string
	password string
}

func NewSMTPSender(account core.EmailAccount) *SMTPSender {
	return &SMTPSender{
		host:     account.SMTPHost,
		port:     account.SMTPPort,
		username: account.SMTPUsername,
		password: account.SMTPPassword,
	}
}

func (s *SMTPSender) Send(msg Message) error {
	raw, err := buildMIME(msg)
	if err != nil {
		return fmt.Errorf("build message: %w", err)
	}

	recipients := append([]string{msg.To}, msg.CC...)
	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	auth := smtp.PlainAuth("", s.username, s.password, s.host)

	if err := smtp.SendMail(addr, auth, msg.From, recipients, raw); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}
