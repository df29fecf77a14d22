// Package mail sends invoices to clients. Two transports are
// supported: plain SMTP and the Gmail API; both consume the same MIME
// message built here.
package mail

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"strings"
	"time"
)

type Attachment struct {
	FileName    string
	ContentType string
	Data        []byte
}

type Message struct {
	From        string
	To          string
	CC          []string
	Subject     string
	Body        string
	Attachments []Attachment
}

// Sender delivers one message. Implementations: SMTPSender, GmailSender.
type Sender interface {
	Send(msg Message) error
}

// buildMIME renders the message as multipart/mixed: a text body part
// followed by base64-encoded attachments.
func buildMIME(msg Message) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "From: %s\r\n", msg.From)
	fmt.Fprintf(&buf, "To: %s\r\n", msg.To)
	if len(msg.CC) > 0 {
		fmt.Fprintf(&buf, "Cc: %s\r\n", strings.Join(msg.CC, ", "))
	}
	fmt.Fprintf(&buf, "Subject: %s\r\n", msg.Subject)
	fmt.Fprintf(&buf, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")

	mw := multipart.NewWriter(&buf)
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", mw.Boundary())

	bodyHeader := textproto.MIMEHeader{}
	bodyHeader.Set("Content-Type", "text/plain; charset=utf-8")
	bodyPart, err := mw.CreatePart(bodyHeader)
	if err != nil {
		return nil, fmt.Errorf("create body part: %w", err)
	}
	if _, err := bodyPart.Write([]byte(msg.Body)); err != nil {
		return nil, fmt.Errorf("write body: %w", err)
	}

	for _, att := range msg.Attachments {
		contentType := att.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		header := textproto.MIMEHeader{}
		header.Set("Content-Type", contentType)
		header.Set("Content-Transfer-Encoding", "base64")
		header.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", att.FileName))

		part, err := mw.CreatePart(header)
		if err != nil {
			return nil, fmt.Errorf("create attachment part: %w", err)
		}
		if err := writeBase64(part, att.Data); err != nil {
			return nil, fmt.Errorf("write attachment %s: %w", att.FileName, err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}
	return buf.Bytes(), nil
}

// writeBase64 encodes data in 76-character lines per RFC 2045.
func writeBase64(w io.Writer, data []byte) error {
	encoded := base64.StdEncoding.EncodeToString(data)
	for len(encoded) > 0 {
		n := 76
		if n > len(encoded) {
			n = len(encoded)
		}
		if _, err := w.Write([]byte(encoded[:n] + "\r\n")); err != nil {
			return err
		}
		encoded = encoded[n:]
	}
	return nil
}
