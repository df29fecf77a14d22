package mail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// GmailSender delivers mail through the Gmail API using a user token
// obtained with the oauth-init command.
type GmailSender struct {
	svc *gmail.Service
}

// NewGmailSender builds a sender from OAuth client credentials and a
// stored token file.
func NewGmailSender(ctx context.Context, clientCredentials []byte, tokenFile string) (*GmailSender, error) {
	cfg, err := google.ConfigFromJSON(clientCredentials, gmail.GmailSendScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}

	tok, err := readToken(tokenFile)
	if err != nil {
		return nil, err
	}

	svc, err := gmail.NewService(ctx, option.WithHTTPClient(cfg.Client(ctx, tok)))
	if err != nil {
		return nil, fmt.Errorf("gmail service: %w", err)
	}
	return &GmailSender{svc: svc}, nil
}

func readToken(tokenFile string) (*oauth2.Token, error) {
	data, err := os.ReadFile(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("read token file: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("parse token file: %w", err)
	}
	return &tok, nil
}

func (g *GmailSender) Send(msg Message) error {
	raw, err := buildMIME(msg)
	if err != nil {
		return fmt.Errorf("build message: %w", err)
	}

	_, err = g.svc.Users.Messages.Send("me", &gmail.Message{
		Raw: base64.URLEncoding.EncodeToString(raw),
	}).Do()
	if err != nil {
		return fmt.Errorf("gmail send: %w", err)
	}
	return nil
}
