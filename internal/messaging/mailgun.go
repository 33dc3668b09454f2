package messaging

import (
	"context"
	"fmt"

	"github.com/mailgun/mailgun-go/v5"

	"github.com/memohai/deckcrm/internal/config"
)

// MailgunSender sends email through the Mailgun HTTP API.
type MailgunSender struct {
	client *mailgun.Client
	domain string
}

func NewMailgunSender(cfg config.MailgunConfig) *MailgunSender {
	return &MailgunSender{
		client: mailgun.NewMailgun(cfg.APIKey),
		domain: cfg.Domain,
	}
}

func (s *MailgunSender) SendEmail(ctx context.Context, email Email) (string, error) {
	m := mailgun.NewMessage(s.domain, email.From, email.Subject, email.Body, email.To)
	if email.InReplyTo != "" {
		m.AddHeader("In-Reply-To", email.InReplyTo)
		m.AddHeader("References", email.InReplyTo)
	}
	resp, err := s.client.Send(ctx, m)
	if err != nil {
		return "", fmt.Errorf("mailgun send: %w", err)
	}
	return resp.ID, nil
}
