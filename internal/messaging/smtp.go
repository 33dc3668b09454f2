package messaging

import (
	"context"
	"fmt"
	"strings"

	"github.com/wneessen/go-mail"

	"github.com/memohai/deckcrm/internal/config"
)

// SMTPSender sends email through an SMTP relay.
type SMTPSender struct {
	cfg config.SMTPConfig
}

func NewSMTPSender(cfg config.SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

func (s *SMTPSender) buildMessage(email Email) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(email.From); err != nil {
		return nil, fmt.Errorf("smtp from: %w", err)
	}
	if err := m.To(email.To); err != nil {
		return nil, fmt.Errorf("smtp to: %w", err)
	}
	m.Subject(email.Subject)
	m.SetBodyString(mail.TypeTextPlain, email.Body)
	m.SetMessageID()
	if email.InReplyTo != "" {
		m.SetGenHeader(mail.HeaderInReplyTo, email.InReplyTo)
		m.SetGenHeader(mail.HeaderReferences, email.InReplyTo)
	}
	return m, nil
}

func (s *SMTPSender) SendEmail(ctx context.Context, email Email) (string, error) {
	m, err := s.buildMessage(email)
	if err != nil {
		return "", err
	}
	opts := []mail.Option{mail.WithPort(s.cfg.Port)}
	if s.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}
	client, err := mail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return "", fmt.Errorf("smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return "", fmt.Errorf("smtp send: %w", err)
	}
	ids := m.GetGenHeader(mail.HeaderMessageID)
	if len(ids) == 0 {
		return "", nil
	}
	return strings.Trim(ids[0], "<>"), nil
}
