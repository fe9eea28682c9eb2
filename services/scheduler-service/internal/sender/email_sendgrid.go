package sender

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

type sendgridAPI interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendGridSender sends email through the SendGrid v3 API.
type SendGridSender struct {
	client   sendgridAPI
	from     string
	fromName string
}

func NewSendGridSender(apiKey, from, fromName string) (*SendGridSender, error) {
	if apiKey == "" {
		return nil, errors.New("sendgrid api key required")
	}
	return &SendGridSender{client: sendgrid.NewSendClient(apiKey), from: from, fromName: fromName}, nil
}

func (s *SendGridSender) SendEmail(ctx context.Context, to, subject, html string) (string, error) {
	msg := mail.NewSingleEmail(mail.NewEmail(s.fromName, s.from), subject, mail.NewEmail("", to), "", html)
	resp, err := s.client.SendWithContext(ctx, msg)
	if err != nil {
		return "", fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("sendgrid returned status %d", resp.StatusCode)
	}
	if ids := resp.Headers["X-Message-Id"]; len(ids) > 0 && ids[0] != "" {
		return ids[0], nil
	}
	return "sendgrid_" + uuid.NewString(), nil
}
